// Package portal serves the device's settings and update HTTP interface.
// In setup mode it behaves as a captive portal; in operational mode it
// exposes the settings editor and the update pipeline.
package portal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sagecircuit/forecaster/internal/bootmode"
	"github.com/sagecircuit/forecaster/internal/constants"
	"github.com/sagecircuit/forecaster/internal/display"
	"github.com/sagecircuit/forecaster/internal/ota"
	"github.com/sagecircuit/forecaster/internal/weather"
	"github.com/sagecircuit/forecaster/pkg/config"
	"go.uber.org/zap"
)

// Config holds the portal listener settings.
type Config struct {
	ListenAddr string
	Port       int
}

// Deps are the portal's collaborators.
type Deps struct {
	BootCtrl *bootmode.Controller
	Provider config.Provider
	Pipeline *ota.Pipeline
	Snapshot func() *weather.Snapshot
	Phase    func() display.PhaseState
	// Reboot schedules a device restart.
	Reboot func()
}

// Controller is the portal HTTP server.
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	cfg      Config
	deps     Deps
	logger   *zap.SugaredLogger
	handlers *Handlers
	Server   http.Server
}

// NewController creates the portal controller.
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg Config, deps Deps, logger *zap.SugaredLogger) (*Controller, error) {
	if deps.BootCtrl == nil || deps.Provider == nil || deps.Pipeline == nil {
		return nil, fmt.Errorf("portal requires boot controller, config provider, and update pipeline")
	}

	if cfg.Port == 0 {
		cfg.Port = 80
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0"
	}

	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", cfg.ListenAddr, cfg.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	return ctrl, nil
}

// StartController starts the portal server.
func (c *Controller) StartController() error {
	c.logger.Infof("portal server starting on %s", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			c.logger.Errorf("portal server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the portal server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints.
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.Use(c.loggingMiddleware)
	router.Use(c.captiveRedirectMiddleware)

	router.HandleFunc("/settings", c.handlers.GetSettings).Methods("GET")
	router.HandleFunc("/settings", c.handlers.PostSettings).Methods("POST")
	router.HandleFunc("/settings/edit", c.handlers.EnterSettingsEdit).Methods("POST")
	router.HandleFunc("/settings/discard", c.handlers.DiscardSettingsEdit).Methods("POST")

	router.HandleFunc("/status", c.handlers.GetStatus).Methods("GET")
	router.HandleFunc("/version", c.handlers.GetVersion).Methods("GET")

	// Update pipeline. Gated on mode inside the handlers.
	router.HandleFunc("/update/check", c.handlers.CheckForUpdate).Methods("POST")
	router.HandleFunc("/update/manifest", c.handlers.PostManifest).Methods("POST")
	router.HandleFunc("/update/upload", c.handlers.UploadFile).Methods("POST")
	router.HandleFunc("/update/finalize", c.handlers.Finalize).Methods("POST")
	router.HandleFunc("/update/abort", c.handlers.AbortUpdate).Methods("POST")

	router.HandleFunc("/reboot", c.handlers.Reboot).Methods("POST")

	// Captive portal probes used by phone OSes to detect a login page.
	router.HandleFunc("/hotspot-detect.html", c.handlers.CaptiveProbe).Methods("GET")
	router.HandleFunc("/generate_204", c.handlers.CaptiveProbe).Methods("GET")
	router.HandleFunc("/connecttest.txt", c.handlers.CaptiveProbe).Methods("GET")

	return router
}

// loggingMiddleware logs each request at debug level.
func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		c.logger.Debugf("%s %s from %s (%v)", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}

// captiveRedirectMiddleware redirects stray hostnames to the portal
// domain while in setup mode, which is what makes phones pop the portal
// page open.
func (c *Controller) captiveRedirectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.deps.BootCtrl.Mode() == bootmode.ModeSetup {
			host := r.Host
			if idx := strings.IndexByte(host, ':'); idx >= 0 {
				host = host[:idx]
			}
			if host != constants.APDomain && !isProbePath(r.URL.Path) {
				http.Redirect(w, r, fmt.Sprintf("http://%s/settings", constants.APDomain), http.StatusFound)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isProbePath(path string) bool {
	switch path {
	case "/hotspot-detect.html", "/generate_204", "/connecttest.txt":
		return true
	}
	return false
}
