package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sagecircuit/forecaster/internal/app"
	"github.com/sagecircuit/forecaster/internal/constants"
	"github.com/sagecircuit/forecaster/internal/log"
	"github.com/sagecircuit/forecaster/internal/netlink"
	"github.com/sagecircuit/forecaster/pkg/config"
)

const version = constants.Version + "-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	// os.Exit skips deferred cleanup, so the work happens in run and the
	// exit code is the only thing decided here.
	os.Exit(run())
}

func run() int {
	cfgFile := flag.String("config", "settings.yaml", "Path to configuration source:\n\t\t\t  YAML: settings.yaml\n\t\t\t  SQLite: settings.db")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	installDir := flag.String("install-dir", ".", "Directory holding installed firmware files and the version marker")
	manifestURL := flag.String("manifest-url", "", "URL of the update manifest (optional; updates can also be pushed)")
	portalAddr := flag.String("portal-addr", "0.0.0.0", "Portal listen address")
	portalPort := flag.Int("portal-port", 80, "Portal listen port")
	displayDev := flag.String("display", "", "Serial device of the display panel (empty for in-memory driver)")
	displayBaud := flag.Int("display-baud", 921600, "Display serial baud rate")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("forecaster %s\n", version)
		return 0
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	provider, err := openProvider(*cfgFile, *cfgBackend)
	if err != nil {
		log.Errorf("Failed to open configuration: %v", err)
		return 1
	}
	defer provider.Close()

	application := app.New(app.Options{
		Provider:      provider,
		Link:          &netlink.StaticManager{},
		InstallDir:    *installDir,
		ManifestURL:   *manifestURL,
		PortalAddr:    *portalAddr,
		PortalPort:    *portalPort,
		DisplayDevice: *displayDev,
		DisplayBaud:   *displayBaud,
	}, log.GetSugaredLogger())

	err = application.Run(context.Background())
	switch {
	case errors.Is(err, app.ErrRebootRequested):
		return app.RebootExitCode
	case err != nil:
		log.Errorf("Application error: %v", err)
		return 1
	}
	return 0
}

func openProvider(cfgFile, cfgBackend string) (config.Provider, error) {
	filename, _ := filepath.Abs(cfgFile)

	switch cfgBackend {
	case "yaml":
		return config.NewYAMLProvider(filename), nil
	case "sqlite":
		provider, err := config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
}
