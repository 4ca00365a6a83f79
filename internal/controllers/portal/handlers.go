package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sagecircuit/forecaster/internal/bootmode"
	"github.com/sagecircuit/forecaster/internal/constants"
	"github.com/sagecircuit/forecaster/internal/ota"
	"github.com/sagecircuit/forecaster/pkg/config"
)

// Handlers carries the HTTP handler methods for the portal.
type Handlers struct {
	controller *Controller
}

func NewHandlers(controller *Controller) *Handlers {
	return &Handlers{controller: controller}
}

func (h *Handlers) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) sendJSONWithStatus(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response in JSON format.
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    statusCode,
		"timestamp": time.Now().Unix(),
	}
	if err != nil {
		errorResponse["details"] = err.Error()
	}
	json.NewEncoder(w).Encode(errorResponse)
}

// updateAllowed gates the OTA endpoints: only operational mode and the
// settings editor expose them, never the open setup network.
func (h *Handlers) updateAllowed(w http.ResponseWriter) bool {
	mode := h.controller.deps.BootCtrl.Mode()
	if mode != bootmode.ModeOperational && mode != bootmode.ModeSettingsEdit {
		h.sendError(w, http.StatusForbidden, "Updates are not available in this mode", nil)
		return false
	}
	return true
}

// settingsResponse is the GET /settings payload. The Wi-Fi password is
// never echoed back; the page shows only whether one is stored.
type settingsResponse struct {
	Mode       bootmode.Mode   `json:"mode"`
	Reason     string          `json:"reason,omitempty"`
	Configured bool            `json:"configured"`
	Config     *redactedConfig `json:"config,omitempty"`
	Timezones  []string        `json:"timezones"`
}

type redactedConfig struct {
	WiFiSSID       string  `json:"wifi_ssid"`
	HasPassword    bool    `json:"has_password"`
	LocationSource string  `json:"location_source"`
	ZipCode        string  `json:"zip_code,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	TimezoneID     string  `json:"timezone_id"`
	UseDST         bool    `json:"use_dst"`
	ManualOffset   float64 `json:"manual_offset,omitempty"`
}

func redact(cfg *config.DeviceConfig) *redactedConfig {
	if cfg == nil {
		return nil
	}
	return &redactedConfig{
		WiFiSSID:       cfg.WiFiSSID,
		HasPassword:    cfg.WiFiPSK != "",
		LocationSource: cfg.LocationSource,
		ZipCode:        cfg.ZipCode,
		Latitude:       cfg.Latitude,
		Longitude:      cfg.Longitude,
		TimezoneID:     cfg.TimezoneID,
		UseDST:         cfg.UseDST,
		ManualOffset:   cfg.ManualOffset,
	}
}

// GetSettings returns the current configuration and mode.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller.deps.BootCtrl

	cfg, err := h.controller.deps.Provider.LoadDeviceConfig()
	if err != nil && !errors.Is(err, config.ErrConfigMissing) &&
		!errors.Is(err, config.ErrConfigCorrupt) && !errors.Is(err, config.ErrConfigInvalid) {
		h.sendError(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}

	h.sendJSON(w, settingsResponse{
		Mode:       ctrl.Mode(),
		Reason:     ctrl.Reason(),
		Configured: cfg != nil,
		Config:     redact(cfg),
		Timezones:  config.TimezoneIDs,
	})
}

// settingsRequest is the POST /settings payload. An empty password with
// keep_password set reuses the stored one so edits don't force retyping.
type settingsRequest struct {
	WiFiSSID       string  `json:"wifi_ssid"`
	WiFiPSK        string  `json:"wifi_psk"`
	KeepPassword   bool    `json:"keep_password"`
	LocationSource string  `json:"location_source"`
	ZipCode        string  `json:"zip_code"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	TimezoneID     string  `json:"timezone_id"`
	UseDST         bool    `json:"use_dst"`
	ManualOffset   float64 `json:"manual_offset"`
}

// PostSettings validates and saves a new configuration, then re-runs the
// connect sequence. A rejected save leaves the stored config untouched
// and reports a specific reason.
func (h *Handlers) PostSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	cfg := &config.DeviceConfig{
		WiFiSSID:       req.WiFiSSID,
		WiFiPSK:        req.WiFiPSK,
		LocationSource: req.LocationSource,
		ZipCode:        req.ZipCode,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		TimezoneID:     req.TimezoneID,
		UseDST:         req.UseDST,
		ManualOffset:   req.ManualOffset,
	}

	if req.KeepPassword && req.WiFiPSK == "" {
		if prev, err := h.controller.deps.Provider.LoadDeviceConfig(); err == nil && prev != nil {
			cfg.WiFiPSK = prev.WiFiPSK
		}
	}

	mode, err := h.controller.deps.BootCtrl.ApplyConfig(r.Context(), cfg)
	if err != nil {
		switch {
		case errors.Is(err, config.ErrLocationOutOfCoverage):
			h.sendError(w, http.StatusUnprocessableEntity,
				"That location is outside the forecast coverage area", err)
		case errors.Is(err, config.ErrConfigInvalid):
			h.sendError(w, http.StatusUnprocessableEntity, "Settings failed validation", err)
		default:
			h.sendError(w, http.StatusInternalServerError, "Failed to save settings", err)
		}
		return
	}

	// The weather engine, clock, and display scheduler read their
	// configuration at boot; a save that lands in operational mode
	// restarts the device so it actually takes effect.
	rebooting := mode == bootmode.ModeOperational
	h.sendJSON(w, map[string]interface{}{
		"saved":     true,
		"mode":      mode,
		"rebooting": rebooting,
	})
	if rebooting && h.controller.deps.Reboot != nil {
		h.controller.deps.Reboot()
	}
}

// EnterSettingsEdit switches the portal into the settings editor.
func (h *Handlers) EnterSettingsEdit(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.deps.BootCtrl.EnterSettings(); err != nil {
		h.sendError(w, http.StatusConflict, "Settings editor unavailable", err)
		return
	}
	h.sendJSON(w, map[string]interface{}{"mode": bootmode.ModeSettingsEdit})
}

// DiscardSettingsEdit leaves the settings editor without saving.
func (h *Handlers) DiscardSettingsEdit(w http.ResponseWriter, r *http.Request) {
	h.controller.deps.BootCtrl.LeaveSettings()
	h.sendJSON(w, map[string]interface{}{"mode": h.controller.deps.BootCtrl.Mode()})
}

// GetStatus reports mode, firmware version, display rotation, and the
// freshness of the weather snapshot.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"mode":    h.controller.deps.BootCtrl.Mode(),
		"version": h.firmwareVersion(),
	}

	if h.controller.deps.Snapshot != nil {
		if snap := h.controller.deps.Snapshot(); snap != nil {
			status["weather"] = map[string]interface{}{
				"source_tier": snap.Tier,
				"fetched_at":  snap.FetchedAt,
				"periods":     len(snap.Periods),
			}
		}
	}
	if h.controller.deps.Phase != nil {
		status["display"] = h.controller.deps.Phase()
	}
	if session := h.controller.deps.Pipeline.Session(); session != nil {
		status["update"] = map[string]interface{}{
			"session_id":   session.ID,
			"version":      session.Manifest.Version,
			"staged_files": session.StagedCount(),
			"total_files":  len(session.Manifest.Files),
		}
	}

	h.sendJSON(w, status)
}

func (h *Handlers) firmwareVersion() string {
	if v := h.controller.deps.Pipeline.InstalledVersion(); v != "" {
		return v
	}
	return constants.Version
}

// GetVersion returns the installed firmware version.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]string{"version": h.firmwareVersion()})
}

// CheckForUpdate fetches the manifest and opens a session when the
// device is out of date.
func (h *Handlers) CheckForUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.updateAllowed(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	avail, err := h.controller.deps.Pipeline.CheckForUpdate(ctx)
	if err != nil {
		h.sendUpdateError(w, err)
		return
	}
	h.sendJSON(w, availabilityResponse(avail))
}

// PostManifest accepts a manifest pushed by the updater tool and opens a
// session, mirroring CheckForUpdate for offline updates.
func (h *Handlers) PostManifest(w http.ResponseWriter, r *http.Request) {
	if !h.updateAllowed(w) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Failed to read manifest", err)
		return
	}

	m, err := ota.ParseManifest(body)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Manifest rejected", err)
		return
	}

	avail, err := h.controller.deps.Pipeline.Evaluate(m)
	if err != nil {
		h.sendUpdateError(w, err)
		return
	}
	h.sendJSON(w, availabilityResponse(avail))
}

func availabilityResponse(avail *ota.Availability) map[string]interface{} {
	resp := map[string]interface{}{
		"up_to_date": avail.UpToDate,
		"version":    avail.Version,
	}
	if avail.Session != nil {
		resp["session_id"] = avail.Session.ID
		resp["stale_files"] = avail.Stale
	}
	return resp
}

func (h *Handlers) sendUpdateError(w http.ResponseWriter, err error) {
	var ce *ota.ChecksumError
	switch {
	case errors.Is(err, ota.ErrSessionBusy):
		h.sendError(w, http.StatusConflict, "An update is already in progress", err)
	case errors.Is(err, ota.ErrNoSession):
		h.sendError(w, http.StatusConflict, "No update in progress", err)
	case errors.Is(err, ota.ErrManifestInvalid):
		h.sendError(w, http.StatusBadRequest, "Manifest rejected", err)
	case errors.Is(err, ota.ErrNetworkUnavailable):
		h.sendError(w, http.StatusBadGateway, "Update server unreachable", err)
	case errors.Is(err, ota.ErrUnknownPath):
		h.sendError(w, http.StatusBadRequest, "File not listed in the update manifest", err)
	case errors.Is(err, ota.ErrSizeMismatch):
		h.sendError(w, http.StatusBadRequest, "Uploaded size does not match the manifest", err)
	case errors.As(err, &ce):
		h.sendJSONWithStatus(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":        "Verification failed, update discarded",
			"failed_paths": ce.Paths,
		})
	default:
		h.sendError(w, http.StatusInternalServerError, "Update failed", err)
	}
}

// UploadFile stages one manifest file from the request body. The path
// comes from the query string so the body can stream raw bytes.
func (h *Handlers) UploadFile(w http.ResponseWriter, r *http.Request) {
	if !h.updateAllowed(w) {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		h.sendError(w, http.StatusBadRequest, "Missing path", nil)
		return
	}

	written, err := h.controller.deps.Pipeline.StageFile(path, r.Body)
	if err != nil {
		h.sendUpdateError(w, err)
		return
	}

	h.sendJSON(w, map[string]interface{}{
		"path":          path,
		"bytes_written": written,
	})
}

// Finalize verifies every staged file and applies the update. Any
// failure discards the session and leaves installed files untouched.
func (h *Handlers) Finalize(w http.ResponseWriter, r *http.Request) {
	if !h.updateAllowed(w) {
		return
	}

	if err := h.controller.deps.Pipeline.VerifyAndFinalize(); err != nil {
		h.sendUpdateError(w, err)
		return
	}
	h.sendJSON(w, map[string]interface{}{
		"applied":   true,
		"rebooting": true,
	})
}

// AbortUpdate discards the current session and staged files.
func (h *Handlers) AbortUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.updateAllowed(w) {
		return
	}
	h.controller.deps.Pipeline.Abort()
	h.sendJSON(w, map[string]interface{}{"aborted": true})
}

// Reboot schedules a device restart.
func (h *Handlers) Reboot(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]interface{}{"rebooting": true})
	if h.controller.deps.Reboot != nil {
		h.controller.deps.Reboot()
	}
}

// CaptiveProbe answers OS connectivity probes. In setup mode the probe
// is redirected so the OS opens the portal page; otherwise it gets the
// success response it expects.
func (h *Handlers) CaptiveProbe(w http.ResponseWriter, r *http.Request) {
	if h.controller.deps.BootCtrl.Mode() == bootmode.ModeSetup {
		http.Redirect(w, r, "http://"+constants.APDomain+"/settings", http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
