package ota

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	stageDirName    = ".ota-stage"
	markerFileName  = "version"
	journalFileName = "finalize.journal"
)

// Availability is the result of an update check.
type Availability struct {
	UpToDate bool
	Version  string
	Session  *UpdateSession
	// Stale lists installed files whose digests differ from the
	// manifest, informational for the settings page.
	Stale []string
}

// Pipeline owns the install directory and applies updates to it. All
// mutation happens under a single session; the swap window is the only
// time installed files change.
type Pipeline struct {
	installDir  string
	stageDir    string
	markerPath  string
	journalPath string
	manifestURL string
	client      *http.Client
	logger      *zap.SugaredLogger

	// rebootFn schedules a restart after a successful finalize.
	rebootFn func()

	mu      sync.Mutex
	session *UpdateSession

	busy atomic.Bool
}

// NewPipeline creates a Pipeline rooted at installDir. manifestURL may be
// empty when updates are only pushed through the portal.
func NewPipeline(installDir, manifestURL string, logger *zap.SugaredLogger) *Pipeline {
	stageDir := filepath.Join(installDir, stageDirName)
	return &Pipeline{
		installDir:  installDir,
		stageDir:    stageDir,
		markerPath:  filepath.Join(installDir, markerFileName),
		journalPath: filepath.Join(stageDir, journalFileName),
		manifestURL: manifestURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// SetRebootFunc registers the restart hook invoked after finalize.
func (p *Pipeline) SetRebootFunc(fn func()) {
	p.rebootFn = fn
}

// Busy reports whether the swap window is active. The display scheduler
// pauses page transitions while this is set.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// InstalledVersion reads the version marker. Empty string means no
// marker has ever been written.
func (p *Pipeline) InstalledVersion() string {
	data, err := os.ReadFile(p.markerPath)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(data))
}

// Session returns the active session, or nil.
func (p *Pipeline) Session() *UpdateSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// CheckForUpdate fetches the manifest and compares it against the
// installed version marker and per-file digests. When files differ a new
// session is created. A check for the version an open session is already
// applying re-attaches to that session; any other version fails with
// ErrSessionBusy. Nothing on disk is mutated.
func (p *Pipeline) CheckForUpdate(ctx context.Context) (*Availability, error) {
	if p.manifestURL == "" {
		return nil, fmt.Errorf("no manifest URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.manifestURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: manifest fetch returned status %d", ErrNetworkUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	return p.evaluate(m)
}

// Evaluate compares a manifest that arrived out-of-band (pushed through
// the portal) and opens a session if the device is out of date.
func (p *Pipeline) Evaluate(m *Manifest) (*Availability, error) {
	return p.evaluate(m)
}

func (p *Pipeline) evaluate(m *Manifest) (*Availability, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		// Re-posting the manifest the open session is for re-attaches to
		// it, so an updater that lost its connection can resume staging
		// without an abort.
		if p.session.Manifest.Version == m.Version {
			return &Availability{Version: m.Version, Session: p.session}, nil
		}
		return nil, ErrSessionBusy
	}

	stale := p.staleFiles(m)
	if m.Version == p.InstalledVersion() && len(stale) == 0 {
		return &Availability{UpToDate: true, Version: m.Version}, nil
	}

	p.session = newSession(m)
	p.logger.Infof("update session %s opened for version %s (%d files, %d stale)",
		p.session.ID, m.Version, len(m.Files), len(stale))

	return &Availability{Version: m.Version, Session: p.session, Stale: stale}, nil
}

// staleFiles returns the manifest paths whose installed digests differ.
func (p *Pipeline) staleFiles(m *Manifest) []string {
	var stale []string
	for _, f := range m.Files {
		sum, err := fileSHA256(filepath.Join(p.installDir, filepath.FromSlash(f.Path)))
		if err != nil || sum != f.SHA256 {
			stale = append(stale, f.Path)
		}
	}
	return stale
}

// StageFile appends uploaded bytes for a manifest path. Uploads may
// arrive in chunks; the file is complete when its size matches the
// manifest. Overshooting the declared size discards the staged file so
// it can be re-sent from scratch.
func (p *Pipeline) StageFile(path string, r io.Reader) (int64, error) {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return 0, ErrNoSession
	}

	entry, ok := session.Manifest.Entry(path)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}

	dst := p.stagedPath(path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("could not create staging directory: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("could not open staging file: %w", err)
	}

	written, err := io.Copy(f, r)
	closeErr := f.Close()
	if err != nil {
		return written, fmt.Errorf("staging write failed: %w", err)
	}
	if closeErr != nil {
		return written, fmt.Errorf("staging close failed: %w", closeErr)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return written, err
	}

	switch {
	case info.Size() == entry.Size:
		session.markStaged(path, info.Size())
	case info.Size() > entry.Size:
		os.Remove(dst)
		return written, fmt.Errorf("%w: %s has %d bytes, manifest says %d",
			ErrSizeMismatch, path, info.Size(), entry.Size)
	}

	return written, nil
}

// VerifyAndFinalize checks every staged file against the manifest and,
// only when all pass, swaps them into place. Any failure leaves every
// installed file untouched and discards the session. The version marker
// is written after the last file swap so a crash mid-apply is detected
// at boot by the journal, never by a lying marker.
func (p *Pipeline) VerifyAndFinalize() error {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return ErrNoSession
	}

	if !session.Complete() {
		missing := len(session.Manifest.Files) - session.StagedCount()
		return fmt.Errorf("cannot finalize: %d of %d files not yet staged",
			missing, len(session.Manifest.Files))
	}

	var failed []string
	for _, entry := range session.Manifest.Files {
		sum, err := fileSHA256(p.stagedPath(entry.Path))
		if err != nil || sum != entry.SHA256 {
			failed = append(failed, entry.Path)
		}
	}
	if len(failed) > 0 {
		p.discardSession()
		return &ChecksumError{Paths: failed}
	}

	// Verification passed in full. Journal first so a crash during the
	// swap can be completed idempotently at next boot.
	if err := p.writeJournal(session.Manifest); err != nil {
		p.discardSession()
		return err
	}

	p.busy.Store(true)
	defer p.busy.Store(false)

	if err := p.applySwap(session.Manifest); err != nil {
		return err
	}

	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()

	p.logger.Infof("update to version %s applied", session.Manifest.Version)
	if p.rebootFn != nil {
		p.rebootFn()
	}
	return nil
}

// Abort discards the session and staged files. Installed files are
// never touched on this path.
func (p *Pipeline) Abort() {
	p.discardSession()
}

func (p *Pipeline) discardSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		p.logger.Infof("update session %s discarded", p.session.ID)
		p.session = nil
	}
	os.RemoveAll(p.stageDir)
}

// applySwap renames every staged file over its install path, then writes
// the version marker, then removes the journal. Safe to re-run; files
// already swapped are skipped.
func (p *Pipeline) applySwap(m *Manifest) error {
	for _, entry := range m.Files {
		staged := p.stagedPath(entry.Path)
		dest := filepath.Join(p.installDir, filepath.FromSlash(entry.Path))

		if _, err := os.Stat(staged); os.IsNotExist(err) {
			// Already swapped by an earlier pass.
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("could not create %s: %w", filepath.Dir(dest), err)
		}
		if err := os.Rename(staged, dest); err != nil {
			return fmt.Errorf("could not install %s: %w", entry.Path, err)
		}
	}

	if err := p.writeMarker(m.Version); err != nil {
		return err
	}

	os.Remove(p.journalPath)
	os.RemoveAll(p.stageDir)
	return nil
}

func (p *Pipeline) writeMarker(version string) error {
	tmp := p.markerPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("could not write version marker: %w", err)
	}
	if err := os.Rename(tmp, p.markerPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not publish version marker: %w", err)
	}
	return nil
}

func (p *Pipeline) writeJournal(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("could not encode finalize journal: %w", err)
	}
	tmp := p.journalPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("could not write finalize journal: %w", err)
	}
	if err := os.Rename(tmp, p.journalPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not publish finalize journal: %w", err)
	}
	return nil
}

func (p *Pipeline) stagedPath(path string) string {
	return filepath.Join(p.stageDir, filepath.FromSlash(path))
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
