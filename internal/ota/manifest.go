package ota

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// ManifestEntry describes one file in an update.
type ManifestEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest describes an available firmware version. Unknown JSON fields
// are ignored so older firmware can read newer manifests.
type Manifest struct {
	Version string          `json:"version"`
	Files   []ManifestEntry `json:"files"`
}

// Entry returns the manifest entry for a path, if listed.
func (m *Manifest) Entry(p string) (*ManifestEntry, bool) {
	for i := range m.Files {
		if m.Files[i].Path == p {
			return &m.Files[i], true
		}
	}
	return nil, false
}

// ParseManifest decodes and structurally validates a manifest. Rejected
// manifests never start a session.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}

	if m.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrManifestInvalid)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("%w: no files listed", ErrManifestInvalid)
	}

	seen := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("%w: entry with empty path", ErrManifestInvalid)
		}
		if !safeRelPath(f.Path) {
			return nil, fmt.Errorf("%w: unsafe path %q", ErrManifestInvalid, f.Path)
		}
		if len(f.SHA256) != 64 || !isHex(f.SHA256) {
			return nil, fmt.Errorf("%w: malformed sha256 for %q", ErrManifestInvalid, f.Path)
		}
		if f.Size < 0 {
			return nil, fmt.Errorf("%w: negative size for %q", ErrManifestInvalid, f.Path)
		}
		if seen[f.Path] {
			return nil, fmt.Errorf("%w: duplicate path %q", ErrManifestInvalid, f.Path)
		}
		seen[f.Path] = true
	}

	return &m, nil
}

// safeRelPath rejects absolute paths, traversal, and backslashes. Paths
// in a manifest are always slash-separated and relative to the install
// directory.
func safeRelPath(p string) bool {
	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return false
	}
	return clean == p
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
