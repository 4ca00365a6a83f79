// Package ota stages, verifies, and atomically applies firmware updates
// described by a signed-size manifest. A session either replaces every
// file it names or touches nothing.
package ota

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionBusy indicates an update session is already staging.
	ErrSessionBusy = errors.New("update session already in progress")

	// ErrNoSession indicates the operation needs an active session.
	ErrNoSession = errors.New("no update session in progress")

	// ErrUnknownPath indicates a staged path the manifest does not list.
	ErrUnknownPath = errors.New("path not listed in manifest")

	// ErrSizeMismatch indicates a staged file's size disagrees with the
	// manifest after upload completed.
	ErrSizeMismatch = errors.New("staged file size does not match manifest")

	// ErrManifestInvalid indicates the manifest failed structural checks.
	ErrManifestInvalid = errors.New("manifest invalid")

	// ErrNetworkUnavailable indicates the manifest source could not be
	// reached. Local state is never mutated on this path.
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// ChecksumError reports every staged file whose digest failed
// verification. The whole session is discarded when this is returned.
type ChecksumError struct {
	Paths []string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: %s", strings.Join(e.Paths, ", "))
}
