package ota

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// UpdateSession tracks one in-flight update: the manifest being applied
// and which files have completed staging. Only one session exists at a
// time; the pipeline enforces the exclusion. Staging progress is read
// by the status endpoint while uploads are still arriving, so the
// staged set carries its own lock.
type UpdateSession struct {
	ID        string
	Manifest  *Manifest
	StartedAt time.Time

	mu     sync.Mutex
	staged map[string]int64
}

func newSession(m *Manifest) *UpdateSession {
	return &UpdateSession{
		ID:        uuid.New().String(),
		Manifest:  m,
		StartedAt: time.Now().UTC(),
		staged:    make(map[string]int64, len(m.Files)),
	}
}

// markStaged records the final byte count for a fully uploaded path.
func (s *UpdateSession) markStaged(path string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged[path] = size
}

// StagedCount returns how many manifest files have completed staging.
func (s *UpdateSession) StagedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

// Complete reports whether every manifest file has been staged.
func (s *UpdateSession) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged) == len(s.Manifest.Files)
}
