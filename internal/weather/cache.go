package weather

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// cachedState is the on-disk shape of the last good snapshot, persisted
// so a reboot during an outage still has something to show.
type cachedState struct {
	Snapshot *Snapshot `msgpack:"snapshot"`
	Sun      *SunTimes `msgpack:"sun,omitempty"`
}

// snapshotCache persists the last good snapshot across restarts.
type snapshotCache struct {
	path string
}

func newSnapshotCache(dir string) *snapshotCache {
	return &snapshotCache{path: filepath.Join(dir, "weather-cache.msgpack")}
}

// Save writes the state atomically: temp file then rename.
func (c *snapshotCache) Save(state *cachedState) error {
	data, err := msgpack.Marshal(state)
	if err != nil {
		return fmt.Errorf("could not encode weather cache: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("could not write weather cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not publish weather cache: %w", err)
	}
	return nil
}

// Load reads the cached state. A missing or undecodable file returns
// (nil, nil); stale cache is never worth failing startup over.
func (c *snapshotCache) Load() (*cachedState, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read weather cache: %w", err)
	}

	var state cachedState
	if err := msgpack.Unmarshal(data, &state); err != nil {
		os.Remove(c.path)
		return nil, nil
	}
	return &state, nil
}
