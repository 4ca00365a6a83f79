package ota

import (
	"encoding/json"
	"fmt"
	"os"
)

// RecoverAtBoot resolves a stage directory left behind by a crash.
//
// A finalize journal only exists after verification passed in full, so
// its presence means the swap was in progress: the swap is re-run
// idempotently and the marker updated. A stage directory with no journal
// means staging or verification never completed; it is discarded and the
// installed tree is already consistent.
func (p *Pipeline) RecoverAtBoot() error {
	data, err := os.ReadFile(p.journalPath)
	if os.IsNotExist(err) {
		if _, statErr := os.Stat(p.stageDir); statErr == nil {
			p.logger.Info("discarding unverified staged update from previous boot")
			os.RemoveAll(p.stageDir)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read finalize journal: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		// Journal unreadable: the swap state is unknowable, keep the
		// installed tree and clear the stage area.
		p.logger.Errorf("finalize journal corrupt, discarding staged update: %v", err)
		os.RemoveAll(p.stageDir)
		return nil
	}

	p.logger.Infof("resuming interrupted update to version %s", m.Version)
	if err := p.applySwap(&m); err != nil {
		return fmt.Errorf("could not resume interrupted update: %w", err)
	}
	return nil
}
