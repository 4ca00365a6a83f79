package display

import (
	"context"
	"sync"
	"time"

	"github.com/sagecircuit/forecaster/internal/clock"
	"github.com/sagecircuit/forecaster/internal/weather"
	"go.uber.org/zap"
)

// Phase of the current display slot.
type Phase int

const (
	// PhaseFirst shows a period's first condition.
	PhaseFirst Phase = iota
	// PhaseThen shows the transition cue.
	PhaseThen
	// PhaseFollowup shows the period's second condition.
	PhaseFollowup
	// PhaseStatic holds a page with no internal transitions (sun page,
	// no-data page, or a period without a followup).
	PhaseStatic
)

// Slot timing. Each cycle slot holds the panel for slotDuration; a
// two-condition period shows the first for firstHold, the cue for
// thenHold, and the followup for the remainder.
const (
	defaultSlotDuration = 10 * time.Second
	firstHold           = 4 * time.Second
	thenHold            = 2 * time.Second
)

// PhaseState is a point-in-time view of the rotation, exposed on the
// settings portal for diagnostics.
type PhaseState struct {
	Phase      Phase     `json:"phase"`
	CycleIndex int       `json:"cycle_index"`
	PhaseStart time.Time `json:"phase_started_at"`
	SlotStart  time.Time `json:"slot_start"`
}

// Scheduler rotates the panel through the sun page and one slot per
// forecast period. Slot zero is always the sun page. The rotation is
// paused while an update swap is in flight so a reboot never interrupts
// a half-painted frame.
type Scheduler struct {
	renderer *Renderer
	snapshot func() *weather.Snapshot
	sun      func() *weather.SunTimes
	busy     func() bool
	clk      *clock.Clock
	logger   *zap.SugaredLogger

	// slotDurations overrides the per-slot hold time; missing entries
	// fall back to defaultSlotDuration.
	slotDurations []time.Duration

	now func() time.Time

	mu         sync.Mutex
	started    bool
	paused     bool
	phase      Phase
	cycleIndex int
	slotStart  time.Time
	phaseStart time.Time
	current    weather.Period
	lastTime   string
	lastDate   string

	cancel context.CancelFunc
}

// NewScheduler wires the rotation to its data sources. busy gates the
// rotation during update swaps.
func NewScheduler(renderer *Renderer, clk *clock.Clock, snapshot func() *weather.Snapshot, sun func() *weather.SunTimes, busy func() bool, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		renderer: renderer,
		snapshot: snapshot,
		sun:      sun,
		busy:     busy,
		clk:      clk,
		logger:   logger,
		now:      time.Now,
	}
}

// State returns the current rotation state.
func (s *Scheduler) State() PhaseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PhaseState{
		Phase:      s.phase,
		CycleIndex: s.cycleIndex,
		PhaseStart: s.phaseStart,
		SlotStart:  s.slotStart,
	}
}

func (s *Scheduler) cycleLength() int {
	if snap := s.snapshot(); snap != nil && len(snap.Periods) > 0 {
		return 1 + len(snap.Periods)
	}
	return 1
}

func (s *Scheduler) slotDuration(index int) time.Duration {
	if index < len(s.slotDurations) && s.slotDurations[index] > 0 {
		return s.slotDurations[index]
	}
	return defaultSlotDuration
}

// Tick advances the rotation. Driven by StartController at a sub-second
// interval; also called directly by tests with a synthetic clock.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if s.busy != nil && s.busy() {
		s.paused = true
		return
	}
	if s.paused {
		// Resume with a fresh slot; the update swap may have taken any
		// amount of time.
		s.paused = false
		s.startSlot(now)
		return
	}

	if !s.started {
		s.started = true
		s.repaintHeader()
		s.startSlot(now)
		return
	}

	s.repaintHeader()

	switch s.phase {
	case PhaseFirst:
		if now.Sub(s.phaseStart) >= firstHold {
			s.renderer.RenderThen()
			s.phase = PhaseThen
			s.phaseStart = now
		}
	case PhaseThen:
		if now.Sub(s.phaseStart) >= thenHold {
			s.renderer.RenderFollowup(s.current)
			s.phase = PhaseFollowup
			s.phaseStart = now
		}
	}

	if now.Sub(s.slotStart) >= s.slotDuration(s.cycleIndex) {
		s.cycleIndex++
		if s.cycleIndex >= s.cycleLength() {
			s.cycleIndex = 0
		}
		s.startSlot(now)
	}
}

// startSlot paints the page for the current cycle index. Callers hold
// the mutex.
func (s *Scheduler) startSlot(now time.Time) {
	s.slotStart = now
	s.phaseStart = now

	if s.cycleIndex == 0 {
		s.renderer.RenderSun(s.localSun())
		s.phase = PhaseStatic
		return
	}

	snap := s.snapshot()
	if snap == nil || s.cycleIndex-1 >= len(snap.Periods) {
		s.renderer.RenderUnavailable()
		s.phase = PhaseStatic
		return
	}

	s.current = snap.Periods[s.cycleIndex-1]
	s.renderer.RenderForecast(s.current)
	if s.current.ThenText != "" {
		s.phase = PhaseFirst
	} else {
		s.phase = PhaseStatic
	}
}

// localSun shifts the engine's UTC sun times into display-local time.
func (s *Scheduler) localSun() *weather.SunTimes {
	sun := s.sun()
	if sun == nil {
		return nil
	}
	return &weather.SunTimes{
		Sunrise: s.clk.At(sun.Sunrise.UTC()),
		Sunset:  s.clk.At(sun.Sunset.UTC()),
	}
}

// repaintHeader redraws time and date only when their text changes.
// Callers hold the mutex.
func (s *Scheduler) repaintHeader() {
	local := s.clk.At(s.now().UTC())
	timeStr := clock.FormatTime(local)
	dateStr := clock.FormatDate(local)

	if timeStr != s.lastTime {
		s.renderer.RenderTime(timeStr)
		s.lastTime = timeStr
	}
	if dateStr != s.lastDate {
		s.renderer.RenderDate(dateStr)
		s.lastDate = dateStr
	}
}

// StartController begins the rotation loop.
func (s *Scheduler) StartController(ctx context.Context, wg *sync.WaitGroup) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop halts the rotation loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
