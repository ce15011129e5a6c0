// Package lifecycle drives a booked ride through its rider-facing phases.
//
// A Tracker owns two timers: a recurring tick that counts the arrival
// estimate down to zero and moves the ride to picking_up, and a one-shot
// timer at estimate*tick+grace that forces in_progress. Phases only move
// forward; cancel and complete are terminal.
package lifecycle

import (
	"errors"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

var (
	ErrTerminal          = errors.New("ride already finished")
	ErrInvalidTransition = errors.New("invalid ride transition")
)

type Config struct {
	Tick  time.Duration
	Grace time.Duration
}

func DefaultConfig() Config { return Config{Tick: time.Second, Grace: 5 * time.Second} }

type Snapshot struct {
	Phase     models.Phase
	Countdown int
}

// Listener receives every transition in order. It runs without the tracker
// state lock held, so it may call Snapshot, but deliveries for one Tracker
// never overlap.
type Listener func(Snapshot)

type Tracker struct {
	mu        sync.Mutex
	clock     Clock
	cfg       Config
	phase     models.Phase
	countdown int
	tick      Timer
	forced    Timer
	stopped   bool
	pending   []Snapshot

	deliver  sync.Mutex
	onChange Listener
}

// Start begins the countdown from estimated and arms the forced transition.
func Start(clock Clock, cfg Config, estimated int, onChange Listener) *Tracker {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig().Tick
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if estimated < 0 {
		estimated = 0
	}
	t := &Tracker{
		clock:     clock,
		cfg:       cfg,
		phase:     models.PhaseArriving,
		countdown: estimated,
		onChange:  onChange,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick = clock.AfterFunc(cfg.Tick, t.onTick)
	t.forced = clock.AfterFunc(time.Duration(estimated)*cfg.Tick+cfg.Grace, t.onForced)
	return t
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// Cancel ends the ride from any non-terminal phase and clears both timers.
// The cancelled snapshot has been delivered when Cancel returns.
func (t *Tracker) Cancel() error {
	t.mu.Lock()
	if t.phase.Terminal() {
		t.mu.Unlock()
		return ErrTerminal
	}
	t.stopTimers()
	t.phase = models.PhaseCancelled
	t.notify()
	t.mu.Unlock()
	t.flush()
	return nil
}

// Complete finishes a ride that is in progress.
func (t *Tracker) Complete() error {
	t.mu.Lock()
	if t.phase.Terminal() {
		t.mu.Unlock()
		return ErrTerminal
	}
	if t.phase != models.PhaseInProgress {
		t.mu.Unlock()
		return ErrInvalidTransition
	}
	t.stopTimers()
	t.phase = models.PhaseCompleted
	t.notify()
	t.mu.Unlock()
	t.flush()
	return nil
}

// Stop releases the timers without changing the phase.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimers()
}

func (t *Tracker) onTick() {
	t.mu.Lock()
	if t.stopped || t.phase != models.PhaseArriving {
		t.mu.Unlock()
		return
	}
	if t.countdown <= 1 {
		t.countdown = 0
		t.phase = models.PhasePickingUp
		t.tick = nil
	} else {
		t.countdown--
		t.tick = t.clock.AfterFunc(t.cfg.Tick, t.onTick)
	}
	t.notify()
	t.mu.Unlock()
	t.flush()
}

func (t *Tracker) onForced() {
	t.mu.Lock()
	t.forced = nil
	if t.stopped || t.phase.Terminal() || t.phase == models.PhaseInProgress {
		t.mu.Unlock()
		return
	}
	if t.tick != nil {
		t.tick.Stop()
		t.tick = nil
	}
	t.countdown = 0
	t.phase = models.PhaseInProgress
	t.notify()
	t.mu.Unlock()
	t.flush()
}

func (t *Tracker) stopTimers() {
	t.stopped = true
	if t.tick != nil {
		t.tick.Stop()
		t.tick = nil
	}
	if t.forced != nil {
		t.forced.Stop()
		t.forced = nil
	}
}

func (t *Tracker) snapshot() Snapshot { return Snapshot{Phase: t.phase, Countdown: t.countdown} }

// notify queues the current snapshot; callers hold t.mu.
func (t *Tracker) notify() {
	if t.onChange != nil {
		t.pending = append(t.pending, t.snapshot())
	}
}

// flush delivers queued snapshots in order. Whoever holds deliver drains the
// queue, so a snapshot queued before flush is called is delivered by the
// time flush returns.
func (t *Tracker) flush() {
	t.deliver.Lock()
	defer t.deliver.Unlock()
	for {
		t.mu.Lock()
		if len(t.pending) == 0 {
			t.mu.Unlock()
			return
		}
		snap := t.pending[0]
		t.pending = t.pending[1:]
		t.mu.Unlock()
		t.onChange(snap)
	}
}
