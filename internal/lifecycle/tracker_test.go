package lifecycle

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-booking/internal/models"
)

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

func TestCountdownReachesZeroThenPickingUp(t *testing.T) {
	clk := NewManualClock()
	rec := &recorder{}
	tr := Start(clk, DefaultConfig(), 3, rec.listen)

	clk.Advance(time.Second)
	if s := tr.Snapshot(); s.Phase != models.PhaseArriving || s.Countdown != 2 {
		t.Fatalf("after 1s: %+v", s)
	}
	clk.Advance(2 * time.Second)
	if s := tr.Snapshot(); s.Phase != models.PhasePickingUp || s.Countdown != 0 {
		t.Fatalf("after 3s: %+v", s)
	}

	prev := 3
	for _, s := range rec.all() {
		if s.Countdown > prev {
			t.Fatalf("countdown increased: %d -> %d", prev, s.Countdown)
		}
		if s.Phase == models.PhasePickingUp && s.Countdown != 0 {
			t.Fatalf("picking_up with countdown %d", s.Countdown)
		}
		prev = s.Countdown
	}
}

func TestForcedInProgressAfterGrace(t *testing.T) {
	clk := NewManualClock()
	tr := Start(clk, DefaultConfig(), 3, nil)

	clk.Advance(7 * time.Second)
	if s := tr.Snapshot(); s.Phase != models.PhasePickingUp {
		t.Fatalf("before forced timer: %+v", s)
	}
	clk.Advance(time.Second)
	if s := tr.Snapshot(); s.Phase != models.PhaseInProgress {
		t.Fatalf("at E+5s: %+v", s)
	}
	if clk.Pending() != 0 {
		t.Fatalf("timers left armed: %d", clk.Pending())
	}
}

func TestForcedBeatsSlowCountdown(t *testing.T) {
	clk := NewManualClock()
	rec := &recorder{}
	// forced at 2*1s + 0 grace lands together with the second tick and was
	// armed before it, so it fires first and ends the countdown
	tr := Start(clk, Config{Tick: time.Second, Grace: 0}, 2, rec.listen)
	clk.Advance(2 * time.Second)
	if s := tr.Snapshot(); s.Phase != models.PhaseInProgress || s.Countdown != 0 {
		t.Fatalf("unexpected: %+v", s)
	}
	got := rec.all()
	last := got[len(got)-1]
	if last.Phase != models.PhaseInProgress {
		t.Fatalf("phase regressed after in_progress: %+v", got)
	}
}

func TestForcedFiresWhileArriving(t *testing.T) {
	clk := NewManualClock()
	tr := Start(clk, Config{Tick: time.Second, Grace: 0}, 5, nil)
	// stall the countdown by stopping its timer out of band
	tr.mu.Lock()
	tr.tick.Stop()
	tr.mu.Unlock()
	clk.Advance(5 * time.Second)
	if s := tr.Snapshot(); s.Phase != models.PhaseInProgress || s.Countdown != 0 {
		t.Fatalf("forced transition did not win: %+v", s)
	}
	clk.Advance(10 * time.Second)
	if s := tr.Snapshot(); s.Phase != models.PhaseInProgress {
		t.Fatalf("phase regressed: %+v", s)
	}
}

func TestZeroEstimatePicksUpOnFirstTick(t *testing.T) {
	clk := NewManualClock()
	tr := Start(clk, DefaultConfig(), 0, nil)
	if s := tr.Snapshot(); s.Phase != models.PhaseArriving || s.Countdown != 0 {
		t.Fatalf("initial: %+v", s)
	}
	clk.Advance(time.Second)
	if s := tr.Snapshot(); s.Phase != models.PhasePickingUp {
		t.Fatalf("after first tick: %+v", s)
	}
}

func TestCancelIsTerminal(t *testing.T) {
	clk := NewManualClock()
	rec := &recorder{}
	tr := Start(clk, DefaultConfig(), 5, rec.listen)
	clk.Advance(2 * time.Second)
	if err := tr.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if clk.Pending() != 0 {
		t.Fatalf("cancel left %d timers armed", clk.Pending())
	}
	n := len(rec.all())
	clk.Advance(time.Hour)
	if s := tr.Snapshot(); s.Phase != models.PhaseCancelled {
		t.Fatalf("phase changed after cancel: %+v", s)
	}
	if len(rec.all()) != n {
		t.Fatalf("transitions after cancel: %+v", rec.all()[n:])
	}
	if err := tr.Cancel(); !errors.Is(err, ErrTerminal) {
		t.Fatalf("second cancel: %v", err)
	}
	if err := tr.Complete(); !errors.Is(err, ErrTerminal) {
		t.Fatalf("complete after cancel: %v", err)
	}
}

func TestCancelDuringInProgress(t *testing.T) {
	clk := NewManualClock()
	tr := Start(clk, DefaultConfig(), 1, nil)
	clk.Advance(6 * time.Second)
	if err := tr.Cancel(); err != nil {
		t.Fatalf("cancel in progress: %v", err)
	}
	if s := tr.Snapshot(); s.Phase != models.PhaseCancelled {
		t.Fatalf("unexpected: %+v", s)
	}
}

func TestCompleteOnlyFromInProgress(t *testing.T) {
	clk := NewManualClock()
	tr := Start(clk, DefaultConfig(), 2, nil)
	if err := tr.Complete(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete while arriving: %v", err)
	}
	clk.Advance(7 * time.Second)
	if err := tr.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if s := tr.Snapshot(); s.Phase != models.PhaseCompleted {
		t.Fatalf("unexpected: %+v", s)
	}
}

func TestStopClearsTimersWithoutTransition(t *testing.T) {
	clk := NewManualClock()
	tr := Start(clk, DefaultConfig(), 4, nil)
	tr.Stop()
	if clk.Pending() != 0 {
		t.Fatalf("stop left timers armed")
	}
	clk.Advance(time.Minute)
	if s := tr.Snapshot(); s.Phase != models.PhaseArriving || s.Countdown != 4 {
		t.Fatalf("state changed after stop: %+v", s)
	}
}

func TestRealClockDrivesTransitions(t *testing.T) {
	done := make(chan struct{})
	var once sync.Once
	Start(RealClock(), Config{Tick: time.Millisecond, Grace: time.Millisecond}, 2, func(s Snapshot) {
		if s.Phase == models.PhaseInProgress {
			once.Do(func() { close(done) })
		}
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("ride never reached in_progress")
	}
}

func TestListenerRunsOutsideStateLock(t *testing.T) {
	clk := NewManualClock()
	var tr *Tracker
	var seen []Snapshot
	tr = Start(clk, DefaultConfig(), 2, func(s Snapshot) {
		seen = append(seen, tr.Snapshot())
	})
	clk.Advance(2 * time.Second)
	if len(seen) != 2 || seen[1].Phase != models.PhasePickingUp {
		t.Fatalf("unexpected deliveries: %+v", seen)
	}
}

func TestSlowListenerDoesNotBlockSnapshot(t *testing.T) {
	clk := NewManualClock()
	entered := make(chan struct{})
	release := make(chan struct{})
	tr := Start(clk, DefaultConfig(), 5, func(Snapshot) {
		close(entered)
		<-release
	})
	done := make(chan struct{})
	go func() {
		clk.Advance(time.Second)
		close(done)
	}()
	<-entered

	got := make(chan Snapshot, 1)
	go func() { got <- tr.Snapshot() }()
	select {
	case s := <-got:
		if s.Countdown != 4 {
			t.Fatalf("unexpected snapshot: %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatalf("Snapshot blocked behind listener")
	}
	close(release)
	<-done
}
