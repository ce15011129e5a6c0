package models

import (
	"errors"
	"testing"
)

func TestAssignDriverOnlyOnce(t *testing.T) {
	r := &RideRequest{ID: "r1", Status: StatusPending}
	if err := r.AssignDriver(Driver{ID: "1", Name: "John Smith"}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if r.Status != StatusAccepted || r.DriverID != "1" {
		t.Fatalf("unexpected ride after assign: %+v", r)
	}
	err := r.AssignDriver(Driver{ID: "2"})
	if !errors.Is(err, ErrDriverAssigned) {
		t.Fatalf("expected ErrDriverAssigned, got %v", err)
	}
	if r.DriverID != "1" || r.Driver.ID != "1" {
		t.Fatalf("driver replaced: %+v", r.Driver)
	}
}

func TestCloneDoesNotShareDriver(t *testing.T) {
	r := &RideRequest{ID: "r1"}
	_ = r.AssignDriver(Driver{ID: "1", Name: "John Smith"})
	c := r.Clone()
	c.Driver.Name = "changed"
	if r.Driver.Name != "John Smith" {
		t.Fatalf("clone aliases driver")
	}
}

func TestPhaseStatus(t *testing.T) {
	cases := map[Phase]RideStatus{
		PhaseArriving:   StatusAccepted,
		PhasePickingUp:  StatusAccepted,
		PhaseInProgress: StatusInProgress,
		PhaseCompleted:  StatusCompleted,
		PhaseCancelled:  StatusCancelled,
	}
	for p, want := range cases {
		if got := p.Status(); got != want {
			t.Errorf("%s: got %s want %s", p, got, want)
		}
	}
	if PhaseArriving.Terminal() || !PhaseCancelled.Terminal() {
		t.Fatalf("terminal mismatch")
	}
}
