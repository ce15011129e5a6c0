package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-booking/internal/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := &models.RideRequest{ID: "r1", Status: models.StatusPending}
	if err := s.SaveRide(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Status = models.StatusAccepted // caller mutation must not leak in
	got, err := s.GetRide(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPending {
		t.Fatalf("store aliased caller record: %s", got.Status)
	}
	if err := s.UpdateRide(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetRide(ctx, "r1")
	if got.Status != models.StatusAccepted {
		t.Fatalf("update lost: %s", got.Status)
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.GetRide(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: %v", err)
	}
	if err := s.UpdateRide(ctx, &models.RideRequest{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update: %v", err)
	}
}

func TestDriverParam(t *testing.T) {
	v, err := driverParam(nil)
	if err != nil || v != nil {
		t.Fatalf("expected NULL param, got %v %v", v, err)
	}
	v, err = driverParam(&models.Driver{ID: "1", Name: "John Smith"})
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := v.(string); !ok || s == "" {
		t.Fatalf("expected json string, got %#v", v)
	}
}
