package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ride-booking/internal/models"
)

var ErrNotFound = errors.New("ride not found")

// RideStore defines persistence operations for rides.
type RideStore interface {
	SaveRide(ctx context.Context, r *models.RideRequest) error
	UpdateRide(ctx context.Context, r *models.RideRequest) error
	GetRide(ctx context.Context, id string) (*models.RideRequest, error)
}

// MemoryStore keeps private copies so callers never share a record.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.RideRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.RideRequest)}
}

func (m *MemoryStore) SaveRide(_ context.Context, r *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) UpdateRide(_ context.Context, r *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; !ok {
		return ErrNotFound
	}
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) GetRide(_ context.Context, id string) (*models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}
