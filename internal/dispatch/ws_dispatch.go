package dispatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// Conn is the part of *websocket.Conn the registry writes through.
type Conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DefaultWriteTimeout bounds one event write to a subscriber.
const DefaultWriteTimeout = 5 * time.Second

// WSSession represents one rider connection watching a ride.
type WSSession struct {
	conn    Conn
	timeout time.Duration
	mu      sync.Mutex
}

// Send writes ev, failing once the write deadline passes so a stalled client
// cannot hold up the ride's other subscribers.
func (s *WSSession) Send(ev models.RideEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(ev)
}

// SendLatest writes the event load returns. The session stays locked while
// loading, so a concurrent broadcast cannot overtake the initial state.
func (s *WSSession) SendLatest(load func() (models.RideEvent, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, err := load()
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(ev)
}

// WSRegistry fans ride events out to the sessions subscribed to each ride.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
	logger   *slog.Logger
	// WriteTimeout applies to sessions added after it is set.
	WriteTimeout time.Duration
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{
		sessions:     make(map[string]map[*WSSession]struct{}),
		logger:       logger,
		WriteTimeout: DefaultWriteTimeout,
	}
}

func (r *WSRegistry) Add(rideID string, conn Conn) *WSSession {
	r.mu.Lock()
	s := &WSSession{conn: conn, timeout: r.WriteTimeout}
	if s.timeout <= 0 {
		s.timeout = DefaultWriteTimeout
	}
	defer r.mu.Unlock()
	if r.sessions[rideID] == nil {
		r.sessions[rideID] = make(map[*WSSession]struct{})
	}
	r.sessions[rideID][s] = struct{}{}
	return s
}

func (r *WSRegistry) Remove(rideID string, s *WSSession) {
	r.mu.Lock()
	set, ok := r.sessions[rideID]
	if ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.sessions, rideID)
		}
	}
	r.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
}

// Broadcast sends ev to every subscriber; a session that fails a write is dropped.
func (r *WSRegistry) Broadcast(ev models.RideEvent) {
	r.mu.RLock()
	targets := make([]*WSSession, 0, len(r.sessions[ev.RideID]))
	for s := range r.sessions[ev.RideID] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()
	for _, s := range targets {
		if err := s.Send(ev); err != nil {
			r.logger.Warn("ws send failed, dropping session", "ride_id", ev.RideID, "error", err)
			r.Remove(ev.RideID, s)
		}
	}
}

// CloseRide disconnects every subscriber of a finished ride.
func (r *WSRegistry) CloseRide(rideID string) {
	r.mu.Lock()
	set := r.sessions[rideID]
	delete(r.sessions, rideID)
	r.mu.Unlock()
	for s := range set {
		_ = s.conn.Close()
	}
}

func (r *WSRegistry) Count(rideID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[rideID])
}
