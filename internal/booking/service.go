// Package booking composes lookup, pricing, driver selection and the ride
// lifecycle into the operations the API exposes.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/fare"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/latency"
	"github.com/example/ride-booking/internal/lifecycle"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/storage"
)

var ErrRideNotFound = errors.New("ride not found")

const DefaultRideType = "standard"

type Directory interface {
	Drivers(ctx context.Context) []models.Driver
	Pick(drivers []models.Driver) (models.Driver, error)
}

type Publisher interface {
	PublishRide(ctx context.Context, ev models.RideEvent) error
}

type Notifier interface {
	Broadcast(ev models.RideEvent)
	CloseRide(rideID string)
}

type Payments interface {
	Hold(ctx context.Context, amount int64, customerID string) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

type Service struct {
	Geocoder  geo.Geocoder
	Estimator *fare.Estimator
	Directory Directory
	Store     storage.RideStore
	Publisher Publisher // optional
	Notifier  Notifier  // optional
	Payments  Payments  // optional
	Sharer    dispatch.Sharer
	Clock     lifecycle.Clock
	Lifecycle lifecycle.Config
	// ProcessingDelay simulates the wait between submit and driver search.
	ProcessingDelay time.Duration
	Logger          *slog.Logger
	NewID           func() string
	Now             func() time.Time

	mu     sync.Mutex
	active map[string]*lifecycle.Tracker
}

// LocationInput is either explicit coordinates or a free-text address to look up.
type LocationInput struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

type QuoteInput struct {
	Pickup   LocationInput `json:"pickup"`
	Dropoff  LocationInput `json:"dropoff"`
	RideType string        `json:"ride_type"`
}

type QuoteResult struct {
	Pickup   models.Location `json:"pickup"`
	Dropoff  models.Location `json:"dropoff"`
	Selected models.Quote    `json:"selected"`
	Options  []models.Quote  `json:"options"`
}

type BookInput struct {
	UserID   string        `json:"user_id"`
	Pickup   LocationInput `json:"pickup"`
	Dropoff  LocationInput `json:"dropoff"`
	RideType string        `json:"ride_type"`
}

func (s *Service) Quote(ctx context.Context, in QuoteInput) (QuoteResult, error) {
	pickup, dropoff, err := s.resolvePair(ctx, in.Pickup, in.Dropoff)
	if err != nil {
		return QuoteResult{}, err
	}
	rideType := orDefault(in.RideType)
	q := s.Estimator.Estimate(pickup, dropoff, rideType)
	observability.QuotesTotal.WithLabelValues(rideType).Inc()
	return QuoteResult{
		Pickup:   pickup,
		Dropoff:  dropoff,
		Selected: q,
		Options:  s.Estimator.EstimateAll(pickup, dropoff),
	}, nil
}

// Book prices the trip, assigns a random driver and starts the lifecycle.
func (s *Service) Book(ctx context.Context, in BookInput) (*models.RideRequest, error) {
	start := time.Now()
	ride, err := s.book(ctx, in)
	observability.BookingLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.BookingsTotal.WithLabelValues("error").Inc()
		s.logger().Error("booking failed", "user_id", in.UserID, "error", err)
		return nil, err
	}
	observability.BookingsTotal.WithLabelValues("ok").Inc()
	return ride, nil
}

func (s *Service) book(ctx context.Context, in BookInput) (*models.RideRequest, error) {
	pickup, dropoff, err := s.resolvePair(ctx, in.Pickup, in.Dropoff)
	if err != nil {
		return nil, err
	}
	rideType := orDefault(in.RideType)
	q := s.Estimator.Estimate(pickup, dropoff, rideType)

	if err := latency.Simulate(ctx, s.ProcessingDelay); err != nil {
		return nil, err
	}
	driver, err := s.Directory.Pick(s.Directory.Drivers(ctx))
	if err != nil {
		return nil, err
	}

	now := s.now()
	ride := &models.RideRequest{
		ID:            s.newID(),
		UserID:        in.UserID,
		Pickup:        pickup,
		Dropoff:       dropoff,
		RideType:      rideType,
		EstimatedFare: q.Fare,
		EstimatedTime: q.ETA,
		Status:        models.StatusPending,
		Phase:         models.PhaseArriving,
		Countdown:     q.ETA,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := ride.AssignDriver(driver); err != nil {
		return nil, err
	}
	if s.Payments != nil {
		if id, err := s.Payments.Hold(ctx, payments.Cents(ride.EstimatedFare), ride.UserID); err != nil {
			s.logger().Warn("payment hold failed", "ride_id", ride.ID, "error", err)
		} else {
			ride.PaymentID = id
		}
	}
	if err := s.Store.SaveRide(ctx, ride); err != nil {
		s.releaseHold(ctx, ride)
		return nil, fmt.Errorf("save ride: %w", err)
	}
	s.emit(ctx, ride, models.EventBooked)

	id := ride.ID
	tr := lifecycle.Start(s.Clock, s.Lifecycle, ride.EstimatedTime, func(snap lifecycle.Snapshot) {
		s.onTransition(id, snap)
	})
	s.mu.Lock()
	if s.active == nil {
		s.active = make(map[string]*lifecycle.Tracker)
	}
	s.active[id] = tr
	s.mu.Unlock()
	observability.ActiveRides.Inc()

	s.logger().Info("ride booked", "ride_id", id, "driver_id", ride.DriverID, "ride_type", rideType, "fare", ride.EstimatedFare, "eta", ride.EstimatedTime)
	return ride.Clone(), nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.RideRequest, error) {
	r, err := s.Store.GetRide(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRideNotFound
	}
	return r, err
}

// Cancel is terminal from any phase but completed/cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*models.RideRequest, error) {
	ride, err := s.finish(ctx, id, (*lifecycle.Tracker).Cancel, func(r *models.RideRequest) error {
		if r.Phase.Terminal() {
			return lifecycle.ErrTerminal
		}
		r.Phase = models.PhaseCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.releaseHold(ctx, ride)
	s.logger().Info("ride cancelled", "ride_id", id)
	return ride, nil
}

func (s *Service) Complete(ctx context.Context, id string) (*models.RideRequest, error) {
	ride, err := s.finish(ctx, id, (*lifecycle.Tracker).Complete, func(r *models.RideRequest) error {
		if r.Phase.Terminal() {
			return lifecycle.ErrTerminal
		}
		if r.Phase != models.PhaseInProgress {
			return lifecycle.ErrInvalidTransition
		}
		r.Phase = models.PhaseCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Payments != nil && ride.PaymentID != "" {
		if err := s.Payments.Capture(ctx, ride.PaymentID); err != nil {
			s.logger().Warn("payment capture failed", "ride_id", id, "payment_id", ride.PaymentID, "error", err)
		}
	}
	s.logger().Info("ride completed", "ride_id", id)
	return ride, nil
}

// finish applies a terminal action. Rides without a live tracker (e.g. loaded
// from Postgres after a restart) are transitioned directly on the record.
func (s *Service) finish(ctx context.Context, id string, viaTracker func(*lifecycle.Tracker) error, direct func(*models.RideRequest) error) (*models.RideRequest, error) {
	s.mu.Lock()
	tr, ok := s.active[id]
	s.mu.Unlock()

	if ok {
		if err := viaTracker(tr); err != nil {
			return nil, err
		}
		s.drop(id)
	} else {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := direct(r); err != nil {
			return nil, err
		}
		r.Status = r.Phase.Status()
		r.UpdatedAt = s.now()
		if err := s.Store.UpdateRide(ctx, r); err != nil {
			return nil, fmt.Errorf("update ride: %w", err)
		}
		observability.RideTransitions.WithLabelValues(string(r.Phase)).Inc()
		s.emit(ctx, r, models.EventTransition)
	}
	if s.Notifier != nil {
		s.Notifier.CloseRide(id)
	}
	return s.Get(ctx, id)
}

// Share sends the active ride's details to a contact.
func (s *Service) Share(ctx context.Context, id, phone string) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Phase.Terminal() {
		return lifecycle.ErrTerminal
	}
	msg := dispatch.ShareMessage{
		RideID:  r.ID,
		Phone:   phone,
		Pickup:  r.Pickup.Address,
		Dropoff: r.Dropoff.Address,
		Status:  string(r.Status),
	}
	if r.Driver != nil {
		msg.DriverName = r.Driver.Name
		msg.CarModel = r.Driver.CarModel
		msg.LicensePlate = r.Driver.LicensePlate
	}
	sharer := s.Sharer
	if sharer == nil {
		sharer = &dispatch.LogSharer{Logger: s.logger()}
	}
	if err := sharer.Share(ctx, msg); err != nil {
		observability.SharesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("share ride: %w", err)
	}
	observability.SharesTotal.WithLabelValues("ok").Inc()
	return nil
}

// releaseHold cancels the fare authorization, if any. Failures are logged.
func (s *Service) releaseHold(ctx context.Context, r *models.RideRequest) {
	if s.Payments == nil || r.PaymentID == "" {
		return
	}
	if err := s.Payments.Cancel(ctx, r.PaymentID); err != nil {
		s.logger().Warn("payment release failed", "ride_id", r.ID, "payment_id", r.PaymentID, "error", err)
	}
}

// Shutdown stops every running tracker without changing ride state.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tr := range s.active {
		tr.Stop()
		delete(s.active, id)
		observability.ActiveRides.Dec()
	}
}

// Active reports how many rides still have timers running.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Service) drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; ok {
		delete(s.active, id)
		observability.ActiveRides.Dec()
	}
}

// onTransition receives one ride's transitions in order, outside the tracker's
// state lock.
func (s *Service) onTransition(id string, snap lifecycle.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := s.Store.GetRide(ctx, id)
	if err != nil {
		s.logger().Error("transition for unknown ride", "ride_id", id, "phase", snap.Phase, "error", err)
		return
	}
	phaseChanged := r.Phase != snap.Phase
	r.Phase = snap.Phase
	r.Countdown = snap.Countdown
	r.Status = snap.Phase.Status()
	r.UpdatedAt = s.now()
	if err := s.Store.UpdateRide(ctx, r); err != nil {
		s.logger().Error("persist transition failed", "ride_id", id, "phase", snap.Phase, "error", err)
	}
	ev := event(r, models.EventTransition, r.UpdatedAt)
	if s.Notifier != nil {
		s.Notifier.Broadcast(ev)
	}
	if !phaseChanged {
		return
	}
	observability.RideTransitions.WithLabelValues(string(snap.Phase)).Inc()
	s.logger().Info("ride transition", "ride_id", id, "phase", snap.Phase, "status", r.Status)
	s.publish(ctx, ev)
}

func (s *Service) emit(ctx context.Context, r *models.RideRequest, typ string) {
	ev := event(r, typ, r.UpdatedAt)
	if s.Notifier != nil {
		s.Notifier.Broadcast(ev)
	}
	s.publish(ctx, ev)
}

func (s *Service) publish(ctx context.Context, ev models.RideEvent) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.PublishRide(ctx, ev); err != nil {
		s.logger().Warn("publish ride event failed", "ride_id", ev.RideID, "type", ev.Type, "error", err)
	}
}

func event(r *models.RideRequest, typ string, at time.Time) models.RideEvent {
	return models.RideEvent{
		RideID:    r.ID,
		Type:      typ,
		Status:    r.Status,
		Phase:     r.Phase,
		Countdown: r.Countdown,
		DriverID:  r.DriverID,
		At:        at,
	}
}

func (s *Service) resolvePair(ctx context.Context, p, d LocationInput) (models.Location, models.Location, error) {
	pickup, err := s.resolve(ctx, p)
	if err != nil {
		return models.Location{}, models.Location{}, fmt.Errorf("resolve pickup: %w", err)
	}
	dropoff, err := s.resolve(ctx, d)
	if err != nil {
		return models.Location{}, models.Location{}, fmt.Errorf("resolve dropoff: %w", err)
	}
	return pickup, dropoff, nil
}

func (s *Service) resolve(ctx context.Context, in LocationInput) (models.Location, error) {
	if in.Latitude != nil && in.Longitude != nil {
		return models.Location{Address: in.Address, Latitude: *in.Latitude, Longitude: *in.Longitude}, nil
	}
	return s.Geocoder.Lookup(ctx, in.Address)
}

func orDefault(rideType string) string {
	if rideType == "" {
		return DefaultRideType
	}
	return rideType
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
