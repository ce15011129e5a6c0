package models

import (
	"errors"
	"time"
)

type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RideOption is a service tier. The catalog lives in the fare package.
type RideOption struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Multiplier    float64 `json:"multiplier"`
	EstimatedTime int     `json:"estimated_time"` // baseline minutes
	Icon          string  `json:"icon"`
}

type Driver struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Rating       float64  `json:"rating"` // 0..5
	CarModel     string   `json:"car_model"`
	LicensePlate string   `json:"license_plate"`
	Photo        string   `json:"photo"`
	Location     Location `json:"location"`
	IsAvailable  bool     `json:"is_available"`
}

type Quote struct {
	RideType string  `json:"ride_type"`
	Distance float64 `json:"distance_miles"`
	Fare     float64 `json:"fare"`
	ETA      int     `json:"eta_minutes"`
}

type RideStatus string

const (
	StatusPending    RideStatus = "pending"
	StatusAccepted   RideStatus = "accepted"
	StatusInProgress RideStatus = "in-progress"
	StatusCompleted  RideStatus = "completed"
	StatusCancelled  RideStatus = "cancelled"
)

// Phase is the rider-facing lifecycle state driven by the simulator.
type Phase string

const (
	PhaseArriving   Phase = "arriving"
	PhasePickingUp  Phase = "picking_up"
	PhaseInProgress Phase = "in_progress"
	PhaseCompleted  Phase = "completed"
	PhaseCancelled  Phase = "cancelled"
)

// Status maps a lifecycle phase onto the coarser ride status.
func (p Phase) Status() RideStatus {
	switch p {
	case PhaseInProgress:
		return StatusInProgress
	case PhaseCompleted:
		return StatusCompleted
	case PhaseCancelled:
		return StatusCancelled
	default:
		return StatusAccepted
	}
}

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool { return p == PhaseCompleted || p == PhaseCancelled }

var ErrDriverAssigned = errors.New("ride already has a driver")

type RideRequest struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Pickup        Location   `json:"pickup_location"`
	Dropoff       Location   `json:"dropoff_location"`
	RideType      string     `json:"ride_type"`
	EstimatedFare float64    `json:"estimated_fare"`
	EstimatedTime int        `json:"estimated_time"`
	Status        RideStatus `json:"status"`
	Phase         Phase      `json:"phase,omitempty"`
	Countdown     int        `json:"arrival_countdown"`
	DriverID      string     `json:"driver_id,omitempty"`
	Driver        *Driver    `json:"driver,omitempty"`
	PaymentID     string     `json:"payment_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AssignDriver binds d to the ride. A ride gets exactly one driver.
func (r *RideRequest) AssignDriver(d Driver) error {
	if r.DriverID != "" {
		return ErrDriverAssigned
	}
	r.DriverID = d.ID
	r.Driver = &d
	r.Status = StatusAccepted
	return nil
}

// Clone returns a copy that shares no pointers with r.
func (r *RideRequest) Clone() *RideRequest {
	c := *r
	if r.Driver != nil {
		d := *r.Driver
		c.Driver = &d
	}
	return &c
}

const (
	EventBooked     = "ride.booked"
	EventTransition = "ride.status"
)

type RideEvent struct {
	RideID    string     `json:"ride_id"`
	Type      string     `json:"type"`
	Status    RideStatus `json:"status"`
	Phase     Phase      `json:"phase"`
	Countdown int        `json:"arrival_countdown"`
	DriverID  string     `json:"driver_id,omitempty"`
	At        time.Time  `json:"at"`
}
