package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesTotal        = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_booking", Name: "quotes_total", Help: "Fare quotes computed"}, []string{"ride_type"})
	BookingsTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_booking", Name: "bookings_total", Help: "Ride booking attempts by result"}, []string{"result"})
	BookingLatency     = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_booking", Name: "booking_latency_seconds", Help: "Time to book a ride, including simulated delays"})
	RideTransitions    = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_booking", Name: "ride_transitions_total", Help: "Lifecycle transitions by phase"}, []string{"phase"})
	ActiveRides        = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_booking", Name: "active_rides", Help: "Rides with a running lifecycle tracker"})
	DirectoryFallbacks = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "directory_fallbacks_total", Help: "Driver directory calls served from mock data"})
	DriverUpdates      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_booking", Name: "driver_location_updates_total", Help: "Driver location updates received"})
	SharesTotal        = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_booking", Name: "ride_shares_total", Help: "Ride detail shares by result"}, []string{"result"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_booking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_booking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
