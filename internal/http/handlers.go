package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/fare"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/lifecycle"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

type DriverLister interface {
	Drivers(ctx context.Context) []models.Driver
}

type LocationPublisher interface {
	PublishLocation(ctx context.Context, d models.Driver) error
}

type Options struct {
	Booking     *booking.Service
	Directory   DriverLister
	Geo         geo.Geo
	Locations   LocationPublisher // optional
	WSReg       *dispatch.WSRegistry
	NearbyLimit int
	Logger      *slog.Logger
}

type Server struct {
	Booking     *booking.Service
	Directory   DriverLister
	Geo         geo.Geo
	Locations   LocationPublisher
	WSReg       *dispatch.WSRegistry
	nearbyLimit int
	validate    *validator.Validate
	logger      *slog.Logger
	mux         *mux.Router
}

func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.NearbyLimit <= 0 {
		o.NearbyLimit = 8
	}
	if o.WSReg == nil {
		o.WSReg = dispatch.NewWSRegistry(o.Logger)
	}
	s := &Server{
		Booking:     o.Booking,
		Directory:   o.Directory,
		Geo:         o.Geo,
		Locations:   o.Locations,
		WSReg:       o.WSReg,
		nearbyLimit: o.NearbyLimit,
		validate:    validator.New(),
		logger:      o.Logger,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/ride-options", s.handleRideOptions).Methods("GET")
	s.mux.HandleFunc("/quotes", s.handleQuote).Methods("POST")
	s.mux.HandleFunc("/drivers", s.handleDrivers).Methods("GET")
	s.mux.HandleFunc("/drivers/nearby", s.handleNearby).Methods("GET")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")

	s.mux.HandleFunc("/rides", s.handleBook).Methods("POST")
	s.mux.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/rides/{id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/rides/{id}/complete", s.handleComplete).Methods("POST")
	s.mux.HandleFunc("/rides/{id}/share", s.handleShare).Methods("POST")
	s.mux.HandleFunc("/ws/rides/{id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleRideOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, fare.Options())
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var in booking.QuoteInput
	if !s.decode(w, r, &in) {
		return
	}
	res, err := s.Booking.Quote(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err, "error estimating fare")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Directory.Drivers(r.Context()))
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err := errors.Join(err1, err2); err != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required numbers")
		return
	}
	if s.validate.Var(lat, "latitude") != nil || s.validate.Var(lon, "longitude") != nil {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	limit := s.nearbyLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	drivers, err := s.Geo.Nearby(r.Context(), lat, lon, limit)
	if err != nil {
		s.logger.Error("nearby lookup failed", "error", err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusServiceUnavailable, "driver positions unavailable")
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := errors.Join(
		s.validate.Var(d.ID, "required"),
		s.validate.Var(d.Location.Latitude, "latitude"),
		s.validate.Var(d.Location.Longitude, "longitude"),
	); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.Locations != nil {
		if err := s.Locations.PublishLocation(r.Context(), d); err != nil {
			s.logger.Warn("publish driver location failed", "driver_id", d.ID, "error", err)
		}
	}
	if err := s.Geo.Upsert(r.Context(), d); err != nil {
		s.logger.Error("driver upsert failed", "driver_id", d.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "driver positions unavailable")
		return
	}
	observability.DriverUpdates.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var in booking.BookInput
	if !s.decode(w, r, &in) {
		return
	}
	ride, err := s.Booking.Book(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err, "error booking ride, please try again later")
		return
	}
	resp := map[string]any{"ride": ride}
	if ride.Driver != nil {
		resp["message"] = fmt.Sprintf("%s is on the way to pick you up.", ride.Driver.Name)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Booking.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err, "error loading ride")
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Booking.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err, "error cancelling ride")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride": ride, "message": "Your ride has been cancelled successfully."})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Booking.Complete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err, "error completing ride")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride": ride})
}

type shareRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var in shareRequest
	if !s.decode(w, r, &in) {
		return
	}
	if err := s.Booking.Share(r.Context(), mux.Vars(r)["id"], in.Phone); err != nil {
		s.writeServiceError(w, r, err, "error sharing ride details")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Ride details have been sent to " + in.Phone})
}

var upgrader = websocket.Upgrader{}

// handleWS streams RideEvents for one ride until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.Booking.Get(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err, "error loading ride")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := s.WSReg.Add(id, conn)
	// Reload after registering: a ride that finished in between has already
	// had its subscribers closed and will send nothing more.
	var finished bool
	err = sess.SendLatest(func() (models.RideEvent, error) {
		ride, err := s.Booking.Get(r.Context(), id)
		if err != nil {
			return models.RideEvent{}, err
		}
		finished = ride.Phase.Terminal()
		return models.RideEvent{
			RideID:    ride.ID,
			Type:      models.EventTransition,
			Status:    ride.Status,
			Phase:     ride.Phase,
			Countdown: ride.Countdown,
			DriverID:  ride.DriverID,
			At:        ride.UpdatedAt,
		}, nil
	})
	if err != nil || finished {
		s.WSReg.Remove(id, sess)
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.WSReg.Remove(id, sess)
			return
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrRideNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrTerminal), errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(fallback, "error", err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
