package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/config"
	"github.com/example/ride-booking/internal/directory"
	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/events"
	"github.com/example/ride-booking/internal/fare"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/lifecycle"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/storage"
)

// NewServerFromConfig wires every backend the config enables and falls back
// to in-memory implementations for the rest. The returned cleanup closes
// whatever was opened.
func NewServerFromConfig(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*Server, func() error, error) {
	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var g geo.Geo
	if cfg.RedisAddr != "" {
		rg := geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		closers = append(closers, rg.Close)
		g = rg
	} else {
		g = geo.NewIndex()
	}
	for _, d := range directory.MockDrivers() {
		if err := g.Upsert(ctx, d); err != nil {
			logger.Warn("seed driver position failed", "driver_id", d.ID, "error", err)
		}
	}

	var store storage.RideStore = storage.NewMemoryStore()
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open ride store: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx, cfg.MigrationPath); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migration applied", "path", cfg.MigrationPath)
		}
		store = pg
	}

	reg := dispatch.NewWSRegistry(logger)
	svc := &booking.Service{
		Geocoder: geo.NewStubGeocoder(
			models.Location{Latitude: cfg.OriginLat, Longitude: cfg.OriginLon},
			cfg.LookupSpread, cfg.LookupDelay, rand.New(rand.NewSource(seed)),
		),
		Estimator:       &fare.Estimator{Cache: fare.NewCache(cfg.QuoteCacheTTL)},
		Store:           store,
		Notifier:        reg,
		Clock:           lifecycle.RealClock(),
		Lifecycle:       lifecycle.Config{Tick: cfg.RideTick, Grace: cfg.RideGrace},
		ProcessingDelay: cfg.ProcessingDelay,
		Logger:          logger,
	}
	dir := directory.New(cfg.DriversAPIURL, cfg.DirectoryDelay, rand.New(rand.NewSource(seed+1)), logger)
	svc.Directory = dir

	var locations LocationPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaRideTopic, cfg.KafkaLocationTopic)
		closers = append(closers, kp.Close)
		svc.Publisher = kp
		locations = kp
	}
	if cfg.StripeAPIKey != "" {
		svc.Payments = payments.NewStripeClient(cfg.StripeAPIKey, cfg.PaymentCurrency)
	}
	if cfg.ShareWebhookURL != "" {
		svc.Sharer = dispatch.NewWebhookSharer(cfg.ShareWebhookURL, cfg.ShareWebhookKey)
	} else {
		svc.Sharer = &dispatch.LogSharer{Logger: logger}
	}

	srv := NewServer(Options{
		Booking:     svc,
		Directory:   dir,
		Geo:         g,
		Locations:   locations,
		WSReg:       reg,
		NearbyLimit: cfg.NearbyLimit,
		Logger:      logger,
	})
	return srv, cleanup, nil
}
