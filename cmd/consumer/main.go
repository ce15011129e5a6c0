package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/config"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/latency"
	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/models"
)

var (
	msgsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_booking",
		Name:      "consumer_messages_consumed_total",
		Help:      "Driver location messages consumed",
	})
	msgsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_booking",
		Name:      "consumer_messages_invalid_total",
		Help:      "Driver location messages that failed to decode",
	})
	redisUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_booking",
		Name:      "consumer_redis_updates_total",
		Help:      "Successful driver position writes",
	})
	redisErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_booking",
		Name:      "consumer_redis_errors_total",
		Help:      "Driver position writes that failed after retries",
	})
)

func main() {
	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger("ride-booking-consumer", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve prometheus metrics on")
	flag.Parse()

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	w := &writer{
		rc:       &redisAdapter{c: rc},
		geoKey:   cfg.RedisGeoKey,
		attempts: cfg.Attempts,
		delay:    cfg.RetryDelay,
		logger:   logger,
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer started", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read failed", "error", err, "backoff", backoff)
			if latency.Simulate(ctx, backoff) != nil {
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		w.handle(ctx, m.Value)
	}
}

// RedisUpdater is the subset of redis the consumer writes through.
type RedisUpdater interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	_, err := r.c.GeoAdd(ctx, key, loc).Result()
	return err
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

type writer struct {
	rc       RedisUpdater
	geoKey   string
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

var errMissingID = errors.New("driver id is required")

// handle decodes one driver-locations message and stores the position.
// Bad messages and exhausted retries are logged and skipped.
func (w *writer) handle(ctx context.Context, value []byte) {
	msgsConsumed.Inc()
	var d models.Driver
	err := json.Unmarshal(value, &d)
	if err == nil && d.ID == "" {
		err = errMissingID
	}
	if err != nil {
		msgsInvalid.Inc()
		w.logger.Warn("invalid driver location message", "error", err)
		return
	}
	if err := updateRedisWithRetry(ctx, w.rc, w.geoKey, &d, w.attempts, w.delay); err != nil {
		redisErrors.Inc()
		w.logger.Error("redis update failed", "driver_id", d.ID, "error", err)
		return
	}
	redisUpdates.Inc()
}

// updateRedisWithRetry writes the position and metadata hash, doubling delay
// between attempts.
func updateRedisWithRetry(ctx context.Context, rc RedisUpdater, key string, d *models.Driver, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if serr := latency.Simulate(ctx, delay); serr != nil {
				return serr
			}
			delay *= 2
		}
		err = rc.GeoAdd(ctx, key, &redis.GeoLocation{Longitude: d.Location.Longitude, Latitude: d.Location.Latitude, Name: d.ID})
		if err != nil {
			continue
		}
		err = rc.HSet(ctx, geo.MetaKey(d.ID), geo.MetaFields(*d))
		if err == nil {
			return nil
		}
	}
	return err
}
