package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/example/ride-booking/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Migrate applies a SQL file, e.g. migrations/001_create_rides.sql.
func (p *PostgresStore) Migrate(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("apply migration %s: %w", path, err)
	}
	return nil
}

func (p *PostgresStore) SaveRide(ctx context.Context, r *models.RideRequest) error {
	driver, err := driverParam(r.Driver)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO rides(id, user_id, pickup_address, pickup_lat, pickup_lon, dropoff_address, dropoff_lat, dropoff_lon, ride_type, estimated_fare, estimated_time, status, phase, countdown, driver_id, driver, payment_id, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID, r.UserID, r.Pickup.Address, r.Pickup.Latitude, r.Pickup.Longitude, r.Dropoff.Address, r.Dropoff.Latitude, r.Dropoff.Longitude,
		r.RideType, r.EstimatedFare, r.EstimatedTime, string(r.Status), string(r.Phase), r.Countdown, r.DriverID, driver, r.PaymentID, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) UpdateRide(ctx context.Context, r *models.RideRequest) error {
	driver, err := driverParam(r.Driver)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET status=$1, phase=$2, countdown=$3, driver_id=$4, driver=$5, payment_id=$6, updated_at=$7 WHERE id=$8`,
		string(r.Status), string(r.Phase), r.Countdown, r.DriverID, driver, r.PaymentID, r.UpdatedAt, r.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	var (
		r             models.RideRequest
		status, phase string
		driver        []byte
	)
	err := p.db.QueryRowContext(ctx, `SELECT id, user_id, pickup_address, pickup_lat, pickup_lon, dropoff_address, dropoff_lat, dropoff_lon, ride_type, estimated_fare, estimated_time, status, phase, countdown, driver_id, driver, payment_id, created_at, updated_at
		FROM rides WHERE id=$1`, id).Scan(
		&r.ID, &r.UserID, &r.Pickup.Address, &r.Pickup.Latitude, &r.Pickup.Longitude, &r.Dropoff.Address, &r.Dropoff.Latitude, &r.Dropoff.Longitude,
		&r.RideType, &r.EstimatedFare, &r.EstimatedTime, &status, &phase, &r.Countdown, &r.DriverID, &driver, &r.PaymentID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = models.RideStatus(status)
	r.Phase = models.Phase(phase)
	if len(driver) > 0 {
		var d models.Driver
		if err := json.Unmarshal(driver, &d); err != nil {
			return nil, fmt.Errorf("decode driver: %w", err)
		}
		r.Driver = &d
	}
	return &r, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// driverParam encodes the driver for the jsonb column; a nil driver is NULL.
func driverParam(d *models.Driver) (interface{}, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
