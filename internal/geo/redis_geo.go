package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-booking/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands.
type RedisGeo struct {
	client *redis.Client
	key    string
	radius float64
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedisGeoWithClient(c, key)
}

func NewRedisGeoWithClient(c *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: c, key: key, radius: 10000}
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.Driver) error {
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Location.Longitude, Latitude: d.Location.Latitude, Name: d.ID}).Err(); err != nil {
		return fmt.Errorf("geoadd %s: %w", d.ID, err)
	}
	if err := r.client.HSet(ctx, MetaKey(d.ID), MetaFields(d)).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", d.ID, err)
	}
	return nil
}

func (r *RedisGeo) Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.Driver, error) {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{Radius: r.radius, Unit: "m", WithCoord: true, Count: limit, Sort: "ASC"}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius: %w", err)
	}
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall %s: %w", g.Name, err)
		}
		d := driverFromMeta(g.Name, m)
		if !d.IsAvailable {
			continue
		}
		d.Location.Latitude = g.Latitude
		d.Location.Longitude = g.Longitude
		out = append(out, d)
	}
	return out, nil
}

func (r *RedisGeo) Close() error { return r.client.Close() }

func MetaKey(id string) string { return "driver:meta:" + id }

// MetaFields is the hash layout shared with the location consumer.
func MetaFields(d models.Driver) map[string]interface{} {
	return map[string]interface{}{
		"name":          d.Name,
		"rating":        strconv.FormatFloat(d.Rating, 'f', -1, 64),
		"car_model":     d.CarModel,
		"license_plate": d.LicensePlate,
		"photo":         d.Photo,
		"address":       d.Location.Address,
		"available":     strconv.FormatBool(d.IsAvailable),
		"updated":       time.Now().UTC().Format(time.RFC3339),
	}
}

func driverFromMeta(id string, m map[string]string) models.Driver {
	d := models.Driver{
		ID:           id,
		Name:         m["name"],
		CarModel:     m["car_model"],
		LicensePlate: m["license_plate"],
		Photo:        m["photo"],
		Location:     models.Location{Address: m["address"]},
		IsAvailable:  m["available"] == "true",
	}
	if f, err := strconv.ParseFloat(m["rating"], 64); err == nil {
		d.Rating = f
	}
	return d
}
