package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ShareMessage is what a rider's contact receives about an active ride.
type ShareMessage struct {
	RideID       string `json:"ride_id"`
	Phone        string `json:"phone"`
	DriverName   string `json:"driver_name"`
	CarModel     string `json:"car_model"`
	LicensePlate string `json:"license_plate"`
	Pickup       string `json:"pickup"`
	Dropoff      string `json:"dropoff"`
	Status       string `json:"status"`
}

func (m ShareMessage) Text() string {
	return fmt.Sprintf("I'm riding with %s (%s, %s) from %s to %s. Ride %s is %s.",
		m.DriverName, m.CarModel, m.LicensePlate, m.Pickup, m.Dropoff, m.RideID, m.Status)
}

// Sharer delivers ride details to a third party (SMS gateway, webhook, ...).
type Sharer interface {
	Share(ctx context.Context, msg ShareMessage) error
}

// WebhookSharer posts the message as JSON to an SMS/notification gateway.
type WebhookSharer struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewWebhookSharer(endpoint, key string) *WebhookSharer {
	return &WebhookSharer{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (w *WebhookSharer) Share(ctx context.Context, msg ShareMessage) error {
	body := map[string]interface{}{"to": msg.Phone, "text": msg.Text(), "ride": msg}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Key != "" {
		req.Header.Set("Authorization", "Bearer "+w.Key)
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("share webhook status %d", resp.StatusCode)
	}
	return nil
}

// LogSharer only records the share; used when no gateway is configured.
type LogSharer struct {
	Logger *slog.Logger
}

func (l *LogSharer) Share(_ context.Context, msg ShareMessage) error {
	l.Logger.Info("ride details shared", "ride_id", msg.RideID, "phone", msg.Phone, "text", msg.Text())
	return nil
}
