package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/models"
)

// Writer is the subset of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes ride lifecycle events and driver positions.
type KafkaProducer struct {
	rides     Writer
	locations Writer
	timeout   time.Duration
}

func NewKafkaProducer(brokers []string, rideTopic, locationTopic string) *KafkaProducer {
	return &KafkaProducer{
		rides:     &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: rideTopic, Balancer: &kafka.Hash{}},
		locations: &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: locationTopic, Balancer: &kafka.LeastBytes{}},
		timeout:   2 * time.Second,
	}
}

// PublishRide keys by ride id so one ride's events stay ordered on a partition.
func (k *KafkaProducer) PublishRide(ctx context.Context, ev models.RideEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode ride event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.rides.WriteMessages(ctx, kafka.Message{Key: []byte(ev.RideID), Value: b})
}

func (k *KafkaProducer) PublishLocation(ctx context.Context, d models.Driver) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode driver: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.locations.WriteMessages(ctx, kafka.Message{Key: []byte(d.ID), Value: b})
}

func (k *KafkaProducer) Close() error {
	var first error
	for _, w := range []Writer{k.rides, k.locations} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
