package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-booking/internal/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestPublishRideKeyedByRide(t *testing.T) {
	rides := &fakeWriter{}
	p := &KafkaProducer{rides: rides, locations: &fakeWriter{}, timeout: time.Second}
	ev := models.RideEvent{RideID: "ride-1", Type: models.EventTransition, Phase: models.PhasePickingUp}
	if err := p.PublishRide(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(rides.msgs) != 1 || string(rides.msgs[0].Key) != "ride-1" {
		t.Fatalf("unexpected messages: %+v", rides.msgs)
	}
	var got models.RideEvent
	if err := json.Unmarshal(rides.msgs[0].Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.Phase != models.PhasePickingUp {
		t.Fatalf("payload mismatch: %+v", got)
	}
}

func TestPublishLocationPropagatesError(t *testing.T) {
	boom := errors.New("broker down")
	p := &KafkaProducer{rides: &fakeWriter{}, locations: &fakeWriter{err: boom}, timeout: time.Second}
	if err := p.PublishLocation(context.Background(), models.Driver{ID: "1"}); !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestCloseClosesBothWriters(t *testing.T) {
	a, b := &fakeWriter{}, &fakeWriter{}
	p := &KafkaProducer{rides: a, locations: b}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Fatalf("writers not closed")
	}
}
