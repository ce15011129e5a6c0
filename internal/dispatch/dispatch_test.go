package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-booking/internal/models"
)

type fakeConn struct {
	mu       sync.Mutex
	got      []models.RideEvent
	err      error
	closed   bool
	deadline time.Time
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	f.deadline = t
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, v.(models.RideEvent))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestBroadcastOnlyToRideSubscribers(t *testing.T) {
	reg := NewWSRegistry(nil)
	a, b, other := &fakeConn{}, &fakeConn{}, &fakeConn{}
	reg.Add("r1", a)
	reg.Add("r1", b)
	reg.Add("r2", other)

	reg.Broadcast(models.RideEvent{RideID: "r1", Phase: models.PhaseArriving, Countdown: 4})
	if len(a.got) != 1 || len(b.got) != 1 || len(other.got) != 0 {
		t.Fatalf("fan-out mismatch: a=%d b=%d other=%d", len(a.got), len(b.got), len(other.got))
	}
}

func TestBroadcastDropsFailedSession(t *testing.T) {
	reg := NewWSRegistry(nil)
	bad := &fakeConn{err: errors.New("broken pipe")}
	reg.Add("r1", bad)
	reg.Add("r1", &fakeConn{})
	reg.Broadcast(models.RideEvent{RideID: "r1"})
	if reg.Count("r1") != 1 {
		t.Fatalf("expected failed session dropped, have %d", reg.Count("r1"))
	}
	if !bad.closed {
		t.Fatalf("failed session not closed")
	}
}

func TestCloseRide(t *testing.T) {
	reg := NewWSRegistry(nil)
	c := &fakeConn{}
	reg.Add("r1", c)
	reg.CloseRide("r1")
	if !c.closed || reg.Count("r1") != 0 {
		t.Fatalf("ride sessions not closed")
	}
}

func TestWebhookSharerPostsMessage(t *testing.T) {
	var body map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSharer(srv.URL, "secret")
	msg := ShareMessage{RideID: "r1", Phone: "+15551234567", DriverName: "Maria Rodriguez", Pickup: "A", Dropoff: "B", Status: "accepted"}
	if err := s.Share(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer secret" || body["to"] != "+15551234567" {
		t.Fatalf("unexpected request: auth=%q body=%v", auth, body)
	}
}

func TestWebhookSharerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	if err := NewWebhookSharer(srv.URL, "").Share(context.Background(), ShareMessage{}); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestSendSetsWriteDeadline(t *testing.T) {
	reg := NewWSRegistry(nil)
	reg.WriteTimeout = 50 * time.Millisecond
	c := &fakeConn{}
	sess := reg.Add("r1", c)
	before := time.Now()
	if err := sess.Send(models.RideEvent{RideID: "r1"}); err != nil {
		t.Fatal(err)
	}
	if c.deadline.Before(before.Add(50*time.Millisecond)) || c.deadline.After(time.Now().Add(50*time.Millisecond)) {
		t.Fatalf("unexpected deadline %v", c.deadline.Sub(before))
	}
}

func TestSendLatestHoldsSessionUntilWritten(t *testing.T) {
	reg := NewWSRegistry(nil)
	c := &fakeConn{}
	sess := reg.Add("r1", c)

	loading := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- sess.SendLatest(func() (models.RideEvent, error) {
			close(loading)
			<-proceed
			return models.RideEvent{RideID: "r1", Countdown: 5}, nil
		})
	}()
	<-loading
	broadcast := make(chan struct{})
	go func() {
		reg.Broadcast(models.RideEvent{RideID: "r1", Countdown: 4})
		close(broadcast)
	}()
	close(proceed)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	<-broadcast
	if len(c.got) != 2 || c.got[0].Countdown != 5 || c.got[1].Countdown != 4 {
		t.Fatalf("initial state overtaken: %+v", c.got)
	}
}

func TestSendLatestPropagatesLoadError(t *testing.T) {
	reg := NewWSRegistry(nil)
	c := &fakeConn{}
	sess := reg.Add("r1", c)
	want := errors.New("gone")
	if err := sess.SendLatest(func() (models.RideEvent, error) { return models.RideEvent{}, want }); !errors.Is(err, want) {
		t.Fatalf("expected load error, got %v", err)
	}
	if len(c.got) != 0 {
		t.Fatalf("wrote despite load error")
	}
}
