package directory

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ride-booking/internal/models"
)

func TestDriversMockWhenNoURL(t *testing.T) {
	d := New("", 0, nil, nil)
	got := d.Drivers(context.Background())
	if len(got) != 3 || got[0].Name != "John Smith" || got[1].LicensePlate != "XYZ 789" || got[2].Rating != 4.7 {
		t.Fatalf("unexpected mock fleet: %+v", got)
	}
}

func TestDriversFromRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drivers" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([]models.Driver{{ID: "r1", Name: "Remote Driver", IsAvailable: true}})
	}))
	defer srv.Close()

	d := New(srv.URL+"/", 0, nil, nil)
	got := d.Drivers(context.Background())
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("expected remote drivers, got %+v", got)
	}
}

func TestDriversFallbackOnFailure(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		},
		"empty": func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("[]")) },
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			got := New(srv.URL, 0, nil, nil).Drivers(context.Background())
			if len(got) != 3 || got[0].ID != "1" {
				t.Fatalf("expected mock fallback, got %+v", got)
			}
		})
	}
}

func TestDriversFallbackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	got := New(url, 0, nil, nil).Drivers(context.Background())
	if len(got) != 3 {
		t.Fatalf("expected mock fallback, got %+v", got)
	}
}

func TestPickSeededIsReproducibleAndCoversFleet(t *testing.T) {
	fleet := MockDrivers()
	a := New("", 0, rand.New(rand.NewSource(7)), nil)
	b := New("", 0, rand.New(rand.NewSource(7)), nil)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		da, err := a.Pick(fleet)
		if err != nil {
			t.Fatal(err)
		}
		db, _ := b.Pick(fleet)
		if da.ID != db.ID {
			t.Fatalf("same seed diverged at %d", i)
		}
		seen[da.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("uniform pick never reached every driver: %v", seen)
	}
}

func TestPickEmpty(t *testing.T) {
	if _, err := New("", 0, nil, nil).Pick(nil); !errors.Is(err, ErrNoDrivers) {
		t.Fatalf("expected ErrNoDrivers, got %v", err)
	}
}
