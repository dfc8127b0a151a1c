package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/BTreeMap/CareConcierge/internal/care"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(WithEndpoint(srv.URL), WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func TestNearbySearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if got := r.URL.Query().Get("radius"); got != "7000" {
			t.Errorf("radius = %s, want 7000", got)
		}
		if got := r.URL.Query().Get("query"); got != DefaultQuery {
			t.Errorf("query = %s, want default", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"place_id":"a","name":"Downtown Urgent Care","location":{"lat":37.78,"lng":-122.41},"rating":4.6,"user_ratings_total":320,"price_level":2,"review_url":"https://www.yelp.com/biz/downtown-uc"},
			{"place_id":"b","name":"","location":{"lat":1,"lng":1}},
			{"place_id":"c","name":"Corner Clinic","rating":"n/a"}
		]}`))
	})

	got, err := c.NearbySearch(context.Background(), 37.77, -122.42, 7, "")
	if err != nil {
		t.Fatalf("NearbySearch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 places, got %d", len(got))
	}
	first := got[0]
	if first.Rating == nil || *first.Rating != 4.6 || first.Reviews == nil || *first.Reviews != 320 {
		t.Errorf("unexpected rating/reviews %+v", first)
	}
	if first.Price != "$$" {
		t.Errorf("price = %q, want $$", first.Price)
	}
	if first.ReviewCitation == nil || first.ReviewCitation.Source != "yelp.com" {
		t.Errorf("unexpected review citation %+v", first.ReviewCitation)
	}
	if got[1].Rating != nil {
		t.Errorf("expected mistyped rating to be dropped")
	}
}

func TestNearbySearch_Non2xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})
	_, err := c.NearbySearch(context.Background(), 0, 0, 7, "clinic")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNearbySearch_WithLadder(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"results":[{"name":"Only Clinic","location":{"lat":37.78,"lng":-122.41}}]}`))
	})
	got, err := care.Collect(context.Background(), c, care.SearchRequest{Lat: 37.77, Lng: -122.42})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if calls != len(care.DefaultRadiusLadderKm) {
		t.Errorf("expected full ladder, got %d calls", calls)
	}
	if len(got) != 1 || got[0].DistanceKm == nil {
		t.Errorf("expected one deduplicated place with distance, got %+v", got)
	}
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error without endpoint")
	}
}
