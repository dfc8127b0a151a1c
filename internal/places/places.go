// Package places is an HTTP client for a nearby place search service.
package places

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// DefaultQuery is used when the caller passes an empty query.
const DefaultQuery = "urgent care"

// Client queries a nearby search endpoint:
//
//	GET {endpoint}?lat=..&lng=..&radius=<meters>&query=..
//
// answering {"results":[{"place_id","name","address","phone","location":{"lat","lng"},
// "rating","user_ratings_total","price_level","review_url"}]}.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// Opts holds configuration for the places client.
type Opts struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	Interval time.Duration
}

// Option configures the places client.
type Option func(*Opts)

// WithAPIKey sets the API key sent in the X-Api-Key header.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithEndpoint sets the search endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) {
		o.Endpoint = endpoint
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithMinInterval sets the minimum spacing between requests. Zero disables limiting.
func WithMinInterval(d time.Duration) Option {
	return func(o *Opts) {
		o.Interval = d
	}
}

// NewClient creates a places client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Timeout: 10 * time.Second, Interval: 250 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("places endpoint not set")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid places endpoint: %w", err)
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

// NearbySearch returns places within radiusKm of (lat, lng). It makes one request and does
// not retry; non-2xx answers are errors.
func (c *Client) NearbySearch(ctx context.Context, lat, lng, radiusKm float64, query string) ([]models.Place, error) {
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(int(radiusKm*1000)))
	q.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("places API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parse response: invalid JSON")
	}

	out := decodeResults(gjson.GetBytes(body, "results"))
	slog.Debug("places.NearbySearch: results", "radiusKm", radiusKm, "count", len(out))
	return out, nil
}

func decodeResults(arr gjson.Result) []models.Place {
	var out []models.Place
	arr.ForEach(func(_, v gjson.Result) bool {
		name := strings.TrimSpace(v.Get("name").String())
		if name == "" {
			return true
		}
		p := models.Place{
			ID:      v.Get("place_id").String(),
			Name:    name,
			Address: v.Get("address").String(),
			Phone:   v.Get("phone").String(),
			Lat:     v.Get("location.lat").Float(),
			Lng:     v.Get("location.lng").Float(),
		}
		if r := v.Get("rating"); r.Type == gjson.Number {
			f := r.Float()
			p.Rating = &f
		}
		if n := v.Get("user_ratings_total"); n.Type == gjson.Number && n.Int() >= 0 {
			reviews := int(n.Int())
			p.Reviews = &reviews
		}
		if lvl := v.Get("price_level"); lvl.Type == gjson.Number && lvl.Int() > 0 && lvl.Int() <= 4 {
			p.Price = strings.Repeat("$", int(lvl.Int()))
		}
		if u := strings.TrimSpace(v.Get("review_url").String()); u != "" {
			p.ReviewCitation = &models.Citation{Title: name + " reviews", URL: u, Source: sourceOf(u)}
		}
		out = append(out, p)
		return true
	})
	return out
}

func sourceOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
