package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/noah-isme/shopping-optimizer/internal/cache"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/resilience"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim endpoint.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

const maxResults = 5

// Config tunes the Nominatim client.
type Config struct {
	BaseURL   string
	UserAgent string
	// RPS throttles outbound calls; the public instance allows one per second.
	RPS     float64
	Timeout time.Duration
	Cache   *cache.Cache
	Breaker *resilience.Breaker
	Logger  zerolog.Logger
}

// Nominatim searches an OpenStreetMap Nominatim server.
type Nominatim struct {
	baseURL   string
	userAgent string
	http      resilience.HTTPClient
	limiter   *rate.Limiter
	cache     *cache.Cache
}

// NewNominatim builds a client with a traced transport, retries and a breaker.
func NewNominatim(cfg Config) *Nominatim {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("geocoder").WithLogger(cfg.Logger)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "shopping-optimizer/1.0"
	}
	return &Nominatim{
		baseURL:   base,
		userAgent: ua,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 2,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cache:   cfg.Cache,
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search implements Client. Results are cached per normalised query, empty
// result sets included; concurrent lookups of one query share a request.
func (n *Nominatim) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return cache.Fetch(ctx, n.cache, query, func(ctx context.Context) ([]Place, error) {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, upstream(err)
		}
		places, err := n.fetch(ctx, query)
		if err != nil {
			return nil, upstream(err)
		}
		return places, nil
	})
}

func (n *Nominatim) fetch(ctx context.Context, query string) ([]Place, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(maxResults))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("geocoder status %s", resp.Status)
	}

	var raw []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode geocoder response: %w", err)
	}
	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lng, errLng := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		p := Place{Lat: lat, Lng: lng, DisplayName: r.DisplayName}
		if p.Point().Validate() != nil {
			continue
		}
		places = append(places, p)
	}
	return places, nil
}

func upstream(err error) error {
	if errors.Is(err, common.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("geocode: %w", errors.Join(common.ErrUpstreamUnavailable, err))
}
