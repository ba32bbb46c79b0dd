// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package pointsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/deathatlas/atlas/internal/config"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/tile"
)

// Client queries a remote Point Source over HTTP. It is safe for concurrent
// use; clients derived with ForKind share the limiter and breaker.
type Client struct {
	baseURL        string
	kind           models.CoordinateKind
	published      bool
	httpClient     *http.Client
	limiter        *rate.Limiter
	breaker        *Breaker
	maxRetries     int
	retryBaseDelay time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker installs b in place of the configured breaker. Passing nil
// disables the breaker.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient creates a client for cfg.URL.
func NewClient(cfg *config.PointSourceConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid point source URL %q", cfg.URL)
	}
	kind, err := models.ParseCoordinateKind(cfg.Kind)
	if err != nil {
		return nil, fmt.Errorf("invalid point source kind: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		kind:           kind,
		published:      cfg.Published,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(limit, burst),
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
	if c.retryBaseDelay <= 0 {
		c.retryBaseDelay = 500 * time.Millisecond
	}
	if cfg.BreakerEnabled {
		c.breaker = NewBreaker(DefaultBreakerSettings())
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForKind returns a client that plots kind's coordinates.
func (c *Client) ForKind(kind models.CoordinateKind) *Client {
	cp := *c
	cp.kind = kind
	return &cp
}

// Kind returns the coordinate kind requested from the source.
func (c *Client) Kind() models.CoordinateKind { return c.kind }

// FetchTile returns the points inside key's bounds.
func (c *Client) FetchTile(ctx context.Context, key tile.Key) ([]models.GeoPoint, error) {
	b := key.Bounds()
	q := url.Values{}
	q.Set("minLat", formatFloat(b.South))
	q.Set("minLng", formatFloat(b.West))
	q.Set("maxLat", formatFloat(b.North))
	q.Set("maxLng", formatFloat(b.East))
	q.Set("zoom", strconv.Itoa(key.Z))
	q.Set("kind", c.kind.String())
	q.Set("published", strconv.FormatBool(c.published))

	points, err := c.get(ctx, "/points", q)
	if err != nil {
		return nil, AsTileFetchError(key, err)
	}
	return points, nil
}

// SameSpot returns records within radiusMeters of (lat, lng). id, when set,
// lets the source anchor the lookup on a known record.
func (c *Client) SameSpot(ctx context.Context, lat, lng, radiusMeters float64, id string) ([]models.GeoPoint, error) {
	q := url.Values{}
	q.Set("lat", formatFloat(lat))
	q.Set("lng", formatFloat(lng))
	q.Set("radius_m", formatFloat(radiusMeters))
	q.Set("kind", c.kind.String())
	if id != "" {
		q.Set("id", id)
	}

	points, err := c.get(ctx, "/points/same-spot", q)
	if err != nil {
		return nil, fmt.Errorf("same-spot lookup failed: %w", err)
	}
	return points, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]models.GeoPoint, error) {
	reqURL := c.baseURL + path + "?" + q.Encode()
	call := func() ([]models.GeoPoint, error) {
		return c.fetch(ctx, reqURL)
	}
	if c.breaker != nil {
		return c.breaker.Execute(call)
	}
	return call()
}

func (c *Client) fetch(ctx context.Context, reqURL string) ([]models.GeoPoint, error) {
	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return nil, &TileFetchError{
			StatusCode: resp.StatusCode,
			Reason:     ReasonStatus,
			Err:        fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body))),
		}
	}

	points, err := decodePoints(resp, c.kind)
	if err != nil {
		return nil, &TileFetchError{StatusCode: resp.StatusCode, Reason: ReasonMalformed, Err: err}
	}
	return points, nil
}

// doRequestWithRateLimit waits on the limiter before every attempt and
// retries HTTP 429 with exponential backoff, preferring Retry-After.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		_ = resp.Body.Close()

		if attempt >= c.maxRetries {
			return nil, &TileFetchError{
				StatusCode: http.StatusTooManyRequests,
				Reason:     ReasonRateLimited,
				Err:        fmt.Errorf("rate limit exceeded after %d retries", c.maxRetries),
			}
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			delay = d
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// IsRetryable reports whether a later attempt at the same request could
// succeed. Malformed bodies and 4xx statuses other than 429 are not.
func IsRetryable(err error) bool {
	var tfe *TileFetchError
	if !errors.As(err, &tfe) {
		return err != nil
	}
	switch tfe.Reason {
	case ReasonMalformed, ReasonCancelled:
		return false
	case ReasonStatus:
		return tfe.StatusCode >= 500
	}
	return true
}
