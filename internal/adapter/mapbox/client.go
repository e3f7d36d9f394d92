package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

const (
	maxAttempts    = 3
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

var errRateLimited = errors.New("mapbox API rate limited")

// Client implements domain.Labeler using the Mapbox reverse geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	backoff    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		backoff: initialBackoff,
		metrics: metrics,
		logger:  logger,
	}
}

// ReverseLabel converts coordinates to city, county, state and country.
// Rate-limited requests are retried with exponential backoff.
func (c *Client) ReverseLabel(ctx context.Context, lat, lon float64) (domain.PlaceLabels, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"types":        {"place,district,region,country"},
	}
	fullURL := u + "?" + params.Encode()

	backoff := c.backoff
	var (
		labels domain.PlaceLabels
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		labels, err = c.doRequest(ctx, fullURL)
		if !errors.Is(err, errRateLimited) {
			break
		}
		c.logger.Debug("mapbox rate limited, backing off", "attempt", attempt, "backoff", backoff)
		if attempt == maxAttempts || !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}

	switch {
	case err != nil:
		c.metrics.Labels.WithLabelValues("mapbox", "error").Inc()
	case labels.Empty():
		c.metrics.Labels.WithLabelValues("mapbox", "empty").Inc()
	default:
		c.metrics.Labels.WithLabelValues("mapbox", "success").Inc()
	}
	return labels, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.PlaceLabels, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.PlaceLabels{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.LabelAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.PlaceLabels{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.PlaceLabels{}, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.PlaceLabels{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.PlaceLabels{}, fmt.Errorf("decode response: %w", err)
	}
	return mapboxResp.labels(), nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string     `json:"id"` // e.g. "place.123", "region.456"
	Text       string     `json:"text"`
	Properties properties `json:"properties"`
	Context    []feature  `json:"context"`
}

type properties struct {
	ShortCode string `json:"short_code"` // "US-NY" for regions, "us" for countries
}

// labels collects the first name of each kind across the returned features
// and their context entries.
func (r response) labels() domain.PlaceLabels {
	var out domain.PlaceLabels
	for _, f := range r.Features {
		setLabel(&out, f)
		for _, ctxf := range f.Context {
			setLabel(&out, ctxf)
		}
	}
	return out
}

func (f feature) kind() string {
	kind, _, _ := strings.Cut(f.ID, ".")
	return kind
}

func setLabel(out *domain.PlaceLabels, f feature) {
	switch f.kind() {
	case "place":
		if out.City == "" {
			out.City = f.Text
		}
	case "district":
		if out.County == "" {
			out.County = f.Text
		}
	case "region":
		if out.State == "" {
			out.State = regionCode(f)
		}
	case "country":
		if out.Country == "" {
			out.Country = strings.ToUpper(f.Properties.ShortCode)
			if out.Country == "" {
				out.Country = f.Text
			}
		}
	}
}

// regionCode returns the subdivision part of an ISO 3166-2 short code, so
// "US-NY" becomes "NY". Regions without a code keep their name.
func regionCode(f feature) string {
	if _, sub, ok := strings.Cut(f.Properties.ShortCode, "-"); ok && sub != "" {
		return strings.ToUpper(sub)
	}
	return f.Text
}
