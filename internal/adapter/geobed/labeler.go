// Package geobed labels coordinates offline with the nearest known city.
package geobed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andreiashu/geobed"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// Labeler implements domain.Labeler over the geobed city index. It never
// fills the county label, which the index does not carry.
type Labeler struct {
	lookup  func(lat, lon float64) domain.PlaceLabels
	metrics *observability.Metrics
}

// New loads the geobed index, downloading the city datasets into dataDir on
// first use. Empty directories fall back to the library defaults.
func New(dataDir, cacheDir string, metrics *observability.Metrics, logger *slog.Logger) (*Labeler, error) {
	var opts []geobed.Option
	if dataDir != "" {
		opts = append(opts, geobed.WithDataDir(dataDir))
	}
	if cacheDir != "" {
		opts = append(opts, geobed.WithCacheDir(cacheDir))
	}

	start := time.Now()
	g, err := geobed.NewGeobed(opts...)
	if err != nil {
		return nil, fmt.Errorf("load geobed index: %w", err)
	}
	logger.Info("geobed index loaded", "cities", len(g.Cities), "duration", time.Since(start))

	return &Labeler{
		lookup: func(lat, lon float64) domain.PlaceLabels {
			c := g.ReverseGeocode(lat, lon)
			if c.City == "" {
				return domain.PlaceLabels{}
			}
			return domain.PlaceLabels{City: c.City, State: c.Region(), Country: c.Country()}
		},
		metrics: metrics,
	}, nil
}

// ReverseLabel returns the labels of the nearest indexed city, or empty
// labels for remote coordinates.
func (l *Labeler) ReverseLabel(ctx context.Context, lat, lon float64) (domain.PlaceLabels, error) {
	if err := ctx.Err(); err != nil {
		return domain.PlaceLabels{}, err
	}
	if err := domain.ValidateGeo(domain.Geo{Lat: lat, Lon: lon}); err != nil {
		l.metrics.Labels.WithLabelValues("geobed", "error").Inc()
		return domain.PlaceLabels{}, err
	}
	labels := l.lookup(lat, lon)
	if labels.Empty() {
		l.metrics.Labels.WithLabelValues("geobed", "empty").Inc()
	} else {
		l.metrics.Labels.WithLabelValues("geobed", "success").Inc()
	}
	return labels, nil
}
