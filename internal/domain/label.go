package domain

import (
	"context"
	"log/slog"
)

// EnrichRecord fills in the centroid, density and place labels of a
// population record. Labels already present are kept. If labeler is nil or
// labelling fails, the record is returned without new labels (graceful
// degradation) and the second return value is false.
func EnrichRecord(ctx context.Context, rec PopulationRecord, centroid Geo, resolution int, areaKm2 float64, labeler Labeler, logger *slog.Logger) (PopulationRecord, bool) {
	rec.Centroid = centroid
	rec.Density = DensityPerMi2(rec.Population, resolution, areaKm2)

	if labeler == nil || !rec.PlaceLabels.Empty() {
		return rec, false
	}

	labels, err := labeler.ReverseLabel(ctx, centroid.Lat, centroid.Lon)
	if err != nil {
		logger.Warn("reverse labelling failed",
			"cell", rec.Cell.String(),
			"lat", centroid.Lat,
			"lon", centroid.Lon,
			"error", err,
		)
		return rec, false
	}
	if labels.Empty() {
		return rec, false
	}
	rec.PlaceLabels = labels
	return rec, true
}
