package domain

import "context"

// Labeler resolves coordinates to place names.
type Labeler interface {
	// ReverseLabel converts coordinates to place labels. An empty result with
	// a nil error means the provider knows no place there.
	ReverseLabel(ctx context.Context, lat, lon float64) (PlaceLabels, error)
}
