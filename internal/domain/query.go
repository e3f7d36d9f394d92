package domain

import (
	"fmt"
	"math"
)

// RadiusQuery asks for the cells within RadiusKm of Center.
type RadiusQuery struct {
	Center   Geo     `json:"center"`
	RadiusKm float64 `json:"radius_km"`
}

// Validate checks the coordinate ranges and the radius.
func (q RadiusQuery) Validate() error {
	if err := ValidateGeo(q.Center); err != nil {
		return err
	}
	if math.IsNaN(q.RadiusKm) || math.IsInf(q.RadiusKm, 0) || q.RadiusKm < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRadius, q.RadiusKm)
	}
	return nil
}

// ValidateGeo checks that g is a finite WGS-84 coordinate.
func ValidateGeo(g Geo) error {
	if math.IsNaN(g.Lat) || math.IsNaN(g.Lon) || math.IsInf(g.Lat, 0) || math.IsInf(g.Lon, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinate)
	}
	if g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, g.Lat)
	}
	if g.Lon < -180 || g.Lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, g.Lon)
	}
	return nil
}

// CellWeight is one matched cell of a radius query.
type CellWeight struct {
	Cell               Cell    `json:"h3"`
	Fraction           float64 `json:"intersection_ratio"` // share of the cell's area inside the circle, (0, 1]
	Population         float64 `json:"population"`
	WeightedPopulation float64 `json:"adjusted_population"`
	DistanceKm         float64 `json:"distance_km"` // great-circle distance from the center to the cell centroid
	AreaKm2            float64 `json:"area_km2"`
}

// RadiusResult is the outcome of a radius query.
type RadiusResult struct {
	Query        RadiusQuery  `json:"query"`
	Resolution   int          `json:"resolution"`
	CenterCell   Cell         `json:"center_hex"`
	NominalRings int          `json:"nominal_rings"`
	Rings        int          `json:"rings"`
	Policy       string       `json:"policy"`
	Cells        []CellWeight `json:"cells"`

	MatchedCells       int     `json:"hexes_found"`
	TotalPopulation    float64 `json:"total_population"` // full population of every matched cell
	WeightedPopulation float64 `json:"weighted_population"`
	AvgPopulation      float64 `json:"avg_population"`
	TotalAreaKm2       float64 `json:"total_area_km2"`
	CoveredAreaKm2     float64 `json:"covered_area_km2"`
	AvgDistanceKm      float64 `json:"avg_distance_km"`
	MaxDistanceKm      float64 `json:"max_distance_km"`

	// Skipped counts candidate cells excluded because their geometry could
	// not be weighted.
	Skipped int `json:"skipped"`
}
