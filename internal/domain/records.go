package domain

import (
	"strconv"
	"time"
)

// Cell is a 64-bit H3 cell index. The zero value is never a valid cell.
type Cell uint64

// String returns the canonical lowercase hexadecimal token.
func (c Cell) String() string {
	return strconv.FormatUint(uint64(c), 16)
}

// MarshalText encodes the cell as its hexadecimal token so JSON keys and
// values match the snapshot files.
func (c Cell) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a hexadecimal token. It does not check the index
// against the grid.
func (c *Cell) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 16, 64)
	if err != nil {
		return &InvalidCellError{Token: string(b), Reason: "not a hexadecimal index"}
	}
	*c = Cell(v)
	return nil
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PlaceLabels are the human-readable place names attached to a cell.
type PlaceLabels struct {
	City    string `json:"city,omitempty"`
	County  string `json:"county,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// Empty reports whether no label is set.
func (p PlaceLabels) Empty() bool {
	return p == PlaceLabels{}
}

// PopulationRecord is one coarse cell of the population snapshot.
type PopulationRecord struct {
	Cell       Cell    `json:"h3"`
	Population float64 `json:"population"`
	Density    float64 `json:"density_per_mi2,omitempty"`
	Centroid   Geo     `json:"centroid"`
	PlaceLabels

	// Boundary is the snapshot's own polygon for the cell, when present.
	// Empty means the grid boundary is used.
	Boundary []Geo `json:"-"`
}

// SignalRecord is one fine cell of a coverage snapshot.
type SignalRecord struct {
	Cell      Cell    `json:"h3"`
	MinSignal float64 `json:"minsignal"` // dBm
}

// AggregatedRecord joins a population cell with the mean signal of its fine
// descendants.
type AggregatedRecord struct {
	PopulationRecord
	AvgSignal     float64 `json:"avg_minsignal"`
	SignalSamples int     `json:"signal_samples"`
	Band          Band    `json:"band"`
}

// CoverageReport is the output of one aggregation run.
type CoverageReport struct {
	RunID       string             `json:"run_id"`
	Label       string             `json:"label"` // e.g. state code or source file stem
	GeneratedAt time.Time          `json:"generated_at"`
	Records     []AggregatedRecord `json:"-"`
	Summary     BandSummary        `json:"summary"`

	// SignalsRead counts fine rows read; SignalsSkipped counts rows dropped
	// during roll-up (invalid cell, wrong resolution).
	SignalsRead    int `json:"signals_read"`
	SignalsSkipped int `json:"signals_skipped"`
}
