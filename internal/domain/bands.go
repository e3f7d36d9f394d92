package domain

// Band is a named signal-strength bucket used for population reporting.
type Band string

const (
	BandGreat Band = "great"
	BandGood  Band = "good"
	BandPoor  Band = "poor"
)

// Band thresholds in dBm.
const (
	GreatThresholdDBm = -90.0
	PoorThresholdDBm  = -100.0
)

// Bands lists every band in reporting order.
var Bands = []Band{BandGreat, BandGood, BandPoor}

// ClassifySignal buckets an average signal strength. Every finite value falls
// in exactly one band.
func ClassifySignal(dbm float64) Band {
	switch {
	case dbm >= GreatThresholdDBm:
		return BandGreat
	case dbm > PoorThresholdDBm:
		return BandGood
	default:
		return BandPoor
	}
}

// BandTotal is the population attributed to one band.
type BandTotal struct {
	Band       Band    `json:"band"`
	Population float64 `json:"population"`
	Percent    float64 `json:"percent"`
	Cells      int     `json:"cells"`
}

// BandSummary is the banded breakdown of a joined dataset. NoData is set when
// the total joined population is zero; percentages are then left at zero.
type BandSummary struct {
	TotalPopulation float64     `json:"total_population"`
	Cells           int         `json:"cells"`
	Bands           []BandTotal `json:"bands"`
	NoData          bool        `json:"no_data"`
}

// Band returns the total for b, or a zero total if absent.
func (s BandSummary) Band(b Band) BandTotal {
	for _, t := range s.Bands {
		if t.Band == b {
			return t
		}
	}
	return BandTotal{Band: b}
}
