package aggregate

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/grid"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

var timesSquare = domain.Geo{Lat: 40.7580, Lon: -73.9855}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAggregator(t *testing.T) (*Aggregator, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	a, err := New(8, discardLogger(), m)
	require.NoError(t, err)
	return a, m
}

// childCells returns two distinct resolution-9 cells sharing one resolution-8 parent.
func childCells(t *testing.T) (parent domain.Cell, a, b domain.Cell) {
	t.Helper()
	parent, err := grid.CellAt(timesSquare, 8)
	require.NoError(t, err)
	center, err := grid.CellAt(timesSquare, 9)
	require.NoError(t, err)
	ring, err := grid.Disk(center, 1)
	require.NoError(t, err)
	for _, c := range ring {
		if c == center {
			continue
		}
		p, err := grid.Parent(c, 8)
		require.NoError(t, err)
		if p == parent {
			return parent, center, c
		}
	}
	t.Fatal("no sibling found")
	return 0, 0, 0
}

func TestNew_BadResolution(t *testing.T) {
	_, err := New(-1, discardLogger(), observability.NewMetricsForTesting())
	var resErr *domain.UnsupportedResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestRollUp_MeanPerParent(t *testing.T) {
	agg, _ := newTestAggregator(t)
	parent, a, b := childCells(t)

	rolled, skipped := agg.RollUp([]domain.SignalRecord{
		{Cell: a, MinSignal: -80},
		{Cell: b, MinSignal: -100},
		{Cell: a, MinSignal: -90},
	})

	assert.Zero(t, skipped)
	require.Len(t, rolled, 1)
	assert.Equal(t, Rolled{Cell: parent, AvgSignal: -90, Samples: 3}, rolled[parent])
}

func TestRollUp_SkipsBadRows(t *testing.T) {
	agg, m := newTestAggregator(t)
	parent, a, _ := childCells(t)
	coarser, err := grid.Parent(parent, 7)
	require.NoError(t, err)

	rolled, skipped := agg.RollUp([]domain.SignalRecord{
		{Cell: a, MinSignal: -70},
		{Cell: 12345, MinSignal: -70},
		{Cell: coarser, MinSignal: -70},
		{Cell: a, MinSignal: math.NaN()},
	})

	assert.Equal(t, 3, skipped)
	assert.Len(t, rolled, 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CellsSkipped.WithLabelValues("rollup")))
}

func TestJoin_InnerJoin(t *testing.T) {
	rolled := map[domain.Cell]Rolled{
		1: {Cell: 1, AvgSignal: -85, Samples: 2},
		3: {Cell: 3, AvgSignal: -105, Samples: 1},
		9: {Cell: 9, AvgSignal: -95, Samples: 4},
	}
	pop := []domain.PopulationRecord{
		{Cell: 3, Population: 30},
		{Cell: 1, Population: 10},
		{Cell: 2, Population: 20},
	}

	got := Join(pop, rolled)

	want := []domain.AggregatedRecord{
		{PopulationRecord: pop[0], AvgSignal: -105, SignalSamples: 1, Band: domain.BandPoor},
		{PopulationRecord: pop[1], AvgSignal: -85, SignalSamples: 2, Band: domain.BandGreat},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Join mismatch (-want +got):\n%s", diff)
	}
}

func TestRollUpJoinBucket_SingleGoodCell(t *testing.T) {
	agg, _ := newTestAggregator(t)
	parent, a, _ := childCells(t)

	rolled, _ := agg.RollUp([]domain.SignalRecord{{Cell: a, MinSignal: -95}})
	joined := Join([]domain.PopulationRecord{{Cell: parent, Population: 1000}}, rolled)
	s := Bucket(joined)

	assert.False(t, s.NoData)
	assert.Equal(t, 1000.0, s.TotalPopulation)
	assert.Equal(t, 1000.0, s.Band(domain.BandGood).Population)
	assert.Equal(t, 100.0, s.Band(domain.BandGood).Percent)
	assert.Zero(t, s.Band(domain.BandGreat).Population)
	assert.Zero(t, s.Band(domain.BandPoor).Population)
}

func TestBucket_SumsAndPercents(t *testing.T) {
	records := []domain.AggregatedRecord{
		{PopulationRecord: domain.PopulationRecord{Population: 500}, AvgSignal: -70, Band: domain.BandGreat},
		{PopulationRecord: domain.PopulationRecord{Population: 300}, AvgSignal: -95, Band: domain.BandGood},
		{PopulationRecord: domain.PopulationRecord{Population: 200}, AvgSignal: -100},
	}
	s := Bucket(records)

	assert.Equal(t, 1000.0, s.TotalPopulation)
	assert.Equal(t, 3, s.Cells)
	var pop, pct float64
	for _, b := range s.Bands {
		pop += b.Population
		pct += b.Percent
	}
	assert.InDelta(t, s.TotalPopulation, pop, 1e-9)
	assert.InDelta(t, 100, pct, 1e-9)
	assert.InDelta(t, 20, s.Band(domain.BandPoor).Percent, 1e-9)
	assert.Equal(t, 1, s.Band(domain.BandPoor).Cells)
}

func TestBucket_UnknownBandClassifiedFromSignal(t *testing.T) {
	records := []domain.AggregatedRecord{
		{PopulationRecord: domain.PopulationRecord{Population: 400}, AvgSignal: -95, Band: domain.Band("excellent")},
		{PopulationRecord: domain.PopulationRecord{Population: 600}, AvgSignal: -110, Band: domain.Band("POOR")},
	}

	var s domain.BandSummary
	require.NotPanics(t, func() { s = Bucket(records) })
	assert.Equal(t, 400.0, s.Band(domain.BandGood).Population)
	assert.Equal(t, 600.0, s.Band(domain.BandPoor).Population)
	assert.InDelta(t, 100, s.Band(domain.BandGood).Percent+s.Band(domain.BandPoor).Percent, 1e-9)
}

func TestBucket_NoData(t *testing.T) {
	s := Bucket(nil)
	assert.True(t, s.NoData)
	assert.Len(t, s.Bands, 3)
	for _, b := range s.Bands {
		assert.Zero(t, b.Percent)
	}

	zero := Bucket([]domain.AggregatedRecord{{AvgSignal: -80, Band: domain.BandGreat}})
	assert.True(t, zero.NoData)
	assert.Equal(t, 1, zero.Band(domain.BandGreat).Cells)
}

func TestWorst(t *testing.T) {
	records := []domain.AggregatedRecord{
		{PopulationRecord: domain.PopulationRecord{Cell: 1, Population: 5}, AvgSignal: -90},
		{PopulationRecord: domain.PopulationRecord{Cell: 2, Population: 5}, AvgSignal: -120},
		{PopulationRecord: domain.PopulationRecord{Cell: 3, Population: 50}, AvgSignal: -110},
		{PopulationRecord: domain.PopulationRecord{Cell: 4, Population: 80}, AvgSignal: -110},
	}

	got := Worst(records, 3)
	require.Len(t, got, 3)
	assert.Equal(t, domain.Cell(2), got[0].Cell)
	assert.Equal(t, domain.Cell(4), got[1].Cell)
	assert.Equal(t, domain.Cell(3), got[2].Cell)

	assert.Len(t, Worst(records, 0), 4)
	assert.Equal(t, domain.Cell(1), records[0].Cell, "input must not be reordered")
}

func TestGroupBy(t *testing.T) {
	rec := func(state, county, city string, pop, sig float64) domain.AggregatedRecord {
		return domain.AggregatedRecord{
			PopulationRecord: domain.PopulationRecord{Population: pop, PlaceLabels: domain.PlaceLabels{State: state, County: county, City: city}},
			AvgSignal:        sig,
			Band:             domain.ClassifySignal(sig),
		}
	}
	records := []domain.AggregatedRecord{
		rec("NY", "New York County", "New York", 100, -80),
		rec("NY", "Kings County", "Brooklyn", 300, -105),
		rec("NJ", "Hudson County", "Jersey City", 50, -95),
		rec("", "", "", 10, -95),
	}

	states := GroupBy(records, ByState)
	require.Len(t, states, 3)
	assert.Equal(t, "NY", states[0].Name)
	assert.Equal(t, 400.0, states[0].Summary.TotalPopulation)
	assert.Equal(t, 75.0, states[0].Summary.Band(domain.BandPoor).Percent)
	assert.Equal(t, "unknown", states[2].Name)

	counties := GroupBy(records, ByCounty)
	require.Len(t, counties, 4)
	assert.Equal(t, "Kings County", counties[0].Name)
	assert.Equal(t, "NY", counties[0].State)
}

func TestParseGroupKey(t *testing.T) {
	k, err := ParseGroupKey("County")
	require.NoError(t, err)
	assert.Equal(t, ByCounty, k)
	_, err = ParseGroupKey("zip")
	require.Error(t, err)
}

func TestUniqueLocations(t *testing.T) {
	pop := []domain.PopulationRecord{
		{PlaceLabels: domain.PlaceLabels{City: "Springfield", County: "Sangamon County", State: "IL"}},
		{PlaceLabels: domain.PlaceLabels{City: "Springfield", County: "Hampden County", State: "MA"}},
		{PlaceLabels: domain.PlaceLabels{City: "Springfield", County: "Sangamon County", State: "IL"}},
		{PlaceLabels: domain.PlaceLabels{City: "Albany", State: "NY"}},
		{},
	}

	cities, counties := UniqueLocations(pop)

	assert.Equal(t, []Location{
		{Name: "Springfield", State: "IL", Cells: 2},
		{Name: "Springfield", State: "MA", Cells: 1},
		{Name: "Albany", State: "NY", Cells: 1},
	}, cities)
	assert.Equal(t, []Location{
		{Name: "Sangamon County", State: "IL", Cells: 2},
		{Name: "Hampden County", State: "MA", Cells: 1},
	}, counties)
}
