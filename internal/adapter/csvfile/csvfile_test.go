package csvfile

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hex-coverage-etl/internal/aggregate"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteRadiusSummaries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "summary.csv")
	err := WriteRadiusSummaries(path, []RadiusSummary{{
		Location: "Times Square",
		Result: domain.RadiusResult{
			Query:           domain.RadiusQuery{Center: domain.Geo{Lat: 40.758, Lon: -73.9855}, RadiusKm: 6},
			Resolution:      8,
			Rings:           7,
			MatchedCells:    120,
			TotalPopulation: 1234567.4,
		},
	}})
	require.NoError(t, err)

	rows := readAll(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "location", rows[0][0])
	assert.Equal(t, "Times Square", rows[1][0])
	assert.Equal(t, "40.758000", rows[1][1])
	assert.Equal(t, "120", rows[1][6])
	assert.Equal(t, "1234567", rows[1][7])
}

func TestWriteLocations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.csv")
	require.NoError(t, WriteLocations(path, "city", []aggregate.Location{{Name: "Albany", State: "NY", Cells: 3}}))

	assert.Equal(t, [][]string{{"city", "state", "hexes"}, {"Albany", "NY", "3"}}, readAll(t, path))
}

func TestWriteGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.csv")
	groups := []aggregate.Group{{
		Name: "NY",
		Summary: domain.BandSummary{
			TotalPopulation: 1000,
			Cells:           2,
			Bands: []domain.BandTotal{
				{Band: domain.BandGreat, Population: 250, Percent: 25},
				{Band: domain.BandGood, Population: 750, Percent: 75},
			},
		},
	}}
	require.NoError(t, WriteGroups(path, groups))

	rows := readAll(t, path)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 11)
	assert.Equal(t, []string{"NY", "", "2", "1000", "250", "25.00", "750", "75.00", "0", "0.00", "false"}, rows[1])
}
