package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

// GroupKey names the place label records are grouped by.
type GroupKey string

const (
	ByState  GroupKey = "state"
	ByCounty GroupKey = "county"
	ByCity   GroupKey = "city"
)

// ParseGroupKey validates a group key.
func ParseGroupKey(s string) (GroupKey, error) {
	switch k := GroupKey(strings.ToLower(s)); k {
	case ByState, ByCounty, ByCity:
		return k, nil
	default:
		return "", fmt.Errorf("unknown group key %q", s)
	}
}

// Group is the band summary of one place.
type Group struct {
	Name    string             `json:"name"`
	State   string             `json:"state,omitempty"`
	Summary domain.BandSummary `json:"summary"`
}

// GroupBy buckets records per place. County and city groups are qualified by
// state. Records without the label are grouped under "unknown". Groups are
// ordered by descending total population.
func GroupBy(records []domain.AggregatedRecord, key GroupKey) []Group {
	type gk struct{ name, state string }
	members := make(map[gk][]domain.AggregatedRecord)
	for _, r := range records {
		var k gk
		switch key {
		case ByState:
			k.name = r.State
		case ByCounty:
			k = gk{name: r.County, state: r.State}
		default:
			k = gk{name: r.City, state: r.State}
		}
		if k.name == "" {
			k.name = "unknown"
		}
		members[k] = append(members[k], r)
	}

	out := make([]Group, 0, len(members))
	for k, rs := range members {
		out = append(out, Group{Name: k.name, State: k.state, Summary: Bucket(rs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Summary.TotalPopulation != out[j].Summary.TotalPopulation {
			return out[i].Summary.TotalPopulation > out[j].Summary.TotalPopulation
		}
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Location is a distinct named place.
type Location struct {
	Name  string
	State string
	Cells int
}

// UniqueLocations lists distinct (city, state) and (county, state) pairs,
// sorted by state then name. Blank names are ignored.
func UniqueLocations(records []domain.PopulationRecord) (cities, counties []Location) {
	cityIdx := make(map[[2]string]int)
	countyIdx := make(map[[2]string]int)
	for _, r := range records {
		if r.City != "" {
			cities = addLocation(cities, cityIdx, r.City, r.State)
		}
		if r.County != "" {
			counties = addLocation(counties, countyIdx, r.County, r.State)
		}
	}
	sortLocations(cities)
	sortLocations(counties)
	return cities, counties
}

func addLocation(list []Location, idx map[[2]string]int, name, state string) []Location {
	k := [2]string{name, state}
	if i, ok := idx[k]; ok {
		list[i].Cells++
		return list
	}
	idx[k] = len(list)
	return append(list, Location{Name: name, State: state, Cells: 1})
}

func sortLocations(l []Location) {
	sort.Slice(l, func(i, j int) bool {
		if l[i].State != l[j].State {
			return l[i].State < l[j].State
		}
		return l[i].Name < l[j].Name
	})
}
