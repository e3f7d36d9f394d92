// Package domain models hexagonal-grid population and signal-coverage data.
//
// # Data Sources
//
// Population snapshots are pre-computed per H3 cell at a coarse resolution
// (resolution 8 by default, ~0.74 km² per hexagon). Each row carries the
// cell index, a population count and optional place labels produced by an
// earlier reverse-geocoding pass.
//
// Signal snapshots come from drive-test coverage exports at a finer
// resolution (resolution 9 by default). Each row carries the fine cell index
// and the minimum observed signal strength for that cell.
//
// # Cell Identifiers
//
// A [Cell] is the 64-bit H3 index. Snapshots store it either as the
// 15-character lowercase hexadecimal token ("882a100d25fffff") or as a raw
// integer; both forms decode to the same Cell. Validation against the grid
// lives in the grid package so this package stays free of the H3 bindings.
//
// # Signal Conventions
//
//	Units: dBm, negative scale. -70 is strong, -110 is barely usable.
//	Fine cells roll up to their coarse ancestor by arithmetic mean.
//	Coarse cells without fine children are absent, never imputed.
//
// Coverage bands (population-weighted reporting):
//
//	great: avg >= -90 dBm
//	good:  -100 < avg < -90 dBm
//	poor:  avg <= -100 dBm
//
// # Population Density
//
// Density is people per square mile. The source grids assume the nominal
// resolution-8 hexagon area of 0.2857156 mi²; other resolutions derive the
// area from the cell itself. See [DensityPerMi2].
//
// # Radius Queries
//
// A [RadiusQuery] is a WGS-84 point plus a radius in kilometers. Results list
// every matched cell with the fraction of its area inside the circle and the
// population weighted by that fraction. An empty match is a valid zero
// result, not an error.
package domain
