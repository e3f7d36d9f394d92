package domain

import "math"

const (
	// Res8HexAreaMi2 is the nominal resolution-8 hexagon area the source
	// population grids were built with.
	Res8HexAreaMi2 = 0.2857156

	// KmSquaredPerMiSquared converts square miles to square kilometers.
	KmSquaredPerMiSquared = 2.589988110336
)

// DensityPerMi2 returns people per square mile. Resolution-8 cells use the
// nominal hexagon area so densities match the published grids; other
// resolutions use the measured cell area. A non-positive area yields 0.
func DensityPerMi2(population float64, resolution int, areaKm2 float64) float64 {
	if resolution == 8 {
		return population / Res8HexAreaMi2
	}
	if areaKm2 <= 0 || math.IsNaN(areaKm2) {
		return 0
	}
	return population / (areaKm2 / KmSquaredPerMiSquared)
}
