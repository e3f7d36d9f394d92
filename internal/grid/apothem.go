package grid

import "math"

// res8ApothemKm is the nominal center-to-edge distance of a resolution-8
// hexagon. Each resolution step scales edge length by about √7.
const res8ApothemKm = 0.9204

// ApothemKm returns the nominal apothem for res. It is an average; real cells
// vary by latitude and distance from the icosahedron faces.
func ApothemKm(res int) float64 {
	return res8ApothemKm * math.Pow(math.Sqrt(7), float64(8-res))
}
