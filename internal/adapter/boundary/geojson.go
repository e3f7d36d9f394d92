package boundary

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/hex-coverage-etl/internal/coverage"
	"github.com/couchcryptid/hex-coverage-etl/internal/dataset"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
	"github.com/couchcryptid/hex-coverage-etl/internal/observability"
)

// crsDefs maps EPSG codes to proj4 definitions for the systems US boundary
// files commonly declare. Codes the proj package registers itself (4326,
// 4269, 3857) are parsed by name and need no entry.
var crsDefs = map[string]string{
	"EPSG:4258": "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	"EPSG:5070": "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 +x_0=0 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
}

// epsgCode normalizes the crs name forms GeoJSON files use
// ("EPSG:4269", "urn:ogc:def:crs:EPSG::4269", OGC URLs, CRS84) to "EPSG:<n>".
func epsgCode(name string) (string, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	switch n {
	case "CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84", "HTTP://WWW.OPENGIS.NET/DEF/CRS/OGC/1.3/CRS84":
		return "EPSG:4326", true
	}
	i := strings.LastIndexAny(n, ":/")
	if i < 0 || !strings.Contains(n, "EPSG") {
		return "", false
	}
	code := n[i+1:]
	if code == "" {
		return "", false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return "EPSG:" + code, true
}

// ReadGeoJSON loads the polygon features of a GeoJSON FeatureCollection.
// nameFilter, if set, keeps features whose NAME or name property matches
// ignoring case. Files without a crs member are assumed to be WGS-84; other
// known systems are reprojected to WGS-84 and unknown ones are rejected with
// a *domain.ProjectionError.
func ReadGeoJSON(path, nameFilter string, projector *coverage.Projector, logger *slog.Logger, metrics *observability.Metrics) ([]dataset.Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geojson %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson %s: %w", path, err)
	}
	toGeo, err := geojsonTransform(path, fc, logger)
	if err != nil {
		return nil, err
	}

	var out []dataset.Boundary
	for i, f := range fc.Features {
		name := featureName(f, i)
		if nameFilter != "" && !strings.EqualFold(name, nameFilter) {
			continue
		}
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			logger.Warn("geojson feature is not a polygon, skipping", "path", path, "feature", i, "type", typeName(f.Geometry))
			metrics.RecordsSkipped.WithLabelValues("boundary").Inc()
			continue
		}
		if toGeo != nil {
			if mp, err = reproject(mp, toGeo); err != nil {
				logger.Warn("boundary reprojection failed, skipping", "path", path, "feature", i, "error", err)
				metrics.RecordsSkipped.WithLabelValues("boundary").Inc()
				continue
			}
		}
		b, err := fromOrb(name, mp, projector)
		if err != nil {
			logger.Warn("boundary shape rejected, skipping", "path", path, "feature", i, "error", err)
			metrics.RecordsSkipped.WithLabelValues("boundary").Inc()
			continue
		}
		out = append(out, b)
	}
	metrics.RecordsLoaded.WithLabelValues("boundary").Add(float64(len(out)))
	logger.Info("geojson boundaries loaded", "path", path, "boundaries", len(out))
	return out, nil
}

// geojsonTransform returns the transform from the file's declared crs to
// WGS-84, or nil when the coordinates already are WGS-84.
func geojsonTransform(path string, fc *geojson.FeatureCollection, logger *slog.Logger) (proj.Transformer, error) {
	raw, ok := fc.ExtraMembers["crs"]
	if !ok || raw == nil {
		logger.Warn("geojson has no coordinate reference system, assuming WGS-84", "path", path)
		return nil, nil
	}
	crs, _ := raw.(map[string]interface{})
	props, _ := crs["properties"].(map[string]interface{})
	name, _ := props["name"].(string)
	if name == "" {
		return nil, &domain.ProjectionError{Source: path, Err: fmt.Errorf("crs member has no name")}
	}
	code, ok := epsgCode(name)
	if !ok {
		return nil, &domain.ProjectionError{Source: path, CRS: name, Err: fmt.Errorf("unrecognized crs name")}
	}
	if code == "EPSG:4326" {
		return nil, nil
	}

	def := code
	if d, ok := crsDefs[code]; ok {
		def = d
	}
	src, err := proj.Parse(def)
	if err != nil {
		return nil, &domain.ProjectionError{Source: path, CRS: name, Err: err}
	}
	dst, err := proj.Parse(coverage.GeographicProj)
	if err != nil {
		return nil, fmt.Errorf("parse geographic projection: %w", err)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, &domain.ProjectionError{Source: path, CRS: name, Err: err}
	}
	if t == nil {
		return nil, nil // equivalent to WGS-84
	}
	logger.Info("reprojecting geojson to WGS-84", "path", path, "crs", code)
	return t, nil
}

// reproject applies t to every vertex, yielding longitude/latitude points.
func reproject(mp orb.MultiPolygon, t proj.Transformer) (orb.MultiPolygon, error) {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = make(orb.Polygon, len(poly))
		for j, ring := range poly {
			r := make(orb.Ring, len(ring))
			for k, pt := range ring {
				lon, lat, err := t(pt[0], pt[1])
				if err != nil {
					return nil, err
				}
				r[k] = orb.Point{lon, lat}
			}
			out[i][j] = r
		}
	}
	return out, nil
}

func featureName(f *geojson.Feature, i int) string {
	for _, key := range []string{"NAME", "name"} {
		if s := f.Properties.MustString(key, ""); s != "" {
			return s
		}
	}
	return fmt.Sprintf("feature %d", i)
}

func typeName(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}
