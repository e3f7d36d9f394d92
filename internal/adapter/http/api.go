package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/hex-coverage-etl/internal/coverage"
	"github.com/couchcryptid/hex-coverage-etl/internal/dataset"
	"github.com/couchcryptid/hex-coverage-etl/internal/domain"
)

const (
	defaultSearchLimit = 500
	maxSearchLimit     = 5000
)

// Querier answers radius and dashboard queries against a loaded snapshot.
type Querier interface {
	QueryRadius(q domain.RadiusQuery, policy coverage.Policy) (domain.RadiusResult, error)
	Search(f dataset.Filter) (dataset.SearchResult, error)
}

// API holds the query handlers.
type API struct {
	querier Querier
	logger  *slog.Logger
}

type queryRadiusRequest struct {
	Lat      *float64 `json:"lat" binding:"required"`
	Lon      *float64 `json:"lon" binding:"required"`
	RadiusKm *float64 `json:"radius_km" binding:"required"`
}

type queryRadiusResponse struct {
	TotalPopulation  int64   `json:"total_population"`
	MatchedCellCount int     `json:"matched_cell_count"`
	MatchedHexes     int     `json:"matched_hexes"` // same count, legacy name
	RadiusKm         float64 `json:"radius_km"`
}

// QueryRadius POST /query_radius - population within a radius of a point.
func (a *API) QueryRadius(c *gin.Context) {
	var req queryRadiusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "lat, lon and radius_km are required: "+err.Error())
		return
	}

	q := domain.RadiusQuery{Center: domain.Geo{Lat: *req.Lat, Lon: *req.Lon}, RadiusKm: *req.RadiusKm}
	res, err := a.querier.QueryRadius(q, coverage.PolicyAreaWeighted)
	if err != nil {
		a.queryError(c, err)
		return
	}

	c.JSON(http.StatusOK, queryRadiusResponse{
		TotalPopulation:  int64(res.WeightedPopulation),
		MatchedCellCount: res.MatchedCells,
		MatchedHexes:     res.MatchedCells,
		RadiusKm:         q.RadiusKm,
	})
}

type searchRequest struct {
	MinDensity *float64 `json:"min_density"`
	MaxDensity *float64 `json:"max_density"`
	State      string   `json:"state"`
	County     string   `json:"county"`
	City       string   `json:"city"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	RadiusKm   *float64 `json:"radius_km"`
	Limit      int      `json:"limit"`
}

type searchResponse struct {
	Total           int                       `json:"total"`
	TotalPopulation float64                   `json:"total_population"`
	Hexes           []domain.PopulationRecord `json:"hexes"`
}

// SearchHexes POST /hexes/search - dashboard filters over the snapshot.
func (a *API) SearchHexes(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid JSON format: "+err.Error())
		return
	}
	if req.MinDensity != nil && req.MaxDensity != nil && *req.MinDensity > *req.MaxDensity {
		badRequest(c, "invalid_parameter", "min_density must not exceed max_density")
		return
	}
	if req.Limit < 0 || req.Limit > maxSearchLimit {
		badRequest(c, "invalid_parameter", "limit must be between 0 and 5000")
		return
	}

	f := dataset.Filter{
		MinDensity: req.MinDensity,
		MaxDensity: req.MaxDensity,
		State:      req.State,
		County:     req.County,
		City:       req.City,
		Limit:      req.Limit,
	}
	if f.Limit == 0 {
		f.Limit = defaultSearchLimit
	}
	switch {
	case req.Lat != nil && req.Lon != nil && req.RadiusKm != nil:
		f.Near = &domain.RadiusQuery{Center: domain.Geo{Lat: *req.Lat, Lon: *req.Lon}, RadiusKm: *req.RadiusKm}
	case req.Lat != nil || req.Lon != nil || req.RadiusKm != nil:
		badRequest(c, "invalid_parameter", "lat, lon and radius_km must be given together")
		return
	}

	res, err := a.querier.Search(f)
	if err != nil {
		a.queryError(c, err)
		return
	}
	hexes := res.Records
	if hexes == nil {
		hexes = []domain.PopulationRecord{}
	}
	c.JSON(http.StatusOK, searchResponse{Total: res.Total, TotalPopulation: res.TotalPopulation, Hexes: hexes})
}

func (a *API) queryError(c *gin.Context, err error) {
	var projErr *domain.ProjectionError
	switch {
	case errors.Is(err, domain.ErrInvalidRadius), errors.Is(err, domain.ErrInvalidCoordinate):
		badRequest(c, "invalid_query", err.Error())
	case errors.As(err, &projErr):
		badRequest(c, "unsupported_location", err.Error())
	default:
		a.logger.Error("query failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "query failed",
		})
	}
}

func badRequest(c *gin.Context, code, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   code,
		"message": msg,
	})
}
