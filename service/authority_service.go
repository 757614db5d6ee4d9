package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"cityzen/geo"
	"cityzen/models"
)

// AuthoritySource loads the authorities servicing a category with their areas.
type AuthoritySource interface {
	AuthoritiesForCategory(ctx context.Context, categoryID int64) ([]models.AuthorityCompany, error)
}

// AuthorityService recommends authorities for a location. It is read-only.
type AuthorityService struct {
	source  AuthoritySource
	timeout time.Duration
}

// NewAuthorityService creates a new authority service
func NewAuthorityService(source AuthoritySource, timeout time.Duration) *AuthorityService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AuthorityService{source: source, timeout: timeout}
}

// Recommend returns candidate authorities for the category at (lat, lon).
func (s *AuthorityService) Recommend(ctx context.Context, categoryID int64, lat, lon float64) (*models.RecommendationResponse, error) {
	if categoryID <= 0 {
		return nil, &models.ValidationError{Field: "categoryId", Message: "category is required"}
	}
	if !geo.ValidCoordinates(lat, lon) {
		return nil, &models.ValidationError{Field: "latitude", Message: "coordinates out of range"}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	authorities, err := s.source.AuthoritiesForCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorities: %w", err)
	}
	resp := RankAuthorities(authorities, lat, lon)
	return &resp, nil
}

// RankAuthorities orders authorities whose service areas contain the point by
// distance to the nearest containing area, ties by id. When none contain it,
// every authority with at least one area is returned ranked by distance to its
// nearest area centre and flagged out of area.
func RankAuthorities(authorities []models.AuthorityCompany, lat, lon float64) models.RecommendationResponse {
	var inArea, fallback []ranked
	for _, a := range authorities {
		nearestIn, nearestAny := math.Inf(1), math.Inf(1)
		for _, area := range a.Areas {
			d := geo.HaversineKm(lat, lon, area.Latitude, area.Longitude)
			nearestAny = math.Min(nearestAny, d)
			if d <= area.RadiusKm {
				nearestIn = math.Min(nearestIn, d)
			}
		}
		rec := models.AuthorityRecommendation{AuthorityID: a.ID, Name: a.Name, Description: a.Description}
		switch {
		case !math.IsInf(nearestIn, 1):
			inArea = append(inArea, ranked{rec: rec, km: nearestIn})
		case !math.IsInf(nearestAny, 1):
			rec.OutOfArea = true
			fallback = append(fallback, ranked{rec: rec, km: nearestAny})
		}
	}
	if len(inArea) > 0 {
		return models.RecommendationResponse{Authorities: sortRecommendations(inArea)}
	}
	recs := sortRecommendations(fallback)
	return models.RecommendationResponse{Authorities: recs, Fallback: len(recs) > 0}
}

// ranked keeps the exact distance for ordering; output distances are rounded.
type ranked struct {
	rec models.AuthorityRecommendation
	km  float64
}

func sortRecommendations(rs []ranked) []models.AuthorityRecommendation {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].km != rs[j].km {
			return rs[i].km < rs[j].km
		}
		return rs[i].rec.AuthorityID < rs[j].rec.AuthorityID
	})
	out := make([]models.AuthorityRecommendation, 0, len(rs))
	for _, r := range rs {
		r.rec.DistanceKm = round3(r.km)
		out = append(out, r.rec)
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
