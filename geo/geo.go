// Package geo has the great-circle math used by routing and duplicate detection,
// plus the H3 cells that serialize concurrent submissions at one location.
package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/uber/h3-go/v4"
)

const EarthRadiusKm = 6371.0

// LockResolution is the H3 resolution used for submission guard cells. Its edge
// length (~174 m) must stay above the duplicate radius so that any two points
// within the radius fall in the same or adjacent cells.
const LockResolution = 9

// MaxLockRadiusMeters is the largest duplicate radius LockKeys stays correct for.
const MaxLockRadiusMeters = 150.0

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ValidCoordinates reports whether lat/lon are inside WGS84 bounds.
func ValidCoordinates(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// BoundingBox is a lat/lon rectangle used to pre-filter candidates in SQL
// before the exact haversine check.
type BoundingBox struct {
	MinLat, MaxLat, MinLon, MaxLon float64
}

// BoxAround returns a box that contains every point within radiusKm of (lat, lon).
// A box that crosses the antimeridian wraps: MinLon is then greater than MaxLon.
func BoxAround(lat, lon, radiusKm float64) BoundingBox {
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi
	box := BoundingBox{
		MinLat: math.Max(lat-dLat, -90),
		MaxLat: math.Min(lat+dLat, 90),
		MinLon: -180,
		MaxLon: 180,
	}
	cosLat := math.Cos(toRad(lat))
	if cosLat <= 1e-9 || lat+dLat >= 90 || lat-dLat <= -90 {
		return box
	}
	dLon := dLat / cosLat
	if dLon >= 180 {
		return box
	}
	box.MinLon, box.MaxLon = lon-dLon, lon+dLon
	if box.MinLon < -180 {
		box.MinLon += 360
	}
	if box.MaxLon > 180 {
		box.MaxLon -= 360
	}
	return box
}

// Wraps reports whether the box crosses the antimeridian.
func (b BoundingBox) Wraps() bool { return b.MinLon > b.MaxLon }

func (b BoundingBox) Contains(lat, lon float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.Wraps() {
		return lon >= b.MinLon || lon <= b.MaxLon
	}
	return lon >= b.MinLon && lon <= b.MaxLon
}

// LockKeys returns the sorted guard-row keys for a submission: the category
// combined with the point's H3 cell and its ring-1 neighbours. Two points within
// the duplicate radius always share at least one key.
func LockKeys(categoryID int64, lat, lon float64) []string {
	origin := h3.LatLngToCell(h3.NewLatLng(lat, lon), LockResolution)
	cells := h3.GridDisk(origin, 1)
	keys := make([]string, 0, len(cells))
	for _, c := range cells {
		keys = append(keys, fmt.Sprintf("%d:%s", categoryID, c.String()))
	}
	sort.Strings(keys)
	return keys
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
