package geo

import (
	"sort"
	"sync"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// indexLevel buckets points into S2 cells of roughly 20-40 km.
const indexLevel = 9

// Point is an indexed organization location.
type Point struct {
	ID  string
	Lat float64
	Lon float64
}

// Neighbor pairs an indexed point with its distance from a query.
type Neighbor struct {
	OrgID          string  `json:"org_id"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Index is an in-memory nearest-neighbor structure. Points are grouped by
// S2 cell so a query first scans the cells covering a cap around the
// query point and only falls back to a full scan when that is not enough.
type Index struct {
	mu     sync.RWMutex
	cells  map[s2.CellID][]Point
	size   int
	radius float64
}

// NewIndex creates an empty index whose first search ring covers
// searchRadiusMeters around the query point.
func NewIndex(searchRadiusMeters float64) *Index {
	return &Index{
		cells:  make(map[s2.CellID][]Point),
		radius: searchRadiusMeters,
	}
}

// Load replaces the index contents. Points with invalid coordinates are
// skipped and counted in the return value.
func (ix *Index) Load(points []Point) (skipped int) {
	cells := make(map[s2.CellID][]Point)
	size := 0
	for _, p := range points {
		if !IsValidLatLon(p.Lat, p.Lon) {
			skipped++
			continue
		}
		id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon)).Parent(indexLevel)
		cells[id] = append(cells[id], p)
		size++
	}

	ix.mu.Lock()
	ix.cells = cells
	ix.size = size
	ix.mu.Unlock()
	return skipped
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.size
}

// Nearest returns up to limit points ordered ascending by distance.
//
// Every point within the search radius lives in a covering cell, so the ring
// result is exact whenever its limit-th neighbor is inside the radius.
func (ix *Index) Nearest(lat, lon float64, limit int) []Neighbor {
	if limit <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := rank(lat, lon, ix.ring(lat, lon))
	if len(out) < limit || out[limit-1].DistanceMeters > ix.radius {
		out = rank(lat, lon, ix.all())
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func rank(lat, lon float64, points []Point) []Neighbor {
	out := make([]Neighbor, 0, len(points))
	for _, p := range points {
		out = append(out, Neighbor{
			OrgID:          p.ID,
			DistanceMeters: DistanceMeters(lat, lon, p.Lat, p.Lon),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters == out[j].DistanceMeters {
			return out[i].OrgID < out[j].OrgID
		}
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	return out
}

// ring collects points from the cells covering the search cap.
func (ix *Index) ring(lat, lon float64) []Point {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	capRegion := s2.CapFromCenterAngle(center, s1.Angle(ix.radius/earthRadiusInMeters))

	coverer := &s2.RegionCoverer{MinLevel: indexLevel, MaxLevel: indexLevel, MaxCells: 64}
	var out []Point
	for _, id := range coverer.Covering(capRegion) {
		out = append(out, ix.cells[id]...)
	}
	return out
}

func (ix *Index) all() []Point {
	out := make([]Point, 0, ix.size)
	for _, pts := range ix.cells {
		out = append(out, pts...)
	}
	return out
}
