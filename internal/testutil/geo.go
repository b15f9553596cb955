package testutil

import (
	"math"

	"github.com/iliyamo/geo-regions/internal/model"
)

const earthRadiusMeters = 6378100.0

// PolygonContains reports whether p lies inside the outer ring and outside
// every hole.  Points on the boundary count as inside.
func PolygonContains(poly model.Polygon, p model.LngLat) bool {
	if len(poly.Coordinates) == 0 || !ringContains(poly.Coordinates[0], p) {
		return false
	}
	for _, hole := range poly.Coordinates[1:] {
		if ringContains(hole, p) && !onRing(hole, p) {
			return false
		}
	}
	return true
}

// PolygonsIntersect reports whether the outer rings of a and b share any
// point, including touching edges and full containment.
func PolygonsIntersect(a, b model.Polygon) bool {
	if len(a.Coordinates) == 0 || len(b.Coordinates) == 0 {
		return false
	}
	ra, rb := a.Coordinates[0], b.Coordinates[0]
	for i := 0; i+1 < len(ra); i++ {
		for j := 0; j+1 < len(rb); j++ {
			if model.SegmentsIntersect(ra[i], ra[i+1], rb[j], rb[j+1]) {
				return true
			}
		}
	}
	return ringContains(rb, ra[0]) || ringContains(ra, rb[0])
}

// DistanceToPolygon is the great-circle distance in meters from p to the
// nearest point of poly, zero when p is inside.
func DistanceToPolygon(p model.LngLat, poly model.Polygon) float64 {
	if PolygonContains(poly, p) {
		return 0
	}
	best := math.Inf(1)
	if len(poly.Coordinates) == 0 {
		return best
	}
	ring := poly.Coordinates[0]
	for i := 0; i+1 < len(ring); i++ {
		if d := haversine(p, closestOnSegment(p, ring[i], ring[i+1])); d < best {
			best = d
		}
	}
	return best
}

func ringContains(ring []model.LngLat, p model.LngLat) bool {
	return model.RingContains(ring, p)
}

func onRing(ring []model.LngLat, p model.LngLat) bool {
	for i := 0; i+1 < len(ring); i++ {
		if model.OnSegment(ring[i], ring[i+1], p) {
			return true
		}
	}
	return false
}

func closestOnSegment(p, a, b model.LngLat) model.LngLat {
	dx, dy := b.Lng()-a.Lng(), b.Lat()-a.Lat()
	if dx == 0 && dy == 0 {
		return a
	}
	t := ((p.Lng()-a.Lng())*dx + (p.Lat()-a.Lat())*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return model.LngLat{a.Lng() + t*dx, a.Lat() + t*dy}
}

func haversine(a, b model.LngLat) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	lat1, lat2 := toRad(a.Lat()), toRad(b.Lat())
	dLat, dLng := lat2-lat1, toRad(b.Lng()-a.Lng())
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
