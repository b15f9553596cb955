package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedPoint is returned by ParsePoint when the text is not a
// "lng,lat" pair of finite numbers.
var ErrMalformedPoint = errors.New("malformed point")

// ErrInvalidPolygon wraps every shape violation reported by Polygon.Validate.
var ErrInvalidPolygon = errors.New("invalid polygon")

// ErrMalformedPosition is returned when a JSON position is not exactly a
// [lng, lat] pair.
var ErrMalformedPosition = errors.New("malformed position")

// PolygonType is the only GeoJSON geometry type accepted for regions.
const PolygonType = "Polygon"

// LngLat is a GeoJSON position: longitude first, latitude second.
type LngLat [2]float64

// Lng returns the longitude component.
func (p LngLat) Lng() float64 { return p[0] }

// Lat returns the latitude component.
func (p LngLat) Lat() float64 { return p[1] }

// InBounds reports whether the position lies inside the WGS84 ranges.
func (p LngLat) InBounds() bool {
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}

// UnmarshalJSON accepts exactly two numbers. The default array decoding
// would pad short input with zeros and drop extra elements.
func (p *LngLat) UnmarshalJSON(b []byte) error {
	var raw []float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPosition, err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("%w: expected [lng, lat], got %d elements", ErrMalformedPosition, len(raw))
	}
	*p = LngLat{raw[0], raw[1]}
	return nil
}

// GeoPoint is a transient query predicate, never persisted on its own.
type GeoPoint struct {
	Longitude float64
	Latitude  float64
}

// ParsePoint parses "lng,lat". Bounds are not checked here; the HTTP
// validation layer owns that.
func ParsePoint(text string) (GeoPoint, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return GeoPoint{}, fmt.Errorf("%w: expected \"lng,lat\", got %q", ErrMalformedPoint, text)
	}
	lng, err := parseFinite(parts[0])
	if err != nil {
		return GeoPoint{}, fmt.Errorf("%w: longitude: %v", ErrMalformedPoint, err)
	}
	lat, err := parseFinite(parts[1])
	if err != nil {
		return GeoPoint{}, fmt.Errorf("%w: latitude: %v", ErrMalformedPoint, err)
	}
	return GeoPoint{Longitude: lng, Latitude: lat}, nil
}

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not finite", s)
	}
	return f, nil
}

// Position returns the point as a GeoJSON position.
func (p GeoPoint) Position() LngLat { return LngLat{p.Longitude, p.Latitude} }

// GeoJSON renders the point in the shape Mongo geo operators expect.
func (p GeoPoint) GeoJSON() map[string]any {
	return map[string]any{
		"type":        "Point",
		"coordinates": []float64{p.Longitude, p.Latitude},
	}
}

// Polygon is a GeoJSON Polygon. The first ring is the outer boundary, any
// following rings are holes.
type Polygon struct {
	Type        string     `bson:"type" json:"type" validate:"required,eq=Polygon"`
	Coordinates [][]LngLat `bson:"coordinates" json:"coordinates" validate:"required,min=1,dive,min=4"`
}

// NewPolygon builds a Polygon from rings.
func NewPolygon(rings ...[]LngLat) Polygon {
	return Polygon{Type: PolygonType, Coordinates: rings}
}

// Validate checks the rules a 2dsphere index enforces on insert so that
// bad shapes are rejected before they reach the database.
func (p Polygon) Validate() error {
	if p.Type != PolygonType {
		return fmt.Errorf("%w: type must be %q", ErrInvalidPolygon, PolygonType)
	}
	if len(p.Coordinates) == 0 {
		return fmt.Errorf("%w: at least one ring is required", ErrInvalidPolygon)
	}
	for i, ring := range p.Coordinates {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring %d needs at least 4 positions", ErrInvalidPolygon, i)
		}
		for j, pos := range ring {
			if !pos.InBounds() {
				return fmt.Errorf("%w: ring %d position %d out of range", ErrInvalidPolygon, i, j)
			}
		}
		if ring[0] != ring[len(ring)-1] {
			return fmt.Errorf("%w: ring %d is not closed", ErrInvalidPolygon, i)
		}
	}

	rings := make([][]LngLat, len(p.Coordinates))
	for i, ring := range p.Coordinates {
		rings[i] = compactRing(ring)
		if len(rings[i]) < 4 || ringArea(rings[i]) < collinearEpsilon {
			return fmt.Errorf("%w: ring %d has no area", ErrInvalidPolygon, i)
		}
		if a, b, ok := selfIntersection(rings[i]); ok {
			return fmt.Errorf("%w: ring %d edges %d and %d intersect", ErrInvalidPolygon, i, a, b)
		}
	}
	for i := 1; i < len(rings); i++ {
		for j := 0; j < i; j++ {
			if ringsTouch(rings[j], rings[i]) {
				return fmt.Errorf("%w: rings %d and %d intersect", ErrInvalidPolygon, j, i)
			}
		}
		if !RingContains(rings[0], rings[i][0]) {
			return fmt.Errorf("%w: hole %d lies outside the outer ring", ErrInvalidPolygon, i)
		}
	}
	return nil
}

// Equal reports exact ring-by-ring equality.
func (p Polygon) Equal(o Polygon) bool {
	if p.Type != o.Type || len(p.Coordinates) != len(o.Coordinates) {
		return false
	}
	for i := range p.Coordinates {
		if len(p.Coordinates[i]) != len(o.Coordinates[i]) {
			return false
		}
		for j := range p.Coordinates[i] {
			if p.Coordinates[i][j] != o.Coordinates[i][j] {
				return false
			}
		}
	}
	return true
}

// GeoJSON renders the polygon for use inside a $geometry operator.
func (p Polygon) GeoJSON() map[string]any {
	rings := make([][][]float64, len(p.Coordinates))
	for i, ring := range p.Coordinates {
		rings[i] = make([][]float64, len(ring))
		for j, pos := range ring {
			rings[i][j] = []float64{pos[0], pos[1]}
		}
	}
	return map[string]any{"type": PolygonType, "coordinates": rings}
}
