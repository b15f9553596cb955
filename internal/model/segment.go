package model

import "math"

// planar tolerance for collinearity, in squared degrees
const collinearEpsilon = 1e-12

// SegmentsIntersect reports whether segments p1-q1 and p2-q2 share any
// point, touching endpoints included.
func SegmentsIntersect(p1, q1, p2, q2 LngLat) bool {
	o1 := orientation(p1, q1, p2)
	o2 := orientation(p1, q1, q2)
	o3 := orientation(p2, q2, p1)
	o4 := orientation(p2, q2, q1)
	if o1 != o2 && o3 != o4 {
		return true
	}
	return (o1 == 0 && inBox(p1, p2, q1)) ||
		(o2 == 0 && inBox(p1, q2, q1)) ||
		(o3 == 0 && inBox(p2, p1, q2)) ||
		(o4 == 0 && inBox(p2, q1, q2))
}

// OnSegment reports whether p lies on the segment a-b.
func OnSegment(a, b, p LngLat) bool {
	return orientation(a, b, p) == 0 && inBox(a, p, b)
}

// RingContains reports whether p lies inside the closed ring or on its
// boundary, using planar even-odd crossing.
func RingContains(ring []LngLat, p LngLat) bool {
	for i := 0; i+1 < len(ring); i++ {
		if OnSegment(ring[i], ring[i+1], p) {
			return true
		}
	}
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i].Lng(), ring[i].Lat()
		xj, yj := ring[j].Lng(), ring[j].Lat()
		if (yi > p.Lat()) != (yj > p.Lat()) &&
			p.Lng() < (xj-xi)*(p.Lat()-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func orientation(a, b, c LngLat) int {
	v := (b.Lat()-a.Lat())*(c.Lng()-b.Lng()) - (b.Lng()-a.Lng())*(c.Lat()-b.Lat())
	switch {
	case math.Abs(v) < collinearEpsilon:
		return 0
	case v > 0:
		return 1
	default:
		return 2
	}
}

// inBox reports whether q lies within the bounding box of p-r.
func inBox(p, q, r LngLat) bool {
	return q.Lng() <= math.Max(p.Lng(), r.Lng()) && q.Lng() >= math.Min(p.Lng(), r.Lng()) &&
		q.Lat() <= math.Max(p.Lat(), r.Lat()) && q.Lat() >= math.Min(p.Lat(), r.Lat())
}

// compactRing drops consecutive repeated positions. The result is still
// closed when the input was.
func compactRing(ring []LngLat) []LngLat {
	out := make([]LngLat, 0, len(ring))
	for i, pos := range ring {
		if i > 0 && pos == out[len(out)-1] {
			continue
		}
		out = append(out, pos)
	}
	return out
}

// ringArea is the planar shoelace area of a closed ring.
func ringArea(ring []LngLat) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i].Lng()*ring[i+1].Lat() - ring[i+1].Lng()*ring[i].Lat()
	}
	return math.Abs(sum) / 2
}

// selfIntersection returns the first pair of non-adjacent edges of a
// compacted closed ring that touch or cross.
func selfIntersection(ring []LngLat) (int, int, bool) {
	m := len(ring) - 1
	for i := 0; i < m; i++ {
		for j := i + 2; j < m; j++ {
			if i == 0 && j == m-1 {
				continue
			}
			if SegmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func ringsTouch(a, b []LngLat) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if SegmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}
