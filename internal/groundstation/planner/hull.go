package planner

import (
	"math"
	"sort"
)

// point2 is a local Cartesian point, in meters, relative to the planner's
// reference origin.
type point2 struct {
	X, Y float64
}

func (p point2) sub(o point2) point2 { return point2{p.X - o.X, p.Y - o.Y} }
func (p point2) norm() float64       { return math.Hypot(p.X, p.Y) }
func (p point2) normalize() point2 {
	n := p.norm()
	if n == 0 {
		return point2{0, 0}
	}
	return point2{p.X / n, p.Y / n}
}
func perp(v point2) point2        { return point2{-v.Y, v.X} }
func dot(a, b point2) float64     { return a.X*b.X + a.Y*b.Y }
func cross(o, a, b point2) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// convexHull computes the convex hull of pts using Andrew's monotone chain
// algorithm, returning hull vertices in counter-clockwise order without a
// repeated closing point. Duplicate points are tolerated.
func convexHull(pts []point2) []point2 {
	if len(pts) < 3 {
		return append([]point2(nil), pts...)
	}

	sorted := append([]point2(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	build := func(points []point2) []point2 {
		hull := make([]point2, 0, len(points))
		for _, p := range points {
			for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
				hull = hull[:len(hull)-1]
			}
			hull = append(hull, p)
		}
		return hull
	}

	lower := build(sorted)

	reversed := make([]point2, len(sorted))
	for i, p := range sorted {
		reversed[len(sorted)-1-i] = p
	}
	upper := build(reversed)

	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	return hull
}

// areColinear reports whether every point lies on a single line through the
// first two points, matching ConvexHullScalable.py's are_colinear.
func areColinear(pts []point2, tol float64) bool {
	if len(pts) < 3 {
		return true
	}
	x0, y0 := pts[0].X, pts[0].Y
	x1, y1 := pts[1].X, pts[1].Y
	for _, p := range pts[2:] {
		cp := (x1-x0)*(p.Y-y0) - (y1-y0)*(p.X-x0)
		if math.Abs(cp) > tol {
			return false
		}
	}
	return true
}

// rectangle is a minimum-area rectangle description: center, two orthonormal
// axes, and the half-width extent along each axis.
type rectangle struct {
	center point2
	axis   [2]point2
	extent [2]float64
	area   float64
}

// minAreaRectangleOfHull implements the rotating-calipers scan over hull
// edges, keeping the minimum-area rectangle, ties broken by lower edge
// index. polygon must be given in hull order (as returned by convexHull).
func minAreaRectangleOfHull(polygon []point2) rectangle {
	best := rectangle{area: math.Inf(1)}
	n := len(polygon)

	for i0 := 0; i0 < n; i0++ {
		i1 := (i0 + 1) % n
		origin := polygon[i0]
		u0 := polygon[i1].sub(origin).normalize()
		u1 := perp(u0)

		min0, max0 := 0.0, 0.0
		max1 := 0.0

		for j := 0; j < n; j++ {
			d := polygon[j].sub(origin)
			d0 := dot(u0, d)
			if d0 < min0 {
				min0 = d0
			}
			if d0 > max0 {
				max0 = d0
			}
			d1 := dot(u1, d)
			if d1 > max1 {
				max1 = d1
			}
		}

		area := (max0 - min0) * max1
		if area < best.area {
			best.center = point2{
				X: origin.X + (min0+max0)/2*u0.X + max1/2*u1.X,
				Y: origin.Y + (min0+max0)/2*u0.Y + max1/2*u1.Y,
			}
			best.axis = [2]point2{u0, u1}
			best.extent = [2]float64{(max0 - min0) / 2, max1 / 2}
			best.area = area
		}
	}

	return best
}

// boundingRectangle returns the rectangle used to size and orient the
// square cover: the rotating-calipers minimum-area rectangle of the convex
// hull, or — for (near-)collinear input — a degenerate rectangle along the
// extreme points' direction, centered on the mean, matching
// ConvexHullScalable.py's collinear fallback.
func boundingRectangle(pts []point2) rectangle {
	if areColinear(pts, 1e-9) {
		var sumX, sumY float64
		for _, p := range pts {
			sumX += p.X
			sumY += p.Y
		}
		center := point2{sumX / float64(len(pts)), sumY / float64(len(pts))}

		sorted := append([]point2(nil), pts...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })
		start, end := sorted[0], sorted[len(sorted)-1]

		direction := end.sub(center)
		u0 := direction.normalize()
		u1 := perp(u0)
		extentLong := direction.norm()

		_ = start
		return rectangle{
			center: center,
			axis:   [2]point2{u0, u1},
			extent: [2]float64{extentLong, extentLong / 2},
			area:   4 * extentLong * (extentLong / 2),
		}
	}

	hull := convexHull(pts)
	return minAreaRectangleOfHull(hull)
}
