package planner

import (
	"math"

	gs "github.com/inspirers/groundstation/internal/groundstation"
	"github.com/inspirers/groundstation/internal/groundstation/geo"
)

// shrinkFactor and maxShrinkIterations bound the square-cover shrink loop:
// each iteration tightens the candidate square by 2% until the split between
// drone centers no longer overruns the rectangle's long extent, or the cap
// is hit, matching ConvexHullScalable.py's getDronesLoc.
const (
	shrinkFactor        = 0.98
	maxShrinkIterations = 99
)

// Plan implements the square-cover drone placement: flatten every object's
// trajectory into the local plane, fit the minimum-area bounding rectangle,
// shrink a square cover to the requested overlap, then lay droneCount
// cameras out along the rectangle's long axis at a height that keeps the
// square inside each camera's field of view.
func Plan(trajectories TrajectorySet, origin geo.Coordinate, droneCount int, overlap float64, cfg Config) ([]FlyToTarget, error) {
	if len(trajectories) == 0 {
		return nil, &gs.ConfigError{Reason: "trajectory set is empty"}
	}
	if droneCount >= 2 && overlap > 0.9 {
		return nil, &gs.ConfigError{Reason: "overlap must not exceed 0.9 when drone_count >= 2"}
	}

	var pts []point2
	for _, track := range trajectories {
		for _, c := range track {
			dx, dy := geo.GeodeticToLocal(origin, c)
			pts = append(pts, point2{X: dx, Y: dy})
		}
	}
	if len(pts) == 0 {
		return nil, &gs.ConfigError{Reason: "trajectory set contains no points"}
	}
	allEqual := true
	for _, p := range pts[1:] {
		if p != pts[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return nil, &gs.ConfigError{Reason: "trajectory points are all identical"}
	}

	rect := boundingRectangle(pts)
	longIdx, shortIdx := 0, 1
	if rect.extent[1] > rect.extent[0] {
		longIdx, shortIdx = 1, 0
	}
	longAxis := rect.axis[longIdx]
	longExtent := rect.extent[longIdx]
	shortExtent := rect.extent[shortIdx]

	squareSize, splitOffset := squareSizeAndOffset(longExtent, shortExtent, droneCount, overlap)
	centers := layoutCenters(rect.center, longAxis, splitOffset, droneCount)

	theta := (cfg.FOVDegrees / 2) * math.Pi / 180
	height := math.Round(calculateHeight(squareSize, cfg.FOVDegrees))
	if height > cfg.AltitudeMaxM {
		height = cfg.AltitudeMaxM
		squareSize = 0.6 * height * math.Tan(theta)
		splitOffset = squareSize * (1 - overlap) * 2
		centers = layoutCenters(rect.center, longAxis, splitOffset, droneCount)
	} else if height < cfg.AltitudeMinM {
		height = cfg.AltitudeMinM
		squareSize = 0.6 * height * math.Tan(theta)
		splitOffset = squareSize * (1 - overlap) * 2
		centers = layoutCenters(rect.center, longAxis, splitOffset, droneCount)
	}

	yaw := wrapDegrees(math.Atan2(longAxis.Y, longAxis.X)*180/math.Pi + 90)

	targets := make([]FlyToTarget, 0, droneCount)
	for _, c := range centers {
		geoCoord := geo.LocalToGeodetic(origin, c.X, c.Y, height)
		targets = append(targets, FlyToTarget{Coordinate: geoCoord, AngleDeg: yaw})
	}
	return targets, nil
}

// squareSizeAndOffset ports getDronesLoc's square-size search verbatim: for
// a single drone the square is just 1.1x the long extent; for N>=2 it starts
// at the long extent and shrinks by shrinkFactor each iteration until the
// span of N centers spaced splitOffset apart no longer overruns
// 2*longExtent*1.1, capped at maxShrinkIterations iterations and floored so
// the square never shrinks past 1.1x the short extent.
func squareSizeAndOffset(longExtent, shortExtent float64, droneCount int, overlap float64) (squareSize, splitOffset float64) {
	if droneCount <= 1 {
		squareSize = 1.1 * longExtent
		splitOffset = squareSize * (1 - overlap) * 2
		return squareSize, splitOffset
	}

	squareSize = longExtent
	splitOffset = math.Inf(1)
	n := float64(droneCount)

	iter := 0
	for splitOffset*n+splitOffset >= longExtent*2*1.1 {
		iter++
		if iter >= maxShrinkIterations {
			break
		}
		squareSize *= shrinkFactor
		splitOffset = squareSize * (1 - overlap) * 2
	}

	if squareSize < shortExtent*1.1 {
		squareSize = shortExtent * 1.1
		splitOffset = squareSize * (1 - overlap) * 2
	}

	return squareSize, splitOffset
}

// layoutCenters places droneCount centers along axis, splitOffset meters
// apart, symmetric about center: centers[i] = center + (i - (N-1)/2) *
// splitOffset * axis, exactly ConvexHullScalable.py's drone_centers
// comprehension.
func layoutCenters(center, axis point2, splitOffset float64, droneCount int) []point2 {
	out := make([]point2, droneCount)
	mid := float64(droneCount-1) / 2
	for i := 0; i < droneCount; i++ {
		offset := (float64(i) - mid) * splitOffset
		out[i] = point2{
			X: center.X + axis.X*offset,
			Y: center.Y + axis.Y*offset,
		}
	}
	return out
}

// calculateHeight ports ConvexHullScalable.py's camera-height formula. The
// original derives its working variable x from an area of (2*squareSize)^2,
// i.e. x = squareSize/6; from there y = 4x gives the framed rectangle's
// half-height and the diagonal radius sets the required camera distance.
func calculateHeight(squareSize, fovDegrees float64) float64 {
	theta := (fovDegrees / 2) * math.Pi / 180
	x := squareSize / 6
	y := 4 * x
	radius := math.Hypot(2*y, 1.5*y)
	return radius / math.Tan(theta)
}

func wrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
