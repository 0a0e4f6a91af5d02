package planner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspirers/groundstation/internal/groundstation/geo"
)

func square(id string, lat, lng float64, size float64) []geo.Coordinate {
	return []geo.Coordinate{
		{Lat: lat - size, Lng: lng - size},
		{Lat: lat - size, Lng: lng + size},
		{Lat: lat + size, Lng: lng + size},
		{Lat: lat + size, Lng: lng - size},
	}
}

func TestPlanSingleDroneAssignment(t *testing.T) {
	origin := geo.Coordinate{Lat: 57.7, Lng: 11.9}
	trajectories := TrajectorySet{
		"obj1": square("obj1", 57.7, 11.9, 0.0005),
	}

	targets, err := Plan(trajectories, origin, 1, 0.5, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.GreaterOrEqual(t, targets[0].Coordinate.Alt, 30.0)
	assert.LessOrEqual(t, targets[0].Coordinate.Alt, 99.0)
}

func TestPlanTwoDroneSymmetry(t *testing.T) {
	origin := geo.Coordinate{Lat: 57.7, Lng: 11.9}
	trajectories := TrajectorySet{
		"obj1": square("obj1", 57.7, 11.9, 0.002),
	}

	targets, err := Plan(trajectories, origin, 2, 0.5, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, targets, 2)

	dx0, dy0 := geo.GeodeticToLocal(origin, targets[0].Coordinate)
	dx1, dy1 := geo.GeodeticToLocal(origin, targets[1].Coordinate)
	midX, midY := (dx0+dx1)/2, (dy0+dy1)/2
	assert.LessOrEqual(t, math.Abs(midX), 1.0, "two-drone centers not symmetric about origin on X")
	assert.LessOrEqual(t, math.Abs(midY), 1.0, "two-drone centers not symmetric about origin on Y")
	assert.Equal(t, targets[0].AngleDeg, targets[1].AngleDeg, "two-drone yaw mismatch")
}

func TestPlanRejectsExcessiveOverlapForMultipleDrones(t *testing.T) {
	origin := geo.Coordinate{Lat: 57.7, Lng: 11.9}
	trajectories := TrajectorySet{
		"obj1": square("obj1", 57.7, 11.9, 0.002),
	}

	_, err := Plan(trajectories, origin, 2, 0.95, DefaultConfig())
	require.Error(t, err, "expected ConfigError for overlap > 0.9 with drone_count >= 2")
}

func TestPlanRejectsEmptyTrajectorySet(t *testing.T) {
	origin := geo.Coordinate{Lat: 57.7, Lng: 11.9}
	_, err := Plan(TrajectorySet{}, origin, 1, 0.5, DefaultConfig())
	require.Error(t, err, "expected ConfigError for empty trajectory set")
}

func TestCalculateHeightInversionRoundTrips(t *testing.T) {
	fov := DefaultConfig().FOVDegrees
	theta := (fov / 2) * math.Pi / 180
	for _, height := range []float64{30, 45, 60, 99} {
		squareSize := 0.6 * height * math.Tan(theta)
		got := calculateHeight(squareSize, fov)
		assert.InDelta(t, height, got, 0.01)
	}
}

func TestWrapDegrees(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{359, 359},
		{360, 0},
		{-90, 270},
		{450, 90},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, wrapDegrees(tt.in), 1e-9)
	}
}
