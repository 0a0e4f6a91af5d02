// Package planner computes, from a set of ground-object trajectories and a
// reference origin, where each drone in the fleet should fly and at what
// yaw, so its camera best frames the objects under test. It ports the
// rotating-calipers square-cover algorithm of ConvexHullScalable.py.
package planner

import "github.com/inspirers/groundstation/internal/groundstation/geo"

// TrajectorySet maps an object identifier to its ordered position history
// for one test run.
type TrajectorySet map[string][]geo.Coordinate

// FlyToTarget is a geodetic coordinate plus the yaw, in degrees clockwise
// from north, the drone should adopt once there.
type FlyToTarget struct {
	Coordinate geo.Coordinate
	AngleDeg   float64
}

// Config carries the tunables §6.4 of the spec names for the planner: the
// camera field of view and the regulatory altitude band.
type Config struct {
	FOVDegrees   float64
	AltitudeMinM float64
	AltitudeMaxM float64
}

// DefaultConfig matches the defaults named in the spec's configuration
// section: a Chalmers-drone-style 82.6 degree FOV and a 30-99 m altitude band.
func DefaultConfig() Config {
	return Config{
		FOVDegrees:   82.6,
		AltitudeMinM: 30,
		AltitudeMaxM: 99,
	}
}
