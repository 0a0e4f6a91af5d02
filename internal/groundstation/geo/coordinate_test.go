package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-6

func TestRoundTrip(t *testing.T) {
	origin := Coordinate{Lat: 57.7, Lng: 11.9, Alt: 0}

	tests := []struct {
		name   string
		dx, dy float64
	}{
		{"origin", 0, 0},
		{"north", 0, 50},
		{"east", 50, 0},
		{"northeast-small-city", 3000, 4500},
		{"near-10km", 7000, 7000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := LocalToGeodetic(origin, tt.dx, tt.dy, 42)
			gotDx, gotDy := GeodeticToLocal(origin, c)
			assert.InDelta(t, tt.dx, gotDx, 0.001, "dx round-trip")
			assert.InDelta(t, tt.dy, gotDy, 0.001, "dy round-trip")
		})
	}
}

func TestLocalToGeodeticPreservesAltitude(t *testing.T) {
	origin := Coordinate{Lat: 57.7, Lng: 11.9, Alt: 0}
	c := LocalToGeodetic(origin, 10, 10, 73)
	require.Equal(t, 73.0, c.Alt)
}

func TestGeodeticToLocalAtOriginIsZero(t *testing.T) {
	origin := Coordinate{Lat: 57.7, Lng: 11.9, Alt: 0}
	dx, dy := GeodeticToLocal(origin, origin)
	assert.InDelta(t, 0, dx, epsilon)
	assert.InDelta(t, 0, dy, epsilon)
}
