package supervisor

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/inspirers/groundstation/internal/groundstation/geo"
	"github.com/inspirers/groundstation/internal/groundstation/planner"
)

// trajectoryInputFile is the on-disk shape the orchestrator integration
// (out of scope for this core, per §1) writes before the supervisor
// starts: the object trajectories, local-plane origin, and fleet sizing.
type trajectoryInputFile struct {
	Trajectories map[string][]struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
		Alt float64 `json:"alt"`
	} `json:"trajectories"`
	Origin struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"origin"`
	DroneCount int     `json:"drone_count"`
	Overlap    float64 `json:"overlap"`
}

// LoadTrajectoryInput reads the orchestrator-supplied test geometry from a
// JSON file. This is the one concrete handoff point the core needs from
// its "out of scope" orchestrator collaborator (§1, §9): a file path is
// the simplest contract that keeps the core itself free of any
// orchestrator-specific transport.
func LoadTrajectoryInput(path string) (TrajectoryInput, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return TrajectoryInput{}, fmt.Errorf("reading trajectory input %s: %w", path, err)
	}

	var parsed trajectoryInputFile
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TrajectoryInput{}, fmt.Errorf("parsing trajectory input %s: %w", path, err)
	}

	trajectories := make(planner.TrajectorySet, len(parsed.Trajectories))
	for id, points := range parsed.Trajectories {
		coords := make([]geo.Coordinate, 0, len(points))
		for _, p := range points {
			coords = append(coords, geo.Coordinate{Lat: p.Lat, Lng: p.Lng, Alt: p.Alt})
		}
		trajectories[id] = coords
	}

	return TrajectoryInput{
		Trajectories: trajectories,
		Origin:       geo.Coordinate{Lat: parsed.Origin.Lat, Lng: parsed.Origin.Lng},
		DroneCount:   parsed.DroneCount,
		Overlap:      parsed.Overlap,
	}, nil
}
