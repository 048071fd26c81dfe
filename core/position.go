package core

import "github.com/signalsfoundry/terrain-traversal-sim/model"

// PositionsAt returns every entity's position at currentTime seconds into
// the run. Before the first offset an entity sits at its first point; after
// its last offset it stays parked at the final (or stopped) position.
// The run is never modified.
func PositionsAt(run *model.SimulationRun, currentTime float64) []model.EntityPosition {
	if run == nil {
		return nil
	}
	out := make([]model.EntityPosition, 0, len(run.Entities))
	for _, e := range run.Entities {
		if len(e.Path) == 0 {
			continue
		}
		lon, lat := PositionOf(e, currentTime)
		out = append(out, model.EntityPosition{ID: e.ID, Lon: lon, Lat: lat})
	}
	return out
}

// PositionOf interpolates one entity's location at currentTime. It returns
// (0, 0) for an entity with no path.
func PositionOf(e model.SimulatedEntity, currentTime float64) (lon, lat float64) {
	path := e.Path
	if len(path) == 0 {
		return 0, 0
	}

	idx := -1
	for i, p := range path {
		if p.TimeOffset > currentTime {
			idx = i
			break
		}
	}
	switch idx {
	case -1:
		last := path[len(path)-1]
		return last.Lon, last.Lat
	case 0:
		return path[0].Lon, path[0].Lat
	}

	prev, next := path[idx-1], path[idx]
	span := next.TimeOffset - prev.TimeOffset
	t := 0.0
	if span > 0 {
		t = clamp((currentTime-prev.TimeOffset)/span, 0, 1)
	}
	return prev.Lon + t*(next.Lon-prev.Lon), prev.Lat + t*(next.Lat-prev.Lat)
}
