package model

// SlopeType classifies the incline of the segment ending at a path point.
type SlopeType string

const (
	SlopeNone     SlopeType = ""
	SlopeUphill   SlopeType = "uphill"
	SlopeDownhill SlopeType = "downhill"
)

// SimulatedPathPoint is one vertex of a computed trajectory. TimeOffset is
// seconds since the start of the run and never decreases along a path.
type SimulatedPathPoint struct {
	Lon            float64   `json:"lon"`
	Lat            float64   `json:"lat"`
	TimeOffset     float64   `json:"time_offset"`
	EffectiveSpeed float64   `json:"effective_speed"`
	SlopeType      SlopeType `json:"slope_type,omitempty"`
	SlopeAngle     float64   `json:"slope_angle,omitempty"`
}

// SimulatedEntity is the trajectory of one entity. Stopped means the path was
// truncated by an impassable slope and the final point has zero speed.
type SimulatedEntity struct {
	ID      EntityID             `json:"id"`
	Path    []SimulatedPathPoint `json:"path"`
	Stopped bool                 `json:"stopped"`
}

// FinalTime returns the offset of the last path point, or 0 for an empty path.
func (e SimulatedEntity) FinalTime() float64 {
	if len(e.Path) == 0 {
		return 0
	}
	return e.Path[len(e.Path)-1].TimeOffset
}

// SimulationRun is the immutable result of one integrator invocation.
type SimulationRun struct {
	Entities []SimulatedEntity `json:"entities"`
	MaxTime  float64           `json:"max_time"`
}

// Entity returns the simulated entity with the given ID.
func (r *SimulationRun) Entity(id EntityID) (SimulatedEntity, bool) {
	if r == nil {
		return SimulatedEntity{}, false
	}
	for _, e := range r.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return SimulatedEntity{}, false
}

// StoppedCount returns how many entities were halted by slope.
func (r *SimulationRun) StoppedCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, e := range r.Entities {
		if e.Stopped {
			n++
		}
	}
	return n
}

// EntityPosition is an entity's interpolated location at a clock value.
type EntityPosition struct {
	ID  EntityID `json:"id"`
	Lon float64  `json:"lon"`
	Lat float64  `json:"lat"`
}
