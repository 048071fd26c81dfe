package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidEntity indicates an EntitySpec failed validation.
var ErrInvalidEntity = errors.New("invalid entity")

// EntityID is a stable identifier assigned when an entity is created. It is
// carried unchanged through simulation output.
type EntityID string

// EntitySpec is the simulation input for one entity.
type EntitySpec struct {
	ID    EntityID   `json:"id"`
	Start GeoPoint   `json:"start"`
	Path  []GeoPoint `json:"path"`

	// Speed is the base speed in m/s on flat ground before slope modulation.
	Speed float64 `json:"speed"`

	// Height is a constant offset in metres added to every sampled
	// elevation (walk or flight height above ground).
	Height float64 `json:"height"`
}

// Chain returns the entity's waypoint chain.
func (e EntitySpec) Chain() WaypointChain {
	return WaypointChain{Start: e.Start, Path: e.Path}
}

// Validate checks the entity for simulation readiness.
func (e EntitySpec) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntity)
	}
	if math.IsNaN(e.Speed) || math.IsInf(e.Speed, 0) || e.Speed <= 0 {
		return fmt.Errorf("%w: entity %q speed must be positive, got %g", ErrInvalidEntity, e.ID, e.Speed)
	}
	if math.IsNaN(e.Height) || math.IsInf(e.Height, 0) {
		return fmt.Errorf("%w: entity %q height must be finite", ErrInvalidEntity, e.ID)
	}
	for i, p := range e.Chain().Points() {
		if !validCoordinate(p) {
			return fmt.Errorf("%w: entity %q waypoint %d (%g, %g) is not a valid coordinate", ErrInvalidEntity, e.ID, i, p.Lon, p.Lat)
		}
	}
	return nil
}

// Clone returns a deep copy of the spec so callers can mutate it freely.
func (e EntitySpec) Clone() EntitySpec {
	out := e
	out.Path = append([]GeoPoint(nil), e.Path...)
	return out
}

func validCoordinate(p GeoPoint) bool {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}
