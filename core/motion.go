package core

import (
	"time"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// MotionModel reports entity positions for a simulation clock value.
type MotionModel interface {
	Positions(simTime time.Time) []model.EntityPosition
}

// StaticMotionModel always reports the same positions.
type StaticMotionModel struct {
	positions []model.EntityPosition
}

// NewStaticMotionModel returns a model pinned at the given positions.
func NewStaticMotionModel(positions []model.EntityPosition) *StaticMotionModel {
	return &StaticMotionModel{positions: append([]model.EntityPosition(nil), positions...)}
}

// Positions returns a copy of the pinned positions.
func (m *StaticMotionModel) Positions(time.Time) []model.EntityPosition {
	return append([]model.EntityPosition(nil), m.positions...)
}

// TrajectoryMotionModel replays a SimulationRun whose time zero is Epoch.
type TrajectoryMotionModel struct {
	run   *model.SimulationRun
	epoch time.Time
}

// NewTrajectoryMotionModel anchors run at epoch.
func NewTrajectoryMotionModel(run *model.SimulationRun, epoch time.Time) *TrajectoryMotionModel {
	return &TrajectoryMotionModel{run: run, epoch: epoch}
}

// Offset converts a clock value into seconds since the run's epoch.
func (m *TrajectoryMotionModel) Offset(simTime time.Time) float64 {
	return simTime.Sub(m.epoch).Seconds()
}

// Positions interpolates every entity at simTime.
func (m *TrajectoryMotionModel) Positions(simTime time.Time) []model.EntityPosition {
	return PositionsAt(m.run, m.Offset(simTime))
}

// Finished reports whether every entity has reached its final point.
func (m *TrajectoryMotionModel) Finished(simTime time.Time) bool {
	if m.run == nil {
		return true
	}
	return m.Offset(simTime) >= m.run.MaxTime
}

// NewMotionModel picks a trajectory replay when a run is available and a
// static model at the entities' start points otherwise.
func NewMotionModel(run *model.SimulationRun, epoch time.Time, entities []model.EntitySpec) MotionModel {
	if run != nil {
		return NewTrajectoryMotionModel(run, epoch)
	}
	positions := make([]model.EntityPosition, 0, len(entities))
	for _, e := range entities {
		positions = append(positions, model.EntityPosition{ID: e.ID, Lon: e.Start.Lon, Lat: e.Start.Lat})
	}
	return NewStaticMotionModel(positions)
}
