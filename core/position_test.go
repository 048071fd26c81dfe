package core

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

func sampleRun() *model.SimulationRun {
	return &model.SimulationRun{
		Entities: []model.SimulatedEntity{
			{
				ID: "walker",
				Path: []model.SimulatedPathPoint{
					{Lon: 77.0, Lat: 25.0, TimeOffset: 0},
					{Lon: 77.1, Lat: 25.0, TimeOffset: 10},
					{Lon: 77.1, Lat: 25.2, TimeOffset: 30},
				},
			},
			{
				ID:      "stuck",
				Stopped: true,
				Path: []model.SimulatedPathPoint{
					{Lon: 78.0, Lat: 26.0, TimeOffset: 0},
					{Lon: 78.5, Lat: 26.0, TimeOffset: 5},
					{Lon: 78.5, Lat: 26.0, TimeOffset: 5},
				},
			},
		},
		MaxTime: 30,
	}
}

func TestPositionsAt_BeforeStart(t *testing.T) {
	run := sampleRun()
	got := PositionsAt(run, -5)
	want := []model.EntityPosition{
		{ID: "walker", Lon: 77.0, Lat: 25.0},
		{ID: "stuck", Lon: 78.0, Lat: 26.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PositionsAt(-5) = %+v, want %+v", got, want)
	}
}

func TestPositionsAt_AfterEnd(t *testing.T) {
	run := sampleRun()
	got := PositionsAt(run, run.MaxTime+1000)
	want := []model.EntityPosition{
		{ID: "walker", Lon: 77.1, Lat: 25.2},
		{ID: "stuck", Lon: 78.5, Lat: 26.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PositionsAt(max+1000) = %+v, want %+v", got, want)
	}
}

func TestPositionsAt_ExactOffsetsHaveNoDrift(t *testing.T) {
	run := sampleRun()
	for _, e := range run.Entities {
		for _, p := range e.Path {
			lon, lat := PositionOf(e, p.TimeOffset)
			if lon != p.Lon || lat != p.Lat {
				t.Fatalf("PositionOf(%s, %v) = (%v, %v), want (%v, %v)", e.ID, p.TimeOffset, lon, lat, p.Lon, p.Lat)
			}
		}
	}
}

func TestPositionsAt_Interpolates(t *testing.T) {
	run := sampleRun()
	got := PositionsAt(run, 20)
	if math.Abs(got[0].Lon-77.1) > 1e-12 || math.Abs(got[0].Lat-25.1) > 1e-12 {
		t.Fatalf("walker at t=20 = %+v, want (77.1, 25.1)", got[0])
	}
	if got[1].Lon != 78.5 || got[1].Lat != 26.0 {
		t.Fatalf("stopped entity should stay parked, got %+v", got[1])
	}

	got = PositionsAt(run, 2.5)
	if math.Abs(got[0].Lon-77.025) > 1e-12 || got[0].Lat != 25.0 {
		t.Fatalf("walker at t=2.5 = %+v, want (77.025, 25.0)", got[0])
	}
}

func TestPositionsAt_DoesNotMutateRun(t *testing.T) {
	run := sampleRun()
	before := sampleRun()
	for _, ts := range []float64{-1, 0, 3, 7.5, 10, 29.9, 31} {
		_ = PositionsAt(run, ts)
	}
	if !reflect.DeepEqual(run, before) {
		t.Fatalf("PositionsAt mutated the run")
	}
}

func TestPositionsAt_NilRun(t *testing.T) {
	if got := PositionsAt(nil, 1); got != nil {
		t.Fatalf("PositionsAt(nil) = %+v, want nil", got)
	}
}

func TestPositionsAt_SimulatedRunEndpoints(t *testing.T) {
	specs := []model.EntitySpec{
		entity("a", 3, model.NewGeoPoint(77.0, 25.0), model.NewGeoPoint(77.01, 25.0)),
		entity("b", 6, model.NewGeoPoint(77.0, 25.01), model.NewGeoPoint(77.0, 25.0), model.NewGeoPoint(77.005, 25.0)),
	}
	run, err := NewSimulator(flatGrid(), WithResampleConfig(FixedCount(20))).Simulate(context.Background(), specs)
	if err != nil {
		t.Fatalf("Simulate error: %v", err)
	}

	for i, p := range PositionsAt(run, -5) {
		first := run.Entities[i].Path[0]
		if p.Lon != first.Lon || p.Lat != first.Lat {
			t.Fatalf("entity %s at -5 = %+v, want first point %+v", p.ID, p, first)
		}
	}
	for i, p := range PositionsAt(run, run.MaxTime+1000) {
		path := run.Entities[i].Path
		last := path[len(path)-1]
		if p.Lon != last.Lon || p.Lat != last.Lat {
			t.Fatalf("entity %s at max+1000 = %+v, want last point %+v", p.ID, p, last)
		}
	}
}
