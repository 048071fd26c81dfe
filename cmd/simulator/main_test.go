package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/terrain-traversal-sim/core"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
)

func writeFixtures(t *testing.T, scenario string) (demPath, scenarioPath string) {
	t.Helper()
	dir := t.TempDir()

	const w, h = 20, 20
	data := make([]float64, w*h)
	for i := range data {
		data[i] = 100
	}
	dem, err := json.Marshal(map[string]any{
		"width":          w,
		"height":         h,
		"tiepoint_lon":   76.99,
		"tiepoint_lat":   25.01,
		"pixel_size_lon": 0.001,
		"pixel_size_lat": 0.001,
		"data":           data,
	})
	if err != nil {
		t.Fatalf("marshal dem: %v", err)
	}
	demPath = filepath.Join(dir, "dem.json")
	if err := os.WriteFile(demPath, dem, 0o644); err != nil {
		t.Fatalf("write dem: %v", err)
	}
	scenarioPath = filepath.Join(dir, "scenario.json")
	if err := os.WriteFile(scenarioPath, []byte(scenario), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return demPath, scenarioPath
}

const walkerScenario = `{
  "resample": {"mode": "fixed_length", "segment_length": 50},
  "entities": [
    {"id": "walker", "start": {"lon": 77.0, "lat": 25.0}, "path": [{"lon": 77.005, "lat": 25.0}], "speed": 10}
  ]
}`

// TestRunPlaysBackToCompletion runs a short accelerated playback end to end.
func TestRunPlaysBackToCompletion(t *testing.T) {
	demPath, scenarioPath := writeFixtures(t, walkerScenario)

	var out bytes.Buffer
	cfg := Config{
		ScenarioPath: scenarioPath,
		DEMPath:      demPath,
		Tick:         5 * time.Second,
		Rate:         1,
		Accelerated:  true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run(ctx, cfg, &out, logging.Noop()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Simulated 1 entities") {
		t.Fatalf("missing summary line:\n%s", got)
	}
	if !strings.Contains(got, "Playback complete.") {
		t.Fatalf("playback did not complete:\n%s", got)
	}
	// ~505 m at 10 m/s on flat ground finishes after ~51 s, so 5 s ticks
	// produce a dozen frames including the initial one.
	frames := strings.Count(got, "walker@(")
	if frames < 10 || frames > 14 {
		t.Fatalf("unexpected frame count %d:\n%s", frames, got)
	}
}

func TestRunQuietSkipsPlayback(t *testing.T) {
	demPath, scenarioPath := writeFixtures(t, walkerScenario)

	var out bytes.Buffer
	cfg := Config{ScenarioPath: scenarioPath, DEMPath: demPath, Tick: time.Second, Quiet: true}
	if err := run(context.Background(), cfg, &out, logging.Noop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(out.String(), "Playback") {
		t.Fatalf("quiet run should not play back:\n%s", out.String())
	}
}

func TestRunRejectsUnknownPolicy(t *testing.T) {
	demPath, scenarioPath := writeFixtures(t, walkerScenario)

	cfg := Config{ScenarioPath: scenarioPath, DEMPath: demPath, Tick: time.Second, Policy: "teleport", Quiet: true}
	if err := run(context.Background(), cfg, &bytes.Buffer{}, logging.Noop()); err == nil {
		t.Fatalf("expected unknown policy error")
	}
}

func TestRunMissingDEM(t *testing.T) {
	_, scenarioPath := writeFixtures(t, walkerScenario)

	cfg := Config{ScenarioPath: scenarioPath, DEMPath: filepath.Join(t.TempDir(), "missing.json"), Tick: time.Second}
	if err := run(context.Background(), cfg, &bytes.Buffer{}, logging.Noop()); err == nil {
		t.Fatalf("expected error for missing DEM")
	}
}

func TestResampleOverride(t *testing.T) {
	cfg := Config{ResampleMode: "fixed_count", SegmentCount: 4}
	rc, err := resampleOverride(cfg, core.DefaultResampleConfig())
	if err != nil {
		t.Fatalf("resampleOverride: %v", err)
	}
	if rc.Mode != core.ResampleFixedCount || rc.SegmentCount != 4 {
		t.Fatalf("unexpected config %+v", rc)
	}

	if _, err := resampleOverride(Config{ResampleMode: "fixed_count"}, core.DefaultResampleConfig()); err == nil {
		t.Fatalf("expected validation error for zero segment count")
	}
	if _, err := resampleOverride(Config{ResampleMode: "spiral"}, core.DefaultResampleConfig()); err == nil {
		t.Fatalf("expected unknown mode error")
	}
}
