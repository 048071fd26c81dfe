package main

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
)

func writeDEM(t *testing.T, dir string) string {
	t.Helper()
	const w, h = 20, 20
	data := make([]float64, w*h)
	for i := range data {
		data[i] = 100
	}
	raw, err := json.Marshal(map[string]any{
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
	path := filepath.Join(dir, "dem.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write dem: %v", err)
	}
	return path
}

func TestSimServerStartupSmoke(t *testing.T) {
	t.Setenv("SIM_TRACING_ENABLED", "false")

	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "scenario.json")
	scenario := `{"slope_policy": "downhill-boost", "entities": [
	  {"id": "walker", "start": {"lon": 77.0, "lat": 25.0}, "path": [{"lon": 77.005, "lat": 25.0}], "speed": 10}
	]}`
	if err := os.WriteFile(scenarioPath, []byte(scenario), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := Config{
		DEMPath:         writeDEM(t, dir),
		ScenarioPath:    scenarioPath,
		DBPath:          filepath.Join(dir, "runs.db"),
		PlaybackTick:    20 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}
	log := logging.New(logging.Config{Level: "warn", Format: "text", Output: io.Discard})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfg, log, lis) }()

	base := "http://" + lis.Addr().String()
	client := &http.Client{Timeout: 2 * time.Second}

	waitHealthy(t, client, base)

	resp, err := client.Post(base+"/simulate", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /simulate: %v", err)
	}
	var summary struct {
		Entities int    `json:"entities"`
		Policy   string `json:"policy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode simulate response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /simulate status = %d", resp.StatusCode)
	}
	if summary.Entities != 1 || summary.Policy != "downhill-boost" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	resp, err = client.Get(base + "/archive")
	if err != nil {
		t.Fatalf("GET /archive: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /archive status = %d, want 200 with a database configured", resp.StatusCode)
	}

	resp, err = client.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{`sim_runs_total{policy="downhill-boost"} 1`, "sim_registered_entities 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestRunFailsWithoutDEM(t *testing.T) {
	t.Setenv("SIM_TRACING_ENABLED", "false")
	cfg := Config{DEMPath: filepath.Join(t.TempDir(), "missing.json")}
	if err := run(context.Background(), cfg, logging.Noop(), nil); err == nil {
		t.Fatalf("expected error for missing DEM")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.example , ,http://b.example")
	if len(got) != 2 || got[0] != "http://a.example" || got[1] != "http://b.example" {
		t.Fatalf("splitList = %v", got)
	}
	if splitList("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func waitHealthy(t *testing.T, client *http.Client, base string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server never became healthy")
}
