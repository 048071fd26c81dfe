package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/signalsfoundry/terrain-traversal-sim/core"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/api"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/observability"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/sim/state"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/store"
	"github.com/signalsfoundry/terrain-traversal-sim/kb"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
	"github.com/signalsfoundry/terrain-traversal-sim/timectrl"
)

// Config holds the server's runtime settings.
type Config struct {
	ListenAddress   string
	DEMPath         string
	ScenarioPath    string
	DBPath          string
	Workers         int
	PlaybackTick    time.Duration
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

func main() {
	cfg := Config{}
	origins := ""
	flag.StringVar(&cfg.ListenAddress, "listen", ":8080", "TCP address the HTTP API listens on")
	flag.StringVar(&cfg.DEMPath, "dem", "configs/dem.json", "path to a JSON elevation grid")
	flag.StringVar(&cfg.ScenarioPath, "scenario", "", "optional JSON scenario preloaded into the registry")
	flag.StringVar(&cfg.DBPath, "db", filepath.Join("data", store.DefaultDBFileName), "SQLite run archive path (empty disables the archive)")
	flag.IntVar(&cfg.Workers, "workers", runtime.GOMAXPROCS(0), "parallel entity workers")
	flag.DurationVar(&cfg.PlaybackTick, "playback-tick", 100*time.Millisecond, "wall-clock interval between streamed playback frames")
	flag.StringVar(&origins, "allowed-origins", "", "comma-separated websocket origins (empty accepts any)")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "graceful shutdown deadline")
	flag.Parse()
	cfg.AllowedOrigins = splitList(origins)

	log := logging.NewFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, nil); err != nil {
		log.Error(ctx, "sim-server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the API until ctx is cancelled. A nil lis makes run listen on
// cfg.ListenAddress itself.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	grid, err := loadDEM(cfg.DEMPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics, err := observability.NewHTTPCollector(reg)
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("init simulation metrics: %w", err)
	}

	registry := kb.NewEntityRegistry()
	stateOpts := []state.Option{
		state.WithMetricsRecorder(httpMetrics),
		state.WithRunRecorder(simMetrics),
		state.WithWorkers(cfg.Workers),
	}
	if cfg.ScenarioPath != "" {
		opts, err := preloadScenario(ctx, cfg.ScenarioPath, registry, log)
		if err != nil {
			return err
		}
		stateOpts = append(stateOpts, opts...)
	}
	st := state.NewSimulationState(grid, registry, log, stateOpts...)
	defer st.Close()

	serverOpts := []api.Option{
		api.WithLogger(log),
		api.WithHTTPCollector(httpMetrics),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
	}
	if cfg.PlaybackTick > 0 {
		serverOpts = append(serverOpts, api.WithPlaybackClock(
			timectrl.NewTimeController(time.Unix(0, 0).UTC(), cfg.PlaybackTick, timectrl.RealTime)))
	}
	if cfg.DBPath != "" {
		archive, err := store.Open(cfg.DBPath, log)
		if err != nil {
			return fmt.Errorf("open run archive: %w", err)
		}
		defer archive.Close()
		serverOpts = append(serverOpts, api.WithStore(archive))
	}

	apiServer := api.NewServer(st, serverOpts...)
	defer apiServer.Close()

	if lis == nil {
		lis, err = net.Listen("tcp", cfg.ListenAddress)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
		}
	}

	srv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP API", logging.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down HTTP API")
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// preloadScenario registers the scenario's entities and returns the state
// options carrying its engine config.
func preloadScenario(ctx context.Context, path string, registry *kb.EntityRegistry, log logging.Logger) ([]state.Option, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	sc, err := core.LoadScenario(f)
	if err != nil {
		return nil, err
	}
	policy, err := core.SlopePolicyByName(sc.SlopePolicy)
	if err != nil {
		return nil, err
	}
	for _, spec := range sc.Entities {
		if _, err := registry.Add(spec); err != nil {
			return nil, fmt.Errorf("entity %q: %w", spec.ID, err)
		}
	}
	log.Info(ctx, "preloaded scenario",
		logging.String("path", path),
		logging.Int("entities", len(sc.Entities)),
		logging.String("slope_policy", policy.Name()),
	)
	return []state.Option{
		state.WithResampleConfig(sc.Resample),
		state.WithSlopePolicy(policy),
	}, nil
}

func loadDEM(path string) (*model.DEMGrid, error) {
	if path == "" {
		return nil, errors.New("no DEM path given")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open DEM: %w", err)
	}
	defer f.Close()
	return core.LoadDEMGrid(f)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
