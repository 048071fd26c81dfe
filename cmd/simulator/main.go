package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/signalsfoundry/terrain-traversal-sim/core"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/sim/state"
	"github.com/signalsfoundry/terrain-traversal-sim/kb"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
	"github.com/signalsfoundry/terrain-traversal-sim/timectrl"
)

// Config collects the simulator's command-line settings.
type Config struct {
	ScenarioPath string
	DEMPath      string
	Tick         time.Duration
	Rate         float64
	Accelerated  bool
	Policy       string
	ResampleMode string
	SegmentLen   float64
	SegmentCount int
	Workers      int
	Quiet        bool
}

// playbackEpoch anchors offset zero of a run on the playback clock.
var playbackEpoch = time.Unix(0, 0).UTC()

func main() {
	var cfg Config
	flag.StringVar(&cfg.ScenarioPath, "scenario", "configs/scenario.json", "path to a JSON scenario (entities + engine config)")
	flag.StringVar(&cfg.DEMPath, "dem", "configs/dem.json", "path to a JSON elevation grid")
	flag.DurationVar(&cfg.Tick, "tick", 10*time.Second, "simulated time advanced per playback tick")
	flag.Float64Var(&cfg.Rate, "rate", 1, "playback rate multiplier")
	flag.BoolVar(&cfg.Accelerated, "accelerated", true, "run playback in accelerated mode (vs real-time)")
	flag.StringVar(&cfg.Policy, "policy", "", "slope policy name; overrides the scenario's")
	flag.StringVar(&cfg.ResampleMode, "resample", "", "resample mode override: fixed_length or fixed_count")
	flag.Float64Var(&cfg.SegmentLen, "segment-length", core.DefaultSegmentLength, "segment length in metres for fixed_length resampling")
	flag.IntVar(&cfg.SegmentCount, "segment-count", 0, "segment count for fixed_count resampling")
	flag.IntVar(&cfg.Workers, "workers", runtime.GOMAXPROCS(0), "parallel entity workers")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "print only the run summary")
	flag.Parse()

	log := logging.NewFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, log); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, out io.Writer, log logging.Logger) error {
	grid, err := loadDEM(cfg.DEMPath)
	if err != nil {
		return err
	}
	sc, err := loadScenario(cfg.ScenarioPath)
	if err != nil {
		return err
	}

	resample, err := resampleOverride(cfg, sc.Resample)
	if err != nil {
		return err
	}
	policyName := sc.SlopePolicy
	if cfg.Policy != "" {
		policyName = cfg.Policy
	}
	policy, err := core.SlopePolicyByName(policyName)
	if err != nil {
		return err
	}

	registry := kb.NewEntityRegistry()
	for _, spec := range sc.Entities {
		if _, err := registry.Add(spec); err != nil {
			return fmt.Errorf("entity %q: %w", spec.ID, err)
		}
	}

	st := state.NewSimulationState(grid, registry, log,
		state.WithResampleConfig(resample),
		state.WithSlopePolicy(policy),
		state.WithWorkers(cfg.Workers),
	)
	defer st.Close()

	snap, err := st.RunSimulation(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Simulated %d entities (policy=%s, resample=%s): max_time=%.1fs stopped=%d points=%d\n",
		snap.Stats.Entities, snap.Policy, snap.Resample.Mode, snap.Run.MaxTime,
		snap.Stats.StoppedEntities, snap.Stats.TrajectoryPoints)
	if cfg.Quiet {
		return nil
	}

	return playback(ctx, cfg, snap.Run, out)
}

// playback replays run on a time controller and prints positions per tick
// until every entity has finished or ctx is cancelled.
func playback(ctx context.Context, cfg Config, run *model.SimulationRun, out io.Writer) error {
	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(playbackEpoch, cfg.Tick, mode)
	if cfg.Rate > 0 {
		tc.SetRate(cfg.Rate)
	}
	motion := core.NewTrajectoryMotionModel(run, playbackEpoch)

	printFrame(out, 0, motion.Positions(playbackEpoch))
	tc.AddListener(func(simTime time.Time) {
		printFrame(out, motion.Offset(simTime), motion.Positions(simTime))
		if motion.Finished(simTime) {
			tc.Stop()
		}
	})

	if motion.Finished(playbackEpoch) {
		fmt.Fprintln(out, "Playback complete.")
		return nil
	}

	fmt.Fprintf(out, "Starting playback: tick=%s rate=%g mode=%s\n", cfg.Tick, cfg.Rate, mode)
	done := tc.Start(0)
	select {
	case <-done:
	case <-ctx.Done():
		tc.Stop()
		<-done
		return ctx.Err()
	}
	fmt.Fprintln(out, "Playback complete.")
	return nil
}

func printFrame(out io.Writer, offset float64, positions []model.EntityPosition) {
	fmt.Fprintf(out, "[t=%8.1fs]", offset)
	for _, p := range positions {
		fmt.Fprintf(out, " %s@(%.6f, %.6f)", p.ID, p.Lon, p.Lat)
	}
	fmt.Fprintln(out)
}

func resampleOverride(cfg Config, base core.ResampleConfig) (core.ResampleConfig, error) {
	if cfg.ResampleMode == "" {
		return base, nil
	}
	mode, err := core.ParseResampleMode(cfg.ResampleMode)
	if err != nil {
		return core.ResampleConfig{}, err
	}
	var rc core.ResampleConfig
	switch mode {
	case core.ResampleFixedCount:
		rc = core.FixedCount(cfg.SegmentCount)
	default:
		rc = core.FixedLength(cfg.SegmentLen)
	}
	return rc, rc.Validate()
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

func loadScenario(path string) (*core.Scenario, error) {
	if path == "" {
		return nil, errors.New("no scenario path given")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return core.LoadScenario(f)
}
