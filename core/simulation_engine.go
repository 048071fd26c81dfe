package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

const tracerName = "github.com/signalsfoundry/terrain-traversal-sim/core"

// ErrInvalidInput indicates the simulation inputs failed validation. No
// entity is simulated when it is returned.
var ErrInvalidInput = errors.New("invalid simulation input")

// SimulationStats summarises one run for logging and metrics.
type SimulationStats struct {
	Entities           int
	StoppedEntities    int
	ResampledPoints    int
	TrajectoryPoints   int
	SkippedSegments    int
	DegenerateSegments int
	MaxTime            float64
	Duration           time.Duration
}

// RunRecorder receives per-run statistics.
type RunRecorder interface {
	ObserveRun(policy string, stats SimulationStats)
}

// Simulator integrates entity trajectories over a DEM. It holds no mutable
// state between runs and is safe for concurrent use.
type Simulator struct {
	grid     *model.DEMGrid
	source   ElevationSource
	resample ResampleConfig
	policy   SlopePolicy
	workers  int

	log     logging.Logger
	metrics RunRecorder
	tracer  trace.Tracer
}

// SimulatorOption customises Simulator construction.
type SimulatorOption func(*Simulator)

// WithResampleConfig sets how waypoint chains are subdivided.
func WithResampleConfig(cfg ResampleConfig) SimulatorOption {
	return func(s *Simulator) { s.resample = cfg }
}

// WithSlopePolicy selects the slope-to-speed table.
func WithSlopePolicy(p SlopePolicy) SimulatorOption {
	return func(s *Simulator) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithElevationSource overrides the grid-backed elevation lookup.
func WithElevationSource(src ElevationSource) SimulatorOption {
	return func(s *Simulator) {
		if src != nil {
			s.source = src
		}
	}
}

// WithWorkers bounds how many entities are integrated concurrently.
// Values below 1 mean one.
func WithWorkers(n int) SimulatorOption {
	return func(s *Simulator) { s.workers = n }
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) SimulatorOption {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRunRecorder attaches a metrics recorder.
func WithRunRecorder(r RunRecorder) SimulatorOption {
	return func(s *Simulator) { s.metrics = r }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) SimulatorOption {
	return func(s *Simulator) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewSimulator builds a Simulator over grid. The grid is injected here and
// never read from shared state.
func NewSimulator(grid *model.DEMGrid, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		grid:     grid,
		source:   GridSource{Grid: grid},
		resample: DefaultResampleConfig(),
		policy:   CanonicalSlopePolicy(),
		workers:  1,
		log:      logging.Noop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	return s
}

// Policy returns the slope policy in use.
func (s *Simulator) Policy() SlopePolicy { return s.policy }

// ResampleConfig returns the resampling configuration in use.
func (s *Simulator) ResampleConfig() ResampleConfig { return s.resample }

// Validate checks entities and configuration without simulating.
func (s *Simulator) Validate(entities []model.EntitySpec) error {
	if len(entities) == 0 {
		return fmt.Errorf("%w: at least one entity is required", ErrInvalidInput)
	}
	if err := s.grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.resample.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	seen := make(map[model.EntityID]struct{}, len(entities))
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate entity id %q", ErrInvalidInput, e.ID)
		}
		seen[e.ID] = struct{}{}
		if _, err := SampleCounts(e.Chain().Points(), s.resample); err != nil {
			return fmt.Errorf("%w: entity %q: %w", ErrInvalidInput, e.ID, err)
		}
	}
	return nil
}

// Simulate validates entities and integrates each one independently. The
// result depends only on the inputs; identical inputs give identical runs.
func (s *Simulator) Simulate(ctx context.Context, entities []model.EntitySpec) (*model.SimulationRun, error) {
	run, _, err := s.SimulateWithStats(ctx, entities)
	return run, err
}

// SimulateWithStats is Simulate plus the run statistics.
func (s *Simulator) SimulateWithStats(ctx context.Context, entities []model.EntitySpec) (*model.SimulationRun, SimulationStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.tracer.Start(ctx, "core.Simulate", trace.WithAttributes(
		attribute.Int("sim.entities", len(entities)),
		attribute.String("sim.slope_policy", s.policy.Name()),
		attribute.String("sim.resample_mode", s.resample.Mode.String()),
	))
	defer span.End()

	if err := s.Validate(entities); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid input")
		return nil, SimulationStats{}, err
	}

	start := time.Now()
	results := make([]model.SimulatedEntity, len(entities))
	perEntity := make([]entityStats, len(entities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range entities {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, st, err := s.simulateEntity(entities[i])
			if err != nil {
				return fmt.Errorf("entity %q: %w", entities[i].ID, err)
			}
			results[i] = res
			perEntity[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, SimulationStats{}, err
	}

	run := &model.SimulationRun{Entities: results}
	stats := SimulationStats{Entities: len(results)}
	for i, e := range results {
		if t := e.FinalTime(); t > run.MaxTime {
			run.MaxTime = t
		}
		if e.Stopped {
			stats.StoppedEntities++
		}
		stats.TrajectoryPoints += len(e.Path)
		stats.ResampledPoints += perEntity[i].resampled
		stats.SkippedSegments += perEntity[i].skipped
		stats.DegenerateSegments += perEntity[i].degenerate
	}
	stats.MaxTime = run.MaxTime
	stats.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("sim.stopped_entities", stats.StoppedEntities),
		attribute.Int("sim.trajectory_points", stats.TrajectoryPoints),
		attribute.Float64("sim.max_time_seconds", run.MaxTime),
	)
	if s.metrics != nil {
		s.metrics.ObserveRun(s.policy.Name(), stats)
	}
	s.log.Info(ctx, "simulation complete",
		logging.Int("entities", stats.Entities),
		logging.Int("stopped", stats.StoppedEntities),
		logging.Int("points", stats.TrajectoryPoints),
		logging.Int("skipped_segments", stats.SkippedSegments),
		logging.Float64("max_time_s", run.MaxTime),
		logging.Duration("elapsed", stats.Duration),
	)
	return run, stats, nil
}

type entityStats struct {
	resampled  int
	skipped    int
	degenerate int
}

// simulateEntity walks the resampled chain. The anchor is the last recorded
// point. A segment whose far end cannot be resolved is skipped and the next
// sample is measured from the same anchor; while the anchor itself is
// unresolved (an off-grid start) it advances to each next sample instead.
func (s *Simulator) simulateEntity(spec model.EntitySpec) (model.SimulatedEntity, entityStats, error) {
	samples, err := Resample(spec.Chain().Points(), s.resample)
	if err != nil {
		return model.SimulatedEntity{}, entityStats{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	st := entityStats{resampled: len(samples)}

	out := model.SimulatedEntity{
		ID:   spec.ID,
		Path: make([]model.SimulatedPathPoint, 0, len(samples)),
	}
	anchor := samples[0]
	out.Path = append(out.Path, model.SimulatedPathPoint{
		Lon:            anchor.Lon,
		Lat:            anchor.Lat,
		TimeOffset:     0,
		EffectiveSpeed: spec.Speed,
	})
	anchorElev, anchorErr := s.source.ElevationAt(anchor)
	elapsed := 0.0

	for _, next := range samples[1:] {
		dist := HaversineMeters(anchor, next)
		if dist == 0 {
			st.degenerate++
			continue
		}
		nextElev, err := s.source.ElevationAt(next)
		if anchorErr != nil {
			// No slope can be measured from an unresolved anchor, so the
			// segment is skipped and the anchor moves on. The first sample that
			// resolves is recorded without adding time.
			st.skipped++
			anchor, anchorElev, anchorErr = next, nextElev, err
			if anchorErr == nil {
				out.Path = append(out.Path, model.SimulatedPathPoint{
					Lon:            anchor.Lon,
					Lat:            anchor.Lat,
					TimeOffset:     elapsed,
					EffectiveSpeed: spec.Speed,
				})
			}
			continue
		}
		if err != nil {
			st.skipped++
			continue
		}

		eval := EvaluateSlope(s.policy, (nextElev+spec.Height)-(anchorElev+spec.Height), dist)
		if eval.Impassable() {
			out.Path = append(out.Path, model.SimulatedPathPoint{
				Lon:            anchor.Lon,
				Lat:            anchor.Lat,
				TimeOffset:     elapsed,
				EffectiveSpeed: 0,
				SlopeType:      eval.Type,
				SlopeAngle:     eval.Angle,
			})
			out.Stopped = true
			s.log.Debug(context.Background(), "entity stopped by slope",
				logging.String("entity_id", string(spec.ID)),
				logging.Float64("angle_deg", eval.Angle),
				logging.Float64("time_offset_s", elapsed),
			)
			return out, st, nil
		}

		speed := spec.Speed * eval.Factor
		elapsed += dist / speed
		out.Path = append(out.Path, model.SimulatedPathPoint{
			Lon:            next.Lon,
			Lat:            next.Lat,
			TimeOffset:     elapsed,
			EffectiveSpeed: speed,
			SlopeType:      eval.Type,
			SlopeAngle:     eval.Angle,
		})
		anchor = next
		anchorElev = nextElev
	}
	return out, st, nil
}
