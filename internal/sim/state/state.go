// internal/sim/state/state.go
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/terrain-traversal-sim/core"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/kb"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// Re-export registry sentinel errors so callers can depend on state.*
// instead of kb.* directly if they want to.
var (
	// ErrEntityExists indicates an entity already exists.
	ErrEntityExists = kb.ErrEntityExists
	// ErrEntityNotFound indicates a requested entity was not found.
	ErrEntityNotFound = kb.ErrEntityNotFound
	// ErrNoRun indicates no simulation has completed since the last clear.
	ErrNoRun = errors.New("no simulation run available")
	// ErrInvalidConfig indicates a rejected resample or slope setting.
	ErrInvalidConfig = errors.New("invalid simulation config")
)

// MetricsRecorder receives count updates for registered entities and the
// current run sequence.
type MetricsRecorder interface {
	SetStateCounts(entities int, runSeq uint64)
}

// RunSnapshot is a consistent view of the latest completed run and the
// entity specs it was computed from. Run and Entities are shared with
// SimulationState and callers MUST treat them as read-only.
type RunSnapshot struct {
	Run         *model.SimulationRun
	Entities    []model.EntitySpec
	Seq         uint64
	Stats       core.SimulationStats
	Policy      string
	Resample    core.ResampleConfig
	CompletedAt time.Time
}

// SimulationState coordinates the entity registry, the injected DEM grid,
// the engine configuration, and the latest simulation run.
type SimulationState struct {
	mu sync.RWMutex

	grid     *model.DEMGrid
	entities *kb.EntityRegistry

	resample core.ResampleConfig
	policy   core.SlopePolicy
	workers  int

	current RunSnapshot
	seq     uint64

	runSubs   map[int]func(RunSnapshot)
	nextSubID int

	log      logging.Logger
	metrics  MetricsRecorder
	recorder core.RunRecorder

	unsubscribe func()
}

// Option customises SimulationState construction.
type Option func(*SimulationState)

// WithMetricsRecorder attaches an optional recorder for entity/run gauges.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *SimulationState) { s.metrics = m }
}

// WithRunRecorder forwards per-run engine statistics.
func WithRunRecorder(r core.RunRecorder) Option {
	return func(s *SimulationState) { s.recorder = r }
}

// WithWorkers bounds entity-level parallelism inside a run.
func WithWorkers(n int) Option {
	return func(s *SimulationState) { s.workers = n }
}

// WithResampleConfig sets the initial resample config.
func WithResampleConfig(cfg core.ResampleConfig) Option {
	return func(s *SimulationState) { s.resample = cfg }
}

// WithSlopePolicy sets the initial slope policy.
func WithSlopePolicy(p core.SlopePolicy) Option {
	return func(s *SimulationState) {
		if p != nil {
			s.policy = p
		}
	}
}

// NewSimulationState wires a DEM grid and an entity registry together. A nil
// registry gets a fresh empty one.
func NewSimulationState(grid *model.DEMGrid, entities *kb.EntityRegistry, log logging.Logger, opts ...Option) *SimulationState {
	if log == nil {
		log = logging.Noop()
	}
	if entities == nil {
		entities = kb.NewEntityRegistry()
	}
	s := &SimulationState{
		grid:     grid,
		entities: entities,
		resample: core.DefaultResampleConfig(),
		policy:   core.CanonicalSlopePolicy(),
		workers:  1,
		runSubs:  make(map[int]func(RunSnapshot)),
		log:      log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.unsubscribe = entities.Subscribe(func(kb.Event) { s.updateMetrics() })
	s.updateMetrics()
	return s
}

// Close detaches the state from its registry.
func (s *SimulationState) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Entities exposes the entity registry.
func (s *SimulationState) Entities() *kb.EntityRegistry {
	return s.entities
}

// Grid returns the injected DEM grid.
func (s *SimulationState) Grid() *model.DEMGrid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid
}

// ResampleConfig returns the active resample config.
func (s *SimulationState) ResampleConfig() core.ResampleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resample
}

// SetResampleConfig validates and stores cfg for subsequent runs.
func (s *SimulationState) SetResampleConfig(cfg core.ResampleConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.mu.Lock()
	s.resample = cfg
	s.mu.Unlock()
	return nil
}

// SlopePolicy returns the active slope policy.
func (s *SimulationState) SlopePolicy() core.SlopePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// SetSlopePolicy stores p for subsequent runs.
func (s *SimulationState) SetSlopePolicy(p core.SlopePolicy) error {
	if p == nil {
		return fmt.Errorf("%w: slope policy is nil", ErrInvalidConfig)
	}
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
	return nil
}

// SetSlopePolicyByName looks up a registered policy and stores it.
func (s *SimulationState) SetSlopePolicyByName(name string) error {
	p, err := core.SlopePolicyByName(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return s.SetSlopePolicy(p)
}

// SetEngineConfig validates cfg and p together and stores both, or neither.
func (s *SimulationState) SetEngineConfig(cfg core.ResampleConfig, p core.SlopePolicy) error {
	if err := validateEngineConfig(cfg, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.resample = cfg
	s.policy = p
	s.mu.Unlock()
	return nil
}

// ReplaceScenario installs a new entity set and engine config in one step and
// drops the current run. Everything is validated first; on error the
// registry, config and run are left as they were.
func (s *SimulationState) ReplaceScenario(ctx context.Context, entities []model.EntitySpec, cfg core.ResampleConfig, p core.SlopePolicy) ([]model.EntityID, error) {
	ctx, reqLog := logging.WithRequestLogger(ctx, s.log)

	if err := validateEngineConfig(cfg, p); err != nil {
		return nil, err
	}
	ids, err := s.entities.Replace(entities)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.resample = cfg
	s.policy = p
	s.current = RunSnapshot{}
	subs := s.runSubscribersLocked()
	s.mu.Unlock()

	reqLog.Info(ctx, "scenario replaced",
		logging.String("operation", "replace_scenario"),
		logging.Int("entities", len(ids)),
		logging.String("slope_policy", p.Name()),
		logging.String("resample_mode", cfg.Mode.String()),
	)

	s.updateMetrics()
	for _, fn := range subs {
		fn(RunSnapshot{})
	}
	return ids, nil
}

func validateEngineConfig(cfg core.ResampleConfig, p core.SlopePolicy) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if p == nil {
		return fmt.Errorf("%w: slope policy is nil", ErrInvalidConfig)
	}
	return nil
}

// RunSimulation simulates every registered entity and atomically replaces
// the current run. The previous run stays current if simulation fails.
func (s *SimulationState) RunSimulation(ctx context.Context) (RunSnapshot, error) {
	ctx, reqLog := logging.WithRequestLogger(ctx, s.log)

	s.mu.RLock()
	grid := s.grid
	resample := s.resample
	policy := s.policy
	workers := s.workers
	s.mu.RUnlock()

	entities := s.entities.List()
	sim := core.NewSimulator(grid,
		core.WithResampleConfig(resample),
		core.WithSlopePolicy(policy),
		core.WithWorkers(workers),
		core.WithLogger(reqLog),
		core.WithRunRecorder(s.recorder),
	)

	reqLog.Debug(ctx, "running simulation",
		logging.Int("entities", len(entities)),
		logging.String("slope_policy", policy.Name()),
		logging.String("resample_mode", resample.Mode.String()),
	)
	run, stats, err := sim.SimulateWithStats(ctx, entities)
	if err != nil {
		reqLog.Warn(ctx, "simulation failed", logging.Err(err))
		return RunSnapshot{}, err
	}

	s.mu.Lock()
	s.seq++
	snap := RunSnapshot{
		Run:         run,
		Entities:    entities,
		Seq:         s.seq,
		Stats:       stats,
		Policy:      policy.Name(),
		Resample:    resample,
		CompletedAt: time.Now().UTC(),
	}
	s.current = snap
	subs := s.runSubscribersLocked()
	s.mu.Unlock()

	s.updateMetrics()
	for _, fn := range subs {
		fn(snap)
	}
	return snap, nil
}

// CurrentRun returns the latest run, or nil when none exists.
func (s *SimulationState) CurrentRun() *model.SimulationRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Run
}

// Snapshot returns the latest run together with its metadata.
func (s *SimulationState) Snapshot() (RunSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.Run == nil {
		return RunSnapshot{}, ErrNoRun
	}
	return s.current, nil
}

// PositionsAt interpolates every entity of the current run at t seconds.
func (s *SimulationState) PositionsAt(t float64) ([]model.EntityPosition, error) {
	run := s.CurrentRun()
	if run == nil {
		return nil, ErrNoRun
	}
	return core.PositionsAt(run, t), nil
}

// OnRun registers fn to be called after every successful run and after
// Clear (with a zero snapshot). It returns an unsubscribe function.
func (s *SimulationState) OnRun(fn func(RunSnapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.runSubs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.runSubs, id)
			s.mu.Unlock()
		})
	}
}

// Clear wipes registered entities and the current run. The sequence number
// keeps counting so stale readers can detect the change.
func (s *SimulationState) Clear(ctx context.Context) error {
	ctx, reqLog := logging.WithRequestLogger(ctx, s.log)

	s.mu.Lock()
	entities := s.entities.Len()
	hadRun := s.current.Run != nil
	s.entities.Clear()
	s.current = RunSnapshot{}
	subs := s.runSubscribersLocked()
	s.mu.Unlock()

	reqLog.Debug(ctx, "state cleared",
		logging.String("operation", "clear"),
		logging.Int("entities", entities),
		logging.Bool("had_run", hadRun),
	)

	s.updateMetrics()
	for _, fn := range subs {
		fn(RunSnapshot{})
	}
	return nil
}

func (s *SimulationState) runSubscribersLocked() []func(RunSnapshot) {
	subs := make([]func(RunSnapshot), 0, len(s.runSubs))
	for i := 0; i < s.nextSubID; i++ {
		if fn, ok := s.runSubs[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

func (s *SimulationState) updateMetrics() {
	if s.metrics == nil {
		return
	}
	s.mu.RLock()
	seq := s.seq
	s.mu.RUnlock()
	s.metrics.SetStateCounts(s.entities.Len(), seq)
}
