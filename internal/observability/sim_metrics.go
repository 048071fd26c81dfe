package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/terrain-traversal-sim/core"
)

// SimCollector exposes simulation engine metrics. It satisfies
// core.RunRecorder.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Runs             *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	StoppedEntities  prometheus.Counter
	SkippedSegments  prometheus.Counter
	TrajectoryPoints prometheus.Histogram
	LastMaxTime      prometheus.Gauge
}

var _ core.RunRecorder = (*SimCollector)(nil)

// NewSimCollector registers engine metrics against the provided registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_runs_total",
		Help: "Completed simulation runs, labeled by slope policy.",
	}, []string{"policy"})
	runs, err := registerCounterVec(reg, runs, "sim_runs_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_run_duration_seconds",
		Help:    "Wall-clock duration of simulation runs.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"policy"})
	duration, err = registerHistogramVec(reg, duration, "sim_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	stopped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_stopped_entities_total",
		Help: "Entities halted by impassable slopes across all runs.",
	}), "sim_stopped_entities_total")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_skipped_segments_total",
		Help: "Segments skipped because an endpoint elevation was unavailable.",
	}), "sim_skipped_segments_total")
	if err != nil {
		return nil, err
	}

	points, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_trajectory_points",
		Help:    "Trajectory points emitted per run.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}), "sim_trajectory_points")
	if err != nil {
		return nil, err
	}

	maxTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_last_run_max_time_seconds",
		Help: "Simulated duration of the most recent run.",
	}), "sim_last_run_max_time_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		Runs:             runs,
		RunDuration:      duration,
		StoppedEntities:  stopped,
		SkippedSegments:  skipped,
		TrajectoryPoints: points,
		LastMaxTime:      maxTime,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRun records one completed simulation.
func (c *SimCollector) ObserveRun(policy string, stats core.SimulationStats) {
	if c == nil {
		return
	}
	if policy == "" {
		policy = "unknown"
	}
	if c.Runs != nil {
		c.Runs.WithLabelValues(policy).Inc()
	}
	if c.RunDuration != nil {
		c.RunDuration.WithLabelValues(policy).Observe(stats.Duration.Seconds())
	}
	if c.StoppedEntities != nil {
		c.StoppedEntities.Add(float64(stats.StoppedEntities))
	}
	if c.SkippedSegments != nil {
		c.SkippedSegments.Add(float64(stats.SkippedSegments))
	}
	if c.TrajectoryPoints != nil {
		c.TrajectoryPoints.Observe(float64(stats.TrajectoryPoints))
	}
	if c.LastMaxTime != nil {
		c.LastMaxTime.Set(stats.MaxTime)
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
