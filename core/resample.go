package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// ErrInvalidResampleConfig indicates an unusable resampling configuration.
var ErrInvalidResampleConfig = errors.New("invalid resample config")

// ResampleMode selects how a waypoint chain is subdivided.
type ResampleMode int

const (
	// ResampleFixedLength splits every leg into chords no longer than
	// SegmentLength metres.
	ResampleFixedLength ResampleMode = iota
	// ResampleFixedCount distributes exactly SegmentCount segments across
	// the chain in proportion to leg length.
	ResampleFixedCount
)

// DefaultSegmentLength is the chord length used when no configuration is given.
const DefaultSegmentLength = 30.0 // metres, roughly one DTED level-1 cell

// MaxResampledPoints caps the samples one chain may expand into.
const MaxResampledPoints = 1_000_000

func (m ResampleMode) String() string {
	switch m {
	case ResampleFixedLength:
		return "fixed_length"
	case ResampleFixedCount:
		return "fixed_count"
	default:
		return fmt.Sprintf("ResampleMode(%d)", int(m))
	}
}

// ResampleConfig configures Resample.
type ResampleConfig struct {
	Mode          ResampleMode `json:"mode"`
	SegmentLength float64      `json:"segment_length,omitempty"`
	SegmentCount  int          `json:"segment_count,omitempty"`
}

// FixedLength returns a fixed-segment-length configuration.
func FixedLength(meters float64) ResampleConfig {
	return ResampleConfig{Mode: ResampleFixedLength, SegmentLength: meters}
}

// FixedCount returns a fixed-total-segment-count configuration.
func FixedCount(n int) ResampleConfig {
	return ResampleConfig{Mode: ResampleFixedCount, SegmentCount: n}
}

// DefaultResampleConfig returns FixedLength(DefaultSegmentLength).
func DefaultResampleConfig() ResampleConfig {
	return FixedLength(DefaultSegmentLength)
}

// Validate checks the configuration for the selected mode.
func (c ResampleConfig) Validate() error {
	switch c.Mode {
	case ResampleFixedLength:
		if math.IsNaN(c.SegmentLength) || math.IsInf(c.SegmentLength, 0) || c.SegmentLength <= 0 {
			return fmt.Errorf("%w: segment length must be positive, got %g", ErrInvalidResampleConfig, c.SegmentLength)
		}
	case ResampleFixedCount:
		if c.SegmentCount <= 0 {
			return fmt.Errorf("%w: segment count must be positive, got %d", ErrInvalidResampleConfig, c.SegmentCount)
		}
		if c.SegmentCount > MaxResampledPoints {
			return fmt.Errorf("%w: segment count %d exceeds limit %d", ErrInvalidResampleConfig, c.SegmentCount, MaxResampledPoints)
		}
	default:
		return fmt.Errorf("%w: unknown mode %v", ErrInvalidResampleConfig, c.Mode)
	}
	return nil
}

// Resample converts the polyline chain into near-equal-length samples along
// each leg. The output starts with chain[0] and ends with the last waypoint.
// Zero-length legs contribute no points. A chain that would expand past
// MaxResampledPoints is rejected with ErrInvalidResampleConfig before any
// allocation.
func Resample(chain []model.GeoPoint, cfg ResampleConfig) ([]model.GeoPoint, error) {
	counts, err := SampleCounts(chain, cfg)
	if err != nil {
		return nil, err
	}

	out := make([]model.GeoPoint, 0, sum(counts)+1)
	out = append(out, chain[0])
	for i, n := range counts {
		if n == 0 {
			continue
		}
		a, b := chain[i], chain[i+1]
		for k := 1; k < n; k++ {
			out = append(out, lerpPoint(a, b, float64(k)/float64(n)))
		}
		// The leg's end is the original waypoint, not an interpolated copy.
		out = append(out, b)
	}
	return out, nil
}

// SampleCounts returns how many segments Resample assigns to each leg of
// chain, without building the samples.
func SampleCounts(chain []model.GeoPoint, cfg ResampleConfig) ([]int, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("resample: chain must contain at least one point")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	legs := make([]float64, len(chain)-1)
	for i := range legs {
		legs[i] = HaversineMeters(chain[i], chain[i+1])
	}

	switch cfg.Mode {
	case ResampleFixedLength:
		return lengthCounts(legs, cfg.SegmentLength)
	default:
		return proportionalCounts(legs, cfg.SegmentCount), nil
	}
}

func lengthCounts(legs []float64, segmentLength float64) ([]int, error) {
	counts := make([]int, len(legs))
	total := 0.0
	for i, d := range legs {
		if d <= 0 {
			continue
		}
		n := math.Ceil(d / segmentLength)
		total += n
		if total > MaxResampledPoints {
			return nil, fmt.Errorf("%w: segment length %g m yields more than %d samples", ErrInvalidResampleConfig, segmentLength, MaxResampledPoints)
		}
		counts[i] = int(n)
	}
	return counts, nil
}

// proportionalCounts shares n segments between legs by distance, rounding
// each share and letting the last non-degenerate leg absorb the rounding
// error so the total is exactly n.
func proportionalCounts(legs []float64, n int) []int {
	counts := make([]int, len(legs))
	total := 0.0
	last := -1
	for i, d := range legs {
		if d > 0 {
			total += d
			last = i
		}
	}
	if last < 0 {
		return counts
	}

	assigned := 0
	for i := 0; i < last; i++ {
		if legs[i] <= 0 {
			continue
		}
		c := int(math.Round(float64(n) * legs[i] / total))
		// Rounding up on earlier legs must leave at least one segment for
		// the final leg so the chain still ends on its last waypoint.
		if assigned+c > n-1 {
			c = n - 1 - assigned
		}
		counts[i] = c
		assigned += c
	}
	counts[last] = n - assigned
	return counts
}

func sum(xs []int) int {
	s := 0
	for _, x := range xs {
		s += x
	}
	return s
}
