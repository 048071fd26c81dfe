package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// MaxTraversableAngle is the incline, in degrees, at and beyond which every
// built-in policy reports a zero factor.
const MaxTraversableAngle = 45.0

// angleEpsilon keeps a slope computed as 44.999999999 from slipping past the
// stop threshold.
const angleEpsilon = 1e-9

// SlopePolicy maps a slope angle and direction to a speed factor. A factor of
// zero means the slope is impassable and halts the entity.
type SlopePolicy interface {
	Name() string
	Factor(angleDeg float64, slope model.SlopeType) float64
}

// SlopeBand is one step of a piecewise-constant factor table: angles up to
// and including MaxAngle use Factor.
type SlopeBand struct {
	MaxAngle float64
	Factor   float64
}

// BandedSlopePolicy is a table-driven SlopePolicy. Between the last band and
// MaxTraversableAngle the factor falls linearly to zero.
type BandedSlopePolicy struct {
	PolicyName string
	Uphill     []SlopeBand
	Downhill   []SlopeBand
}

// Name implements SlopePolicy.
func (p *BandedSlopePolicy) Name() string { return p.PolicyName }

// Factor implements SlopePolicy.
func (p *BandedSlopePolicy) Factor(angleDeg float64, slope model.SlopeType) float64 {
	bands := p.Uphill
	if slope == model.SlopeDownhill {
		bands = p.Downhill
	}
	return bandFactor(bands, angleDeg)
}

func bandFactor(bands []SlopeBand, angle float64) float64 {
	if len(bands) == 0 || angle >= MaxTraversableAngle-angleEpsilon {
		return 0
	}
	for _, b := range bands {
		if angle <= b.MaxAngle {
			return b.Factor
		}
	}
	last := bands[len(bands)-1]
	span := MaxTraversableAngle - last.MaxAngle
	if span <= 0 {
		return 0
	}
	return last.Factor * (MaxTraversableAngle - angle) / span
}

// CanonicalSlopePolicy only ever slows entities down: gentle climbs keep 70%
// of base speed, gentle descents 40%, and descents get easier as they steepen
// up to 40 degrees.
func CanonicalSlopePolicy() SlopePolicy {
	return &BandedSlopePolicy{
		PolicyName: "canonical",
		Uphill: []SlopeBand{
			{MaxAngle: 10, Factor: 0.7},
			{MaxAngle: 20, Factor: 0.6},
			{MaxAngle: 30, Factor: 0.5},
			{MaxAngle: 40, Factor: 0.4},
		},
		Downhill: []SlopeBand{
			{MaxAngle: 10, Factor: 0.4},
			{MaxAngle: 20, Factor: 0.5},
			{MaxAngle: 30, Factor: 0.6},
			{MaxAngle: 40, Factor: 0.7},
		},
	}
}

// DownhillBoostSlopePolicy accelerates entities on moderate descents.
func DownhillBoostSlopePolicy() SlopePolicy {
	return &BandedSlopePolicy{
		PolicyName: "downhill-boost",
		Uphill: []SlopeBand{
			{MaxAngle: 10, Factor: 0.7},
			{MaxAngle: 20, Factor: 0.6},
			{MaxAngle: 30, Factor: 0.5},
			{MaxAngle: 40, Factor: 0.4},
		},
		Downhill: []SlopeBand{
			{MaxAngle: 10, Factor: 1.2},
			{MaxAngle: 20, Factor: 1.1},
			{MaxAngle: 30, Factor: 1.0},
			{MaxAngle: 40, Factor: 0.8},
		},
	}
}

var (
	policyMu sync.RWMutex
	policies = map[string]func() SlopePolicy{
		"canonical":      CanonicalSlopePolicy,
		"downhill-boost": DownhillBoostSlopePolicy,
	}
)

// RegisterSlopePolicy makes a policy constructor available to
// SlopePolicyByName. It returns an error if the name is taken.
func RegisterSlopePolicy(name string, ctor func() SlopePolicy) error {
	policyMu.Lock()
	defer policyMu.Unlock()
	if _, exists := policies[name]; exists {
		return fmt.Errorf("slope policy %q already registered", name)
	}
	policies[name] = ctor
	return nil
}

// SlopePolicyByName returns a fresh instance of the named policy. An empty
// name selects the canonical policy.
func SlopePolicyByName(name string) (SlopePolicy, error) {
	if name == "" {
		return CanonicalSlopePolicy(), nil
	}
	policyMu.RLock()
	ctor, ok := policies[name]
	policyMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown slope policy %q (known: %v)", name, SlopePolicyNames())
	}
	return ctor(), nil
}

// SlopePolicyNames lists registered policy names in sorted order.
func SlopePolicyNames() []string {
	policyMu.RLock()
	defer policyMu.RUnlock()
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SlopeEvaluation is the outcome of applying a policy to one segment.
type SlopeEvaluation struct {
	Angle  float64
	Type   model.SlopeType
	Factor float64
}

// Impassable reports whether the segment halts the entity.
func (e SlopeEvaluation) Impassable() bool { return e.Factor <= 0 }

// EvaluateSlope classifies a segment from its elevation change and
// horizontal distance and looks up the policy factor.
func EvaluateSlope(policy SlopePolicy, elevationDiff, horizontalDistance float64) SlopeEvaluation {
	slope := model.SlopeUphill
	if elevationDiff < 0 {
		slope = model.SlopeDownhill
	}
	angle := SlopeAngleDegrees(elevationDiff, horizontalDistance)
	return SlopeEvaluation{
		Angle:  angle,
		Type:   slope,
		Factor: policy.Factor(angle, slope),
	}
}

// SpeedFactor applies the canonical policy to a segment.
func SpeedFactor(elevationDiff, horizontalDistance float64) float64 {
	return EvaluateSlope(CanonicalSlopePolicy(), elevationDiff, horizontalDistance).Factor
}
