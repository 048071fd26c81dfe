package export

import (
	"github.com/signalsfoundry/terrain-traversal-sim/core"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// Segment colours. Uphill runs green to red as the climb steepens, downhill
// runs light to dark blue, and anything at or past the traversable limit is
// drawn in maroon.
const (
	ColorUnknown    = "#FFFFFF"
	ColorImpassable = "#85144B"

	ColorUphillGentle   = "#2ECC40"
	ColorUphillModerate = "#FFDC00"
	ColorUphillSteep    = "#FF851B"
	ColorUphillSevere   = "#FF4136"

	ColorDownhillGentle   = "#7FDBFF"
	ColorDownhillModerate = "#39A0ED"
	ColorDownhillSteep    = "#0074D9"
	ColorDownhillSevere   = "#001F3F"
)

// SlopeColor maps a segment's slope classification to a hex colour using
// the same 10/20/30 degree bands as the canonical speed table.
func SlopeColor(slope model.SlopeType, angleDeg float64) string {
	if slope == model.SlopeNone {
		return ColorUnknown
	}
	if angleDeg >= core.MaxTraversableAngle {
		return ColorImpassable
	}

	band := 3
	switch {
	case angleDeg <= 10:
		band = 0
	case angleDeg <= 20:
		band = 1
	case angleDeg <= 30:
		band = 2
	}

	switch slope {
	case model.SlopeUphill:
		return [...]string{ColorUphillGentle, ColorUphillModerate, ColorUphillSteep, ColorUphillSevere}[band]
	case model.SlopeDownhill:
		return [...]string{ColorDownhillGentle, ColorDownhillModerate, ColorDownhillSteep, ColorDownhillSevere}[band]
	default:
		return ColorUnknown
	}
}
