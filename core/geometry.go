package core

import (
	"math"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// EarthRadiusMeters is the mean Earth radius used for all great-circle
// distance calculations.
const EarthRadiusMeters = 6371000.0

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b model.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := lat2 - lat1
	dLon := toRadians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	// Rounding can push h a hair above 1 for antipodal points.
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// lerpPoint linearly interpolates lon/lat between a and b. The result never
// carries a pre-known elevation.
func lerpPoint(a, b model.GeoPoint, t float64) model.GeoPoint {
	return model.GeoPoint{
		Lon: a.Lon + t*(b.Lon-a.Lon),
		Lat: a.Lat + t*(b.Lat-a.Lat),
	}
}

// SlopeAngleDegrees returns |atan2(elevationDiff, horizontalDistance)| in degrees.
func SlopeAngleDegrees(elevationDiff, horizontalDistance float64) float64 {
	return math.Abs(toDegrees(math.Atan2(elevationDiff, horizontalDistance)))
}
