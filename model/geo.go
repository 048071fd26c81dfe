package model

// GeoPoint is a geographic location in decimal degrees. Elevation is optional
// and, when set, takes precedence over a DEM lookup.
type GeoPoint struct {
	Lon       float64  `json:"lon"`
	Lat       float64  `json:"lat"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// NewGeoPoint returns a point without a known elevation.
func NewGeoPoint(lon, lat float64) GeoPoint {
	return GeoPoint{Lon: lon, Lat: lat}
}

// WithElevation returns a copy of p carrying the given elevation in metres.
func (p GeoPoint) WithElevation(elevation float64) GeoPoint {
	e := elevation
	p.Elevation = &e
	return p
}

// HasElevation reports whether p carries a pre-known elevation.
func (p GeoPoint) HasElevation() bool {
	return p.Elevation != nil
}

// WaypointChain is one itinerary: a start point followed by an ordered path.
type WaypointChain struct {
	Start GeoPoint   `json:"start"`
	Path  []GeoPoint `json:"path"`
}

// Points returns the full polyline [Start, Path...].
func (c WaypointChain) Points() []GeoPoint {
	pts := make([]GeoPoint, 0, len(c.Path)+1)
	pts = append(pts, c.Start)
	pts = append(pts, c.Path...)
	return pts
}
