// Package export renders simulation runs as GeoJSON and CSV.
package export

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/signalsfoundry/terrain-traversal-sim/core"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// Feature kinds carried in the "kind" property.
const (
	KindSegment = "segment"
	KindFinal   = "final"
	KindDEM     = "dem_footprint"
)

// GeoJSON converts run into a FeatureCollection. Every traversed segment
// becomes a LineString coloured by its slope; every entity also gets a Point
// at its final position. Zero-length segments (a halt recorded at the
// anchor) are omitted from the lines but still reflected in the final point.
func GeoJSON(run *model.SimulationRun) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if run == nil {
		return fc
	}

	for _, e := range run.Entities {
		if len(e.Path) == 0 {
			continue
		}
		for i := 1; i < len(e.Path); i++ {
			prev, cur := e.Path[i-1], e.Path[i]
			a := orb.Point{prev.Lon, prev.Lat}
			b := orb.Point{cur.Lon, cur.Lat}
			if a.Equal(b) {
				continue
			}
			f := geojson.NewFeature(orb.LineString{a, b})
			f.Properties["kind"] = KindSegment
			f.Properties["entity_id"] = string(e.ID)
			f.Properties["segment"] = i - 1
			f.Properties["slope"] = slopeLabel(cur.SlopeType)
			f.Properties["angle"] = cur.SlopeAngle
			f.Properties["color"] = SlopeColor(cur.SlopeType, cur.SlopeAngle)
			f.Properties["effective_speed"] = cur.EffectiveSpeed
			f.Properties["t_start"] = prev.TimeOffset
			f.Properties["t_end"] = cur.TimeOffset
			fc.Append(f)
		}

		last := e.Path[len(e.Path)-1]
		f := geojson.NewFeature(orb.Point{last.Lon, last.Lat})
		f.Properties["kind"] = KindFinal
		f.Properties["entity_id"] = string(e.ID)
		f.Properties["stopped"] = e.Stopped
		f.Properties["time_offset"] = last.TimeOffset
		fc.Append(f)
	}
	return fc
}

// DEMFootprint returns the grid's coverage as a Polygon feature annotated
// with its dimensions and elevation range.
func DEMFootprint(grid *model.DEMGrid) (*geojson.Feature, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	minLon, maxLon, minLat, maxLat := grid.Bounds()
	bound := orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}

	f := geojson.NewFeature(bound.ToPolygon())
	f.Properties["kind"] = KindDEM
	f.Properties["width"] = grid.Width
	f.Properties["height"] = grid.Height
	f.Properties["pixel_size_lon"] = grid.PixelSizeLon
	f.Properties["pixel_size_lat"] = grid.PixelSizeLat
	if lo, hi, ok := core.ElevationRange(grid); ok {
		f.Properties["min_elevation"] = lo
		f.Properties["max_elevation"] = hi
	}
	return f, nil
}

func slopeLabel(t model.SlopeType) string {
	if t == model.SlopeNone {
		return "unknown"
	}
	return string(t)
}
