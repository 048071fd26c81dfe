package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// boundaryEpsilon absorbs floating-point error for queries that land exactly
// on the raster edge.
const boundaryEpsilon = 1e-8

const indexEpsilon = 1e-9

var (
	// ErrOutOfBounds indicates a DEM query outside the grid extent.
	ErrOutOfBounds = errors.New("coordinate outside dem extent")
	// ErrNoData indicates the sampled cell holds the grid's no-data marker.
	ErrNoData = errors.New("dem cell has no data")
)

// ElevationSource resolves the ground elevation at a point.
type ElevationSource interface {
	ElevationAt(p model.GeoPoint) (float64, error)
}

// GridSource adapts a DEMGrid to ElevationSource, preferring elevations
// already carried by the point.
type GridSource struct {
	Grid *model.DEMGrid
}

// ElevationAt implements ElevationSource.
func (s GridSource) ElevationAt(p model.GeoPoint) (float64, error) {
	return PointElevation(s.Grid, p)
}

// Elevation samples grid at (lon, lat) using floor (nearest-lower-cell)
// indexing, so output shows the raster's terracing. The fractional cell
// index is nudged up by indexEpsilon (1e-9 of a cell) before flooring: a
// coordinate that lands on a cell origin, or within 1e-9 of a cell short of
// it, reads that cell rather than its neighbour. Queries within a small
// epsilon of the extent are clamped onto it; anything further out reports
// ErrOutOfBounds without touching the data slice.
func Elevation(grid *model.DEMGrid, lon, lat float64) (float64, error) {
	if grid == nil || grid.Width <= 0 || grid.Height <= 0 || len(grid.Data) < grid.Width*grid.Height {
		return 0, fmt.Errorf("%w: grid is empty", ErrOutOfBounds)
	}
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return 0, fmt.Errorf("%w: coordinate is NaN", ErrOutOfBounds)
	}

	minLon, maxLon, minLat, maxLat := grid.Bounds()
	if lon < minLon-boundaryEpsilon || lon > maxLon+boundaryEpsilon ||
		lat < minLat-boundaryEpsilon || lat > maxLat+boundaryEpsilon {
		return 0, fmt.Errorf("%w: (%g, %g)", ErrOutOfBounds, lon, lat)
	}
	lon = clamp(lon, minLon, maxLon)
	lat = clamp(lat, minLat, maxLat)

	// indexEpsilon keeps a coordinate sitting exactly on a cell origin in that
	// cell when the division lands a few ULPs short of the integer.
	col := int(math.Floor((lon-grid.TiepointLon)/grid.PixelSizeLon + indexEpsilon))
	row := int(math.Floor((grid.TiepointLat-lat)/grid.PixelSizeLat + indexEpsilon))
	if col < 0 || col >= grid.Width || row < 0 || row >= grid.Height {
		return 0, fmt.Errorf("%w: (%g, %g) maps to cell (%d, %d)", ErrOutOfBounds, lon, lat, col, row)
	}

	v := grid.Data[row*grid.Width+col]
	if grid.IsNoData(v) {
		return 0, fmt.Errorf("%w: cell (%d, %d)", ErrNoData, col, row)
	}
	return v, nil
}

// PointElevation returns p's own elevation when it carries one and samples
// the grid otherwise.
func PointElevation(grid *model.DEMGrid, p model.GeoPoint) (float64, error) {
	if p.Elevation != nil {
		return *p.Elevation, nil
	}
	return Elevation(grid, p.Lon, p.Lat)
}

// ElevationRange scans the grid for its lowest and highest valid samples.
// ok is false when every cell is no-data.
func ElevationRange(grid *model.DEMGrid) (min, max float64, ok bool) {
	if grid == nil {
		return 0, 0, false
	}
	min = math.Inf(1)
	max = math.Inf(-1)
	for _, v := range grid.Data {
		if grid.IsNoData(v) || math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return min, max, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
