package model

import "fmt"

// DEMGrid is a row-major elevation raster with linear georeferencing:
//
//	lon = TiepointLon + col*PixelSizeLon
//	lat = TiepointLat - row*PixelSizeLat
//
// Data[row*Width+col] is the elevation of cell (col, row). A grid is built
// once by a raster loader and treated as read-only afterwards.
type DEMGrid struct {
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	TiepointLon  float64   `json:"tiepoint_lon"`
	TiepointLat  float64   `json:"tiepoint_lat"`
	PixelSizeLon float64   `json:"pixel_size_lon"`
	PixelSizeLat float64   `json:"pixel_size_lat"`
	Data         []float64 `json:"data"`

	// NoData marks cells without a valid sample (DTED uses -32767).
	NoData *float64 `json:"no_data,omitempty"`
}

// Validate checks the structural invariants of the grid.
func (g *DEMGrid) Validate() error {
	if g == nil {
		return fmt.Errorf("dem grid is nil")
	}
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("dem grid dimensions must be positive, got %dx%d", g.Width, g.Height)
	}
	if g.PixelSizeLon <= 0 || g.PixelSizeLat <= 0 {
		return fmt.Errorf("dem pixel size must be positive, got %g x %g", g.PixelSizeLon, g.PixelSizeLat)
	}
	if len(g.Data) != g.Width*g.Height {
		return fmt.Errorf("dem data length %d does not match %dx%d", len(g.Data), g.Width, g.Height)
	}
	return nil
}

// Bounds returns the geographic extent covered by cell origins.
func (g *DEMGrid) Bounds() (minLon, maxLon, minLat, maxLat float64) {
	minLon = g.TiepointLon
	maxLon = g.TiepointLon + float64(g.Width-1)*g.PixelSizeLon
	maxLat = g.TiepointLat
	minLat = g.TiepointLat - float64(g.Height-1)*g.PixelSizeLat
	return minLon, maxLon, minLat, maxLat
}

// CellCoordinate returns the geographic coordinate of cell (col, row).
func (g *DEMGrid) CellCoordinate(col, row int) GeoPoint {
	return GeoPoint{
		Lon: g.TiepointLon + float64(col)*g.PixelSizeLon,
		Lat: g.TiepointLat - float64(row)*g.PixelSizeLat,
	}
}

// IsNoData reports whether v is the grid's no-data marker.
func (g *DEMGrid) IsNoData(v float64) bool {
	return g.NoData != nil && v == *g.NoData
}
