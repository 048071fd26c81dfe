package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// newTestGrid builds a 4x3 grid at 3 arc-second spacing whose value encodes
// the cell as row*10+col.
func newTestGrid() *model.DEMGrid {
	const w, h = 4, 3
	data := make([]float64, w*h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			data[row*w+col] = float64(row*10 + col)
		}
	}
	return &model.DEMGrid{
		Width:        w,
		Height:       h,
		TiepointLon:  77,
		TiepointLat:  26,
		PixelSizeLon: 3.0 / 3600,
		PixelSizeLat: 3.0 / 3600,
		Data:         data,
	}
}

func TestElevation_CellOrigins(t *testing.T) {
	g := newTestGrid()
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			p := g.CellCoordinate(col, row)
			got, err := Elevation(g, p.Lon, p.Lat)
			if err != nil {
				t.Fatalf("Elevation(col=%d,row=%d) error: %v", col, row, err)
			}
			if want := float64(row*10 + col); got != want {
				t.Fatalf("Elevation(col=%d,row=%d) = %v, want %v", col, row, got, want)
			}
		}
	}
}

func TestElevation_FloorSampling(t *testing.T) {
	g := newTestGrid()
	// Just short of the next cell origin in both axes still reads cell (1,1).
	lon := g.TiepointLon + 1.9*g.PixelSizeLon
	lat := g.TiepointLat - 1.9*g.PixelSizeLat
	got, err := Elevation(g, lon, lat)
	if err != nil {
		t.Fatalf("Elevation error: %v", err)
	}
	if got != 11 {
		t.Fatalf("Elevation = %v, want 11 (no interpolation)", got)
	}
}

func TestElevation_IndexEpsilonMovesFloor(t *testing.T) {
	g := newTestGrid()
	lat := g.TiepointLat - 1*g.PixelSizeLat

	// 1e-10 of a cell short of column 2 is inside the epsilon and reads column 2.
	lon := g.TiepointLon + (2-1e-10)*g.PixelSizeLon
	got, err := Elevation(g, lon, lat)
	if err != nil {
		t.Fatalf("Elevation error: %v", err)
	}
	if got != 12 {
		t.Fatalf("Elevation just short of the boundary = %v, want 12", got)
	}

	// 1e-6 of a cell short is outside it and stays in column 1.
	lon = g.TiepointLon + (2-1e-6)*g.PixelSizeLon
	got, err = Elevation(g, lon, lat)
	if err != nil {
		t.Fatalf("Elevation error: %v", err)
	}
	if got != 11 {
		t.Fatalf("Elevation before the boundary = %v, want 11", got)
	}
}

func TestElevation_LastColumnAndRow(t *testing.T) {
	g := newTestGrid()
	lon := g.TiepointLon + float64(g.Width-1)*g.PixelSizeLon
	lat := g.TiepointLat - float64(g.Height-1)*g.PixelSizeLat

	got, err := Elevation(g, lon, lat)
	if err != nil {
		t.Fatalf("Elevation at far corner error: %v", err)
	}
	if want := g.Data[(g.Height-1)*g.Width+g.Width-1]; got != want {
		t.Fatalf("Elevation at far corner = %v, want %v", got, want)
	}
}

func TestElevation_EdgeWithinEpsilon(t *testing.T) {
	g := newTestGrid()
	got, err := Elevation(g, g.TiepointLon-1e-10, g.TiepointLat+1e-10)
	if err != nil {
		t.Fatalf("Elevation just outside origin error: %v", err)
	}
	if got != 0 {
		t.Fatalf("Elevation = %v, want 0", got)
	}
}

func TestElevation_OutOfBounds(t *testing.T) {
	g := newTestGrid()
	cases := []struct {
		name     string
		lon, lat float64
	}{
		{"west", g.TiepointLon - 1, g.TiepointLat},
		{"east", g.TiepointLon + 1, g.TiepointLat},
		{"north", g.TiepointLon, g.TiepointLat + 1},
		{"south", g.TiepointLon, g.TiepointLat - 1},
		{"nan", math.NaN(), g.TiepointLat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Elevation(g, tc.lon, tc.lat); !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("Elevation error = %v, want ErrOutOfBounds", err)
			}
		})
	}
}

func TestElevation_NoData(t *testing.T) {
	g := newTestGrid()
	noData := -32767.0
	g.NoData = &noData
	g.Data[0] = noData

	if _, err := Elevation(g, g.TiepointLon, g.TiepointLat); !errors.Is(err, ErrNoData) {
		t.Fatalf("Elevation error = %v, want ErrNoData", err)
	}
}

func TestPointElevation_PrefersKnownElevation(t *testing.T) {
	g := newTestGrid()
	p := model.NewGeoPoint(g.TiepointLon, g.TiepointLat).WithElevation(1234)

	got, err := PointElevation(g, p)
	if err != nil {
		t.Fatalf("PointElevation error: %v", err)
	}
	if got != 1234 {
		t.Fatalf("PointElevation = %v, want 1234", got)
	}
}

func TestElevationRange_SkipsNoData(t *testing.T) {
	g := newTestGrid()
	noData := -32767.0
	g.NoData = &noData
	g.Data[5] = noData

	min, max, ok := ElevationRange(g)
	if !ok {
		t.Fatalf("ElevationRange reported no valid samples")
	}
	if min != 0 || max != 23 {
		t.Fatalf("ElevationRange = (%v, %v), want (0, 23)", min, max)
	}
}
