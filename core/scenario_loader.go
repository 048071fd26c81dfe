package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// Scenario is a decoded simulation request: entities plus the engine
// configuration to run them with.
type Scenario struct {
	Entities    []model.EntitySpec
	Resample    ResampleConfig
	SlopePolicy string
}

// internal JSON shapes, kept unexported so the document format can evolve
// independently of the model types.
type scenarioJSON struct {
	SlopePolicy string           `json:"slope_policy"`
	Resample    *resampleJSON    `json:"resample"`
	Entities    []entitySpecJSON `json:"entities"`
}

type resampleJSON struct {
	Mode          string  `json:"mode"` // "fixed_length" | "fixed_count"
	SegmentLength float64 `json:"segment_length"`
	SegmentCount  int     `json:"segment_count"`
}

type entitySpecJSON struct {
	ID     string           `json:"id"`
	Start  *model.GeoPoint  `json:"start"`
	Path   []model.GeoPoint `json:"path"`
	Speed  float64          `json:"speed"`
	Height float64          `json:"height"`
}

type demGridJSON struct {
	model.DEMGrid
	// Rows is an alternative to the flat data array: one slice per raster
	// row, north to south.
	Rows [][]float64 `json:"rows"`
}

// LoadScenario decodes a JSON scenario from r. Entities without an id keep
// an empty ID so a registry can assign one; semantic validation is left to
// the Simulator.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	sc := &Scenario{
		Resample:    DefaultResampleConfig(),
		SlopePolicy: payload.SlopePolicy,
		Entities:    make([]model.EntitySpec, 0, len(payload.Entities)),
	}
	if payload.Resample != nil {
		cfg, err := payload.Resample.toConfig()
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		sc.Resample = cfg
	}

	for i, e := range payload.Entities {
		if e.Start == nil {
			return nil, fmt.Errorf("LoadScenario: entity %d has no start point", i)
		}
		sc.Entities = append(sc.Entities, model.EntitySpec{
			ID:     model.EntityID(strings.TrimSpace(e.ID)),
			Start:  *e.Start,
			Path:   e.Path,
			Speed:  e.Speed,
			Height: e.Height,
		})
	}
	return sc, nil
}

// ParseResampleMode maps a mode name to ResampleMode. Empty selects fixed length.
func ParseResampleMode(s string) (ResampleMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed_length", "length":
		return ResampleFixedLength, nil
	case "fixed_count", "count":
		return ResampleFixedCount, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidResampleConfig, s)
	}
}

func (r resampleJSON) toConfig() (ResampleConfig, error) {
	mode, err := ParseResampleMode(r.Mode)
	if err != nil {
		return ResampleConfig{}, err
	}
	cfg := ResampleConfig{Mode: mode, SegmentLength: r.SegmentLength, SegmentCount: r.SegmentCount}
	if mode == ResampleFixedLength && cfg.SegmentLength == 0 {
		cfg.SegmentLength = DefaultSegmentLength
	}
	return cfg, cfg.Validate()
}

// LoadDEMGrid decodes an already-normalised row-major grid from r and checks
// its invariants.
func LoadDEMGrid(r io.Reader) (*model.DEMGrid, error) {
	var payload demGridJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadDEMGrid: decode failed: %w", err)
	}

	grid := payload.DEMGrid
	if len(grid.Data) == 0 && len(payload.Rows) > 0 {
		if grid.Height == 0 {
			grid.Height = len(payload.Rows)
		}
		if grid.Width == 0 {
			grid.Width = len(payload.Rows[0])
		}
		grid.Data = make([]float64, 0, grid.Width*grid.Height)
		for i, row := range payload.Rows {
			if len(row) != grid.Width {
				return nil, fmt.Errorf("LoadDEMGrid: row %d has %d samples, want %d", i, len(row), grid.Width)
			}
			grid.Data = append(grid.Data, row...)
		}
	}
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("LoadDEMGrid: %w", err)
	}
	return &grid, nil
}
