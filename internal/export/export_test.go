package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

func sampleRun() *model.SimulationRun {
	return &model.SimulationRun{
		Entities: []model.SimulatedEntity{
			{
				ID: "walker",
				Path: []model.SimulatedPathPoint{
					{Lon: 77.0, Lat: 25.0, EffectiveSpeed: 10},
					{Lon: 77.001, Lat: 25.0, TimeOffset: 14.3, EffectiveSpeed: 7, SlopeType: model.SlopeUphill, SlopeAngle: 5},
					{Lon: 77.002, Lat: 25.0, TimeOffset: 39.1, EffectiveSpeed: 4, SlopeType: model.SlopeDownhill, SlopeAngle: 12},
				},
			},
			{
				ID:      "stuck",
				Stopped: true,
				Path: []model.SimulatedPathPoint{
					{Lon: 78.0, Lat: 26.0, EffectiveSpeed: 5},
					{Lon: 78.0, Lat: 26.0, SlopeType: model.SlopeUphill, SlopeAngle: 70},
				},
			},
		},
		MaxTime: 39.1,
	}
}

func TestGeoJSONSegmentsAndFinalPoints(t *testing.T) {
	fc := GeoJSON(sampleRun())

	var segments, finals []*geojson.Feature
	for _, f := range fc.Features {
		switch f.Properties["kind"] {
		case KindSegment:
			segments = append(segments, f)
		case KindFinal:
			finals = append(finals, f)
		}
	}
	require.Len(t, segments, 2, "zero-length halt segment should be omitted")
	require.Len(t, finals, 2)

	first := segments[0]
	assert.Equal(t, orb.LineString{{77.0, 25.0}, {77.001, 25.0}}, first.Geometry)
	assert.Equal(t, "walker", first.Properties["entity_id"])
	assert.Equal(t, "uphill", first.Properties["slope"])
	assert.Equal(t, 5.0, first.Properties["angle"])
	assert.Equal(t, ColorUphillGentle, first.Properties["color"])
	assert.Equal(t, 7.0, first.Properties["effective_speed"])
	assert.Equal(t, 0.0, first.Properties["t_start"])
	assert.Equal(t, 14.3, first.Properties["t_end"])

	assert.Equal(t, ColorDownhillModerate, segments[1].Properties["color"])

	stuck := finals[1]
	assert.Equal(t, "stuck", stuck.Properties["entity_id"])
	assert.Equal(t, true, stuck.Properties["stopped"])
	assert.Equal(t, orb.Point{78.0, 26.0}, stuck.Geometry)
	assert.Equal(t, false, finals[0].Properties["stopped"])
}

func TestGeoJSONMarshals(t *testing.T) {
	data, err := json.Marshal(GeoJSON(sampleRun()))
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 4)
}

func TestGeoJSONNilRun(t *testing.T) {
	fc := GeoJSON(nil)
	require.NotNil(t, fc)
	assert.Empty(t, fc.Features)
}

func TestSlopeColor(t *testing.T) {
	cases := []struct {
		slope model.SlopeType
		angle float64
		want  string
	}{
		{model.SlopeNone, 0, ColorUnknown},
		{model.SlopeUphill, 0, ColorUphillGentle},
		{model.SlopeUphill, 10, ColorUphillGentle},
		{model.SlopeUphill, 15, ColorUphillModerate},
		{model.SlopeUphill, 25, ColorUphillSteep},
		{model.SlopeUphill, 42, ColorUphillSevere},
		{model.SlopeUphill, 45, ColorImpassable},
		{model.SlopeDownhill, 3, ColorDownhillGentle},
		{model.SlopeDownhill, 20, ColorDownhillModerate},
		{model.SlopeDownhill, 30, ColorDownhillSteep},
		{model.SlopeDownhill, 44, ColorDownhillSevere},
		{model.SlopeDownhill, 80, ColorImpassable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SlopeColor(tc.slope, tc.angle), "%s %.0f", tc.slope, tc.angle)
	}
}

func TestDEMFootprint(t *testing.T) {
	grid := &model.DEMGrid{
		Width: 3, Height: 2,
		TiepointLon: 77, TiepointLat: 26,
		PixelSizeLon: 0.5, PixelSizeLat: 0.5,
		Data: []float64{1, 2, 3, 4, 5, 6},
	}
	f, err := DEMFootprint(grid)
	require.NoError(t, err)

	poly, ok := f.Geometry.(orb.Polygon)
	require.True(t, ok, "geometry is %T", f.Geometry)
	bound := poly.Bound()
	assert.Equal(t, orb.Point{77, 25.5}, bound.Min)
	assert.Equal(t, orb.Point{78, 26}, bound.Max)
	assert.Equal(t, 1.0, f.Properties["min_elevation"])
	assert.Equal(t, 6.0, f.Properties["max_elevation"])

	_, err = DEMFootprint(&model.DEMGrid{})
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRun()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"walker", "1", "77.001", "25", "14.3", "7", "uphill", "5", "false"}, rows[2])
	assert.Equal(t, "false", rows[4][8])
	assert.Equal(t, "true", rows[5][8])
}

func TestWriteCSVNilRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
