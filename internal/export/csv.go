package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{
	"entity_id", "index", "lon", "lat", "time_offset",
	"effective_speed", "slope_type", "slope_angle", "stopped",
}

// WriteCSV writes one row per trajectory vertex.
func WriteCSV(w io.Writer, run *model.SimulationRun) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	if run != nil {
		for _, e := range run.Entities {
			for i, p := range e.Path {
				row := []string{
					string(e.ID),
					strconv.Itoa(i),
					formatFloat(p.Lon),
					formatFloat(p.Lat),
					formatFloat(p.TimeOffset),
					formatFloat(p.EffectiveSpeed),
					string(p.SlopeType),
					formatFloat(p.SlopeAngle),
					strconv.FormatBool(e.Stopped && i == len(e.Path)-1),
				}
				if err := writer.Write(row); err != nil {
					return fmt.Errorf("failed to write CSV row: %w", err)
				}
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
