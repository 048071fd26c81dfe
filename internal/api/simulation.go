package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/signalsfoundry/terrain-traversal-sim/core"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/export"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/sim/state"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

type resampleRequest struct {
	Mode          string  `json:"mode"`
	SegmentLength float64 `json:"segment_length,omitempty"`
	SegmentCount  int     `json:"segment_count,omitempty"`
}

type simulateRequest struct {
	Resample    *resampleRequest `json:"resample,omitempty"`
	SlopePolicy *string          `json:"slope_policy,omitempty"`
}

// runSummary is the response of POST /simulate and the header of GET /run.
type runSummary struct {
	Seq          uint64    `json:"seq"`
	Entities     int       `json:"entities"`
	Stopped      int       `json:"stopped"`
	Skipped      int       `json:"skipped_segments"`
	MaxTime      float64   `json:"max_time"`
	Policy       string    `json:"policy"`
	ResampleMode string    `json:"resample_mode"`
	DurationMS   float64   `json:"duration_ms"`
	CompletedAt  time.Time `json:"completed_at"`
}

type runResponse struct {
	runSummary
	Run *model.SimulationRun `json:"run"`
}

func summarize(snap state.RunSnapshot) runSummary {
	return runSummary{
		Seq:          snap.Seq,
		Entities:     snap.Stats.Entities,
		Stopped:      snap.Stats.StoppedEntities,
		Skipped:      snap.Stats.SkippedSegments,
		MaxTime:      snap.Stats.MaxTime,
		Policy:       snap.Policy,
		ResampleMode: snap.Resample.Mode.String(),
		DurationMS:   float64(snap.Stats.Duration) / float64(time.Millisecond),
		CompletedAt:  snap.CompletedAt,
	}
}

func (r resampleRequest) toConfig() (core.ResampleConfig, error) {
	mode, err := core.ParseResampleMode(r.Mode)
	if err != nil {
		return core.ResampleConfig{}, fmt.Errorf("%w: %w", state.ErrInvalidConfig, err)
	}
	switch mode {
	case core.ResampleFixedCount:
		return core.FixedCount(r.SegmentCount), nil
	default:
		length := r.SegmentLength
		if length == 0 {
			length = core.DefaultSegmentLength
		}
		return core.FixedLength(length), nil
	}
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}
	if req.Resample != nil || req.SlopePolicy != nil {
		cfg := s.state.ResampleConfig()
		policy := s.state.SlopePolicy()
		if req.Resample != nil {
			c, err := req.Resample.toConfig()
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			cfg = c
		}
		if req.SlopePolicy != nil {
			p, err := core.SlopePolicyByName(*req.SlopePolicy)
			if err != nil {
				s.writeError(w, r, fmt.Errorf("%w: %w", state.ErrInvalidConfig, err))
				return
			}
			policy = p
		}
		if err := s.state.SetEngineConfig(cfg, policy); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	snap, err := s.state.RunSimulation(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(snap))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.state.Snapshot()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{runSummary: summarize(snap), Run: snap.Run})
}

func (s *Server) handleRunGeoJSON(w http.ResponseWriter, r *http.Request) {
	run := s.state.CurrentRun()
	if run == nil {
		s.writeError(w, r, state.ErrNoRun)
		return
	}
	data, err := export.GeoJSON(run).MarshalJSON()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleRunCSV(w http.ResponseWriter, r *http.Request) {
	snap, err := s.state.Snapshot()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"run-%d.csv\"", snap.Seq))
	if err := export.WriteCSV(w, snap.Run); err != nil {
		loggerFrom(r.Context(), s.log).Warn(r.Context(), "csv export interrupted")
	}
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("t")
	if raw == "" {
		writeJSONError(w, http.StatusBadRequest, "query parameter t is required")
		return
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "query parameter t must be a number")
		return
	}
	positions, err := s.state.PositionsAt(t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionFrame{Type: frameTypePositions, T: t, Positions: positions})
}

func (s *Server) handleDEM(w http.ResponseWriter, r *http.Request) {
	f, err := export.DEMFootprint(s.state.Grid())
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "dem not loaded: "+err.Error())
		return
	}
	data, err := f.MarshalJSON()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSlopePolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    s.state.SlopePolicy().Name(),
		"available": core.SlopePolicyNames(),
	})
}
