package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/sim/state"
	"github.com/signalsfoundry/terrain-traversal-sim/timectrl"
)

type playbackStartRequest struct {
	Rate *float64 `json:"rate,omitempty"`
	Mode *string  `json:"mode,omitempty"`
}

type playbackSeekRequest struct {
	T float64 `json:"t"`
}

type playbackStatus struct {
	Running bool    `json:"running"`
	T       float64 `json:"t"`
	MaxTime float64 `json:"max_time"`
	Rate    float64 `json:"rate"`
	Mode    string  `json:"mode"`
	Seq     uint64  `json:"seq"`
}

func (s *Server) playbackOffset() float64 {
	return s.clock.Elapsed().Seconds()
}

// currentFrame interpolates the current run at the playback clock.
func (s *Server) currentFrame() (positionFrame, bool) {
	snap, err := s.state.Snapshot()
	if err != nil {
		return positionFrame{}, false
	}
	t := s.playbackOffset()
	positions, err := s.state.PositionsAt(t)
	if err != nil {
		return positionFrame{}, false
	}
	return positionFrame{
		Type:      frameTypePositions,
		Seq:       snap.Seq,
		T:         t,
		MaxTime:   snap.Run.MaxTime,
		Positions: positions,
	}, true
}

// onTick broadcasts the current frame and halts playback once every entity
// has reached the end of its path.
func (s *Server) onTick(time.Time) {
	frame, ok := s.currentFrame()
	if !ok {
		s.clock.Stop()
		return
	}
	s.hub.Broadcast(frame)
	if frame.T >= frame.MaxTime {
		s.clock.Stop()
	}
}

// onRun rewinds playback whenever the run is replaced or cleared.
func (s *Server) onRun(snap state.RunSnapshot) {
	s.clock.Stop()
	s.clock.Reset()
	if snap.Run == nil {
		s.hub.Broadcast(positionFrame{Type: frameTypeCleared})
		return
	}
	s.hub.Broadcast(positionFrame{Type: frameTypeRun, Seq: snap.Seq, MaxTime: snap.Run.MaxTime})
	if frame, ok := s.currentFrame(); ok {
		s.hub.Broadcast(frame)
	}
}

func (s *Server) status() playbackStatus {
	mode, rate := s.clock.Settings()
	st := playbackStatus{
		Running: s.clock.Running(),
		T:       s.playbackOffset(),
		Rate:    rate,
		Mode:    mode.String(),
	}
	if snap, err := s.state.Snapshot(); err == nil {
		st.MaxTime = snap.Run.MaxTime
		st.Seq = snap.Seq
	}
	return st
}

func (s *Server) handlePlaybackStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handlePlaybackStart(w http.ResponseWriter, r *http.Request) {
	var req playbackStartRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}
	snap, err := s.state.Snapshot()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.clock.Running() {
		writeJSONError(w, http.StatusConflict, "playback already running")
		return
	}
	if req.Rate != nil {
		if *req.Rate <= 0 {
			writeJSONError(w, http.StatusBadRequest, "rate must be positive")
			return
		}
		s.clock.SetRate(*req.Rate)
	}
	if req.Mode != nil {
		s.clock.SetMode(timectrl.ParseMode(*req.Mode))
	}
	if s.playbackOffset() >= snap.Run.MaxTime {
		s.clock.Reset()
	}

	s.clock.Start(0)
	mode, rate := s.clock.Settings()
	loggerFrom(r.Context(), s.log).Info(r.Context(), "playback started",
		logging.Float64("t", s.playbackOffset()),
		logging.Float64("rate", rate),
		logging.String("mode", mode.String()),
	)
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handlePlaybackStop(w http.ResponseWriter, r *http.Request) {
	s.clock.Stop()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handlePlaybackSeek(w http.ResponseWriter, r *http.Request) {
	var req playbackSeekRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}
	if req.T < 0 {
		writeJSONError(w, http.StatusBadRequest, "t must not be negative")
		return
	}
	if _, err := s.state.Snapshot(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clock.SetTime(playbackEpoch.Add(time.Duration(req.T * float64(time.Second))))
	if frame, ok := s.currentFrame(); ok {
		s.hub.Broadcast(frame)
	}
	writeJSON(w, http.StatusOK, s.status())
}
