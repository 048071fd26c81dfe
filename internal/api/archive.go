package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/store"
)

type saveArchiveRequest struct {
	Name string `json:"name"`
}

func (s *Server) requireArchive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.archive == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "run archive is not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSaveArchive(w http.ResponseWriter, r *http.Request) {
	var req saveArchiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	snap, err := s.state.Snapshot()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec := &store.RunRecord{
		Policy:       snap.Policy,
		ResampleMode: snap.Resample.Mode.String(),
		Entities:     snap.Entities,
		Run:          snap.Run,
	}
	id, err := s.archive.SaveRun(r.Context(), req.Name, rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loggerFrom(r.Context(), s.log).Info(r.Context(), "run archived",
		logging.Int("run_id", int(id)),
		logging.String("name", rec.Name),
	)
	writeJSON(w, http.StatusCreated, summaryOf(rec))
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	runs, total, err := s.archive.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "total": total})
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := archiveID(w, r)
	if !ok {
		return
	}
	rec, err := s.archive.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := archiveID(w, r)
	if !ok {
		return
	}
	if err := s.archive.DeleteRun(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func archiveID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid run id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func summaryOf(rec *store.RunRecord) store.RunSummary {
	return store.RunSummary{
		ID:           rec.ID,
		Name:         rec.Name,
		Policy:       rec.Policy,
		ResampleMode: rec.ResampleMode,
		EntityCount:  rec.EntityCount,
		StoppedCount: rec.StoppedCount,
		MaxTime:      rec.MaxTime,
		CreatedAt:    rec.CreatedAt,
	}
}
