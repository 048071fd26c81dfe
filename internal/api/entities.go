package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/signalsfoundry/terrain-traversal-sim/core"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/sim/state"
	"github.com/signalsfoundry/terrain-traversal-sim/internal/store"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

// entityPatch carries the mutable fields of PATCH /entities/{id}. Absent
// fields are left unchanged.
type entityPatch struct {
	Start  *model.GeoPoint  `json:"start,omitempty"`
	Path   []model.GeoPoint `json:"path,omitempty"`
	Speed  *float64         `json:"speed,omitempty"`
	Height *float64         `json:"height,omitempty"`
}

func (p entityPatch) apply(e *model.EntitySpec) {
	if p.Start != nil {
		e.Start = *p.Start
	}
	if p.Path != nil {
		e.Path = append([]model.GeoPoint(nil), p.Path...)
	}
	if p.Speed != nil {
		e.Speed = *p.Speed
	}
	if p.Height != nil {
		e.Height = *p.Height
	}
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Entities().List())
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var spec model.EntitySpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}
	id, err := s.state.Entities().Add(spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.state.Entities().Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loggerFrom(r.Context(), s.log).Info(r.Context(), "entity created",
		logging.String("entity_id", string(id)),
		logging.Int("waypoints", len(created.Path)),
	)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := s.state.Entities().Get(model.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	id := model.EntityID(chi.URLParam(r, "id"))
	var patch entityPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}
	if err := s.state.Entities().Update(id, patch.apply); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.state.Entities().Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := model.EntityID(chi.URLParam(r, "id"))
	if err := s.state.Entities().Remove(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	loggerFrom(r.Context(), s.log).Info(r.Context(), "entity removed", logging.String("entity_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.state.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := core.LoadScenario(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	policy, err := core.SlopePolicyByName(sc.SlopePolicy)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", state.ErrInvalidConfig, err))
		return
	}
	ids, err := s.state.ReplaceScenario(r.Context(), sc.Entities, sc.Resample, policy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entities": ids})
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, state.ErrEntityNotFound),
		errors.Is(err, state.ErrNoRun),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, state.ErrEntityExists):
		status = http.StatusConflict
	case errors.Is(err, model.ErrInvalidEntity),
		errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, state.ErrInvalidConfig):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context(), s.log).Error(r.Context(), "request failed",
			logging.String("path", r.URL.Path),
			logging.Err(err),
		)
	}
	writeJSONError(w, status, err.Error())
}
