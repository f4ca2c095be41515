package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"notekeeper-zipjobs/internal/models"
)

type entityRequest struct {
	Summary string `json:"summary"`
	Details string `json:"details"`
}

const maxSummaryLen = 60

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{ErrorNumber: ErrorInvalidBody, ErrorDescription: "invalid json"})
		return
	}
	if req.Summary == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			ErrorNumber:      ErrorInvalidBody,
			ErrorDescription: "summary is required",
			ParameterName:    "summary",
		})
		return
	}
	if len(req.Summary) > maxSummaryLen {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			ErrorNumber:      ErrorInvalidBody,
			ErrorDescription: fmt.Sprintf("summary must be at most %d characters", maxSummaryLen),
			ParameterName:    "summary",
			ParameterValue:   req.Summary,
		})
		return
	}

	e, err := s.entities.CreateEntity(r.Context(), models.Entity{Summary: req.Summary, Details: req.Details})
	if err != nil {
		s.writeErr(r.Context(), w, err, "", "")
		return
	}
	w.Header().Set("Location", "/entities/"+e.ID)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	list, err := s.entities.ListEntities(r.Context())
	if err != nil {
		s.writeErr(r.Context(), w, err, "", "")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	e, found, err := s.entities.GetEntity(r.Context(), id)
	if err != nil {
		s.writeErr(r.Context(), w, err, "entityId", id)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, ErrorResponse{ErrorNumber: ErrorNotFound, ErrorDescription: "entity not found", ParameterName: "entityId", ParameterValue: id})
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteEntity removes the entity's attachments and result archives
// first so a failure never leaves blobs without an owner.
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	ok, err := s.entities.EntityExists(r.Context(), id)
	if err != nil {
		s.writeErr(r.Context(), w, err, "entityId", id)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, ErrorResponse{ErrorNumber: ErrorNotFound, ErrorDescription: "entity not found", ParameterName: "entityId", ParameterValue: id})
		return
	}
	if err := s.attachments.DeleteAll(r.Context(), id); err != nil {
		s.writeErr(r.Context(), w, err, "entityId", id)
		return
	}
	if err := s.results.DeleteAll(r.Context(), id); err != nil {
		s.writeErr(r.Context(), w, err, "entityId", id)
		return
	}
	if _, err := s.entities.DeleteEntity(r.Context(), id); err != nil {
		s.writeErr(r.Context(), w, err, "entityId", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
