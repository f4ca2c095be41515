package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	list, err := s.attachments.List(r.Context(), id)
	if err != nil {
		s.writeErr(r.Context(), w, err, "entityId", id)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handlePutAttachment answers 201 for a new attachment and 204 when an
// existing one was replaced.
func (s *Server) handlePutAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	name := chi.URLParam(r, "name")

	created, err := s.attachments.Put(r.Context(), id, name, r.Body, r.ContentLength, r.Header.Get("Content-Type"))
	if err != nil {
		s.writeErr(r.Context(), w, err, "attachmentName", name)
		return
	}
	if !created {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Location", "/entities/"+id+"/attachments/"+name)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	name := chi.URLParam(r, "name")

	rc, att, err := s.attachments.Open(r.Context(), id, name)
	if err != nil {
		s.writeErr(r.Context(), w, err, "attachmentName", name)
		return
	}
	defer rc.Close()

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(att.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn(r.Context(), "stream attachment", "entity_id", id, "name", name, "error", err)
	}
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	name := chi.URLParam(r, "name")

	deleted, err := s.attachments.Delete(r.Context(), id, name)
	if err != nil {
		s.writeErr(r.Context(), w, err, "attachmentName", name)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, ErrorResponse{ErrorNumber: ErrorNotFound, ErrorDescription: "attachment not found", ParameterName: "attachmentName", ParameterValue: name})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
