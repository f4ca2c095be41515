package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/models"
	"notekeeper-zipjobs/internal/telemetry"
)

type submitResponse struct {
	EntityID    string          `json:"entityId"`
	JobID       string          `json:"jobId"`
	Status      models.JobState `json:"status"`
	Location    string          `json:"location"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type jobStatusResponse struct {
	JobID         string          `json:"jobId"`
	Status        models.JobState `json:"status"`
	StatusDetails string          `json:"statusDetails"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

func toStatusResponse(st models.JobStatus) jobStatusResponse {
	return jobStatusResponse{JobID: st.JobID, Status: st.Status, StatusDetails: st.StatusDetails, LastUpdated: st.LastUpdated}
}

func (s *Server) handleSubmitZipJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")

	if s.limiter != nil {
		d, err := s.limiter.Allow(r.Context(), rateLimitKey(tenantFromRequest(r)))
		if err != nil {
			s.log.Error(r.Context(), "rate limiter failed", "error", err)
			writeError(w, http.StatusInternalServerError, ErrorResponse{ErrorNumber: ErrorInternal, ErrorDescription: "rate limit error"})
			return
		}
		if !d.Allowed {
			telemetry.RateLimitRejects.Inc()
			if d.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			}
			writeError(w, http.StatusTooManyRequests, ErrorResponse{ErrorNumber: ErrorRateLimited, ErrorDescription: "rate limited"})
			return
		}
	}

	sub, err := s.submitter.SubmitZipRequest(r.Context(), id)
	if errors.Is(err, common.ErrNoAttachments) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		if !errors.Is(err, common.ErrValidation) && !errors.Is(err, common.ErrNotFound) {
			telemetry.SubmitFailures.Inc()
		}
		s.writeErr(r.Context(), w, err, "entityId", id)
		return
	}
	telemetry.JobsSubmitted.Inc()

	w.Header().Set("Location", sub.Location)
	writeJSON(w, http.StatusAccepted, submitResponse{
		EntityID:    sub.EntityID,
		JobID:       sub.JobID,
		Status:      sub.Status,
		Location:    sub.Location,
		LastUpdated: sub.LastUpdated,
	})
}

func (s *Server) handleListZipJobs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	list, err := s.results.List(r.Context(), id)
	if err != nil {
		s.writeErr(r.Context(), w, err, "entityId", id)
		return
	}
	out := make([]jobStatusResponse, len(list))
	for i, st := range list {
		out[i] = toStatusResponse(st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetZipJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	jobID := chi.URLParam(r, "jobId")
	st, err := s.results.Status(r.Context(), id, jobID)
	if err != nil {
		s.writeErr(r.Context(), w, err, "jobId", jobID)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	list, err := s.results.Archives(r.Context(), id)
	if err != nil {
		s.writeErr(r.Context(), w, err, "entityId", id)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDownloadResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	jobID := chi.URLParam(r, "jobId")

	rc, obj, err := s.results.OpenArchive(r.Context(), id, jobID)
	if err != nil {
		s.writeErr(r.Context(), w, err, "jobId", jobID)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID))
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn(r.Context(), "stream archive", "entity_id", id, "job_id", jobID, "error", err)
	}
}

func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	jobID := chi.URLParam(r, "jobId")
	if !models.ValidJobID(jobID) {
		writeError(w, http.StatusBadRequest, ErrorResponse{ErrorNumber: ErrorInvalidIdentifier, ErrorDescription: "jobId is not a valid job identifier", ParameterName: "jobId", ParameterValue: jobID})
		return
	}
	if err := s.results.DeleteArchive(r.Context(), id, jobID); err != nil {
		s.writeErr(r.Context(), w, err, "jobId", jobID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
