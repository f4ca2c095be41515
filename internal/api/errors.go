package api

import (
	"context"
	"errors"
	"net/http"

	"notekeeper-zipjobs/internal/common"
)

// ErrorCode numbers the failure reasons reported to HTTP clients.
type ErrorCode int

const (
	ErrorUndefined ErrorCode = iota
	ErrorInvalidIdentifier
	ErrorNotFound
	ErrorAttachmentLimit
	ErrorRateLimited
	ErrorUnavailable
	ErrorInvalidBody
	ErrorInternal
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	ErrorNumber      ErrorCode `json:"errorNumber"`
	ErrorDescription string    `json:"errorDescription"`
	ParameterName    string    `json:"parameterName,omitempty"`
	ParameterValue   string    `json:"parameterValue,omitempty"`
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

// writeErr maps a domain error onto a status code and error body. param and
// value name the request input the error refers to, if any.
func (s *Server) writeErr(ctx context.Context, w http.ResponseWriter, err error, param, value string) {
	resp := ErrorResponse{ErrorDescription: err.Error(), ParameterName: param, ParameterValue: value}
	switch {
	case errors.Is(err, common.ErrValidation):
		resp.ErrorNumber = ErrorInvalidIdentifier
		writeError(w, http.StatusBadRequest, resp)
	case errors.Is(err, common.ErrNotFound):
		resp.ErrorNumber = ErrorNotFound
		writeError(w, http.StatusNotFound, resp)
	case errors.Is(err, common.ErrAttachmentLimit):
		resp.ErrorNumber = ErrorAttachmentLimit
		writeError(w, http.StatusForbidden, resp)
	case errors.Is(err, common.ErrUnavailable):
		s.log.Error(ctx, "backing store unavailable", "error", err)
		resp.ErrorNumber = ErrorUnavailable
		resp.ErrorDescription = "storage temporarily unavailable"
		writeError(w, http.StatusServiceUnavailable, resp)
	default:
		s.log.Error(ctx, "request failed", "error", err)
		resp.ErrorNumber = ErrorInternal
		resp.ErrorDescription = "internal error"
		writeError(w, http.StatusInternalServerError, resp)
	}
}
