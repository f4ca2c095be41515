package queue

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/models"
)

// EncodeRequest renders the queue payload: UTF-8 JSON, optionally wrapped in
// standard base64 for transports that expect text-safe bodies.
func EncodeRequest(req models.ZipJobRequest, b64 bool) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal zip job request: %w", err)
	}
	if b64 {
		return base64.StdEncoding.EncodeToString(raw), nil
	}
	return string(raw), nil
}

// DecodeRequest accepts either encoding. Anything that cannot yield a valid
// request wraps common.ErrFatalMessage; such messages are never retried.
func DecodeRequest(body string) (models.ZipJobRequest, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return models.ZipJobRequest{}, fmt.Errorf("%w: empty body", common.ErrFatalMessage)
	}
	raw := []byte(trimmed)
	if !strings.HasPrefix(trimmed, "{") {
		decoded, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return models.ZipJobRequest{}, fmt.Errorf("%w: body is neither JSON nor base64: %v", common.ErrFatalMessage, err)
		}
		raw = bytes.TrimSpace(decoded)
	}

	var req models.ZipJobRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return models.ZipJobRequest{}, fmt.Errorf("%w: decode json: %v", common.ErrFatalMessage, err)
	}
	if err := req.Validate(); err != nil {
		return models.ZipJobRequest{}, fmt.Errorf("%w: %v", common.ErrFatalMessage, err)
	}
	return req, nil
}

// Delivery is a leased message. DequeueCount includes the current delivery.
type Delivery struct {
	ID           string
	Body         string
	DequeueCount int
}

// Poisoned is a message moved off the work queue for inspection.
type Poisoned struct {
	ID           string `json:"messageId"`
	Body         string `json:"body"`
	Reason       string `json:"reason"`
	DequeueCount int    `json:"dequeueCount"`
}
