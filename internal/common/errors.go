// Package common defines the sentinel errors shared by the submitter, worker,
// stores and HTTP layer. Callers should match them with errors.Is.
package common

import "errors"

var (
	// ErrValidation marks malformed identifiers or bodies. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced entity, job, attachment or archive that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoAttachments is returned when a zip job is requested for an entity
	// without attachments; the HTTP layer turns it into a 204 no-op.
	ErrNoAttachments = errors.New("entity has no attachments")

	// ErrAttachmentLimit is returned when an entity already holds the maximum
	// number of attachments.
	ErrAttachmentLimit = errors.New("attachment limit reached")

	// ErrUnavailable wraps environmental storage or queue failures (timeouts,
	// throttling, connection loss).
	ErrUnavailable = errors.New("store unavailable")

	// ErrFatalMessage marks a queue message that can never be processed.
	ErrFatalMessage = errors.New("unprocessable message")
)
