// Package zipjobs accepts zip requests for an entity's attachments and serves
// the resulting job statuses and archives.
package zipjobs

import (
	"context"
	"fmt"
	"time"

	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/logging"
	"notekeeper-zipjobs/internal/models"
)

// EntityChecker reports whether an entity exists.
type EntityChecker interface {
	EntityExists(ctx context.Context, id string) (bool, error)
}

// AttachmentLister lists an entity's attachments.
type AttachmentLister interface {
	List(ctx context.Context, entityID string) ([]models.Attachment, error)
}

// StatusWriter upserts job status rows.
type StatusWriter interface {
	PutStatus(ctx context.Context, entityID, jobID string, status models.JobState, details string) (models.JobStatus, error)
}

// Enqueuer hands a request to the work queue and returns the message id.
type Enqueuer interface {
	Enqueue(ctx context.Context, req models.ZipJobRequest) (string, error)
}

// Submission is the result of an accepted zip request.
type Submission struct {
	EntityID    string          `json:"entityId"`
	JobID       string          `json:"jobId"`
	Location    string          `json:"location"`
	Status      models.JobState `json:"status"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Submitter validates a zip request, records it as Queued and enqueues it.
type Submitter struct {
	entities    EntityChecker
	attachments AttachmentLister
	statuses    StatusWriter
	queue       Enqueuer
	baseURL     string
	log         logging.Logger
	newJobID    func() string
}

// NewSubmitter wires a Submitter. baseURL prefixes the Location of results and
// may be empty for relative locations.
func NewSubmitter(entities EntityChecker, attachments AttachmentLister, statuses StatusWriter, q Enqueuer, baseURL string, log logging.Logger) *Submitter {
	return &Submitter{
		entities:    entities,
		attachments: attachments,
		statuses:    statuses,
		queue:       q,
		baseURL:     baseURL,
		log:         log.With("component", "submitter"),
		newJobID:    models.NewJobID,
	}
}

// SubmitZipRequest returns common.ErrValidation for a malformed id,
// common.ErrNotFound for an unknown entity and common.ErrNoAttachments when
// there is nothing to zip. The Queued status row is written before the
// message is enqueued, so a poll right after a successful submit always finds
// the job.
//
// If enqueueing fails after the status write, the job stays Queued and no
// worker will ever pick it up. The error is returned and logged with both ids
// so the row can be found and resubmitted by hand.
func (s *Submitter) SubmitZipRequest(ctx context.Context, entityID string) (Submission, error) {
	if !models.ValidEntityID(entityID) {
		return Submission{}, fmt.Errorf("%w: entityId %q is not a canonical UUID", common.ErrValidation, entityID)
	}

	exists, err := s.entities.EntityExists(ctx, entityID)
	if err != nil {
		return Submission{}, fmt.Errorf("check entity: %w", err)
	}
	if !exists {
		return Submission{}, fmt.Errorf("%w: entity %s", common.ErrNotFound, entityID)
	}

	list, err := s.attachments.List(ctx, entityID)
	if err != nil {
		return Submission{}, fmt.Errorf("list attachments: %w", err)
	}
	if len(list) == 0 {
		return Submission{}, common.ErrNoAttachments
	}

	jobID := s.newJobID()
	details := fmt.Sprintf("Queued: zip file id %s for entity %s (%d attachments)", jobID, entityID, len(list))
	st, err := s.statuses.PutStatus(ctx, entityID, jobID, models.StatusQueued, details)
	if err != nil {
		return Submission{}, fmt.Errorf("write queued status: %w", err)
	}

	msgID, err := s.queue.Enqueue(ctx, models.ZipJobRequest{EntityID: entityID, JobID: jobID})
	if err != nil {
		s.log.Error(ctx, "enqueue failed after status write; job left Queued",
			"entity_id", entityID, "job_id", jobID, "error", err)
		return Submission{}, fmt.Errorf("enqueue zip job %s: %w", jobID, err)
	}

	s.log.Info(ctx, "zip job queued", "entity_id", entityID, "job_id", jobID, "message_id", msgID)
	return Submission{
		EntityID:    entityID,
		JobID:       jobID,
		Location:    ResultLocation(s.baseURL, entityID, jobID),
		Status:      st.Status,
		LastUpdated: st.LastUpdated,
	}, nil
}

// ResultLocation is where the archive of a job can be downloaded once completed.
func ResultLocation(baseURL, entityID, jobID string) string {
	return fmt.Sprintf("%s/entities/%s/results/%s", baseURL, entityID, jobID)
}
