package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"notekeeper-zipjobs/internal/archive"
	"notekeeper-zipjobs/internal/blob"
	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/logging"
	"notekeeper-zipjobs/internal/models"
	"notekeeper-zipjobs/internal/telemetry"
)

// AttachmentSource is the read side of the attachment store.
type AttachmentSource interface {
	List(ctx context.Context, entityID string) ([]models.Attachment, error)
	Open(ctx context.Context, entityID, name string) (io.ReadCloser, models.Attachment, error)
}

// StatusWriter upserts job status rows.
type StatusWriter interface {
	PutStatus(ctx context.Context, entityID, jobID string, status models.JobState, details string) (models.JobStatus, error)
}

// Stages of one zip job, used in logs and Failed status details.
const (
	stageStarting   = "starting"
	stageFetching   = "fetching"
	stageArchiving  = "archiving"
	stageUploading  = "uploading"
	stageCompleting = "completing"
)

// ZipHandler zips every attachment of an entity into one result archive.
type ZipHandler struct {
	attachments AttachmentSource
	statuses    StatusWriter
	results     blob.Store
	scratchDir  string
	log         logging.Logger
}

func NewZipHandler(attachments AttachmentSource, statuses StatusWriter, results blob.Store, scratchDir string, log logging.Logger) *ZipHandler {
	return &ZipHandler{
		attachments: attachments,
		statuses:    statuses,
		results:     results,
		scratchDir:  scratchDir,
		log:         log.With("component", "zip_handler"),
	}
}

// Handle adapts ProcessZipJobRequest to the Processor's Handler type.
func (h *ZipHandler) Handle(ctx context.Context, req models.ZipJobRequest) error {
	return h.ProcessZipJobRequest(ctx, req)
}

// ProcessZipJobRequest runs fetch, archive and upload in order, then records
// Completed. On any failure the archive key is cleared, Failed is recorded with
// the reason and the error is returned so the queue can redeliver. Reprocessing
// the same request overwrites the archive and status with equivalent values.
func (h *ZipHandler) ProcessZipJobRequest(ctx context.Context, req models.ZipJobRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrFatalMessage, err)
	}
	log := h.log.With("entity_id", req.EntityID, "job_id", req.JobID)
	key := blob.ResultKey(req.EntityID, req.JobID)

	if _, err := h.statuses.PutStatus(ctx, req.EntityID, req.JobID, models.StatusProcessing, "Processing: zipping attachments"); err != nil {
		return h.fail(ctx, log, req, stageStarting, err)
	}

	log.Debug(ctx, "stage", "stage", stageFetching)
	list, err := h.attachments.List(ctx, req.EntityID)
	if err != nil {
		return h.fail(ctx, log, req, stageFetching, err)
	}

	log.Debug(ctx, "stage", "stage", stageArchiving, "attachments", len(list))
	entries := make([]archive.Entry, len(list))
	for i, a := range list {
		entries[i] = archive.Entry{Name: a.Name, Modified: a.CreatedAt}
	}
	zipFile, err := archive.Build(ctx, h.scratchDir, entries, func(ctx context.Context, name string) (io.ReadCloser, error) {
		rc, _, err := h.attachments.Open(ctx, req.EntityID, name)
		return rc, err
	})
	if err != nil {
		return h.fail(ctx, log, req, stageArchiving, err)
	}
	defer func() {
		if err := zipFile.Remove(); err != nil {
			log.Warn(ctx, "remove scratch archive", "path", zipFile.Path, "error", err)
		}
	}()

	log.Debug(ctx, "stage", "stage", stageUploading, "bytes", zipFile.Size)
	if err := h.upload(ctx, key, zipFile); err != nil {
		return h.fail(ctx, log, req, stageUploading, err)
	}

	details := fmt.Sprintf("Zip file successfully created and uploaded: %d attachments, %d bytes", len(zipFile.Entries), zipFile.Size)
	if _, err := h.statuses.PutStatus(ctx, req.EntityID, req.JobID, models.StatusCompleted, details); err != nil {
		return h.fail(ctx, log, req, stageCompleting, err)
	}
	telemetry.ArchiveBytes.Observe(float64(zipFile.Size))
	log.Info(ctx, "zip job completed", "attachments", len(zipFile.Entries), "bytes", zipFile.Size)
	return nil
}

func (h *ZipHandler) upload(ctx context.Context, key string, a *archive.Archive) error {
	f, err := a.Open()
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return h.results.Put(ctx, key, f, a.Size, "application/zip")
}

// fail keeps archive existence in step with status: whatever an earlier
// attempt uploaded under the key is removed before Failed is written.
func (h *ZipHandler) fail(ctx context.Context, log logging.Logger, req models.ZipJobRequest, stage string, cause error) error {
	err := fmt.Errorf("%s: %w", stage, cause)
	log.Error(ctx, "zip job failed", "stage", stage, "error", cause)

	if _, derr := h.results.Delete(ctx, blob.ResultKey(req.EntityID, req.JobID)); derr != nil {
		log.Error(ctx, "remove archive of failed job", "error", derr)
		err = errors.Join(err, fmt.Errorf("remove archive: %w", derr))
	}
	details := fmt.Sprintf("Failed while %s: %v", stage, cause)
	if _, serr := h.statuses.PutStatus(ctx, req.EntityID, req.JobID, models.StatusFailed, details); serr != nil {
		log.Error(ctx, "record failed status", "error", serr)
		err = errors.Join(err, fmt.Errorf("record failed status: %w", serr))
	}
	return err
}
