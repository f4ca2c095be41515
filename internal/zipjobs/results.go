package zipjobs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"notekeeper-zipjobs/internal/blob"
	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/logging"
	"notekeeper-zipjobs/internal/models"
	"notekeeper-zipjobs/internal/store"
)

// Results answers status polls and serves finished archives.
type Results struct {
	entities store.EntityStore
	statuses store.StatusStore
	blobs    blob.Store
	log      logging.Logger
}

func NewResults(entities store.EntityStore, statuses store.StatusStore, blobs blob.Store, log logging.Logger) *Results {
	return &Results{entities: entities, statuses: statuses, blobs: blobs, log: log.With("component", "results")}
}

// Status returns the latest status of one job, or common.ErrNotFound.
func (r *Results) Status(ctx context.Context, entityID, jobID string) (models.JobStatus, error) {
	st, found, err := r.statuses.GetStatus(ctx, entityID, jobID)
	if err != nil {
		return models.JobStatus{}, fmt.Errorf("get job status: %w", err)
	}
	if !found {
		return models.JobStatus{}, fmt.Errorf("%w: job %s", common.ErrNotFound, jobID)
	}
	return st, nil
}

// List returns every job of an existing entity in submission order.
func (r *Results) List(ctx context.Context, entityID string) ([]models.JobStatus, error) {
	if err := r.requireEntity(ctx, entityID); err != nil {
		return nil, err
	}
	list, err := r.statuses.ListStatuses(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("list job statuses: %w", err)
	}
	return list, nil
}

// Archives lists the stored result archives of an entity.
func (r *Results) Archives(ctx context.Context, entityID string) ([]models.ResultArchive, error) {
	if err := r.requireEntity(ctx, entityID); err != nil {
		return nil, err
	}
	prefix := blob.ResultPrefix(entityID)
	objs, err := r.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	out := make([]models.ResultArchive, 0, len(objs))
	for _, o := range objs {
		out = append(out, models.ResultArchive{
			EntityID:    entityID,
			JobID:       strings.TrimPrefix(o.Key, prefix),
			ContentType: o.ContentType,
			Size:        o.Size,
			CreatedAt:   o.CreatedAt,
		})
	}
	return out, nil
}

// OpenArchive streams the archive of a Completed job. Any other status, or a
// missing blob, is common.ErrNotFound.
func (r *Results) OpenArchive(ctx context.Context, entityID, jobID string) (io.ReadCloser, blob.Object, error) {
	st, err := r.Status(ctx, entityID, jobID)
	if err != nil {
		return nil, blob.Object{}, err
	}
	if st.Status != models.StatusCompleted {
		return nil, blob.Object{}, fmt.Errorf("%w: job %s is %s", common.ErrNotFound, jobID, st.Status)
	}
	rc, obj, err := r.blobs.Get(ctx, blob.ResultKey(entityID, jobID))
	if err != nil {
		return nil, blob.Object{}, fmt.Errorf("open archive: %w", err)
	}
	return rc, obj, nil
}

// DeleteArchive is housekeeping: it removes the archive and the status row
// of a job. It is never called by the zip workflow itself.
func (r *Results) DeleteArchive(ctx context.Context, entityID, jobID string) error {
	deletedBlob, err := r.blobs.Delete(ctx, blob.ResultKey(entityID, jobID))
	if err != nil {
		return fmt.Errorf("delete archive: %w", err)
	}
	deletedStatus, err := r.statuses.DeleteStatus(ctx, entityID, jobID)
	if err != nil {
		return fmt.Errorf("delete job status: %w", err)
	}
	if !deletedBlob && !deletedStatus {
		return fmt.Errorf("%w: job %s", common.ErrNotFound, jobID)
	}
	r.log.Info(ctx, "zip job removed", "entity_id", entityID, "job_id", jobID)
	return nil
}

// DeleteAll removes every archive of an entity together with its status row.
// Each archive goes before its status, so a partial failure never leaves an
// archive behind a missing status.
func (r *Results) DeleteAll(ctx context.Context, entityID string) error {
	prefix := blob.ResultPrefix(entityID)
	objs, err := r.blobs.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}
	for _, o := range objs {
		jobID := strings.TrimPrefix(o.Key, prefix)
		if _, err := r.blobs.Delete(ctx, o.Key); err != nil {
			return fmt.Errorf("delete archive %s: %w", jobID, err)
		}
		if _, err := r.statuses.DeleteStatus(ctx, entityID, jobID); err != nil {
			return fmt.Errorf("delete job status %s: %w", jobID, err)
		}
	}
	if len(objs) > 0 {
		r.log.Info(ctx, "entity archives removed", "entity_id", entityID, "count", len(objs))
	}
	return nil
}

func (r *Results) requireEntity(ctx context.Context, entityID string) error {
	ok, err := r.entities.EntityExists(ctx, entityID)
	if err != nil {
		return fmt.Errorf("check entity: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: entity %s", common.ErrNotFound, entityID)
	}
	return nil
}
