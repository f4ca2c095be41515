package store

import (
	"context"

	"notekeeper-zipjobs/internal/models"
)

// EntityStore persists the parent entities that own attachments.
type EntityStore interface {
	CreateEntity(ctx context.Context, e models.Entity) (models.Entity, error)
	GetEntity(ctx context.Context, id string) (models.Entity, bool, error)
	ListEntities(ctx context.Context) ([]models.Entity, error)
	EntityExists(ctx context.Context, id string) (bool, error)
	DeleteEntity(ctx context.Context, id string) (bool, error)
}

// StatusStore is the job status store. Rows are keyed by (entityID, jobID) and
// every write is a full last-write-wins upsert.
type StatusStore interface {
	PutStatus(ctx context.Context, entityID, jobID string, status models.JobState, details string) (models.JobStatus, error)
	GetStatus(ctx context.Context, entityID, jobID string) (models.JobStatus, bool, error)
	ListStatuses(ctx context.Context, entityID string) ([]models.JobStatus, error)
	DeleteStatus(ctx context.Context, entityID, jobID string) (bool, error)
}
