package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/models"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store wraps pgxpool for Postgres persistence of entities and job statuses.
type Store struct {
	db   DB
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ EntityStore = (*Store)(nil)
	_ StatusStore = (*Store)(nil)
)

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", common.ErrUnavailable, err)
	}
	s := NewWithDB(pool)
	s.pool = pool
	return s, nil
}

// NewWithDB builds a Store over an existing connection, e.g. a pgxmock pool.
// Migrations are unavailable on such a store.
func NewWithDB(db DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// CreateEntity inserts a new entity. An empty ID is replaced with a fresh UUID.
func (s *Store) CreateEntity(ctx context.Context, e models.Entity) (models.Entity, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err := s.db.Exec(ctx, `
		INSERT INTO entities (id, summary, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, e.ID, e.Summary, e.Details, now)
	if err != nil {
		return models.Entity{}, unavailable("insert entity", err)
	}
	return e, nil
}

// GetEntity fetches an entity by id. found is false when no row exists.
func (s *Store) GetEntity(ctx context.Context, id string) (models.Entity, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id::text, summary, details, created_at, updated_at
		FROM entities WHERE id = $1
	`, id)

	var e models.Entity
	if err := row.Scan(&e.ID, &e.Summary, &e.Details, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Entity{}, false, nil
		}
		return models.Entity{}, false, unavailable("scan entity", err)
	}
	return e, true, nil
}

// ListEntities returns every entity, newest first.
func (s *Store) ListEntities(ctx context.Context) ([]models.Entity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, summary, details, created_at, updated_at
		FROM entities ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, unavailable("query entities", err)
	}
	defer rows.Close()

	out := []models.Entity{}
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.Summary, &e.Details, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, unavailable("scan entity", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate entities", err)
	}
	return out, nil
}

func (s *Store) EntityExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, unavailable("check entity", err)
	}
	return exists, nil
}

// DeleteEntity removes the entity together with its job status rows.
func (s *Store) DeleteEntity(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, unavailable("begin tx", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	if _, err := tx.Exec(ctx, `DELETE FROM job_statuses WHERE entity_id = $1`, id); err != nil {
		return false, unavailable("delete job statuses", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return false, unavailable("delete entity", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, unavailable("commit", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PutStatus upserts the status row and returns what was written.
func (s *Store) PutStatus(ctx context.Context, entityID, jobID string, status models.JobState, details string) (models.JobStatus, error) {
	now := s.now()
	var version int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO job_statuses (entity_id, job_id, status, status_details, last_updated, version)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (entity_id, job_id) DO UPDATE
		SET status = EXCLUDED.status,
		    status_details = EXCLUDED.status_details,
		    last_updated = EXCLUDED.last_updated,
		    version = job_statuses.version + 1
		RETURNING version
	`, entityID, jobID, string(status), details, now).Scan(&version)
	if err != nil {
		return models.JobStatus{}, unavailable("upsert job status", err)
	}
	return models.JobStatus{
		EntityID:      entityID,
		JobID:         jobID,
		Status:        status,
		StatusDetails: details,
		LastUpdated:   now,
		Version:       version,
	}, nil
}

// GetStatus fetches one status row. found is false when no row exists.
func (s *Store) GetStatus(ctx context.Context, entityID, jobID string) (models.JobStatus, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT entity_id, job_id, status, status_details, last_updated, version
		FROM job_statuses WHERE entity_id = $1 AND job_id = $2
	`, entityID, jobID)

	js, err := scanStatus(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.JobStatus{}, false, nil
	}
	if err != nil {
		return models.JobStatus{}, false, unavailable("scan job status", err)
	}
	return js, true, nil
}

// ListStatuses returns the entity's status rows in insertion order.
func (s *Store) ListStatuses(ctx context.Context, entityID string) ([]models.JobStatus, error) {
	rows, err := s.db.Query(ctx, `
		SELECT entity_id, job_id, status, status_details, last_updated, version
		FROM job_statuses WHERE entity_id = $1 ORDER BY seq
	`, entityID)
	if err != nil {
		return nil, unavailable("query job statuses", err)
	}
	defer rows.Close()

	out := []models.JobStatus{}
	for rows.Next() {
		js, err := scanStatus(rows)
		if err != nil {
			return nil, unavailable("scan job status", err)
		}
		out = append(out, js)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate job statuses", err)
	}
	return out, nil
}

func (s *Store) DeleteStatus(ctx context.Context, entityID, jobID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM job_statuses WHERE entity_id = $1 AND job_id = $2
	`, entityID, jobID)
	if err != nil {
		return false, unavailable("delete job status", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanStatus(row pgx.Row) (models.JobStatus, error) {
	var js models.JobStatus
	var status string
	if err := row.Scan(&js.EntityID, &js.JobID, &status, &js.StatusDetails, &js.LastUpdated, &js.Version); err != nil {
		return models.JobStatus{}, err
	}
	js.Status = models.JobState(status)
	js.LastUpdated = js.LastUpdated.UTC()
	return js, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrUnavailable, op, err)
}
