package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobState enumerates zip job lifecycle states persisted in the status store.
type JobState string

const (
	StatusQueued     JobState = "Queued"
	StatusProcessing JobState = "Processing"
	StatusCompleted  JobState = "Completed"
	StatusFailed     JobState = "Failed"
)

// Terminal reports whether no further transition is expected for the state.
func (s JobState) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known states.
func (s JobState) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// JobStatus is the latest known state of one zip job. EntityID is the
// partition, JobID the row inside it.
type JobStatus struct {
	EntityID      string    `json:"entityId"`
	JobID         string    `json:"jobId"`
	Status        JobState  `json:"status"`
	StatusDetails string    `json:"statusDetails"`
	LastUpdated   time.Time `json:"lastUpdated"`
	// Version counts writes to the row. Writes are last-write-wins; the counter
	// only makes unexpected extra writers visible.
	Version int64 `json:"version"`
}

// ZipJobRequest is the work queue payload.
type ZipJobRequest struct {
	EntityID string `json:"entityId"`
	JobID    string `json:"jobId"`
}

// Validate checks that both identifiers are present and well formed.
func (r ZipJobRequest) Validate() error {
	if r.EntityID == "" {
		return fmt.Errorf("entityId is required")
	}
	if !ValidEntityID(r.EntityID) {
		return fmt.Errorf("entityId %q is not a canonical UUID", r.EntityID)
	}
	if r.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if !ValidJobID(r.JobID) {
		return fmt.Errorf("jobId %q is not a valid job identifier", r.JobID)
	}
	return nil
}

// NewJobID returns a fresh job identifier shaped like "<uuid>.zip", which is
// also the archive's object name.
func NewJobID() string {
	return uuid.NewString() + ".zip"
}

// ValidEntityID accepts only the canonical lowercase, hyphenated UUID text.
// Ids are used verbatim as status partitions and blob key prefixes, so
// braced, urn: and undashed spellings of the same UUID are rejected.
func ValidEntityID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}

// ValidJobID accepts "<uuid>.zip" identifiers in canonical form.
func ValidJobID(id string) bool {
	base, ok := strings.CutSuffix(id, ".zip")
	return ok && ValidEntityID(base)
}

// ResultArchive describes a stored zip archive.
type ResultArchive struct {
	EntityID    string    `json:"entityId"`
	JobID       string    `json:"jobId"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}
