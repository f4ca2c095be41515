package models

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestZipJobRequestValidate(t *testing.T) {
	entity := uuid.NewString()
	job := NewJobID()

	cases := []struct {
		name    string
		req     ZipJobRequest
		wantErr string
	}{
		{"ok", ZipJobRequest{EntityID: entity, JobID: job}, ""},
		{"missing entity", ZipJobRequest{JobID: job}, "entityId is required"},
		{"bad entity", ZipJobRequest{EntityID: "note-1", JobID: job}, "not a canonical UUID"},
		{"braced entity", ZipJobRequest{EntityID: "{" + entity + "}", JobID: job}, "not a canonical UUID"},
		{"missing job", ZipJobRequest{EntityID: entity}, "jobId is required"},
		{"bad job", ZipJobRequest{EntityID: entity, JobID: "../other.zip"}, "not a valid job identifier"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNewJobIDShape(t *testing.T) {
	a, b := NewJobID(), NewJobID()
	if a == b {
		t.Fatalf("expected distinct job ids")
	}
	if !ValidJobID(a) || !strings.HasSuffix(a, ".zip") {
		t.Fatalf("unexpected job id %q", a)
	}
	if ValidJobID(strings.TrimSuffix(a, ".zip")) {
		t.Fatalf("job id without .zip suffix must be rejected")
	}
}

func TestValidEntityIDRequiresCanonicalForm(t *testing.T) {
	id := uuid.NewString()
	if !ValidEntityID(id) {
		t.Fatalf("canonical id %q rejected", id)
	}
	for _, alt := range []string{
		"{" + id + "}",
		"urn:uuid:" + id,
		strings.ReplaceAll(id, "-", ""),
		strings.ToUpper(id),
		"",
	} {
		if ValidEntityID(alt) {
			t.Errorf("non-canonical id %q accepted", alt)
		}
		if ValidJobID(alt + ".zip") {
			t.Errorf("non-canonical job id %q accepted", alt+".zip")
		}
	}
}

func TestJobStateTerminal(t *testing.T) {
	if StatusQueued.Terminal() || StatusProcessing.Terminal() {
		t.Fatalf("queued/processing must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("completed/failed must be terminal")
	}
	if JobState("Done").Valid() {
		t.Fatalf("unknown state reported valid")
	}
}
