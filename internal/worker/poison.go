package worker

import (
	"context"
	"fmt"
	"strings"

	"notekeeper-zipjobs/internal/blob"
)

// PoisonArchiver copies the raw body of every poisoned message to the blob
// store so it can be inspected after the queue entry is gone.
type PoisonArchiver struct {
	blobs blob.Store
}

func NewPoisonArchiver(blobs blob.Store) *PoisonArchiver {
	return &PoisonArchiver{blobs: blobs}
}

func (a *PoisonArchiver) Archive(ctx context.Context, messageID, body string) error {
	if err := a.blobs.Put(ctx, blob.PoisonKey(messageID), strings.NewReader(body), int64(len(body)), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("archive poison message %s: %w", messageID, err)
	}
	return nil
}
