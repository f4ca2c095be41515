package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper-zipjobs/internal/models"
)

func TestMemoryStatusLastWriteWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.PutStatus(ctx, "e1", "j1", models.StatusQueued, "queued")
	require.NoError(t, err)
	_, err = m.PutStatus(ctx, "e1", "j2", models.StatusQueued, "queued")
	require.NoError(t, err)
	js, err := m.PutStatus(ctx, "e1", "j1", models.StatusCompleted, "done")
	require.NoError(t, err)
	assert.Equal(t, int64(2), js.Version)

	got, found, err := m.GetStatus(ctx, "e1", "j1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "done", got.StatusDetails)

	list, err := m.ListStatuses(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "j1", list[0].JobID, "insertion order survives updates")
	assert.Equal(t, "j2", list[1].JobID)
}

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	_, found, err := m.GetStatus(context.Background(), "e", "j")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryFailPut(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.FailPut = func(s models.JobState) error {
		if s == models.StatusCompleted {
			return boom
		}
		return nil
	}
	ctx := context.Background()
	_, err := m.PutStatus(ctx, "e", "j", models.StatusProcessing, "")
	require.NoError(t, err)
	_, err = m.PutStatus(ctx, "e", "j", models.StatusCompleted, "")
	assert.ErrorIs(t, err, boom)
}

func TestMemoryDeleteEntityCascades(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	e, err := m.CreateEntity(ctx, models.Entity{Summary: "s"})
	require.NoError(t, err)
	_, err = m.PutStatus(ctx, e.ID, "j", models.StatusQueued, "")
	require.NoError(t, err)

	deleted, err := m.DeleteEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	list, err := m.ListStatuses(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	deleted, err = m.DeleteEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
