package zipjobs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper-zipjobs/internal/blob"
	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/models"
)

func TestStatusUnknownJob(t *testing.T) {
	f := newFixture(t)
	e := f.entity(t, "a.txt")
	_, err := f.res.Status(context.Background(), e, "unknownJob")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListUnknownEntity(t *testing.T) {
	f := newFixture(t)
	_, err := f.res.List(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestOpenArchiveRequiresCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "a.txt")
	job := models.NewJobID()

	_, err := f.db.PutStatus(ctx, e, job, models.StatusProcessing, "")
	require.NoError(t, err)
	require.NoError(t, f.blobs.Put(ctx, blob.ResultKey(e, job), strings.NewReader("PK"), 2, "application/zip"))

	_, _, err = f.res.OpenArchive(ctx, e, job)
	assert.ErrorIs(t, err, common.ErrNotFound, "not yet completed")

	_, err = f.db.PutStatus(ctx, e, job, models.StatusCompleted, "done")
	require.NoError(t, err)
	rc, obj, err := f.res.OpenArchive(ctx, e, job)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "PK", string(body))
	assert.Equal(t, "application/zip", obj.ContentType)

	archives, err := f.res.Archives(ctx, e)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, job, archives[0].JobID)
}

func TestDeleteArchiveRemovesBlobAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "a.txt")
	job := models.NewJobID()
	_, err := f.db.PutStatus(ctx, e, job, models.StatusCompleted, "done")
	require.NoError(t, err)
	require.NoError(t, f.blobs.Put(ctx, blob.ResultKey(e, job), strings.NewReader("PK"), 2, "application/zip"))

	require.NoError(t, f.res.DeleteArchive(ctx, e, job))

	_, err = f.res.Status(ctx, e, job)
	assert.ErrorIs(t, err, common.ErrNotFound)
	ok, err := f.blobs.Exists(ctx, blob.ResultKey(e, job))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, f.res.DeleteArchive(ctx, e, job), common.ErrNotFound)
}

func TestDeleteAllRemovesEveryArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "a.txt")
	other := f.entity(t, "b.txt")

	var jobs []string
	for _, owner := range []string{e, e, other} {
		job := models.NewJobID()
		_, err := f.db.PutStatus(ctx, owner, job, models.StatusCompleted, "done")
		require.NoError(t, err)
		require.NoError(t, f.blobs.Put(ctx, blob.ResultKey(owner, job), strings.NewReader("PK"), 2, "application/zip"))
		jobs = append(jobs, job)
	}

	require.NoError(t, f.res.DeleteAll(ctx, e))

	left, err := f.blobs.List(ctx, blob.ResultPrefix(e))
	require.NoError(t, err)
	assert.Empty(t, left)
	statuses, err := f.db.ListStatuses(ctx, e)
	require.NoError(t, err)
	assert.Empty(t, statuses)

	_, err = f.res.Status(ctx, other, jobs[2])
	require.NoError(t, err, "other entities are untouched")
	require.NoError(t, f.res.DeleteAll(ctx, e), "nothing left to delete is not an error")
}
