package zipjobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper-zipjobs/internal/attachments"
	"notekeeper-zipjobs/internal/blob"
	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/logging"
	"notekeeper-zipjobs/internal/models"
	"notekeeper-zipjobs/internal/queue"
	"notekeeper-zipjobs/internal/store"
)

type fixture struct {
	db    *store.Memory
	blobs *blob.LocalStore
	atts  *attachments.Service
	q     *queue.Memory
	sub   *Submitter
	res   *Results
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		db:    store.NewMemory(),
		blobs: bs,
		atts:  attachments.NewService(bs, 3, 0),
		q:     queue.NewMemory(time.Minute, true),
	}
	f.sub = NewSubmitter(f.db, f.atts, f.db, f.q, "https://files.example.com", logging.Discard())
	f.res = NewResults(f.db, f.db, bs, logging.Discard())
	return f
}

func (f *fixture) entity(t *testing.T, files ...string) string {
	t.Helper()
	ctx := context.Background()
	e, err := f.db.CreateEntity(ctx, models.Entity{Summary: "note"})
	require.NoError(t, err)
	for _, name := range files {
		_, err := f.atts.Put(ctx, e.ID, name, strings.NewReader("content of "+name), -1, "")
		require.NoError(t, err)
	}
	return e.ID
}

func TestSubmitWritesQueuedStatusBeforeEnqueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.entity(t, "a.png", "b.pdf")

	sub, err := f.sub.SubmitZipRequest(ctx, e1)
	require.NoError(t, err)
	assert.True(t, models.ValidJobID(sub.JobID))
	assert.Equal(t, models.StatusQueued, sub.Status)
	assert.Equal(t, "https://files.example.com/entities/"+e1+"/results/"+sub.JobID, sub.Location)

	st, err := f.res.Status(ctx, e1, sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, st.Status)
	assert.Contains(t, st.StatusDetails, sub.JobID)

	d, err := f.q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	req, err := queue.DecodeRequest(d.Body)
	require.NoError(t, err)
	assert.Equal(t, models.ZipJobRequest{EntityID: e1, JobID: sub.JobID}, req)
}

func TestSubmitDistinctJobIDsPerCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "a.txt")

	first, err := f.sub.SubmitZipRequest(ctx, e)
	require.NoError(t, err)
	second, err := f.sub.SubmitZipRequest(ctx, e)
	require.NoError(t, err)
	assert.NotEqual(t, first.JobID, second.JobID)

	list, err := f.res.List(ctx, e)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.JobID, list[0].JobID)
}

func TestSubmitNoAttachmentsIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e2 := f.entity(t)

	_, err := f.sub.SubmitZipRequest(ctx, e2)
	assert.ErrorIs(t, err, common.ErrNoAttachments)

	list, err := f.res.List(ctx, e2)
	require.NoError(t, err)
	assert.Empty(t, list, "no job created")
	depth, _ := f.q.ReadyDepth(ctx)
	assert.Zero(t, depth)
}

func TestSubmitUnknownEntity(t *testing.T) {
	f := newFixture(t)
	_, err := f.sub.SubmitZipRequest(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSubmitInvalidEntityID(t *testing.T) {
	f := newFixture(t)
	_, err := f.sub.SubmitZipRequest(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSubmitRejectsNonCanonicalEntityID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "a.txt")

	_, err := f.sub.SubmitZipRequest(ctx, "{"+e+"}")
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = f.sub.SubmitZipRequest(ctx, strings.ToUpper(e))
	require.ErrorIs(t, err, common.ErrValidation)

	depth, err := f.q.ReadyDepth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestSubmitEnqueueFailureLeavesJobQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "a.txt")
	f.q.FailEnqueue = errors.New("queue down")
	f.sub.newJobID = func() string { return "11111111-1111-1111-1111-111111111111.zip" }

	_, err := f.sub.SubmitZipRequest(ctx, e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue down")

	st, err := f.res.Status(ctx, e, "11111111-1111-1111-1111-111111111111.zip")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, st.Status)
}

func TestSubmitStatusWriteFailureDoesNotEnqueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.entity(t, "a.txt")
	f.db.FailPut = func(models.JobState) error { return common.ErrUnavailable }

	_, err := f.sub.SubmitZipRequest(ctx, e)
	assert.ErrorIs(t, err, common.ErrUnavailable)
	depth, _ := f.q.ReadyDepth(ctx)
	assert.Zero(t, depth)
}
