package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/config"
	"notekeeper-zipjobs/internal/models"
)

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueueWithClient(client, config.Config{
		QueueName:         "zips",
		QueueBase64:       true,
		VisibilityTimeout: time.Minute,
	})
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func newReq() models.ZipJobRequest {
	return models.ZipJobRequest{EntityID: uuid.NewString(), JobID: models.NewJobID()}
}

func TestReceiveLeasesAndCountsDequeues(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	req := newReq()

	id, err := q.Enqueue(ctx, req)
	require.NoError(t, err)

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, 1, d.DequeueCount)
	got, err := DecodeRequest(d.Body)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	empty, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty, "leased message is invisible")

	inflight, err := q.InflightDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inflight)

	require.NoError(t, q.Nack(ctx, id, 0))
	d, err = q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 2, d.DequeueCount)
}

func TestAckRemovesMessage(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, newReq())
	require.NoError(t, err)
	_, err = q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, id))

	assert.False(t, mr.Exists("zips:msg:"+id))
	inflight, err := q.InflightDepth(ctx)
	require.NoError(t, err)
	assert.Zero(t, inflight)
}

func TestRequeueExpiredLeases(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, newReq())
	require.NoError(t, err)
	_, err = q.Receive(ctx)
	require.NoError(t, err)

	ids, err := q.RequeueExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "lease still valid")

	ids, err = q.RequeueExpired(ctx, time.Now().Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	depth, err := q.ReadyDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestNackWithDelaySchedules(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, newReq())
	require.NoError(t, err)
	_, err = q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, id, 30*time.Second))

	n, err := q.PromoteScheduled(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = q.PromoteScheduled(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, id, d.ID)
}

func TestNackAfterLeaseReclaimedDoesNotDuplicate(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, newReq())
	require.NoError(t, err)
	_, err = q.Receive(ctx)
	require.NoError(t, err)

	reclaimed, err := q.RequeueExpired(ctx, time.Now().Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, []string{id}, reclaimed)

	require.NoError(t, q.Nack(ctx, id, 30*time.Second))
	require.NoError(t, q.Nack(ctx, id, 0))

	n, err := q.PromoteScheduled(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, n, "reclaimed message must not also be scheduled")
	depth, err := q.ReadyDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestDeadLetterKeepsBody(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, newReq())
	require.NoError(t, err)
	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.DeadLetter(ctx, id, "dequeue count 6 exceeds 5"))

	poisoned, err := q.PoisonPeek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, poisoned, 1)
	assert.Equal(t, id, poisoned[0].ID)
	assert.Equal(t, d.Body, poisoned[0].Body)
	assert.Equal(t, "dequeue count 6 exceeds 5", poisoned[0].Reason)
	assert.Equal(t, 1, poisoned[0].DequeueCount)

	inflight, err := q.InflightDepth(ctx)
	require.NoError(t, err)
	assert.Zero(t, inflight)
}

func TestReceiveEmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	d, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestQueueUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	q := NewRedisQueueWithClient(client, config.Config{QueueName: "zips"})
	defer q.Close()

	_, err := q.Enqueue(context.Background(), newReq())
	assert.ErrorIs(t, err, common.ErrUnavailable)
}
