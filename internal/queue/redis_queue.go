package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"notekeeper-zipjobs/internal/common"
	"notekeeper-zipjobs/internal/config"
	"notekeeper-zipjobs/internal/models"
)

// RedisQueue is an at-least-once work queue on Redis. Ready message ids sit in
// a list, leased ids in a sorted set scored by visibility deadline, and
// delayed redeliveries in a second sorted set. Bodies and dequeue counts live
// in one hash per message.
type RedisQueue struct {
	client        *redis.Client
	readyKey      string
	inflightKey   string
	scheduledKey  string
	msgPrefix     string
	poisonKey     string
	visibilityTTL time.Duration
	base64        bool
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisQueueWithClient(client, cfg)
}

// NewRedisQueueWithClient reuses an existing client, e.g. one pointed at miniredis.
func NewRedisQueueWithClient(client *redis.Client, cfg config.Config) *RedisQueue {
	name := cfg.QueueName
	if name == "" {
		name = "attachment-zip-requests"
	}
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 5 * time.Minute
	}
	return &RedisQueue{
		client:        client,
		readyKey:      name + ":ready",
		inflightKey:   name + ":inflight",
		scheduledKey:  name + ":scheduled",
		msgPrefix:     name + ":msg:",
		poisonKey:     name + "-poison",
		visibilityTTL: visibility,
		base64:        cfg.QueueBase64,
	}
}

func (q *RedisQueue) Client() *redis.Client {
	return q.client
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) msgKey(id string) string {
	return q.msgPrefix + id
}

// Enqueue stores the encoded request and appends it to the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, req models.ZipJobRequest) (string, error) {
	body, err := EncodeRequest(req, q.base64)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.msgKey(id),
		"body", body,
		"dequeue_count", 0,
		"enqueued_at", time.Now().UnixMilli(),
	)
	pipe.RPush(ctx, q.readyKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", unavailable("enqueue", err)
	}
	return id, nil
}

// Receive leases the next ready message for the visibility timeout. It
// returns nil when the queue is empty.
func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	deadline := time.Now().Add(q.visibilityTTL).UnixMilli()
	res, err := receiveScript.Run(ctx, q.client, []string{q.readyKey, q.inflightKey}, deadline, q.msgPrefix).Slice()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("receive", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("unexpected receive script result: %v", res)
	}
	id, _ := res[0].(string)
	body, _ := res[1].(string)
	count, _ := res[2].(int64)
	return &Delivery{ID: id, Body: body, DequeueCount: int(count)}, nil
}

// ExtendLease pushes the visibility deadline of a still-leased message forward.
func (q *RedisQueue) ExtendLease(ctx context.Context, id string, extension time.Duration) error {
	err := q.client.ZAddXX(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: id,
	}).Err()
	if err != nil {
		return unavailable("extend lease", err)
	}
	return nil
}

// Ack deletes a processed message, including any copy requeued after its
// lease expired.
func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, id)
	pipe.ZRem(ctx, q.scheduledKey, id)
	pipe.LRem(ctx, q.readyKey, 0, id)
	pipe.Del(ctx, q.msgKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("ack", err)
	}
	return nil
}

// Nack releases the lease so the message is redelivered after delay. It is a
// no-op when the lease is no longer held, e.g. after RequeueExpired already
// returned the message to the ready list.
func (q *RedisQueue) Nack(ctx context.Context, id string, delay time.Duration) error {
	var due int64
	if delay > 0 {
		due = time.Now().Add(delay).UnixMilli()
	}
	err := nackScript.Run(ctx, q.client, []string{q.inflightKey, q.readyKey, q.scheduledKey}, id, due).Err()
	if err != nil && err != redis.Nil {
		return unavailable("nack", err)
	}
	return nil
}

// RequeueExpired returns messages whose lease ran out to the ready list.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := moveDueScript.Run(ctx, q.client, []string{q.inflightKey, q.readyKey}, now.UnixMilli(), limit).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, unavailable("requeue expired", err)
	}
	return ids, nil
}

// PromoteScheduled moves due delayed redeliveries to the ready list. It
// returns how many were promoted.
func (q *RedisQueue) PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := moveDueScript.Run(ctx, q.client, []string{q.scheduledKey, q.readyKey}, now.UnixMilli(), limit).StringSlice()
	if err != nil && err != redis.Nil {
		return 0, unavailable("promote scheduled", err)
	}
	return len(ids), nil
}

// DeadLetter moves a message to the poison list. Its body is kept for inspection.
func (q *RedisQueue) DeadLetter(ctx context.Context, id, reason string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, id)
	pipe.ZRem(ctx, q.scheduledKey, id)
	pipe.LRem(ctx, q.readyKey, 0, id)
	pipe.HSet(ctx, q.msgKey(id), "poison_reason", reason, "poisoned_at", time.Now().UnixMilli())
	pipe.RPush(ctx, q.poisonKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("dead letter", err)
	}
	return nil
}

// PoisonPeek reads up to count poisoned messages, oldest first.
func (q *RedisQueue) PoisonPeek(ctx context.Context, count int64) ([]Poisoned, error) {
	ids, err := q.client.LRange(ctx, q.poisonKey, 0, count-1).Result()
	if err != nil {
		return nil, unavailable("poison peek", err)
	}
	if len(ids) == 0 {
		return []Poisoned{}, nil
	}
	pipe := q.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, q.msgKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("poison peek", err)
	}
	out := make([]Poisoned, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		n, _ := strconv.Atoi(fields["dequeue_count"])
		out = append(out, Poisoned{ID: id, Body: fields["body"], Reason: fields["poison_reason"], DequeueCount: n})
	}
	return out, nil
}

// ReadyDepth returns the number of messages waiting to be received.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.readyKey).Result()
	if err != nil {
		return 0, unavailable("ready depth", err)
	}
	return n, nil
}

// InflightDepth returns the number of leased messages.
func (q *RedisQueue) InflightDepth(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.inflightKey).Result()
	if err != nil {
		return 0, unavailable("inflight depth", err)
	}
	return n, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: queue %s: %w", common.ErrUnavailable, op, err)
}

var receiveScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if not id then
  return nil
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
local mkey = ARGV[2] .. id
local count = redis.call('HINCRBY', mkey, 'dequeue_count', 1)
local body = redis.call('HGET', mkey, 'body') or ''
return {id, body, count}
`)

var moveDueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('RPUSH', KEYS[2], id)
end
return ids
`)

var nackScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
if tonumber(ARGV[2]) > 0 then
  redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
else
  redis.call('RPUSH', KEYS[2], ARGV[1])
end
return 1
`)
