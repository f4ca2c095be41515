package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"notekeeper-zipjobs/internal/models"
)

// Memory is an in-process queue with the same lease semantics as RedisQueue.
type Memory struct {
	mu         sync.Mutex
	ready      []string
	inflight   map[string]time.Time
	scheduled  map[string]time.Time
	messages   map[string]*memMessage
	poison     []string
	visibility time.Duration
	base64     bool
	now        func() time.Time

	// FailEnqueue, when set, is returned by Enqueue.
	FailEnqueue error
}

type memMessage struct {
	body   string
	count  int
	reason string
}

func NewMemory(visibility time.Duration, b64 bool) *Memory {
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &Memory{
		inflight:   make(map[string]time.Time),
		scheduled:  make(map[string]time.Time),
		messages:   make(map[string]*memMessage),
		visibility: visibility,
		base64:     b64,
		now:        time.Now,
	}
}

func (m *Memory) Enqueue(_ context.Context, req models.ZipJobRequest) (string, error) {
	if m.FailEnqueue != nil {
		return "", m.FailEnqueue
	}
	body, err := EncodeRequest(req, m.base64)
	if err != nil {
		return "", err
	}
	return m.EnqueueRaw(body), nil
}

// EnqueueRaw appends an already encoded body, e.g. a malformed one in tests.
func (m *Memory) EnqueueRaw(body string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.messages[id] = &memMessage{body: body}
	m.ready = append(m.ready, id)
	return id
}

func (m *Memory) Receive(_ context.Context) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ready) == 0 {
		return nil, nil
	}
	id := m.ready[0]
	m.ready = m.ready[1:]
	m.inflight[id] = m.now().Add(m.visibility)
	msg, ok := m.messages[id]
	if !ok {
		msg = &memMessage{}
		m.messages[id] = msg
	}
	msg.count++
	return &Delivery{ID: id, Body: msg.body, DequeueCount: msg.count}, nil
}

func (m *Memory) ExtendLease(_ context.Context, id string, extension time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[id]; ok {
		m.inflight[id] = m.now().Add(extension)
	}
	return nil
}

func (m *Memory) Ack(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
	delete(m.scheduled, id)
	m.ready = removeID(m.ready, id)
	delete(m.messages, id)
	return nil
}

func (m *Memory) Nack(_ context.Context, id string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, leased := m.inflight[id]; !leased {
		return nil
	}
	delete(m.inflight, id)
	if delay <= 0 {
		m.ready = append(m.ready, id)
	} else {
		m.scheduled[id] = m.now().Add(delay)
	}
	return nil
}

func (m *Memory) RequeueExpired(_ context.Context, now time.Time, limit int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := due(m.inflight, now, limit)
	for _, id := range ids {
		delete(m.inflight, id)
		m.ready = append(m.ready, id)
	}
	return ids, nil
}

func (m *Memory) PromoteScheduled(_ context.Context, now time.Time, limit int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := due(m.scheduled, now, limit)
	for _, id := range ids {
		delete(m.scheduled, id)
		m.ready = append(m.ready, id)
	}
	return len(ids), nil
}

func (m *Memory) DeadLetter(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
	delete(m.scheduled, id)
	m.ready = removeID(m.ready, id)
	if msg, ok := m.messages[id]; ok {
		msg.reason = reason
	}
	m.poison = append(m.poison, id)
	return nil
}

func (m *Memory) PoisonPeek(_ context.Context, count int64) ([]Poisoned, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Poisoned{}
	for _, id := range m.poison {
		if int64(len(out)) >= count {
			break
		}
		p := Poisoned{ID: id}
		if msg, ok := m.messages[id]; ok {
			p.Body, p.Reason, p.DequeueCount = msg.body, msg.reason, msg.count
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) ReadyDepth(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.ready)), nil
}

func (m *Memory) InflightDepth(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.inflight)), nil
}

// Scheduled reports how many messages wait for a delayed redelivery.
func (m *Memory) Scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scheduled)
}

func due(set map[string]time.Time, now time.Time, limit int64) []string {
	ids := make([]string, 0)
	for id, at := range set {
		if !at.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return set[ids[i]].Before(set[ids[j]]) })
	if limit > 0 && int64(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids
}

func removeID(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
