package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"notekeeper-zipjobs/internal/models"
)

// Memory is an in-process EntityStore and StatusStore used by tests and local runs.
type Memory struct {
	mu       sync.Mutex
	entities map[string]models.Entity
	statuses map[statusKey]memStatus
	seq      int64
	now      func() time.Time

	// FailPut, when set, is returned by PutStatus for matching states.
	FailPut func(status models.JobState) error
}

type statusKey struct{ entity, job string }

type memStatus struct {
	models.JobStatus
	seq int64
}

var (
	_ EntityStore = (*Memory)(nil)
	_ StatusStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		entities: make(map[string]models.Entity),
		statuses: make(map[statusKey]memStatus),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) CreateEntity(_ context.Context, e models.Entity) (models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := m.now()
	e.CreatedAt, e.UpdatedAt = now, now
	m.entities[e.ID] = e
	return e, nil
}

func (m *Memory) GetEntity(_ context.Context, id string) (models.Entity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	return e, ok, nil
}

func (m *Memory) ListEntities(_ context.Context) ([]models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) EntityExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entities[id]
	return ok, nil
}

func (m *Memory) DeleteEntity(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return false, nil
	}
	delete(m.entities, id)
	for k := range m.statuses {
		if k.entity == id {
			delete(m.statuses, k)
		}
	}
	return true, nil
}

func (m *Memory) PutStatus(_ context.Context, entityID, jobID string, status models.JobState, details string) (models.JobStatus, error) {
	if m.FailPut != nil {
		if err := m.FailPut(status); err != nil {
			return models.JobStatus{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := statusKey{entityID, jobID}
	cur, exists := m.statuses[k]
	if !exists {
		m.seq++
		cur.seq = m.seq
	}
	cur.JobStatus = models.JobStatus{
		EntityID:      entityID,
		JobID:         jobID,
		Status:        status,
		StatusDetails: details,
		LastUpdated:   m.now(),
		Version:       cur.Version + 1,
	}
	m.statuses[k] = cur
	return cur.JobStatus, nil
}

func (m *Memory) GetStatus(_ context.Context, entityID, jobID string) (models.JobStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[statusKey{entityID, jobID}]
	return s.JobStatus, ok, nil
}

func (m *Memory) ListStatuses(_ context.Context, entityID string) ([]models.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]memStatus, 0)
	for k, s := range m.statuses {
		if k.entity == entityID {
			rows = append(rows, s)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]models.JobStatus, len(rows))
	for i, r := range rows {
		out[i] = r.JobStatus
	}
	return out, nil
}

func (m *Memory) DeleteStatus(_ context.Context, entityID, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := statusKey{entityID, jobID}
	if _, ok := m.statuses[k]; !ok {
		return false, nil
	}
	delete(m.statuses, k)
	return true, nil
}
