package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/third-eye/overseer/pkg/envelope"
)

// MemoryStore is the in-process Store used for single-process deployments
// and tests. All methods are safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	events   []*PipelineEvent
	nextID   int64
	keys     map[string]*APIKey // keyed by secret hash
	keysByID map[string]*APIKey
	tenants  map[string]*Tenant
	profiles map[string]map[string]any
	audit    []*AuditRecord
	auditID  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		keys:     make(map[string]*APIKey),
		keysByID: make(map[string]*APIKey),
		tenants:  make(map[string]*Tenant),
		profiles: make(map[string]map[string]any),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return ErrAlreadyExists
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	cp.NextTools = append([]envelope.Tool(nil), s.NextTools...)
	return &cp, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, tenant string, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if tenant != "" && s.Tenant != tenant {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateSessionSettings(_ context.Context, id, profile string, overrides map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Profile = profile
	s.Overrides = overrides
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) CASPipelineState(_ context.Context, id string, fromVersion int, next []envelope.Tool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.StateVersion != fromVersion {
		return ErrConcurrentModification
	}
	s.NextTools = append([]envelope.Tool(nil), next...)
	s.StateVersion++
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *PipelineEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *e
	cp.ID = m.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, &cp)
	e.ID = cp.ID
	e.CreatedAt = cp.CreatedAt
	return cp.ID, nil
}

func (m *MemoryStore) ListEvents(_ context.Context, sessionID string, f EventFilter) ([]*PipelineEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*PipelineEvent, 0)
	for _, e := range m.events {
		if e.SessionID != sessionID {
			continue
		}
		if f.FromTS != nil && e.CreatedAt.Before(*f.FromTS) {
			continue
		}
		if f.ToTS != nil && e.CreatedAt.After(*f.ToTS) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) TailEvents(_ context.Context, sessionID string, n int) ([]*PipelineEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*PipelineEvent, 0)
	for _, e := range m.events {
		if e.SessionID == sessionID {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	if n > 0 && len(matched) > n {
		matched = matched[len(matched)-n:]
	}
	return matched, nil
}

func (m *MemoryStore) GetKeyByHash(_ context.Context, hash string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *MemoryStore) PutKey(_ context.Context, k *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	if old, ok := m.keysByID[k.ID]; ok {
		delete(m.keys, old.SecretHash)
	}
	m.keys[k.SecretHash] = &cp
	m.keysByID[k.ID] = &cp
	return nil
}

func (m *MemoryStore) TouchKey(_ context.Context, id string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keysByID[id]
	if !ok {
		return ErrNotFound
	}
	t := usedAt
	k.LastUsedAt = &t
	return nil
}

func (m *MemoryStore) GetTenant(_ context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) PutTenant(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetProfile(_ context.Context, name string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.profiles[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make(map[string]any, len(data))
	for k, v := range data {
		cp[k] = v
	}
	return cp, nil
}

func (m *MemoryStore) PutProfile(_ context.Context, name string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]any, len(data))
	for k, v := range data {
		cp[k] = v
	}
	m.profiles[name] = cp
	return nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, r *AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditID++
	cp := *r
	cp.ID = m.auditID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.audit = append(m.audit, &cp)
	return nil
}

// AuditRecords returns a copy of the audit journal. Test helper.
func (m *MemoryStore) AuditRecords() []*AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AuditRecord, len(m.audit))
	for i, r := range m.audit {
		cp := *r
		out[i] = &cp
	}
	return out
}
