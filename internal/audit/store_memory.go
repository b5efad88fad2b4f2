package audit

import (
	"context"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-audit/internal/errs"
)

// MemoryStore keeps everything in maps. It backs tests and offline demos.
type MemoryStore struct {
	mu      sync.RWMutex
	audits  map[string]Audit
	items   map[string]EvaluationItem
	byAudit map[string][]string // audit id -> item ids in creation order
	members map[string][]Membership
}

func NewInMemoryStore() *MemoryStore {
	return &MemoryStore{
		audits:  map[string]Audit{},
		items:   map[string]EvaluationItem{},
		byAudit: map[string][]string{},
		members: map[string][]Membership{},
	}
}

// AddMembership registers a group member.
func (m *MemoryStore) AddMembership(mem Membership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mem.UserID] = append(m.members[mem.UserID], mem)
}

func (m *MemoryStore) InsertAudits(_ context.Context, bundles []Bundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// validate the whole batch before touching the maps
	seen := map[string]bool{}
	for _, b := range bundles {
		if _, ok := m.audits[b.Audit.ID]; ok || seen[b.Audit.ID] || b.Audit.ID == "" {
			return errs.Validation(errs.CodeInvalidAudit, "duplicate or empty audit id %q", b.Audit.ID)
		}
		seen[b.Audit.ID] = true
		for _, it := range b.Items {
			if _, ok := m.items[it.ID]; ok || seen[it.ID] || it.ID == "" {
				return errs.Validation(errs.CodeInvalidAudit, "duplicate or empty item id %q", it.ID)
			}
			seen[it.ID] = true
		}
	}
	for _, b := range bundles {
		m.audits[b.Audit.ID] = b.Audit
		ids := make([]string, 0, len(b.Items))
		for _, it := range b.Items {
			it.AuditID = b.Audit.ID
			m.items[it.ID] = it
			ids = append(ids, it.ID)
		}
		m.byAudit[b.Audit.ID] = ids
	}
	return nil
}

func (m *MemoryStore) GetAudit(_ context.Context, id string) (Audit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.audits[id]
	if !ok {
		return Audit{}, errs.NotFound("audit", id)
	}
	return a, nil
}

func (m *MemoryStore) UpdateAudit(_ context.Context, id string, p AuditPatch) (Audit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.audits[id]
	if !ok {
		return Audit{}, errs.NotFound("audit", id)
	}
	p.apply(&a, time.Now().UTC())
	m.audits[id] = a
	return a, nil
}

func (m *MemoryStore) DeleteAudit(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.audits[id]; !ok {
		return errs.NotFound("audit", id)
	}
	for _, itemID := range m.byAudit[id] {
		delete(m.items, itemID)
	}
	delete(m.byAudit, id)
	delete(m.audits, id)
	return nil
}

func (m *MemoryStore) StartExam(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.audits[id]
	if !ok {
		return false, errs.NotFound("audit", id)
	}
	if a.ExamStartTime != nil {
		return false, nil
	}
	a.ExamStartTime = &at
	a.UpdatedAt = at
	m.audits[id] = a
	return true, nil
}

func (m *MemoryStore) GetItem(_ context.Context, id string) (EvaluationItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return EvaluationItem{}, errs.NotFound("item", id)
	}
	return it, nil
}

func (m *MemoryStore) ListItems(_ context.Context, auditID string) ([]EvaluationItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.audits[auditID]; !ok {
		return nil, errs.NotFound("audit", auditID)
	}
	ids := m.byAudit[auditID]
	out := make([]EvaluationItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.items[id])
	}
	return out, nil
}

func (m *MemoryStore) UpdateItem(ctx context.Context, id string, p ItemPatch) (EvaluationItem, error) {
	out, err := m.UpdateItems(ctx, []ItemUpdate{{ItemID: id, Patch: p}})
	if err != nil {
		return EvaluationItem{}, err
	}
	return out[0], nil
}

func (m *MemoryStore) UpdateItems(_ context.Context, updates []ItemUpdate) ([]EvaluationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	// stage on copies so a failing update leaves every item untouched
	staged := map[string]EvaluationItem{}
	out := make([]EvaluationItem, 0, len(updates))
	for _, u := range updates {
		it, ok := staged[u.ItemID]
		if !ok {
			it, ok = m.items[u.ItemID]
			if !ok {
				return nil, errs.NotFound("item", u.ItemID)
			}
		}
		if err := u.Patch.check(it); err != nil {
			return nil, err
		}
		u.Patch.apply(&it, now)
		staged[u.ItemID] = it
		out = append(out, it)
	}
	for id, it := range staged {
		m.items[id] = it
	}
	return out, nil
}

func (m *MemoryStore) GroupMemberships(_ context.Context, userID string) ([]Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Membership, len(m.members[userID]))
	copy(out, m.members[userID])
	return out, nil
}
