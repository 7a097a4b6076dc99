package store

import (
	"context"
	"sync"

	"github.com/zeropass/zeropass/internal/audit"
	"github.com/zeropass/zeropass/internal/rules"
)

// MemoryRuleSets is an in-memory RuleSets implementation. Safe for
// concurrent use.
type MemoryRuleSets struct {
	mu   sync.RWMutex
	sets map[string]map[string]*rules.RuleSet // owner -> id -> rule set
}

// NewMemoryRuleSets creates an empty in-memory rule set store.
func NewMemoryRuleSets() *MemoryRuleSets {
	return &MemoryRuleSets{sets: make(map[string]map[string]*rules.RuleSet)}
}

func (s *MemoryRuleSets) Put(_ context.Context, rs *rules.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.sets[rs.Owner]
	if !ok {
		byID = make(map[string]*rules.RuleSet)
		s.sets[rs.Owner] = byID
	}
	byID[rs.ID] = rs.Clone()
	return nil
}

func (s *MemoryRuleSets) Get(_ context.Context, owner, id string) (*rules.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.sets[owner][id]
	if !ok {
		return nil, ErrNotFound
	}
	return rs.Clone(), nil
}

func (s *MemoryRuleSets) ListByOwner(_ context.Context, owner string) ([]*rules.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*rules.RuleSet, 0, len(s.sets[owner]))
	for _, rs := range s.sets[owner] {
		out = append(out, rs.Clone())
	}
	return out, nil
}

func (s *MemoryRuleSets) Delete(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[owner][id]; !ok {
		return ErrNotFound
	}
	delete(s.sets[owner], id)
	return nil
}

func (s *MemoryRuleSets) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, byID := range s.sets {
		n += len(byID)
	}
	return n, nil
}

// MemoryLogs is an in-memory Logs implementation. Safe for concurrent use.
type MemoryLogs struct {
	mu      sync.RWMutex
	entries map[string][]*audit.Entry // owner -> entries, append order
}

// NewMemoryLogs creates an empty in-memory log store.
func NewMemoryLogs() *MemoryLogs {
	return &MemoryLogs{entries: make(map[string][]*audit.Entry)}
}

func (s *MemoryLogs) Append(_ context.Context, owner string, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[owner] = append(s.entries[owner], e)
	return nil
}

func (s *MemoryLogs) ListByOwner(_ context.Context, owner string, limit int) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[owner]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*audit.Entry, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryLogs) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, owner)
	return nil
}

func (s *MemoryLogs) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, es := range s.entries {
		n += len(es)
	}
	return n, nil
}
