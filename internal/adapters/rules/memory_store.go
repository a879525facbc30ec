package rules

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
)

// MemoryStore is an in-memory implementation of the core.RuleStore
// interface, used by tests and single-shot CLI runs
type MemoryStore struct {
	mu     sync.RWMutex
	rules  map[string]core.Rule
	logger *zap.Logger
}

// NewMemoryStore creates a new in-memory rule store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		rules:  make(map[string]core.Rule),
		logger: logger,
	}
}

// Put stores or replaces a rule
func (s *MemoryStore) Put(rule core.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules[rule.ID] = rule
}

// Delete removes a rule
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rules, id)
}

// ListActive returns active rules, optionally restricted to the given ids.
// Unknown ids yield a ValidationError.
func (s *MemoryStore) ListActive(ctx context.Context, ids []string) ([]core.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) > 0 {
		selected := make([]core.Rule, 0, len(ids))
		for _, id := range ids {
			rule, ok := s.rules[id]
			if !ok {
				return nil, core.NewValidationError("unknown rule id: %s", id)
			}
			if rule.IsActive {
				selected = append(selected, rule)
			}
		}
		return selected, nil
	}

	active := make([]core.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	return active, nil
}
