package history

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
)

// MemoryStore is an in-memory implementation of the core.HistoryStore
// interface
type MemoryStore struct {
	mu      sync.RWMutex
	entries []core.HistoryEntry
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory history store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{logger: logger}
}

// Append stores a new history entry
func (s *MemoryStore) Append(ctx context.Context, entry *core.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, *entry)
	return nil
}

// Recent returns up to limit entries, most recent first
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]core.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := make([]core.HistoryEntry, len(s.entries))
	copy(recent, s.entries)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].ClassifiedAt.After(recent[j].ClassifiedAt)
	})

	if limit > 0 && limit < len(recent) {
		recent = recent[:limit]
	}
	return recent, nil
}

// Stats derives aggregate counts from the stored entries
func (s *MemoryStore) Stats(ctx context.Context) (*core.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byRule := make(map[string]int)
	byFolder := make(map[string]int)
	for _, e := range s.entries {
		byRule[e.RuleName]++
		byFolder[e.TargetFolderName]++
	}

	stats := &core.Stats{
		TotalClassified: len(s.entries),
		ByRule:          make([]core.RuleCount, 0, len(byRule)),
		ByFolder:        make([]core.FolderCount, 0, len(byFolder)),
	}
	for rule, count := range byRule {
		stats.ByRule = append(stats.ByRule, core.RuleCount{Rule: rule, Count: count})
	}
	for folder, count := range byFolder {
		stats.ByFolder = append(stats.ByFolder, core.FolderCount{Folder: folder, Count: count})
	}

	sort.Slice(stats.ByRule, func(i, j int) bool {
		if stats.ByRule[i].Count != stats.ByRule[j].Count {
			return stats.ByRule[i].Count > stats.ByRule[j].Count
		}
		return stats.ByRule[i].Rule < stats.ByRule[j].Rule
	})
	sort.Slice(stats.ByFolder, func(i, j int) bool {
		if stats.ByFolder[i].Count != stats.ByFolder[j].Count {
			return stats.ByFolder[i].Count > stats.ByFolder[j].Count
		}
		return stats.ByFolder[i].Folder < stats.ByFolder[j].Folder
	})

	return stats, nil
}
