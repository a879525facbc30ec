package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
)

func testRule(id string, active bool) core.Rule {
	return core.Rule{
		ID:               id,
		Name:             "Invoices " + id,
		TargetFolderID:   "f-" + id,
		TargetFolderName: "Factures",
		Keywords:         []string{"facture", "devis"},
		IsActive:         active,
		CreatedAt:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStoreListActive(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	store.Put(testRule("r1", true))
	store.Put(testRule("r2", false))
	store.Put(testRule("r3", true))

	rules, err := store.ListActive(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
	for _, r := range rules {
		assert.True(t, r.IsActive)
	}
}

func TestMemoryStoreListActiveByID(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	store.Put(testRule("r1", true))
	store.Put(testRule("r2", true))

	rules, err := store.ListActive(context.Background(), []string{"r2"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r2", rules[0].ID)
}

func TestMemoryStoreUnknownIDIsValidationError(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	store.Put(testRule("r1", true))

	_, err := store.ListActive(context.Background(), []string{"r1", "missing"})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
}

func TestMemoryStoreInactiveSelectedIDIsFiltered(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	store.Put(testRule("r1", false))

	rules, err := store.ListActive(context.Background(), []string{"r1"})
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	store.Put(testRule("r1", true))
	store.Delete("r1")

	rules, err := store.ListActive(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
