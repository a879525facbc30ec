package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/inflight"
)

type fakeSource struct {
	mu      sync.Mutex
	msgs    map[string]*Message
	failing map[string]bool
	fetched []string
	onFetch func(id string)
}

func (f *fakeSource) FetchMessage(ctx context.Context, id string) (*Message, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	onFetch := f.onFetch
	f.mu.Unlock()

	if onFetch != nil {
		onFetch(id)
	}
	if f.failing[id] {
		return nil, errors.New("message not found")
	}
	if msg, ok := f.msgs[id]; ok {
		return msg, nil
	}
	return &Message{ID: id, Subject: "facture"}, nil
}

type fakeMover struct {
	mu      sync.Mutex
	moved   []string
	failing map[string]bool
}

func (f *fakeMover) MoveMessage(ctx context.Context, messageID string, folderID string) error {
	if f.failing[messageID] {
		return errors.New("move rejected")
	}
	f.mu.Lock()
	f.moved = append(f.moved, messageID)
	f.mu.Unlock()
	return nil
}

func (f *fakeMover) movedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.moved...)
}

type fakeRuleStore struct {
	rules []Rule
	err   error
}

func (f *fakeRuleStore) ListActive(ctx context.Context, ids []string) ([]Rule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

type fakeHistoryStore struct {
	mu      sync.Mutex
	entries []*HistoryEntry
}

func (f *fakeHistoryStore) Append(ctx context.Context, entry *HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistoryStore) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]HistoryEntry, 0, len(f.entries))
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *f.entries[i])
	}
	return out, nil
}

func (f *fakeHistoryStore) Stats(ctx context.Context) (*Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &Stats{TotalClassified: len(f.entries)}, nil
}

func (f *fakeHistoryStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type coordinatorFixture struct {
	coordinator *ExecutionCoordinator
	source      *fakeSource
	mover       *fakeMover
	history     *fakeHistoryStore
	registry    *inflight.Registry
}

func newCoordinatorFixture(t *testing.T, rules []Rule, verdict *Verdict) *coordinatorFixture {
	t.Helper()

	reasoner := &stubReasoner{
		judge: func(ctx context.Context, text, prompt string) (*Verdict, error) {
			if verdict == nil {
				return nil, errors.New("reasoner down")
			}
			return verdict, nil
		},
	}
	engine := NewClassificationEngine(reasoner, zap.NewNop(), 0.4, 0.5)
	scheduler := NewBatchScheduler(engine, zap.NewNop(), 10, 0)

	source := &fakeSource{msgs: map[string]*Message{}, failing: map[string]bool{}}
	mover := &fakeMover{failing: map[string]bool{}}
	history := &fakeHistoryStore{}
	registry := inflight.NewRegistry(zap.NewNop())

	coordinator := NewExecutionCoordinator(
		source,
		mover,
		&fakeRuleStore{rules: rules},
		history,
		registry,
		scheduler,
		zap.NewNop(),
	)

	return &coordinatorFixture{
		coordinator: coordinator,
		source:      source,
		mover:       mover,
		history:     history,
		registry:    registry,
	}
}

func invoiceRules() []Rule {
	return []Rule{
		{
			ID:               "r1",
			Name:             "Invoices",
			TargetFolderID:   "f1",
			TargetFolderName: "Factures",
			Keywords:         []string{"facture"},
			AIPrompt:         "Is this an invoice?",
			IsActive:         true,
			CreatedAt:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestAnalyzeHasNoSideEffects(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})

	results, err := f.coordinator.Analyze(context.Background(), []string{"m1", "m2"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		assert.True(t, res.Actionable)
		assert.False(t, res.Moved)
	}
	assert.Empty(t, f.mover.movedIDs())
	assert.Zero(t, f.history.count())
	assert.Zero(t, f.registry.Size())
}

func TestExecuteMovesAndRecordsHistory(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})

	results, err := f.coordinator.Execute(context.Background(), []string{"m1"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.True(t, res.Moved)
	assert.Equal(t, ReasonMatched, res.Reason)
	assert.Equal(t, []string{"m1"}, f.mover.movedIDs())

	require.Equal(t, 1, f.history.count())
	entry := f.history.entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "m1", entry.MessageID)
	assert.Equal(t, "r1", entry.RuleID)
	assert.Equal(t, "Invoices", entry.RuleName)
	assert.Equal(t, "f1", entry.TargetFolderID)
	assert.Equal(t, "Factures", entry.TargetFolderName)
	assert.InDelta(t, 0.9, entry.Confidence, 1e-9)
	assert.False(t, entry.ClassifiedAt.IsZero())

	// All claims released after the call
	assert.Zero(t, f.registry.Size())
}

func TestExecuteBelowThresholdDoesNotMove(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.3})

	results, err := f.coordinator.Execute(context.Background(), []string{"m1"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.False(t, results[0].Actionable)
	assert.False(t, results[0].Moved)
	assert.Empty(t, f.mover.movedIDs())
	assert.Zero(t, f.history.count())
}

func TestExecuteMoveFailureIsIsolated(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})
	f.mover.failing["m2"] = true

	results, err := f.coordinator.Execute(context.Background(), []string{"m1", "m2", "m3"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Moved)
	assert.False(t, results[1].Moved)
	assert.Equal(t, ReasonMoveFailed, results[1].Reason)
	assert.True(t, results[2].Moved)

	assert.Equal(t, []string{"m1", "m3"}, f.mover.movedIDs())
	assert.Equal(t, 2, f.history.count())
}

func TestExecuteFetchFailureDropsMessage(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})
	f.source.failing["m2"] = true

	results, err := f.coordinator.Execute(context.Background(), []string{"m1", "m2", "m3"}, nil)
	require.NoError(t, err)

	ids := make([]string, 0, len(results))
	for _, res := range results {
		ids = append(ids, res.MessageID)
	}
	assert.Equal(t, []string{"m1", "m3"}, ids)
	assert.Zero(t, f.registry.Size())
}

func TestExecuteRejectsEmptyMessageList(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})

	_, err := f.coordinator.Execute(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestExecuteRejectsEmptyRuleSet(t *testing.T) {
	f := newCoordinatorFixture(t, nil, &Verdict{IsMatch: true, Confidence: 0.9})

	_, err := f.coordinator.Execute(context.Background(), []string{"m1"}, nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestExecuteSkipsAlreadyClaimedMessages(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})

	// Simulate an overlapping execution holding m2
	require.True(t, f.registry.TryClaim("m2"))

	results, err := f.coordinator.Execute(context.Background(), []string{"m1", "m2", "m3"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Moved)
	assert.Equal(t, ReasonAlreadyExecuting, results[1].Reason)
	assert.False(t, results[1].Moved)
	assert.True(t, results[2].Moved)

	assert.Equal(t, []string{"m1", "m3"}, f.mover.movedIDs())

	// The foreign claim survives; only the coordinator's own claims are freed
	assert.Equal(t, 1, f.registry.Size())
}

func TestExecuteProcessesRepeatedIDsOnce(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})

	results, err := f.coordinator.Execute(context.Background(), []string{"m1", "m1", "m2"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "m1", results[0].MessageID)
	assert.Equal(t, "m2", results[1].MessageID)
	assert.True(t, results[0].Moved)
	assert.True(t, results[1].Moved)
	assert.NotEqual(t, ReasonAlreadyExecuting, results[0].Reason)

	assert.Equal(t, []string{"m1", "m2"}, f.mover.movedIDs())
	assert.Equal(t, 2, f.history.count())
}

func TestAnalyzeProcessesRepeatedIDsOnce(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})

	results, err := f.coordinator.Analyze(context.Background(), []string{"m1", "m1"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].MessageID)

	f.source.mu.Lock()
	fetched := len(f.source.fetched)
	f.source.mu.Unlock()
	assert.Equal(t, 1, fetched)
}

func TestConcurrentExecutesMoveEachMessageOnce(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})

	firstFetching := make(chan struct{})
	releaseFetch := make(chan struct{})
	var once sync.Once
	f.source.onFetch = func(id string) {
		once.Do(func() {
			close(firstFetching)
			<-releaseFetch
		})
	}

	type executeOutcome struct {
		results []ClassificationResult
		err     error
	}
	resCh := make(chan executeOutcome, 1)
	go func() {
		results, err := f.coordinator.Execute(context.Background(), []string{"m1"}, nil)
		resCh <- executeOutcome{results: results, err: err}
	}()

	// Wait until the first call holds the claim, then race a second call
	<-firstFetching
	second, err := f.coordinator.Execute(context.Background(), []string{"m1"}, nil)
	require.NoError(t, err)
	close(releaseFetch)
	outcome := <-resCh
	require.NoError(t, outcome.err)
	first := outcome.results

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.True(t, first[0].Moved)
	assert.Equal(t, ReasonAlreadyExecuting, second[0].Reason)
	assert.False(t, second[0].Moved)

	assert.Equal(t, []string{"m1"}, f.mover.movedIDs())
	assert.Equal(t, 1, f.history.count())
	assert.Zero(t, f.registry.Size())
}

func TestHistoryAndStatsPassThrough(t *testing.T) {
	f := newCoordinatorFixture(t, invoiceRules(), &Verdict{IsMatch: true, Confidence: 0.9})

	_, err := f.coordinator.Execute(context.Background(), []string{"m1", "m2"}, nil)
	require.NoError(t, err)

	entries, err := f.coordinator.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	stats, err := f.coordinator.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalClassified)
}
