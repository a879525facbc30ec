package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/adapters/history"
	"github.com/mikey/llm-mail-sorter/internal/adapters/rules"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/inflight"
)

type staticReasoner struct {
	verdict core.Verdict
}

func (s *staticReasoner) Judge(ctx context.Context, text, prompt string) (*core.Verdict, error) {
	v := s.verdict
	return &v, nil
}

type stubMailbox struct {
	mu    sync.Mutex
	moved []string
}

func (s *stubMailbox) FetchMessage(ctx context.Context, id string) (*core.Message, error) {
	return &core.Message{ID: id, Subject: "Votre facture", BodyText: "facture jointe"}, nil
}

func (s *stubMailbox) MoveMessage(ctx context.Context, id string, folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moved = append(s.moved, id)
	return nil
}

func (s *stubMailbox) movedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.moved...)
}

type serverFixture struct {
	server  *Server
	mailbox *stubMailbox
	history *history.MemoryStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	logger := zap.NewNop()

	ruleStore := rules.NewMemoryStore(logger)
	ruleStore.Put(core.Rule{
		ID:               "r1",
		Name:             "Invoices",
		TargetFolderID:   "f1",
		TargetFolderName: "Factures",
		Keywords:         []string{"facture"},
		AIPrompt:         "Is this an invoice?",
		IsActive:         true,
		CreatedAt:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	historyStore := history.NewMemoryStore(logger)
	mailbox := &stubMailbox{}

	engine := core.NewClassificationEngine(
		&staticReasoner{verdict: core.Verdict{IsMatch: true, Confidence: 0.9}},
		logger, 0.4, 0.5)
	scheduler := core.NewBatchScheduler(engine, logger, 10, 0)

	coordinator := core.NewExecutionCoordinator(
		mailbox, mailbox, ruleStore, historyStore,
		inflight.NewRegistry(logger), scheduler, logger)

	return &serverFixture{
		server:  New(coordinator, logger, "127.0.0.1:0", time.Second, time.Second),
		mailbox: mailbox,
		history: historyStore,
	}
}

func (f *serverFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestAnalyzeEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/classify/analyze",
		ClassifyRequest{MessageIDs: []string{"m1", "m2"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var results []core.ClassificationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)

	assert.Equal(t, "m1", results[0].MessageID)
	assert.True(t, results[0].Actionable)
	assert.False(t, results[0].Moved)

	// Analyze never touches the mailbox
	assert.Empty(t, f.mailbox.movedIDs())
}

func TestExecuteEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/classify/execute",
		ClassifyRequest{MessageIDs: []string{"m1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var results []core.ClassificationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)

	assert.True(t, results[0].Moved)
	assert.Equal(t, []string{"m1"}, f.mailbox.movedIDs())
}

func TestExecuteEndpointDryRun(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/classify/execute",
		ClassifyRequest{MessageIDs: []string{"m1"}, DryRun: true})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, f.mailbox.movedIDs())
}

func TestExecuteEndpointValidation(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/classify/execute",
		ClassifyRequest{MessageIDs: nil})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "message id list is empty")
}

func TestExecuteEndpointUnknownRule(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/classify/execute",
		ClassifyRequest{MessageIDs: []string{"m1"}, RuleIDs: []string{"nope"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEndpointBadBody(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/classify/analyze",
		bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	f := newServerFixture(t)

	// Seed two executed classifications
	rec := f.do(t, http.MethodPost, "/api/classify/execute",
		ClassifyRequest{MessageIDs: []string{"m1", "m2"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/classify/history?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []core.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestHistoryEndpointEmpty(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/classify/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestHistoryEndpointBadLimit(t *testing.T) {
	f := newServerFixture(t)

	for _, limit := range []string{"abc", "-1", "0"} {
		rec := f.do(t, http.MethodGet, "/api/classify/history?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestStatsEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/classify/execute",
		ClassifyRequest{MessageIDs: []string{"m1", "m2"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/classify/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats core.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalClassified)
	require.Len(t, stats.ByRule, 1)
	assert.Equal(t, "Invoices", stats.ByRule[0].Rule)
	assert.Equal(t, 2, stats.ByRule[0].Count)
}
