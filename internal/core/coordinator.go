package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutionCoordinator drives the classification pipeline: it loads rules,
// fetches message content, obtains scored results from the scheduler and, in
// execute mode, performs the folder moves and records history.
type ExecutionCoordinator struct {
	source    MessageSource
	mover     MessageMover
	rules     RuleStore
	history   HistoryStore
	registry  ExecutionRegistry
	scheduler *BatchScheduler
	logger    *zap.Logger
}

// NewExecutionCoordinator creates a new execution coordinator
func NewExecutionCoordinator(
	source MessageSource,
	mover MessageMover,
	rules RuleStore,
	history HistoryStore,
	registry ExecutionRegistry,
	scheduler *BatchScheduler,
	logger *zap.Logger,
) *ExecutionCoordinator {
	return &ExecutionCoordinator{
		source:    source,
		mover:     mover,
		rules:     rules,
		history:   history,
		registry:  registry,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Analyze classifies the given messages without side effects: no folder is
// moved and no history is written, whatever the results say.
func (c *ExecutionCoordinator) Analyze(ctx context.Context, messageIDs []string, ruleIDs []string) ([]ClassificationResult, error) {
	rules, err := c.loadRules(ctx, messageIDs, ruleIDs)
	if err != nil {
		return nil, err
	}

	msgs := c.fetchMessages(ctx, uniqueIDs(messageIDs))
	return c.scheduler.RunBatched(ctx, msgs, rules), nil
}

// Execute classifies the given messages and moves every actionable result to
// its suggested folder, appending a history entry per successful move. Ids
// repeated within the request are processed once. Each message id is claimed
// in the execution registry first; ids already claimed by an overlapping call
// are reported as already_executing and skipped. All claims are released on
// return, including on cancellation.
func (c *ExecutionCoordinator) Execute(ctx context.Context, messageIDs []string, ruleIDs []string) ([]ClassificationResult, error) {
	rules, err := c.loadRules(ctx, messageIDs, ruleIDs)
	if err != nil {
		return nil, err
	}
	messageIDs = uniqueIDs(messageIDs)

	claimed := make([]string, 0, len(messageIDs))
	skipped := make(map[string]bool, len(messageIDs))
	defer func() {
		for _, id := range claimed {
			c.registry.Release(id)
		}
	}()

	for _, id := range messageIDs {
		if c.registry.TryClaim(id) {
			claimed = append(claimed, id)
		} else {
			skipped[id] = true
		}
	}

	msgs := c.fetchMessages(ctx, claimed)
	classified := c.scheduler.RunBatched(ctx, msgs, rules)

	byID := make(map[string]*ClassificationResult, len(classified))
	for i := range classified {
		res := &classified[i]
		if res.Actionable && res.MatchedRuleID != "" {
			c.moveAndRecord(ctx, res)
		}
		byID[res.MessageID] = res
	}

	// Reassemble in input order, with skipped ids reported in place
	results := make([]ClassificationResult, 0, len(messageIDs))
	for _, id := range messageIDs {
		if skipped[id] {
			results = append(results, ClassificationResult{
				MessageID: id,
				Reason:    ReasonAlreadyExecuting,
			})
			continue
		}
		if res, ok := byID[id]; ok {
			results = append(results, *res)
		}
	}

	return results, nil
}

// History returns the most recent history entries, newest first
func (c *ExecutionCoordinator) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return c.history.Recent(ctx, limit)
}

// Stats returns aggregate counts derived from the history store
func (c *ExecutionCoordinator) Stats(ctx context.Context) (*Stats, error) {
	return c.history.Stats(ctx)
}

// moveAndRecord performs one folder move and logs the outcome. A move
// failure marks that single result and never aborts the rest of the batch; a
// history append failure is logged but not surfaced to the caller.
func (c *ExecutionCoordinator) moveAndRecord(ctx context.Context, res *ClassificationResult) {
	if err := c.mover.MoveMessage(ctx, res.MessageID, res.SuggestedFolderID); err != nil {
		c.logger.Error("Failed to move message",
			zap.String("message_id", res.MessageID),
			zap.String("folder_id", res.SuggestedFolderID),
			zap.Error(err))
		res.Moved = false
		res.Reason = ReasonMoveFailed
		return
	}

	res.Moved = true
	c.logger.Info("Moved message",
		zap.String("message_id", res.MessageID),
		zap.String("rule", res.RuleName),
		zap.String("folder", res.SuggestedFolderName),
		zap.Float64("confidence", res.Confidence))

	entry := &HistoryEntry{
		ID:               uuid.NewString(),
		MessageID:        res.MessageID,
		Subject:          res.Subject,
		RuleID:           res.MatchedRuleID,
		RuleName:         res.RuleName,
		TargetFolderID:   res.SuggestedFolderID,
		TargetFolderName: res.SuggestedFolderName,
		Confidence:       res.Confidence,
		ClassifiedAt:     time.Now().UTC(),
	}
	if err := c.history.Append(ctx, entry); err != nil {
		// The move already happened; a reconciliation pass can detect the gap
		c.logger.Error("Failed to append history entry",
			zap.String("message_id", res.MessageID),
			zap.Error(err))
	}
}

// loadRules validates the request and returns the active rule snapshot
func (c *ExecutionCoordinator) loadRules(ctx context.Context, messageIDs []string, ruleIDs []string) ([]Rule, error) {
	if len(messageIDs) == 0 {
		return nil, NewValidationError("message id list is empty")
	}

	rules, err := c.rules.ListActive(ctx, ruleIDs)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, NewValidationError("no active classification rules found")
	}

	return rules, nil
}

// uniqueIDs drops repeated ids, keeping first-occurrence order. A repeated id
// in one request is caller noise, not an overlapping execution.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}

// fetchMessages loads message content for each id. A fetch failure drops
// that message from the run with a logged error; siblings proceed.
func (c *ExecutionCoordinator) fetchMessages(ctx context.Context, ids []string) []*Message {
	msgs := make([]*Message, 0, len(ids))
	for _, id := range ids {
		msg, err := c.source.FetchMessage(ctx, id)
		if err != nil {
			c.logger.Error("Failed to fetch message",
				zap.String("message_id", id),
				zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
