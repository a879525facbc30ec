package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/retry"
)

// DefaultBatchSize bounds the number of reasoner calls in flight
const DefaultBatchSize = 10

// DefaultInterBatchDelay paces batches to respect upstream rate limits
const DefaultInterBatchDelay = 500 * time.Millisecond

// BatchScheduler partitions messages into fixed-size batches processed
// strictly in order. Within a batch each message is classified on its own
// goroutine, so at most batchSize reasoner calls are outstanding at once.
type BatchScheduler struct {
	engine          *ClassificationEngine
	logger          *zap.Logger
	batchSize       int
	interBatchDelay time.Duration
}

// NewBatchScheduler creates a new batch scheduler
func NewBatchScheduler(
	engine *ClassificationEngine,
	logger *zap.Logger,
	batchSize int,
	interBatchDelay time.Duration,
) *BatchScheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if interBatchDelay < 0 {
		interBatchDelay = DefaultInterBatchDelay
	}
	return &BatchScheduler{
		engine:          engine,
		logger:          logger,
		batchSize:       batchSize,
		interBatchDelay: interBatchDelay,
	}
}

// RunBatched classifies all messages and returns results in input order.
// One message's reasoner failure never blocks or fails its siblings; the
// engine degrades that message to keyword-only scoring instead. Cancelling
// the context stops before the next batch and returns the results produced
// so far.
func (s *BatchScheduler) RunBatched(ctx context.Context, msgs []*Message, rules []Rule) []ClassificationResult {
	results := make([]ClassificationResult, len(msgs))

	for start := 0; start < len(msgs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(msgs) {
			end = len(msgs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = s.engine.Classify(ctx, msgs[idx], rules)
			}(i)
		}
		wg.Wait()

		s.logger.Debug("Processed classification batch",
			zap.Int("batch_start", start),
			zap.Int("batch_size", end-start),
			zap.Int("total", len(msgs)))

		if end < len(msgs) {
			select {
			case <-ctx.Done():
				s.logger.Warn("Batch run cancelled", zap.Int("processed", end), zap.Error(ctx.Err()))
				return results[:end]
			case <-time.After(s.interBatchDelay):
			}
		}
	}

	return results
}

// retryingReasoner wraps a Reasoner with a per-call timeout and exponential
// backoff, so transient upstream failures are absorbed before the engine
// falls back to keyword scoring.
type retryingReasoner struct {
	inner   Reasoner
	timeout time.Duration
	backoff retry.BackoffConfig
	logger  *zap.Logger
}

// NewRetryingReasoner decorates inner with timeout and retry handling
func NewRetryingReasoner(
	inner Reasoner,
	timeout time.Duration,
	backoff retry.BackoffConfig,
	logger *zap.Logger,
) Reasoner {
	return &retryingReasoner{
		inner:   inner,
		timeout: timeout,
		backoff: backoff,
		logger:  logger,
	}
}

// Judge calls the wrapped reasoner, retrying timeouts and transient errors
// until the attempt budget is exhausted
func (r *retryingReasoner) Judge(ctx context.Context, text string, prompt string) (*Verdict, error) {
	var verdict *Verdict

	err := retry.WithBackoff(ctx, r.backoff, func() error {
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		v, err := r.inner.Judge(callCtx, text, prompt)
		if err != nil {
			r.logger.Debug("Reasoner call failed", zap.Error(err))
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	return verdict, nil
}
