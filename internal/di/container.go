package di

import (
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/adapters/graph"
	"github.com/mikey/llm-mail-sorter/internal/config"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/factory"
	"github.com/mikey/llm-mail-sorter/internal/inflight"
	"github.com/mikey/llm-mail-sorter/internal/logging"
	"github.com/mikey/llm-mail-sorter/internal/retry"
	"github.com/mikey/llm-mail-sorter/internal/server"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewReasonerFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewHistoryFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewRulesFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewMailboxFactory); err != nil {
		return nil, err
	}

	// Register the reasoner, wrapped with the batch retry policy
	if err := container.Provide(func(f *factory.ReasonerFactory, cfg *config.Config, logger *zap.Logger) (core.Reasoner, error) {
		inner, err := f.CreateReasoner()
		if err != nil {
			return nil, err
		}
		batchCfg, err := cfg.GetBatch()
		if err != nil {
			return nil, err
		}
		backoff := retry.BackoffConfig{
			InitialInterval: batchCfg.InitialBackoff,
			MaxInterval:     batchCfg.MaxBackoff,
			Multiplier:      2.0,
			Jitter:          true,
			MaxAttempts:     batchCfg.MaxAttempts,
		}
		return core.NewRetryingReasoner(inner, batchCfg.AITimeout, backoff, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register classification engine
	if err := container.Provide(func(reasoner core.Reasoner, cfg *config.Config, logger *zap.Logger) *core.ClassificationEngine {
		classifierCfg := cfg.GetClassifier()
		return core.NewClassificationEngine(reasoner, logger, classifierCfg.Threshold, classifierCfg.KeywordWeight)
	}); err != nil {
		return nil, err
	}

	// Register batch scheduler
	if err := container.Provide(func(engine *core.ClassificationEngine, cfg *config.Config, logger *zap.Logger) (*core.BatchScheduler, error) {
		batchCfg, err := cfg.GetBatch()
		if err != nil {
			return nil, err
		}
		return core.NewBatchScheduler(engine, logger, batchCfg.Size, batchCfg.InterBatchDelay), nil
	}); err != nil {
		return nil, err
	}

	// Register execution registry
	if err := container.Provide(func(logger *zap.Logger) core.ExecutionRegistry {
		return inflight.NewRegistry(logger)
	}); err != nil {
		return nil, err
	}

	// Register the mail API client as both source and mover
	if err := container.Provide(func(f *factory.MailboxFactory) (*graph.Client, error) {
		return f.CreateClient()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(c *graph.Client) core.MessageSource { return c }); err != nil {
		return nil, err
	}
	if err := container.Provide(func(c *graph.Client) core.MessageMover { return c }); err != nil {
		return nil, err
	}

	// Register rule store
	if err := container.Provide(func(f *factory.RulesFactory) (core.RuleStore, error) {
		return f.CreateRuleStore()
	}); err != nil {
		return nil, err
	}

	// Register history store
	if err := container.Provide(func(f *factory.HistoryFactory) (core.HistoryStore, error) {
		return f.CreateHistoryStore()
	}); err != nil {
		return nil, err
	}

	// Register execution coordinator
	if err := container.Provide(core.NewExecutionCoordinator); err != nil {
		return nil, err
	}

	// Register API server
	if err := container.Provide(func(coordinator *core.ExecutionCoordinator, cfg *config.Config, logger *zap.Logger) (*server.Server, error) {
		readTimeout, err := cfg.GetDuration("server.read_timeout")
		if err != nil {
			return nil, fmt.Errorf("invalid server.read_timeout: %w", err)
		}
		writeTimeout, err := cfg.GetDuration("server.write_timeout")
		if err != nil {
			return nil, fmt.Errorf("invalid server.write_timeout: %w", err)
		}
		return server.New(coordinator, logger, cfg.GetString("server.listen_address"), readTimeout, writeTimeout), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}
