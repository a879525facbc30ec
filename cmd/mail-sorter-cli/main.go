package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/config"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/factory"
	"github.com/mikey/llm-mail-sorter/internal/inflight"
	"github.com/mikey/llm-mail-sorter/internal/logging"
	"github.com/mikey/llm-mail-sorter/internal/retry"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

var (
	// Reasoner provider flags
	provider    = flag.String("provider", "openai", "Reasoner provider (openai, bedrock, gemini)")
	maxTokens   = flag.Int("max-tokens", 1000, "Maximum tokens for reasoner response")
	temperature = flag.Float64("temperature", 0.1, "Temperature for reasoner generation")
	topP        = flag.Float64("top-p", 0.9, "Top-p for reasoner generation")
	maxBodySize = flag.Int("max-body-size", 2000, "Maximum message body size to send to the reasoner")

	// OpenAI flags
	openaiAPIKey    = flag.String("openai-api-key", "", "API key for OpenAI")
	openaiModelName = flag.String("openai-model", "gpt-4o-mini", "OpenAI model name")

	// Bedrock flags
	bedrockRegion  = flag.String("bedrock-region", "us-east-1", "AWS region for Bedrock")
	bedrockModelID = flag.String("bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	geminiAPIKey    = flag.String("gemini-api-key", "", "API key for Google Gemini")
	geminiModelName = flag.String("gemini-model", "gemini-pro", "Gemini model name")

	// Mail API flags
	graphToken = flag.String("graph-token", "", "Bearer token for the Graph mail API")

	// Classification flags
	threshold = flag.Float64("threshold", 0.4, "Activation threshold for moving a message")
	ruleIDs   = flag.String("rules", "", "Comma-separated rule ids (all active rules if empty)")
	execute   = flag.Bool("execute", false, "Move messages instead of only analyzing")

	// Misc flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	messageIDs := flag.Args()
	if len(messageIDs) == 0 {
		fmt.Println("Usage: mail-sorter-cli [flags] <message-id> [<message-id> ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	var cfg *config.Config
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = createConfigFromFlags()
	}

	coordinator, cleanup, err := buildCoordinator(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build classification pipeline", zap.Error(err))
	}
	defer cleanup()

	var requestedRules []string
	if *ruleIDs != "" {
		for _, id := range strings.Split(*ruleIDs, ",") {
			requestedRules = append(requestedRules, strings.TrimSpace(id))
		}
	}

	mode := "analyze"
	if *execute {
		mode = "execute"
	}
	fmt.Printf("\n=== Classification (%s) ===\n", mode)
	fmt.Printf("Provider: %s\n", cfg.GetString("llm.provider"))
	fmt.Printf("Threshold: %.2f\n", cfg.GetFloat64("classifier.threshold"))
	fmt.Printf("Messages: %d\n\n", len(messageIDs))

	startTime := time.Now()
	ctx := context.Background()

	var results []core.ClassificationResult
	if *execute {
		results, err = coordinator.Execute(ctx, messageIDs, requestedRules)
	} else {
		results, err = coordinator.Analyze(ctx, messageIDs, requestedRules)
	}
	if err != nil {
		logger.Fatal("Classification failed", zap.Error(err))
	}

	fmt.Printf("=== Results ===\n")
	for _, res := range results {
		fmt.Printf("Message: %s\n", res.MessageID)
		if res.Subject != "" {
			fmt.Printf("  Subject: %s\n", res.Subject)
		}
		if res.MatchedRuleID != "" {
			fmt.Printf("  Rule: %s -> %s\n", res.RuleName, res.SuggestedFolderName)
		}
		fmt.Printf("  Confidence: %.4f\n", res.Confidence)
		fmt.Printf("  Actionable: %t  Moved: %t  Reason: %s\n", res.Actionable, res.Moved, res.Reason)
	}
	fmt.Printf("\nProcessing time: %v\n", time.Since(startTime))
}

// buildCoordinator wires the pipeline by hand; the CLI skips the dig
// container used by the daemon
func buildCoordinator(cfg *config.Config, logger *zap.Logger) (*core.ExecutionCoordinator, func(), error) {
	textProcessor := utils.NewTextProcessor(logger)

	reasonerFactory := factory.NewReasonerFactory(cfg, logger, textProcessor)
	reasoner, err := reasonerFactory.CreateReasoner()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create reasoner: %w", err)
	}

	batchCfg, err := cfg.GetBatch()
	if err != nil {
		return nil, nil, err
	}
	backoff := retry.BackoffConfig{
		InitialInterval: batchCfg.InitialBackoff,
		MaxInterval:     batchCfg.MaxBackoff,
		Multiplier:      2.0,
		Jitter:          true,
		MaxAttempts:     batchCfg.MaxAttempts,
	}
	retrying := core.NewRetryingReasoner(reasoner, batchCfg.AITimeout, backoff, logger)

	classifierCfg := cfg.GetClassifier()
	engine := core.NewClassificationEngine(retrying, logger, classifierCfg.Threshold, classifierCfg.KeywordWeight)
	scheduler := core.NewBatchScheduler(engine, logger, batchCfg.Size, batchCfg.InterBatchDelay)

	mailbox, err := factory.NewMailboxFactory(cfg, logger, textProcessor).CreateClient()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	ruleStore, err := factory.NewRulesFactory(cfg, logger).CreateRuleStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create rule store: %w", err)
	}

	historyStore, err := factory.NewHistoryFactory(cfg, logger).CreateHistoryStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create history store: %w", err)
	}

	coordinator := core.NewExecutionCoordinator(
		mailbox,
		mailbox,
		ruleStore,
		historyStore,
		inflight.NewRegistry(logger),
		scheduler,
		logger,
	)

	cleanup := func() {
		if closer, ok := reasoner.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close reasoner", zap.Error(err))
			}
		}
		if closer, ok := historyStore.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close history store", zap.Error(err))
			}
		}
		if closer, ok := ruleStore.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close rule store", zap.Error(err))
			}
		}
	}

	return coordinator, cleanup, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	// Set reasoner provider
	v.Set("llm.provider", *provider)

	// Set provider-specific configuration
	switch *provider {
	case "openai":
		v.Set("openai.api_key", *openaiAPIKey)
		v.Set("openai.model_name", *openaiModelName)
		v.Set("openai.max_tokens", *maxTokens)
		v.Set("openai.temperature", *temperature)
		v.Set("openai.top_p", *topP)
		v.Set("openai.max_body_size", *maxBodySize)
	case "bedrock":
		v.Set("bedrock.region", *bedrockRegion)
		v.Set("bedrock.model_id", *bedrockModelID)
		v.Set("bedrock.max_tokens", *maxTokens)
		v.Set("bedrock.temperature", *temperature)
		v.Set("bedrock.top_p", *topP)
		v.Set("bedrock.max_body_size", *maxBodySize)
	case "gemini":
		v.Set("gemini.api_key", *geminiAPIKey)
		v.Set("gemini.model_name", *geminiModelName)
		v.Set("gemini.max_tokens", *maxTokens)
		v.Set("gemini.temperature", *temperature)
		v.Set("gemini.top_p", *topP)
		v.Set("gemini.max_body_size", *maxBodySize)
	}

	// Set classification configuration
	v.Set("classifier.threshold", *threshold)

	// Set mail API token
	v.Set("graph.access_token", *graphToken)

	return config.NewFromViper(v)
}
