package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/adapters/bedrock"
	"github.com/mikey/llm-mail-sorter/internal/adapters/gemini"
	"github.com/mikey/llm-mail-sorter/internal/adapters/openai"
	"github.com/mikey/llm-mail-sorter/internal/config"
	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

// ReasonerFactory creates reasoner clients
type ReasonerFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewReasonerFactory creates a new reasoner factory
func NewReasonerFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ReasonerFactory {
	return &ReasonerFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateReasoner creates a new reasoner based on the configuration
func (f *ReasonerFactory) CreateReasoner() (core.Reasoner, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "openai":
		factory := openai.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateReasoner()
	case "bedrock":
		factory := bedrock.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateReasoner()
	case "gemini":
		factory := gemini.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateReasoner()
	default:
		return nil, fmt.Errorf("unsupported reasoner provider: %s", llmConfig.Provider)
	}
}
