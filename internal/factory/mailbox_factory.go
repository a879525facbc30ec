package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/adapters/graph"
	"github.com/mikey/llm-mail-sorter/internal/config"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

// MailboxFactory creates the mail API client
type MailboxFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewMailboxFactory creates a new mailbox factory
func NewMailboxFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *MailboxFactory {
	return &MailboxFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClient creates a Graph mail client from the configuration
func (f *MailboxFactory) CreateClient() (*graph.Client, error) {
	graphCfg, err := f.cfg.GetGraph()
	if err != nil {
		return nil, fmt.Errorf("invalid mail API configuration: %w", err)
	}

	return graph.NewClient(
		graphCfg.BaseURL,
		graphCfg.AccessToken,
		graphCfg.Timeout,
		graphCfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	), nil
}
