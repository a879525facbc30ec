package config

import (
	"fmt"
	"time"
)

// LLMConfig represents the configuration for the reasoner provider
type LLMConfig struct {
	Provider string
}

// ClassifierConfig represents the scoring configuration
type ClassifierConfig struct {
	Threshold     float64
	KeywordWeight float64
}

// BatchConfig represents the pacing and retry configuration for reasoner
// calls
type BatchConfig struct {
	Size            int
	InterBatchDelay time.Duration
	AITimeout       time.Duration
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GraphConfig represents the configuration for the Microsoft Graph mail API
type GraphConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	MaxBodySize int
}

// GetLLM returns the reasoner provider configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Threshold:     c.GetFloat64("classifier.threshold"),
		KeywordWeight: c.GetFloat64("classifier.keyword_weight"),
	}
}

// GetBatch returns the batch configuration
func (c *Config) GetBatch() (BatchConfig, error) {
	delay, err := c.GetDuration("batch.inter_batch_delay")
	if err != nil {
		return BatchConfig{}, fmt.Errorf("invalid batch.inter_batch_delay: %w", err)
	}
	timeout, err := c.GetDuration("batch.ai_timeout")
	if err != nil {
		return BatchConfig{}, fmt.Errorf("invalid batch.ai_timeout: %w", err)
	}
	initial, err := c.GetDuration("batch.initial_backoff")
	if err != nil {
		return BatchConfig{}, fmt.Errorf("invalid batch.initial_backoff: %w", err)
	}
	max, err := c.GetDuration("batch.max_backoff")
	if err != nil {
		return BatchConfig{}, fmt.Errorf("invalid batch.max_backoff: %w", err)
	}

	return BatchConfig{
		Size:            c.GetInt("batch.size"),
		InterBatchDelay: delay,
		AITimeout:       timeout,
		MaxAttempts:     c.GetInt("batch.max_attempts"),
		InitialBackoff:  initial,
		MaxBackoff:      max,
	}, nil
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetGraph returns the mail API configuration
func (c *Config) GetGraph() (GraphConfig, error) {
	timeout, err := c.GetDuration("graph.timeout")
	if err != nil {
		return GraphConfig{}, fmt.Errorf("invalid graph.timeout: %w", err)
	}

	return GraphConfig{
		BaseURL:     c.GetString("graph.base_url"),
		AccessToken: c.GetString("graph.access_token"),
		Timeout:     timeout,
		MaxBodySize: c.GetInt("graph.max_body_size"),
	}, nil
}
