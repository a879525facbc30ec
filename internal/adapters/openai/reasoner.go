package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

// Reasoner is an implementation of the core.Reasoner interface using OpenAI
type Reasoner struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// judgeResponse represents the structured response from the model
type judgeResponse struct {
	IsMatch    bool    `json:"is_match"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// NewReasoner creates a new OpenAI reasoner
func NewReasoner(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Reasoner {
	return &Reasoner{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat: `You are an email sorting assistant. Decide whether the following email satisfies the classification instruction.

CLASSIFICATION INSTRUCTION:
%s

EMAIL:
%s

Respond with a JSON object containing:
- is_match: boolean (true if the email satisfies the instruction)
- confidence: number between 0 and 1 (how certain you are)
- reason: string (brief explanation)

Respond only with the JSON object and nothing else.`,
	}
}

// Judge evaluates message text against a rule's natural-language instruction
func (r *Reasoner) Judge(ctx context.Context, text string, prompt string) (*core.Verdict, error) {
	processed := r.textProcessor.ProcessBody(text, r.maxBodySize)

	req := openai.ChatCompletionRequest{
		Model: r.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an email sorting assistant. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(r.promptFormat, prompt, processed),
			},
		},
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
		TopP:        r.topP,
	}
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	judged, err := parseJudgeResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Reasoner verdict",
		zap.Bool("is_match", judged.IsMatch),
		zap.Float64("confidence", judged.Confidence),
		zap.String("reason", judged.Reason))

	return &core.Verdict{
		IsMatch:    judged.IsMatch,
		Confidence: judged.Confidence,
	}, nil
}

// parseJudgeResponse decodes the model output, tolerating prose around the
// JSON object
func parseJudgeResponse(responseText string) (*judgeResponse, error) {
	var judged judgeResponse
	if err := json.Unmarshal([]byte(responseText), &judged); err == nil {
		return &judged, nil
	}

	// Extract the outermost JSON object from the text response
	jsonStart := -1
	jsonEnd := -1
	for i := 0; i < len(responseText); i++ {
		if responseText[i] == '{' {
			jsonStart = i
			break
		}
	}
	for i := len(responseText) - 1; i >= 0; i-- {
		if responseText[i] == '}' {
			jsonEnd = i + 1
			break
		}
	}

	if jsonStart < 0 || jsonStart >= jsonEnd {
		return nil, fmt.Errorf("failed to extract JSON from model response")
	}

	if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), &judged); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return &judged, nil
}
