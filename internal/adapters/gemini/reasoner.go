package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

// Reasoner is an implementation of the core.Reasoner interface using Google
// Gemini
type Reasoner struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
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

// NewReasoner creates a new Gemini reasoner
func NewReasoner(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*Reasoner, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &Reasoner{
		client:        client,
		model:         model,
		modelName:     modelName,
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
	}, nil
}

// Close closes the Gemini client
func (r *Reasoner) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Judge evaluates message text against a rule's natural-language instruction
func (r *Reasoner) Judge(ctx context.Context, text string, prompt string) (*core.Verdict, error) {
	processed := r.textProcessor.ProcessBody(text, r.maxBodySize)

	resp, err := r.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(r.promptFormat, prompt, processed)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	judged, err := parseJudgeResponse(responseText)
	if err != nil {
		return nil, err
	}

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

	jsonStart := strings.IndexByte(responseText, '{')
	jsonEnd := strings.LastIndexByte(responseText, '}')
	if jsonStart < 0 || jsonEnd < jsonStart {
		return nil, fmt.Errorf("failed to extract JSON from model response")
	}

	if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd+1]), &judged); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return &judged, nil
}
