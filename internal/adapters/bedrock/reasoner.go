package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
	"github.com/mikey/llm-mail-sorter/internal/utils"
)

// Reasoner is an implementation of the core.Reasoner interface using Amazon
// Bedrock
type Reasoner struct {
	client        *bedrockruntime.Client
	modelID       string
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

// NewReasoner creates a new Bedrock reasoner
func NewReasoner(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Reasoner {
	return &Reasoner{
		client:        client,
		modelID:       modelID,
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
	fullPrompt := fmt.Sprintf(r.promptFormat, prompt, processed)

	var payload []byte
	var err error

	if r.isAnthropicModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               fullPrompt,
			"max_tokens_to_sample": r.maxTokens,
			"temperature":          r.temperature,
			"top_p":                r.topP,
		})
	} else if r.isAmazonTitanModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": fullPrompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": r.maxTokens,
				"temperature":   r.temperature,
				"topP":          r.topP,
			},
		})
	} else {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      fullPrompt,
			"max_tokens":  r.maxTokens,
			"temperature": r.temperature,
			"top_p":       r.topP,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := r.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &r.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	responseText, err := r.extractResponseText(resp.Body)
	if err != nil {
		return nil, err
	}

	judged, err := parseJudgeResponse(responseText)
	if err != nil {
		return nil, err
	}

	return &core.Verdict{
		IsMatch:    judged.IsMatch,
		Confidence: judged.Confidence,
	}, nil
}

// extractResponseText pulls the generated text out of the model-specific
// response envelope
func (r *Reasoner) extractResponseText(body []byte) (string, error) {
	if r.isAnthropicModel() {
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	}

	if r.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	}

	var genericResp struct {
		Output   string `json:"output"`
		Text     string `json:"text"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &genericResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
	}
	switch {
	case genericResp.Output != "":
		return genericResp.Output, nil
	case genericResp.Text != "":
		return genericResp.Text, nil
	case genericResp.Response != "":
		return genericResp.Response, nil
	}
	return string(body), nil
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

// isAnthropicModel checks if the model is an Anthropic Claude model
func (r *Reasoner) isAnthropicModel() bool {
	return strings.HasPrefix(r.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (r *Reasoner) isAmazonTitanModel() bool {
	return strings.HasPrefix(r.modelID, "amazon.titan")
}
