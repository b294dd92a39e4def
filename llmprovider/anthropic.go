package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const ANTHROPIC_API_URL = "https://api.anthropic.com/v1/messages"
const ANTHROPIC_VERSION = "2023-06-01"
const ANTHROPIC_MODEL = "claude-sonnet-4-0"
const ANTHROPIC_MAX_TOKENS = 2000

// Prices per million tokens
const ANTHROPIC_INPUT_PER_MTOK = 3.0
const ANTHROPIC_OUTPUT_PER_MTOK = 15.0

type AnthropicProvider struct {
	apiKey string
	client *http.Client
	model  string
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey: apiKey,
		client: newHTTPClient(),
		model:  ANTHROPIC_MODEL,
	}
}

func (p *AnthropicProvider) Name() string {
	return PROVIDER_ANTHROPIC
}

func (p *AnthropicProvider) ModelDisplayName() string {
	return "Anthropic " + p.model
}

func (p *AnthropicProvider) ExecuteQuery(ctx context.Context, prompt string) (*QueryResult, error) {
	start := time.Now()
	request := anthropicRequest{
		Model:     p.model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: ANTHROPIC_MAX_TOKENS,
	}

	status, body, err := postJSON(ctx, p.client, ANTHROPIC_API_URL, map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": ANTHROPIC_VERSION,
	}, request)
	if err != nil {
		return nil, fmt.Errorf("anthropic request error: %w", err)
	}

	var response anthropicResponse
	if err := unmarshalResponse(body, &response); err != nil {
		return nil, fmt.Errorf("anthropic unmarshal error: %w, body: %s", err, string(body))
	}
	if status != 200 {
		message := string(body)
		if response.Error != nil {
			message = response.Error.Message
		}
		return nil, fmt.Errorf("anthropic status %d: %s", status, message)
	}

	content := ""
	for _, block := range response.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	totalTokens := response.Usage.InputTokens + response.Usage.OutputTokens

	return &QueryResult{
		Success:        true,
		Content:        content,
		Sources:        extractURLs(content),
		Tokens:         totalTokens,
		CostUSD:        costUSD(response.Usage.InputTokens, response.Usage.OutputTokens, ANTHROPIC_INPUT_PER_MTOK, ANTHROPIC_OUTPUT_PER_MTOK),
		ResponseTimeMS: elapsedMS(start),
		ModelUsed:      response.Model,
	}, nil
}

func (p *AnthropicProvider) TestConnection(ctx context.Context) bool {
	result, err := p.ExecuteQuery(ctx, "ping")
	return err == nil && result.Success
}
