package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const OPENAI_API_URL = "https://api.openai.com/v1/chat/completions"
const OPENAI_MODEL = "gpt-4o-mini"
const OPENAI_MAX_TOKENS = 2000

// Prices per million tokens
const OPENAI_INPUT_PER_MTOK = 0.15
const OPENAI_OUTPUT_PER_MTOK = 0.60

type OpenAIProvider struct {
	apiKey string
	client *http.Client
	model  string
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey: apiKey,
		client: newHTTPClient(),
		model:  OPENAI_MODEL,
	}
}

func (p *OpenAIProvider) Name() string {
	return PROVIDER_OPENAI
}

func (p *OpenAIProvider) ModelDisplayName() string {
	return "OpenAI " + p.model
}

func (p *OpenAIProvider) ExecuteQuery(ctx context.Context, prompt string) (*QueryResult, error) {
	start := time.Now()
	request := openAIRequest{
		Model:     p.model,
		Messages:  []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens: OPENAI_MAX_TOKENS,
	}

	status, body, err := postJSON(ctx, p.client, OPENAI_API_URL, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}, request)
	if err != nil {
		return nil, fmt.Errorf("openai request error: %w", err)
	}

	var response openAIResponse
	if err := unmarshalResponse(body, &response); err != nil {
		return nil, fmt.Errorf("openai unmarshal error: %w, body: %s", err, string(body))
	}
	if status != 200 {
		message := string(body)
		if response.Error != nil {
			message = response.Error.Message
		}
		return nil, fmt.Errorf("openai status %d: %s", status, message)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	content := response.Choices[0].Message.Content
	return &QueryResult{
		Success:        true,
		Content:        content,
		Sources:        extractURLs(content),
		Tokens:         response.Usage.TotalTokens,
		CostUSD:        costUSD(response.Usage.PromptTokens, response.Usage.CompletionTokens, OPENAI_INPUT_PER_MTOK, OPENAI_OUTPUT_PER_MTOK),
		ResponseTimeMS: elapsedMS(start),
		ModelUsed:      response.Model,
	}, nil
}

func (p *OpenAIProvider) TestConnection(ctx context.Context) bool {
	result, err := p.ExecuteQuery(ctx, "ping")
	return err == nil && result.Success
}
