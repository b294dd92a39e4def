package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const PERPLEXITY_API_URL = "https://api.perplexity.ai/chat/completions"
const PERPLEXITY_MODEL = "sonar"
const PERPLEXITY_MAX_TOKENS = 2000

// Prices per million tokens
const PERPLEXITY_INPUT_PER_MTOK = 1.0
const PERPLEXITY_OUTPUT_PER_MTOK = 1.0

// PerplexityProvider is the web-search-grounded variant: answers come
// with structured citations.
type PerplexityProvider struct {
	apiKey string
	client *http.Client
	model  string
}

type perplexityRequest struct {
	Model     string              `json:"model"`
	Messages  []perplexityMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Usage     struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewPerplexityProvider(apiKey string) *PerplexityProvider {
	return &PerplexityProvider{
		apiKey: apiKey,
		client: newHTTPClient(),
		model:  PERPLEXITY_MODEL,
	}
}

func (p *PerplexityProvider) Name() string {
	return PROVIDER_PERPLEXITY
}

func (p *PerplexityProvider) ModelDisplayName() string {
	return "Perplexity " + p.model
}

func (p *PerplexityProvider) ExecuteQuery(ctx context.Context, prompt string) (*QueryResult, error) {
	start := time.Now()
	request := perplexityRequest{
		Model:     p.model,
		Messages:  []perplexityMessage{{Role: "user", Content: prompt}},
		MaxTokens: PERPLEXITY_MAX_TOKENS,
	}

	status, body, err := postJSON(ctx, p.client, PERPLEXITY_API_URL, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}, request)
	if err != nil {
		return nil, fmt.Errorf("perplexity request error: %w", err)
	}

	var response perplexityResponse
	if err := unmarshalResponse(body, &response); err != nil {
		return nil, fmt.Errorf("perplexity unmarshal error: %w, body: %s", err, string(body))
	}
	if status != 200 {
		message := string(body)
		if response.Error != nil {
			message = response.Error.Message
		}
		return nil, fmt.Errorf("perplexity status %d: %s", status, message)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("perplexity returned no choices")
	}

	content := response.Choices[0].Message.Content
	sources := response.Citations
	if len(sources) == 0 {
		sources = extractURLs(content)
	}
	modelUsed := response.Model
	if modelUsed == "" {
		modelUsed = p.model
	}

	return &QueryResult{
		Success:        true,
		Content:        content,
		Sources:        sources,
		Tokens:         response.Usage.TotalTokens,
		CostUSD:        costUSD(response.Usage.PromptTokens, response.Usage.CompletionTokens, PERPLEXITY_INPUT_PER_MTOK, PERPLEXITY_OUTPUT_PER_MTOK),
		ResponseTimeMS: elapsedMS(start),
		ModelUsed:      modelUsed,
	}, nil
}

func (p *PerplexityProvider) TestConnection(ctx context.Context) bool {
	result, err := p.ExecuteQuery(ctx, "ping")
	return err == nil && result.Success
}
