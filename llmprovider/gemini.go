package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const GEMINI_API_URL_TEMPLATE = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s"
const GEMINI_MODEL = "gemini-2.0-flash"

// Prices per million tokens
const GEMINI_INPUT_PER_MTOK = 0.10
const GEMINI_OUTPUT_PER_MTOK = 0.40

type GeminiProvider struct {
	apiKey string
	client *http.Client
	model  string
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		client: newHTTPClient(),
		model:  GEMINI_MODEL,
	}
}

func (p *GeminiProvider) Name() string {
	return PROVIDER_GEMINI
}

func (p *GeminiProvider) ModelDisplayName() string {
	return "Google " + p.model
}

func (p *GeminiProvider) ExecuteQuery(ctx context.Context, prompt string) (*QueryResult, error) {
	start := time.Now()
	request := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}

	url := fmt.Sprintf(GEMINI_API_URL_TEMPLATE, p.model, p.apiKey)
	status, body, err := postJSON(ctx, p.client, url, nil, request)
	if err != nil {
		return nil, fmt.Errorf("gemini request error: %w", err)
	}

	var response geminiResponse
	if err := unmarshalResponse(body, &response); err != nil {
		return nil, fmt.Errorf("gemini unmarshal error: %w, body: %s", err, string(body))
	}
	if response.Error != nil {
		return nil, fmt.Errorf("gemini api error: %s", response.Error.Message)
	}
	if status != 200 {
		return nil, fmt.Errorf("gemini status %d: %s", status, string(body))
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no content")
	}

	content := ""
	for _, part := range response.Candidates[0].Content.Parts {
		content += part.Text
	}
	modelUsed := response.ModelVersion
	if modelUsed == "" {
		modelUsed = p.model
	}

	return &QueryResult{
		Success:        true,
		Content:        content,
		Sources:        extractURLs(content),
		Tokens:         response.UsageMetadata.TotalTokenCount,
		CostUSD:        costUSD(response.UsageMetadata.PromptTokenCount, response.UsageMetadata.CandidatesTokenCount, GEMINI_INPUT_PER_MTOK, GEMINI_OUTPUT_PER_MTOK),
		ResponseTimeMS: elapsedMS(start),
		ModelUsed:      modelUsed,
	}, nil
}

func (p *GeminiProvider) TestConnection(ctx context.Context) bool {
	result, err := p.ExecuteQuery(ctx, "ping")
	return err == nil && result.Success
}
