package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const PROVIDER_OPENAI = "openai"
const PROVIDER_ANTHROPIC = "anthropic"
const PROVIDER_GEMINI = "gemini"
const PROVIDER_PERPLEXITY = "perplexity"

const DEFAULT_TIMEOUT = 120 * time.Second

// Transport failures are retried this many extra times; HTTP error
// statuses are never retried here.
const TRANSPORT_RETRIES = 2

// QueryResult is the uniform answer shape across providers.
type QueryResult struct {
	Success        bool     `json:"success"`
	Content        string   `json:"content"`
	Sources        []string `json:"sources,omitempty"` // cited URLs, order preserved
	Tokens         int      `json:"tokens"`
	CostUSD        float64  `json:"cost_usd"`
	ResponseTimeMS int64    `json:"response_time_ms"`
	ModelUsed      string   `json:"model_used"`
	Error          string   `json:"error,omitempty"`
}

// Provider is the capability set every chat/completion backend exposes.
type Provider interface {
	Name() string
	ModelDisplayName() string
	ExecuteQuery(ctx context.Context, prompt string) (*QueryResult, error)
	TestConnection(ctx context.Context) bool
}

// Keys holds the per-provider API keys found in the environment. An
// empty key disables the provider for the cycle.
type Keys struct {
	OpenAI     string
	Anthropic  string
	Google     string
	Perplexity string
}

// Registry is the set of providers enabled at startup.
type Registry struct {
	providers []Provider
}

func NewRegistry(keys Keys) *Registry {
	registry := &Registry{}
	if keys.OpenAI != "" {
		registry.providers = append(registry.providers, NewOpenAIProvider(keys.OpenAI))
	}
	if keys.Anthropic != "" {
		registry.providers = append(registry.providers, NewAnthropicProvider(keys.Anthropic))
	}
	if keys.Google != "" {
		registry.providers = append(registry.providers, NewGeminiProvider(keys.Google))
	}
	if keys.Perplexity != "" {
		registry.providers = append(registry.providers, NewPerplexityProvider(keys.Perplexity))
	}
	return registry
}

// Register adds a provider directly, bypassing key detection.
func (r *Registry) Register(provider Provider) {
	r.providers = append(r.providers, provider)
}

func (r *Registry) Providers() []Provider {
	return r.providers
}

func (r *Registry) Get(name string) Provider {
	for _, provider := range r.providers {
		if provider.Name() == name {
			return provider
		}
	}
	return nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for _, provider := range r.providers {
		names = append(names, provider.Name())
	}
	return names
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DEFAULT_TIMEOUT}
}

// postJSON sends one JSON request, retrying transport errors only. The
// HTTP status is returned as-is; interpreting 4xx/5xx is the caller's
// concern and those are never retried.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body interface{}) (int, []byte, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= TRANSPORT_RETRIES; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return 0, nil, err
			}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return 0, nil, err
		}
		return resp.StatusCode, respBody, nil
	}
	return 0, nil, fmt.Errorf("request failed after %d attempts: %w", TRANSPORT_RETRIES+1, lastErr)
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\)\]\}]+`)

// extractURLs pulls cited links out of a plain-text answer for
// providers that do not return structured citations.
func extractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	var urls []string
	for _, match := range matches {
		urls = append(urls, strings.TrimRight(match, ".,;:!?"))
	}
	return urls
}

// costUSD converts token usage to dollars using per-million-token
// prices.
func costUSD(inputTokens, outputTokens int, inputPerMTok, outputPerMTok float64) float64 {
	return float64(inputTokens)/1e6*inputPerMTok + float64(outputTokens)/1e6*outputPerMTok
}

func unmarshalResponse(body []byte, v interface{}) error {
	return json.Unmarshal(body, v)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
