package serpapi

import (
	"fmt"
	"net/http"
)

type Engine string

const (
	// EngineAIOverview is the regular Google engine; the AI Overview
	// block arrives inside the SERP payload.
	EngineAIOverview Engine = "google"
	// EngineAIMode is Google's conversational search surface.
	EngineAIMode Engine = "google_ai_mode"
)

// SearchRequest carries one keyword query with its localization
// parameters.
type SearchRequest struct {
	Engine       Engine
	Query        string
	GL           string
	HL           string
	GoogleDomain string
}

// SearchResponse is the raw provider payload. Parsing the JSON is the
// caller's job.
type SearchResponse struct {
	StatusCode int
	Headers    http.Header
	RawBody    []byte
}

// APIError is a non-200 answer from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("serpapi status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is a transient condition worth
// another attempt. Everything else in the 4xx range fails fast.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
