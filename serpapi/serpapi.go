package serpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const DEFAULT_BASE_URL = "https://serpapi.com/search.json"
const DEFAULT_ATTEMPT_TIMEOUT = 60 * time.Second

// Policy describes the retry schedule. Tests inject one with zero
// delays and a recording Sleep so nothing actually sleeps.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay, 0..1
	Sleep       func(time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
		Sleep:       time.Sleep,
	}
}

// Delay returns the backoff before attempt n (1-based; attempt 1 has no
// delay). Exponential with a small random jitter.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := p.BaseDelay << uint(attempt-2)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}
	return delay
}

type Client struct {
	apiKey         string
	baseUrl        string
	httpClient     *http.Client
	policy         Policy
	attemptTimeout time.Duration
}

func NewClient(apiKey string, baseUrl string, policy Policy) *Client {
	if baseUrl == "" {
		baseUrl = DEFAULT_BASE_URL
	}
	if policy.MaxAttempts == 0 {
		policy = DefaultPolicy()
	}
	if policy.Sleep == nil {
		policy.Sleep = time.Sleep
	}
	return &Client{
		apiKey:         apiKey,
		baseUrl:        baseUrl,
		httpClient:     &http.Client{},
		policy:         policy,
		attemptTimeout: DEFAULT_ATTEMPT_TIMEOUT,
	}
}

// Search runs one keyword query against the selected engine, retrying
// transient failures per the policy. Returns the raw JSON body.
func (c *Client) Search(ctx context.Context, request SearchRequest) (*SearchResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if delay := c.policy.Delay(attempt); delay > 0 {
			c.policy.Sleep(delay)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		response, err := c.doAttempt(ctx, request)
		if err == nil {
			return response, nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("serpapi search failed after %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

func (c *Client) doAttempt(ctx context.Context, request SearchRequest) (*SearchResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, "GET", c.baseUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("error create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("engine", string(request.Engine))
	q.Add("q", request.Query)
	q.Add("api_key", c.apiKey)
	if request.GL != "" {
		q.Add("gl", request.GL)
	}
	if request.HL != "" {
		q.Add("hl", request.HL)
	}
	if request.GoogleDomain != "" {
		q.Add("google_domain", request.GoogleDomain)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error read response: %w", err)
	}

	if resp.StatusCode != 200 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	return &SearchResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		RawBody:    bodyBytes,
	}, nil
}
