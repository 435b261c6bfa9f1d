// Package cloudai implements the cloud-backed inference provider: a remote
// HTTP generation API with credential handling and bounded retry.
package cloudai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/taskpilot/taskpilot/src/aicore"
)

var _ aicore.Provider = (*Client)(nil)

// Client is the cloud inference provider.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	initialized bool
	authFailed  bool
	lastErr     string
	failures    []time.Time
}

// NewClient creates a cloud provider from config. The provider is not ready
// until Initialize succeeds.
func NewClient(config Config) *Client {
	config.applyDefaults()
	return &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     config.Logger.With("component", "cloud_provider"),
	}
}

// generateRequest is the remote API's request shape.
type generateRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// generateResponse is the remote API's response shape.
type generateResponse struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Text  string `json:"text"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Initialize validates that credentials are configured. Idempotent.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if c.config.APIKey == "" {
		c.lastErr = "no API key configured"
		return aicore.NewError(aicore.KindAuth, "cloud provider has no API key configured",
			"Add a cloud API key in settings before using the cloud model.")
	}
	c.initialized = true
	c.lastErr = ""
	return nil
}

// Cleanup closes idle connections. The client stays constructible for a
// later re-Initialize.
func (c *Client) Cleanup(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	c.mu.Lock()
	c.initialized = false
	c.failures = nil
	c.mu.Unlock()
	return nil
}

// IsReady reports whether credentials are configured and no terminal auth
// failure has occurred.
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized && !c.authFailed
}

// Status reports the structured provider state. Repeated transient failures
// within the rolling window degrade the state; terminal auth failure makes
// the provider unavailable.
func (c *Client) Status() aicore.ProviderStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := aicore.ProviderStatus{Model: c.config.Model}
	switch {
	case c.authFailed:
		status.State = aicore.StateUnavailable
		status.Message = "authentication failed: " + c.lastErr
	case !c.initialized:
		status.State = aicore.StateUninitialized
		status.Message = c.lastErr
	case c.recentFailuresLocked() >= degradedThreshold:
		status.State = aicore.StateDegraded
		status.Message = fmt.Sprintf("%d transient failures in the last %s", c.recentFailuresLocked(), degradedWindow)
	default:
		status.State = aicore.StateReady
	}
	return status
}

// Capabilities declares what this provider supports.
func (c *Client) Capabilities() []string {
	return []string{aicore.CapabilityToolCalling}
}

// ModelType marks this as the cloud backend.
func (c *Client) ModelType() aicore.ModelType {
	return aicore.ModelTypeCloud
}

// ValidatePrompt applies the shared prompt rules.
func (c *Client) ValidatePrompt(prompt string) error {
	return aicore.ValidatePromptText(prompt, aicore.MaxPromptBytes)
}

// Generate calls the remote completion endpoint with bounded retry on
// transient failures.
func (c *Client) Generate(ctx context.Context, prompt string, opts *aicore.GenerateOptions) (*aicore.GenerateResult, error) {
	if !c.IsReady() {
		return nil, aicore.NewError(aicore.KindProviderUnavailable,
			"cloud provider is not initialized", "The cloud model is not ready. Switch providers or check settings.")
	}
	if err := c.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &aicore.GenerateOptions{}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:       c.config.Model,
		Prompt:      prompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, aicore.WrapError(aicore.KindInternal, "failed to marshal request",
			"Something went wrong. Try again.", err)
	}

	logger := c.logger.With("method", "Generate", "model", c.config.Model)
	logger.Debug("sending generate request")

	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		c.noteFailure(err)
		return nil, err
	}

	c.noteSuccess()
	result := &aicore.GenerateResult{
		Text:       resp.Text,
		TokenCount: resp.Usage.TotalTokens,
		Model:      resp.Model,
	}
	if calls, ok := aicore.ParseToolCalls(resp.Text); ok {
		result.ToolCalls = calls
	}
	logger.Info("generate successful", "tokens", result.TokenCount)
	return result, nil
}

// doWithRetry performs the HTTP exchange, retrying only transient failures
// with exponential backoff and honoring Retry-After on rate limits.
func (c *Client) doWithRetry(ctx context.Context, body []byte) (*generateResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= c.config.RetryCount; attempt++ {
		resp, err := c.doOnce(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, c.mapContextError(ctx.Err())
		}

		aiErr := aicore.AsAIError(err)
		if !aiErr.Retryable() && aiErr.Kind != aicore.KindProviderUnavailable {
			return nil, err
		}
		if attempt == c.config.RetryCount {
			break
		}

		delay := c.retryDelay(attempt, err)
		c.logger.Debug("transient failure, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, c.mapContextError(ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, body []byte) (*generateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return nil, aicore.WrapError(aicore.KindInternal, "failed to create request",
			"Something went wrong. Try again.", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.mapContextError(ctx.Err())
		}
		return nil, aicore.WrapError(aicore.KindProviderUnavailable, "request failed: "+err.Error(),
			"Could not reach the cloud service. Check your connection.", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		apiErr := c.handleError(httpResp)
		if apiErr.IsAuthError() {
			c.noteAuthFailure(apiErr)
		}
		return nil, apiErr.toAIError()
	}

	var result generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&result); err != nil {
		return nil, aicore.WrapError(aicore.KindInternal, "failed to decode response",
			"The cloud service returned an unreadable response.", err)
	}
	return &result, nil
}

// handleError parses a non-200 response into an APIError.
func (c *Client) handleError(resp *http.Response) *APIError {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to read error response"}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			RequestID:  resp.Header.Get("X-Request-ID"),
		}
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Type:       errResp.Error.Type,
		Message:    errResp.Error.Message,
		Code:       errResp.Error.Code,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return apiErr
}

// retryDelay doubles the base delay each attempt, capped, unless the server
// sent an explicit Retry-After.
func (c *Client) retryDelay(attempt int, err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	delay := c.config.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > c.config.MaxRetryDelay {
		delay = c.config.MaxRetryDelay
	}
	return delay
}

func (c *Client) mapContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return aicore.WrapError(aicore.KindTimeout, "generate exceeded deadline",
			"The cloud model took too long to respond. Try again.", err)
	}
	return err
}

func (c *Client) noteFailure(err error) {
	aiErr := aicore.AsAIError(err)
	if !aiErr.Retryable() && aiErr.Kind != aicore.KindProviderUnavailable {
		return
	}
	c.mu.Lock()
	c.failures = append(c.failures, time.Now())
	c.lastErr = err.Error()
	c.mu.Unlock()
}

func (c *Client) noteSuccess() {
	c.mu.Lock()
	c.failures = nil
	c.lastErr = ""
	c.mu.Unlock()
}

func (c *Client) noteAuthFailure(apiErr *APIError) {
	c.mu.Lock()
	c.authFailed = true
	c.lastErr = apiErr.Error()
	c.mu.Unlock()
}

// recentFailuresLocked counts transient failures inside the rolling window.
// Caller holds c.mu.
func (c *Client) recentFailuresLocked() int {
	cutoff := time.Now().Add(-degradedWindow)
	count := 0
	for _, at := range c.failures {
		if at.After(cutoff) {
			count++
		}
	}
	return count
}
