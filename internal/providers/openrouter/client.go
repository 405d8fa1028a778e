// Package openrouter implements the chat-completions wire protocol shared by
// the vision and audio provider bindings. Analysis prompts demand JSON-only
// output; the decoder tolerates the usual model formatting quirks (code
// fences, leading prose) but nothing structurally wrong.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mivvo/internal/config"
	"mivvo/internal/services"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 90 * time.Second
	defaultRetryDelay  = 2 * time.Second
	defaultMaxAttempts = 3
	maxRetryAfterWait  = 30 * time.Second
)

// Client wraps one chat-completions endpoint with bounded retry.
type Client struct {
	cfg        config.Provider
	httpClient *http.Client

	maxAttempts int
	retryDelay  time.Duration
	sleeper     func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a client from one provider binding's configuration.
func NewClient(cfg config.Provider, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	// max_retries counts retries after the first attempt.
	attempts := defaultMaxAttempts
	if cfg.MaxRetries > 0 {
		attempts = cfg.MaxRetries + 1
	}
	delay := defaultRetryDelay
	if cfg.RetryDelaySeconds > 0 {
		delay = time.Duration(cfg.RetryDelaySeconds) * time.Second
	}

	client := &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: attempts,
		retryDelay:  delay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if strings.TrimSpace(client.cfg.BaseURL) == "" {
		client.cfg.BaseURL = "https://openrouter.ai/api/v1/chat/completions"
	}
	return client
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return strings.TrimSpace(c.cfg.Model)
}

// ContentPart is one element of a multimodal user message.
type ContentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	ImageURL   *ImageURL   `json:"image_url,omitempty"`
	InputAudio *InputAudio `json:"input_audio,omitempty"`
}

// ImageURL attaches an image, typically as a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// InputAudio attaches a base64-encoded audio clip.
type InputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part from a data URL.
func ImagePart(dataURL string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}}
}

// AudioPart builds an audio content part.
func AudioPart(base64Data, format string) ContentPart {
	return ContentPart{Type: "input_audio", InputAudio: &InputAudio{Data: base64Data, Format: format}}
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("provider request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// CompleteJSON sends one JSON-only completion request, retrying transient
// failures up to the binding cap with a fixed delay. It returns the raw JSON
// payload the model produced.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt string, parts []ContentPart) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "openrouter", "complete", "api key required", nil)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return "", errors.New("provider complete: system prompt required")
	}
	if len(parts) == 0 {
		return "", errors.New("provider complete: content parts required")
	}

	payload := chatRequest{
		Model: c.Model(),
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: parts},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		content, err := c.sendOnce(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err

		delay, retry := c.retryDecision(ctx, err, attempt)
		if !retry {
			return "", err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", services.Wrap(services.ErrTimeout, "openrouter", "complete", "cancelled during retry wait", err)
		}
	}
	return "", fmt.Errorf("provider complete: failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) sendOnce(ctx context.Context, payload chatRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("provider request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("provider request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		statusErr := &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
		return "", classifyStatusError(statusErr)
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", services.Wrap(services.ErrIncompleteResponse, "openrouter", "complete",
			fmt.Sprintf("undecodable response envelope: %s", summarizeSnippet(string(body))), err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrProviderUnavailable, "openrouter", "complete",
			"api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return "", services.Wrap(services.ErrIncompleteResponse, "openrouter", "complete",
				"model refused: "+refusal, nil)
		}
	}
	return "", services.Wrap(services.ErrTransient, "openrouter", "complete", "empty completion content", nil)
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "openrouter", "request", "deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "openrouter", "request", "network timeout", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "openrouter", "request", "request timeout", err)
	}
	return services.Wrap(services.ErrTransient, "openrouter", "request", "transport failure", err)
}

func classifyStatusError(statusErr *httpStatusError) error {
	switch {
	case statusErr.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrQuotaExceeded, "openrouter", "request", "", statusErr)
	case statusErr.StatusCode == http.StatusRequestTimeout:
		return services.Wrap(services.ErrTimeout, "openrouter", "request", "", statusErr)
	case statusErr.StatusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "openrouter", "request", "", statusErr)
	default:
		return services.Wrap(services.ErrProviderUnavailable, "openrouter", "request", "", statusErr)
	}
}

// retryDecision returns the wait before the next attempt. Malformed payloads
// and non-transient rejections are never retried against the same payload.
func (c *Client) retryDecision(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= c.maxAttempts {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	retryable := errors.Is(err, services.ErrTimeout) ||
		errors.Is(err, services.ErrQuotaExceeded) ||
		errors.Is(err, services.ErrTransient)
	if !retryable {
		return 0, false
	}

	delay := c.retryDelay
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > delay {
		delay = statusErr.RetryAfter
		if delay > maxRetryAfterWait {
			delay = maxRetryAfterWait
		}
	}
	return delay, true
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// DecodeJSON decodes a model-produced JSON payload, stripping code fences and
// surrounding prose before giving up.
func DecodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := sanitizePayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, summarizeSnippet(trimmed))
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, summarizeSnippet(sanitized))
	}
	return nil
}

func sanitizePayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	if start := strings.Index(trimmed, "["); start >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
		body = strings.TrimLeft(body, " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func summarizeSnippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := strings.Join(strings.Fields(replacer.Replace(trimmed)), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
