// Package openai is a focused client for the Chat Completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"metro-assistant/internal/integrations/paramstore"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	maxTokens      = 500
	temperature    = 0.7

	// settingsTimeout bounds the SSM lookups, which ignore the caller's deadline.
	settingsTimeout = 5 * time.Second
)

// ChatMessage is one entry of a chat completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int         `json:"index"`
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// MalformedResponseError reports a 2xx response that carried no usable answer.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("openai: malformed response: %s: %v", e.Reason, e.Err)
	}
	return "openai: malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Malformed marks the error for callers that classify failures by behavior.
func (e *MalformedResponseError) Malformed() bool { return true }

// Client answers metro questions through chat completions. The API token and
// model name are read from SSM on first use. Only a successful lookup is
// cached; a failed one is retried on the next call.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	model       string

	settingsMu sync.Mutex
	apiKey     string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithModel pins the model and skips the SSM lookup for it.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = strings.TrimSpace(model)
	}
}

// NewClient creates a Client backed by the given getter for token and model
// retrieval.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveSettings returns the cached token and model, fetching them when
// nothing is cached yet. The lookup outlives ctx so a caller that gives up
// early still leaves a cached result for the next one.
func (c *Client) resolveSettings(ctx context.Context) (apiKey, model string, err error) {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, c.model, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settingsTimeout)
	defer cancel()

	key, err := paramstore.FetchToken(ctx, c.getter, paramstore.Name(c.paramPrefix, "open-ai-token"))
	if err != nil {
		return "", "", fmt.Errorf("openai: %w", err)
	}
	model = c.model
	if model == "" {
		m, err := c.getter.GetParameter(ctx, paramstore.Name(c.paramPrefix, "config/openai_model"))
		if err != nil {
			return "", "", fmt.Errorf("openai: load model: %w", err)
		}
		model = strings.TrimSpace(m)
		if model == "" {
			return "", "", errors.New("openai: model must not be empty")
		}
	}
	c.apiKey, c.model = key, model
	return key, model, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// Complete asks the model to answer message using knowledgeContext.
func (c *Client) Complete(ctx context.Context, message, knowledgeContext string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("openai: message must not be empty")
	}
	return c.Chat(ctx, buildMessages(message, knowledgeContext))
}

// Chat sends messages and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	apiKey, model, err := c.resolveSettings(ctx)
	if err != nil {
		return "", err
	}

	temp := temperature
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", &MalformedResponseError{Reason: "decode response", Err: decErr}
	}
	if len(payload.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "no choices in response"}
	}
	answer := strings.TrimSpace(payload.Choices[0].Message.Content)
	if answer == "" {
		return "", &MalformedResponseError{Reason: "empty content"}
	}
	return answer, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
