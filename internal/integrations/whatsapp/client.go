// Package whatsapp sends replies through the WhatsApp Cloud API.
package whatsapp

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
	"unicode/utf8"

	"golang.org/x/time/rate"

	"metro-assistant/internal/integrations/paramstore"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v18.0"
	maxButtons        = 3
	maxListRows       = 10
	maxButtonTitle    = 20
	maxRowTitle       = 24
	maxInteractive    = 1024
	listButtonLabel   = "Options"
	tokenTimeout      = 5 * time.Second
)

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx Graph API responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("whatsapp: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts messages for one business phone number. The access token is
// read from SSM on first send; only a successful lookup is cached.
type Client struct {
	baseURL     string
	apiVersion  string
	phoneID     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	limiter     *rate.Limiter

	tokenMu sync.Mutex
	token   string
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

func WithAPIVersion(v string) Option {
	return func(c *Client) {
		c.apiVersion = strings.Trim(strings.TrimSpace(v), "/")
	}
}

// WithSendRate paces outbound requests to rps per second. A non-positive
// rate disables pacing.
func WithSendRate(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a Client sending from phoneID.
func NewClient(ps Getter, paramPrefix, phoneID string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("whatsapp: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("whatsapp: parameter prefix must not be empty")
	}
	phoneID = strings.TrimSpace(phoneID)
	if phoneID == "" {
		return nil, errors.New("whatsapp: phone number id must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		apiVersion:  defaultAPIVersion,
		phoneID:     phoneID,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
		limiter:     rate.NewLimiter(rate.Limit(20), 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveToken fetches the access token under its own deadline so a send
// that gives up early does not fail the lookup for later sends.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenTimeout)
	defer cancel()
	token, err := paramstore.FetchToken(ctx, c.getter, paramstore.Name(c.paramPrefix, "whatsapp-token"))
	if err != nil {
		return "", fmt.Errorf("whatsapp: %w", err)
	}
	c.token = token
	return token, nil
}

func (c *Client) messagesURL() string {
	base := strings.TrimRight(c.baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return fmt.Sprintf("%s/%s/%s/messages", base, c.apiVersion, c.phoneID)
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	return c.send(ctx, outbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

// SendOptions sends text with selectable options. Up to three options become
// reply buttons; more become a list. Option ids are qr_0, qr_1, ...
func (c *Client) SendOptions(ctx context.Context, to, text string, options []string) error {
	if len(options) == 0 {
		return c.SendText(ctx, to, text)
	}
	return c.send(ctx, outbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      buildInteractive(text, options),
	})
}

func buildInteractive(text string, options []string) *interactive {
	in := &interactive{Body: textRef{Text: truncate(text, maxInteractive)}}
	if len(options) <= maxButtons {
		in.Type = "button"
		for i, opt := range options {
			in.Action.Buttons = append(in.Action.Buttons, button{
				Type:  "reply",
				Reply: replyRef{ID: optionID(i), Title: truncate(opt, maxButtonTitle)},
			})
		}
		return in
	}

	in.Type = "list"
	in.Action.Button = listButtonLabel
	sec := section{Title: listButtonLabel}
	for i, opt := range options {
		if i == maxListRows {
			break
		}
		sec.Rows = append(sec.Rows, row{ID: optionID(i), Title: truncate(opt, maxRowTitle)})
	}
	in.Action.Sections = []section{sec}
	return in
}

func optionID(i int) string { return fmt.Sprintf("qr_%d", i) }

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}

func (c *Client) send(ctx context.Context, msg outbound) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("whatsapp: recipient must not be empty")
	}
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("whatsapp: rate limit wait: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal message: %w", err)
	}
	url := c.messagesURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("whatsapp: request failed: %w", &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		})
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}
