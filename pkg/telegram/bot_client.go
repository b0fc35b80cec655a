package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second
)

var (
	ErrNotConfigured = errors.New("telegram bot token is empty")
	errNoChat        = errors.New("telegram chat id is required")
	errEmptyMessage  = errors.New("telegram message is empty")
)

// Legacy Markdown treats only these four characters as markup.
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// APIError is a rejection reported by the Bot API itself.
type APIError struct {
	Method     string
	StatusCode int
	Reason     string
	// RetryAfter is set when the bot is being flood limited.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %s (retry after %s)", e.Method, e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %s", e.Method, e.Reason)
}

// BotClient posts operator notifications through the Bot API.
type BotClient struct {
	token   string
	baseURL string
	http    *http.Client
}

func NewBotClient(token string, httpClient *http.Client) *BotClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &BotClient{
		token:   strings.TrimSpace(token),
		baseURL: defaultAPIBase,
		http:    httpClient,
	}
}

// WithBaseURL points the client at a stand-in API server.
func (c *BotClient) WithBaseURL(base string) *BotClient {
	c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	return c
}

func (c *BotClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.sendMessage(ctx, chatID, text, "")
}

func (c *BotClient) SendMarkdown(ctx context.Context, chatID int64, md string) error {
	return c.sendMessage(ctx, chatID, md, "Markdown")
}

// EscapeMarkdown makes player-supplied text safe inside a Markdown message.
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

func (c *BotClient) sendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	if chatID == 0 {
		return errNoChat
	}
	if strings.TrimSpace(text) == "" {
		return errEmptyMessage
	}
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               parseMode,
		"disable_web_page_preview": true,
	})
}

type apiReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *BotClient) call(ctx context.Context, method string, payload any) error {
	if c == nil || c.token == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	endpoint := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, withoutURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, withoutURL(err))
	}
	defer resp.Body.Close()

	var reply apiReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("telegram %s: decode reply (status %d): %w", method, resp.StatusCode, err)
	}
	if reply.OK && resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiErr := &APIError{
		Method:     method,
		StatusCode: resp.StatusCode,
		Reason:     reply.Description,
		RetryAfter: time.Duration(reply.Parameters.RetryAfter) * time.Second,
	}
	if apiErr.Reason == "" {
		apiErr.Reason = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// withoutURL drops the request URL from err. The URL carries the bot token.
func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
