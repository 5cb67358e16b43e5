package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://discord.com/api/v10"

// ErrNoChannel is returned when a community has no leaderboard channel.
var ErrNoChannel = errors.New("no leaderboard channel configured")

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord API error: status %d: %s (code %d)", e.Status, e.Message, e.Code)
}

// Client talks to the Discord REST API as a bot. It serves as both the
// member gateway (DMs and kicks) and the leaderboard display (channel
// messages). Communities are guild ids.
type Client struct {
	token      string
	baseURL    string
	channels   map[string]string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		if u != "" {
			cl.baseURL = u
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables
// the limit.
func WithRateLimit(perSecond float64) Option {
	return func(cl *Client) {
		if perSecond <= 0 {
			cl.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		cl.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient returns a client for token. channels maps community id to the
// channel the leaderboard is posted in.
func NewClient(token string, channels map[string]string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		channels:   channels,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the bot token is set.
func (c *Client) Configured() bool {
	return c.token != ""
}

type dmChannel struct {
	ID string `json:"id"`
}

type message struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
}

// Notify sends text to memberID as a direct message.
func (c *Client) Notify(ctx context.Context, memberID, text string) error {
	var ch dmChannel
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", nil, map[string]string{"recipient_id": memberID}, &ch); err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if err := c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(ch.ID)+"/messages", nil, message{Content: text}, nil); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

// Remove kicks memberID from the community guild. The reason shows up in
// the guild's audit log.
func (c *Client) Remove(ctx context.Context, community, memberID, reason string) error {
	if community == "" {
		return fmt.Errorf("remove member %s: unknown community", memberID)
	}
	header := http.Header{}
	if reason != "" {
		header.Set("X-Audit-Log-Reason", url.QueryEscape(reason))
	}
	path := "/guilds/" + url.PathEscape(community) + "/members/" + url.PathEscape(memberID)
	if err := c.do(ctx, http.MethodDelete, path, header, nil, nil); err != nil {
		return fmt.Errorf("kick member: %w", err)
	}
	return nil
}

// Publish posts content to the community's leaderboard channel and returns
// the new message id.
func (c *Client) Publish(ctx context.Context, community, content string) (string, error) {
	channel, ok := c.channels[community]
	if !ok || channel == "" {
		return "", fmt.Errorf("publish to %s: %w", community, ErrNoChannel)
	}
	var msg message
	if err := c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channel)+"/messages", nil, message{Content: content}, &msg); err != nil {
		return "", fmt.Errorf("post leaderboard: %w", err)
	}
	return msg.ID, nil
}

// Update edits a leaderboard message posted earlier by Publish.
func (c *Client) Update(ctx context.Context, community, handle, content string) error {
	channel, ok := c.channels[community]
	if !ok || channel == "" {
		return fmt.Errorf("update in %s: %w", community, ErrNoChannel)
	}
	path := "/channels/" + url.PathEscape(channel) + "/messages/" + url.PathEscape(handle)
	if err := c.do(ctx, http.MethodPatch, path, nil, message{Content: content}, nil); err != nil {
		return fmt.Errorf("edit leaderboard: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	if !c.Configured() {
		return fmt.Errorf("discord client not configured: missing bot token")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
