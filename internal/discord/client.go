// Package discord publishes triage decisions to a Discord channel and turns
// button clicks and modal submissions back into decision records.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Discord REST API root.
const DefaultBaseURL = "https://discord.com/api/v10"

const (
	requestTimeout = 10 * time.Second
	maxRetries     = 4
	retryMaxWait   = 30 * time.Second
)

// ClientConfig configures a REST client.
type ClientConfig struct {
	Token             string
	BaseURL           string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client is a minimal Discord REST client for bot messages and webhooks.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a REST client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		http:    cfg.HTTPClient,
		log:     cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: requestTimeout}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return c
}

// StatusError is a non-2xx reply from Discord.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord: HTTP %d: %s", e.Status, e.Body)
}

// retryable reports whether a failed call is worth repeating.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	return true
}

// CreateMessage posts a bot message to a channel.
func (c *Client) CreateMessage(ctx context.Context, channelID string, msg Message) (*MessageRef, error) {
	var ref MessageRef
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/channels/"+channelID+"/messages", true, msg, &ref); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &ref, nil
}

// EditMessage replaces a message's embeds and components. Empty components
// remove the buttons.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, embeds []Embed, components []Component) error {
	if components == nil {
		components = []Component{}
	}
	body := messageEdit{Embeds: embeds, Components: components}
	if err := c.do(ctx, http.MethodPatch, c.baseURL+"/channels/"+channelID+"/messages/"+messageID, true, body, nil); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// ExecuteWebhook posts a message through an incoming webhook URL.
func (c *Client) ExecuteWebhook(ctx context.Context, webhookURL string, msg Message) error {
	if err := c.do(ctx, http.MethodPost, webhookURL, false, msg, nil); err != nil {
		return fmt.Errorf("execute webhook: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, auth bool, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxWait

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := c.send(ctx, method, url, auth, payload, out)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn("discord request failed, retrying", "method", method, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

func (c *Client) send(ctx context.Context, method, url string, auth bool, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "triagegate (https://github.com/lucasnoah/triagegate, 1.0)")
	if auth {
		req.Header.Set("Authorization", "Bot "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
