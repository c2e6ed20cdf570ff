package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/relaygate-platform/relaygate/internal/config"
	"github.com/relaygate-platform/relaygate/internal/metrics"
)

// Sender is the outbound contract the dispatch engine depends on.
type Sender interface {
	SendText(ctx context.Context, to, body string) (*SendResponse, error)
	SendTemplate(ctx context.Context, to, name, languageCode string, components []json.RawMessage) (*SendResponse, error)
}

// TierSource exposes the account's messaging-limit tier.
type TierSource interface {
	MessagingTier(ctx context.Context) (string, error)
}

// Client talks to the WhatsApp Cloud API. All configuration is injected
// at construction; nothing is read from ambient state.
type Client struct {
	baseURL     string
	phoneID     string
	accessToken string
	httpClient  *http.Client
}

func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		phoneID:     cfg.PhoneID,
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	return c.send(ctx, envelope{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textPayload{Body: body},
	})
}

func (c *Client) SendTemplate(ctx context.Context, to, name, languageCode string, components []json.RawMessage) (*SendResponse, error) {
	if languageCode == "" {
		languageCode = "en_US"
	}
	return c.send(ctx, envelope{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: &templatePayload{
			Name:       name,
			Language:   language{Code: languageCode},
			Components: components,
		},
	})
}

func (c *Client) send(ctx context.Context, env envelope) (*SendResponse, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling send payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues("send").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	// 200 transport OK can still carry an error object in the body.
	var probe struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Error != nil {
		return nil, probe.Error
	}

	var out SendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding provider response: %w", err)
	}
	return &out, nil
}

// MessagingTier fetches the account's current unique-recipient tier name.
func (c *Client) MessagingTier(ctx context.Context) (string, error) {
	status, err := c.accountStatus(ctx, "messaging_limit_tier")
	if err != nil {
		return "", err
	}
	return status.MessagingLimitTier, nil
}

// AccountStatus fetches display number, quality rating and tier for the
// admin surface.
func (c *Client) AccountStatus(ctx context.Context) (*AccountStatus, error) {
	return c.accountStatus(ctx, "display_phone_number,quality_rating,messaging_limit_tier")
}

func (c *Client) accountStatus(ctx context.Context, fields string) (*AccountStatus, error) {
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, c.phoneID,
		url.Values{"fields": []string{fields}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building account status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues("account_status").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var out AccountStatus
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding account status: %w", err)
	}
	return &out, nil
}
