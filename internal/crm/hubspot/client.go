// Package hubspot is a minimal HubSpot CRM v3 contacts client.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public HubSpot API host.
const DefaultBaseURL = "https://api.hubapi.com"

const maxDrainBytes = 64 << 10

// ErrNotConfigured is returned by every call when no access token is set.
var ErrNotConfigured = errors.New("hubspot: access token not configured")

// StatusError reports an unexpected HTTP status. Response bodies are never
// included because HubSpot echoes submitted properties in error payloads.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hubspot %s: unexpected status %d", e.Op, e.StatusCode)
}

// Config configures the client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// RequestsPerSecond throttles outbound calls to stay under the account
	// quota. Zero or less disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the HubSpot contacts API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a Client. A nil httpClient gets a default with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{baseURL: base, token: cfg.Token, http: httpClient}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
}

type contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties,omitempty"`
}

type searchResponse struct {
	Total   int       `json:"total"`
	Results []contact `json:"results"`
}

type propertiesBody struct {
	Properties map[string]string `json:"properties"`
}

// SearchContactByEmail looks up a contact by exact email match.
func (c *Client) SearchContactByEmail(ctx context.Context, email string) (string, bool, error) {
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{{PropertyName: "email", Operator: "EQ", Value: email}}}},
		Properties:   []string{"email"},
		Limit:        1,
	}
	var resp searchResponse
	if err := c.do(ctx, "search", http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp); err != nil {
		return "", false, err
	}
	if len(resp.Results) == 0 || resp.Results[0].ID == "" {
		return "", false, nil
	}
	return resp.Results[0].ID, true, nil
}

// CreateContact creates a contact and returns its id.
func (c *Client) CreateContact(ctx context.Context, props map[string]string) (string, error) {
	var resp contact
	if err := c.do(ctx, "create", http.MethodPost, "/crm/v3/objects/contacts", propertiesBody{Properties: props}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("hubspot create: response missing contact id")
	}
	return resp.ID, nil
}

// UpdateContact patches an existing contact and returns its id.
func (c *Client) UpdateContact(ctx context.Context, id string, props map[string]string) (string, error) {
	path := "/crm/v3/objects/contacts/" + url.PathEscape(id)
	var resp contact
	if err := c.do(ctx, "update", http.MethodPatch, path, propertiesBody{Properties: props}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return id, nil
	}
	return resp.ID, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if c.token == "" {
		return ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("hubspot %s: rate limit wait: %w", op, err)
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("hubspot %s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("hubspot %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hubspot %s: %w", op, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hubspot %s: decode response: %w", op, err)
	}
	return nil
}
