package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider names accepted by NewSender.
const (
	ProviderNone     = "none"
	ProviderSendGrid = "sendgrid"
	ProviderPostmark = "postmark"
	ProviderResend   = "resend"
)

var defaultBaseURLs = map[string]string{
	ProviderSendGrid: "https://api.sendgrid.com",
	ProviderPostmark: "https://api.postmarkapp.com",
	ProviderResend:   "https://api.resend.com",
}

// SenderConfig selects and authenticates a provider.
type SenderConfig struct {
	Provider string
	APIKey   string
	// BaseURL overrides the provider host (used by tests and proxies).
	BaseURL string
	Timeout time.Duration
}

// NewSender returns the Sender for cfg.Provider, or nil for "none".
func NewSender(cfg SenderConfig, httpClient *http.Client) (Sender, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == ProviderNone {
		return nil, nil
	}
	base, ok := defaultBaseURLs[provider]
	if !ok {
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("email provider %s requires an api key", provider)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &httpSender{
		provider: provider,
		baseURL:  strings.TrimRight(base, "/"),
		apiKey:   cfg.APIKey,
		http:     httpClient,
	}, nil
}

type httpSender struct {
	provider string
	baseURL  string
	apiKey   string
	http     *http.Client
}

func (s *httpSender) Name() string { return s.provider }

func (s *httpSender) Send(ctx context.Context, msg Message) error {
	path, body, headers := s.request(msg)
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", s.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", s.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", s.provider, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %d", s.provider, resp.StatusCode)
	}
	return nil
}

func (s *httpSender) request(msg Message) (string, any, map[string]string) {
	switch s.provider {
	case ProviderSendGrid:
		type address struct {
			Email string `json:"email"`
		}
		type personalization struct {
			To []address `json:"to"`
		}
		type content struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		}
		body := struct {
			Personalizations []personalization `json:"personalizations"`
			From             address           `json:"from"`
			ReplyTo          *address          `json:"reply_to,omitempty"`
			Subject          string            `json:"subject"`
			Content          []content         `json:"content"`
		}{
			Personalizations: []personalization{{To: []address{{Email: msg.To}}}},
			From:             address{Email: msg.From},
			Subject:          msg.Subject,
			Content:          []content{{Type: "text/html", Value: msg.HTML}},
		}
		if msg.ReplyTo != "" {
			body.ReplyTo = &address{Email: msg.ReplyTo}
		}
		return "/v3/mail/send", body, map[string]string{"Authorization": "Bearer " + s.apiKey}
	case ProviderPostmark:
		body := struct {
			From     string `json:"From"`
			To       string `json:"To"`
			ReplyTo  string `json:"ReplyTo,omitempty"`
			Subject  string `json:"Subject"`
			HTMLBody string `json:"HtmlBody"`
		}{msg.From, msg.To, msg.ReplyTo, msg.Subject, msg.HTML}
		return "/email", body, map[string]string{"X-Postmark-Server-Token": s.apiKey}
	default:
		body := struct {
			From    string   `json:"from"`
			To      []string `json:"to"`
			ReplyTo string   `json:"reply_to,omitempty"`
			Subject string   `json:"subject"`
			HTML    string   `json:"html"`
		}{msg.From, []string{msg.To}, msg.ReplyTo, msg.Subject, msg.HTML}
		return "/emails", body, map[string]string{"Authorization": "Bearer " + s.apiKey}
	}
}
