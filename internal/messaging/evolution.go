package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultSendDelayMs is the presence delay the gateway applies before
// delivering, so recipients see a typing indicator.
const DefaultSendDelayMs = 1200

// DefaultHTTPTimeout bounds one gateway request.
const DefaultHTTPTimeout = 30 * time.Second

// EvolutionOpts holds configuration for the Evolution API gateway client.
type EvolutionOpts struct {
	BaseURL  string
	APIKey   string
	Instance string
	Client   *http.Client
}

// EvolutionOption defines a configuration option for the Evolution client.
type EvolutionOption func(*EvolutionOpts)

// WithBaseURL sets the gateway base URL.
func WithBaseURL(url string) EvolutionOption {
	return func(o *EvolutionOpts) { o.BaseURL = url }
}

// WithAPIKey sets the gateway API key.
func WithAPIKey(key string) EvolutionOption {
	return func(o *EvolutionOpts) { o.APIKey = key }
}

// WithInstance sets the WhatsApp instance name.
func WithInstance(instance string) EvolutionOption {
	return func(o *EvolutionOpts) { o.Instance = instance }
}

// WithHTTPClient overrides the HTTP client, used in tests.
func WithHTTPClient(c *http.Client) EvolutionOption {
	return func(o *EvolutionOpts) { o.Client = c }
}

// EvolutionService implements the Service interface against an Evolution
// API WhatsApp gateway.
type EvolutionService struct {
	baseURL  string
	apiKey   string
	instance string
	client   *http.Client
}

// NewEvolutionService creates an Evolution gateway client based on
// provided options.
func NewEvolutionService(opts ...EvolutionOption) (*EvolutionService, error) {
	var cfg EvolutionOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("evolution base URL not set")
	}
	if cfg.Instance == "" {
		return nil, fmt.Errorf("evolution instance not set")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	slog.Debug("EvolutionService created", "base_url", cfg.BaseURL, "instance", cfg.Instance, "api_key_set", cfg.APIKey != "")
	return &EvolutionService{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		instance: cfg.Instance,
		client:   cfg.Client,
	}, nil
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number.
func (s *EvolutionService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient(recipient)
}

// sendTextPayload is the gateway's sendText request body.
type sendTextPayload struct {
	Number  string          `json:"number"`
	Text    string          `json:"text"`
	Options sendTextOptions `json:"options"`
}

type sendTextOptions struct {
	Delay       int    `json:"delay"`
	Presence    string `json:"presence"`
	LinkPreview bool   `json:"linkPreview"`
}

// SendMessage posts one text message to the gateway.
func (s *EvolutionService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("EvolutionService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}

	payload, err := json.Marshal(sendTextPayload{
		Number: canonical,
		Text:   body,
		Options: sendTextOptions{
			Delay:    DefaultSendDelayMs,
			Presence: "composing",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", s.baseURL, s.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("EvolutionService.SendMessage: request failed", "error", err, "to", canonical)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.Error("EvolutionService.SendMessage: gateway rejected message", "status", resp.StatusCode, "to", canonical, "body", string(respBody))
		return fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, canonical)
	}
	slog.Debug("EvolutionService.SendMessage: message sent", "to", canonical, "length", len(body))
	return nil
}

// Ping checks the gateway's connection state for the configured instance.
func (s *EvolutionService) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/instance/connectionState/%s", s.baseURL, s.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}
