// Package llm sends single-turn chat completions to an OpenAI-compatible API.
package llm

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.1
	DefaultTimeout     = 120 * time.Second
)

// ErrNoChoices is returned when the API answers without any choice.
var ErrNoChoices = errors.New("empty response from API")

// Config describes the endpoint and sampling settings.
type Config struct {
	BaseURL           string        `mapstructure:"base_url" json:"base_url"`
	APIKey            string        `mapstructure:"api_key" json:"-"`
	Model             string        `mapstructure:"model" json:"model"`
	// Temperature nil selects DefaultTemperature; a pointer to 0 is sent as 0.
	Temperature       *float32      `mapstructure:"temperature" json:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout" json:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" json:"requests_per_minute"`
}

// Completer is the single call the conversion clients need.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// Client wraps the go-openai client with a transport tuned for the upstream
// service: HTTP/1.1 only, one connection per request, no 100-continue probe.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// New creates a Client. Zero-valued fields in cfg fall back to the defaults.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	temperature := float32(DefaultTemperature)
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = NewHTTPClient(cfg.Timeout)

	c := &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: temperature,
		logger:      logger,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// NewHTTPClient returns an http.Client that never negotiates HTTP/2, closes
// the connection after every request and sends bodies without waiting for
// "Expect: 100-continue".
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableKeepAlives:   true,
		ForceAttemptHTTP2:   false,
		// A non-nil empty map disables the h2 upgrade.
		TLSNextProto:          map[string]func(string, *tls.Conn) http.RoundTripper{},
		ExpectContinueTimeout: 0,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Model reports the model identifier sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Complete sends a system and a user message and returns the content of the
// first choice.
func (c *Client) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	c.logger.Debug("chat completion started",
		"model", c.model,
		"system_len", len(systemPrompt),
		"user_len", len(userContent))

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
		Temperature: wireTemperature(c.temperature),
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Debug("chat completion failed",
			"model", c.model,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	c.logger.Debug("chat completion finished",
		"model", c.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds())

	return resp.Choices[0].Message.Content, nil
}

// wireTemperature maps 0 to the smallest positive float32, which go-openai
// would otherwise drop from the request as an empty field.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// StatusCode extracts the HTTP status carried by an API error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
