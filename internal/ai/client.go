// Package ai generates bilingual dataset metadata through an
// OpenAI-compatible chat completions endpoint (OpenAI or Azure OpenAI).
package ai

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

	"github.com/sony/gobreaker"

	"github.com/JonMunkholm/datasets/internal/core"
	"github.com/JonMunkholm/datasets/internal/logging"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 1024

// BreakerConfig controls the circuit breaker around the endpoint.
type BreakerConfig struct {
	MaxRequests  uint32        // probes allowed while half-open
	Interval     time.Duration // closed-state counter reset period
	Timeout      time.Duration // open-state duration before probing
	MinRequests  uint32
	FailureRatio float64
}

// Config describes the endpoint. An APIVersion selects Azure-style
// authentication (api-key header and api-version query parameter).
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	APIVersion string
	Timeout    time.Duration
	Breaker    BreakerConfig
}

// Client implements core.MetadataGenerator.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	apiVersion string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

var _ core.MetadataGenerator = (*Client)(nil)

// New builds a client. Endpoint and model are required.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("ai endpoint is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ai model is required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("parse ai endpoint: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newBreaker(cfg.Breaker),
	}, nil
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "metadata-generator",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && ratio >= cfg.FailureRatio
		},
		// A caller giving up says nothing about the endpoint's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.WithFields(context.Background(), "breaker", name).
				Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
}

// Generate asks the model for metadata describing content, which is the
// output of core.BuildPrompt, and validates the answer.
func (c *Client) Generate(ctx context.Context, content string) (core.Metadata, error) {
	body, err := json.Marshal(c.newRequest(content))
	if err != nil {
		return core.Metadata{}, fmt.Errorf("marshal completion request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return core.Metadata{}, fmt.Errorf("ai: circuit breaker is open: %w", core.ErrGeneratorUnavailable)
		}
		return core.Metadata{}, err
	}

	md, err := decodeMetadata(result.([]byte))
	if err != nil {
		return core.Metadata{}, err
	}
	if err := Validate(md); err != nil {
		return core.Metadata{}, err
	}
	return md, nil
}

func (c *Client) do(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		if c.apiVersion != "" {
			req.Header.Set("api-key", c.apiKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("ai endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			// Retrying with the same credentials cannot succeed.
			return nil, fmt.Errorf("%w: %w", core.ErrGeneratorUnavailable, err)
		}
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}
	return raw, nil
}

func (c *Client) requestURL() string {
	if c.apiVersion == "" {
		return c.endpoint
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return c.endpoint
	}
	q := u.Query()
	q.Set("api-version", c.apiVersion)
	u.RawQuery = q.Encode()
	return u.String()
}

// Unconfigured is the generator used when no endpoint is configured.
// Every call fails without retries, so datasets land in metadata_failed
// and can still be described by hand.
type Unconfigured struct{}

var _ core.MetadataGenerator = Unconfigured{}

func (Unconfigured) Generate(context.Context, string) (core.Metadata, error) {
	return core.Metadata{}, fmt.Errorf("ai: generator not configured: %w", core.ErrGeneratorUnavailable)
}
