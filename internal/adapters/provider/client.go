package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 8 * time.Second
)

// client is the shared upstream HTTP client. Transient failures (network
// errors, 429, 5xx) are retried with capped exponential backoff; other 4xx
// responses are returned immediately since retrying them cannot change the
// outcome.
type client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

type clientConfig struct {
	HTTPClient   *http.Client
	BaseURL      string
	APIKey       string
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func newClient(cfg clientConfig) *client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	return &client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
	}
}

// doJSON issues one request with the retry budget and decodes the JSON
// response into out.
func (c *client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return domain.NewProviderError(domain.ProviderErrBadRequest, fmt.Sprintf("encode request: %v", err), false)
		}
		payload = raw
	}

	delay := c.initialDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return domain.NewProviderError(domain.ProviderErrTimeout, ctx.Err().Error(), false)
			case <-timer.C:
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var perr *domain.ProviderError
		if errors.As(err, &perr) && !perr.Retryable {
			return err
		}
	}
	return lastErr
}

func (c *client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return domain.NewProviderError(domain.ProviderErrBadRequest, err.Error(), false)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewProviderError(domain.ProviderErrTimeout, err.Error(), false)
		}
		return domain.NewProviderError(domain.ProviderErrUnavailable, err.Error(), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewProviderError(domain.ProviderErrUnknown, fmt.Sprintf("decode response: %v", err), false)
	}
	return nil
}

func classifyStatus(status int, body string) *domain.ProviderError {
	msg := fmt.Sprintf("status=%d body=%s", status, body)
	switch {
	case status == http.StatusUnauthorized:
		return domain.NewProviderError(domain.ProviderErrAuth, msg, false)
	case status == http.StatusForbidden:
		return domain.NewProviderError(domain.ProviderErrForbidden, msg, false)
	case status == http.StatusNotFound:
		return domain.NewProviderError(domain.ProviderErrNotFound, msg, false)
	case status == http.StatusTooManyRequests:
		return domain.NewProviderError(domain.ProviderErrRateLimit, msg, true)
	case status >= 500:
		return domain.NewProviderError(domain.ProviderErrUnavailable, msg, true)
	case status >= 400:
		return domain.NewProviderError(domain.ProviderErrBadRequest, msg, false)
	default:
		return domain.NewProviderError(domain.ProviderErrUnknown, msg, false)
	}
}
