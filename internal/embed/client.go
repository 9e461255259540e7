// Package embed is the HTTP client for the query embedding service. The
// per-query call gets one attempt inside a hard timeout; a slow or absent
// service degrades the response rather than failing it, so the client never
// retries on the query path.
package embed

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

	"github.com/omnidex-search/omnidex/pkg/config"
	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
	"github.com/omnidex-search/omnidex/pkg/logger"
	"github.com/omnidex-search/omnidex/pkg/metrics"
	"github.com/omnidex-search/omnidex/pkg/resilience"
)

type embedRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
}

// Client calls POST /embed on the embedding service.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *resilience.CircuitBreaker
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg config.EmbeddingConfig, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: cfg.URL,
		timeout: cfg.Timeout,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: resilience.NewCircuitBreaker("embedding", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
		}),
		log:     logger.WithComponent("embedding-client"),
		metrics: m,
	}
}

// Embed returns the query vector, or an error the caller treats as "no
// embedding". Timeouts and open-circuit rejections are expected degraded
// states, reported as UNAVAILABLE.
func (c *Client) Embed(ctx context.Context, text, language string) ([]float32, error) {
	if c.baseURL == "" {
		return nil, apperrors.New(apperrors.ErrUpstreamUnavailable, "embedding service not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var vec []float32
	err := c.breaker.Execute(func() error {
		var err error
		vec, err = c.call(ctx, text, language)
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if c.metrics != nil {
				c.metrics.EmbeddingTimeouts.Inc()
			}
			return nil, apperrors.New(apperrors.ErrUpstreamUnavailable, "embedding call timed out")
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, apperrors.New(apperrors.ErrUpstreamUnavailable, "embedding circuit open")
		}
		return nil, apperrors.Newf(apperrors.ErrUpstreamUnavailable, "embedding call failed: %v", err)
	}
	return vec, nil
}

func (c *Client) call(ctx context.Context, text, language string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Text: text, Language: language})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding service returned %d", resp.StatusCode)
	}
	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Vector) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return out.Vector, nil
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.GetState()
}
