package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidex-search/omnidex/pkg/config"
	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
	"github.com/omnidex-search/omnidex/pkg/resilience"
)

func testClient(url string, timeout time.Duration) *Client {
	return NewClient(config.EmbeddingConfig{
		URL:              url,
		Timeout:          timeout,
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	}, nil)
}

func TestEmbedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "golang tutorial", req.Text)
		assert.Equal(t, "en", req.Language)
		json.NewEncoder(w).Encode(embedResponse{Vector: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := testClient(srv.URL, time.Second)
	vec, err := c.Embed(context.Background(), "golang tutorial", "en")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 20*time.Millisecond)
	start := time.Now()
	_, err := c.Embed(context.Background(), "slow", "en")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	// One attempt only: no retry can stretch the call past its budget.
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestEmbedServerErrorOpensCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, time.Second)
	for i := 0; i < 3; i++ {
		_, err := c.Embed(context.Background(), "q", "en")
		assert.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	// Open circuit fails fast without touching the server.
	_, err := c.Embed(context.Background(), "q", "en")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}

func TestEmbedUnconfigured(t *testing.T) {
	c := testClient("", time.Second)
	_, err := c.Embed(context.Background(), "q", "en")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}

func TestEmbedEmptyVectorRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{})
	}))
	defer srv.Close()

	c := testClient(srv.URL, time.Second)
	_, err := c.Embed(context.Background(), "q", "en")
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}
