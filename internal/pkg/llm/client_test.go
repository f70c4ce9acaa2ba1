package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/codeforge_server/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default().LLM
	cfg.BaseURL = srv.URL
	cfg.APIKey = "sk-test"
	cfg.RateLimit = 0

	c := NewClient(cfg, nil)
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func chatReply(content string) string {
	data, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(data)
}

func TestClient_Complete_StandardModel(t *testing.T) {
	var captured map[string]interface{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		fmt.Fprint(w, chatReply("hello"))
	})

	out, err := c.Complete(context.Background(), CompletionRequest{
		Model:       "gpt-4o",
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0,
		MaxTokens:   256,
		JSONMode:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	assert.Equal(t, float64(0), captured["temperature"])
	assert.Equal(t, float64(256), captured["max_tokens"])
	assert.NotContains(t, captured, "max_completion_tokens")
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, captured["response_format"])
}

func TestClient_Complete_ReasoningModel(t *testing.T) {
	var captured map[string]interface{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		fmt.Fprint(w, chatReply("ok"))
	})

	_, err := c.Complete(context.Background(), CompletionRequest{
		Model:       "o3-mini-2025-01-31",
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	require.NoError(t, err)

	assert.NotContains(t, captured, "temperature")
	assert.NotContains(t, captured, "max_tokens")
	assert.Equal(t, float64(1024), captured["max_completion_tokens"])
	assert.NotContains(t, captured, "response_format")
}

func TestClient_IsReasoningModel(t *testing.T) {
	c := NewClient(config.Default().LLM, nil)

	tests := []struct {
		model string
		want  bool
	}{
		{"o1", true},
		{"o3-mini", true},
		{"O4-MINI", true},
		{"o1-2024-12-17", true},
		{"gpt-4o", false},
		{"gpt-4o-mini", false},
		{"o10", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsReasoningModel(tt.model))
		})
	}
}

func TestClient_RetriesRetryableStatus(t *testing.T) {
	var calls int32
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
			return
		}
		fmt.Fprint(w, chatReply("finally"))
	})

	out, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "finally", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestClient_ExhaustsRetries(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NonRetryableStatusFailsFast(t *testing.T) {
	var calls int32
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad model"}}`)
	})

	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, *sleeps)
}

func TestClient_Embed(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req map[string]interface{}
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "text-embedding-3-small", req["model"])
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3]}]}`)
	})

	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestClient_Embed_EmptyVector(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})

	_, err := c.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	c := &Client{baseDelay: time.Second, maxDelay: 10 * time.Second}

	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 4*time.Second, c.backoff(3))
	assert.Equal(t, 8*time.Second, c.backoff(4))
	assert.Equal(t, 10*time.Second, c.backoff(5))
	assert.Equal(t, 10*time.Second, c.backoff(12))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &APIError{StatusCode: 429}, true},
		{"500", &APIError{StatusCode: 500}, true},
		{"503", &APIError{StatusCode: 503}, true},
		{"502", &APIError{StatusCode: 502}, false},
		{"401", &APIError{StatusCode: 401}, false},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"net timeout", timeoutErr{}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestClient_StopsOnCanceledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
