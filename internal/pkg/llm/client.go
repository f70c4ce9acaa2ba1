package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/qs3c/codeforge_server/config"
	"github.com/qs3c/codeforge_server/internal/pkg/metrics"
)

// ErrRetriesExhausted 重试次数用尽
var ErrRetriesExhausted = errors.New("model call exhausted retries")

// Message 对话消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// CompletionRequest 一次补全调用的参数
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Completer 文本补全
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Embedder 文本向量化
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gateway 同时提供补全和向量化
type Gateway interface {
	Completer
	Embedder
}

// APIError 模型后端返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("model backend returned %d: %s", e.StatusCode, e.Body)
}

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []Message       `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client OpenAI 兼容接口的模型网关
type Client struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	reasoning      []string
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *zap.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewClient 创建模型网关
func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		embeddingModel: cfg.EmbeddingModel,
		reasoning:      cfg.ReasoningModels,
		maxAttempts:    attempts,
		baseDelay:      cfg.BaseDelay,
		maxDelay:       cfg.MaxDelay,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(limit, burst),
		logger:         logger,
		sleep:          sleepContext,
	}
}

// IsReasoningModel 推理模型使用 max_completion_tokens 且不传 temperature
func (c *Client) IsReasoningModel(model string) bool {
	model = strings.ToLower(model)
	for _, id := range c.reasoning {
		id = strings.ToLower(id)
		if model == id || strings.HasPrefix(model, id+"-") {
			return true
		}
	}
	return false
}

// Complete 调用 /chat/completions，返回原始文本
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body := chatRequest{
		Model:    req.Model,
		Messages: req.Messages,
	}
	if c.IsReasoningModel(req.Model) {
		body.MaxCompletionTokens = req.MaxTokens
	} else {
		temp := req.Temperature
		body.Temperature = &temp
		body.MaxTokens = req.MaxTokens
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var content string
	err := c.withRetry(ctx, "completion", func() error {
		raw, err := c.post(ctx, "/chat/completions", body)
		if err != nil {
			return err
		}
		result := gjson.GetBytes(raw, "choices.0.message.content")
		if !result.Exists() {
			return fmt.Errorf("completion response has no content")
		}
		content = result.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Embed 调用 /embeddings
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body := embeddingRequest{Model: c.embeddingModel, Input: text}

	var vector []float32
	err := c.withRetry(ctx, "embedding", func() error {
		raw, err := c.post(ctx, "/embeddings", body)
		if err != nil {
			return err
		}
		var resp embeddingResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("failed to decode embedding response: %w", err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return fmt.Errorf("embedding response has no vector")
		}
		vector = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

func (c *Client) withRetry(ctx context.Context, kind string, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt - 1)
			c.logger.Warn("retrying model call",
				zap.String("kind", kind),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := call()
		if err == nil {
			metrics.ModelCalls.WithLabelValues(kind, "ok").Inc()
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) {
			metrics.ModelCalls.WithLabelValues(kind, "error").Inc()
			return err
		}
		metrics.ModelCalls.WithLabelValues(kind, "retry").Inc()
	}
	metrics.ModelCalls.WithLabelValues(kind, "exhausted").Inc()
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.maxAttempts, lastErr)
}

// backoff 第 n 次重试前的等待时间 min(base*2^(n-1), cap)
func (c *Client) backoff(n int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if c.maxDelay > 0 && delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if c.maxDelay > 0 && delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = truncate(string(raw), 500)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: msg}
	}
	return raw, nil
}

// IsRetryable 仅 429/500/503 和连接重置、超时类错误可重试
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
			return true
		}
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
