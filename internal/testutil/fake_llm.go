package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/qs3c/codeforge_server/internal/pkg/llm"
)

// FakeReply 脚本化的一次模型回复
type FakeReply struct {
	Text string
	Err  error
}

func Reply(text string) FakeReply { return FakeReply{Text: text} }

func Fail(err error) FakeReply { return FakeReply{Err: err} }

// FakeLLM 按模型名分派回复的模型网关；同一模型的回复按顺序消费，最后一条重复使用
type FakeLLM struct {
	mu       sync.Mutex
	replies  map[string][]FakeReply
	calls    map[string]int
	requests []llm.CompletionRequest

	// EmbedFunc 为空时使用 KeywordEmbedding
	EmbedFunc  func(text string) ([]float32, error)
	embedCalls int
}

func NewFakeLLM() *FakeLLM {
	return &FakeLLM{
		replies: make(map[string][]FakeReply),
		calls:   make(map[string]int),
	}
}

// On 为模型追加回复
func (f *FakeLLM) On(model string, replies ...FakeReply) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[model] = append(f.replies[model], replies...)
	return f
}

func (f *FakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	n := f.calls[req.Model]
	f.calls[req.Model] = n + 1

	replies := f.replies[req.Model]
	if len(replies) == 0 {
		return "", fmt.Errorf("no scripted reply for model %s", req.Model)
	}
	if n >= len(replies) {
		n = len(replies) - 1
	}
	r := replies[n]
	return r.Text, r.Err
}

func (f *FakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	fn := f.EmbedFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(text)
	}
	return KeywordEmbedding(text), nil
}

// Calls 某模型被调用的次数
func (f *FakeLLM) Calls(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

// EmbedCalls embedding 调用次数
func (f *FakeLLM) EmbedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

// Requests 收到的全部补全请求
func (f *FakeLLM) Requests() []llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.CompletionRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

const keywordDims = 64

// KeywordEmbedding 词袋哈希向量，词汇重合越多余弦越高
func KeywordEmbedding(text string) []float32 {
	vec := make([]float32, keywordDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%keywordDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
