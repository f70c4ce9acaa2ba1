package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/dockey"
	"github.com/qs3c/codeforge_server/internal/pkg/llm"
	"github.com/qs3c/codeforge_server/internal/pkg/vector"
	"github.com/qs3c/codeforge_server/internal/repository"
)

const (
	DefaultMaxChunks = 5
	DefaultThreshold = 0.4

	rawChunkChars  = 1000
	minRawChars    = 300
	wholeDocScore  = 0.6
	fallbackScore  = 0.5
	contextDivider = "\n\n---\n\n"
)

// 上下文来源
const (
	SourceCache    = "cache"
	SourceRaw      = "raw"
	SourceWhole    = "whole"
	SourceFallback = "fallback"
	SourceEmpty    = "empty"
)

// Options 检索参数；DocID 优先于 DocURL
type Options struct {
	DocURL    string
	DocID     string
	Version   string
	RawText   string
	MaxChunks int
	Threshold float64
}

// Result 检索结果，Warning 非空表示走了降级路径
type Result struct {
	Context    string
	Similarity float64
	ChunkIDs   []int64
	Source     string
	Warning    string
}

type Retriever struct {
	chunkRepo *repository.ChunkRepository
	embedder  llm.Embedder
	logger    *zap.Logger
}

func NewRetriever(chunkRepo *repository.ChunkRepository, embedder llm.Embedder, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{chunkRepo: chunkRepo, embedder: embedder, logger: logger}
}

// Retrieve 选出与任务最相关的文档片段；任何异常都降级为原文，不返回错误
func (r *Retriever) Retrieve(ctx context.Context, task string, opts Options) *Result {
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = DefaultMaxChunks
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}

	result, err := r.retrieve(ctx, task, opts)
	if err != nil {
		r.logger.Warn("retrieval failed, using raw document text",
			zap.String("doc_url", opts.DocURL), zap.Error(err))
		raw := strings.TrimSpace(opts.RawText)
		return &Result{
			Context:    raw,
			Similarity: fallbackScore,
			Source:     SourceFallback,
			Warning:    err.Error(),
		}
	}
	return result
}

func (r *Retriever) retrieve(ctx context.Context, task string, opts Options) (*Result, error) {
	chunks, err := r.storedChunks(opts)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		return r.fromStore(ctx, task, chunks, opts)
	}
	return r.fromRawText(ctx, task, opts)
}

// storedChunks 返回带向量的已存分块
func (r *Retriever) storedChunks(opts Options) ([]*model.DocChunk, error) {
	var (
		chunks []*model.DocChunk
		err    error
	)
	if opts.DocID == "" && opts.DocURL == "" {
		return nil, nil
	}
	if opts.DocID != "" {
		if chunks, err = r.chunkRepo.ListByDocumentID(opts.DocID); err != nil {
			return nil, fmt.Errorf("load chunks: %w", err)
		}
	}
	// docId 查不到时按 URL 再找一次
	if len(chunks) == 0 && opts.DocURL != "" {
		if chunks, err = r.chunkRepo.ListByURLHash(dockey.Hash(opts.DocURL), opts.Version); err != nil {
			return nil, fmt.Errorf("load chunks: %w", err)
		}
	}

	embedded := chunks[:0]
	for _, c := range chunks {
		if c.HasEmbedding() {
			embedded = append(embedded, c)
		}
	}
	return embedded, nil
}

func (r *Retriever) fromStore(ctx context.Context, task string, chunks []*model.DocChunk, opts Options) (*Result, error) {
	taskVec, err := r.embedder.Embed(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("embed task: %w", err)
	}

	scores := make([]vector.Scored, len(chunks))
	for i, c := range chunks {
		scores[i] = vector.Scored{Index: i, Score: vector.Score(taskVec, c.Embedding)}
	}
	selected := vector.TopK(scores, opts.MaxChunks, opts.Threshold)

	parts := make([]string, 0, len(selected))
	ids := make([]int64, 0, len(selected))
	for _, s := range selected {
		parts = append(parts, chunks[s.Index].Content)
		ids = append(ids, chunks[s.Index].ID)
	}
	r.logger.Debug("retrieved cached chunks",
		zap.Int("candidates", len(chunks)), zap.Int("selected", len(selected)))

	return &Result{
		Context:    strings.Join(parts, contextDivider),
		Similarity: vector.Mean(selected),
		ChunkIDs:   ids,
		Source:     SourceCache,
	}, nil
}

func (r *Retriever) fromRawText(ctx context.Context, task string, opts Options) (*Result, error) {
	raw := strings.TrimSpace(opts.RawText)
	if raw == "" {
		return &Result{Source: SourceEmpty}, nil
	}

	pieces := SplitFixed(raw, rawChunkChars)
	if len([]rune(raw)) < minRawChars || len(pieces) <= 2 {
		return &Result{Context: raw, Similarity: wholeDocScore, Source: SourceWhole}, nil
	}

	taskVec, err := r.embedder.Embed(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("embed task: %w", err)
	}
	scores := make([]vector.Scored, len(pieces))
	for i, p := range pieces {
		vec, err := r.embedder.Embed(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("embed raw chunk %d: %w", i, err)
		}
		scores[i] = vector.Scored{Index: i, Score: vector.Score(taskVec, vec)}
	}
	selected := vector.TopK(scores, opts.MaxChunks, opts.Threshold)

	parts := make([]string, 0, len(selected))
	for _, s := range selected {
		parts = append(parts, pieces[s.Index])
	}
	return &Result{
		Context:    strings.Join(parts, contextDivider),
		Similarity: vector.Mean(selected),
		Source:     SourceRaw,
	}, nil
}

// SplitFixed 按固定字符数切分
func SplitFixed(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
