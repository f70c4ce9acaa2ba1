package engine

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
	DefaultTraceThreshold = 0.3
	minBlockChars         = 15
)

// CodeBlock 以空行分隔的代码块，行号从 1 开始且包含两端
type CodeBlock struct {
	StartLine int
	EndLine   int
	Text      string
}

// TraceResult Warning 非空表示映射因错误而放弃
type TraceResult struct {
	Mappings []model.LineMapping
	Blocks   int
	Warning  string
}

type Tracer struct {
	chunkRepo *repository.ChunkRepository
	embedder  llm.Embedder
	logger    *zap.Logger
}

func NewTracer(chunkRepo *repository.ChunkRepository, embedder llm.Embedder, logger *zap.Logger) *Tracer {
	return &Tracer{chunkRepo: chunkRepo, embedder: embedder, logger: orNop(logger)}
}

// MapLines 把代码块映射到最相似的文档分块；没有分块或出错时返回空列表
func (t *Tracer) MapLines(ctx context.Context, code, docURL string, threshold float64) TraceResult {
	if threshold <= 0 {
		threshold = DefaultTraceThreshold
	}
	result := TraceResult{Mappings: []model.LineMapping{}}
	if strings.TrimSpace(docURL) == "" {
		return result
	}

	mappings, blocks, err := t.mapLines(ctx, code, docURL, threshold)
	result.Blocks = blocks
	if err != nil {
		t.logger.Warn("trace mapping skipped", zap.String("doc_url", docURL), zap.Error(err))
		result.Warning = err.Error()
		return result
	}
	result.Mappings = mappings
	return result
}

func (t *Tracer) mapLines(ctx context.Context, code, docURL string, threshold float64) ([]model.LineMapping, int, error) {
	chunks, err := t.chunkRepo.ListByURLHash(dockey.Hash(docURL), "")
	if err != nil {
		return nil, 0, fmt.Errorf("load chunks: %w", err)
	}
	embedded := make([]*model.DocChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.HasEmbedding() {
			embedded = append(embedded, c)
		}
	}
	if len(embedded) == 0 {
		return []model.LineMapping{}, 0, nil
	}

	blocks := SplitBlocks(code)
	mappings := []model.LineMapping{}
	for _, b := range blocks {
		vec, err := t.embedder.Embed(ctx, b.Text)
		if err != nil {
			return nil, len(blocks), fmt.Errorf("embed block at line %d: %w", b.StartLine, err)
		}

		best, bestScore := -1, 0.0
		for i, c := range embedded {
			if s := vector.Score(vec, c.Embedding); best < 0 || s > bestScore {
				best, bestScore = i, s
			}
		}
		if best >= 0 && bestScore >= threshold {
			mappings = append(mappings, model.LineMapping{
				StartLine:  b.StartLine,
				EndLine:    b.EndLine,
				ChunkID:    embedded[best].ID,
				Similarity: bestScore,
			})
		}
	}
	return mappings, len(blocks), nil
}

// SplitBlocks 按空行切分代码，跳过过短的块
func SplitBlocks(code string) []CodeBlock {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	var blocks []CodeBlock
	start := -1

	emit := func(end int) {
		if start < 0 {
			return
		}
		text := strings.Join(lines[start:end], "\n")
		if len(strings.TrimSpace(text)) >= minBlockChars {
			blocks = append(blocks, CodeBlock{StartLine: start + 1, EndLine: end, Text: text})
		}
		start = -1
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			emit(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	emit(len(lines))
	return blocks
}
