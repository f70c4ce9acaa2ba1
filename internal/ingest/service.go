package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/config"
	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/dockey"
	"github.com/qs3c/codeforge_server/internal/pkg/llm"
	"github.com/qs3c/codeforge_server/internal/pkg/lock"
	"github.com/qs3c/codeforge_server/internal/pkg/metrics"
	"github.com/qs3c/codeforge_server/internal/repository"
)

var (
	ErrEmptyContent    = errors.New("document has no extractable content")
	ErrContentTooShort = errors.New("document content is too short to be meaningful documentation")
)

// Archiver 抽取后文档的归档存储
type Archiver interface {
	ArchiveDocument(urlHash, version string, content []byte) (string, error)
}

// Result 摄取结果
type Result struct {
	DocumentID string
	URLHash    string
	ChunkCount int
	Version    string
	Cached     bool
	ArchiveURL string
	Warnings   []string
}

// Service 文档摄取：抓取、抽取、分块、向量化、去重存储
type Service struct {
	chunkRepo *repository.ChunkRepository
	embedder  llm.Embedder
	fetcher   *Fetcher
	locker    lock.Locker
	archiver  Archiver
	cfg       config.IngestConfig
	logger    *zap.Logger
}

func NewService(
	chunkRepo *repository.ChunkRepository,
	embedder llm.Embedder,
	locker lock.Locker,
	archiver Archiver,
	cfg config.IngestConfig,
	logger *zap.Logger,
) *Service {
	if locker == nil {
		locker = lock.NopLocker{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		chunkRepo: chunkRepo,
		embedder:  embedder,
		fetcher:   NewFetcher(cfg.FetchTimeout, cfg.MaxBodyBytes),
		locker:    locker,
		archiver:  archiver,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ingest 摄取 URL；已有分块且非强制刷新时直接返回 cached
func (s *Service) Ingest(ctx context.Context, rawURL string, forceRefresh bool) (*Result, error) {
	normalized := dockey.Normalize(rawURL)
	urlHash := dockey.Hash(rawURL)
	log := s.logger.With(zap.String("url", normalized), zap.String("url_hash", urlHash))

	release, err := s.locker.Acquire(ctx, "ingest:"+urlHash)
	if err != nil {
		return nil, fmt.Errorf("ingest lock: %w", err)
	}
	defer release()

	if !forceRefresh {
		if cached, err := s.cachedResult(urlHash); err != nil {
			return nil, err
		} else if cached != nil {
			log.Debug("document already ingested", zap.Int("chunks", cached.ChunkCount))
			return cached, nil
		}
	}

	doc, err := s.fetcher.Fetch(ctx, normalized)
	if err != nil {
		return nil, err
	}
	text, err := Extract(doc)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", normalized, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyContent
	}
	if len([]rune(text)) < s.minContentLength() {
		return nil, ErrContentTooShort
	}

	version := DetectVersion(doc.URL, text)
	pieces := Chunk(text, s.cfg.MinChunkTokens, s.cfg.MaxChunkTokens)

	result := &Result{
		DocumentID: uuid.NewString(),
		URLHash:    urlHash,
		Version:    version,
	}

	chunks := make([]*model.DocChunk, 0, len(pieces))
	for i, piece := range pieces {
		chunk := &model.DocChunk{
			DocumentID: result.DocumentID,
			SourceURL:  normalized,
			URLHash:    urlHash,
			ChunkIndex: i,
			Version:    version,
			Content:    piece,
			TokenCount: EstimateTokens(piece),
		}
		vec, err := s.embedder.Embed(ctx, piece)
		if err != nil {
			warning := fmt.Sprintf("chunk %d: embedding failed: %v", i, err)
			result.Warnings = append(result.Warnings, warning)
			log.Warn("chunk embedding failed, storing without vector", zap.Int("chunk_index", i), zap.Error(err))
		} else {
			chunk.Embedding = vec
		}
		chunks = append(chunks, chunk)
	}

	if forceRefresh {
		if err := s.chunkRepo.Replace(urlHash, chunks); err != nil {
			return nil, fmt.Errorf("replace chunks: %w", err)
		}
	} else if err := s.chunkRepo.CreateBatch(chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	result.ChunkCount = len(chunks)
	metrics.IngestedChunks.Add(float64(len(chunks)))

	// 非强制写入遇到冲突时以库中已有的文档为准
	if !forceRefresh {
		stored, err := s.cachedResult(urlHash)
		if err != nil {
			return nil, err
		}
		if stored != nil && stored.DocumentID != result.DocumentID {
			log.Warn("concurrent ingest won, using stored document",
				zap.String("stored_document_id", stored.DocumentID))
			result.DocumentID = stored.DocumentID
			result.ChunkCount = stored.ChunkCount
			result.Version = stored.Version
		}
	}

	if s.archiver != nil {
		archiveURL, err := s.archiver.ArchiveDocument(urlHash, version, []byte(text))
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("archive failed: %v", err))
			log.Warn("document archive failed", zap.Error(err))
		} else {
			result.ArchiveURL = archiveURL
		}
	}

	log.Info("document ingested",
		zap.String("document_id", result.DocumentID),
		zap.Int("chunks", result.ChunkCount),
		zap.String("version", version),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

func (s *Service) cachedResult(urlHash string) (*Result, error) {
	count, err := s.chunkRepo.CountByURLHash(urlHash)
	if err != nil {
		return nil, fmt.Errorf("check cached chunks: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	first, err := s.chunkRepo.GetFirstByURLHash(urlHash)
	if err != nil {
		return nil, fmt.Errorf("load cached chunk: %w", err)
	}
	return &Result{
		DocumentID: first.DocumentID,
		URLHash:    urlHash,
		ChunkCount: int(count),
		Version:    first.Version,
		Cached:     true,
	}, nil
}

func (s *Service) minContentLength() int {
	if s.cfg.MinContentLength > 0 {
		return s.cfg.MinContentLength
	}
	return 200
}
