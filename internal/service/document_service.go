package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/model/dto"
	"github.com/qs3c/codeforge_server/internal/pkg/cache"
	"github.com/qs3c/codeforge_server/internal/repository"
	"github.com/qs3c/codeforge_server/internal/worker"
)

var ErrChunkNotFound = errors.New("文档分块不存在")

// DocumentService 文档摄取与分块查询
type DocumentService struct {
	ingester  worker.DocIngester
	chunkRepo *repository.ChunkRepository
	chunks    *cache.LRU[int64, *model.DocChunk]
}

func NewDocumentService(ingester worker.DocIngester, chunkRepo *repository.ChunkRepository, cacheCapacity int) *DocumentService {
	return &DocumentService{
		ingester:  ingester,
		chunkRepo: chunkRepo,
		chunks:    cache.NewLRU[int64, *model.DocChunk](cacheCapacity),
	}
}

func (s *DocumentService) Ingest(ctx context.Context, req *dto.IngestRequest) (*dto.IngestResponse, error) {
	res, err := s.ingester.Ingest(ctx, req.URL, req.ForceRefresh)
	if err != nil {
		return nil, err
	}
	if req.ForceRefresh {
		// 旧分块已被替换
		s.chunks.RemoveFunc(func(_ int64, c *model.DocChunk) bool { return c.URLHash == res.URLHash })
	}
	return &dto.IngestResponse{
		DocumentID: res.DocumentID,
		ChunkCount: res.ChunkCount,
		Version:    res.Version,
		Cached:     res.Cached,
		ArchiveURL: res.ArchiveURL,
		Warnings:   res.Warnings,
	}, nil
}

// GetChunk 按 ID 返回分块文本，不含向量
func (s *DocumentService) GetChunk(id int64) (*dto.ChunkResponse, error) {
	chunk, ok := s.chunks.Get(id)
	if !ok {
		c, err := s.chunkRepo.GetByID(id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrChunkNotFound
			}
			return nil, err
		}
		// 缓存里不保留向量
		c.Embedding = nil
		chunk = c
		s.chunks.Put(id, chunk)
	}
	return &dto.ChunkResponse{
		ID:         chunk.ID,
		Content:    chunk.Content,
		SourceURL:  chunk.SourceURL,
		ChunkIndex: chunk.ChunkIndex,
		Version:    chunk.Version,
	}, nil
}
