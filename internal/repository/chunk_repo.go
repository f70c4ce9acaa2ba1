package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/codeforge_server/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// CreateBatch 批量写入分块，(url_hash, chunk_index) 冲突时跳过
func (r *ChunkRepository) CreateBatch(chunks []*model.DocChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(chunks, 100).Error
}

func (r *ChunkRepository) GetByID(id int64) (*model.DocChunk, error) {
	var chunk model.DocChunk
	err := r.db.Where("id = ?", id).First(&chunk).Error
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (r *ChunkRepository) CountByURLHash(urlHash string) (int64, error) {
	var count int64
	err := r.db.Model(&model.DocChunk{}).Where("url_hash = ?", urlHash).Count(&count).Error
	return count, err
}

// ListByURLHash 按 chunk_index 顺序返回文档的全部分块，version 为空时不过滤
func (r *ChunkRepository) ListByURLHash(urlHash, version string) ([]*model.DocChunk, error) {
	var chunks []*model.DocChunk
	query := r.db.Where("url_hash = ?", urlHash)
	if version != "" {
		query = query.Where("version = ?", version)
	}
	err := query.Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

func (r *ChunkRepository) ListByDocumentID(documentID string) ([]*model.DocChunk, error) {
	var chunks []*model.DocChunk
	err := r.db.Where("document_id = ?", documentID).Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

// GetFirstByURLHash 获取文档首个分块，用于读取 document_id 与 version
func (r *ChunkRepository) GetFirstByURLHash(urlHash string) (*model.DocChunk, error) {
	var chunk model.DocChunk
	err := r.db.Where("url_hash = ?", urlHash).Order("chunk_index ASC").First(&chunk).Error
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// Replace 在同一事务内删除旧分块并写入新分块
func (r *ChunkRepository) Replace(urlHash string, chunks []*model.DocChunk) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("url_hash = ?", urlHash).Delete(&model.DocChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 100).Error
	})
}

func (r *ChunkRepository) DeleteByURLHash(urlHash string) (int64, error) {
	result := r.db.Where("url_hash = ?", urlHash).Delete(&model.DocChunk{})
	return result.RowsAffected, result.Error
}

// ListStaleURLHashes 返回最新分块早于 before 的文档
func (r *ChunkRepository) ListStaleURLHashes(before time.Time) ([]string, error) {
	var hashes []string
	err := r.db.Model(&model.DocChunk{}).
		Select("url_hash").
		Group("url_hash").
		Having("MAX(created_at) < ?", before).
		Pluck("url_hash", &hashes).Error
	return hashes, err
}
