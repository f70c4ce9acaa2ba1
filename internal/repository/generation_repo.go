package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/codeforge_server/internal/model"
)

type GenerationRepository struct {
	db *gorm.DB
}

func NewGenerationRepository(db *gorm.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Create(g *model.Generation) error {
	return r.db.Create(g).Error
}

func (r *GenerationRepository) GetByID(id int64) (*model.Generation, error) {
	var g model.Generation
	err := r.db.Where("id = ?", id).First(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GenerationRepository) Update(g *model.Generation) error {
	return r.db.Save(g).Error
}

func (r *GenerationRepository) UpdateStatus(id int64, status string) error {
	return r.db.Model(&model.Generation{}).Where("id = ?", id).Update("status", status).Error
}

// ListByUser 分页获取用户的生成记录
func (r *GenerationRepository) ListByUser(userID int64, page, pageSize int) ([]*model.Generation, int64, error) {
	var items []*model.Generation
	var total int64

	query := r.db.Model(&model.Generation{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}

// CreateLegacy 写入旧版简化记录
func (r *GenerationRepository) CreateLegacy(l *model.LegacyGeneration) error {
	return r.db.Create(l).Error
}

// FinalizeWithLegacy 在同一事务内保存最终记录并写入旧版记录
func (r *GenerationRepository) FinalizeWithLegacy(g *model.Generation, l *model.LegacyGeneration) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(g).Error; err != nil {
			return err
		}
		l.GenerationID = g.ID
		return tx.Create(l).Error
	})
}
