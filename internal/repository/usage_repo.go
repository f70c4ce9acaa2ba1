package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/codeforge_server/internal/model"
)

type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Get 获取用户用量，不存在时返回 gorm.ErrRecordNotFound
func (r *UsageRepository) Get(userID int64) (*model.UsageCounter, error) {
	var counter model.UsageCounter
	err := r.db.Where("user_id = ?", userID).First(&counter).Error
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

// GetOrInit 获取用户用量，不存在时返回未落库的初始值
func (r *UsageRepository) GetOrInit(userID int64, dailyQuota int) (*model.UsageCounter, error) {
	counter, err := r.Get(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.UsageCounter{UserID: userID, DailyQuota: dailyQuota}, nil
	}
	return counter, err
}

// Increment 用量 +1，记录不存在时插入
func (r *UsageRepository) Increment(userID int64, dailyQuota int, nextReset time.Time) error {
	counter := &model.UsageCounter{
		UserID:          userID,
		GenerationCount: 1,
		UsedToday:       1,
		DailyQuota:      dailyQuota,
		ResetAt:         &nextReset,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"generation_count": gorm.Expr("generation_count + 1"),
			"used_today":       gorm.Expr("used_today + 1"),
			"updated_at":       time.Now(),
		}),
	}).Create(counter).Error
}

// Reset 重置单个用户的当日用量
func (r *UsageRepository) Reset(userID int64, nextReset time.Time) error {
	return r.db.Model(&model.UsageCounter{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"used_today": 0,
			"reset_at":   nextReset,
		}).Error
}

// ResetAll 重置所有用户的当日用量
func (r *UsageRepository) ResetAll(nextReset time.Time) error {
	return r.db.Model(&model.UsageCounter{}).
		Where("1 = 1").
		Updates(map[string]interface{}{
			"used_today": 0,
			"reset_at":   nextReset,
		}).Error
}

// CountIdle 统计 before 之后未再使用且当日无用量的记录
func (r *UsageRepository) CountIdle(before time.Time) (int64, error) {
	var count int64
	err := r.idle(before).Count(&count).Error
	return count, err
}

// DeleteIdle 删除长期未使用的用量记录，再次使用时会重新初始化
func (r *UsageRepository) DeleteIdle(before time.Time) (int64, error) {
	result := r.idle(before).Delete(&model.UsageCounter{})
	return result.RowsAffected, result.Error
}

func (r *UsageRepository) idle(before time.Time) *gorm.DB {
	return r.db.Model(&model.UsageCounter{}).Where("used_today = 0 AND updated_at < ?", before)
}
