package model

import "time"

// UsageCounter 按用户统计的生成用量
type UsageCounter struct {
	UserID          int64      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	GenerationCount int64      `gorm:"default:0" json:"generation_count"`
	UsedToday       int        `gorm:"default:0" json:"used_today"`
	DailyQuota      int        `gorm:"default:20" json:"daily_quota"`
	ResetAt         *time.Time `json:"reset_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (UsageCounter) TableName() string {
	return "usage_counters"
}
