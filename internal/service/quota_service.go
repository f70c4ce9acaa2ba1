package service

import (
	"errors"
	"time"

	"github.com/qs3c/codeforge_server/config"
	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/model/dto"
	"github.com/qs3c/codeforge_server/internal/repository"
)

var ErrQuotaExceeded = errors.New("今日生成次数已用完")

type QuotaService struct {
	usageRepo *repository.UsageRepository
	cfg       *config.Config
	now       func() time.Time
}

func NewQuotaService(usageRepo *repository.UsageRepository, cfg *config.Config) *QuotaService {
	return &QuotaService{
		usageRepo: usageRepo,
		cfg:       cfg,
		now:       time.Now,
	}
}

// NextReset 下一个 UTC 零点
func NextReset(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

// CheckQuota 在发起生成前检查当日剩余次数
func (s *QuotaService) CheckQuota(userID int64) (bool, error) {
	counter, err := s.current(userID)
	if err != nil {
		return false, err
	}
	return counter.UsedToday < counter.DailyQuota, nil
}

// Record 生成成功后计数 +1
func (s *QuotaService) Record(userID int64) error {
	return s.usageRepo.Increment(userID, s.cfg.Usage.DailyQuota, NextReset(s.now()))
}

// ResetAllQuotas 定时任务调用
func (s *QuotaService) ResetAllQuotas() error {
	return s.usageRepo.ResetAll(NextReset(s.now()))
}

// GetQuotaInfo 获取用户配额信息
func (s *QuotaService) GetQuotaInfo(userID int64) (*dto.QuotaInfo, error) {
	counter, err := s.current(userID)
	if err != nil {
		return nil, err
	}

	remaining := counter.DailyQuota - counter.UsedToday
	if remaining < 0 {
		remaining = 0
	}
	info := &dto.QuotaInfo{
		DailyQuota:      counter.DailyQuota,
		UsedToday:       counter.UsedToday,
		Remaining:       remaining,
		GenerationCount: counter.GenerationCount,
	}
	if counter.ResetAt != nil {
		info.ResetAt = counter.ResetAt.UTC().Format(time.RFC3339)
	}
	return info, nil
}

// current 读取用量，过了重置时间先清零
func (s *QuotaService) current(userID int64) (*model.UsageCounter, error) {
	counter, err := s.usageRepo.GetOrInit(userID, s.cfg.Usage.DailyQuota)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if counter.ResetAt != nil && now.After(*counter.ResetAt) {
		next := NextReset(now)
		if err := s.usageRepo.Reset(userID, next); err != nil {
			return nil, err
		}
		counter.UsedToday = 0
		counter.ResetAt = &next
	}
	return counter, nil
}
