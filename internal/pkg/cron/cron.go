package cron

import (
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/repository"
)

// QuotaResetter 每日配额重置
type QuotaResetter interface {
	ResetAllQuotas() error
}

// ArchiveDeleter 删除 OSS 中的文档归档，可为 nil
type ArchiveDeleter interface {
	DeleteDocument(urlHash string) (int, error)
}

// PurgeReport 一次过期文档清理的结果
type PurgeReport struct {
	Documents int
	Chunks    int64
	Archives  int
}

type Service struct {
	quotaResetter QuotaResetter
	chunkRepo     *repository.ChunkRepository
	archive       ArchiveDeleter
	chunkExpire   time.Duration
	logger        *zap.Logger
	stopChan      chan struct{}
}

func NewService(
	quotaResetter QuotaResetter,
	chunkRepo *repository.ChunkRepository,
	archive ArchiveDeleter,
	chunkExpireDays int,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		quotaResetter: quotaResetter,
		chunkRepo:     chunkRepo,
		archive:       archive,
		chunkExpire:   time.Duration(chunkExpireDays) * 24 * time.Hour,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runDaily()
	s.logger.Info("cron service started", zap.Duration("chunk_expire", s.chunkExpire))
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	s.logger.Info("cron service stopped")
}

// runDaily 每个 UTC 零点重置配额并清理过期文档
func (s *Service) runDaily() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.resetDailyQuotas()
			s.purge()
			timer.Reset(24 * time.Hour)
		}
	}
}

func (s *Service) resetDailyQuotas() {
	if s.quotaResetter == nil {
		return
	}
	if err := s.quotaResetter.ResetAllQuotas(); err != nil {
		s.logger.Error("daily quota reset failed", zap.Error(err))
		return
	}
	s.logger.Info("daily quota reset completed")
}

func (s *Service) purge() {
	if s.chunkRepo == nil || s.chunkExpire <= 0 {
		return
	}
	report, err := s.PurgeStaleDocuments(time.Now().Add(-s.chunkExpire), false)
	if err != nil {
		s.logger.Error("stale document purge failed", zap.Error(err))
		return
	}
	if report.Documents > 0 {
		s.logger.Info("stale documents purged",
			zap.Int("documents", report.Documents),
			zap.Int64("chunks", report.Chunks),
			zap.Int("archives", report.Archives))
	}
}

// PurgeStaleDocuments 删除最新分块早于 before 的文档；dryRun 只统计不删除
func (s *Service) PurgeStaleDocuments(before time.Time, dryRun bool) (*PurgeReport, error) {
	hashes, err := s.chunkRepo.ListStaleURLHashes(before)
	if err != nil {
		return nil, err
	}

	report := &PurgeReport{Documents: len(hashes)}
	for _, hash := range hashes {
		if dryRun {
			n, err := s.chunkRepo.CountByURLHash(hash)
			if err != nil {
				return report, err
			}
			report.Chunks += n
			continue
		}

		n, err := s.chunkRepo.DeleteByURLHash(hash)
		if err != nil {
			return report, err
		}
		report.Chunks += n

		if s.archive != nil {
			deleted, err := s.archive.DeleteDocument(hash)
			if err != nil {
				// 归档残留不影响检索，下次再删
				s.logger.Warn("archive delete failed", zap.String("url_hash", hash), zap.Error(err))
			}
			report.Archives += deleted
		}
	}
	return report, nil
}

// RunNow 立即执行配额重置（用于测试或手动触发）
func (s *Service) RunNow() error {
	s.logger.Info("manual quota reset triggered")
	return s.quotaResetter.ResetAllQuotas()
}
