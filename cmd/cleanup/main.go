package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/config"
	"github.com/qs3c/codeforge_server/internal/database"
	"github.com/qs3c/codeforge_server/internal/pkg/cron"
	"github.com/qs3c/codeforge_server/internal/pkg/logger"
	"github.com/qs3c/codeforge_server/internal/pkg/oss"
	"github.com/qs3c/codeforge_server/internal/repository"
)

var (
	dryRun          = flag.Bool("dry-run", true, "Dry run mode, only report what would be deleted")
	chunkExpireDays = flag.Int("chunk-expire-days", 0, "Delete documents not refreshed for this many days (0 = ingest.chunk_expire_days)")
	usageIdleDays   = flag.Int("usage-idle-days", 90, "Delete usage rows idle for this many days (0 = keep)")
	cleanArchives   = flag.Bool("clean-archives", true, "Also delete OSS archives of purged documents")
)

func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log, "cleanup")
	defer log.Sync()
	log.Info("starting cleanup", zap.Bool("dry_run", *dryRun))

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}

	var archive cron.ArchiveDeleter
	if *cleanArchives && cfg.OSS.Enabled() {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Warn("failed to init OSS client, archives kept", zap.Error(err))
		} else {
			archive = ossClient
		}
	}

	days := *chunkExpireDays
	if days <= 0 {
		days = cfg.Ingest.ChunkExpireDays
	}

	// 1. 过期文档分块
	if days > 0 {
		svc := cron.NewService(nil, repository.NewChunkRepository(db), archive, days, log)
		report, err := svc.PurgeStaleDocuments(time.Now().Add(-time.Duration(days)*24*time.Hour), *dryRun)
		if err != nil {
			log.Error("document purge failed", zap.Error(err))
		} else {
			log.Info("stale documents",
				zap.Int("expire_days", days),
				zap.Int("documents", report.Documents),
				zap.Int64("chunks", report.Chunks),
				zap.Int("archives", report.Archives))
		}
	}

	// 2. 长期不活跃的用量记录
	if *usageIdleDays > 0 {
		usageRepo := repository.NewUsageRepository(db)
		before := time.Now().Add(-time.Duration(*usageIdleDays) * 24 * time.Hour)
		var n int64
		if *dryRun {
			n, err = usageRepo.CountIdle(before)
		} else {
			n, err = usageRepo.DeleteIdle(before)
		}
		if err != nil {
			log.Error("usage purge failed", zap.Error(err))
		} else {
			log.Info("idle usage rows", zap.Int("idle_days", *usageIdleDays), zap.Int64("rows", n))
		}
	}

	if *dryRun {
		log.Info("dry run, nothing was deleted; run with -dry-run=false to apply")
	} else {
		log.Info("cleanup completed")
	}
}
