package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/config"
	"github.com/qs3c/codeforge_server/internal/api"
	"github.com/qs3c/codeforge_server/internal/api/handler"
	"github.com/qs3c/codeforge_server/internal/database"
	"github.com/qs3c/codeforge_server/internal/engine"
	"github.com/qs3c/codeforge_server/internal/ingest"
	"github.com/qs3c/codeforge_server/internal/pkg/cron"
	"github.com/qs3c/codeforge_server/internal/pkg/llm"
	"github.com/qs3c/codeforge_server/internal/pkg/lock"
	"github.com/qs3c/codeforge_server/internal/pkg/logger"
	"github.com/qs3c/codeforge_server/internal/pkg/oss"
	"github.com/qs3c/codeforge_server/internal/pkg/pubsub"
	"github.com/qs3c/codeforge_server/internal/pkg/ws"
	"github.com/qs3c/codeforge_server/internal/rag"
	"github.com/qs3c/codeforge_server/internal/repository"
	"github.com/qs3c/codeforge_server/internal/service"
	"github.com/qs3c/codeforge_server/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log, "server")
	defer log.Sync()

	// 数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}
	log.Info("database connected", zap.String("driver", cfg.Database.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHub := ws.NewHub(log.Named("ws"))

	// Redis 可选：缺失时进度直接推给本进程的 hub，摄取锁退化为 no-op
	var (
		notifier worker.Notifier = wsHub
		locker   lock.Locker     = lock.NopLocker{}
	)
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, running single-node", zap.Error(err))
		rdb = nil
	} else {
		notifier = pubsub.NewPublisher(rdb)
		locker = lock.NewRedisLocker(rdb, cfg.Ingest.LockTTL)
		log.Info("redis connected")
	}

	// OSS（可选）
	var (
		archiver ingest.Archiver
		archive  cron.ArchiveDeleter
	)
	if cfg.OSS.Enabled() {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Warn("failed to init OSS client", zap.Error(err))
		} else {
			archiver = ossClient
			archive = ossClient
			log.Info("OSS archival enabled", zap.String("bucket", cfg.OSS.BucketName))
		}
	}

	// Repository
	generationRepo := repository.NewGenerationRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	usageRepo := repository.NewUsageRepository(db)

	// 模型网关与流水线
	gateway := llm.NewClient(cfg.LLM, log.Named("llm"))
	ingestService := ingest.NewService(chunkRepo, gateway, locker, archiver, cfg.Ingest, log.Named("ingest"))
	quotaService := service.NewQuotaService(usageRepo, cfg)
	pipeline := worker.NewPipeline(
		engine.New(gateway, chunkRepo, cfg.Pipeline, log.Named("engine")),
		rag.NewRetriever(chunkRepo, gateway, log.Named("rag")),
		ingestService,
		generationRepo,
		quotaService,
		notifier,
		cfg.Pipeline,
		log.Named("pipeline"),
	)

	// Service
	generationService := service.NewGenerationService(pipeline, generationRepo, quotaService)
	documentService := service.NewDocumentService(ingestService, chunkRepo, cfg.Cache.ChunkCapacity)

	// Handler
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins, log.Named("ws"))
	router := api.NewRouter(
		handler.NewGenerationHandler(generationService, log.Named("api")),
		handler.NewDocumentHandler(documentService, log.Named("api")),
		handler.NewQuotaHandler(quotaService),
		websocketHandler,
		quotaService,
		cfg,
	)

	if rdb != nil {
		go func() {
			err := websocketHandler.RelayProgress(ctx, pubsub.NewSubscriber(rdb))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("progress relay stopped", zap.Error(err))
			}
		}()
	}

	cronService := cron.NewService(quotaService, chunkRepo, archive, cfg.Ingest.ChunkExpireDays, log.Named("cron"))
	cronService.Start()
	defer cronService.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.Setup(),
	}

	go func() {
		log.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("received shutdown signal")
	cancel()

	// 进行中的生成请求同步执行，给足收尾时间
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	if rdb != nil {
		rdb.Close()
	}
	log.Info("server stopped")
}
