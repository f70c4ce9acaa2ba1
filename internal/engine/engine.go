package engine

import (
	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/config"
	"github.com/qs3c/codeforge_server/internal/pkg/llm"
	"github.com/qs3c/codeforge_server/internal/repository"
)

// Engine 流水线各阶段组件
type Engine struct {
	Enhancer  *Enhancer
	Generator *Generator
	Judge     *Judge
	Validator *Validator
	Auditor   *Auditor
	Tracer    *Tracer
}

func New(gateway llm.Gateway, chunkRepo *repository.ChunkRepository, cfg config.PipelineConfig, logger *zap.Logger) *Engine {
	logger = orNop(logger)
	return &Engine{
		Enhancer: NewEnhancer(gateway, cfg.EnhanceModel, cfg.MaxTokens, logger.Named("enhance")),
		Generator: NewGenerator(gateway, GeneratorConfig{
			PrimaryModel:       cfg.PrimaryModel,
			AlternativeModel:   cfg.AlternativeModel,
			PrimaryTemperature: cfg.PrimaryTemperature,
			AltTemperature:     cfg.AltTemperature,
			MaxTokens:          cfg.MaxTokens,
		}, logger.Named("generate")),
		Judge: NewJudge(gateway, cfg.JudgeModel, cfg.MaxTokens, logger.Named("judge")),
		Validator: NewValidator(gateway, ValidatorConfig{
			ValidateModel: cfg.ValidateModel,
			FixModel:      cfg.FixModel,
			MaxTokens:     cfg.MaxTokens,
		}, logger.Named("validate")),
		Auditor: NewAuditor(gateway, cfg.AuditModel, cfg.MaxTokens, logger.Named("audit")),
		Tracer:  NewTracer(chunkRepo, gateway, logger.Named("trace")),
	}
}
