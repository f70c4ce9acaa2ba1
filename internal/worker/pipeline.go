package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/qs3c/codeforge_server/config"
	"github.com/qs3c/codeforge_server/internal/engine"
	"github.com/qs3c/codeforge_server/internal/ingest"
	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/metrics"
	"github.com/qs3c/codeforge_server/internal/pkg/pubsub"
	"github.com/qs3c/codeforge_server/internal/rag"
	"github.com/qs3c/codeforge_server/internal/repository"
)

// Notifier 进度推送
type Notifier interface {
	PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error
}

// UsageRecorder 成功后记录用户用量
type UsageRecorder interface {
	Record(userID int64) error
}

// DocIngester 检索前自动摄取文档
type DocIngester interface {
	Ingest(ctx context.Context, rawURL string, forceRefresh bool) (*ingest.Result, error)
}

// Request 一次生成请求
type Request struct {
	UserID            int64
	TaskDescription   string
	DocURL            string
	DocContent        string
	Language          string
	SelectedTaskIndex int
}

// Pipeline 代码生成流水线编排
type Pipeline struct {
	engine         *engine.Engine
	retriever      *rag.Retriever
	ingester       DocIngester
	generationRepo *repository.GenerationRepository
	usage          UsageRecorder
	notifier       Notifier
	cfg            config.PipelineConfig
	logger         *zap.Logger
}

// NewPipeline ingester、usage、notifier 可为 nil
func NewPipeline(
	eng *engine.Engine,
	retriever *rag.Retriever,
	ingester DocIngester,
	generationRepo *repository.GenerationRepository,
	usage UsageRecorder,
	notifier Notifier,
	cfg config.PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		engine:         eng,
		retriever:      retriever,
		ingester:       ingester,
		generationRepo: generationRepo,
		usage:          usage,
		notifier:       notifier,
		cfg:            cfg,
		logger:         logger,
	}
}

// Run 同步执行流水线直到终态。客户端断开不会中止执行
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.Generation, error) {
	ctx = context.WithoutCancel(ctx)

	gen := &model.Generation{
		UserID:          req.UserID,
		TaskDescription: req.TaskDescription,
		DocURL:          req.DocURL,
		Language:        req.Language,
		Status:          model.GenerationPending,
	}
	if err := p.generationRepo.Create(gen); err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}
	if err := gen.Transition(model.GenerationProcessing); err != nil {
		return nil, err
	}
	if err := p.generationRepo.Update(gen); err != nil {
		return nil, fmt.Errorf("start generation: %w", err)
	}

	log := p.logger.With(zap.Int64("generation_id", gen.ID), zap.Int64("user_id", req.UserID))
	started := time.Now()
	var stages []model.StageRecord

	// 推送进度
	publishProgress := func(stage string, msg *pubsub.ProgressMessage) {
		if p.notifier == nil {
			return
		}
		if msg == nil {
			msg = &pubsub.ProgressMessage{Status: model.GenerationProcessing}
		}
		msg.UserID = req.UserID
		msg.GenerationID = gen.ID
		msg.Stage = stage
		if err := p.notifier.PublishProgress(ctx, msg); err != nil {
			log.Debug("publish progress failed", zap.String("stage", stage), zap.Error(err))
		}
	}

	// 记录阶段
	record := func(stage string, start time.Time, status, note string) {
		end := time.Now()
		d := end.Sub(start)
		ms := d.Milliseconds()
		stages = append(stages, model.StageRecord{
			Name:        stage,
			Status:      status,
			StartedAt:   start,
			CompletedAt: &end,
			DurationMs:  &ms,
			Note:        note,
		})
		metrics.ObserveStage(stage, status, d)
		if status == model.StageDegraded {
			log.Warn("stage degraded", zap.String("stage", stage), zap.String("note", note))
		}
		// 每个阶段结束时连同阶段列表落库
		gen.Stages = stages
		if err := p.generationRepo.Update(gen); err != nil {
			log.Warn("save stage progress failed", zap.String("stage", stage), zap.Error(err))
		}
	}

	// 致命失败：落库 failed 后返回原错误
	handleError := func(stage string, start time.Time, err error) (*model.Generation, error) {
		record(stage, start, model.StageFailed, err.Error())
		gen.Stages = stages
		gen.ErrorMessage = err.Error()
		if terr := gen.Transition(model.GenerationFailed); terr != nil {
			log.Error("mark generation failed", zap.Error(terr))
		}
		if uerr := p.generationRepo.Update(gen); uerr != nil {
			log.Error("save failed generation", zap.Error(uerr))
		}
		metrics.PipelineRuns.WithLabelValues(model.GenerationFailed).Inc()
		publishProgress(pubsub.StageError, &pubsub.ProgressMessage{
			Status: model.GenerationFailed,
			Error:  err.Error(),
		})
		log.Error("generation failed", zap.String("stage", stage), zap.Error(err))
		return gen, err
	}

	// 1. 任务增强
	publishProgress(pubsub.StageEnhancing, nil)
	start := time.Now()
	tasks, err := p.engine.Enhancer.Enhance(ctx, req.TaskDescription, req.Language)
	if err != nil {
		return handleError(pubsub.StageEnhancing, start, err)
	}
	idx := clampIndex(req.SelectedTaskIndex, len(tasks))
	taskText := engine.RenderTask(tasks[idx])
	gen.EnhancedTask = taskText
	record(pubsub.StageEnhancing, start, model.StageCompleted, fmt.Sprintf("%d variations, selected %d", len(tasks), idx))

	// 2. 文档检索
	publishProgress(pubsub.StageRetrieving, nil)
	start = time.Now()
	retrieval, notes := p.retrieve(ctx, taskText, req)
	gen.DocContext = capRunes(retrieval.Context, p.docContextCap())
	status := model.StageCompleted
	if retrieval.Source == rag.SourceFallback || len(notes) > 0 {
		status = model.StageDegraded
	}
	notes = append([]string{fmt.Sprintf("source=%s similarity=%.2f", retrieval.Source, retrieval.Similarity)}, notes...)
	record(pubsub.StageRetrieving, start, status, strings.Join(notes, "; "))

	// 3. 双模型生成
	publishProgress(pubsub.StageGenerating, nil)
	start = time.Now()
	output, err := p.engine.Generator.Generate(ctx, taskText, retrieval.Context, req.Language)
	if err != nil {
		return handleError(pubsub.StageGenerating, start, err)
	}
	gen.Candidates = output.Candidates
	status = model.StageCompleted
	if len(output.Errors) > 0 {
		status = model.StageDegraded
	}
	record(pubsub.StageGenerating, start, status, strings.Join(output.Errors, "; "))

	// 4. 评审
	publishProgress(pubsub.StageJudging, nil)
	start = time.Now()
	judged := p.engine.Judge.Evaluate(ctx, output.Candidates, taskText, retrieval.Context)
	code := output.Candidates[judged.SelectedIndex].Code
	record(pubsub.StageJudging, start, fallbackStatus(judged.Fallback), fmt.Sprintf("selected %d", judged.SelectedIndex))

	// 5. 验证 + 有界修复
	publishProgress(pubsub.StageValidating, nil)
	start = time.Now()
	validation := p.engine.Validator.Validate(ctx, code, req.Language, taskText)
	record(pubsub.StageValidating, start, fallbackStatus(validation.RuntimeFallback), passedNote(validation))

	// 只有运行时给出了错误描述才进入修复
	if !validation.Passed && validation.RuntimeError != nil {
		for attempt := 1; !validation.Passed && attempt <= p.cfg.MaxRepairAttempts; attempt++ {
			publishProgress(pubsub.StageFixing, nil)
			start = time.Now()
			fixed, err := p.engine.Validator.Fix(ctx, code, engine.RepairErrorText(validation), req.Language)
			if err != nil {
				record(pubsub.StageFixing, start, model.StageFailed, fmt.Sprintf("attempt %d: %v", attempt, err))
				break
			}
			// 无论是否通过都保留最后一次尝试的代码
			code = fixed
			validation = p.engine.Validator.Validate(ctx, code, req.Language, taskText)
			record(pubsub.StageFixing, start, fallbackStatus(validation.RuntimeFallback),
				fmt.Sprintf("attempt %d: %s", attempt, passedNote(validation)))
		}
	}

	// 6. 安全审计
	publishProgress(pubsub.StageAuditing, nil)
	start = time.Now()
	security := p.engine.Auditor.Audit(ctx, code, req.Language)
	record(pubsub.StageAuditing, start, fallbackStatus(security.Fallback), "risk="+security.OverallRisk)

	// 7. 溯源映射
	publishProgress(pubsub.StageTracing, nil)
	start = time.Now()
	trace := p.engine.Tracer.MapLines(ctx, code, req.DocURL, p.cfg.TraceThreshold)
	status = model.StageCompleted
	note := fmt.Sprintf("%d/%d blocks mapped", len(trace.Mappings), trace.Blocks)
	if trace.Warning != "" {
		status = model.StageDegraded
		note = trace.Warning
	}
	record(pubsub.StageTracing, start, status, note)

	// 8. 置信度
	publishProgress(pubsub.StageScoring, nil)
	start = time.Now()
	confidence := engine.Score(judged.SelectedTotal(), validation.RuntimeScore, validation.StaticScore, retrieval.Similarity)
	record(pubsub.StageScoring, start, model.StageCompleted, fmt.Sprintf("%d %s", confidence.Score, confidence.Status))

	// 9. 落库
	publishProgress(pubsub.StageFinalizing, nil)
	start = time.Now()
	gen.SelectedCode = code
	gen.JudgeResult = datatypes.NewJSONType(judged)
	gen.ValidationResult = datatypes.NewJSONType(validation)
	gen.SecurityResult = datatypes.NewJSONType(security)
	gen.LineMappings = trace.Mappings
	gen.ConfidenceScore = confidence.Score
	gen.VerificationStatus = confidence.Status
	gen.ScoreBreakdown = datatypes.NewJSONType(confidence.Breakdown)
	record(pubsub.StageFinalizing, start, model.StageCompleted, "")
	gen.Stages = stages
	if err := gen.Transition(model.GenerationCompleted); err != nil {
		return handleError(pubsub.StageFinalizing, start, err)
	}

	legacy := &model.LegacyGeneration{
		UserID:          req.UserID,
		Task:            req.TaskDescription,
		Language:        req.Language,
		Code:            code,
		ConfidenceScore: confidence.Score,
	}
	if err := p.generationRepo.FinalizeWithLegacy(gen, legacy); err != nil {
		// 回到 processing 才能转入 failed
		gen.Status = model.GenerationProcessing
		gen.CompletedAt = nil
		stages = stages[:len(stages)-1]
		return handleError(pubsub.StageFinalizing, start, fmt.Errorf("save generation: %w", err))
	}

	if p.usage != nil {
		if err := p.usage.Record(req.UserID); err != nil {
			log.Warn("record usage failed", zap.Error(err))
		}
	}
	metrics.PipelineRuns.WithLabelValues(model.GenerationCompleted).Inc()

	score := confidence.Score
	publishProgress(pubsub.StageComplete, &pubsub.ProgressMessage{
		Status:             model.GenerationCompleted,
		ConfidenceScore:    &score,
		VerificationStatus: confidence.Status,
	})

	log.Info("generation completed",
		zap.Int("confidence", confidence.Score),
		zap.String("verification", confidence.Status),
		zap.Int("candidates", len(output.Candidates)),
		zap.Duration("elapsed", time.Since(started)))
	return gen, nil
}

// retrieve 检索阶段，返回结果和降级说明
func (p *Pipeline) retrieve(ctx context.Context, taskText string, req Request) (*rag.Result, []string) {
	var notes []string
	opts := rag.Options{
		DocURL:    req.DocURL,
		RawText:   req.DocContent,
		MaxChunks: p.cfg.RetrievalMaxChunks,
		Threshold: p.cfg.RetrievalThreshold,
	}

	if p.cfg.AutoIngest && p.ingester != nil && req.DocURL != "" {
		res, err := p.ingester.Ingest(ctx, req.DocURL, false)
		if err != nil {
			notes = append(notes, "auto ingest failed: "+err.Error())
		} else {
			opts.DocID = res.DocumentID
			notes = append(notes, res.Warnings...)
		}
	}

	result := p.retriever.Retrieve(ctx, taskText, opts)
	if result.Warning != "" {
		notes = append(notes, result.Warning)
	}
	return result, notes
}

func (p *Pipeline) docContextCap() int {
	if p.cfg.DocContextCap > 0 {
		return p.cfg.DocContextCap
	}
	return 8000
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func fallbackStatus(fallback bool) string {
	if fallback {
		return model.StageDegraded
	}
	return model.StageCompleted
}

func passedNote(v model.ValidationResult) string {
	return fmt.Sprintf("passed=%t static=%d runtime=%d", v.Passed, v.StaticScore, v.RuntimeScore)
}
