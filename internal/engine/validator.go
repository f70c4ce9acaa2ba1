package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/llm"
)

const (
	passThreshold       = 50
	runtimeDefaultScore = 50
)

// ValidatorConfig 运行时预测与修复使用的模型
type ValidatorConfig struct {
	ValidateModel string
	FixModel      string
	MaxTokens     int
}

type Validator struct {
	llm    llm.Completer
	cfg    ValidatorConfig
	logger *zap.Logger
}

func NewValidator(completer llm.Completer, cfg ValidatorConfig, logger *zap.Logger) *Validator {
	return &Validator{llm: completer, cfg: cfg, logger: orNop(logger)}
}

// Validate 静态检查 + 模型模拟执行；不会返回错误
func (v *Validator) Validate(ctx context.Context, code, language, task string) model.ValidationResult {
	staticScore, issues := StaticAnalyze(code, language)
	result := model.ValidationResult{
		StaticScore:  staticScore,
		StaticIssues: issues,
	}

	runtimeScore, runtimeErr, err := v.predictRuntime(ctx, code, language, task)
	if err != nil {
		v.logger.Warn("runtime validation degraded to neutral score", zap.Error(err))
		result.RuntimeScore = runtimeDefaultScore
		result.RuntimeFallback = true
	} else {
		result.RuntimeScore = runtimeScore
		result.RuntimeError = runtimeErr
	}

	result.Passed = result.StaticScore >= passThreshold && result.RuntimeScore >= passThreshold
	return result
}

func (v *Validator) predictRuntime(ctx context.Context, code, language, task string) (int, *string, error) {
	text, err := v.llm.Complete(ctx, llm.CompletionRequest{
		Model: v.cfg.ValidateModel,
		Messages: []llm.Message{
			{Role: "system", Content: validateSystemPrompt},
			{Role: "user", Content: validateUserPrompt(code, language, task)},
		},
		Temperature: 0.1,
		MaxTokens:   1024,
		JSONMode:    true,
	})
	if err != nil {
		return 0, nil, err
	}
	return ParseRuntimeVerdict(text)
}

// ParseRuntimeVerdict 解析 {passed, score, error}；缺少 score 时取中性分
func ParseRuntimeVerdict(text string) (int, *string, error) {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return 0, nil, errors.New("runtime verdict is not JSON")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return 0, nil, errors.New("runtime verdict is not an object")
	}

	score := runtimeDefaultScore
	if s := root.Get("score"); s.Type == gjson.Number {
		score = clampScore(s.Float())
	}

	var runtimeErr *string
	if e := root.Get("error"); e.Type == gjson.String {
		if msg := strings.TrimSpace(e.String()); msg != "" {
			runtimeErr = &msg
		}
	}
	return score, runtimeErr, nil
}

// Fix 按错误信息修复代码，返回完整替换后的代码
func (v *Validator) Fix(ctx context.Context, code, errorText, language string) (string, error) {
	text, err := v.llm.Complete(ctx, llm.CompletionRequest{
		Model: v.cfg.FixModel,
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(fixSystemPrompt, language)},
			{Role: "user", Content: fixUserPrompt(code, errorText, language)},
		},
		Temperature: 0.2,
		MaxTokens:   v.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("fix code: %w", err)
	}
	fixed := llm.StripCodeFences(text)
	if fixed == "" {
		return "", errors.New("fix code: model returned no code")
	}
	return fixed, nil
}

// RepairErrorText 一次修复使用的错误描述：优先运行时错误，否则拼接静态问题
func RepairErrorText(v model.ValidationResult) string {
	if v.RuntimeError != nil && *v.RuntimeError != "" {
		return *v.RuntimeError
	}
	return strings.Join(v.StaticIssues, "; ")
}
