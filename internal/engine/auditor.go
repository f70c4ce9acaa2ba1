package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/llm"
)

const (
	auditDefaultScore  = 75
	auditFallbackScore = 50
	auditFallbackNote  = "Security audit could not be completed; review the code manually."
)

type Auditor struct {
	llm       llm.Completer
	model     string
	maxTokens int
	logger    *zap.Logger
}

func NewAuditor(completer llm.Completer, modelName string, maxTokens int, logger *zap.Logger) *Auditor {
	return &Auditor{llm: completer, model: modelName, maxTokens: maxTokens, logger: orNop(logger)}
}

// Audit 安全与性能审计；失败时返回固定的降级结果
func (a *Auditor) Audit(ctx context.Context, code, language string) model.SecurityResult {
	text, err := a.llm.Complete(ctx, llm.CompletionRequest{
		Model: a.model,
		Messages: []llm.Message{
			{Role: "system", Content: auditSystemPrompt},
			{Role: "user", Content: auditUserPrompt(code, language)},
		},
		Temperature: 0.1,
		MaxTokens:   a.maxTokens,
		JSONMode:    true,
	})
	if err == nil {
		var result model.SecurityResult
		if result, err = ParseSecurityResult(text); err == nil {
			return result
		}
	}
	a.logger.Warn("security audit degraded", zap.Error(err))
	return AuditFallback()
}

// AuditFallback 审计无法完成时的结果
func AuditFallback() model.SecurityResult {
	return model.SecurityResult{
		OverallRisk:      model.RiskMedium,
		Findings:         []model.SecurityFinding{},
		PerformanceNotes: []string{auditFallbackNote},
		Score:            auditFallbackScore,
		Fallback:         true,
	}
}

// ParseSecurityResult 解析审计输出并规范化字段
func ParseSecurityResult(text string) (model.SecurityResult, error) {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return model.SecurityResult{}, errors.New("audit response is not JSON")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return model.SecurityResult{}, errors.New("audit response is not an object")
	}

	result := model.SecurityResult{
		OverallRisk:      NormalizeRisk(root.Get("overallRisk").String()),
		Findings:         []model.SecurityFinding{},
		PerformanceNotes: []string{},
		Score:            auditDefaultScore,
	}
	if s := root.Get("score"); s.Type == gjson.Number {
		result.Score = clampScore(s.Float())
	}

	for _, f := range root.Get("findings").Array() {
		if !f.IsObject() {
			continue
		}
		finding := model.SecurityFinding{
			Severity:       NormalizeRisk(f.Get("severity").String()),
			Category:       strings.TrimSpace(f.Get("category").String()),
			Description:    strings.TrimSpace(f.Get("description").String()),
			Recommendation: strings.TrimSpace(f.Get("recommendation").String()),
		}
		if line := f.Get("line"); line.Type == gjson.Number && line.Int() > 0 {
			n := int(line.Int())
			finding.Line = &n
		}
		if finding.Description == "" && finding.Category == "" {
			continue
		}
		result.Findings = append(result.Findings, finding)
	}

	for _, n := range root.Get("performanceNotes").Array() {
		if n.Type != gjson.String {
			continue
		}
		if note := strings.TrimSpace(n.String()); note != "" {
			result.PerformanceNotes = append(result.PerformanceNotes, note)
		}
	}
	return result, nil
}

// NormalizeRisk 规范化风险等级，未知值视为 low
func NormalizeRisk(risk string) string {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case model.RiskMedium, "moderate":
		return model.RiskMedium
	case model.RiskHigh:
		return model.RiskHigh
	case model.RiskCritical, "severe":
		return model.RiskCritical
	default:
		return model.RiskLow
	}
}
