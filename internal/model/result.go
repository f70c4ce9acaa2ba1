package model

import "time"

// 候选角色
const (
	RolePrimary     = "primary"
	RoleAlternative = "alternative"
)

// 阶段记录状态
const (
	StageCompleted = "completed"
	StageFailed    = "failed"
	StageDegraded  = "degraded"
)

// 验证状态
const (
	Verified   = "verified"
	Partial    = "partial"
	Unverified = "unverified"
)

// 风险等级
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// EnhancedTask 任务增强后的一个结构化规格
type EnhancedTask struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	KeyRequirements   []string `json:"keyRequirements"`
	SuggestedApproach string   `json:"suggestedApproach"`
}

// Candidate 一次模型调用产出的代码
type Candidate struct {
	Code        string    `json:"code"`
	Model       string    `json:"model"`
	Role        string    `json:"role"`
	GeneratedAt time.Time `json:"generated_at"`
}

// CandidateScore 单个候选的评审打分
type CandidateScore struct {
	Correctness  int `json:"correctness"`
	Security     int `json:"security"`
	Simplicity   int `json:"simplicity"`
	DocAdherence int `json:"docAdherence"`
	Total        int `json:"total"`
}

type JudgeResult struct {
	SelectedIndex int              `json:"selectedIndex"`
	Scores        []CandidateScore `json:"scores"`
	Reasoning     string           `json:"reasoning"`
	Fallback      bool             `json:"fallback,omitempty"`
}

// SelectedTotal 被选中候选的总分
func (j JudgeResult) SelectedTotal() int {
	if j.SelectedIndex < 0 || j.SelectedIndex >= len(j.Scores) {
		return 0
	}
	return j.Scores[j.SelectedIndex].Total
}

type ValidationResult struct {
	StaticScore     int      `json:"staticScore"`
	RuntimeScore    int      `json:"runtimeScore"`
	StaticIssues    []string `json:"staticIssues"`
	RuntimeError    *string  `json:"runtimeError"`
	Passed          bool     `json:"passed"`
	RuntimeFallback bool     `json:"runtimeFallback,omitempty"`
}

// SecurityFinding 安全审计发现项
type SecurityFinding struct {
	Severity       string `json:"severity"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	Line           *int   `json:"line"`
	Recommendation string `json:"recommendation"`
}

type SecurityResult struct {
	OverallRisk      string            `json:"overallRisk"`
	Findings         []SecurityFinding `json:"findings"`
	PerformanceNotes []string          `json:"performanceNotes"`
	Score            int               `json:"score"`
	Fallback         bool              `json:"fallback,omitempty"`
}

// LineMapping 代码行区间 -> 文档分块
type LineMapping struct {
	StartLine  int     `json:"startLine"`
	EndLine    int     `json:"endLine"`
	ChunkID    int64   `json:"chunkId"`
	Similarity float64 `json:"similarity"`
}

type ConfidenceBreakdown struct {
	Judge         float64 `json:"judge"`
	Runtime       float64 `json:"runtime"`
	Static        float64 `json:"static"`
	DocSimilarity float64 `json:"docSimilarity"`
}

// StageRecord 单个阶段的执行记录
type StageRecord struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	DurationMs  *int64     `json:"durationMs"`
	Note        string     `json:"note,omitempty"`
}
