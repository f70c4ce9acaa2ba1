package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Generation 生命周期状态
const (
	GenerationPending    = "pending"
	GenerationProcessing = "processing"
	GenerationCompleted  = "completed"
	GenerationFailed     = "failed"
)

var generationStatusRank = map[string]int{
	GenerationPending:    0,
	GenerationProcessing: 1,
	GenerationCompleted:  2,
	GenerationFailed:     2,
}

// Generation 一次代码生成流水线的完整记录
type Generation struct {
	ID                 int64                                   `gorm:"primaryKey" json:"id"`
	UserID             int64                                   `gorm:"not null;index" json:"user_id"`
	TaskDescription    string                                  `gorm:"type:text;not null" json:"task_description"`
	EnhancedTask       string                                  `gorm:"type:text" json:"enhanced_task,omitempty"`
	DocURL             string                                  `gorm:"size:1000" json:"doc_url,omitempty"`
	DocContext         string                                  `gorm:"type:text" json:"doc_context,omitempty"`
	Language           string                                  `gorm:"size:30;not null" json:"language"`
	Candidates         datatypes.JSONSlice[Candidate]          `json:"candidates"`
	SelectedCode       string                                  `gorm:"type:text" json:"selected_code,omitempty"`
	JudgeResult        datatypes.JSONType[JudgeResult]         `json:"judge_result"`
	ValidationResult   datatypes.JSONType[ValidationResult]    `json:"validation_result"`
	SecurityResult     datatypes.JSONType[SecurityResult]      `json:"security_result"`
	LineMappings       datatypes.JSONSlice[LineMapping]        `json:"line_mappings"`
	ConfidenceScore    int                                     `json:"confidence_score"`
	VerificationStatus string                                  `gorm:"size:20" json:"verification_status,omitempty"`
	ScoreBreakdown     datatypes.JSONType[ConfidenceBreakdown] `json:"score_breakdown"`
	Stages             datatypes.JSONSlice[StageRecord]        `json:"stages"`
	Status             string                                  `gorm:"size:20;default:pending;index" json:"status"`
	ErrorMessage       string                                  `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt          time.Time                               `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time                               `json:"updated_at"`
	CompletedAt        *time.Time                              `json:"completed_at,omitempty"`
}

func (Generation) TableName() string {
	return "generations"
}

// Transition 推进生命周期状态，只允许向前，终态不可再变
func (g *Generation) Transition(to string) error {
	next, ok := generationStatusRank[to]
	if !ok {
		return fmt.Errorf("unknown generation status %q", to)
	}
	cur := generationStatusRank[g.Status]
	if g.Status == GenerationCompleted || g.Status == GenerationFailed || next <= cur {
		return fmt.Errorf("illegal generation transition %s -> %s", g.Status, to)
	}
	g.Status = to
	if to == GenerationCompleted || to == GenerationFailed {
		now := time.Now()
		g.CompletedAt = &now
	}
	return nil
}

// IsTerminal 是否已到达终态
func (g *Generation) IsTerminal() bool {
	return g.Status == GenerationCompleted || g.Status == GenerationFailed
}

// LegacyGeneration 旧版简化生成记录，保留给历史消费方
type LegacyGeneration struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	UserID          int64     `gorm:"not null;index" json:"user_id"`
	GenerationID    int64     `gorm:"index" json:"generation_id"`
	Task            string    `gorm:"type:text" json:"task"`
	Language        string    `gorm:"size:30" json:"language"`
	Code            string    `gorm:"type:text" json:"code"`
	ConfidenceScore int       `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
}

func (LegacyGeneration) TableName() string {
	return "code_generations"
}
