package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/codeforge_server/config"
	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/dockey"
)

// 测试中每个阶段使用独立的模型名，FakeLLM 据此分派回复
const (
	ModelEnhance     = "enhance-model"
	ModelPrimary     = "primary-model"
	ModelAlternative = "alternative-model"
	ModelJudge       = "judge-model"
	ModelValidate    = "validate-model"
	ModelFix         = "fix-model"
	ModelAudit       = "audit-model"
)

// TestConfig 默认配置，模型名替换为测试分派用的名字
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.JWT.Secret = "test-secret"
	cfg.Pipeline.EnhanceModel = ModelEnhance
	cfg.Pipeline.PrimaryModel = ModelPrimary
	cfg.Pipeline.AlternativeModel = ModelAlternative
	cfg.Pipeline.JudgeModel = ModelJudge
	cfg.Pipeline.ValidateModel = ModelValidate
	cfg.Pipeline.FixModel = ModelFix
	cfg.Pipeline.AuditModel = ModelAudit
	cfg.Pipeline.AutoIngest = false
	return cfg
}

// TestGeneration 创建测试生成记录
func TestGeneration(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Generation)) *model.Generation {
	t.Helper()

	g := &model.Generation{
		UserID:          userID,
		TaskDescription: fmt.Sprintf("Test task %d", time.Now().UnixNano()%10000),
		Language:        "python",
		Status:          model.GenerationCompleted,
	}

	for _, opt := range opts {
		opt(g)
	}

	if err := db.Create(g).Error; err != nil {
		t.Fatalf("Failed to create test generation: %v", err)
	}

	return g
}

// WithGenerationStatus 设置状态
func WithGenerationStatus(status string) func(*model.Generation) {
	return func(g *model.Generation) {
		g.Status = status
	}
}

// WithTask 设置任务描述
func WithTask(task string) func(*model.Generation) {
	return func(g *model.Generation) {
		g.TaskDescription = task
	}
}

// WithLanguage 设置目标语言
func WithLanguage(language string) func(*model.Generation) {
	return func(g *model.Generation) {
		g.Language = language
	}
}

// TestChunks 为 URL 写入一组分块，embeddings 可为 nil
func TestChunks(t *testing.T, db *gorm.DB, url string, contents []string, embeddings [][]float32) []*model.DocChunk {
	t.Helper()

	docID := uuid.NewString()
	hash := dockey.Hash(url)
	chunks := make([]*model.DocChunk, 0, len(contents))
	for i, content := range contents {
		c := &model.DocChunk{
			DocumentID: docID,
			SourceURL:  url,
			URLHash:    hash,
			ChunkIndex: i,
			Version:    "latest",
			Content:    content,
			TokenCount: (len(content) + 3) / 4,
		}
		if embeddings != nil && i < len(embeddings) {
			c.Embedding = embeddings[i]
		}
		chunks = append(chunks, c)
	}

	if err := db.Create(&chunks).Error; err != nil {
		t.Fatalf("Failed to create test chunks: %v", err)
	}

	return chunks
}

// TestUsage 创建用量记录
func TestUsage(t *testing.T, db *gorm.DB, userID int64, usedToday, dailyQuota int) *model.UsageCounter {
	t.Helper()

	reset := time.Now().Add(24 * time.Hour)
	u := &model.UsageCounter{
		UserID:     userID,
		UsedToday:  usedToday,
		DailyQuota: dailyQuota,
		ResetAt:    &reset,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("Failed to create test usage: %v", err)
	}
	return u
}
