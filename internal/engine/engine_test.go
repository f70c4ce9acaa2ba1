package engine

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/qs3c/codeforge_server/internal/repository"
	"github.com/qs3c/codeforge_server/internal/testutil"
)

func newTestEngine(t *testing.T, fake *testutil.FakeLLM) *Engine {
	e, _ := newTestEngineWithDB(t, fake)
	return e
}

func newTestEngineWithDB(t *testing.T, fake *testutil.FakeLLM) (*Engine, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return New(fake, repository.NewChunkRepository(db), testutil.TestConfig().Pipeline, nil), db
}

// newObservedEngine 记录 warn 及以上级别日志，用于断言降级留痕
func newObservedEngine(t *testing.T, fake *testutil.FakeLLM) (*Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	db := testutil.SetupTestDB(t)
	return New(fake, repository.NewChunkRepository(db), testutil.TestConfig().Pipeline, zap.New(core)), logs
}
