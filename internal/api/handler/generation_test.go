package handler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/codeforge_server/internal/engine"
	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/response"
	"github.com/qs3c/codeforge_server/internal/repository"
	"github.com/qs3c/codeforge_server/internal/service"
	"github.com/qs3c/codeforge_server/internal/testutil"
)

func setupGenerationHandler(t *testing.T, runner *stubRunner, userID int64) (*gin.Engine, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	quota := service.NewQuotaService(repository.NewUsageRepository(db), testutil.TestConfig())
	svc := service.NewGenerationService(runner, repository.NewGenerationRepository(db), quota)
	h := NewGenerationHandler(svc, nil)

	router := gin.New()
	router.Use(mockAuth(userID))
	router.POST("/generations", h.Create)
	router.GET("/generations", h.List)
	router.GET("/generations/:id", h.Get)
	return router, db
}

func TestGenerationHandler_Create(t *testing.T) {
	runner := &stubRunner{result: &model.Generation{ID: 5, Status: model.GenerationCompleted, ConfidenceScore: 88}}
	router, _ := setupGenerationHandler(t, runner, 1)

	_, resp := doJSON(t, router, "POST", "/generations", map[string]interface{}{
		"task_description": "parse a csv file",
		"language":         "python",
	})
	require.Equal(t, response.CodeSuccess, resp.Code)

	var g model.Generation
	decodeData(t, resp, &g)
	assert.Equal(t, int64(5), g.ID)
	assert.Equal(t, 88, g.ConfidenceScore)
	assert.Equal(t, "parse a csv file", g.TaskDescription)
}

func TestGenerationHandler_Create_Validation(t *testing.T) {
	runner := &stubRunner{}
	router, _ := setupGenerationHandler(t, runner, 1)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing task", map[string]interface{}{"language": "go"}},
		{"missing language", map[string]interface{}{"task_description": "x"}},
		{"bad url", map[string]interface{}{"task_description": "x", "language": "go", "doc_url": "not a url"}},
		{"index out of range", map[string]interface{}{"task_description": "x", "language": "go", "selected_task_index": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp := doJSON(t, router, "POST", "/generations", tt.body)
			assert.Equal(t, response.CodeParamError, resp.Code)
		})
	}
	assert.Zero(t, runner.calls)
}

func TestGenerationHandler_Create_QuotaExceeded(t *testing.T) {
	runner := &stubRunner{}
	router, db := setupGenerationHandler(t, runner, 1)
	testutil.TestUsage(t, db, 1, 20, 20)

	_, resp := doJSON(t, router, "POST", "/generations", map[string]interface{}{
		"task_description": "x", "language": "go",
	})
	assert.Equal(t, response.CodeQuotaExceeded, resp.Code)
	assert.Zero(t, runner.calls)
}

func TestGenerationHandler_Create_PipelineFailure(t *testing.T) {
	runner := &stubRunner{
		result: &model.Generation{ID: 6, Status: model.GenerationFailed},
		err:    fmt.Errorf("enhance: %w", engine.ErrEnhanceParse),
	}
	router, _ := setupGenerationHandler(t, runner, 1)

	_, resp := doJSON(t, router, "POST", "/generations", map[string]interface{}{
		"task_description": "x", "language": "go",
	})
	assert.Equal(t, response.CodePipelineFailed, resp.Code)
	assert.Contains(t, resp.Message, engine.ErrEnhanceParse.Error())
}

func TestGenerationHandler_Create_InternalError(t *testing.T) {
	runner := &stubRunner{err: errors.New("db down")}
	router, _ := setupGenerationHandler(t, runner, 1)

	_, resp := doJSON(t, router, "POST", "/generations", map[string]interface{}{
		"task_description": "x", "language": "go",
	})
	assert.Equal(t, response.CodeServerError, resp.Code)
}

func TestGenerationHandler_GetAndList(t *testing.T) {
	router, db := setupGenerationHandler(t, &stubRunner{}, 1)
	mine := testutil.TestGeneration(t, db, 1)
	testutil.TestGeneration(t, db, 1)
	theirs := testutil.TestGeneration(t, db, 2)

	_, resp := doJSON(t, router, "GET", fmt.Sprintf("/generations/%d", mine.ID), nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var g model.Generation
	decodeData(t, resp, &g)
	assert.Equal(t, mine.TaskDescription, g.TaskDescription)

	_, resp = doJSON(t, router, "GET", fmt.Sprintf("/generations/%d", theirs.ID), nil)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)

	_, resp = doJSON(t, router, "GET", "/generations/abc", nil)
	assert.Equal(t, response.CodeParamError, resp.Code)

	_, resp = doJSON(t, router, "GET", "/generations?page=1&page_size=1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var page response.PageData
	decodeData(t, resp, &page)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.PageSize)
	assert.Len(t, page.Items, 1)
}
