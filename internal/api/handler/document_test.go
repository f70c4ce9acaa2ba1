package handler

import (
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/codeforge_server/internal/ingest"
	"github.com/qs3c/codeforge_server/internal/model/dto"
	"github.com/qs3c/codeforge_server/internal/pkg/response"
	"github.com/qs3c/codeforge_server/internal/repository"
	"github.com/qs3c/codeforge_server/internal/service"
	"github.com/qs3c/codeforge_server/internal/testutil"
)

func setupDocumentHandler(t *testing.T, ingester *stubIngester) (*gin.Engine, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	svc := service.NewDocumentService(ingester, repository.NewChunkRepository(db), 16)
	h := NewDocumentHandler(svc, nil)

	router := gin.New()
	router.POST("/docs/ingest", h.Ingest)
	router.GET("/docs/chunks/:id", h.GetChunk)
	return router, db
}

func TestDocumentHandler_Ingest(t *testing.T) {
	router, _ := setupDocumentHandler(t, &stubIngester{result: &ingest.Result{
		DocumentID: "doc-1", ChunkCount: 4, Version: "3.12", Cached: true,
	}})

	_, resp := doJSON(t, router, "POST", "/docs/ingest", map[string]interface{}{"url": "https://docs.python.org/3/library/os.html"})
	require.Equal(t, response.CodeSuccess, resp.Code)

	var out dto.IngestResponse
	decodeData(t, resp, &out)
	assert.Equal(t, "doc-1", out.DocumentID)
	assert.Equal(t, 4, out.ChunkCount)
	assert.True(t, out.Cached)
}

func TestDocumentHandler_Ingest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]interface{}
		err      error
		wantCode int
	}{
		{"missing url", map[string]interface{}{}, nil, response.CodeParamError},
		{"invalid url", map[string]interface{}{"url": "nope"}, nil, response.CodeParamError},
		{"too short", map[string]interface{}{"url": "https://example.com"}, ingest.ErrContentTooShort, response.CodeParamError},
		{"no content", map[string]interface{}{"url": "https://example.com"}, fmt.Errorf("extract: %w", ingest.ErrEmptyContent), response.CodeParamError},
		{"fetch failure", map[string]interface{}{"url": "https://example.com"}, errFetch, response.CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupDocumentHandler(t, &stubIngester{err: tt.err})
			_, resp := doJSON(t, router, "POST", "/docs/ingest", tt.body)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestDocumentHandler_GetChunk(t *testing.T) {
	router, db := setupDocumentHandler(t, &stubIngester{})
	chunks := testutil.TestChunks(t, db, "https://example.com/docs", []string{"hello docs"}, [][]float32{{1, 2}})

	_, resp := doJSON(t, router, "GET", fmt.Sprintf("/docs/chunks/%d", chunks[0].ID), nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	var out map[string]interface{}
	decodeData(t, resp, &out)
	assert.Equal(t, "hello docs", out["content"])
	assert.Equal(t, "https://example.com/docs", out["source_url"])
	assert.NotContains(t, out, "embedding")

	_, resp = doJSON(t, router, "GET", "/docs/chunks/424242", nil)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)

	_, resp = doJSON(t, router, "GET", "/docs/chunks/x", nil)
	assert.Equal(t, response.CodeParamError, resp.Code)
}
