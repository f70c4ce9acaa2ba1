package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/codeforge_server/internal/api/middleware"
	"github.com/qs3c/codeforge_server/internal/ingest"
	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/response"
	"github.com/qs3c/codeforge_server/internal/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockAuth 模拟认证中间件
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

// decodeData 把 Response.Data 解到目标结构
func decodeData(t *testing.T, resp response.Response, out interface{}) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

type stubRunner struct {
	result *model.Generation
	err    error
	calls  int
}

func (r *stubRunner) Run(ctx context.Context, req worker.Request) (*model.Generation, error) {
	r.calls++
	if r.result != nil {
		r.result.UserID = req.UserID
		r.result.TaskDescription = req.TaskDescription
	}
	return r.result, r.err
}

type stubIngester struct {
	result *ingest.Result
	err    error
}

func (s *stubIngester) Ingest(ctx context.Context, url string, force bool) (*ingest.Result, error) {
	return s.result, s.err
}

var errFetch = errors.New("fetch https://example.com: unexpected status 404")
