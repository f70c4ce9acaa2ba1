package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/model/dto"
	"github.com/qs3c/codeforge_server/internal/repository"
	"github.com/qs3c/codeforge_server/internal/testutil"
	"github.com/qs3c/codeforge_server/internal/worker"
)

type stubRunner struct {
	requests []worker.Request
	result   *model.Generation
	err      error
}

func (r *stubRunner) Run(ctx context.Context, req worker.Request) (*model.Generation, error) {
	r.requests = append(r.requests, req)
	return r.result, r.err
}

func setupGenerationService(t *testing.T) (*GenerationService, *stubRunner, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig()
	runner := &stubRunner{result: &model.Generation{ID: 1, Status: model.GenerationCompleted}}
	svc := NewGenerationService(
		runner,
		repository.NewGenerationRepository(db),
		NewQuotaService(repository.NewUsageRepository(db), cfg),
	)
	return svc, runner, db
}

func TestGenerationService_Create(t *testing.T) {
	svc, runner, _ := setupGenerationService(t)

	g, err := svc.Create(context.Background(), 3, &dto.CreateGenerationRequest{
		TaskDescription:   "  read a csv file  ",
		DocURL:            " https://docs.python.org/3/library/csv.html ",
		Language:          "python",
		SelectedTaskIndex: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.ID)

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, int64(3), req.UserID)
	assert.Equal(t, "read a csv file", req.TaskDescription)
	assert.Equal(t, "https://docs.python.org/3/library/csv.html", req.DocURL)
	assert.Equal(t, 2, req.SelectedTaskIndex)
}

func TestGenerationService_Create_EmptyTask(t *testing.T) {
	svc, runner, _ := setupGenerationService(t)

	_, err := svc.Create(context.Background(), 3, &dto.CreateGenerationRequest{TaskDescription: "   ", Language: "go"})
	assert.ErrorIs(t, err, ErrEmptyTask)
	assert.Empty(t, runner.requests)
}

func TestGenerationService_Create_QuotaExceeded(t *testing.T) {
	svc, runner, db := setupGenerationService(t)
	testutil.TestUsage(t, db, 3, 20, 20)

	_, err := svc.Create(context.Background(), 3, &dto.CreateGenerationRequest{TaskDescription: "sort a list", Language: "go"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Empty(t, runner.requests)
}

func TestGenerationService_GetByID(t *testing.T) {
	svc, _, db := setupGenerationService(t)
	g := testutil.TestGeneration(t, db, 1)

	got, err := svc.GetByID(1, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.TaskDescription, got.TaskDescription)

	// 他人的记录等同不存在
	_, err = svc.GetByID(2, g.ID)
	assert.ErrorIs(t, err, ErrGenerationNotFound)

	_, err = svc.GetByID(1, 99999)
	assert.ErrorIs(t, err, ErrGenerationNotFound)
}

func TestGenerationService_List(t *testing.T) {
	svc, _, db := setupGenerationService(t)
	for i := 0; i < 3; i++ {
		testutil.TestGeneration(t, db, 1)
	}
	testutil.TestGeneration(t, db, 2, testutil.WithGenerationStatus(model.GenerationFailed))

	items, total, err := svc.List(1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, items, 2)
	assert.NotEmpty(t, items[0].CreatedAt)

	items, total, err = svc.List(2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, model.GenerationFailed, items[0].Status)
}
