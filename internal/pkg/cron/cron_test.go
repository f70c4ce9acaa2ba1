package cron

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/dockey"
	"github.com/qs3c/codeforge_server/internal/repository"
	"github.com/qs3c/codeforge_server/internal/service"
	"github.com/qs3c/codeforge_server/internal/testutil"
)

type fakeArchive struct {
	deleted []string
	err     error
}

func (f *fakeArchive) DeleteDocument(urlHash string) (int, error) {
	f.deleted = append(f.deleted, urlHash)
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func setupCronService(t *testing.T, archive ArchiveDeleter) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	quotaService := service.NewQuotaService(repository.NewUsageRepository(db), testutil.TestConfig())
	return NewService(quotaService, repository.NewChunkRepository(db), archive, 30, nil), db
}

// ageChunks 把某文档的分块创建时间改到过去
func ageChunks(t *testing.T, db *gorm.DB, url string, age time.Duration) {
	t.Helper()
	err := db.Model(&model.DocChunk{}).
		Where("url_hash = ?", dockey.Hash(url)).
		Update("created_at", time.Now().Add(-age)).Error
	require.NoError(t, err)
}

func TestNewService(t *testing.T) {
	svc := NewService(nil, nil, nil, 7, nil)
	assert.NotNil(t, svc)
	assert.NotNil(t, svc.logger)
	assert.NotNil(t, svc.stopChan)
	assert.Equal(t, 7*24*time.Hour, svc.chunkExpire)
}

func TestService_StartAndStop(t *testing.T) {
	svc, _ := setupCronService(t, nil)

	svc.Start()
	time.Sleep(10 * time.Millisecond)
	svc.Stop()
}

func TestService_RunNow(t *testing.T) {
	svc, db := setupCronService(t, nil)
	testutil.TestUsage(t, db, 1, 5, 20)
	testutil.TestUsage(t, db, 2, 20, 20)

	require.NoError(t, svc.RunNow())

	var counters []model.UsageCounter
	require.NoError(t, db.Find(&counters).Error)
	require.Len(t, counters, 2)
	for _, c := range counters {
		assert.Equal(t, 0, c.UsedToday, "user %d should be reset", c.UserID)
	}
}

func TestService_PurgeStaleDocuments(t *testing.T) {
	archive := &fakeArchive{}
	svc, db := setupCronService(t, archive)

	const staleURL = "https://example.com/old"
	const freshURL = "https://example.com/new"
	testutil.TestChunks(t, db, staleURL, []string{"a", "b", "c"}, nil)
	testutil.TestChunks(t, db, freshURL, []string{"d"}, nil)
	ageChunks(t, db, staleURL, 40*24*time.Hour)

	before := time.Now().Add(-30 * 24 * time.Hour)

	report, err := svc.PurgeStaleDocuments(before, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, int64(3), report.Chunks)
	assert.Empty(t, archive.deleted, "dry run touches nothing")

	report, err = svc.PurgeStaleDocuments(before, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Chunks)
	assert.Equal(t, 2, report.Archives)
	assert.Equal(t, []string{dockey.Hash(staleURL)}, archive.deleted)

	var count int64
	require.NoError(t, db.Model(&model.DocChunk{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestService_PurgeStaleDocuments_ArchiveErrorIsNotFatal(t *testing.T) {
	archive := &fakeArchive{err: errors.New("oss unavailable")}
	svc, db := setupCronService(t, archive)

	testutil.TestChunks(t, db, "https://example.com/old", []string{"a"}, nil)
	ageChunks(t, db, "https://example.com/old", 40*24*time.Hour)

	report, err := svc.PurgeStaleDocuments(time.Now().Add(-24*time.Hour), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Chunks)
	assert.Equal(t, 0, report.Archives)
}
