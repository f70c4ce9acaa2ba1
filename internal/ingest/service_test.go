package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/dockey"
	"github.com/qs3c/codeforge_server/internal/repository"
	"github.com/qs3c/codeforge_server/internal/testutil"
)

type docServer struct {
	mu   sync.Mutex
	body string
	ct   string
	hits int
	srv  *httptest.Server
}

func newDocServer(t *testing.T, contentType, body string) *docServer {
	t.Helper()
	d := &docServer{body: body, ct: contentType}
	d.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.hits++
		w.Header().Set("Content-Type", d.ct)
		w.Write([]byte(d.body))
	}))
	t.Cleanup(d.srv.Close)
	return d
}

func (d *docServer) set(body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.body = body
}

func (d *docServer) hitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits
}

type fakeArchiver struct {
	err  error
	keys []string
}

func (a *fakeArchiver) ArchiveDocument(urlHash, version string, content []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, urlHash+"/"+version)
	return "https://cdn.example.com/docs/" + urlHash + "/" + version + ".md", nil
}

func docBody(paragraphs int) string {
	var parts []string
	for i := 0; i < paragraphs; i++ {
		parts = append(parts, "Requests sessions keep cookies and connection pools. "+strings.Repeat("Use session.get for repeated calls. ", 100))
	}
	return strings.Join(parts, "\n\n")
}

func setupService(t *testing.T, archiver Archiver) (*Service, *repository.ChunkRepository, *testutil.FakeLLM) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repo := repository.NewChunkRepository(db)
	fake := testutil.NewFakeLLM()
	cfg := testutil.TestConfig().Ingest
	return NewService(repo, fake, nil, archiver, cfg, nil), repo, fake
}

func TestService_IngestAndCache(t *testing.T) {
	docs := newDocServer(t, "text/markdown", docBody(6))
	svc, repo, fake := setupService(t, nil)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, docs.srv.URL+"/guide", false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Greater(t, first.ChunkCount, 1)
	assert.Equal(t, "latest", first.Version)
	assert.Empty(t, first.Warnings)
	assert.Equal(t, first.ChunkCount, fake.EmbedCalls())

	chunks, err := repo.ListByURLHash(dockey.Hash(docs.srv.URL+"/guide"), "")
	require.NoError(t, err)
	require.Len(t, chunks, first.ChunkCount)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, first.DocumentID, c.DocumentID)
		assert.True(t, c.HasEmbedding())
		assert.LessOrEqual(t, c.TokenCount, 1200)
	}

	// 第二次命中缓存，不再抓取或计算向量
	second, err := svc.Ingest(ctx, docs.srv.URL+"/guide/", false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	assert.Equal(t, 1, docs.hitCount())
	assert.Equal(t, first.ChunkCount, fake.EmbedCalls())
}

func TestService_ForceRefreshReplacesChunks(t *testing.T) {
	docs := newDocServer(t, "text/markdown", docBody(6))
	svc, repo, _ := setupService(t, nil)
	ctx := context.Background()
	url := docs.srv.URL + "/guide"

	first, err := svc.Ingest(ctx, url, false)
	require.NoError(t, err)
	require.Greater(t, first.ChunkCount, 1)

	docs.set(docBody(1))
	refreshed, err := svc.Ingest(ctx, url, true)
	require.NoError(t, err)
	assert.False(t, refreshed.Cached)
	assert.Equal(t, 1, refreshed.ChunkCount)
	assert.NotEqual(t, first.DocumentID, refreshed.DocumentID)

	count, err := repo.CountByURLHash(dockey.Hash(url))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestService_ConcurrentIngestStoresOnce(t *testing.T) {
	docs := newDocServer(t, "text/markdown", docBody(4))
	svc, repo, _ := setupService(t, nil)
	url := docs.srv.URL + "/guide"

	var wg sync.WaitGroup
	results := make([]*Result, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Ingest(context.Background(), url, false)
			if assert.NoError(t, err) {
				results[i] = r
			}
		}(i)
	}
	wg.Wait()

	count, err := repo.CountByURLHash(dockey.Hash(url))
	require.NoError(t, err)
	require.NotNil(t, results[0])
	assert.Equal(t, int64(results[0].ChunkCount), count)
}

func TestService_LosingWriterReportsStoredDocument(t *testing.T) {
	docs := newDocServer(t, "text/markdown", docBody(2))
	db := testutil.SetupTestDB(t)
	repo := repository.NewChunkRepository(db)
	fake := testutil.NewFakeLLM()
	url := docs.srv.URL + "/guide"

	// 第一次计算向量时另一个写入方抢先落库
	var once sync.Once
	var winner []*model.DocChunk
	fake.EmbedFunc = func(text string) ([]float32, error) {
		once.Do(func() {
			winner = testutil.TestChunks(t, db, url, []string{"first", "second"}, nil)
		})
		return testutil.KeywordEmbedding(text), nil
	}
	svc := NewService(repo, fake, nil, nil, testutil.TestConfig().Ingest, nil)

	result, err := svc.Ingest(context.Background(), url, false)
	require.NoError(t, err)
	require.NotEmpty(t, winner)
	assert.Equal(t, winner[0].DocumentID, result.DocumentID)
	assert.Equal(t, 2, result.ChunkCount)

	stored, err := repo.ListByDocumentID(result.DocumentID)
	require.NoError(t, err)
	assert.Len(t, stored, result.ChunkCount)
}

func TestService_RejectsShortAndEmptyContent(t *testing.T) {
	svc, repo, _ := setupService(t, nil)
	ctx := context.Background()

	short := newDocServer(t, "text/markdown", "# Tiny\n\nNot much here.")
	_, err := svc.Ingest(ctx, short.srv.URL, false)
	assert.ErrorIs(t, err, ErrContentTooShort)

	empty := newDocServer(t, "text/html", "<html><body><nav>menu</nav><script>x()</script></body></html>")
	_, err = svc.Ingest(ctx, empty.srv.URL, false)
	assert.ErrorIs(t, err, ErrEmptyContent)

	count, err := repo.CountByURLHash(dockey.Hash(short.srv.URL))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_EmbeddingFailureBecomesWarning(t *testing.T) {
	docs := newDocServer(t, "text/markdown", docBody(3))
	svc, repo, fake := setupService(t, nil)
	fake.EmbedFunc = func(text string) ([]float32, error) {
		return nil, errors.New("embedding backend down")
	}

	result, err := svc.Ingest(context.Background(), docs.srv.URL, false)
	require.NoError(t, err)
	require.Len(t, result.Warnings, result.ChunkCount)
	assert.Contains(t, result.Warnings[0], "chunk 0: embedding failed")

	chunks, err := repo.ListByURLHash(result.URLHash, "")
	require.NoError(t, err)
	for _, c := range chunks {
		assert.False(t, c.HasEmbedding())
	}
}

func TestService_Archive(t *testing.T) {
	docs := newDocServer(t, "text/markdown", "Version 2.5.0\n\n"+docBody(1))

	archiver := &fakeArchiver{}
	svc, _, _ := setupService(t, archiver)
	result, err := svc.Ingest(context.Background(), docs.srv.URL, false)
	require.NoError(t, err)
	assert.Equal(t, "2.5.0", result.Version)
	assert.Equal(t, []string{result.URLHash + "/2.5.0"}, archiver.keys)
	assert.Contains(t, result.ArchiveURL, "2.5.0.md")

	failing := &fakeArchiver{err: errors.New("oss unavailable")}
	svc, _, _ = setupService(t, failing)
	result, err = svc.Ingest(context.Background(), docs.srv.URL, false)
	require.NoError(t, err)
	assert.Empty(t, result.ArchiveURL)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "archive failed")
}

func TestService_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	svc, _, _ := setupService(t, nil)
	_, err := svc.Ingest(context.Background(), srv.URL+"/missing", false)
	assert.Error(t, err)
}
