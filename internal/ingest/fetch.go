package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "codeforge-ingest/1.0"

// Document 抓取到的原始文档
type Document struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher 带超时和大小上限的文档抓取
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// RawURL 把代码托管平台的 blob 页面改写成原始内容地址
func RawURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(u.Host)
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch {
	case host == "github.com" || host == "www.github.com":
		// /<owner>/<repo>/blob/<ref>/<path...>
		if len(parts) >= 5 && parts[2] == "blob" {
			u.Host = "raw.githubusercontent.com"
			u.Path = "/" + strings.Join(append(parts[:2:2], parts[3:]...), "/")
			u.RawQuery = ""
			u.Fragment = ""
			return u.String()
		}
	case host == "gitlab.com" || strings.HasPrefix(host, "gitlab."):
		if strings.Contains(u.Path, "/-/blob/") {
			u.Path = strings.Replace(u.Path, "/-/blob/", "/-/raw/", 1)
			u.Fragment = ""
			return u.String()
		}
	}
	return raw
}

// Fetch 抓取文档，非 2xx 视为失败
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	target := RawURL(rawURL)
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid document url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/markdown, text/plain, text/html;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	return &Document{
		URL:         target,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
