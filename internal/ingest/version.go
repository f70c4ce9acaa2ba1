package ingest

import (
	"net/url"
	"regexp"
)

const defaultVersion = "latest"

var (
	// /v1.2/ /1.2.3/ @1.2.3 /v2.0.0-beta.1/
	pathSemverRe = regexp.MustCompile(`(?i)(?:^|[/@])v?(\d+\.\d+(?:\.\d+)?(?:-[0-9a-z.]+)?)(?:/|$)`)
	// /v3/
	pathMajorRe = regexp.MustCompile(`(?i)(?:^|/)(v\d+)(?:/|$)`)
	bodyLabelRe = regexp.MustCompile(`(?i)\bversion[:\s]+v?(\d+\.\d+(?:\.\d+)?)\b`)
	bodyTagRe   = regexp.MustCompile(`\bv(\d+\.\d+(?:\.\d+)?)\b`)
)

// DetectVersion 先查 URL 路径，再查正文，都没有时为 latest
func DetectVersion(rawURL, body string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if m := pathSemverRe.FindStringSubmatch(p); m != nil {
		return m[1]
	}
	if m := pathMajorRe.FindStringSubmatch(p); m != nil {
		return m[1]
	}
	if m := bodyLabelRe.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	if m := bodyTagRe.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return defaultVersion
}
