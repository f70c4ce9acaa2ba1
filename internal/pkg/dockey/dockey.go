package dockey

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Normalize 统一 URL 形式：去空白、scheme/host 小写、去 fragment、去末尾斜杠
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	} else {
		u.Path = ""
	}
	return u.String()
}

// Hash 规范化 URL 的 sha256，作为分块去重键
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(Normalize(raw)))
	return hex.EncodeToString(sum[:])
}
