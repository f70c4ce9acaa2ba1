package llm

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_+#.-]*[ \\t]*\\r?\\n(.*?)\\r?\\n?```")

// StripCodeFences 去掉 markdown 代码块包裹，没有代码块时原样返回（去首尾空白）
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	// 未闭合的开头 fence
	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			return strings.TrimSpace(strings.TrimSuffix(trimmed[idx+1:], "```"))
		}
		return ""
	}
	return trimmed
}

// ExtractJSON 从模型输出中取出 JSON 文本，找不到合法 JSON 时返回空串
func ExtractJSON(text string) string {
	candidate := StripCodeFences(text)
	if gjson.Valid(candidate) {
		return candidate
	}

	start := strings.IndexAny(candidate, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if candidate[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(candidate, closer)
	if end <= start {
		return ""
	}
	sub := candidate[start : end+1]
	if gjson.Valid(sub) {
		return sub
	}
	return ""
}
