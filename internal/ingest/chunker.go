package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// EstimateTokens 按 4 字符 ≈ 1 token 估算
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// Chunk 按段落累积到 [minTokens, maxTokens] 窗口；超长段落按句子切分；
// 末尾不足 minTokens/2 的块总是并入前一块，合并后可略超 maxTokens
func Chunk(text string, minTokens, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = 1200
	}
	if minTokens <= 0 || minTokens > maxTokens {
		minTokens = maxTokens
	}

	var pieces []string
	for _, para := range splitParagraphs(text) {
		if EstimateTokens(para) > maxTokens {
			pieces = append(pieces, splitOversized(para, maxTokens)...)
		} else {
			pieces = append(pieces, para)
		}
	}

	var chunks []string
	var cur []string
	curTokens := 0
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n\n"))
		}
		cur = nil
		curTokens = 0
	}

	for _, p := range pieces {
		t := EstimateTokens(p)
		if curTokens > 0 && curTokens+t > maxTokens {
			flush()
		}
		cur = append(cur, p)
		curTokens += t
		if curTokens >= minTokens {
			flush()
		}
	}
	flush()

	if n := len(chunks); n > 1 && EstimateTokens(chunks[n-1]) < minTokens/2 {
		chunks[n-2] += "\n\n" + chunks[n-1]
		chunks = chunks[:n-1]
	}
	return chunks
}

// splitParagraphs 按空行切段，代码块内部的空行不切
func splitParagraphs(text string) []string {
	var paras []string
	var cur []string
	inFence := false

	flush := func() {
		p := strings.TrimSpace(strings.Join(cur, "\n"))
		if p != "" {
			paras = append(paras, p)
		}
		cur = nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if !inFence && strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return paras
}

// splitOversized 超长段落按句子边界贪心合并，单句仍超长时按字符硬切
func splitOversized(para string, maxTokens int) []string {
	var out []string
	var cur strings.Builder
	curTokens := 0

	for _, s := range splitSentences(para) {
		t := EstimateTokens(s)
		if t > maxTokens {
			if cur.Len() > 0 {
				out = append(out, strings.TrimSpace(cur.String()))
				cur.Reset()
				curTokens = 0
			}
			out = append(out, hardSplit(s, maxTokens*4)...)
			continue
		}
		if curTokens > 0 && curTokens+t > maxTokens {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
			curTokens = 0
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(s)
		curTokens += t
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}

// splitSentences 在 . ! ? 后跟空白处以及换行处切分
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		boundary := r == '\n'
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			boundary = true
		}
		if boundary {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func hardSplit(s string, maxChars int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		n := maxChars
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
