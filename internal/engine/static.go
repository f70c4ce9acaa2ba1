package engine

import (
	"fmt"
	"regexp"
	"strings"
)

const minCodeLength = 10

// staticRule 一条反模式规则，无论命中几个模式只扣一次分
type staticRule struct {
	issue    string
	penalty  int
	patterns []langPattern
}

// langPattern lang 为空表示适用所有语言
type langPattern struct {
	lang string
	re   *regexp.Regexp
}

func everywhere(expr string) langPattern { return langPattern{re: regexp.MustCompile(expr)} }

func only(lang, expr string) langPattern { return langPattern{lang: lang, re: regexp.MustCompile(expr)} }

var staticRules = []staticRule{
	{
		issue:   "Use of eval-like construct",
		penalty: 15,
		patterns: []langPattern{
			everywhere(`\beval\s*\(`),
			everywhere(`\bnew\s+Function\s*\(`),
			only("python", `\bexec\s*\(`),
		},
	},
	{
		issue:   "Possible hardcoded secret",
		penalty: 20,
		patterns: []langPattern{
			everywhere(`(?i)\b\w*(api[_-]?key|secret|passwd|password|token|access[_-]?key)\w*\s*[:=]\s*["'][^"'\s]{8,}["']`),
			everywhere(`\bsk-[A-Za-z0-9_-]{20,}`),
			everywhere(`\bAKIA[0-9A-Z]{16}\b`),
			everywhere(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
		},
	},
	{
		issue:    "TODO/FIXME marker left in code",
		penalty:  5,
		patterns: []langPattern{everywhere(`\b(TODO|FIXME)\b`)},
	},
	{
		issue:   "Debug statement left in code",
		penalty: 3,
		patterns: []langPattern{
			only("javascript", `\bconsole\.(log|debug)\s*\(`),
			only("typescript", `\bconsole\.(log|debug)\s*\(`),
			only("python", `\bpdb\.set_trace\s*\(`),
			only("python", `\bbreakpoint\s*\(\s*\)`),
			only("java", `\bSystem\.out\.print`),
		},
	},
	{
		issue:   "Loose equality (use === / !==)",
		penalty: 5,
		patterns: []langPattern{
			only("javascript", `(^|[^=!<>])(==|!=)([^=]|$)`),
			only("typescript", `(^|[^=!<>])(==|!=)([^=]|$)`),
		},
	},
	{
		issue:    "Bare except clause",
		penalty:  10,
		patterns: []langPattern{only("python", `(?m)^\s*except\s*:`)},
	},
	{
		issue:   "Wildcard import",
		penalty: 5,
		patterns: []langPattern{
			only("python", `(?m)^\s*from\s+\S+\s+import\s+\*`),
			only("java", `(?m)^\s*import\s+(static\s+)?[\w.]+\.\*\s*;`),
		},
	},
}

const bracketPenalty = 15

// NormalizeLanguage 统一语言名
func NormalizeLanguage(language string) string {
	switch l := strings.ToLower(strings.TrimSpace(language)); l {
	case "py", "python3":
		return "python"
	case "js", "node", "nodejs":
		return "javascript"
	case "ts":
		return "typescript"
	case "golang":
		return "go"
	default:
		return l
	}
}

// StaticAnalyze 纯模式匹配的静态检查，从 100 分开始按规则扣分，最低 0
func StaticAnalyze(code, language string) (int, []string) {
	if len(strings.TrimSpace(code)) < minCodeLength {
		return 0, []string{"Code is too short or empty"}
	}
	language = NormalizeLanguage(language)

	score := 100
	issues := []string{}
	for _, rule := range staticRules {
		for _, p := range rule.patterns {
			if (p.lang == "" || p.lang == language) && p.re.MatchString(code) {
				score -= rule.penalty
				issues = append(issues, fmt.Sprintf("%s (-%d)", rule.issue, rule.penalty))
				break
			}
		}
	}

	if msg := checkBrackets(code, language); msg != "" {
		score -= bracketPenalty
		issues = append(issues, fmt.Sprintf("%s (-%d)", msg, bracketPenalty))
	}

	if score < 0 {
		score = 0
	}
	return score, issues
}

// checkBrackets 统计字符串和注释之外的括号，数量不一致时返回描述
func checkBrackets(code, language string) string {
	counts := map[rune]int{}

	hashComments := language == "python" || language == "ruby" || language == "shell" || language == "bash"
	runes := []rune(code)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'' || r == '`':
			i = skipString(runes, i)
		case hashComments && r == '#':
			i = skipLine(runes, i)
		case !hashComments && r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			i = skipLine(runes, i)
		case !hashComments && r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i = skipBlockComment(runes, i)
		case r == '(' || r == '[' || r == '{' || r == ')' || r == ']' || r == '}':
			counts[r]++
		}
	}

	var mismatched []string
	for _, pair := range []string{"()", "[]", "{}"} {
		p := []rune(pair)
		if counts[p[0]] != counts[p[1]] {
			mismatched = append(mismatched, pair)
		}
	}
	if len(mismatched) == 0 {
		return ""
	}
	return "Unbalanced brackets " + strings.Join(mismatched, " ")
}

func skipString(runes []rune, i int) int {
	quote := runes[i]
	for j := i + 1; j < len(runes); j++ {
		switch runes[j] {
		case '\\':
			j++
		case quote:
			return j
		case '\n':
			// 单行字符串未闭合，按行结束处理
			if quote != '`' {
				return j
			}
		}
	}
	return len(runes)
}

func skipLine(runes []rune, i int) int {
	for j := i; j < len(runes); j++ {
		if runes[j] == '\n' {
			return j
		}
	}
	return len(runes)
}

func skipBlockComment(runes []rune, i int) int {
	for j := i + 2; j+1 < len(runes); j++ {
		if runes[j] == '*' && runes[j+1] == '/' {
			return j + 1
		}
	}
	return len(runes)
}
