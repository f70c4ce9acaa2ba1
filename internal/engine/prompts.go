package engine

import (
	"fmt"
	"strings"

	"github.com/qs3c/codeforge_server/internal/model"
)

const enhanceSystemPrompt = `You turn a short programming task into implementation-ready specifications.
Return a JSON object of the form:
{"variations": [{"title": "...", "description": "...", "keyRequirements": ["..."], "suggestedApproach": "..."}]}
Produce exactly 3 variations that differ in scope or approach. Keep every field concrete and testable.`

const primarySystemPrompt = `You are a senior %s engineer. Write complete, working code that solves the task.
Follow the supplied documentation exactly when it describes an API. Prefer clear, idiomatic code.
Return only the code, optionally inside one fenced code block. No explanations.`

const alternativeSystemPrompt = `You are a senior %s engineer producing an ALTERNATIVE solution.
Deliberately choose a different algorithm, structure or library pattern than the most obvious one,
while still solving the task completely and following the supplied documentation.
Return only the code, optionally inside one fenced code block. No explanations.`

const judgeSystemPrompt = `You review competing code solutions for the same task.
Score every candidate from 0 to 100 on correctness, security, simplicity and docAdherence,
and give each a total. Pick the best one.
Return a JSON object:
{"selectedIndex": 0, "scores": [{"correctness": 0, "security": 0, "simplicity": 0, "docAdherence": 0, "total": 0}], "reasoning": "..."}
The scores array must have one entry per candidate, in candidate order.`

const validateSystemPrompt = `You simulate running code mentally and predict whether it works.
Consider syntax errors, missing imports, wrong API usage, unhandled edge cases and crashes.
Return a JSON object: {"passed": true, "score": 0-100, "error": null}
Set "error" to a short description of the most likely runtime failure, or null if none.`

const fixSystemPrompt = `You repair broken %s code. Make the smallest change that fixes the reported error.
Keep everything else identical. Return the full corrected code only, optionally inside one fenced code block.`

const auditSystemPrompt = `You are an application security reviewer.
Check the code for: injection (SQL, command, code), path traversal, insecure deserialization,
hardcoded credentials, weak cryptography, SSRF, XSS, missing input validation and resource exhaustion.
Also note performance concerns.
Return a JSON object:
{"overallRisk": "low|medium|high|critical", "findings": [{"severity": "low|medium|high|critical", "category": "...", "description": "...", "line": null, "recommendation": "..."}], "performanceNotes": ["..."], "score": 0-100}`

func enhanceUserPrompt(task, language string) string {
	return fmt.Sprintf("Task: %s\nTarget language: %s", task, language)
}

func generateUserPrompt(task, docContext, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n\n## Task\n%s\n", language, task)
	if strings.TrimSpace(docContext) != "" {
		fmt.Fprintf(&b, "\n## Documentation\n%s\n", docContext)
	}
	return b.String()
}

func judgeUserPrompt(candidates []model.Candidate, task, docContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Task\n%s\n", task)
	if strings.TrimSpace(docContext) != "" {
		fmt.Fprintf(&b, "\n## Documentation\n%s\n", docContext)
	}
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n## Candidate %d (%s)\n```\n%s\n```\n", i, c.Role, c.Code)
	}
	return b.String()
}

func validateUserPrompt(code, language, task string) string {
	return fmt.Sprintf("Language: %s\nTask: %s\n\n```%s\n%s\n```", language, task, language, code)
}

func fixUserPrompt(code, errorText, language string) string {
	return fmt.Sprintf("Error:\n%s\n\nCode:\n```%s\n%s\n```", errorText, language, code)
}

func auditUserPrompt(code, language string) string {
	return fmt.Sprintf("Language: %s\n\n```%s\n%s\n```", language, language, code)
}

// RenderTask 把增强任务渲染为生成阶段使用的文本
func RenderTask(t model.EnhancedTask) string {
	var b strings.Builder
	if t.Title != "" {
		b.WriteString(t.Title)
		b.WriteString("\n\n")
	}
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n\n")
	}
	if len(t.KeyRequirements) > 0 {
		b.WriteString("Requirements:\n")
		for _, r := range t.KeyRequirements {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if t.SuggestedApproach != "" {
		b.WriteString("Approach: ")
		b.WriteString(t.SuggestedApproach)
	}
	return strings.TrimSpace(b.String())
}
