package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/llm"
)

// ErrEnhanceParse 增强结果中没有可用条目
var ErrEnhanceParse = errors.New("task enhancement returned no usable entries")

const enhanceVariations = 3

// 包裹数组时可能使用的 key，按优先级
var enhanceWrapperKeys = []string{
	"variations", "tasks", "specifications", "enhancedTasks", "enhanced_tasks", "items", "results",
}

type Enhancer struct {
	llm       llm.Completer
	model     string
	maxTokens int
	logger    *zap.Logger
}

func NewEnhancer(completer llm.Completer, modelName string, maxTokens int, logger *zap.Logger) *Enhancer {
	return &Enhancer{llm: completer, model: modelName, maxTokens: maxTokens, logger: orNop(logger)}
}

// Enhance 把任务扩展为最多 3 个结构化规格；调用失败或无可用条目时返回错误
func (e *Enhancer) Enhance(ctx context.Context, task, language string) ([]model.EnhancedTask, error) {
	text, err := e.llm.Complete(ctx, llm.CompletionRequest{
		Model: e.model,
		Messages: []llm.Message{
			{Role: "system", Content: enhanceSystemPrompt},
			{Role: "user", Content: enhanceUserPrompt(task, language)},
		},
		Temperature: 0.7,
		MaxTokens:   e.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("enhance task: %w", err)
	}

	tasks := ParseEnhancedTasks(text)
	if len(tasks) == 0 {
		e.logger.Warn("enhancement response unusable", zap.String("response", truncate(text, 300)))
		return nil, ErrEnhanceParse
	}
	if len(tasks) > enhanceVariations {
		tasks = tasks[:enhanceVariations]
	}
	return tasks, nil
}

// ParseEnhancedTasks 接受裸数组或包裹在已知 key 下的数组
func ParseEnhancedTasks(text string) []model.EnhancedTask {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return nil
	}
	root := gjson.Parse(raw)

	var items gjson.Result
	switch {
	case root.IsArray():
		items = root
	case root.IsObject():
		for _, key := range enhanceWrapperKeys {
			if v := root.Get(key); v.IsArray() {
				items = v
				break
			}
		}
		if !items.Exists() {
			root.ForEach(func(_, v gjson.Result) bool {
				if v.IsArray() {
					items = v
					return false
				}
				return true
			})
		}
	}
	if !items.IsArray() {
		return nil
	}

	var tasks []model.EnhancedTask
	for _, item := range items.Array() {
		if !item.IsObject() {
			continue
		}
		t := model.EnhancedTask{
			Title:             strings.TrimSpace(firstString(item, "title", "name")),
			Description:       strings.TrimSpace(firstString(item, "description", "summary")),
			SuggestedApproach: strings.TrimSpace(firstString(item, "suggestedApproach", "suggested_approach", "approach")),
			KeyRequirements:   stringList(firstField(item, "keyRequirements", "key_requirements", "requirements")),
		}
		if t.Title == "" && t.Description == "" {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

func firstField(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func firstString(obj gjson.Result, keys ...string) string {
	v := firstField(obj, keys...)
	if v.Type == gjson.String {
		return v.String()
	}
	return ""
}

// stringList 数组取非空字符串，单个字符串视为一元素列表
func stringList(v gjson.Result) []string {
	if v.Type == gjson.String {
		if s := strings.TrimSpace(v.String()); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, item := range v.Array() {
		if item.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
