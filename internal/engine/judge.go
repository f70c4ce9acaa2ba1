package engine

import (
	"context"
	"math"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/llm"
)

const (
	singleCandidateScore = 75
	judgeFallbackScore   = 70
)

type Judge struct {
	llm       llm.Completer
	model     string
	maxTokens int
	logger    *zap.Logger
}

func NewJudge(completer llm.Completer, modelName string, maxTokens int, logger *zap.Logger) *Judge {
	return &Judge{llm: completer, model: modelName, maxTokens: maxTokens, logger: orNop(logger)}
}

// Evaluate 在候选之间择优；不会返回错误，解析失败时确定性地回退到第 0 个
func (j *Judge) Evaluate(ctx context.Context, candidates []model.Candidate, task, docContext string) model.JudgeResult {
	switch len(candidates) {
	case 0:
		return model.JudgeResult{Reasoning: "No candidates to judge.", Fallback: true}
	case 1:
		return model.JudgeResult{
			SelectedIndex: 0,
			Scores:        []model.CandidateScore{flatScore(singleCandidateScore)},
			Reasoning:     "Only one candidate was produced; comparison skipped.",
		}
	}

	text, err := j.llm.Complete(ctx, llm.CompletionRequest{
		Model: j.model,
		Messages: []llm.Message{
			{Role: "system", Content: judgeSystemPrompt},
			{Role: "user", Content: judgeUserPrompt(candidates, task, docContext)},
		},
		Temperature: 0.1,
		MaxTokens:   j.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		j.logger.Warn("judge call failed, using fallback verdict", zap.Error(err))
		return judgeFallback(len(candidates), "Judge call failed: "+err.Error())
	}

	result, ok := ParseJudgeResult(text, len(candidates))
	if !ok {
		j.logger.Warn("judge response unparseable, using fallback verdict", zap.String("response", truncate(text, 300)))
		return judgeFallback(len(candidates), "Judge response could not be parsed.")
	}
	return result
}

// ParseJudgeResult 解析评审输出并做边界修正：下标裁剪、补全缺失 total、补齐缺失的候选分数
func ParseJudgeResult(text string, n int) (model.JudgeResult, bool) {
	raw := llm.ExtractJSON(text)
	if raw == "" || n <= 0 {
		return model.JudgeResult{}, false
	}
	root := gjson.Parse(raw)
	scoresJSON := root.Get("scores")
	if !root.IsObject() || !scoresJSON.IsArray() || len(scoresJSON.Array()) == 0 {
		return model.JudgeResult{}, false
	}

	items := scoresJSON.Array()
	scores := make([]model.CandidateScore, n)
	for i := 0; i < n; i++ {
		if i >= len(items) || !items[i].IsObject() {
			scores[i] = flatScore(judgeFallbackScore)
			continue
		}
		scores[i] = parseCandidateScore(items[i])
	}

	var selected int
	if v := root.Get("selectedIndex"); v.Type == gjson.Number {
		selected = clampInt(int(v.Int()), 0, n-1)
	} else {
		selected = bestIndex(scores)
	}

	reasoning := root.Get("reasoning").String()
	return model.JudgeResult{
		SelectedIndex: selected,
		Scores:        scores,
		Reasoning:     reasoning,
	}, true
}

func parseCandidateScore(obj gjson.Result) model.CandidateScore {
	sub := func(key string) int {
		v := obj.Get(key)
		if v.Type != gjson.Number {
			return judgeFallbackScore
		}
		return clampScore(v.Float())
	}
	s := model.CandidateScore{
		Correctness:  sub("correctness"),
		Security:     sub("security"),
		Simplicity:   sub("simplicity"),
		DocAdherence: sub("docAdherence"),
	}
	if v := obj.Get("total"); v.Type == gjson.Number {
		s.Total = clampScore(v.Float())
	} else {
		s.Total = int(math.Round(float64(s.Correctness+s.Security+s.Simplicity+s.DocAdherence) / 4))
	}
	return s
}

func judgeFallback(n int, reason string) model.JudgeResult {
	scores := make([]model.CandidateScore, n)
	for i := range scores {
		scores[i] = flatScore(judgeFallbackScore)
	}
	return model.JudgeResult{
		SelectedIndex: 0,
		Scores:        scores,
		Reasoning:     reason + " Defaulted to the first candidate.",
		Fallback:      true,
	}
}

func flatScore(v int) model.CandidateScore {
	return model.CandidateScore{Correctness: v, Security: v, Simplicity: v, DocAdherence: v, Total: v}
}

func bestIndex(scores []model.CandidateScore) int {
	best := 0
	for i, s := range scores {
		if s.Total > scores[best].Total {
			best = i
		}
	}
	return best
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return clampInt(int(math.Round(v)), 0, 100)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
