package engine

import (
	"math"

	"github.com/qs3c/codeforge_server/internal/model"
	"github.com/qs3c/codeforge_server/internal/pkg/vector"
)

const (
	weightJudge   = 0.4
	weightRuntime = 0.3
	weightStatic  = 0.2
	weightDoc     = 0.1
)

// Confidence 综合置信度
type Confidence struct {
	Score     int
	Status    string
	Breakdown model.ConfidenceBreakdown
}

// Score 加权求和：judge×0.4 + runtime×0.3 + static×0.2 + docSimilarity×100×0.1
func Score(judgeTotal, runtimeScore, staticScore int, docSimilarity float64) Confidence {
	b := model.ConfidenceBreakdown{
		Judge:         float64(judgeTotal) * weightJudge,
		Runtime:       float64(runtimeScore) * weightRuntime,
		Static:        float64(staticScore) * weightStatic,
		DocSimilarity: vector.Clamp01(docSimilarity) * 100 * weightDoc,
	}
	score := int(math.Round(b.Judge + b.Runtime + b.Static + b.DocSimilarity))

	status := model.Unverified
	switch {
	case score >= 75 && runtimeScore >= 70 && staticScore >= 60:
		status = model.Verified
	case score >= 50:
		status = model.Partial
	}
	return Confidence{Score: score, Status: status, Breakdown: b}
}
