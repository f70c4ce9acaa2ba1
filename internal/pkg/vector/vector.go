package vector

import (
	"math"
	"sort"
)

// Cosine 余弦相似度，维度不一致或零向量时返回 0
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Score 余弦相似度裁剪到 [0,1]
func Score(a, b []float32) float64 {
	return Clamp01(Cosine(a, b))
}

func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Scored 带分数的下标
type Scored struct {
	Index int
	Score float64
}

// TopK 按阈值选取前 k 个；没有任何一项达到阈值时退回按原始分数取前 k 个
func TopK(scores []Scored, k int, threshold float64) []Scored {
	if k <= 0 || len(scores) == 0 {
		return nil
	}
	sorted := make([]Scored, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	var above []Scored
	for _, s := range sorted {
		if s.Score >= threshold {
			above = append(above, s)
		}
	}
	if len(above) == 0 {
		above = sorted
	}
	if len(above) > k {
		above = above[:k]
	}
	return above
}

// Mean 平均分
func Mean(scores []Scored) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.Score
	}
	return sum / float64(len(scores))
}
