package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestScore_Clamped(t *testing.T) {
	assert.Equal(t, 0.0, Score([]float32{1, 0}, []float32{-1, 0}))
	assert.InDelta(t, 1.0, Score([]float32{3, 4}, []float32{3, 4}), 1e-9)
}

func TestTopK(t *testing.T) {
	scores := []Scored{{0, 0.2}, {1, 0.9}, {2, 0.5}, {3, 0.45}, {4, 0.1}}

	t.Run("threshold filters", func(t *testing.T) {
		got := TopK(scores, 5, 0.4)
		assert.Equal(t, []Scored{{1, 0.9}, {2, 0.5}, {3, 0.45}}, got)
	})

	t.Run("k truncates", func(t *testing.T) {
		got := TopK(scores, 2, 0.4)
		assert.Equal(t, []Scored{{1, 0.9}, {2, 0.5}}, got)
	})

	t.Run("nothing clears threshold falls back to raw top-k", func(t *testing.T) {
		got := TopK(scores, 2, 0.95)
		assert.Equal(t, []Scored{{1, 0.9}, {2, 0.5}}, got)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, TopK(nil, 3, 0.4))
		assert.Nil(t, TopK(scores, 0, 0.4))
	})

	// 输入不被修改
	assert.Equal(t, 0.2, scores[0].Score)
}

func TestMean(t *testing.T) {
	assert.InDelta(t, 0.5, Mean([]Scored{{0, 0.4}, {1, 0.6}}), 1e-9)
	assert.Equal(t, 0.0, Mean(nil))
}
