package dockey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://Docs.Example.com/Guide/", "https://docs.example.com/Guide"},
		{"  https://docs.example.com/guide#install  ", "https://docs.example.com/guide"},
		{"https://docs.example.com/", "https://docs.example.com"},
		{"https://docs.example.com/a?b=1", "https://docs.example.com/a?b=1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestHash(t *testing.T) {
	a := Hash("https://docs.example.com/guide/")
	b := Hash("HTTPS://DOCS.example.com/guide#top")
	c := Hash("https://docs.example.com/other")

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
