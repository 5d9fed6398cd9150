package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanPercent(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"no words", nil, 0},
		{"single word", []float64{91}, 0.91},
		{"mean of words", []float64{90, 70, 80}, 0.8},
		{"out of range values are clamped", []float64{-5, 120}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MeanPercent(tt.scores), 1e-9)
		})
	}
}
