package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAmount(t *testing.T) {
	cases := map[string]string{
		"R$ 1.234,56":  "R$ 1.234,56",
		"1234.5":       "R$ 1.234,50",
		"1,234.56":     "R$ 1.234,56",
		"1.234":        "R$ 1.234,00",
		"R$10":         "R$ 10,00",
		"0,99":         "R$ 0,99",
		"1234567,89":   "R$ 1.234.567,89",
		"BRL 15000.00": "R$ 15.000,00",
	}
	for in, want := range cases {
		got, ok := NormalizeAmount(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := NormalizeAmount("não identificado")
	assert.False(t, ok)
	assert.Equal(t, "não identificado", got)
}

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"10/04/2026":           "10/04/2026",
		"2026-04-10":           "10/04/2026",
		"2026-04-10T00:00:00Z": "10/04/2026",
		"10-04-2026":           "10/04/2026",
		"10.04.2026":           "10/04/2026",
	}
	for in, want := range cases {
		got, ok := NormalizeDate(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"31/02/2026", "amanhã", "04/2026"} {
		_, ok := NormalizeDate(in)
		assert.False(t, ok, in)
	}
}
