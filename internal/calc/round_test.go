package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFixed(t *testing.T) {
	cases := []struct {
		in     float64
		places int
		want   string
	}{
		{178.57142857142858, 2, "178.57"},
		{1.005, 2, "1.01"},
		{2.675, 2, "2.68"},
		{0.125, 2, "0.13"},
		{9.995, 2, "10.00"},
		{50, 2, "50.00"},
		{257.14, 1, "257.1"},
		{257.15, 1, "257.2"},
		{-12.25, 1, "-12.3"},
		{-0.04, 1, "0.0"},
		{0, 2, "0.00"},
		{3.5, 0, "4"},
		{0.0000001, 2, "0.00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatFixed(tc.in, tc.places), "FormatFixed(%v, %d)", tc.in, tc.places)
	}
}

func TestRoundNormalizesNegativeZero(t *testing.T) {
	got := Round(-0.001, 1)
	assert.Equal(t, 0.0, got)
	assert.False(t, got < 0)
}
