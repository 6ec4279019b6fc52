package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsInt32(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int32
	}{
		{
			name:     "zero value",
			input:    0,
			expected: 0,
		},
		{
			name:     "typical blob length",
			input:    256,
			expected: 256,
		},
		{
			name:     "max int32 value",
			input:    math.MaxInt32,
			expected: math.MaxInt32,
		},
		{
			name:     "overflow clamps to max",
			input:    math.MaxInt32 + 1,
			expected: math.MaxInt32,
		},
		{
			name:     "underflow clamps to min",
			input:    math.MinInt32 - 1,
			expected: math.MinInt32,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, AsInt32(tt.input))
		})
	}
}

func TestAsUint8(t *testing.T) {
	require.Equal(t, uint8(0), AsUint8(0))
	require.Equal(t, uint8(4), AsUint8(4))
	require.Equal(t, uint8(255), AsUint8(255))
	require.Equal(t, uint8(255), AsUint8(256))
	require.Equal(t, uint8(0), AsUint8(-1))
}

func TestAsUint32FromInt64(t *testing.T) {
	require.Equal(t, uint32(0), AsUint32FromInt64(0))
	require.Equal(t, uint32(123456), AsUint32FromInt64(123456))
	require.Equal(t, uint32(math.MaxUint32), AsUint32FromInt64(math.MaxUint32))
	require.Equal(t, uint32(math.MaxUint32), AsUint32FromInt64(math.MaxUint32+1))
	require.Equal(t, uint32(0), AsUint32FromInt64(-5))
}
