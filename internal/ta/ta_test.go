package ta

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFibonacci(t *testing.T) {
	levels, err := Fibonacci(100, 200)
	require.NoError(t, err)
	assert.Equal(t, [4]int64{123, 138, 161, 178}, levels)

	levels, err = Fibonacci(10000, 12000)
	require.NoError(t, err)
	assert.Equal(t, [4]int64{10472, 10764, 11236, 11572}, levels)
}

func TestFibonacciRejectsEmptyRange(t *testing.T) {
	_, err := Fibonacci(200, 200)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Fibonacci(300, 200)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestRetracement(t *testing.T) {
	got := Retracement(decimal.NewFromInt(100), decimal.NewFromInt(140))
	assert.True(t, got.Equal(decimal.NewFromInt(110)), "got %s", got)

	// (143-100)/4 = 10.75 floors to 10
	got = Retracement(decimal.NewFromInt(100), decimal.NewFromInt(143))
	assert.True(t, got.Equal(decimal.NewFromInt(110)), "got %s", got)
}

func TestChangeRatio(t *testing.T) {
	got := ChangeRatio(decimal.NewFromInt(1000), decimal.NewFromInt(1300))
	assert.True(t, got.Equal(decimal.RequireFromString("0.3")))
	assert.True(t, ChangeRatio(decimal.Zero, decimal.NewFromInt(5)).IsZero())
}
