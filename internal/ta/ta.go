package ta

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidRange = errors.New("invalid price range")

var fibonacciRatios = [4]float64{0.236, 0.382, 0.618, 0.786}

// Fibonacci returns the retracement levels between support and resistance,
// truncated toward zero: (100, 200) gives [123 138 161 178].
func Fibonacci(min, max int64) ([4]int64, error) {
	var levels [4]int64
	diff := max - min
	if diff <= 0 {
		return levels, fmt.Errorf("%w: min=%d max=%d", ErrInvalidRange, min, max)
	}
	for i, r := range fibonacciRatios {
		levels[i] = int64(float64(min) + float64(diff)*r)
	}
	return levels, nil
}

// Retracement returns low + floor((high-low)/4).
func Retracement(low, high decimal.Decimal) decimal.Decimal {
	return low.Add(high.Sub(low).Div(decimal.NewFromInt(4)).Floor())
}

// ChangeRatio returns (to-from)/from, zero when from is not positive.
func ChangeRatio(from, to decimal.Decimal) decimal.Decimal {
	if from.Sign() <= 0 {
		return decimal.Zero
	}
	return to.Sub(from).Div(from)
}
