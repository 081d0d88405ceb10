// Package convert holds checked integer narrowing for driver settings.
package convert

import (
	"fmt"
	"math"
)

// IntToInt32 converts v, failing when it does not fit.
func IntToInt32(v int) (int32, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int32", v)
	}
	return int32(v), nil
}

// IntToInt32Clamped converts v, saturating at the int32 bounds.
func IntToInt32Clamped(v int) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
