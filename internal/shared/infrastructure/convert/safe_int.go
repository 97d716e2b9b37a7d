// Package convert holds the checked integer conversions used where config
// values meet fixed-width driver and library fields.
package convert

import (
	"fmt"
	"math"
)

// IntToInt32 converts v, failing on overflow. Pool sizes go through it.
func IntToInt32(v int) (int32, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int32", v)
	}
	return int32(v), nil
}

// IntToUint32Clamped converts v, clamping to [0, MaxUint32]. Breaker
// thresholds from the environment go through it.
func IntToUint32Clamped(v int) uint32 {
	if v < 0 {
		return 0
	}
	if uint64(v) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// IntToUintSafe converts v for shift counts, panicking if it is negative.
func IntToUintSafe(v int) uint {
	if v < 0 {
		panic(fmt.Sprintf("cannot convert negative int to uint: %d", v))
	}
	return uint(v)
}
