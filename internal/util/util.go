package util

import "math"

// AsInt32 converts int to int32, clamping at the int32 bounds.
// Used for the signed length prefixes of wire blobs.
func AsInt32(i int) int32 {
	if i > math.MaxInt32 {
		return math.MaxInt32
	}
	if i < math.MinInt32 {
		return math.MinInt32
	}
	// #nosec G115 - bounded by explicit check
	return int32(i)
}

// AsUint8 converts int to uint8, clamping at 0 and 255.
func AsUint8(i int) uint8 {
	if i > math.MaxUint8 {
		return math.MaxUint8
	}
	if i < 0 {
		return 0
	}
	// #nosec G115 - bounded by explicit check
	return uint8(i)
}

// AsUint32FromInt64 converts int64 to uint32, clamping at 0 and MaxUint32.
func AsUint32FromInt64(i int64) uint32 {
	if i > math.MaxUint32 {
		return math.MaxUint32
	}
	if i < 0 {
		return 0
	}
	// #nosec G115 - bounded by explicit check
	return uint32(i)
}
