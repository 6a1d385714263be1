package buf

import "math"

// AddOverflowSafe adds a and b, returning ok = false when the result would
// overflow int64.
func AddOverflowSafe(a, b int64) (int64, bool) {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return 0, false
	case b < 0 && a < math.MinInt64-b:
		return 0, false
	default:
		return a + b, true
	}
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	end := off + n
	if end < off || end > len(b) {
		return nil, false
	}
	return b[off:end], true
}

// Has reports whether b[off:off+n] is within bounds.
func Has(b []byte, off, n int) bool {
	_, ok := Slice(b, off, n)
	return ok
}

// CheckRecordBounds validates that a record of n payload bytes starting at
// off fits inside [0, limit). It returns the end offset when valid.
func CheckRecordBounds(limit, off, n int64) (int64, bool) {
	if off < 0 || n < 0 || off > limit {
		return 0, false
	}
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > limit {
		return 0, false
	}
	return end, true
}
