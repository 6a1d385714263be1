package format

// AlignUp returns n rounded up to the next multiple of align.
// align must be positive but need not be a power of two; erase
// granularities on real parts are not always powers of two.
func AlignUp(n, align int64) int64 {
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + align - rem
}

// IsAligned reports whether n is a multiple of align.
func IsAligned(n, align int64) bool {
	return n%align == 0
}
