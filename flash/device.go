// Package flash abstracts a page-erasable storage medium behind a small
// device interface, with an in-memory implementation for tests and a
// memory-mapped image-file implementation for real use.
//
// The medium follows NOR semantics: an erase sets every byte of an aligned
// span to 0xFF, and programming can only clear bits (1 -> 0). Restoring a
// cleared bit requires another erase.
package flash

import (
	"errors"
	"io"
)

// ErasedByte is the value of every byte after an erase.
const ErasedByte = 0xFF

// Device-level errors. Higher layers wrap these into the typed error
// surface of pkg/types.
var (
	ErrOutOfRange     = errors.New("flash: access beyond device size")
	ErrUnalignedErase = errors.New("flash: erase offset or length not a multiple of the erase size")
	ErrClosed         = errors.New("flash: device closed")
)

// Device is a page-erasable storage medium. Erase and program calls are
// blocking, uninterruptible primitives; implementations do not retry.
//
// Implementations are safe for concurrent use on disjoint spans; callers
// coordinate access to a given region themselves.
type Device interface {
	io.ReaderAt

	// Program clears bits of the span [off, off+len(p)) according to p.
	// Bytes that were erased take the programmed value; bits already
	// cleared stay cleared.
	Program(off int64, p []byte) error

	// EraseRange sets [off, off+length) to ErasedByte. Both off and
	// length must be multiples of EraseSize.
	EraseRange(off, length int64) error

	// EraseSize returns the erase granularity G.
	EraseSize() int64

	// Size returns the device capacity in bytes.
	Size() int64

	// Sync is a durability barrier: it returns once previously programmed
	// data has reached stable storage.
	Sync() error

	Close() error
}

func checkSpan(size, off int64, n int) error {
	if off < 0 || n < 0 || off > size || int64(n) > size-off {
		return ErrOutOfRange
	}
	return nil
}

func checkErase(size, eraseSize, off, length int64) error {
	if off < 0 || length < 0 || off > size || length > size-off {
		return ErrOutOfRange
	}
	if off%eraseSize != 0 || length%eraseSize != 0 {
		return ErrUnalignedErase
	}
	return nil
}
