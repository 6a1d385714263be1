package flash

import (
	"fmt"
	"sync"
)

// MemStats is a snapshot of a MemDevice's operation counters.
type MemStats struct {
	Reads          int
	EraseCalls     int
	ProgramCalls   int
	MaxEraseSpan   int64 // largest single erase, bytes
	MaxProgramSpan int64 // largest single program, bytes
	LastEraseOff   int64
	LastEraseLen   int64
}

// MemDevice is an in-memory flash device. It enforces erase alignment and
// NOR program semantics, counts operations, and supports fault injection,
// which makes it the substrate for every storage test in the module.
type MemDevice struct {
	mu        sync.Mutex
	data      []byte
	eraseSize int64
	closed    bool

	stats MemStats

	failRead    bool
	eraseFail   int // fail the Nth erase call (1-based), 0 = never
	programFail int // fail the Nth program call (1-based), 0 = never
}

// NewMemDevice returns an erased in-memory device. size must be a positive
// multiple of eraseSize.
func NewMemDevice(size, eraseSize int64) *MemDevice {
	if eraseSize <= 0 || size <= 0 || size%eraseSize != 0 {
		panic(fmt.Sprintf("flash: invalid memdevice geometry size=%d eraseSize=%d", size, eraseSize))
	}
	d := &MemDevice{
		data:      make([]byte, size),
		eraseSize: eraseSize,
	}
	for i := range d.data {
		d.data[i] = ErasedByte
	}
	return d
}

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if d.failRead {
		return 0, fmt.Errorf("flash: injected read failure at 0x%x", off)
	}
	if err := checkSpan(int64(len(d.data)), off, len(p)); err != nil {
		return 0, err
	}
	d.stats.Reads++
	return copy(p, d.data[off:]), nil
}

func (d *MemDevice) Program(off int64, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := checkSpan(int64(len(d.data)), off, len(p)); err != nil {
		return err
	}
	d.stats.ProgramCalls++
	if span := int64(len(p)); span > d.stats.MaxProgramSpan {
		d.stats.MaxProgramSpan = span
	}
	if d.programFail > 0 && d.stats.ProgramCalls == d.programFail {
		return fmt.Errorf("flash: injected program failure at 0x%x", off)
	}
	for i, b := range p {
		d.data[off+int64(i)] &= b
	}
	return nil
}

func (d *MemDevice) EraseRange(off, length int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := checkErase(int64(len(d.data)), d.eraseSize, off, length); err != nil {
		return err
	}
	d.stats.EraseCalls++
	if length > d.stats.MaxEraseSpan {
		d.stats.MaxEraseSpan = length
	}
	d.stats.LastEraseOff = off
	d.stats.LastEraseLen = length
	if d.eraseFail > 0 && d.stats.EraseCalls == d.eraseFail {
		return fmt.Errorf("flash: injected erase failure at 0x%x", off)
	}
	for i := off; i < off+length; i++ {
		d.data[i] = ErasedByte
	}
	return nil
}

func (d *MemDevice) EraseSize() int64 { return d.eraseSize }

func (d *MemDevice) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.data))
}

func (d *MemDevice) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

func (d *MemDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Load copies raw bytes into the device at off, bypassing program
// semantics. Test setup only.
func (d *MemDevice) Load(off int64, p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data[off:], p)
}

// Bytes returns a copy of the span [off, off+n). Test inspection only.
func (d *MemDevice) Bytes(off, n int64) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, n)
	copy(out, d.data[off:off+n])
	return out
}

// Stats returns a snapshot of the operation counters.
func (d *MemDevice) Stats() MemStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ResetStats zeroes the operation counters.
func (d *MemDevice) ResetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = MemStats{}
}

// FailReads makes every subsequent ReadAt fail.
func (d *MemDevice) FailReads(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failRead = fail
}

// FailEraseCall makes the nth erase call from now fail (1 = next call).
// n = 0 disables injection.
func (d *MemDevice) FailEraseCall(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n == 0 {
		d.eraseFail = 0
		return
	}
	d.eraseFail = d.stats.EraseCalls + n
}

// FailProgramCall makes the nth program call from now fail (1 = next call).
// n = 0 disables injection.
func (d *MemDevice) FailProgramCall(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n == 0 {
		d.programFail = 0
		return
	}
	d.programFail = d.stats.ProgramCalls + n
}
