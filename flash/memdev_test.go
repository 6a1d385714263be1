package flash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Program semantics
// -----------------------------------------------------------------------------

func TestMemDevice_StartsErased(t *testing.T) {
	dev := NewMemDevice(8192, 4096)
	got := dev.Bytes(0, 8192)
	require.Equal(t, bytes.Repeat([]byte{ErasedByte}, 8192), got)
}

func TestMemDevice_ProgramOnlyClearsBits(t *testing.T) {
	dev := NewMemDevice(4096, 4096)

	require.NoError(t, dev.Program(0, []byte{0xF0}))
	require.Equal(t, []byte{0xF0}, dev.Bytes(0, 1))

	// Re-programming can clear more bits but never set them back.
	require.NoError(t, dev.Program(0, []byte{0x0F}))
	require.Equal(t, []byte{0x00}, dev.Bytes(0, 1))

	require.NoError(t, dev.Program(0, []byte{0xFF}))
	require.Equal(t, []byte{0x00}, dev.Bytes(0, 1))
}

func TestMemDevice_EraseRestoresFF(t *testing.T) {
	dev := NewMemDevice(8192, 4096)
	require.NoError(t, dev.Program(100, []byte{0x00, 0x01}))

	require.NoError(t, dev.EraseRange(0, 4096))
	require.Equal(t, []byte{0xFF, 0xFF}, dev.Bytes(100, 2))
}

func TestMemDevice_EraseRejectsUnaligned(t *testing.T) {
	dev := NewMemDevice(8192, 4096)
	require.ErrorIs(t, dev.EraseRange(1, 4096), ErrUnalignedErase)
	require.ErrorIs(t, dev.EraseRange(0, 100), ErrUnalignedErase)
	require.NoError(t, dev.EraseRange(4096, 4096))
}

func TestMemDevice_OutOfRange(t *testing.T) {
	dev := NewMemDevice(4096, 4096)
	p := make([]byte, 16)

	_, err := dev.ReadAt(p, 4090)
	require.ErrorIs(t, err, ErrOutOfRange)
	require.ErrorIs(t, dev.Program(4090, p), ErrOutOfRange)
	require.ErrorIs(t, dev.EraseRange(4096, 4096), ErrOutOfRange)
}

func TestMemDevice_ClosedFailsEverything(t *testing.T) {
	dev := NewMemDevice(4096, 4096)
	require.NoError(t, dev.Close())

	_, err := dev.ReadAt(make([]byte, 1), 0)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, dev.Program(0, []byte{0}), ErrClosed)
	require.ErrorIs(t, dev.EraseRange(0, 4096), ErrClosed)
	require.ErrorIs(t, dev.Sync(), ErrClosed)
}

// -----------------------------------------------------------------------------
// Stats and fault injection
// -----------------------------------------------------------------------------

func TestMemDevice_StatsTrackSpans(t *testing.T) {
	dev := NewMemDevice(32768, 4096)

	require.NoError(t, dev.EraseRange(4096, 8192))
	require.NoError(t, dev.Program(4096, make([]byte, 8192)))
	require.NoError(t, dev.EraseRange(0, 4096))

	st := dev.Stats()
	require.Equal(t, 2, st.EraseCalls)
	require.Equal(t, 1, st.ProgramCalls)
	require.Equal(t, int64(8192), st.MaxEraseSpan)
	require.Equal(t, int64(8192), st.MaxProgramSpan)
	require.Equal(t, int64(0), st.LastEraseOff)
	require.Equal(t, int64(4096), st.LastEraseLen)

	dev.ResetStats()
	require.Equal(t, MemStats{}, dev.Stats())
}

func TestMemDevice_FaultInjection(t *testing.T) {
	dev := NewMemDevice(8192, 4096)

	dev.FailEraseCall(2)
	require.NoError(t, dev.EraseRange(0, 4096))
	require.Error(t, dev.EraseRange(0, 4096))
	require.NoError(t, dev.EraseRange(0, 4096))

	dev.FailProgramCall(1)
	require.Error(t, dev.Program(0, []byte{0}))
	require.NoError(t, dev.Program(0, []byte{0}))

	dev.FailReads(true)
	_, err := dev.ReadAt(make([]byte, 1), 0)
	require.Error(t, err)
	dev.FailReads(false)
	_, err = dev.ReadAt(make([]byte, 1), 0)
	require.NoError(t, err)
}

func TestNewMemDevice_PanicsOnBadGeometry(t *testing.T) {
	require.Panics(t, func() { NewMemDevice(100, 4096) })
	require.Panics(t, func() { NewMemDevice(0, 4096) })
	require.Panics(t, func() { NewMemDevice(4096, 0) })
}
