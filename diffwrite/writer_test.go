package diffwrite

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

const pageSize = 4096

// -----------------------------------------------------------------------------
// test helpers
// -----------------------------------------------------------------------------

func testWriter(t *testing.T, devSize int64, opts Options) (*Writer, *flash.MemDevice) {
	t.Helper()
	dev := flash.NewMemDevice(devSize, pageSize)
	w, err := New(dev, opts)
	require.NoError(t, err)
	return w, dev
}

func appRegion(size int64) types.Region {
	return types.Region{Label: "app", Kind: types.KindApplication, Offset: 0x10000, Size: size}
}

// patterned returns n bytes of a deterministic non-0xFF pattern.
func patterned(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + 3)
	}
	return out
}

// -----------------------------------------------------------------------------
// Round trip and padding
// -----------------------------------------------------------------------------

func TestWriteStream_RoundTripWithPadding(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{})
	region := appRegion(1 << 20)

	payload := patterned(10000) // 2 full pages + a partial third
	report, err := w.WriteStream(region, int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, int64(10000), report.BytesReceived)
	require.Equal(t, 3, report.PagesCompared)
	require.Equal(t, 3, report.PagesWritten)

	got := dev.Bytes(region.Offset, 3*pageSize)
	require.Equal(t, payload, got[:10000])
	require.Equal(t, bytes.Repeat([]byte{flash.ErasedByte}, 3*pageSize-10000), got[10000:],
		"tail of the final page reads as erased filler")
}

func TestWriteStream_SecondIdenticalWriteTouchesNothing(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{})
	region := appRegion(1 << 20)
	payload := patterned(3 * pageSize)

	_, err := w.WriteStream(region, int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	dev.ResetStats()

	report, err := w.WriteStream(region, int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, 3, report.PagesCompared)
	require.Equal(t, 0, report.PagesWritten)

	st := dev.Stats()
	require.Zero(t, st.EraseCalls, "idempotent write must not erase")
	require.Zero(t, st.ProgramCalls, "idempotent write must not program")
}

func TestWriteStream_PartialPagePaddingParticipatesInCompare(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{})
	region := appRegion(1 << 20)

	// First write leaves non-erased bytes past the shorter second payload:
	// the padding comparison must flag the final page dirty and restore it.
	long := patterned(pageSize + 100)
	_, err := w.WriteStream(region, int64(len(long)), bytes.NewReader(long))
	require.NoError(t, err)

	short := long[:pageSize+10]
	report, err := w.WriteStream(region, int64(len(short)), bytes.NewReader(short))
	require.NoError(t, err)
	require.Equal(t, 1, report.PagesWritten, "page tail changed under the padding")

	got := dev.Bytes(region.Offset+pageSize, pageSize)
	require.Equal(t, short[pageSize:], got[:10])
	require.Equal(t, bytes.Repeat([]byte{flash.ErasedByte}, pageSize-10), got[10:])
}

func TestWriteStream_ShorterWriteLeavesTrailingPagesUntouched(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{})
	region := appRegion(1 << 20)

	long := patterned(3 * pageSize)
	_, err := w.WriteStream(region, int64(len(long)), bytes.NewReader(long))
	require.NoError(t, err)

	// A shorter payload only covers page 0; pages 1 and 2 are outside the
	// stream entirely and must keep the first payload's content.
	short := make([]byte, pageSize)
	for i := range short {
		short[i] = byte(i)
	}
	report, err := w.WriteStream(region, int64(len(short)), bytes.NewReader(short))
	require.NoError(t, err)
	require.Equal(t, 1, report.PagesCompared)
	require.Equal(t, 1, report.PagesWritten)

	require.Equal(t, short, dev.Bytes(region.Offset, pageSize))
	require.Equal(t, long[pageSize:], dev.Bytes(region.Offset+pageSize, 2*pageSize),
		"pages past the stream's end retain their prior content")
}

// -----------------------------------------------------------------------------
// Size validation
// -----------------------------------------------------------------------------

func TestWriteStream_LengthEqualToRegionSizeIsAccepted(t *testing.T) {
	w, _ := testWriter(t, 4<<20, Options{})
	region := appRegion(64 * 1024)
	payload := patterned(64 * 1024)

	_, err := w.WriteStream(region, int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
}

func TestWriteStream_LengthBeyondRegionFailsBeforeStorage(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{})
	region := appRegion(64 * 1024)

	_, err := w.WriteStream(region, 64*1024+1, bytes.NewReader(patterned(64*1024+1)))
	require.ErrorIs(t, err, types.ErrRegionTooSmall)
	require.Equal(t, flash.MemStats{}, dev.Stats(), "validation failures have zero storage side effects")
}

func TestWriteStream_LengthBeyondMaximumFailsBeforeStorage(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{MaxWriteSize: 8192})
	region := appRegion(1 << 20)

	_, err := w.WriteStream(region, 8193, bytes.NewReader(patterned(8193)))
	require.ErrorIs(t, err, types.ErrSizeExceeded)
	require.Equal(t, flash.MemStats{}, dev.Stats())

	_, err = w.WriteStream(region, -1, bytes.NewReader(nil))
	require.ErrorIs(t, err, types.ErrSizeExceeded)
}

func TestNew_RejectsUnalignedBufferSize(t *testing.T) {
	dev := flash.NewMemDevice(1<<20, pageSize)
	_, err := New(dev, Options{BufferSize: 1000})
	require.Error(t, err)
	_, err = New(dev, Options{BufferSize: pageSize + 1})
	require.Error(t, err)
}

func TestNew_NonPowerOfTwoEraseSize(t *testing.T) {
	// Erase granularities are not always powers of two; an exact multiple
	// of G must be accepted and the writer must still round trip.
	dev := flash.NewMemDevice(1000000, 1000)
	w, err := New(dev, Options{BufferSize: 2000})
	require.NoError(t, err)

	region := types.Region{Label: "app", Kind: types.KindApplication, Offset: 10000, Size: 100000}
	payload := patterned(2500)
	report, err := w.WriteStream(region, int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, 3, report.PagesCompared)
	require.Equal(t, 3, report.PagesWritten)
	require.Equal(t, payload, dev.Bytes(region.Offset, 2500))
}

// -----------------------------------------------------------------------------
// Run accumulation bounds
// -----------------------------------------------------------------------------

func TestWriteStream_FullyDirtyMegabyteFlushesInBufferSizedRuns(t *testing.T) {
	const bufSize = 256 << 10
	w, dev := testWriter(t, 4<<20, Options{BufferSize: bufSize})
	region := appRegion(1 << 20)

	payload := make([]byte, 1<<20) // all zero, every page differs from erased
	report, err := w.WriteStream(region, int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, 256, report.PagesWritten)

	st := dev.Stats()
	require.Equal(t, 4, st.EraseCalls, "1 MiB dirty with a 256 KiB buffer flushes four times")
	require.Equal(t, int64(bufSize), st.MaxEraseSpan)
	require.LessOrEqual(t, st.MaxProgramSpan, int64(bufSize),
		"no single program call may span more than the accumulation capacity")
}

func TestWriteStream_CleanPageSplitsDirtyRuns(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{})
	region := appRegion(1 << 20)

	// Pages 0, 1 and 3 dirty; page 2 matches the erased content.
	payload := make([]byte, 4*pageSize)
	for i := range payload {
		payload[i] = 0x00
	}
	for i := 2 * pageSize; i < 3*pageSize; i++ {
		payload[i] = flash.ErasedByte
	}

	report, err := w.WriteStream(region, int64(len(payload)), bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, 4, report.PagesCompared)
	require.Equal(t, 3, report.PagesWritten)

	st := dev.Stats()
	require.Equal(t, 2, st.EraseCalls, "the clean page closes the first run")
	require.Equal(t, int64(2*pageSize), st.MaxEraseSpan)
}

// -----------------------------------------------------------------------------
// Reference scenario: 2 MiB region, only the final page differs
// -----------------------------------------------------------------------------

func TestWriteStream_FinalPageOnlyDiff(t *testing.T) {
	const (
		regionSize = 2 << 20
		bufSize    = 256 << 10
	)
	w, dev := testWriter(t, 4<<20, Options{BufferSize: bufSize})
	region := appRegion(regionSize)

	// The region is erased; the payload matches it everywhere except the
	// final page.
	payload := bytes.Repeat([]byte{flash.ErasedByte}, regionSize)
	copy(payload[regionSize-pageSize:], patterned(pageSize))

	report, err := w.WriteStream(region, regionSize, bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, int64(regionSize), report.BytesReceived)
	require.Equal(t, 512, report.PagesCompared)
	require.Equal(t, 1, report.PagesWritten)

	st := dev.Stats()
	require.Equal(t, 1, st.EraseCalls)
	require.Equal(t, 1, st.ProgramCalls)
	require.Equal(t, int64(pageSize), st.LastEraseLen)
	require.Equal(t, region.Offset+regionSize-pageSize, st.LastEraseOff,
		"the single erase covers exactly the final page")

	got := dev.Bytes(region.Offset+regionSize-pageSize, pageSize)
	require.Equal(t, payload[regionSize-pageSize:], got)
}

// -----------------------------------------------------------------------------
// Failure paths
// -----------------------------------------------------------------------------

func TestWriteStream_ShortSourceFailsIncomplete(t *testing.T) {
	w, _ := testWriter(t, 4<<20, Options{})
	region := appRegion(1 << 20)

	payload := patterned(2 * pageSize)
	_, err := w.WriteStream(region, 3*pageSize, bytes.NewReader(payload))
	require.ErrorIs(t, err, types.ErrIncomplete)
}

func TestWriteStream_EraseFailureSurfacesTyped(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{})
	region := appRegion(1 << 20)

	dev.FailEraseCall(1)
	_, err := w.WriteStream(region, pageSize, bytes.NewReader(make([]byte, pageSize)))
	require.ErrorIs(t, err, types.ErrEraseFailed)
}

func TestWriteStream_ProgramFailureSurfacesTyped(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{})
	region := appRegion(1 << 20)

	dev.FailProgramCall(1)
	_, err := w.WriteStream(region, pageSize, bytes.NewReader(make([]byte, pageSize)))
	require.ErrorIs(t, err, types.ErrProgramFailed)
}

func TestWriteStream_ReadFailureSurfacesTyped(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{})
	region := appRegion(1 << 20)

	dev.FailReads(true)
	_, err := w.WriteStream(region, pageSize, bytes.NewReader(make([]byte, pageSize)))
	require.ErrorIs(t, err, types.ErrReadFailed)
}

// -----------------------------------------------------------------------------
// Session pool
// -----------------------------------------------------------------------------

// gatedReader signals when it is first read and then blocks until released,
// at which point it reports a truncated source.
type gatedReader struct {
	started chan struct{}
	release chan struct{}
	once    bool
}

func (r *gatedReader) Read(p []byte) (int, error) {
	if !r.once {
		r.once = true
		close(r.started)
	}
	<-r.release
	return 0, io.ErrUnexpectedEOF
}

func TestWriteStream_ExhaustedPoolFailsWithoutStorageAccess(t *testing.T) {
	w, dev := testWriter(t, 4<<20, Options{MaxSessions: 1})
	region := appRegion(1 << 20)

	src := &gatedReader{started: make(chan struct{}), release: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		_, err := w.WriteStream(region, pageSize, src)
		done <- err
	}()
	<-src.started

	dev.ResetStats()
	_, err := w.WriteStream(appRegion(1<<20), pageSize, bytes.NewReader(make([]byte, pageSize)))
	require.ErrorIs(t, err, types.ErrOutOfMemory)
	require.Equal(t, flash.MemStats{}, dev.Stats())

	close(src.release)
	require.ErrorIs(t, <-done, types.ErrIncomplete)

	// The session returned to the pool; the writer works again.
	_, err = w.WriteStream(region, pageSize, bytes.NewReader(make([]byte, pageSize)))
	require.NoError(t, err)
}
