package diffwrite

import (
	"bytes"
	"fmt"
	"io"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

const (
	// DefaultMaxWriteSize caps a single streamed write.
	DefaultMaxWriteSize = 5 << 20
	// DefaultBufferSize is the dirty-run accumulation capacity B.
	DefaultBufferSize = 256 << 10
	// DefaultMaxSessions bounds concurrent in-flight writes.
	DefaultMaxSessions = 4
)

// Options configures a Writer.
type Options struct {
	// MaxWriteSize rejects payloads above this length with ErrSizeExceeded.
	// Zero selects DefaultMaxWriteSize.
	MaxWriteSize int64

	// BufferSize is the accumulation capacity B: no single erase or
	// program call spans more bytes. Must be a multiple of the device's
	// erase size. Zero selects DefaultBufferSize.
	BufferSize int64

	// MaxSessions bounds concurrent WriteStream calls; an exhausted pool
	// fails ErrOutOfMemory before touching storage. Zero selects
	// DefaultMaxSessions.
	MaxSessions int
}

// Writer programs streamed payloads into regions of one device. Buffers
// are preallocated into a bounded pool at construction, so steady-state
// writes allocate nothing and peak memory is MaxSessions * (2P + B).
type Writer struct {
	dev      flash.Device
	pageSize int64
	maxWrite int64
	sessions chan *session
}

// New builds a Writer over dev. The page size P equals the device's erase
// granularity.
func New(dev flash.Device, opts Options) (*Writer, error) {
	pageSize := dev.EraseSize()
	maxWrite := opts.MaxWriteSize
	if maxWrite == 0 {
		maxWrite = DefaultMaxWriteSize
	}
	bufSize := opts.BufferSize
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if bufSize < pageSize || !format.IsAligned(bufSize, pageSize) {
		return nil, fmt.Errorf("diffwrite: buffer size %d not a positive multiple of page size %d", bufSize, pageSize)
	}
	maxSessions := opts.MaxSessions
	if maxSessions == 0 {
		maxSessions = DefaultMaxSessions
	}
	w := &Writer{
		dev:      dev,
		pageSize: pageSize,
		maxWrite: maxWrite,
		sessions: make(chan *session, maxSessions),
	}
	for i := 0; i < maxSessions; i++ {
		w.sessions <- newSession(pageSize, bufSize)
	}
	return w, nil
}

// WriteStream pulls exactly total bytes from src and programs them into
// region, comparing page by page against existing content so unchanged
// pages never pass through erase. The final short page is padded with the
// erased filler byte, and the padding participates in the comparison.
//
// Preconditions are checked before any storage access. On a storage error
// the region is left partially updated: runs flushed earlier stay
// programmed and the caller must treat the region's content as unknown.
// Cancellation is the caller closing src, observed here as ErrIncomplete.
func (w *Writer) WriteStream(region types.Region, total int64, src io.Reader) (types.WriteReport, error) {
	if total < 0 {
		return types.WriteReport{}, types.WrapErr(types.ErrSizeExceeded, fmt.Errorf("negative length %d", total))
	}
	if total > w.maxWrite {
		return types.WriteReport{}, types.WrapErr(types.ErrSizeExceeded,
			fmt.Errorf("%d > maximum %d", total, w.maxWrite))
	}
	if total > region.Size {
		return types.WriteReport{}, types.WrapErr(types.ErrRegionTooSmall,
			fmt.Errorf("%d > region %q size %d", total, region.Label, region.Size))
	}

	s, ok := w.acquire()
	if !ok {
		return types.WriteReport{}, types.WrapErr(types.ErrOutOfMemory,
			fmt.Errorf("all %d write sessions in use", cap(w.sessions)))
	}
	defer w.release(s)

	s.reset(w.dev, region)
	report, err := w.run(s, total, src)
	return report, err
}

func (w *Writer) acquire() (*session, bool) {
	select {
	case s := <-w.sessions:
		return s, true
	default:
		return nil, false
	}
}

func (w *Writer) release(s *session) {
	s.release()
	w.sessions <- s
}

func (w *Writer) run(s *session, total int64, src io.Reader) (types.WriteReport, error) {
	remaining := total
	for off := int64(0); remaining > 0; off += w.pageSize {
		n := w.pageSize
		if remaining < n {
			n = remaining
		}
		if _, err := io.ReadFull(src, s.page[:n]); err != nil {
			return s.report, types.WrapErr(types.ErrIncomplete,
				fmt.Errorf("after %d of %d bytes: %w", s.report.BytesReceived, total, err))
		}
		s.report.BytesReceived += n
		remaining -= n
		for i := n; i < w.pageSize; i++ {
			s.page[i] = flash.ErasedByte
		}

		if _, err := w.dev.ReadAt(s.existing, s.region.Offset+off); err != nil {
			return s.report, types.WrapErr(types.ErrReadFailed, err)
		}
		dirty := !bytes.Equal(s.page, s.existing)
		s.report.PagesCompared++

		if err := s.observe(off, dirty); err != nil {
			return s.report, err
		}
	}
	if err := s.finish(); err != nil {
		return s.report, err
	}
	if s.report.BytesReceived != total {
		return s.report, types.WrapErr(types.ErrIncomplete,
			fmt.Errorf("received %d of %d bytes", s.report.BytesReceived, total))
	}
	if s.report.PagesWritten > 0 {
		if err := w.dev.Sync(); err != nil {
			return s.report, types.WrapErr(types.ErrProgramFailed, fmt.Errorf("sync: %w", err))
		}
	}
	return s.report, nil
}
