package diffwrite

import (
	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// runState is the dirty-run accumulator state.
type runState int

const (
	stateIdle         runState = iota // no run open
	stateAccumulating                 // run open, buffer non-empty
)

// session owns the buffers of one in-flight streamed write: the incoming
// page, the existing-content page, and the dirty-run accumulator. A session
// is private to one call and returns to the writer's pool on every exit
// path.
type session struct {
	pageSize int64
	page     []byte // next P incoming bytes, padded on the final page
	existing []byte // current region content at the same offset
	run      []byte // accumulated dirty pages, cap = buffer capacity B

	dev      flash.Device
	region   types.Region
	state    runState
	runStart int64 // region-relative offset of run[0]
	report   types.WriteReport
}

func newSession(pageSize, bufSize int64) *session {
	return &session{
		pageSize: pageSize,
		page:     make([]byte, pageSize),
		existing: make([]byte, pageSize),
		run:      make([]byte, 0, bufSize),
	}
}

// reset binds the session to a target region and clears all progress.
func (s *session) reset(dev flash.Device, region types.Region) {
	s.dev = dev
	s.region = region
	s.state = stateIdle
	s.runStart = 0
	s.run = s.run[:0]
	s.report = types.WriteReport{}
}

// release drops the region binding so pooled sessions hold no references.
func (s *session) release() {
	s.dev = nil
	s.region = types.Region{}
}

// observe is the state transition function, driven once per compared page.
// off is the region-relative page offset; s.page holds the page content.
//
//	Idle          -- clean --> Idle
//	Idle          -- dirty --> Accumulating (run opens at off)
//	Accumulating  -- clean --> Idle         (flush: dirty->clean boundary)
//	Accumulating  -- dirty --> Accumulating (flush first when buffer full)
func (s *session) observe(off int64, dirty bool) error {
	switch s.state {
	case stateIdle:
		if !dirty {
			return nil
		}
		s.runStart = off
		s.run = append(s.run, s.page...)
		s.state = stateAccumulating
	case stateAccumulating:
		if !dirty {
			return s.flush()
		}
		s.run = append(s.run, s.page...)
		if len(s.run) == cap(s.run) {
			return s.flush()
		}
	}
	return nil
}

// finish flushes any run still open at end of input.
func (s *session) finish() error {
	if s.state == stateAccumulating {
		return s.flush()
	}
	return nil
}

// flush erases the run's span and programs its exact length. The run holds
// whole pages starting at a page boundary, so the span is already aligned
// to the erase granularity. On failure the region stays partially updated;
// there is no rollback.
func (s *session) flush() error {
	length := int64(len(s.run))
	off := s.region.Offset + s.runStart
	if err := s.dev.EraseRange(off, length); err != nil {
		return types.WrapErr(types.ErrEraseFailed, err)
	}
	if err := s.dev.Program(off, s.run); err != nil {
		return types.WrapErr(types.ErrProgramFailed, err)
	}
	s.report.PagesWritten += int(length / s.pageSize)
	s.run = s.run[:0]
	s.state = stateIdle
	return nil
}
