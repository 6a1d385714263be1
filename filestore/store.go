// Package filestore implements the flat file overlay: named opaque files
// inside a mountable flash region.
//
// Mounting is a scoped acquisition. Every operation mounts its region for
// the call's duration (scanning the record log into a name index) and
// unmounts on every exit path. Distinct regions mount concurrently; a
// region's operations serialize on a per-region mutex.
package filestore

import (
	"fmt"
	"io"
	"sync"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// Store provides file operations over regions of one device.
type Store struct {
	dev flash.Device

	mu     sync.Mutex
	mounts map[string]*sync.Mutex
}

func New(dev flash.Device) *Store {
	return &Store{dev: dev, mounts: make(map[string]*sync.Mutex)}
}

// List returns the live files of region in storage order.
func (s *Store) List(region types.Region) ([]types.FileInfo, error) {
	idx, unmount, err := s.mount(region)
	if err != nil {
		return nil, err
	}
	defer unmount()

	out := make([]types.FileInfo, 0, len(idx.order))
	for _, name := range idx.order {
		rec := idx.files[name]
		out = append(out, types.FileInfo{Name: name, Size: rec.size})
	}
	return out, nil
}

// Upload streams total bytes from src into a new or replacement file. The
// record header carries the final size up front, content follows, and the
// record is activated only after everything programmed; any failure marks
// the partial record deleted so no orphaned partials survive.
func (s *Store) Upload(region types.Region, name string, total int64, src io.Reader) error {
	if len(name) == 0 || len(name) > 255 {
		return &types.Error{
			Kind: types.ErrKindValidation,
			Msg:  fmt.Sprintf("file name must be 1..255 bytes, got %d", len(name)),
		}
	}
	if total < 0 {
		return &types.Error{Kind: types.ErrKindValidation, Msg: fmt.Sprintf("negative length %d", total)}
	}

	idx, unmount, err := s.mount(region)
	if err != nil {
		return err
	}
	defer unmount()

	recLen := int64(format.FileHeaderSize) + int64(len(name)) + total
	if idx.end+recLen > region.Size {
		return types.WrapErr(types.ErrStoreFull,
			fmt.Errorf("region %q: %d bytes free, file needs %d", region.Label, region.Size-idx.end, recLen))
	}

	recOff := idx.end
	hdr := make([]byte, format.FileHeaderSize+len(name))
	for i := range hdr {
		hdr[i] = format.Erased
	}
	hdr[format.FileStateOff] = format.RecStatePending
	hdr[format.FileNameLenOff] = byte(len(name))
	format.PutU32(hdr, format.FileSizeOff, uint32(total))
	copy(hdr[format.FileHeaderSize:], name)
	if err := s.dev.Program(region.Offset+recOff, hdr); err != nil {
		return types.WrapErr(types.ErrProgramFailed, err)
	}

	if err := s.streamContent(region, recOff+int64(len(hdr)), total, src); err != nil {
		// Tombstone the partial record; best effort, the original error wins.
		_ = s.setState(region, recOff, format.RecStateDeleted)
		return err
	}
	if err := s.dev.Sync(); err != nil {
		return types.WrapErr(types.ErrProgramFailed, fmt.Errorf("sync: %w", err))
	}
	if err := s.setState(region, recOff, format.RecStateActive); err != nil {
		return err
	}
	if old, ok := idx.files[name]; ok {
		if err := s.setState(region, old.off, format.RecStateDeleted); err != nil {
			return err
		}
	}
	return nil
}

// Download returns the file's exact content, or ErrNotFound.
func (s *Store) Download(region types.Region, name string) ([]byte, error) {
	idx, unmount, err := s.mount(region)
	if err != nil {
		return nil, err
	}
	defer unmount()

	rec, ok := idx.files[name]
	if !ok {
		return nil, types.WrapErr(types.ErrNotFound, fmt.Errorf("file %q in region %q", name, region.Label))
	}
	out := make([]byte, rec.size)
	if _, err := s.dev.ReadAt(out, region.Offset+rec.content); err != nil {
		return nil, types.WrapErr(types.ErrReadFailed, err)
	}
	return out, nil
}

// Delete marks the file's record deleted, or ErrNotFound.
func (s *Store) Delete(region types.Region, name string) error {
	idx, unmount, err := s.mount(region)
	if err != nil {
		return err
	}
	defer unmount()

	rec, ok := idx.files[name]
	if !ok {
		return types.WrapErr(types.ErrNotFound, fmt.Errorf("file %q in region %q", name, region.Label))
	}
	return s.setState(region, rec.off, format.RecStateDeleted)
}

func (s *Store) streamContent(region types.Region, off, total int64, src io.Reader) error {
	chunk := make([]byte, 4096)
	received := int64(0)
	for received < total {
		n := int64(len(chunk))
		if total-received < n {
			n = total - received
		}
		if _, err := io.ReadFull(src, chunk[:n]); err != nil {
			return types.WrapErr(types.ErrIncomplete,
				fmt.Errorf("after %d of %d bytes: %w", received, total, err))
		}
		if err := s.dev.Program(region.Offset+off+received, chunk[:n]); err != nil {
			return types.WrapErr(types.ErrProgramFailed, err)
		}
		received += n
	}
	return nil
}

func (s *Store) setState(region types.Region, recOff int64, state byte) error {
	if err := s.dev.Program(region.Offset+recOff+format.FileStateOff, []byte{state}); err != nil {
		return types.WrapErr(types.ErrProgramFailed, err)
	}
	if err := s.dev.Sync(); err != nil {
		return types.WrapErr(types.ErrProgramFailed, fmt.Errorf("sync: %w", err))
	}
	return nil
}

func (s *Store) regionLock(label string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mounts[label]
	if !ok {
		m = &sync.Mutex{}
		s.mounts[label] = m
	}
	return m
}

// mount locks the region and scans its log into an index. The returned
// unmount func releases the lock; the index dies with the call.
func (s *Store) mount(region types.Region) (*index, func(), error) {
	m := s.regionLock(region.Label)
	m.Lock()
	idx, err := s.buildIndex(region)
	if err != nil {
		m.Unlock()
		return nil, nil, err
	}
	return idx, m.Unlock, nil
}
