package filestore

import (
	"fmt"

	"github.com/FL0WL0W/ESPRecovery/internal/buf"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// fileRec locates one live file inside a region. Offsets are
// region-relative.
type fileRec struct {
	off     int64 // record start
	content int64 // content start
	size    int64
}

// index is the result of scanning a region at mount time.
type index struct {
	files map[string]fileRec
	order []string // live names in storage order
	end   int64    // where the next record goes
}

// buildIndex walks the record log. A record whose header was torn before
// its lengths were programmed stops the scan with ErrCorrupt; the region
// needs a wholesale clear before further writes.
func (s *Store) buildIndex(region types.Region) (*index, error) {
	idx := &index{files: make(map[string]fileRec)}
	hdr := make([]byte, format.FileHeaderSize)
	off := int64(0)
	for off+format.FileHeaderSize <= region.Size {
		if _, err := s.dev.ReadAt(hdr, region.Offset+off); err != nil {
			return nil, types.WrapErr(types.ErrReadFailed, err)
		}
		state := hdr[format.FileStateOff]
		if state == format.RecStateFree {
			break
		}
		nameLen := int64(hdr[format.FileNameLenOff])
		size := int64(format.ReadU32(hdr, format.FileSizeOff))
		if nameLen == 0 {
			return nil, types.WrapErr(types.ErrCorrupt,
				fmt.Errorf("torn record at 0x%x in region %q", off, region.Label))
		}
		end, ok := buf.CheckRecordBounds(region.Size, off+format.FileHeaderSize, nameLen+size)
		if !ok {
			return nil, types.WrapErr(types.ErrCorrupt,
				fmt.Errorf("record at 0x%x overruns region %q", off, region.Label))
		}
		if state == format.RecStateActive {
			name := make([]byte, nameLen)
			if _, err := s.dev.ReadAt(name, region.Offset+off+format.FileHeaderSize); err != nil {
				return nil, types.WrapErr(types.ErrReadFailed, err)
			}
			rec := fileRec{off: off, content: off + format.FileHeaderSize + nameLen, size: size}
			if _, dup := idx.files[string(name)]; !dup {
				idx.order = append(idx.order, string(name))
			}
			idx.files[string(name)] = rec
		}
		off = end
	}
	idx.end = off
	return idx, nil
}
