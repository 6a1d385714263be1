package nvs

import (
	"fmt"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/buf"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// record is one decoded log entry. off is region-relative; end points at
// the byte after the record.
type record struct {
	off   int64
	end   int64
	state byte
	typ   types.KVType
	ns    string
	key   string
	val   []byte
}

// active reports whether the record is the live version of its entry.
func (r record) active() bool { return r.state == format.RecStateActive }

// readRecord decodes the record at region-relative off. ok=false with a nil
// error means the log ends here (erased space).
func readRecord(dev flash.Device, region types.Region, off int64) (record, bool, error) {
	if off+format.KVHeaderSize > region.Size {
		return record{}, false, nil
	}
	hdr := make([]byte, format.KVHeaderSize)
	if _, err := dev.ReadAt(hdr, region.Offset+off); err != nil {
		return record{}, false, types.WrapErr(types.ErrReadFailed, err)
	}
	if hdr[format.KVStateOff] == format.RecStateFree {
		return record{}, false, nil
	}

	rec := record{
		off:   off,
		state: hdr[format.KVStateOff],
		typ:   types.KVType(hdr[format.KVTypeOff]),
	}
	nsLen := int64(hdr[format.KVNsLenOff])
	keyLen := int64(hdr[format.KVKeyLenOff])
	valLen := int64(format.ReadU32(hdr, format.KVValLenOff))
	if nsLen == 0 || keyLen == 0 || !rec.typ.Valid() {
		return record{}, false, types.WrapErr(types.ErrCorrupt,
			fmt.Errorf("record at 0x%x: ns=%d key=%d type=%d", off, nsLen, keyLen, hdr[format.KVTypeOff]))
	}
	end, ok := buf.CheckRecordBounds(region.Size, off+format.KVHeaderSize, nsLen+keyLen+valLen)
	if !ok {
		return record{}, false, types.WrapErr(types.ErrCorrupt,
			fmt.Errorf("record at 0x%x overruns region %q", off, region.Label))
	}
	rec.end = end

	body := make([]byte, nsLen+keyLen+valLen)
	if _, err := dev.ReadAt(body, region.Offset+off+format.KVHeaderSize); err != nil {
		return record{}, false, types.WrapErr(types.ErrReadFailed, err)
	}
	rec.ns = string(body[:nsLen])
	rec.key = string(body[nsLen : nsLen+keyLen])
	rec.val = body[nsLen+keyLen:]
	return rec, true, nil
}

// buildRecord serializes a record in the pending state. Commit programs
// the whole record first, syncs, then clears the state byte to active, so
// a torn write is skipped as a tombstone instead of read as live data.
func buildRecord(typ types.KVType, ns, key string, val []byte) []byte {
	out := make([]byte, format.KVHeaderSize+len(ns)+len(key)+len(val))
	out[format.KVStateOff] = format.RecStatePending
	out[format.KVTypeOff] = byte(typ)
	out[format.KVNsLenOff] = byte(len(ns))
	out[format.KVKeyLenOff] = byte(len(key))
	format.PutU32(out, format.KVValLenOff, uint32(len(val)))
	n := copy(out[format.KVHeaderSize:], ns)
	n += copy(out[format.KVHeaderSize+n:], key)
	copy(out[format.KVHeaderSize+n:], val)
	return out
}
