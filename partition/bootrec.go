package partition

import (
	"fmt"
	"hash/crc32"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// bootState is the decoded content of the bootdata region: which slot holds
// the newest valid record, its sequence number and label.
type bootState struct {
	label string
	seq   uint32
	slot  int // -1 when no valid record exists
}

// encodeBootRecord builds a boot record over erased filler so unprogrammed
// padding stays 0xFF.
func encodeBootRecord(label string, seq uint32) []byte {
	rec := make([]byte, format.BootRecordSize)
	for i := range rec {
		rec[i] = format.Erased
	}
	format.PutU32(rec, format.BootMagicOff, format.BootMagic)
	format.PutU32(rec, format.BootSeqOff, seq)
	rec[format.BootLabelLenOff] = byte(len(label))
	copy(rec[format.BootLabelOff:], label)
	format.PutU32(rec, format.BootCRCOff, crc32.ChecksumIEEE(rec[format.BootSeqOff:format.BootCRCOff]))
	return rec
}

func decodeBootRecord(rec []byte) (label string, seq uint32, ok bool) {
	if format.ReadU32(rec, format.BootMagicOff) != format.BootMagic {
		return "", 0, false
	}
	n := int(rec[format.BootLabelLenOff])
	if n == 0 || n > format.BootLabelMax {
		return "", 0, false
	}
	if format.ReadU32(rec, format.BootCRCOff) != crc32.ChecksumIEEE(rec[format.BootSeqOff:format.BootCRCOff]) {
		return "", 0, false
	}
	return string(rec[format.BootLabelOff : format.BootLabelOff+n]), format.ReadU32(rec, format.BootSeqOff), true
}

// readBootState scans both slots and returns the valid record with the
// highest sequence. A torn update leaves at most one slot invalid, so the
// previous target survives.
func readBootState(dev flash.Device, region types.Region) (bootState, error) {
	g := dev.EraseSize()
	if region.Size < int64(format.BootSlots)*g {
		return bootState{}, types.WrapErr(types.ErrCorrupt,
			fmt.Errorf("bootdata region %q smaller than %d slots of %d bytes", region.Label, format.BootSlots, g))
	}
	state := bootState{slot: -1}
	rec := make([]byte, format.BootRecordSize)
	for slot := 0; slot < format.BootSlots; slot++ {
		if _, err := dev.ReadAt(rec, region.Offset+int64(slot)*g); err != nil {
			return bootState{}, types.WrapErr(types.ErrReadFailed, err)
		}
		label, seq, ok := decodeBootRecord(rec)
		if !ok {
			continue
		}
		if state.slot == -1 || seq > state.seq {
			state = bootState{label: label, seq: seq, slot: slot}
		}
	}
	return state, nil
}

// writeBootState persists label into the slot not holding the current
// record: erase the slot, program the record, then sync before returning.
func writeBootState(dev flash.Device, region types.Region, prev bootState, label string) (bootState, error) {
	g := dev.EraseSize()
	slot := 0
	if prev.slot == 0 {
		slot = 1
	}
	next := bootState{label: label, seq: prev.seq + 1, slot: slot}
	off := region.Offset + int64(slot)*g
	if err := dev.EraseRange(off, g); err != nil {
		return bootState{}, types.WrapErr(types.ErrEraseFailed, err)
	}
	if err := dev.Program(off, encodeBootRecord(label, next.seq)); err != nil {
		return bootState{}, types.WrapErr(types.ErrProgramFailed, err)
	}
	if err := dev.Sync(); err != nil {
		return bootState{}, types.WrapErr(types.ErrProgramFailed, err)
	}
	return next, nil
}
