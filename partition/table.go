package partition

import (
	"bytes"
	"fmt"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/buf"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// ParseTable reads the partition table at tableOff and returns the regions
// in physical table order. The scan stops at the first entry whose magic
// does not match; checksum entries are skipped. Every region is validated
// against the device geometry before the table is accepted.
func ParseTable(dev flash.Device, tableOff int64) ([]types.Region, error) {
	if tableOff < 0 || tableOff >= dev.Size() {
		return nil, types.WrapErr(types.ErrCorrupt,
			fmt.Errorf("table offset 0x%x outside device of %d bytes", tableOff, dev.Size()))
	}
	span := int64(format.TableMaxSize)
	if rem := dev.Size() - tableOff; rem < span {
		span = rem
	}
	raw := make([]byte, span)
	if _, err := dev.ReadAt(raw, tableOff); err != nil {
		return nil, types.WrapErr(types.ErrReadFailed, err)
	}

	var regions []types.Region
	seen := make(map[string]struct{})
	for off := 0; off+format.TableEntrySize <= len(raw); off += format.TableEntrySize {
		entry, ok := buf.Slice(raw, off, format.TableEntrySize)
		if !ok {
			break
		}
		magic := format.ReadU16(entry, format.EntryMagicOff)
		if magic == format.ChecksumMagic {
			continue
		}
		if magic != format.EntryMagic {
			break
		}
		r, err := decodeEntry(entry)
		if err != nil {
			return nil, err
		}
		if err := validateRegion(dev, r); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Label]; dup {
			return nil, types.WrapErr(types.ErrCorrupt,
				fmt.Errorf("duplicate region label %q", r.Label))
		}
		seen[r.Label] = struct{}{}
		regions = append(regions, r)
	}
	return regions, nil
}

func decodeEntry(entry []byte) (types.Region, error) {
	label := entry[format.EntryLabelOff : format.EntryLabelOff+format.EntryLabelLen]
	if i := bytes.IndexByte(label, 0); i >= 0 {
		label = label[:i]
	}
	if len(label) == 0 {
		return types.Region{}, types.WrapErr(types.ErrCorrupt, fmt.Errorf("entry with empty label"))
	}
	return types.Region{
		Label:   string(label),
		Kind:    types.RegionKind(entry[format.EntryKindOff]),
		SubKind: entry[format.EntrySubKindOff],
		Offset:  int64(format.ReadU32(entry, format.EntryOffsetOff)),
		Size:    int64(format.ReadU32(entry, format.EntrySizeOff)),
	}, nil
}

func validateRegion(dev flash.Device, r types.Region) error {
	g := dev.EraseSize()
	if r.Size <= 0 || !format.IsAligned(r.Offset, g) || !format.IsAligned(r.Size, g) {
		return types.WrapErr(types.ErrCorrupt,
			fmt.Errorf("region %q at 0x%x size %d not aligned to erase size %d", r.Label, r.Offset, r.Size, g))
	}
	if _, ok := buf.CheckRecordBounds(dev.Size(), r.Offset, r.Size); !ok {
		return types.WrapErr(types.ErrCorrupt,
			fmt.Errorf("region %q [0x%x, +%d) outside device of %d bytes", r.Label, r.Offset, r.Size, dev.Size()))
	}
	return nil
}

// EncodeTable serializes regions into partition table bytes, one 32-byte
// entry per region in order. Used by image creation and tests; the running
// system only ever parses.
func EncodeTable(regions []types.Region) ([]byte, error) {
	out := make([]byte, 0, len(regions)*format.TableEntrySize)
	for _, r := range regions {
		if len(r.Label) == 0 || len(r.Label) > format.EntryLabelLen {
			return nil, fmt.Errorf("partition: label %q must be 1..%d bytes", r.Label, format.EntryLabelLen)
		}
		if r.Offset < 0 || r.Size <= 0 || r.Offset > 0xFFFFFFFF || r.Size > 0xFFFFFFFF {
			return nil, fmt.Errorf("partition: region %q does not fit a 32-bit table entry", r.Label)
		}
		entry := make([]byte, format.TableEntrySize)
		format.PutU16(entry, format.EntryMagicOff, format.EntryMagic)
		entry[format.EntryKindOff] = uint8(r.Kind)
		entry[format.EntrySubKindOff] = r.SubKind
		format.PutU32(entry, format.EntryOffsetOff, uint32(r.Offset))
		format.PutU32(entry, format.EntrySizeOff, uint32(r.Size))
		copy(entry[format.EntryLabelOff:format.EntryLabelOff+format.EntryLabelLen], r.Label)
		out = append(out, entry...)
	}
	return out, nil
}

// WriteImage creates an erased flash image at path and programs the table
// for regions at the default table offset.
func WriteImage(path string, size int64, regions []types.Region) error {
	table, err := EncodeTable(regions)
	if err != nil {
		return err
	}
	if len(table) > format.TableMaxSize {
		return fmt.Errorf("partition: table of %d regions exceeds %d bytes", len(regions), format.TableMaxSize)
	}

	dev, err := flash.OpenFile(path, size, format.PageSizeDefault)
	if err != nil {
		return err
	}
	for _, r := range regions {
		if err := validateRegion(dev, r); err != nil {
			dev.Close()
			return err
		}
	}
	if err := dev.Program(format.TableDefaultOffset, table); err != nil {
		dev.Close()
		return err
	}
	if err := dev.Sync(); err != nil {
		dev.Close()
		return err
	}
	return dev.Close()
}
