package format

// On-flash layout constants. All multi-byte integers are little-endian.

// Erased is the value every byte holds after an erase. Programming can only
// clear bits, so fresh structures are built over 0xFF filler.
const Erased = 0xFF

// PageSizeDefault is the usual erase granularity for NOR flash parts.
const PageSizeDefault = 4096

// -----------------------------------------------------------------------------
// Partition table
// -----------------------------------------------------------------------------

// The partition table is a run of fixed 32-byte entries at a fixed device
// offset. Parsing stops at the first entry whose magic does not match;
// checksum entries are skipped.
//
// Entry layout:
//
//	Offset  Size  Description
//	0x00    2     Entry magic, 0x50AA
//	0x02    1     Kind code (0x00 app, 0x01 data)
//	0x03    1     Subkind code
//	0x04    4     Region base address
//	0x08    4     Region size in bytes
//	0x0c    16    Label, NUL-padded
//	0x1c    4     Flags (reserved)
const (
	TableDefaultOffset = 0x8000
	TableMaxSize       = 0xC00 // caps the table scan, 96 entries

	TableEntrySize = 32

	EntryMagic    uint16 = 0x50AA
	ChecksumMagic uint16 = 0xEBEB

	EntryMagicOff   = 0x00
	EntryKindOff    = 0x02
	EntrySubKindOff = 0x03
	EntryOffsetOff  = 0x04
	EntrySizeOff    = 0x08
	EntryLabelOff   = 0x0c
	EntryLabelLen   = 16
	EntryFlagsOff   = 0x1c
)

// -----------------------------------------------------------------------------
// Boot record
// -----------------------------------------------------------------------------

// The boot target lives in the bootdata region as two alternating slots,
// one per erase page. Each write erases the older slot and programs a fresh
// record with a bumped sequence number; readers pick the valid record with
// the highest sequence, so a torn update falls back to the previous slot.
//
// Record layout:
//
//	0x00    4     Magic "BOOT"
//	0x04    4     Sequence number
//	0x08    1     Label length (1..63)
//	0x09    63    Label bytes, 0xFF-padded
//	0x48    4     CRC32 (IEEE) over bytes [0x04, 0x48)
const (
	BootMagic uint32 = 0x544F4F42 // "BOOT"

	BootSlots = 2

	BootMagicOff    = 0x00
	BootSeqOff      = 0x04
	BootLabelLenOff = 0x08
	BootLabelOff    = 0x09
	BootLabelMax    = 63
	BootCRCOff      = 0x48
	BootRecordSize  = 0x4C
)

// -----------------------------------------------------------------------------
// Store records (key-value and file stores)
// -----------------------------------------------------------------------------

// Both stores are append-only record logs. A record's state byte moves only
// through bit-clearing transitions (free 0xFF -> pending 0xA7 -> active
// 0xA5 -> deleted 0x00), so mutation never requires an erase until the
// region runs out of erased space.
const (
	RecStateFree    = 0xFF
	RecStatePending = 0xA7
	RecStateActive  = 0xA5
	RecStateDeleted = 0x00
)

// Key-value record header:
//
//	0x00    1     State
//	0x01    1     Type code (0-9)
//	0x02    1     Namespace length (1..255)
//	0x03    1     Key length (1..255)
//	0x04    4     Value length
//
// followed by namespace, key and value bytes, unpadded.
const (
	KVHeaderSize = 8

	KVStateOff  = 0x00
	KVTypeOff   = 0x01
	KVNsLenOff  = 0x02
	KVKeyLenOff = 0x03
	KVValLenOff = 0x04
)

// File record header:
//
//	0x00    1     State
//	0x01    1     Name length (1..255)
//	0x02    2     Reserved (left erased)
//	0x04    4     Content length
//
// followed by name and content bytes, unpadded.
const (
	FileHeaderSize = 8

	FileStateOff   = 0x00
	FileNameLenOff = 0x01
	FileSizeOff    = 0x04
)
