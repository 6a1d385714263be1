package types

import "fmt"

// -----------------------------------------------------------------------------
// Typed Errors (stable categories for programmatic handling)
// -----------------------------------------------------------------------------

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindNotFound   ErrKind = iota // missing region/key/file
	ErrKindValidation                // rejected before any storage mutation, zero side effects
	ErrKindStorage                   // erase/program/read failed mid-operation; target region content is unknown
	ErrKindResource                  // session buffers or erased store space exhausted
	ErrKindState                     // invalid operation for current state (e.g. region busy)
	ErrKindFormat                    // malformed on-flash structure (table entry, record header)
)

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same kind and message, so a sentinel
// wrapped with an underlying cause still satisfies errors.Is against the
// bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == e.Msg
}

// WrapErr returns a copy of sentinel carrying err as the underlying cause.
func WrapErr(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Msg: sentinel.Msg, Err: err}
}

// Sentinels commonly returned by implementations.
var (
	// ErrRegionNotFound indicates a label that resolves to no region.
	ErrRegionNotFound = &Error{Kind: ErrKindNotFound, Msg: "region not found"}
	// ErrNotFound indicates a missing key or file within a region.
	ErrNotFound = &Error{Kind: ErrKindNotFound, Msg: "not found"}
	// ErrInvalidTarget indicates a boot target that is not an Application region.
	ErrInvalidTarget = &Error{Kind: ErrKindValidation, Msg: "boot target is not an application region"}
	// ErrSizeExceeded indicates a payload larger than the configured maximum.
	ErrSizeExceeded = &Error{Kind: ErrKindValidation, Msg: "payload exceeds maximum write size"}
	// ErrRegionTooSmall indicates a payload larger than the target region.
	ErrRegionTooSmall = &Error{Kind: ErrKindValidation, Msg: "payload exceeds region size"}
	// ErrTypeMismatch indicates a value that cannot be encoded as the declared type.
	ErrTypeMismatch = &Error{Kind: ErrKindValidation, Msg: "value does not match declared type"}
	// ErrIncomplete indicates the byte source ended before the expected length.
	ErrIncomplete = &Error{Kind: ErrKindStorage, Msg: "byte source ended before expected length"}
	// ErrReadFailed indicates a flash read failure mid-operation.
	ErrReadFailed = &Error{Kind: ErrKindStorage, Msg: "flash read failed"}
	// ErrEraseFailed indicates a flash erase failure mid-operation.
	ErrEraseFailed = &Error{Kind: ErrKindStorage, Msg: "flash erase failed"}
	// ErrProgramFailed indicates a flash program failure mid-operation.
	ErrProgramFailed = &Error{Kind: ErrKindStorage, Msg: "flash program failed"}
	// ErrOutOfMemory indicates no write-session buffers are available.
	ErrOutOfMemory = &Error{Kind: ErrKindResource, Msg: "no write session buffers available"}
	// ErrStoreFull indicates no erased space remains in the region.
	ErrStoreFull = &Error{Kind: ErrKindResource, Msg: "no erased space left in region"}
	// ErrBusy indicates another operation holds the region.
	ErrBusy = &Error{Kind: ErrKindState, Msg: "region has an operation in flight"}
	// ErrCorrupt indicates a torn or malformed on-flash record.
	ErrCorrupt = &Error{Kind: ErrKindFormat, Msg: "corrupt on-flash record"}
)

// -----------------------------------------------------------------------------
// Regions
// -----------------------------------------------------------------------------

// RegionKind is the wire code for a region's kind.
type RegionKind uint8

const (
	KindApplication RegionKind = 0x00
	KindData        RegionKind = 0x01
)

func (k RegionKind) String() string {
	switch k {
	case KindApplication:
		return "app"
	case KindData:
		return "data"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// Region subkind wire codes. Subkind meaning depends on the kind: for
// Application regions 0x00 is the factory image and 0x10+N is OTA slot N;
// for Data regions 0x00 holds the boot record, 0x02 a key-value store and
// 0x82 a file store.
const (
	SubKindFactory  uint8 = 0x00
	SubKindOTABase  uint8 = 0x10
	SubKindOTAMax   uint8 = 0x1f
	SubKindBootData uint8 = 0x00
	SubKindKVStore  uint8 = 0x02
	SubKindFS       uint8 = 0x82
)

// SubKindOTA returns the subkind code for OTA slot n.
func SubKindOTA(n int) uint8 { return SubKindOTABase + uint8(n) }

// Region is a named, fixed-size, contiguous span of flash with a declared
// purpose. Regions are defined statically at image-build time; the registry
// only reads the table.
type Region struct {
	Label   string
	Kind    RegionKind
	SubKind uint8
	Offset  int64 // base address within the device
	Size    int64 // bytes, multiple of the erase granularity
}

// IsApplication reports whether the region holds executable images.
func (r Region) IsApplication() bool { return r.Kind == KindApplication }

// End returns the first address past the region.
func (r Region) End() int64 { return r.Offset + r.Size }

// SubKindName renders the subkind for humans, resolving the kind-dependent
// code space.
func (r Region) SubKindName() string {
	switch r.Kind {
	case KindApplication:
		if r.SubKind == SubKindFactory {
			return "factory"
		}
		if r.SubKind >= SubKindOTABase && r.SubKind <= SubKindOTAMax {
			return fmt.Sprintf("ota_%d", r.SubKind-SubKindOTABase)
		}
	case KindData:
		switch r.SubKind {
		case SubKindBootData:
			return "bootdata"
		case SubKindKVStore:
			return "kvstore"
		case SubKindFS:
			return "filestore"
		}
	}
	return "unknown"
}

// -----------------------------------------------------------------------------
// Differential writer
// -----------------------------------------------------------------------------

// WriteReport summarizes one completed streamed write.
type WriteReport struct {
	BytesReceived int64 // bytes pulled from the source, excluding padding
	PagesCompared int   // pages read back and byte-compared
	PagesWritten  int   // pages that passed through erase+program
}

// -----------------------------------------------------------------------------
// Key-value entries
// -----------------------------------------------------------------------------

// KVType tags a key-value entry. Codes 0-7 are fixed-width integers in
// unsigned/signed pairs by width, 8 is a string, 9 an opaque blob.
type KVType uint8

const (
	TypeU8 KVType = iota
	TypeI8
	TypeU16
	TypeI16
	TypeU32
	TypeI32
	TypeU64
	TypeI64
	TypeString
	TypeBlob
)

// Valid reports whether t is one of the wire codes 0-9.
func (t KVType) Valid() bool { return t <= TypeBlob }

// Width returns the encoded byte width for integer types, 0 otherwise.
func (t KVType) Width() int {
	switch t {
	case TypeU8, TypeI8:
		return 1
	case TypeU16, TypeI16:
		return 2
	case TypeU32, TypeI32:
		return 4
	case TypeU64, TypeI64:
		return 8
	}
	return 0
}

// Signed reports whether t is a signed integer type.
func (t KVType) Signed() bool {
	switch t {
	case TypeI8, TypeI16, TypeI32, TypeI64:
		return true
	}
	return false
}

func (t KVType) String() string {
	switch t {
	case TypeU8:
		return "u8"
	case TypeI8:
		return "i8"
	case TypeU16:
		return "u16"
	case TypeI16:
		return "i16"
	case TypeU32:
		return "u32"
	case TypeI32:
		return "i32"
	case TypeU64:
		return "u64"
	case TypeI64:
		return "i64"
	case TypeString:
		return "str"
	case TypeBlob:
		return "blob"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// BlobMarker is the fixed value reported for blob entries; blob payloads are
// never surfaced through the key-value interface.
const BlobMarker = "<blob>"

// KVEntry is one typed entry of a key-value store region. Value carries the
// boundary rendering: canonical base-10 text for integers, the literal text
// for strings, BlobMarker for blobs.
type KVEntry struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      KVType `json:"type"`
	Value     string `json:"value"`
}

// -----------------------------------------------------------------------------
// Files
// -----------------------------------------------------------------------------

// FileInfo describes one file of a file-store region.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// -----------------------------------------------------------------------------
// Status payloads
// -----------------------------------------------------------------------------

// RegionStatus is the per-region slice of the status payload. Address is
// reported as hex text, kind and subkind as their wire codes.
type RegionStatus struct {
	Label   string `json:"label"`
	Address string `json:"address"`
	Size    int64  `json:"size"`
	Kind    uint8  `json:"type"`
	SubKind uint8  `json:"subtype"`
}

// SystemStatus is the full status payload.
type SystemStatus struct {
	Regions    []RegionStatus `json:"partitions"`
	Running    string         `json:"running"`
	BootTarget string         `json:"boot_target"`
}
