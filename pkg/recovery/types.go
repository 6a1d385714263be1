package recovery

import "github.com/FL0WL0W/ESPRecovery/pkg/types"

// Re-export commonly used types from pkg/types so users only need to
// import pkg/recovery.

// Core types.
type (
	Region       = types.Region
	RegionKind   = types.RegionKind
	WriteReport  = types.WriteReport
	KVType       = types.KVType
	KVEntry      = types.KVEntry
	FileInfo     = types.FileInfo
	RegionStatus = types.RegionStatus
	SystemStatus = types.SystemStatus
)

// Error types.
type (
	Error   = types.Error
	ErrKind = types.ErrKind
)

// Region kind codes.
const (
	KindApplication = types.KindApplication
	KindData        = types.KindData
)

// Key-value type codes.
const (
	TypeU8     = types.TypeU8
	TypeI8     = types.TypeI8
	TypeU16    = types.TypeU16
	TypeI16    = types.TypeI16
	TypeU32    = types.TypeU32
	TypeI32    = types.TypeI32
	TypeU64    = types.TypeU64
	TypeI64    = types.TypeI64
	TypeString = types.TypeString
	TypeBlob   = types.TypeBlob
)

// Error kind constants.
const (
	ErrKindNotFound   = types.ErrKindNotFound
	ErrKindValidation = types.ErrKindValidation
	ErrKindStorage    = types.ErrKindStorage
	ErrKindResource   = types.ErrKindResource
	ErrKindState      = types.ErrKindState
	ErrKindFormat     = types.ErrKindFormat
)

// Sentinels.
var (
	ErrRegionNotFound = types.ErrRegionNotFound
	ErrNotFound       = types.ErrNotFound
	ErrInvalidTarget  = types.ErrInvalidTarget
	ErrSizeExceeded   = types.ErrSizeExceeded
	ErrRegionTooSmall = types.ErrRegionTooSmall
	ErrTypeMismatch   = types.ErrTypeMismatch
	ErrIncomplete     = types.ErrIncomplete
	ErrReadFailed     = types.ErrReadFailed
	ErrEraseFailed    = types.ErrEraseFailed
	ErrProgramFailed  = types.ErrProgramFailed
	ErrOutOfMemory    = types.ErrOutOfMemory
	ErrStoreFull      = types.ErrStoreFull
	ErrBusy           = types.ErrBusy
	ErrCorrupt        = types.ErrCorrupt
)
