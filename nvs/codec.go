package nvs

import (
	"fmt"
	"strconv"

	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// Boundary codec: values cross the store interface as text (canonical
// base-10 for integers, literal text for strings) and live on flash as
// fixed-width little-endian integers or raw bytes. This is the structured
// decode step; the store core never inspects request text itself.

// EncodeValue converts boundary text into the on-flash encoding for typ.
// Integer text that does not parse, or does not fit the declared width,
// fails ErrTypeMismatch. Blob values cannot be encoded through this
// interface.
func EncodeValue(typ types.KVType, text string) ([]byte, error) {
	switch {
	case typ == types.TypeString:
		return []byte(text), nil
	case typ == types.TypeBlob:
		return nil, types.WrapErr(types.ErrTypeMismatch, fmt.Errorf("blob values are immutable through this interface"))
	case !typ.Valid():
		return nil, types.WrapErr(types.ErrTypeMismatch, fmt.Errorf("unknown type code %d", uint8(typ)))
	}

	width := typ.Width()
	out := make([]byte, width)
	if typ.Signed() {
		v, err := strconv.ParseInt(text, 10, width*8)
		if err != nil {
			return nil, types.WrapErr(types.ErrTypeMismatch,
				fmt.Errorf("%q is not a %s", text, typ))
		}
		putInt(out, uint64(v))
		return out, nil
	}
	v, err := strconv.ParseUint(text, 10, width*8)
	if err != nil {
		return nil, types.WrapErr(types.ErrTypeMismatch,
			fmt.Errorf("%q is not a %s", text, typ))
	}
	putInt(out, v)
	return out, nil
}

// FormatValue renders an on-flash value for the boundary: decimal text for
// integers, the literal text for strings, the fixed marker for blobs whose
// payloads are never surfaced.
func FormatValue(typ types.KVType, raw []byte) string {
	switch {
	case typ == types.TypeString:
		return string(raw)
	case typ == types.TypeBlob:
		return types.BlobMarker
	case !typ.Valid() || len(raw) != typ.Width():
		return types.BlobMarker
	}
	v := readInt(raw)
	if typ.Signed() {
		// Sign-extend from the declared width.
		shift := uint(64 - typ.Width()*8)
		return strconv.FormatInt(int64(v<<shift)>>shift, 10)
	}
	return strconv.FormatUint(v, 10)
}

func putInt(out []byte, v uint64) {
	switch len(out) {
	case 1:
		out[0] = byte(v)
	case 2:
		format.PutU16(out, 0, uint16(v))
	case 4:
		format.PutU32(out, 0, uint32(v))
	case 8:
		format.PutU64(out, 0, v)
	}
}

func readInt(raw []byte) uint64 {
	switch len(raw) {
	case 1:
		return uint64(raw[0])
	case 2:
		return uint64(format.ReadU16(raw, 0))
	case 4:
		return uint64(format.ReadU32(raw, 0))
	case 8:
		return format.ReadU64(raw, 0)
	}
	return 0
}
