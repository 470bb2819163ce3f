// Package codec implements the tagged self-delimiting binary format used to
// serialize primitive call-argument and result values without paying for a
// general-purpose serializer on the hot path. Unsupported values fall back to
// an opaque, caller-supplied encoding (see WrapOpaque).
//
// Wire format (little-endian throughout):
//
//	tag(1) | payload
//
//	0 OPAQUE  payload is caller-defined bytes (tag byte + raw bytes)
//	1 NONE    no payload
//	2 FALSE   no payload
//	3 TRUE    no payload
//	4 I64     8 bytes, LE
//	5 F64     8 bytes, LE
//	6 STR     u32 LE length + UTF-8 bytes
//	7 BYTES   u32 LE length + raw bytes
//	8 TUPLE   u8 count + count self-delimiting elements
//
// © 2025 warp-cache authors. MIT License.
package codec

import (
    "encoding/binary"
    "errors"
    "fmt"
    "math"
    "unicode/utf8"

    "github.com/toloco/warp-cache/internal/unsafehelpers"
)

const (
    TagOpaque byte = 0
    TagNone   byte = 1
    TagFalse  byte = 2
    TagTrue   byte = 3
    TagI64    byte = 4
    TagF64    byte = 5
    TagStr    byte = 6
    TagBytes  byte = 7
    TagTuple  byte = 8
)

// ErrTruncated is returned when a payload ends before its declared length.
var ErrTruncated = errors.New("codec: truncated payload")

// ErrInvalidUTF8 is returned when a STR payload is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("codec: invalid UTF-8")

// ErrUnknownTag is returned when a leading tag byte is not one of the tags
// above.
var ErrUnknownTag = errors.New("codec: unknown tag")

// maxTupleLen is the largest tuple arity the format can self-delimit with a
// single length byte.
const maxTupleLen = 255

// Serialize encodes v into the tagged format. The second return value is
// false when v's type isn't one of the supported primitives (nil, bool,
// any signed/unsigned integer type representable in int64, float32/float64,
// string, []byte, or []any of supported elements) — callers must fall back
// to an external opaque serializer and WrapOpaque the result in that case.
//
// A tuple ([]any) is serialized element by element; if any element is
// unsupported the buffer already written for the tuple is rolled back so the
// caller sees a clean "unsupported" result with no partial bytes appended.
func Serialize(v any) ([]byte, bool) {
    var buf []byte
    ok := serializeElement(v, &buf)
    if !ok {
        return nil, false
    }
    return buf, true
}

// WrapOpaque prepends the OPAQUE tag to externally serialized bytes.
func WrapOpaque(raw []byte) []byte {
    out := make([]byte, 0, 1+len(raw))
    out = append(out, TagOpaque)
    out = append(out, raw...)
    return out
}

// Deserialize parses the tagged format. When the leading tag is TagOpaque,
// opaque is true and the caller must apply its own decoder to data[1:];
// value is nil in that case. Otherwise value holds the decoded primitive.
func Deserialize(data []byte) (value any, opaque bool, err error) {
    if len(data) == 0 {
        return nil, false, ErrTruncated
    }
    if data[0] == TagOpaque {
        return nil, true, nil
    }
    v, consumed, err := deserializeOne(data)
    if err != nil {
        return nil, false, err
    }
    _ = consumed
    return v, false, nil
}

func serializeElement(v any, buf *[]byte) bool {
    switch x := v.(type) {
    case nil:
        *buf = append(*buf, TagNone)
        return true

    // bool checked ahead of every integer kind — Go has no bool<:int
    // subtyping but the wire format still reserves distinct tags for it.
    case bool:
        if x {
            *buf = append(*buf, TagTrue)
        } else {
            *buf = append(*buf, TagFalse)
        }
        return true

    case int:
        return putI64(buf, int64(x))
    case int8:
        return putI64(buf, int64(x))
    case int16:
        return putI64(buf, int64(x))
    case int32:
        return putI64(buf, int64(x))
    case int64:
        return putI64(buf, x)
    case uint:
        return putUintFallback(buf, uint64(x))
    case uint8:
        return putI64(buf, int64(x))
    case uint16:
        return putI64(buf, int64(x))
    case uint32:
        return putI64(buf, int64(x))
    case uint64:
        return putUintFallback(buf, x)

    case float32:
        return putF64(buf, float64(x))
    case float64:
        return putF64(buf, x)

    case string:
        putStr(buf, x)
        return true

    case []byte:
        putBytes(buf, x)
        return true

    case []any:
        return putTuple(buf, x)

    default:
        return false
    }
}

// putUintFallback encodes an unsigned value as I64 when it fits in the
// signed range; values that would overflow int64 are unsupported and must
// fall back to the external opaque serializer, per the format's "integers
// outside int64 fall back to OPAQUE" rule.
func putUintFallback(buf *[]byte, x uint64) bool {
    if x > math.MaxInt64 {
        return false
    }
    return putI64(buf, int64(x))
}

func putI64(buf *[]byte, v int64) bool {
    var tmp [9]byte
    tmp[0] = TagI64
    binary.LittleEndian.PutUint64(tmp[1:], uint64(v))
    *buf = append(*buf, tmp[:]...)
    return true
}

func putF64(buf *[]byte, v float64) bool {
    var tmp [9]byte
    tmp[0] = TagF64
    binary.LittleEndian.PutUint64(tmp[1:], math.Float64bits(v))
    *buf = append(*buf, tmp[:]...)
    return true
}

func putStr(buf *[]byte, s string) {
    b := unsafehelpers.StringToBytes(s)
    var hdr [5]byte
    hdr[0] = TagStr
    binary.LittleEndian.PutUint32(hdr[1:], uint32(len(b)))
    *buf = append(*buf, hdr[:]...)
    *buf = append(*buf, b...)
}

func putBytes(buf *[]byte, b []byte) {
    var hdr [5]byte
    hdr[0] = TagBytes
    binary.LittleEndian.PutUint32(hdr[1:], uint32(len(b)))
    *buf = append(*buf, hdr[:]...)
    *buf = append(*buf, b...)
}

// putTuple serializes each element in turn; on the first unsupported element
// it truncates buf back to its length before this tuple started, so a
// partially-written tuple never leaks into the caller's buffer.
func putTuple(buf *[]byte, items []any) bool {
    if len(items) > maxTupleLen {
        return false
    }
    start := len(*buf)
    *buf = append(*buf, TagTuple, byte(len(items)))
    for _, item := range items {
        if !serializeElement(item, buf) {
            *buf = (*buf)[:start]
            return false
        }
    }
    return true
}

func deserializeOne(data []byte) (any, int, error) {
    if len(data) == 0 {
        return nil, 0, ErrTruncated
    }
    switch data[0] {
    case TagNone:
        return nil, 1, nil
    case TagFalse:
        return false, 1, nil
    case TagTrue:
        return true, 1, nil
    case TagI64:
        if len(data) < 9 {
            return nil, 0, ErrTruncated
        }
        v := int64(binary.LittleEndian.Uint64(data[1:9]))
        return v, 9, nil
    case TagF64:
        if len(data) < 9 {
            return nil, 0, ErrTruncated
        }
        v := math.Float64frombits(binary.LittleEndian.Uint64(data[1:9]))
        return v, 9, nil
    case TagStr:
        if len(data) < 5 {
            return nil, 0, ErrTruncated
        }
        n := int(binary.LittleEndian.Uint32(data[1:5]))
        if len(data) < 5+n {
            return nil, 0, ErrTruncated
        }
        raw := data[5 : 5+n]
        if !utf8.Valid(raw) {
            return nil, 0, ErrInvalidUTF8
        }
        // Zero-copy: the returned string aliases data's backing array. Callers
        // that retain the decoded value beyond data's lifetime must copy it
        // themselves (this mirrors the region-backed decode path, where data
        // is itself a private snapshot taken under the seqlock).
        return unsafehelpers.BytesToString(raw), 5 + n, nil
    case TagBytes:
        if len(data) < 5 {
            return nil, 0, ErrTruncated
        }
        n := int(binary.LittleEndian.Uint32(data[1:5]))
        if len(data) < 5+n {
            return nil, 0, ErrTruncated
        }
        out := make([]byte, n)
        copy(out, data[5:5+n])
        return out, 5 + n, nil
    case TagTuple:
        if len(data) < 2 {
            return nil, 0, ErrTruncated
        }
        count := int(data[1])
        offset := 2
        elems := make([]any, 0, count)
        for i := 0; i < count; i++ {
            if offset > len(data) {
                return nil, 0, ErrTruncated
            }
            v, consumed, err := deserializeOne(data[offset:])
            if err != nil {
                return nil, 0, err
            }
            elems = append(elems, v)
            offset += consumed
        }
        return elems, offset, nil
    default:
        return nil, 0, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, data[0])
    }
}
