// Package codec implements the on-disk wire format for record values:
// a self-describing tag byte followed by a fixed or length-prefixed
// payload, big-endian throughout. A Record is a tombstone flag followed by
// a sequence of Values. No escape framing is used — the containing
// metadata row supplies the record's total length, so the codec never
// needs to find a boundary by scanning the bytes themselves.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tag identifies a Value's wire representation.
type Tag byte

const (
	TagNull   Tag = 0
	TagInt    Tag = 1
	TagFloat  Tag = 2
	TagString Tag = 3
	TagBytes  Tag = 4
)

// Kind identifies a Value's logical type, independent of wire tag.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	default:
		return "Unknown"
	}
}

// Value is a tagged union over {Null, Int, Float, String, Bytes}.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
	Bytes []byte
}

func Null() Value                { return Value{Kind: KindNull} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value       { return Value{Kind: KindBytes, Bytes: b} }

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Float == other.Float
	case KindString:
		return v.Str == other.Str
	case KindBytes:
		if len(v.Bytes) != len(other.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != other.Bytes[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// serialize appends v's wire representation to buf and returns the result.
func (v Value) serialize(buf []byte) []byte {
	switch v.Kind {
	case KindNull:
		return append(buf, byte(TagNull))
	case KindInt:
		buf = append(buf, byte(TagInt))
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Int))
		return append(buf, b[:]...)
	case KindFloat:
		buf = append(buf, byte(TagFloat))
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.Float))
		return append(buf, b[:]...)
	case KindString:
		buf = append(buf, byte(TagString))
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(v.Str)))
		buf = append(buf, lenBuf[:]...)
		return append(buf, v.Str...)
	case KindBytes:
		buf = append(buf, byte(TagBytes))
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(v.Bytes)))
		buf = append(buf, lenBuf[:]...)
		return append(buf, v.Bytes...)
	default:
		panic(fmt.Sprintf("codec: unknown value kind %d", v.Kind))
	}
}

// ErrUnknownTag is returned when a byte stream contains a tag byte outside
// the known range. Callers with file/segment context should translate this
// into a *errors.ConsistencyError.
var ErrUnknownTag = fmt.Errorf("codec: unknown value tag")

// ErrTruncated is returned when a byte stream ends before a value's
// declared payload has been fully read.
var ErrTruncated = fmt.Errorf("codec: truncated value payload")

// deserializeValue reads one Value from the front of buf and returns it
// along with the number of bytes consumed.
func deserializeValue(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, ErrTruncated
	}

	switch Tag(buf[0]) {
	case TagNull:
		return Null(), 1, nil
	case TagInt:
		if len(buf) < 9 {
			return Value{}, 0, ErrTruncated
		}
		i := int64(binary.BigEndian.Uint64(buf[1:9]))
		return Int(i), 9, nil
	case TagFloat:
		if len(buf) < 9 {
			return Value{}, 0, ErrTruncated
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(buf[1:9]))
		return Float(f), 9, nil
	case TagString:
		if len(buf) < 9 {
			return Value{}, 0, ErrTruncated
		}
		n := binary.BigEndian.Uint64(buf[1:9])
		end := 9 + int(n)
		if uint64(len(buf)-9) < n || end < 0 {
			return Value{}, 0, ErrTruncated
		}
		return String(string(buf[9:end])), end, nil
	case TagBytes:
		if len(buf) < 9 {
			return Value{}, 0, ErrTruncated
		}
		n := binary.BigEndian.Uint64(buf[1:9])
		end := 9 + int(n)
		if uint64(len(buf)-9) < n || end < 0 {
			return Value{}, 0, ErrTruncated
		}
		out := make([]byte, n)
		copy(out, buf[9:end])
		return Bytes(out), end, nil
	default:
		return Value{}, 0, ErrUnknownTag
	}
}

// Record is an ordered sequence of Values plus a tombstone flag.
type Record struct {
	Tombstone bool
	Values    []Value
}

// Serialize writes the tombstone byte followed by each value's wire
// representation, in order.
func (r Record) Serialize() []byte {
	buf := make([]byte, 0, 1+len(r.Values)*9)
	if r.Tombstone {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	for _, v := range r.Values {
		buf = v.serialize(buf)
	}
	return buf
}

// Deserialize reads a Record from buf. It consumes the entire slice,
// decoding values until none is left. Trailing bytes that do not form a
// complete value are reported as ErrTruncated or ErrUnknownTag; trailing
// bytes that do decode are returned as additional values.
func Deserialize(buf []byte) (Record, error) {
	if len(buf) < 1 {
		return Record{}, ErrTruncated
	}

	rec := Record{Tombstone: buf[0] != 0}
	pos := 1
	for pos < len(buf) {
		v, n, err := deserializeValue(buf[pos:])
		if err != nil {
			return Record{}, err
		}
		rec.Values = append(rec.Values, v)
		pos += n
	}

	return rec, nil
}
