package item

import (
	"encoding/binary"
	"fmt"
	"math"
)

// maxBodyBytes is the largest body byte count (or list element count) a
// single item can declare: the 3-byte length form's limit, spec §3.
const maxBodyBytes = 1<<24 - 1

// Encode serializes v as a self-delimiting SECS-II item, per spec §4.1.
//
// Encoding the zero Value (KindNone) yields an empty byte slice, matching
// an absent payload. Encoding KindInvalid, or a NameValueSet/List built
// with invalid state, returns ErrNotSerializable.
func Encode(v Value) ([]byte, error) {
	if v.kind == KindNone {
		return []byte{}, nil
	}
	out := make([]byte, 0, 16)
	out, err := encodeInto(out, v)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func encodeInto(out []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNone:
		return nil, fmt.Errorf("%w: None cannot appear as a nested item", ErrNotSerializable)
	case KindInvalid:
		return nil, ErrNotSerializable
	case KindList, KindNameValueSet:
		out, err := appendHeader(out, ifcList, len(v.list))
		if err != nil {
			return nil, err
		}
		for _, e := range v.list {
			out, err = encodeInto(out, e)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindBinary:
		out, err := appendHeader(out, ifcBinary, len(v.binary))
		if err != nil {
			return nil, err
		}
		return append(out, v.binary...), nil
	case KindBoolean:
		out, err := appendHeader(out, ifcBoolean, len(v.bools))
		if err != nil {
			return nil, err
		}
		for _, b := range v.bools {
			if b {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
		return out, nil
	case KindASCII:
		out, err := appendHeader(out, ifcASCII, len(v.str))
		if err != nil {
			return nil, err
		}
		return append(out, v.str...), nil
	case KindJIS8:
		out, err := appendHeader(out, ifcJIS8, len(v.str))
		if err != nil {
			return nil, err
		}
		return append(out, v.str...), nil
	case KindWide:
		byteLen := 2 + 2*len(v.wide)
		out, err := appendHeader(out, ifcWide, byteLen)
		if err != nil {
			return nil, err
		}
		out = append(out, 0x00, 0x01) // UCS-2 prefix
		for _, c := range v.wide {
			out = appendUint16(out, c)
		}
		return out, nil
	case KindI1:
		out, err := appendHeader(out, ifcI1, len(v.i1))
		if err != nil {
			return nil, err
		}
		for _, n := range v.i1 {
			out = append(out, byte(n))
		}
		return out, nil
	case KindI2:
		out, err := appendHeader(out, ifcI2, len(v.i2)*2)
		if err != nil {
			return nil, err
		}
		for _, n := range v.i2 {
			out = appendUint16(out, uint16(n))
		}
		return out, nil
	case KindI4:
		out, err := appendHeader(out, ifcI4, len(v.i4)*4)
		if err != nil {
			return nil, err
		}
		for _, n := range v.i4 {
			out = appendUint32(out, uint32(n))
		}
		return out, nil
	case KindI8:
		out, err := appendHeader(out, ifcI8, len(v.i8)*8)
		if err != nil {
			return nil, err
		}
		for _, n := range v.i8 {
			out = appendUint64(out, uint64(n))
		}
		return out, nil
	case KindU1:
		out, err := appendHeader(out, ifcU1, len(v.u1))
		if err != nil {
			return nil, err
		}
		return append(out, v.u1...), nil
	case KindU2:
		out, err := appendHeader(out, ifcU2, len(v.u2)*2)
		if err != nil {
			return nil, err
		}
		for _, n := range v.u2 {
			out = appendUint16(out, n)
		}
		return out, nil
	case KindU4:
		out, err := appendHeader(out, ifcU4, len(v.u4)*4)
		if err != nil {
			return nil, err
		}
		for _, n := range v.u4 {
			out = appendUint32(out, n)
		}
		return out, nil
	case KindU8:
		out, err := appendHeader(out, ifcU8, len(v.u8)*8)
		if err != nil {
			return nil, err
		}
		for _, n := range v.u8 {
			out = appendUint64(out, n)
		}
		return out, nil
	case KindF4:
		out, err := appendHeader(out, ifcF4, len(v.f4)*4)
		if err != nil {
			return nil, err
		}
		for _, n := range v.f4 {
			out = appendUint32(out, math.Float32bits(n))
		}
		return out, nil
	case KindF8:
		out, err := appendHeader(out, ifcF8, len(v.f8)*8)
		if err != nil {
			return nil, err
		}
		for _, n := range v.f8 {
			out = appendUint64(out, math.Float64bits(n))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIFC, v.kind)
	}
}

// appendHeader writes the Item Header (format byte + minimal-width
// big-endian count) for an item whose IFC is ifc and whose count is
// either a list's element count or a scalar/array's byte count.
func appendHeader(out []byte, ifc byte, count int) ([]byte, error) {
	if count < 0 || count > maxBodyBytes {
		return nil, ErrSizeLimitExceeded
	}
	n := lengthByteCount(count)
	out = append(out, (ifc<<2)|byte(n))
	for i := n - 1; i >= 0; i-- {
		out = append(out, byte(count>>(8*i)))
	}
	return out, nil
}

// lengthByteCount returns the minimum N in {1,2,3} that can hold count.
func lengthByteCount(count int) int {
	switch {
	case count <= 0xFF:
		return 1
	case count <= 0xFFFF:
		return 2
	default:
		return 3
	}
}

func appendUint16(out []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(out, b[:]...)
}

func appendUint32(out []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(out, b[:]...)
}

func appendUint64(out []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(out, b[:]...)
}

// Decode parses b as exactly one self-delimiting SECS-II item.
//
// An empty b decodes to the None Value. If any bytes remain after the
// outermost item is consumed, Decode fails with ErrTrailingBytes; a
// mid-decode failure never leaks a partial tree (Decode returns the zero
// Value alongside every error).
func Decode(b []byte) (Value, error) {
	if len(b) == 0 {
		return None(), nil
	}
	v, consumed, err := decodeOne(b, 0)
	if err != nil {
		return Value{}, err
	}
	if consumed != len(b) {
		return Value{}, ErrTrailingBytes
	}
	return v, nil
}

// decodeOne decodes one item starting at b[pos], returning the value and
// the offset just past it.
func decodeOne(b []byte, pos int) (Value, int, error) {
	if pos >= len(b) {
		return Value{}, pos, ErrTruncated
	}
	headerByte := b[pos]
	ifc := headerByte >> 2
	n := int(headerByte & 0b11)
	if n == 0 {
		return Value{}, pos, ErrHeaderInvalid
	}
	pos++

	if pos+n > len(b) {
		return Value{}, pos, ErrTruncated
	}
	count := 0
	for i := 0; i < n; i++ {
		count = (count << 8) | int(b[pos+i])
	}
	pos += n

	kind, ok := kindFromIFC(ifc)
	if !ok {
		return Value{}, pos, ErrUnsupportedIFC
	}

	if kind == KindList {
		elements := make([]Value, 0, count)
		for i := 0; i < count; i++ {
			var (
				e   Value
				err error
			)
			e, pos, err = decodeOne(b, pos)
			if err != nil {
				return Value{}, pos, err
			}
			elements = append(elements, e)
		}
		return Value{kind: KindList, list: elements}, pos, nil
	}

	ibNumBytes := count
	return decodeScalar(b, pos, kind, ibNumBytes)
}

// decodeScalar decodes a non-list item's body: ibNumBytes bytes starting
// at pos, per spec §4.1 step 3.
func decodeScalar(b []byte, pos int, kind Kind, ibNumBytes int) (Value, int, error) {
	elemSize := kind.elementSize()

	switch kind {
	case KindWide:
		if ibNumBytes < 2 || ibNumBytes%2 != 0 {
			return Value{}, pos, ErrLengthInvalid
		}
	case KindI2, KindU2, KindI4, KindU4, KindF4, KindI8, KindU8, KindF8:
		if ibNumBytes%elemSize != 0 {
			return Value{}, pos, ErrLengthInvalid
		}
	}

	if pos+ibNumBytes > len(b) {
		return Value{}, pos, ErrTruncated
	}
	body := b[pos : pos+ibNumBytes]
	pos += ibNumBytes

	switch kind {
	case KindBinary:
		return Value{kind: KindBinary, binary: append([]byte{}, body...)}, pos, nil
	case KindBoolean:
		bools := make([]bool, len(body))
		for i, x := range body {
			bools[i] = x != 0
		}
		return Value{kind: KindBoolean, bools: bools}, pos, nil
	case KindASCII:
		return Value{kind: KindASCII, str: string(body)}, pos, nil
	case KindJIS8:
		return Value{kind: KindJIS8, str: string(body)}, pos, nil
	case KindWide:
		charCount := (ibNumBytes - 2) / 2
		prefixed := body[2:]
		chars := make([]uint16, charCount)
		for i := 0; i < charCount; i++ {
			chars[i] = binary.BigEndian.Uint16(prefixed[i*2 : i*2+2])
		}
		return Value{kind: KindWide, wide: chars}, pos, nil
	case KindI1:
		values := make([]int8, len(body))
		for i, x := range body {
			values[i] = int8(x)
		}
		return Value{kind: KindI1, i1: values}, pos, nil
	case KindU1:
		return Value{kind: KindU1, u1: append([]byte{}, body...)}, pos, nil
	case KindI2:
		values := make([]int16, ibNumBytes/2)
		for i := range values {
			values[i] = int16(binary.BigEndian.Uint16(body[i*2 : i*2+2]))
		}
		return Value{kind: KindI2, i2: values}, pos, nil
	case KindU2:
		values := make([]uint16, ibNumBytes/2)
		for i := range values {
			values[i] = binary.BigEndian.Uint16(body[i*2 : i*2+2])
		}
		return Value{kind: KindU2, u2: values}, pos, nil
	case KindI4:
		values := make([]int32, ibNumBytes/4)
		for i := range values {
			values[i] = int32(binary.BigEndian.Uint32(body[i*4 : i*4+4]))
		}
		return Value{kind: KindI4, i4: values}, pos, nil
	case KindU4:
		values := make([]uint32, ibNumBytes/4)
		for i := range values {
			values[i] = binary.BigEndian.Uint32(body[i*4 : i*4+4])
		}
		return Value{kind: KindU4, u4: values}, pos, nil
	case KindF4:
		values := make([]float32, ibNumBytes/4)
		for i := range values {
			values[i] = math.Float32frombits(binary.BigEndian.Uint32(body[i*4 : i*4+4]))
		}
		return Value{kind: KindF4, f4: values}, pos, nil
	case KindI8:
		values := make([]int64, ibNumBytes/8)
		for i := range values {
			values[i] = int64(binary.BigEndian.Uint64(body[i*8 : i*8+8]))
		}
		return Value{kind: KindI8, i8: values}, pos, nil
	case KindU8:
		values := make([]uint64, ibNumBytes/8)
		for i := range values {
			values[i] = binary.BigEndian.Uint64(body[i*8 : i*8+8])
		}
		return Value{kind: KindU8, u8: values}, pos, nil
	case KindF8:
		values := make([]float64, ibNumBytes/8)
		for i := range values {
			values[i] = math.Float64frombits(binary.BigEndian.Uint64(body[i*8 : i*8+8]))
		}
		return Value{kind: KindF8, f8: values}, pos, nil
	default:
		return Value{}, pos, ErrUnsupportedIFC
	}
}
