package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Testing strategy: golden wire vectors from spec §8, round-trip
// properties for every variant, and the enumerated failure modes.

func TestEncode_GoldenVectors(t *testing.T) {
	tests := []struct {
		description string
		value       Value
		expected    []byte
	}{
		{
			description: "U4 scalar",
			value:       U4(0x01020304),
			expected:    []byte{0xB1, 0x04, 0x01, 0x02, 0x03, 0x04},
		},
		{
			description: "list of ASCII and U2",
			value:       List(ASCII("OK"), U2(5)),
			expected:    []byte{0x01, 0x02, 0x41, 0x02, 0x4F, 0x4B, 0xA9, 0x02, 0x00, 0x05},
		},
		{
			description: "wide string",
			value:       Wide(uint16('A')),
			expected:    []byte{0x49, 0x04, 0x00, 0x01, 0x00, 0x41},
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got, err := Encode(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecode_GoldenVectors(t *testing.T) {
	b := []byte{0xB1, 0x04, 0x01, 0x02, 0x03, 0x04}
	v, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, KindU4, v.Kind())
	u4s, ok := v.U4s()
	require.True(t, ok)
	assert.Equal(t, []uint32{0x01020304}, u4s)
}

func TestDecode_TruncatedList(t *testing.T) {
	// List header declares 3 elements, but only 2 complete U1 sub-items follow.
	b := []byte{
		0x01, 0x03, // L[3]
		0xA5, 0x01, 0x00, // U1 0
		0xA5, 0x01, 0x01, // U1 1
	}
	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecode_HeaderInvalid(t *testing.T) {
	// N=0 in the low 2 bits of the item header byte.
	b := []byte{0xB0}
	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrHeaderInvalid)
}

func TestDecode_TrailingBytes(t *testing.T) {
	b := []byte{0xA5, 0x01, 0x00, 0xFF} // U1[1]{0} followed by a stray byte
	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrTrailingBytes)
}

func TestDecode_LengthInvalidForWide(t *testing.T) {
	// W header declaring an odd byte count.
	b := []byte{0x49, 0x03, 0x00, 0x01, 0x41}
	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrLengthInvalid)
}

func TestDecode_EmptyIsNone(t *testing.T) {
	v, err := Decode([]byte{})
	require.NoError(t, err)
	assert.True(t, v.IsNone())
}

func TestRoundTrip_AllVariants(t *testing.T) {
	nvs, err := NewNameValueSet(
		NameValue{Name: "A", Value: ASCII("x")},
		NameValue{Name: "B", Value: None()},
	)
	require.NoError(t, err)

	values := []Value{
		Bool(true),
		BoolArray(true, false, true),
		ASCII("hello"),
		JIS8("hello"),
		Wide(1, 2, 3),
		Binary(1, 2, 3),
		I1(-1, 0, 1),
		I2(-1000, 1000),
		I4(-100000, 100000),
		I8(-1 << 40, 1 << 40),
		U1(1, 2, 3),
		U2(1000, 2000),
		U4(1 << 20),
		U8(1 << 40),
		F4(1.5, -2.5),
		F8(3.25),
		List(U1(1), ASCII("x"), List(Bool(false))),
		nvs,
	}

	for _, v := range values {
		t.Run(v.Kind().String(), func(t *testing.T) {
			encoded, err := Encode(v)
			require.NoError(t, err)
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			reencoded, err := Encode(decoded)
			require.NoError(t, err)
			assert.Equal(t, encoded, reencoded)
		})
	}
}

func TestEncode_RejectsInvalid(t *testing.T) {
	_, err := Encode(Invalid())
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestEncode_RejectsNoneAsListElement(t *testing.T) {
	_, err := Encode(List(None()))
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestNewNameValueSet_RejectsDuplicateNames(t *testing.T) {
	_, err := NewNameValueSet(
		NameValue{Name: "dup", Value: ASCII("1")},
		NameValue{Name: "dup", Value: ASCII("2")},
	)
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestNewNameValueSet_RejectsEmptyName(t *testing.T) {
	_, err := NewNameValueSet(NameValue{Name: "", Value: ASCII("1")})
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestAuto_PromotesNonASCIIToWide(t *testing.T) {
	v := Auto(string([]byte{0x80, 0x41}))
	assert.Equal(t, KindWide, v.Kind())
}

func TestList_IsImmutableAgainstCallerMutation(t *testing.T) {
	elems := []Value{ASCII("a"), ASCII("b")}
	v := List(elems...)
	elems[0] = ASCII("mutated")
	got, _ := v.Elements()
	s, _ := got[0].ASCIIString()
	assert.Equal(t, "a", s)
}
