package item

// ASCII creates an A-format Value from s.
//
// Per spec §4.1, a string containing bytes outside printable 7-bit ASCII
// should be encoded as W instead; ASCII does not perform that promotion
// itself (callers that build values from untrusted text should check
// IsPrintableASCII first, or use Auto below).
func ASCII(s string) Value {
	return Value{kind: KindASCII, str: s}
}

// JIS8 creates a J-format (JIS-8) Value from s.
func JIS8(s string) Value {
	return Value{kind: KindJIS8, str: s}
}

// ASCIIString returns the string backing v, and ok=false if v is not
// KindASCII or KindJIS8.
func (v Value) ASCIIString() (s string, ok bool) {
	if v.kind != KindASCII && v.kind != KindJIS8 {
		return "", false
	}
	return v.str, true
}

// IsPrintableASCII reports whether every byte of s is in the printable
// 7-bit ASCII range, i.e. whether s is safe to encode as A rather than W.
func IsPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}

// Auto creates an ASCII Value if s is printable 7-bit ASCII, or a Wide
// Value (one UCS-2 code unit per byte of s) otherwise. This is the
// encoder-side promotion spec §4.1 describes ("Strings that contain bytes
// outside printable 7-bit ASCII are encoded as W instead of A").
func Auto(s string) Value {
	if IsPrintableASCII(s) {
		return ASCII(s)
	}
	chars := make([]uint16, len(s))
	for i := 0; i < len(s); i++ {
		chars[i] = uint16(s[i])
	}
	return Value{kind: KindWide, wide: chars}
}

// Wide creates a W-format Value from UCS-2 code units.
func Wide(chars ...uint16) Value {
	cp := make([]uint16, len(chars))
	copy(cp, chars)
	return Value{kind: KindWide, wide: cp}
}

// WideChars returns the UCS-2 code units backing v, and ok=false if v is
// not KindWide.
func (v Value) WideChars() (chars []uint16, ok bool) {
	if v.kind != KindWide {
		return nil, false
	}
	cp := make([]uint16, len(v.wide))
	copy(cp, v.wide)
	return cp, true
}
