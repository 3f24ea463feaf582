package item

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders v as SML-like debug text, e.g. `<L [2] <A "OK"> <U2 [1] 5 > >`.
// This is rendering only, descended from the teacher library's
// ast.DataMessage/ListNode String() methods; no SML parser is implemented
// (spec.md Non-goals: "only SML-like debug rendering is needed").
func (v Value) String() string {
	var b strings.Builder
	v.render(&b)
	return b.String()
}

func (v Value) render(b *strings.Builder) {
	switch v.kind {
	case KindNone:
		b.WriteString("<>")
	case KindInvalid:
		b.WriteString("<INVALID>")
	case KindList, KindNameValueSet:
		fmt.Fprintf(b, "<L [%d]", len(v.list))
		for _, e := range v.list {
			b.WriteByte(' ')
			e.render(b)
		}
		b.WriteString(" >")
	case KindBinary:
		fmt.Fprintf(b, "<B [%d]", len(v.binary))
		for _, x := range v.binary {
			fmt.Fprintf(b, " 0x%02X", x)
		}
		b.WriteString(" >")
	case KindBoolean:
		fmt.Fprintf(b, "<BOOLEAN [%d]", len(v.bools))
		for _, x := range v.bools {
			if x {
				b.WriteString(" T")
			} else {
				b.WriteString(" F")
			}
		}
		b.WriteString(" >")
	case KindASCII:
		fmt.Fprintf(b, "<A %q>", v.str)
	case KindJIS8:
		fmt.Fprintf(b, "<J %q>", v.str)
	case KindWide:
		fmt.Fprintf(b, "<W [%d]", len(v.wide))
		for _, c := range v.wide {
			fmt.Fprintf(b, " %d", c)
		}
		b.WriteString(" >")
	case KindI1, KindI2, KindI4, KindI8, KindU1, KindU2, KindU4, KindU8, KindF4, KindF8:
		renderNumeric(b, v)
	default:
		b.WriteString("<?>")
	}
}

func renderNumeric(b *strings.Builder, v Value) {
	fmt.Fprintf(b, "<%s [%d]", v.kind, v.Len())
	for _, s := range numericStrings(v) {
		b.WriteByte(' ')
		b.WriteString(s)
	}
	b.WriteString(" >")
}

func numericStrings(v Value) []string {
	switch v.kind {
	case KindI1:
		out := make([]string, len(v.i1))
		for i, n := range v.i1 {
			out[i] = strconv.FormatInt(int64(n), 10)
		}
		return out
	case KindI2:
		out := make([]string, len(v.i2))
		for i, n := range v.i2 {
			out[i] = strconv.FormatInt(int64(n), 10)
		}
		return out
	case KindI4:
		out := make([]string, len(v.i4))
		for i, n := range v.i4 {
			out[i] = strconv.FormatInt(int64(n), 10)
		}
		return out
	case KindI8:
		out := make([]string, len(v.i8))
		for i, n := range v.i8 {
			out[i] = strconv.FormatInt(n, 10)
		}
		return out
	case KindU1:
		out := make([]string, len(v.u1))
		for i, n := range v.u1 {
			out[i] = strconv.FormatUint(uint64(n), 10)
		}
		return out
	case KindU2:
		out := make([]string, len(v.u2))
		for i, n := range v.u2 {
			out[i] = strconv.FormatUint(uint64(n), 10)
		}
		return out
	case KindU4:
		out := make([]string, len(v.u4))
		for i, n := range v.u4 {
			out[i] = strconv.FormatUint(uint64(n), 10)
		}
		return out
	case KindU8:
		out := make([]string, len(v.u8))
		for i, n := range v.u8 {
			out[i] = strconv.FormatUint(n, 10)
		}
		return out
	case KindF4:
		out := make([]string, len(v.f4))
		for i, n := range v.f4 {
			out[i] = strconv.FormatFloat(float64(n), 'g', -1, 32)
		}
		return out
	case KindF8:
		out := make([]string, len(v.f8))
		for i, n := range v.f8 {
			out[i] = strconv.FormatFloat(n, 'g', -1, 64)
		}
		return out
	default:
		return nil
	}
}
