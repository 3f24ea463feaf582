package item

// Bool creates a single-element boolean Value.
func Bool(v bool) Value {
	return Value{kind: KindBoolean, bools: []bool{v}}
}

// BoolArray creates a boolean array Value from a copy of values.
func BoolArray(values ...bool) Value {
	cp := make([]bool, len(values))
	copy(cp, values)
	return Value{kind: KindBoolean, bools: cp}
}

// Bools returns the boolean array backing v, and ok=false if v is not
// KindBoolean.
func (v Value) Bools() (values []bool, ok bool) {
	if v.kind != KindBoolean {
		return nil, false
	}
	cp := make([]bool, len(v.bools))
	copy(cp, v.bools)
	return cp, true
}
