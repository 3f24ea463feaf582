package item

import "fmt"

// NewNameValueSet creates a NameValueSet Value: an ordered list of
// (name, value) pairs, conventionally wire-encoded as a list of 1- or
// 2-element sub-lists (spec §3, §4.1). Names must be non-empty and
// unique; NewNameValueSet returns an error otherwise instead of panicking
// per the taxonomy in errors.go, since this is a caller-input validation
// boundary rather than an internal invariant.
func NewNameValueSet(entries ...NameValue) (Value, error) {
	seen := make(map[string]struct{}, len(entries))
	sub := make([]Value, len(entries))
	nvs := make([]NameValue, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return Value{}, fmt.Errorf("%w: name/value-set entry %d has empty name", ErrNotSerializable, i)
		}
		if _, dup := seen[e.Name]; dup {
			return Value{}, fmt.Errorf("%w: duplicate name/value-set name %q", ErrNotSerializable, e.Name)
		}
		seen[e.Name] = struct{}{}
		nvs[i] = e
		if e.Value.IsNone() {
			sub[i] = List(Auto(e.Name))
		} else {
			sub[i] = List(Auto(e.Name), e.Value)
		}
	}
	return Value{kind: KindNameValueSet, list: sub, nvs: nvs}, nil
}

// NameValues returns the (name, value) pairs backing v, and ok=false if v
// is not KindNameValueSet.
func (v Value) NameValues() (entries []NameValue, ok bool) {
	if v.kind != KindNameValueSet {
		return nil, false
	}
	cp := make([]NameValue, len(v.nvs))
	copy(cp, v.nvs)
	return cp, true
}
