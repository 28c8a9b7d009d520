// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package record implements the engine's "tuple" type: an
// insertion-ordered mapping from field name to value.Value, with the
// merge, equality, and hashing semantics the operator layer depends on.
package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lukemarshall2222/netquery/pkg/value"
)

// Record is a value-typed, ordered mapping from field name to
// value.Value. The zero Record is not usable; construct with New.
type Record struct {
	order []string
	m     map[string]value.Value
}

// New returns an empty Record.
func New() Record {
	return Record{m: make(map[string]value.Value)}
}

// Of builds a Record from the given fields in the order supplied.
func Of(fields ...Field) Record {
	r := New()
	for _, f := range fields {
		r = r.Set(f.Name, f.Value)
	}
	return r
}

// Field is a name/value pair used by Of to build a Record literal.
type Field struct {
	Name  string
	Value value.Value
}

// F is shorthand for constructing a Field.
func F(name string, v value.Value) Field { return Field{Name: name, Value: v} }

// Get returns the value stored under key and whether it was present.
func (r Record) Get(key string) (value.Value, bool) {
	v, ok := r.m[key]
	return v, ok
}

// MustGet returns the value stored under key, or a MissingFieldError.
func (r Record) MustGet(key string) (value.Value, error) {
	v, ok := r.m[key]
	if !ok {
		return value.Value{}, &MissingFieldError{Key: key}
	}
	return v, nil
}

// GetFloat looks up key and asserts it is a Float.
func (r Record) GetFloat(key string) (float64, error) {
	v, err := r.MustGet(key)
	if err != nil {
		return 0, err
	}
	return v.AsFloat()
}

// GetInt looks up key and asserts it is an Int.
func (r Record) GetInt(key string) (int64, error) {
	v, err := r.MustGet(key)
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

// Set returns a new Record with key bound to v. If key was already
// present its position in iteration order is preserved; otherwise it is
// appended. Records are value-typed: the receiver is not mutated.
func (r Record) Set(key string, v value.Value) Record {
	_, existed := r.m[key]
	m2 := make(map[string]value.Value, len(r.m)+1)
	for k, val := range r.m {
		m2[k] = val
	}
	m2[key] = v

	if existed {
		return Record{order: r.order, m: m2}
	}
	order2 := make([]string, len(r.order), len(r.order)+1)
	copy(order2, r.order)
	order2 = append(order2, key)
	return Record{order: order2, m: m2}
}

// Keys returns the field names in stable insertion order.
func (r Record) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports the number of fields.
func (r Record) Len() int { return len(r.m) }

// Merge implements the left-biased union defined in spec §3: for every
// key present in r, r's value wins; keys present only in o are added.
// The result's iteration order is r's order followed by o's
// not-already-present keys in o's order.
func (r Record) Merge(o Record) Record {
	out := r
	for _, k := range o.order {
		if _, already := out.m[k]; already {
			continue
		}
		out = out.Set(k, o.m[k])
	}
	return out
}

// Restrict returns the sub-record containing only the listed keys.
// Keys absent from r are silently skipped (no error), matching
// filter_groups's documented behavior.
func (r Record) Restrict(keys ...string) Record {
	out := New()
	for _, k := range keys {
		if v, ok := r.m[k]; ok {
			out = out.Set(k, v)
		}
	}
	return out
}

// Drop returns a copy of r with the listed keys removed. Keys absent
// from r are silently skipped.
func (r Record) Drop(keys ...string) Record {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := New()
	for _, k := range r.order {
		if _, skip := drop[k]; skip {
			continue
		}
		out = out.Set(k, r.m[k])
	}
	return out
}

// Equal reports structural equality: same set of (name, value) pairs,
// independent of construction/iteration order.
func (r Record) Equal(o Record) bool {
	if len(r.m) != len(o.m) {
		return false
	}
	for k, v := range r.m {
		ov, ok := o.m[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// HashKey returns a canonical string encoding of the record's
// (name, value) pairs, sorted by field name so that construction order
// never affects the key. Two structurally equal records always produce
// the same HashKey, making Record safe to use as a Go map key via this
// string (Record itself is not comparable because it embeds a map).
func (r Record) HashKey() string {
	keys := make([]string, 0, len(r.m))
	for k := range r.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.m[k].HashKey())
		b.WriteByte(';')
	}
	return b.String()
}

// String renders the record as "key1" => value1, "key2" => value2, ...
// in insertion order, matching the dump sink's textual format.
func (r Record) String() string {
	parts := make([]string, 0, len(r.order))
	for _, k := range r.order {
		parts = append(parts, fmt.Sprintf("%q => %s", k, r.m[k].String()))
	}
	return strings.Join(parts, ", ")
}
