package conf

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindScalar is a string, number, boolean or null.
	KindScalar Kind = iota
	// KindMapping is a string-keyed mapping.
	KindMapping
	// KindSequence is an ordered list of values.
	KindSequence
	// KindOverride is a mapping that replaces the whole subtree it is merged
	// onto instead of being merged key by key.
	KindOverride
	// KindDelete removes the key it is assigned to when merged.
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	case KindOverride:
		return "override"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a node of a configuration tree. The zero Value is a null scalar.
//
// Values are treated as immutable: every operation in this package that
// returns a tree built from its inputs returns copies, never shared
// mappings or sequences.
type Value struct {
	kind   Kind
	scalar any
	m      *Mapping
	items  []Value
}

// Mapping is an insertion-ordered, string-keyed mapping of values.
type Mapping struct {
	keys   []string
	values map[string]Value
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{values: make(map[string]Value)}
}

// Len returns the number of keys.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set stores v under key. An existing key keeps its position.
func (m *Mapping) Set(key string, v Value) {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Delete removes key. Deleting an absent key is a no-op.
func (m *Mapping) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
}

// Clone returns a deep copy of m.
func (m *Mapping) Clone() *Mapping {
	out := NewMapping()
	if m == nil {
		return out
	}
	out.keys = slices.Clone(m.keys)
	for k, v := range m.values {
		out.values[k] = v.Clone()
	}
	return out
}

// Scalar returns a scalar value. Integer types are normalised to int and
// float32 to float64 so that values read back from different codecs compare
// equal. Unsigned values that do not fit in an int are kept as uint64.
func Scalar(x any) Value {
	switch n := x.(type) {
	case int8:
		x = int(n)
	case int16:
		x = int(n)
	case int32:
		x = int(n)
	case int64:
		x = int(n)
	case uint:
		x = fromUnsigned(uint64(n))
	case uint8:
		x = int(n)
	case uint16:
		x = int(n)
	case uint32:
		x = fromUnsigned(uint64(n))
	case uint64:
		x = fromUnsigned(n)
	case float32:
		x = float64(n)
	}
	return Value{kind: KindScalar, scalar: x}
}

func fromUnsigned(n uint64) any {
	if n > math.MaxInt {
		return n
	}
	return int(n)
}

// Null returns the null scalar.
func Null() Value { return Value{} }

// Map wraps m as a mapping value. A nil m is an empty mapping.
func Map(m *Mapping) Value {
	if m == nil {
		m = NewMapping()
	}
	return Value{kind: KindMapping, m: m}
}

// Seq returns a sequence value holding items.
func Seq(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, items: items}
}

// Override wraps m as an override marker.
func Override(m *Mapping) Value {
	if m == nil {
		m = NewMapping()
	}
	return Value{kind: KindOverride, m: m}
}

// Delete returns a deletion marker.
func Delete() Value { return Value{kind: KindDelete} }

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsMapping reports whether v is a mapping or an override marker.
func (v Value) IsMapping() bool {
	return v.kind == KindMapping || v.kind == KindOverride
}

// Mapping returns the mapping held by a mapping or override value, or nil.
func (v Value) Mapping() *Mapping {
	if !v.IsMapping() {
		return nil
	}
	return v.m
}

// Items returns the items of a sequence value, or nil.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.items
}

// Scalar returns the payload of a scalar value, or nil.
func (v Value) Scalar() any {
	if v.kind != KindScalar {
		return nil
	}
	return v.scalar
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindMapping, KindOverride:
		return Value{kind: v.kind, m: v.m.Clone()}
	case KindSequence:
		items := make([]Value, len(v.items))
		for i, item := range v.items {
			items[i] = item.Clone()
		}
		return Value{kind: KindSequence, items: items}
	default:
		return v
	}
}

// Interface converts v into plain Go values: map[string]any for mappings
// and override markers, []any for sequences, nil for deletion markers and
// the scalar payload otherwise. The result shares nothing with v.
func (v Value) Interface() any {
	switch v.kind {
	case KindMapping, KindOverride:
		out := make(map[string]any, v.m.Len())
		for _, k := range v.m.keys {
			out[k] = v.m.values[k].Interface()
		}
		return out
	case KindSequence:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case KindDelete:
		return nil
	default:
		return v.scalar
	}
}

// ValueOf converts a plain Go value into a Value. Maps with string keys
// become mappings with sorted keys, slices and arrays become sequences,
// pointers are followed and structs are converted through their YAML
// representation. Everything else is a scalar. The result shares no memory
// with x.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t.Clone()
	case *Mapping:
		return Map(t.Clone())
	case map[string]any:
		m := NewMapping()
		for _, k := range sortedKeys(t) {
			m.Set(k, ValueOf(t[k]))
		}
		return Map(m)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = ValueOf(item)
		}
		return Seq(items...)
	case []byte:
		return Scalar(string(t))
	case time.Time:
		return Scalar(t)
	}
	return valueOfReflect(reflect.ValueOf(x))
}

func valueOfReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Invalid:
		return Null()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		entries := make(map[string]reflect.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries[iter.Key().String()] = iter.Value()
		}
		m := NewMapping()
		for _, k := range sortedKeys(entries) {
			m.Set(k, ValueOf(entries[k].Interface()))
		}
		return Map(m)
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = ValueOf(rv.Index(i).Interface())
		}
		return Seq(items...)
	case reflect.Struct:
		var n yaml.Node
		if err := n.Encode(rv.Interface()); err == nil {
			if v, err := newDecoder().node(&n); err == nil {
				return v
			}
		}
	case reflect.Bool:
		return Scalar(rv.Bool())
	case reflect.String:
		return Scalar(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Scalar(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Scalar(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Scalar(rv.Float())
	}
	return Scalar(rv.Interface())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
