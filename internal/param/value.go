// Package param implements the canonical Parameter value used for dataset
// identity: a small tagged union, normalised at construction time so that two
// structurally-equal inputs always produce byte-identical hashes regardless of
// map insertion order or list-like element type.
package param

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTuple
	KindMap
	KindDatasetRef
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTuple:
		return "tuple"
	case KindMap:
		return "map"
	case KindDatasetRef:
		return "dataset_ref"
	default:
		return "unknown"
	}
}

// MapEntry is one key/value pair of a canonicalised Map value. Entries are
// always stored sorted by Key, which is what makes the canonical form
// independent of the original map's iteration order.
type MapEntry struct {
	Key   string
	Value Value
}

// Value is a normalised Parameter value: a primitive, an ordered Tuple, a
// key-sorted Map, or a reference to another dataset's hash. The zero Value is
// KindNull.
type Value struct {
	kind    Kind
	b       bool
	i       int64
	f       float64
	s       string
	tuple   []Value
	entries []MapEntry
	ref     [32]byte
}

// ErrUnnormalisable is returned by Normalise when the input cannot be turned
// into a canonical Value — an unsupported Go type, or a map with non-string
// keys.
var ErrUnnormalisable = errors.New("param: value is not normalisable")

func newFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: non-finite float %v", ErrUnnormalisable, f)
	}
	return Float(f), nil
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func DatasetRef(h [32]byte) Value { return Value{kind: KindDatasetRef, ref: h} }

// Tuple builds a canonical Tuple value from already-normalised elements.
func Tuple(elems ...Value) Value {
	t := make([]Value, len(elems))
	copy(t, elems)
	return Value{kind: KindTuple, tuple: t}
}

// Map builds a canonical Map value from already-normalised entries, sorting
// them by key. The keys of a Go map are already unique, so the returned
// error is always nil.
func Map(entries map[string]Value) (Value, error) {
	out := make([]MapEntry, 0, len(entries))
	for k, v := range entries {
		out = append(out, MapEntry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return Value{kind: KindMap, entries: out}, nil
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) Bool() bool { return v.b }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) String() string { return v.s }
func (v Value) Tuple() []Value { return v.tuple }
func (v Value) MapEntries() []MapEntry { return v.entries }
func (v Value) DatasetRefHash() [32]byte { return v.ref }

// Equal reports structural equality between v and other.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindDatasetRef:
		return v.ref == other.ref
	case KindTuple:
		if len(v.tuple) != len(other.tuple) {
			return false
		}
		for i := range v.tuple {
			if !v.tuple[i].Equal(other.tuple[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.entries) != len(other.entries) {
			return false
		}
		for i := range v.entries {
			if v.entries[i].Key != other.entries[i].Key {
				return false
			}
			if !v.entries[i].Value.Equal(other.entries[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Normalise converts an arbitrary Go value into a canonical Value: maps
// become key-sorted Map values, a [32]byte becomes a DatasetRef, any other
// slice/array becomes a Tuple, and
// primitives map onto their Kind directly. Unknown Go types and non-string
// map keys are rejected — the port deliberately tightens the source
// language's "anything hashable" looseness.
func Normalise(in interface{}) (Value, error) {
	if in == nil {
		return Null(), nil
	}
	switch x := in.(type) {
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float32:
		return newFloat(float64(x))
	case float64:
		return newFloat(x)
	case [32]byte:
		return DatasetRef(x), nil
	}

	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		elems := make([]Value, n)
		for i := 0; i < n; i++ {
			v, err := Normalise(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("param: tuple element %d: %w", i, err)
			}
			elems[i] = v
		}
		return Tuple(elems...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: map key type %s is not string", ErrUnnormalisable, rv.Type().Key())
		}
		entries := make([]MapEntry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := Normalise(iter.Value().Interface())
			if err != nil {
				return Value{}, fmt.Errorf("param: map key %q: %w", iter.Key().String(), err)
			}
			entries = append(entries, MapEntry{Key: iter.Key().String(), Value: v})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
		return Value{kind: KindMap, entries: entries}, nil
	}

	return Value{}, fmt.Errorf("%w: unsupported type %T", ErrUnnormalisable, in)
}

// NormaliseMap normalises every value of m, sorting keys, and is the
// entry point used by DatasetMetadata construction for its params field.
func NormaliseMap(m map[string]interface{}) (Value, error) {
	entries := make([]MapEntry, 0, len(m))
	for k, raw := range m {
		v, err := Normalise(raw)
		if err != nil {
			return Value{}, fmt.Errorf("param: key %q: %w", k, err)
		}
		entries = append(entries, MapEntry{Key: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return Value{kind: KindMap, entries: entries}, nil
}
