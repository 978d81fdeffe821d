// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package binrec

import (
	"reflect"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Char is a 16-bit character, encoded on the wire identically to I16. It
// is a distinct Go type from int16/uint16 so the schema builder can tell a
// Char field apart from an ordinary 16-bit integer field and assign it the
// dedicated Char tag.
type Char uint16

// Enumer is implemented by sum-type-with-ordinal fields that should use the
// Enum tag. A field whose static type implements Enumer is encoded as a
// four-byte ordinal (Ordinal()), or -1 when the field is a nil pointer to
// an Enumer.
type Enumer interface {
	// Ordinal returns this value's wire ordinal. Implementations should
	// return a stable, non-negative integer; -1 is reserved by the codec to
	// mean "absent".
	Ordinal() int32
}

// tagged is implemented by Set and Array to distinguish them from a plain
// slice, which defaults to the ListGeneric tag (Array for a []byte, ListStr
// for a []*string with the liststr struct-tag option). Set and Array
// share ListGeneric's wire framing; only the tag/nibble byte differs.
type tagged interface {
	binrecTag() Tag
}

// Set is an insertion-ordered collection of distinct elements. It is encoded
// with the Set tag, using exactly ListGeneric's framing.
//
// Set is backed by a plain slice rather than a hash table: binrec's wire
// format only cares about iteration order and element tags, and keeping Set
// a thin slice wrapper means an element type need not be hashable beyond
// Go's own comparable constraint.
type Set[T comparable] []T

func (Set[T]) binrecTag() Tag { return TagSet }

// Add appends v to the set if it is not already present, preserving
// insertion order of the first occurrence.
func (s *Set[T]) Add(v T) {
	if !s.Contains(v) {
		*s = append(*s, v)
	}
}

// Contains reports whether v is a member of the set.
func (s Set[T]) Contains(v T) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Array is a fixed-element-type sequence, encoded with the Array tag using
// exactly ListGeneric's framing. Unlike Set, Array permits duplicates and
// preserves every element's position, exactly like a plain Go slice — the
// distinct type exists purely so schema construction can assign it the
// Array tag instead of ListGeneric.
type Array[T any] []T

func (Array[T]) binrecTag() Tag { return TagArray }

// KV is one key/value pair of a Map, boxed as interface values so the
// codec's reflection-driven dispatcher can classify and encode them without
// needing to recover Map's generic type parameters through reflection
// (which Go does not expose a safe API for on instantiated generic types).
type KV struct {
	Key   any
	Value any
}

// mapLike is implemented by Map[K, V] for any K, V. The codec uses it to
// read a record's Map-tagged fields without caring what K and V are.
type mapLike interface {
	Len() int
	Pairs() []KV
}

// mapSetter is mapLike's write counterpart, used when decoding: the
// decoder asks the destination Map for its declared key and value types
// (so entries with Record or collection tags decode into the right
// concrete Go type), then hands over each decoded pair as `any` for the
// Map to accept by dynamic type assertion.
type mapSetter interface {
	keyType() reflect.Type
	valueType() reflect.Type
	SetAny(key, value any)
}

// Map is an insertion-ordered key/value map, encoded with the Map tag.
// It wraps wk8/go-ordered-map so that, unlike a plain Go map, decoding a
// Map field reproduces the wire's entry order exactly.
//
// The zero Map is an empty map ready to use: Set allocates the backing
// ordered map on first insert, and Get, Len and Pairs treat it as empty.
type Map[K comparable, V any] struct {
	impl *orderedmap.OrderedMap[K, V]
}

// NewMap returns an empty, ready-to-use Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{impl: orderedmap.New[K, V]()}
}

func (m *Map[K, V]) binrecTag() Tag { return TagMap }

func (m *Map[K, V]) keyType() reflect.Type   { return reflect.TypeFor[K]() }
func (m *Map[K, V]) valueType() reflect.Type { return reflect.TypeFor[V]() }

func (m *Map[K, V]) ensure() *orderedmap.OrderedMap[K, V] {
	if m.impl == nil {
		m.impl = orderedmap.New[K, V]()
	}
	return m.impl
}

// Set inserts or updates the value for key, preserving the position of an
// existing key and appending a new one at the end.
func (m *Map[K, V]) Set(key K, value V) { m.ensure().Set(key, value) }

// Get returns the value stored for key, and whether it was present.
func (m *Map[K, V]) Get(key K) (V, bool) {
	if m.impl == nil {
		var zero V
		return zero, false
	}
	return m.impl.Get(key)
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	if m.impl == nil {
		return 0
	}
	return m.impl.Len()
}

// Pairs returns the map's entries in insertion order.
func (m *Map[K, V]) Pairs() []KV {
	if m.impl == nil {
		return nil
	}
	out := make([]KV, 0, m.impl.Len())
	for pair := m.impl.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, KV{Key: pair.Key, Value: pair.Value})
	}
	return out
}

// SetAny is Set with its arguments boxed as `any`, asserted back to K and
// V. The codec only calls it with values it has just decoded against this
// same Map's declared key/value types; a nil (a Null-tagged entry) lands
// as the zero value of K or V.
func (m *Map[K, V]) SetAny(key, value any) {
	k, _ := key.(K)
	v, _ := value.(V)
	m.ensure().Set(k, v)
}
