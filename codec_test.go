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

package binrec_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/basilisklabs/binrec"
)

// AllPrimitives is an eight-field record covering every fixed-width
// scalar tag.
type AllPrimitives struct {
	I8   int8
	I16  int16
	I32  int32
	I64  int64
	F32  float32
	F64  float64
	Bool bool
	Char binrec.Char
}

func TestAllPrimitivesRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[AllPrimitives]())

	v := &AllPrimitives{
		I8: 42, I16: 1000, I32: 123456, I64: 9876543210,
		F32: 3.14, F64: 2.718281828, Bool: true, Char: binrec.Char('Z'),
	}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	// Header: 2 (tag+count) + 4 packed nibble bytes + 2 wide tag bytes (I8
	// and Char have no nibble); payload: 30 bytes. Only the round trip is
	// asserted here.
	got, err := binrec.Unmarshal[AllPrimitives](data)
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestHeaderInvariant(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[AllPrimitives]())

	data, err := binrec.Marshal(&AllPrimitives{})
	require.NoError(t, err)

	n := 8
	headerSize := 2 + (n+1)/2
	require.GreaterOrEqual(t, len(data), headerSize)
	require.Equal(t, byte(8), data[1], "field count byte")
}

// IntList holds a single ListGeneric field of uniform I32s.
type IntList struct {
	Values []int32
}

func TestIntegerListRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[IntList]())

	v := &IntList{Values: []int32{100, 200, 300, 400, 500}}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[IntList](data)
	require.NoError(t, err)
	require.Equal(t, v.Values, got.Values)
}

// StringIntMap holds a single string-keyed map of I32s.
type StringIntMap struct {
	Counts *binrec.Map[string, int32]
}

func TestStringMapRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[StringIntMap]())

	m := binrec.NewMap[string, int32]()
	m.Set("one", 1)
	m.Set("two", 2)
	m.Set("three", 3)

	data, err := binrec.Marshal(&StringIntMap{Counts: m})
	require.NoError(t, err)

	got, err := binrec.Unmarshal[StringIntMap](data)
	require.NoError(t, err)
	require.Equal(t, 3, got.Counts.Len())

	// Insertion order of the reconstructed map must equal the wire order.
	pairs := got.Counts.Pairs()
	require.Equal(t, "one", pairs[0].Key)
	require.Equal(t, "two", pairs[1].Key)
	require.Equal(t, "three", pairs[2].Key)
	for i, want := range []int32{1, 2, 3} {
		require.Equal(t, want, pairs[i].Value)
	}
}

// Inner/Outer nest one record inside another.
type Inner struct {
	X int32
	Y int32
}

type Outer struct {
	ID    int32
	Inner Inner
}

func TestNestedRecordRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[Outer]())

	v := &Outer{ID: 42, Inner: Inner{X: 7, Y: 9}}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[Outer](data)
	require.NoError(t, err)
	require.Equal(t, int32(7), got.Inner.X)
	require.Equal(t, int32(9), got.Inner.Y)
}

// NullableString pairs a nullable field with a non-nullable one,
// exercising the Null-nibble override.
type NullableString struct {
	Name *string
	Age  int32
}

func TestNullFieldRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[NullableString]())

	v := &NullableString{Name: nil, Age: 30}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[NullableString](data)
	require.NoError(t, err)
	require.Nil(t, got.Name)
	require.Equal(t, int32(30), got.Age)
}

func TestNullFieldPresentRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[NullableString]())

	name := uuid.NewString()
	v := &NullableString{Name: &name, Age: 7}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[NullableString](data)
	require.NoError(t, err)
	require.NotNil(t, got.Name)
	require.Equal(t, name, *got.Name)
}

func TestStrictNullsRejectsNilInNonNullableField(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[NullableString]())

	_, err := binrec.Marshal(&NullableString{Name: nil, Age: 1}, binrec.WithStrictNulls())
	require.Error(t, err)
	var writeErr *binrec.WriteError
	require.ErrorAs(t, err, &writeErr)
	require.Equal(t, binrec.ErrBadValue, writeErr.Code)
}

// HeterogeneousList holds a ListGeneric field of `any`, mixing scalar
// tags.
type HeterogeneousList struct {
	Values []any
}

func TestHeterogeneousListRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[HeterogeneousList]())

	v := &HeterogeneousList{Values: []any{int32(1), "two", 3.0}}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[HeterogeneousList](data)
	require.NoError(t, err)
	require.Equal(t, v.Values, got.Values)
}

func TestFieldOrderStability(t *testing.T) {
	t.Parallel()

	type AB struct {
		A int32
		B int32
	}
	type BA struct {
		B int32
		A int32
	}
	require.NoError(t, binrec.Register[AB]())
	require.NoError(t, binrec.Register[BA]())

	ab, err := binrec.Marshal(&AB{A: 1, B: 2})
	require.NoError(t, err)
	ba, err := binrec.Marshal(&BA{B: 2, A: 1})
	require.NoError(t, err)

	require.NotEqual(t, ab, ba)
}

func TestDeterminism(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[IntList]())

	v := &IntList{Values: []int32{1, 2, 3}}
	a, err := binrec.Marshal(v)
	require.NoError(t, err)
	b, err := binrec.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestFieldCountMismatch(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[Inner]())

	data, err := binrec.Marshal(&Inner{X: 1, Y: 2})
	require.NoError(t, err)
	data[1] = 3 // Claim three fields instead of two.

	_, err = binrec.Unmarshal[Inner](data)
	require.Error(t, err)
	var formatErr *binrec.FormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, binrec.ErrFieldCountMismatch, formatErr.Code)
}

func TestTruncationSafety(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[AllPrimitives]())

	data, err := binrec.Marshal(&AllPrimitives{I8: 1, I16: 2, I32: 3, I64: 4})
	require.NoError(t, err)

	for n := 0; n < len(data); n++ {
		_, err := binrec.Unmarshal[AllPrimitives](data[:n])
		require.Error(t, err, "prefix of length %d should not decode", n)
	}
}

// Not parallel: ClearCache would race with the registrations made by the
// parallel tests above.
func TestUnregisteredTypeFails(t *testing.T) {
	binrec.ClearCache()

	type NeverRegistered struct{ X int32 }
	_, err := binrec.Marshal(&NeverRegistered{X: 1})
	require.ErrorIs(t, err, binrec.ErrUnregistered)

	_, err = binrec.Unmarshal[NeverRegistered]([]byte{})
	require.ErrorIs(t, err, binrec.ErrUnregistered)
}

// TestIntegerListWireLayout pins the exact bytes of a uniform list: record
// framing, then a four-byte count, a uniform flag, a single shared element
// tag, and five big-endian i32 payloads with no per-element tag bytes.
func TestIntegerListWireLayout(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[IntList]())

	data, err := binrec.Marshal(&IntList{Values: []int32{100, 200, 300, 400, 500}})
	require.NoError(t, err)

	want := []byte{
		8,    // Record tag.
		1,    // Field count.
		0x90, // ListGeneric nibble in the high half, zero padding in the low.
		0, 0, 0, 5, // Element count.
		1, // Uniform flag.
		2, // Shared element tag: I32.
	}
	for _, v := range []int32{100, 200, 300, 400, 500} {
		want = append(want, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	require.Equal(t, want, data)
}

// TestStringMapWireLayout pins the exact bytes of a uniform map, including the
// element-level string layout (two-byte big-endian length) that map keys
// use instead of the record-field varint layout.
func TestStringMapWireLayout(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[StringIntMap]())

	m := binrec.NewMap[string, int32]()
	m.Set("one", 1)
	m.Set("two", 2)
	m.Set("three", 3)
	data, err := binrec.Marshal(&StringIntMap{Counts: m})
	require.NoError(t, err)

	want := []byte{
		8,    // Record tag.
		1,    // Field count.
		0xB0, // Map nibble in the high half.
		0, 0, 0, 3, // Entry count.
		3, // Uniform flags: keys and values both uniform.
		1, // Shared key tag: Str.
		2, // Shared value tag: I32.
	}
	for _, e := range []struct {
		k string
		v int32
	}{{"one", 1}, {"two", 2}, {"three", 3}} {
		want = append(want, byte(len(e.k)>>8), byte(len(e.k)))
		want = append(want, e.k...)
		want = append(want, byte(e.v>>24), byte(e.v>>16), byte(e.v>>8), byte(e.v))
	}
	require.Equal(t, want, data)
}

// TestHeterogeneousListTagBytes checks the other half of the uniform
// compression property: a mixed-tag sequence carries one tag byte per
// element instead of a single shared one.
func TestHeterogeneousListTagBytes(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[HeterogeneousList]())

	data, err := binrec.Marshal(&HeterogeneousList{Values: []any{int32(1), "ab", 3.0}})
	require.NoError(t, err)

	want := []byte{
		8, 1, 0x90,
		0, 0, 0, 3, // Element count.
		0,             // Uniform flag: heterogeneous.
		2, 0, 0, 0, 1, // I32 tag + payload.
		1, 0, 2, 'a', 'b', // Str tag + two-byte length + payload.
		5, 64, 8, 0, 0, 0, 0, 0, 0, // F64 tag + IEEE-754 bits of 3.0.
	}
	require.Equal(t, want, data)
}

type StringList struct {
	Names []string
}

func TestStringListElementLayoutRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[StringList]())

	v := &StringList{Names: []string{"alpha", "", "gamma"}}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[StringList](data)
	require.NoError(t, err)
	require.Equal(t, v.Names, got.Names)
}

// Tagged is a record carrying Set and Array fields, which share
// ListGeneric's framing but keep their own tag bytes.
type Tagged struct {
	Seen binrec.Set[int32]
	Raw  binrec.Array[int64]
}

func TestSetAndArrayRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[Tagged]())

	var s binrec.Set[int32]
	s.Add(1)
	s.Add(2)
	s.Add(1) // Duplicate, must not grow the set.

	v := &Tagged{Seen: s, Raw: binrec.Array[int64]{10, 20, 30}}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[Tagged](data)
	require.NoError(t, err)
	require.Equal(t, binrec.Set[int32]{1, 2}, got.Seen)
	require.Equal(t, v.Raw, got.Raw)
}

// Point exercises map values whose tag is Record: the decoder must use the
// map's declared value type to reconstruct each nested payload.
type Point struct {
	X int32
	Y int32
}

type PointsByName struct {
	Points *binrec.Map[string, Point]
}

func TestMapWithRecordValuesRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[PointsByName]())

	m := binrec.NewMap[string, Point]()
	m.Set("origin", Point{})
	m.Set("unit", Point{X: 1, Y: 1})

	data, err := binrec.Marshal(&PointsByName{Points: m})
	require.NoError(t, err)

	got, err := binrec.Unmarshal[PointsByName](data)
	require.NoError(t, err)
	p, ok := got.Points.Get("unit")
	require.True(t, ok)
	require.Equal(t, Point{X: 1, Y: 1}, p)
}

type OneString struct {
	S string
}

func TestUnexpectedTopLevelTag(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[OneString]())

	data, err := binrec.Marshal(&OneString{S: "x"})
	require.NoError(t, err)
	data[0] = 9 // ListGeneric where a Record tag is required.

	_, err = binrec.Unmarshal[OneString](data)
	var formatErr *binrec.FormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, binrec.ErrUnexpectedTag, formatErr.Code)
}

func TestInvalidUTF8String(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[OneString]())

	// Record tag, one field, Str nibble, varint length 2, invalid bytes.
	data := []byte{8, 1, 0x10, 2, 0xFF, 0xFE}
	_, err := binrec.Unmarshal[OneString](data)
	var formatErr *binrec.FormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, binrec.ErrInvalidUTF8, formatErr.Code)
}

func TestVarintOverflow(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[OneString]())

	// A six-byte varint decoding to 2^35, which exceeds the 32-bit limit on
	// every length in the format.
	data := []byte{8, 1, 0x10, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, err := binrec.Unmarshal[OneString](data)
	var formatErr *binrec.FormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, binrec.ErrVarintOverflow, formatErr.Code)
}

func TestTruncatedStringPayload(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[OneString]())

	// Claims five bytes of string but carries one.
	data := []byte{8, 1, 0x10, 5, 'a'}
	_, err := binrec.Unmarshal[OneString](data)
	var formatErr *binrec.FormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, binrec.ErrTruncated, formatErr.Code)
}

type EmptyCollections struct {
	Items []int32
	Index *binrec.Map[string, int32]
}

func TestEmptyCollectionsRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[EmptyCollections]())

	v := &EmptyCollections{Items: []int32{}, Index: binrec.NewMap[string, int32]()}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	// Empty sequence: zero count plus a zero uniform flag, no type markers.
	want := []byte{
		8, 2, 0x9B, // Record tag, two fields, ListGeneric + Map nibbles.
		0, 0, 0, 0, 0, // Items: count 0, uniform flag 0.
		0, 0, 0, 0, 0, // Index: count 0, uniform flags 0.
	}
	require.Equal(t, want, data)

	got, err := binrec.Unmarshal[EmptyCollections](data)
	require.NoError(t, err)
	require.Empty(t, got.Items)
	require.Equal(t, 0, got.Index.Len())
}
