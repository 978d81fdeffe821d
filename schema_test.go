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

	"github.com/stretchr/testify/require"

	"github.com/basilisklabs/binrec"
)

// Suit is an Enum field: it implements Enumer for writing and
// enumFromOrdinal (via SetOrdinal) for reading.
type Suit int32

const (
	SuitClubs Suit = iota
	SuitDiamonds
	SuitHearts
	SuitSpades
)

func (s Suit) Ordinal() int32      { return int32(s) }
func (s *Suit) SetOrdinal(o int32) { *s = Suit(o) }

type Card struct {
	Rank int32
	Suit Suit
}

func TestEnumFieldRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[Card]())

	v := &Card{Rank: 7, Suit: SuitHearts}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[Card](data)
	require.NoError(t, err)
	require.Equal(t, SuitHearts, got.Suit)
}

// unordinal is a type that looks like an Enumer but cannot be reconstructed
// from a decoded ordinal, since neither it nor its pointer implements
// SetOrdinal.
type unordinal int32

func (unordinal) Ordinal() int32 { return 0 }

type BadEnumRecord struct {
	Value unordinal
}

func TestRegisterRejectsUnreconstructibleEnum(t *testing.T) {
	t.Parallel()

	err := binrec.Register[BadEnumRecord]()
	require.Error(t, err)
	var schemaErr *binrec.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

// unsupportedField has a declared type (a channel) with no entry in
// classifyType's table.
type unsupportedField struct {
	C chan int
}

func TestRegisterRejectsUnsupportedFieldType(t *testing.T) {
	t.Parallel()

	err := binrec.Register[unsupportedField]()
	require.Error(t, err)
	require.ErrorIs(t, err, binrec.ErrUnsupportedType)
}

// TreeNode self-references through a pointer, exercising buildSchema's
// placeholder-before-recursing cycle guard.
type TreeNode struct {
	Value    int32
	Children []*TreeNode `binrec:"-"`
	Left     *TreeNode
}

func TestRegisterHandlesSelfReferencingType(t *testing.T) {
	t.Parallel()

	err := binrec.Register[TreeNode]()
	require.NoError(t, err)
}

func TestSelfReferencingRoundTripWithoutCycleInData(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[TreeNode]())

	v := &TreeNode{Value: 1, Left: &TreeNode{Value: 2}}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[TreeNode](data)
	require.NoError(t, err)
	require.Equal(t, int32(1), got.Value)
	require.NotNil(t, got.Left)
	require.Equal(t, int32(2), got.Left.Value)
}

type NamedFields struct {
	First  string `binrec:"first_name"`
	Second string `binrec:"-"`
	Third  string
}

func TestStructTagRenameAndSkip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[NamedFields]())

	v := &NamedFields{First: "a", Second: "ignored", Third: "c"}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	require.Equal(t, byte(2), data[1], "Second is skipped via binrec:\"-\"")

	got, err := binrec.Unmarshal[NamedFields](data)
	require.NoError(t, err)
	require.Equal(t, "a", got.First)
	require.Empty(t, got.Second)
	require.Equal(t, "c", got.Third)
}

type NullableStrList struct {
	Tags []*string `binrec:"tags,liststr"`
}

func TestListStrOptionRoundTrip(t *testing.T) {
	t.Parallel()
	require.NoError(t, binrec.Register[NullableStrList]())

	a, b := "x", "y"
	v := &NullableStrList{Tags: []*string{&a, nil, &b}}
	data, err := binrec.Marshal(v)
	require.NoError(t, err)

	got, err := binrec.Unmarshal[NullableStrList](data)
	require.NoError(t, err)
	require.Len(t, got.Tags, 3)
	require.Equal(t, "x", *got.Tags[0])
	require.Nil(t, got.Tags[1])
	require.Equal(t, "y", *got.Tags[2])
}

// Not parallel: ClearCache would race with the registrations made by the
// parallel tests in this package.
func TestFingerprintStableAcrossReregistration(t *testing.T) {
	binrec.ClearCache()
	require.NoError(t, binrec.Register[Card]())

	first, err := binrec.SchemaFingerprint[Card]()
	require.NoError(t, err)

	binrec.ClearCache()
	require.NoError(t, binrec.Register[Card]())

	second, err := binrec.SchemaFingerprint[Card]()
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	require.NoError(t, binrec.Register[Card]())
	require.NoError(t, binrec.Register[Card]())
}
