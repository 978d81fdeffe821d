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

import "fmt"

// Tag identifies the wire shape of a value. Every serializable value
// belongs to exactly one Tag. The numeric values are fixed so that the
// byte-exact encoding in encode.go/decode.go is stable across builds of
// this package.
type Tag byte

const (
	TagNull         Tag = 0
	TagStr          Tag = 1
	TagI32          Tag = 2
	TagI64          Tag = 3
	TagBool         Tag = 4
	TagF64          Tag = 5
	TagF32          Tag = 6
	TagI16          Tag = 7
	TagRecordUnpack Tag = 8 // Record tag byte used at the top level and for framed nested payloads.
	TagListGeneric  Tag = 9
	TagRecordPacked Tag = 10 // Reserved nibble value for Record; never appears as a standalone byte tag on its own.
	TagListStr      Tag = 11
	TagMap          Tag = 12
	TagSet          Tag = 13
	TagArray        Tag = 14
	TagI8           Tag = 15
	TagChar         Tag = 16
	TagEnum         Tag = 17

	// tagRecord is the byte tag written for the top-level Record wrapper and
	// for every framed nested Record payload. It is distinct from the
	// nibble encoding of a Record-typed field (TagRecordPacked); tags
	// outside the nibble subset never appear as nibbles.
	tagRecord = TagRecordUnpack
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "Null"
	case TagStr:
		return "Str"
	case TagI32:
		return "I32"
	case TagI64:
		return "I64"
	case TagBool:
		return "Bool"
	case TagF64:
		return "F64"
	case TagF32:
		return "F32"
	case TagI16:
		return "I16"
	case tagRecord:
		return "Record"
	case TagListGeneric:
		return "ListGeneric"
	case TagListStr:
		return "ListStr"
	case TagMap:
		return "Map"
	case TagSet:
		return "Set"
	case TagArray:
		return "Array"
	case TagI8:
		return "I8"
	case TagChar:
		return "Char"
	case TagEnum:
		return "Enum"
	default:
		return fmt.Sprintf("Tag(%d)", byte(t))
	}
}

// nibble is the 12-value subset of Tag that is packed two-per-byte in a
// record's header. Tags outside this subset (TagSet, TagArray, TagI8,
// TagChar, TagEnum) pack as the nibWide sentinel; the dispatcher then
// reads (on decode) or writes (on encode) one extra byte per wide field,
// holding the real Tag, immediately after the packed nibble header (see
// encode.go/decode.go's wide-tag extension bytes). A record whose fields
// all sit in the nibble subset therefore has exactly 2 + ceil(N/2) header
// bytes before the first field body; each wide-tagged field adds one more.
type nibble byte

const (
	nibNull        nibble = 0
	nibStr         nibble = 1
	nibI32         nibble = 2
	nibI64         nibble = 3
	nibBool        nibble = 4
	nibF64         nibble = 5
	nibF32         nibble = 6
	nibI16         nibble = 7
	nibListStr     nibble = 8
	nibListGeneric nibble = 9
	nibRecord      nibble = 10
	nibMap         nibble = 11

	nibWide nibble = 0xF // Sentinel: "see the field's wide byte tag instead."
)

// tagToNibble maps a Tag to its packed-header nibble, or (0, false) if the
// tag has no nibble representation (it must be carried as a wide byte tag).
func tagToNibble(t Tag) (nibble, bool) {
	switch t {
	case TagNull:
		return nibNull, true
	case TagStr:
		return nibStr, true
	case TagI32:
		return nibI32, true
	case TagI64:
		return nibI64, true
	case TagBool:
		return nibBool, true
	case TagF64:
		return nibF64, true
	case TagF32:
		return nibF32, true
	case TagI16:
		return nibI16, true
	case TagListStr:
		return nibListStr, true
	case TagListGeneric:
		return nibListGeneric, true
	case tagRecord:
		return nibRecord, true
	case TagMap:
		return nibMap, true
	default:
		return 0, false
	}
}

// nibbleToTag is the inverse of tagToNibble, used by the reader dispatcher
// to expand a record's packed header back into per-field tags.
func nibbleToTag(n nibble) Tag {
	switch n {
	case nibNull:
		return TagNull
	case nibStr:
		return TagStr
	case nibI32:
		return TagI32
	case nibI64:
		return TagI64
	case nibBool:
		return TagBool
	case nibF64:
		return TagF64
	case nibF32:
		return TagF32
	case nibI16:
		return TagI16
	case nibListStr:
		return TagListStr
	case nibListGeneric:
		return TagListGeneric
	case nibRecord:
		return tagRecord
	case nibMap:
		return TagMap
	default:
		return TagNull
	}
}

// fixedWidth returns the number of payload bytes a fixed-width primitive
// tag occupies, or (0, false) for tags whose payload is variable length or
// structural (Str, collections, Record, Null).
func fixedWidth(t Tag) (int, bool) {
	switch t {
	case TagNull:
		return 0, true
	case TagBool, TagI8:
		return 1, true
	case TagI16, TagChar:
		return 2, true
	case TagI32, TagF32, TagEnum:
		return 4, true
	case TagI64, TagF64:
		return 8, true
	default:
		return 0, false
	}
}
