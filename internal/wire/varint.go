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

// Package wire implements the unsigned-LEB128 varint encoding used by
// binrec's wire format: string length prefixes, ListStr
// element lengths, and the byte-length prefix of a framed nested Record.
//
// binrec reuses protobuf's varint codec (google.golang.org/protobuf's
// protowire) rather than hand-rolling one: Protobuf's "base 128 varint"
// is byte-for-byte the same unsigned LEB128 encoding.
package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// AppendVarint appends v to buf using unsigned LEB128 and returns the
// extended slice.
func AppendVarint(buf []byte, v uint64) []byte {
	return protowire.AppendVarint(buf, v)
}

// SizeVarint returns the number of bytes AppendVarint would write for v,
// without writing anything. Used by Writer.WriteVarint to reserve room
// before appending.
func SizeVarint(v uint64) int {
	return protowire.SizeVarint(v)
}

// ConsumeVarint decodes a varint from the front of buf, returning the
// decoded value and the number of bytes consumed, or a negative count on
// failure (truncated input or a value wider than 64 bits). The caller is
// responsible for rejecting values that overflow 32 bits; protowire's own
// varints are specified over 64 bits, since it also backs 64-bit Protobuf
// fields.
func ConsumeVarint(buf []byte) (v uint64, n int) {
	return protowire.ConsumeVarint(buf)
}

// MaxVarint32 is the largest value representable as a 32-bit varint
// argument to this package's callers (string/list lengths, record byte
// lengths). Values at or below this bound always decode as a non-negative
// int32 count.
const MaxVarint32 = math.MaxInt32
