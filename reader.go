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
	"math"
	"unicode/utf8"
	"unsafe"

	"github.com/basilisklabs/binrec/internal/wire"
)

// Reader wraps a borrowed byte slice with a read cursor. It performs no
// allocation of its own, and offers a zero-copy path for decoding strings
// directly out of the source buffer (see ReadUTF8Borrowed).
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for reading. buf is borrowed, not copied; the caller
// must not mutate it while the Reader is in use.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Reset rewinds r to read buf from the start, reusing r's allocation.
func (r *Reader) Reset(buf []byte) {
	r.buf = buf
	r.pos = 0
}

// Position returns the current read offset.
func (r *Reader) Position() int { return r.pos }

// SetPosition moves the read cursor to an absolute offset.
func (r *Reader) SetPosition(p int) { r.pos = p }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

func (r *Reader) require(n int) error {
	if r.Len() < n {
		return newFormatError(ErrTruncated, r.pos, "need %d bytes, have %d", n, r.Len())
	}
	return nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (byte, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadBool reads a single byte and interprets it as a boolean (any nonzero
// byte is true, matching a defensive reader rather than rejecting anything
// but 0/1).
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	return v != 0, err
}

// ReadI16 reads two big-endian bytes.
func (r *Reader) ReadI16() (int16, error) {
	v, err := r.readU16()
	return int16(v), err
}

// ReadChar reads two big-endian bytes as a Char, identically to ReadI16.
func (r *Reader) ReadChar() (Char, error) {
	v, err := r.readU16()
	return Char(v), err
}

func (r *Reader) readU16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.pos])<<8 | uint16(r.buf[r.pos+1])
	r.pos += 2
	return v, nil
}

// ReadI32 reads four big-endian bytes.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.readU32()
	return int32(v), err
}

func (r *Reader) readU32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	b := r.buf[r.pos : r.pos+4]
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	r.pos += 4
	return v, nil
}

// ReadI64 reads eight big-endian bytes.
func (r *Reader) ReadI64() (int64, error) {
	v, err := r.readU64()
	return int64(v), err
}

func (r *Reader) readU64() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	b := r.buf[r.pos : r.pos+8]
	v := uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
	r.pos += 8
	return v, nil
}

// ReadF32 reads four big-endian bytes as an IEEE-754 float32.
func (r *Reader) ReadF32() (float32, error) {
	v, err := r.readU32()
	return math.Float32frombits(v), err
}

// ReadF64 reads eight big-endian bytes as an IEEE-754 float64.
func (r *Reader) ReadF64() (float64, error) {
	v, err := r.readU64()
	return math.Float64frombits(v), err
}

// ReadVarint reads an unsigned LEB128 varint. Values wider than 32 bits
// are rejected with ErrVarintOverflow: every varint in the format is a
// length or count, 1-5 bytes for a 32-bit value.
func (r *Reader) ReadVarint() (uint64, error) {
	v, n := wire.ConsumeVarint(r.buf[r.pos:])
	if n < 0 {
		if n == -1 {
			return 0, newFormatError(ErrTruncated, r.pos, "truncated varint")
		}
		return 0, newFormatError(ErrVarintOverflow, r.pos, "varint overflow")
	}
	if v > math.MaxUint32 {
		return 0, newFormatError(ErrVarintOverflow, r.pos, "varint value %d exceeds 32 bits", v)
	}
	r.pos += n
	return v, nil
}

// ReadExact copies exactly len(dst) bytes into dst.
func (r *Reader) ReadExact(dst []byte) error {
	if err := r.require(len(dst)); err != nil {
		return err
	}
	copy(dst, r.buf[r.pos:r.pos+len(dst)])
	r.pos += len(dst)
	return nil
}

// ReadBytesBorrowed returns a slice of length n pointing directly into the
// reader's underlying buffer (no copy), and the absolute offset at which it
// starts. The returned slice is only valid for as long as the caller holds
// the original input buffer alive.
func (r *Reader) ReadBytesBorrowed(n int) (buf []byte, offset int, err error) {
	if err := r.require(n); err != nil {
		return nil, 0, err
	}
	start := r.pos
	r.pos += n
	return r.buf[start:r.pos], start, nil
}

// ReadUTF8Borrowed decodes a UTF-8 string of length n directly out of the
// source buffer as a borrowed view, with no intermediate allocation. It
// validates the bytes are well-formed UTF-8, as Go's string invariants
// require.
func (r *Reader) ReadUTF8Borrowed(n int) (string, error) {
	b, start, err := r.ReadBytesBorrowed(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", newFormatError(ErrInvalidUTF8, start, "invalid UTF-8 in string of length %d", n)
	}
	if n == 0 {
		return "", nil
	}
	return unsafe.String(unsafe.SliceData(b), n), nil
}
