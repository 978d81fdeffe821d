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
	"unsafe"

	"github.com/basilisklabs/binrec/internal/wire"
)

// Writer is a growable, position-addressable byte buffer with primitive
// big-endian encoders. All IO against it is infallible, growth is by
// doubling, and it supports back-patching for length-prefixed nested
// payloads whose size isn't known until after they're written.
//
// The zero Writer is ready to use. Writers are pooled (see pool.go); a
// caller obtains one from the pool, writes into it, copies out the result
// with Bytes, and returns it.
type Writer struct {
	buf []byte
}

// Reset empties the writer, retaining its underlying array, and ensures it
// has at least capacity bytes of room without growing further.
func (w *Writer) Reset(capacity int) {
	if cap(w.buf) < capacity {
		w.buf = make([]byte, 0, capacity)
		return
	}
	w.buf = w.buf[:0]
}

// SetBuffer installs buf as the writer's backing array, discarding
// whatever was there, and resets the write cursor to the start. Writes
// that fit in cap(external) land directly in that array, with no internal
// reallocation. The codec's own Marshal path does not call it; it writes
// into pooled growable Writers.
func (w *Writer) SetBuffer(external []byte) {
	w.buf = external[:0]
}

// Position returns the number of bytes written so far.
func (w *Writer) Position() int { return len(w.buf) }

// Bytes returns a copy of the written bytes. Callers must not retain a
// Writer's internal buffer past the call that produced it;
// Bytes gives them an owned copy instead.
func (w *Writer) Bytes() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// UnsafeBytes returns the writer's internal buffer without copying. Valid
// only until the writer is next reset or reused; used internally by the
// nested record write, which copies the bytes onto the parent writer
// before its scratch writer is released.
func (w *Writer) UnsafeBytes() []byte { return w.buf }

func (w *Writer) ensureCapacity(n int) {
	if len(w.buf)+n <= cap(w.buf) {
		return
	}
	need := len(w.buf) + n
	newCap := max(cap(w.buf)*2, need, 64)
	grown := make([]byte, len(w.buf), newCap)
	copy(grown, w.buf)
	w.buf = grown
}

// WriteU8 writes a single byte.
func (w *Writer) WriteU8(v uint8) {
	w.ensureCapacity(1)
	w.buf = append(w.buf, v)
}

// WriteBool writes a single byte, 0 or 1.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

// WriteI16 writes v as two big-endian bytes.
func (w *Writer) WriteI16(v int16) { w.writeU16(uint16(v)) }

// WriteChar writes v as two big-endian bytes, identically to WriteI16:
// Char is I16 on the wire.
func (w *Writer) WriteChar(v Char) { w.writeU16(uint16(v)) }

func (w *Writer) writeU16(v uint16) {
	w.ensureCapacity(2)
	n := len(w.buf)
	w.buf = w.buf[:n+2]
	w.buf[n] = byte(v >> 8)
	w.buf[n+1] = byte(v)
}

// WriteI32 writes v as four big-endian bytes.
func (w *Writer) WriteI32(v int32) { w.writeU32(uint32(v)) }

func (w *Writer) writeU32(v uint32) {
	w.ensureCapacity(4)
	n := len(w.buf)
	w.buf = w.buf[:n+4]
	w.buf[n] = byte(v >> 24)
	w.buf[n+1] = byte(v >> 16)
	w.buf[n+2] = byte(v >> 8)
	w.buf[n+3] = byte(v)
}

// WriteI64 writes v as eight big-endian bytes.
func (w *Writer) WriteI64(v int64) { w.writeU64(uint64(v)) }

func (w *Writer) writeU64(v uint64) {
	w.ensureCapacity(8)
	n := len(w.buf)
	w.buf = w.buf[:n+8]
	w.buf[n] = byte(v >> 56)
	w.buf[n+1] = byte(v >> 48)
	w.buf[n+2] = byte(v >> 40)
	w.buf[n+3] = byte(v >> 32)
	w.buf[n+4] = byte(v >> 24)
	w.buf[n+5] = byte(v >> 16)
	w.buf[n+6] = byte(v >> 8)
	w.buf[n+7] = byte(v)
}

// WriteF32 writes v's IEEE-754 bit pattern as four big-endian bytes.
func (w *Writer) WriteF32(v float32) { w.writeU32(math.Float32bits(v)) }

// WriteF64 writes v's IEEE-754 bit pattern as eight big-endian bytes.
func (w *Writer) WriteF64(v float64) { w.writeU64(math.Float64bits(v)) }

// WriteVarint writes v as unsigned LEB128.
func (w *Writer) WriteVarint(v uint64) {
	w.ensureCapacity(wire.SizeVarint(v))
	w.buf = wire.AppendVarint(w.buf, v)
}

// WriteBytes copies src onto the end of the buffer.
func (w *Writer) WriteBytes(src []byte) {
	w.ensureCapacity(len(src))
	w.buf = append(w.buf, src...)
}

// WriteUTF8Direct encodes s as UTF-8 directly onto the buffer without an
// intermediate allocation: Go strings are already UTF-8 bytes under the
// hood, so this is just an append of s's bytes via the unsafe, read-only
// string->[]byte view the standard library itself uses in strings.Builder.
func (w *Writer) WriteUTF8Direct(s string) {
	if len(s) == 0 {
		return
	}
	w.ensureCapacity(len(s))
	n := len(w.buf)
	w.buf = w.buf[:n+len(s)]
	copy(w.buf[n:], unsafe.Slice(unsafe.StringData(s), len(s)))
}

// SetI32At back-patches a four-byte big-endian value at pos, which must
// have been previously written to (e.g. as a placeholder), for
// length-prefixed payloads whose size is unknown until after they're
// written. The codec's nested Record framing does not use it: it writes a
// varint length and copies the nested bytes from a scratch Writer.
func (w *Writer) SetI32At(pos int, v int32) {
	u := uint32(v)
	w.buf[pos] = byte(u >> 24)
	w.buf[pos+1] = byte(u >> 16)
	w.buf[pos+2] = byte(u >> 8)
	w.buf[pos+3] = byte(u)
}

// SetI16At back-patches a two-byte big-endian value at pos.
func (w *Writer) SetI16At(pos int, v int16) {
	u := uint16(v)
	w.buf[pos] = byte(u >> 8)
	w.buf[pos+1] = byte(u)
}
