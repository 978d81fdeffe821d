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
	"fmt"
	"math"
	"reflect"

	"github.com/basilisklabs/binrec/internal/dbg"
	"github.com/basilisklabs/binrec/internal/wire"
)

// marshalState threads per-call options through the dispatcher's recursive
// descent into nested records and collections.
type marshalState struct {
	opts marshalOptions
}

// encodeRecord writes one record's wire representation into w: the record
// tag byte, field count, packed nibble header (with wide-tag extension
// bytes for fields whose tag has no nibble), and then each present field's
// payload in declaration order. The dispatch is a schema built once from
// reflection, interpreted by a tight loop with no further runtime type
// switching on the record's Go type itself.
func encodeRecord(w *Writer, s *Schema, rv reflect.Value, st *marshalState) error {
	if dbg.Enabled {
		dbg.Assert(len(s.fields) <= 255, "schema for %s has %d fields, limit is 255", s.typ, len(s.fields))
	}
	w.WriteU8(byte(tagRecord))
	w.WriteU8(byte(len(s.fields)))

	tags := make([]Tag, len(s.fields))
	for i := range s.fields {
		fd := &s.fields[i]
		fv := rv.Field(fd.structIndex)
		tg, err := effectiveFieldTag(fd, fv, st)
		if err != nil {
			return err
		}
		tags[i] = tg
	}
	writeNibbleHeader(w, tags)

	for i := range s.fields {
		fd := &s.fields[i]
		fv := rv.Field(fd.structIndex)

		if fd.tag == TagEnum {
			if err := writeEnumField(w, fv); err != nil {
				return newBadValue(fd.name, "%v", err)
			}
			continue
		}
		if tags[i] == TagNull {
			continue
		}
		if err := writePayload(w, tags[i], fv, fd.name, false, st); err != nil {
			return err
		}
	}
	return nil
}

// effectiveFieldTag resolves the tag a field will actually be written
// with: its declared tag, unless the field's current value is nil, in
// which case the field is downgraded to Null — or rejected, when the
// caller has disabled implicit nulling via WithStrictNulls.
func effectiveFieldTag(fd *fieldDescriptor, fv reflect.Value, st *marshalState) (Tag, error) {
	if fd.tag == TagEnum {
		// Enum's absence is carried inside its own payload (a -1 ordinal),
		// not via a Null nibble override; see writeEnumField.
		return TagEnum, nil
	}
	if isNilableKind(fv.Kind()) && fv.IsNil() {
		if st.opts.strictNulls {
			return 0, newBadValue(fd.name, "value is nil and WithStrictNulls is set")
		}
		return TagNull, nil
	}
	return fd.tag, nil
}

func isNilableKind(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	default:
		return false
	}
}

// writeNibbleHeader packs tags two-per-byte using the 12-value nibble
// subset, falling back to nibWide plus a following wide-tag byte for the
// tags outside that subset (TagI8, TagChar, TagEnum, TagSet, TagArray).
func writeNibbleHeader(w *Writer, tags []Tag) {
	nibbles := make([]nibble, len(tags))
	for i, t := range tags {
		if n, ok := tagToNibble(t); ok {
			nibbles[i] = n
		} else {
			nibbles[i] = nibWide
		}
	}
	for i := 0; i < len(nibbles); i += 2 {
		hi := nibbles[i]
		var lo nibble
		if i+1 < len(nibbles) {
			lo = nibbles[i+1]
		}
		w.WriteU8(byte(hi)<<4 | byte(lo))
	}
	for i, n := range nibbles {
		if n == nibWide {
			w.WriteU8(byte(tags[i]))
		}
	}
}

// asInt64 widens any Go integer kind (signed or unsigned) to int64 for the
// fixed-width integer writers, which all take a signed argument regardless
// of whether the field's declared Go type was signed.
func asInt64(rv reflect.Value) int64 {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	default:
		return 0
	}
}

// writePayload writes tag's payload for rv, dispatching on tag alone. rv
// may still be wrapped in pointers/interfaces (from a field lookup or from
// unboxing a collection element); writePayload unwraps them itself, except
// for TagEnum, whose Ordinal method may be defined on the pointer type.
//
// elem distinguishes the two Str layouts: a record field's string carries
// a varint length, while a collection element or map key/value carries a
// two-byte big-endian length. The two forms must never be mixed.
func writePayload(w *Writer, tag Tag, rv reflect.Value, name string, elem bool, st *marshalState) error {
	if tag == TagEnum {
		return writeEnumPayload(w, rv)
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch tag {
	case TagNull:
		return nil
	case TagBool:
		w.WriteBool(rv.Bool())
		return nil
	case TagI8:
		w.WriteU8(byte(asInt64(rv)))
		return nil
	case TagI16:
		w.WriteI16(int16(asInt64(rv)))
		return nil
	case TagChar:
		w.WriteChar(Char(asInt64(rv)))
		return nil
	case TagI32:
		w.WriteI32(int32(asInt64(rv)))
		return nil
	case TagI64:
		w.WriteI64(asInt64(rv))
		return nil
	case TagF32:
		w.WriteF32(float32(rv.Float()))
		return nil
	case TagF64:
		w.WriteF64(rv.Float())
		return nil
	case TagStr:
		if elem {
			return writeStringElem(w, rv.String(), name)
		}
		return writeString(w, rv.String(), name)
	case tagRecord:
		return writeNestedRecord(w, rv, st)
	case TagListGeneric, TagSet, TagArray:
		return writeSequence(w, rv, name, st)
	case TagListStr:
		return writeListStr(w, rv, name)
	case TagMap:
		return writeMap(w, rv, name, st)
	default:
		return newBadValue(name, "unsupported tag %s", tag)
	}
}

func writeString(w *Writer, s string, name string) error {
	if len(s) > wire.MaxVarint32 {
		return &WriteError{Code: ErrStringTooLong, Field: name,
			msg: fmt.Sprintf("string of %d bytes exceeds the %d-byte limit", len(s), wire.MaxVarint32)}
	}
	w.WriteVarint(uint64(len(s)))
	w.WriteUTF8Direct(s)
	return nil
}

// writeStringElem writes the element-level Str layout: a two-byte
// big-endian length (0..65535) followed by the UTF-8 bytes. Used for
// ListGeneric/Set/Array elements and Map keys/values only; record fields
// use writeString's varint layout instead.
func writeStringElem(w *Writer, s string, name string) error {
	if len(s) > math.MaxUint16 {
		return &WriteError{Code: ErrStringTooLong, Field: name,
			msg: fmt.Sprintf("collection element string of %d bytes exceeds the %d-byte limit", len(s), math.MaxUint16)}
	}
	w.WriteI16(int16(uint16(len(s))))
	w.WriteUTF8Direct(s)
	return nil
}

// writeEnumField writes a record's Enum field, including its field-level
// absence sentinel (-1) for a nil pointer-to-Enumer.
func writeEnumField(w *Writer, fv reflect.Value) error {
	if fv.Kind() == reflect.Pointer && fv.IsNil() {
		w.WriteI32(-1)
		return nil
	}
	return writeEnumPayload(w, fv)
}

// writeEnumPayload writes a known-non-absent Enum value's ordinal.
func writeEnumPayload(w *Writer, rv reflect.Value) error {
	if en, ok := rv.Interface().(Enumer); ok {
		w.WriteI32(en.Ordinal())
		return nil
	}
	if rv.CanAddr() {
		if en, ok := rv.Addr().Interface().(Enumer); ok {
			w.WriteI32(en.Ordinal())
			return nil
		}
	}
	return fmt.Errorf("binrec: value of type %s does not implement Enumer", rv.Type())
}

// writeSequence writes a ListGeneric/Set/Array field: a four-byte element
// count, a one-byte uniform flag, then either a single shared tag (the
// uniform-run case) or one tag byte per element, each followed by that
// element's payload.
func writeSequence(w *Writer, rv reflect.Value, name string, st *marshalState) error {
	n := rv.Len()
	w.WriteI32(int32(n))
	if n == 0 {
		w.WriteBool(false)
		return nil
	}

	tags := make([]Tag, n)
	for i := range n {
		tg, err := classifyValue(rv.Index(i))
		if err != nil {
			return newBadValue(name, "element %d: %v", i, err)
		}
		tags[i] = tg
	}
	uniform := allSameTag(tags)
	w.WriteBool(uniform)
	if uniform {
		w.WriteU8(byte(tags[0]))
	}
	for i := range n {
		if !uniform {
			w.WriteU8(byte(tags[i]))
		}
		if err := writePayload(w, tags[i], rv.Index(i), fmt.Sprintf("%s[%d]", name, i), true, st); err != nil {
			return err
		}
	}
	return nil
}

// writeListStr writes a []*string field using the wire format's dedicated
// ListStr framing: a count, then one varint length per element followed by
// that many raw UTF-8 bytes. A zero length means null; both a nil pointer
// and a pointer to "" write zero, so empty strings collapse to null on the
// way back.
func writeListStr(w *Writer, rv reflect.Value, name string) error {
	n := rv.Len()
	w.WriteVarint(uint64(n))
	for i := range n {
		ev := rv.Index(i)
		if ev.IsNil() {
			w.WriteVarint(0)
			continue
		}
		s := ev.Elem().String()
		if len(s) == 0 {
			w.WriteVarint(0)
			continue
		}
		if len(s) > wire.MaxVarint32 {
			return &WriteError{Code: ErrStringTooLong, Field: name,
				msg: fmt.Sprintf("string of %d bytes exceeds the %d-byte limit", len(s), wire.MaxVarint32)}
		}
		w.WriteVarint(uint64(len(s)))
		w.WriteUTF8Direct(s)
	}
	return nil
}

// writeMap writes a Map field: a four-byte entry count, then a single
// uniform-flags byte (bit 0 = keys uniform, bit 1 = values uniform), then
// each entry.
func writeMap(w *Writer, rv reflect.Value, name string, st *marshalState) error {
	ml, ok := mapLikeFromValue(rv)
	if !ok {
		return newBadValue(name, "value of type %s does not implement the Map interface", rv.Type())
	}
	pairs := ml.Pairs()
	w.WriteI32(int32(len(pairs)))
	if len(pairs) == 0 {
		w.WriteU8(0)
		return nil
	}

	keyTags := make([]Tag, len(pairs))
	valTags := make([]Tag, len(pairs))
	for i, p := range pairs {
		kt, err := classifyValue(reflect.ValueOf(p.Key))
		if err != nil {
			return newBadValue(name, "key %d: %v", i, err)
		}
		vt, err := classifyValue(reflect.ValueOf(p.Value))
		if err != nil {
			return newBadValue(name, "value %d: %v", i, err)
		}
		keyTags[i], valTags[i] = kt, vt
	}

	uk, uv := allSameTag(keyTags), allSameTag(valTags)
	var flags byte
	if uk {
		flags |= 1
	}
	if uv {
		flags |= 2
	}
	w.WriteU8(flags)
	if uk {
		w.WriteU8(byte(keyTags[0]))
	}
	if uv {
		w.WriteU8(byte(valTags[0]))
	}
	for i, p := range pairs {
		if !uk {
			w.WriteU8(byte(keyTags[i]))
		}
		if err := writePayload(w, keyTags[i], reflect.ValueOf(p.Key), name+".key", true, st); err != nil {
			return err
		}
		if !uv {
			w.WriteU8(byte(valTags[i]))
		}
		if err := writePayload(w, valTags[i], reflect.ValueOf(p.Value), name+".value", true, st); err != nil {
			return err
		}
	}
	return nil
}

func mapLikeFromValue(rv reflect.Value) (mapLike, bool) {
	if rv.CanAddr() {
		if ml, ok := rv.Addr().Interface().(mapLike); ok {
			return ml, true
		}
	}
	ml, ok := rv.Interface().(mapLike)
	return ml, ok
}

// writeNestedRecord frames a Record-typed field or collection element: a
// varint byte length, then the nested record's own tag/header/payload
// bytes. The nested bytes are built in a pooled scratch Writer first so
// the length prefix can be written before they're copied onto the parent:
// a two-pass layout, applied one level of nesting at a time.
func writeNestedRecord(w *Writer, rv reflect.Value, st *marshalState) error {
	schema, err := schemaFor(rv.Type())
	if err != nil {
		return err
	}
	nb, drop := getNestedWriter(schema.estSize)
	defer drop()
	if err := encodeRecord(nb, schema, rv, st); err != nil {
		return err
	}
	payload := nb.UnsafeBytes()
	w.WriteVarint(uint64(len(payload)))
	w.WriteBytes(payload)
	return nil
}

func allSameTag(tags []Tag) bool {
	for _, t := range tags[1:] {
		if t != tags[0] {
			return false
		}
	}
	return true
}
