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
	"reflect"

	"github.com/basilisklabs/binrec/internal/wire"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// decodeRecord is the reader-side counterpart of encodeRecord: it
// consumes one record's tag byte, field count, packed nibble header (with
// wide-tag extension bytes), and then each present field's payload, and
// returns a freshly allocated, fully populated value of s's record type.
func decodeRecord(r *Reader, s *Schema) (reflect.Value, error) {
	tagByte, err := r.ReadU8()
	if err != nil {
		return reflect.Value{}, err
	}
	if Tag(tagByte) != tagRecord {
		return reflect.Value{}, newFormatError(ErrUnexpectedTag, r.Position()-1,
			"expected Record tag, got %s", Tag(tagByte))
	}

	countByte, err := r.ReadU8()
	if err != nil {
		return reflect.Value{}, err
	}
	n := int(countByte)
	if n != len(s.fields) {
		return reflect.Value{}, newFormatError(ErrFieldCountMismatch, r.Position()-1,
			"wire record has %d fields, schema for %s has %d", n, s.typ, len(s.fields))
	}

	tags, err := readNibbleHeader(r, n)
	if err != nil {
		return reflect.Value{}, err
	}

	rv := reflect.New(s.typ).Elem()
	for i := range s.fields {
		fd := &s.fields[i]
		fv := rv.Field(fd.structIndex)

		if fd.tag == TagEnum {
			if err := readEnumField(r, fv); err != nil {
				return reflect.Value{}, err
			}
			continue
		}
		if tags[i] == TagNull {
			continue // The field's zero value, already in place, represents null.
		}
		if err := decodeFieldInto(r, tags[i], fv); err != nil {
			return reflect.Value{}, err
		}
	}
	return rv, nil
}

// readNibbleHeader reads ceil(n/2) packed-nibble bytes, then one extra wide
// byte for each field whose nibble is nibWide, returning each field's
// effective Tag in declaration order.
func readNibbleHeader(r *Reader, n int) ([]Tag, error) {
	nibbles := make([]nibble, 0, n)
	for len(nibbles) < n {
		b, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		nibbles = append(nibbles, nibble(b>>4))
		if len(nibbles) < n {
			nibbles = append(nibbles, nibble(b&0xF))
		}
	}

	tags := make([]Tag, n)
	for i, nb := range nibbles {
		if nb == nibWide {
			b, err := r.ReadU8()
			if err != nil {
				return nil, err
			}
			tags[i] = Tag(b)
		} else {
			if nb > nibMap {
				return nil, newFormatError(ErrUnexpectedTag, r.Position(), "nibble %d of field %d has no tag", nb, i)
			}
			tags[i] = nibbleToTag(nb)
		}
	}
	return tags, nil
}

// decodeFieldInto decodes tag's payload and assigns it into fv, a settable
// field of the record being built.
func decodeFieldInto(r *Reader, tag Tag, fv reflect.Value) error {
	v, err := decodeValueForTag(r, tag, fv.Type(), false)
	if err != nil {
		return err
	}
	fv.Set(v)
	return nil
}

// readEnumField reads a record's Enum field, including the field-level -1
// absence sentinel.
func readEnumField(r *Reader, fv reflect.Value) error {
	ord, err := r.ReadI32()
	if err != nil {
		return err
	}
	if ord == -1 {
		if fv.Kind() == reflect.Pointer {
			fv.SetZero()
		}
		return nil
	}

	target := fv
	if target.Kind() == reflect.Pointer {
		target.Set(reflect.New(target.Type().Elem()))
		target = target.Elem()
	}
	setter, ok := addrAsEnumSetter(target)
	if !ok {
		return fmt.Errorf("binrec: type %s does not implement SetOrdinal", target.Type())
	}
	setter.SetOrdinal(ord)
	return nil
}

func addrAsEnumSetter(target reflect.Value) (enumFromOrdinal, bool) {
	if target.CanAddr() {
		if es, ok := target.Addr().Interface().(enumFromOrdinal); ok {
			return es, true
		}
	}
	es, ok := target.Interface().(enumFromOrdinal)
	return es, ok
}

// decodeValueForTag decodes tag's payload into a value assignable to
// elemType. elemType may be a concrete type (a field's or element's static
// Go type), a pointer to one (for nullable fields), or the empty
// interface (a heterogeneous ListGeneric/Set/Array element, or a Map
// key/value, whose Go type is only known dynamically).
//
// elem selects the element-level Str layout (two-byte big-endian length)
// over the record-field layout (varint length). The two forms must never
// be mixed.
func decodeValueForTag(r *Reader, tag Tag, elemType reflect.Type, elem bool) (reflect.Value, error) {
	if elemType.Kind() == reflect.Interface {
		return decodeValueForTagAny(r, tag)
	}
	if tag == TagNull {
		return reflect.Zero(elemType), nil
	}

	target := elemType
	isPtr := target.Kind() == reflect.Pointer
	if isPtr {
		target = target.Elem()
	}
	leaf := reflect.New(target).Elem()

	if err := decodeLeaf(r, tag, leaf, elem); err != nil {
		return reflect.Value{}, err
	}

	if isPtr {
		ptr := reflect.New(target)
		ptr.Elem().Set(leaf)
		return ptr, nil
	}
	return leaf, nil
}

// decodeLeaf decodes tag's payload directly into leaf, a freshly allocated,
// addressable, non-pointer value of the target concrete type.
func decodeLeaf(r *Reader, tag Tag, leaf reflect.Value, elem bool) error {
	switch tag {
	case TagBool:
		v, err := r.ReadBool()
		if err != nil {
			return err
		}
		leaf.SetBool(v)
	case TagI8:
		v, err := r.ReadU8()
		if err != nil {
			return err
		}
		setI8(leaf, v)
	case TagI16:
		v, err := r.ReadI16()
		if err != nil {
			return err
		}
		setI16(leaf, v)
	case TagChar:
		v, err := r.ReadChar()
		if err != nil {
			return err
		}
		leaf.SetUint(uint64(v))
	case TagI32:
		v, err := r.ReadI32()
		if err != nil {
			return err
		}
		setI32(leaf, v)
	case TagI64:
		v, err := r.ReadI64()
		if err != nil {
			return err
		}
		setI64(leaf, v)
	case TagF32:
		v, err := r.ReadF32()
		if err != nil {
			return err
		}
		leaf.SetFloat(float64(v))
	case TagF64:
		v, err := r.ReadF64()
		if err != nil {
			return err
		}
		leaf.SetFloat(v)
	case TagStr:
		s, err := readStringPayload(r, elem)
		if err != nil {
			return err
		}
		leaf.SetString(s)
	case TagEnum:
		ord, err := r.ReadI32()
		if err != nil {
			return err
		}
		setter, ok := addrAsEnumSetter(leaf)
		if !ok {
			return fmt.Errorf("binrec: type %s does not implement SetOrdinal", leaf.Type())
		}
		setter.SetOrdinal(ord)
	case tagRecord:
		rv, err := readNestedRecordValue(r, leaf.Type())
		if err != nil {
			return err
		}
		leaf.Set(rv)
	case TagListGeneric, TagSet, TagArray:
		return decodeSequence(r, leaf)
	case TagListStr:
		return decodeListStr(r, leaf)
	case TagMap:
		return decodeMap(r, leaf)
	default:
		return newFormatError(ErrUnexpectedTag, r.Position(), "unsupported tag %s", tag)
	}
	return nil
}

func setI8(target reflect.Value, v byte) {
	if target.Kind() == reflect.Uint8 {
		target.SetUint(uint64(v))
	} else {
		target.SetInt(int64(int8(v)))
	}
}

func setI16(target reflect.Value, v int16) {
	if target.Kind() == reflect.Uint16 {
		target.SetUint(uint64(uint16(v)))
	} else {
		target.SetInt(int64(v))
	}
}

func setI32(target reflect.Value, v int32) {
	if target.Kind() == reflect.Uint32 {
		target.SetUint(uint64(uint32(v)))
	} else {
		target.SetInt(int64(v))
	}
}

func setI64(target reflect.Value, v int64) {
	if target.Kind() == reflect.Uint64 {
		target.SetUint(uint64(v))
	} else {
		target.SetInt(v)
	}
}

// readStringPayload reads a Str payload in either of its two layouts: the
// record-field form (varint length) or the collection-element form
// (two-byte big-endian length). Both decode the bytes as a borrowed view
// of the source buffer.
func readStringPayload(r *Reader, elem bool) (string, error) {
	var n int
	if elem {
		v, err := r.ReadI16()
		if err != nil {
			return "", err
		}
		n = int(uint16(v))
	} else {
		v, err := r.ReadVarint()
		if err != nil {
			return "", err
		}
		n = int(v)
	}
	return r.ReadUTF8Borrowed(n)
}

// decodeValueForTagAny decodes tag's payload into the natural Go type for
// that tag, boxed for an `any` slot. It is only reached for collection
// elements and map keys/values (a record field declared `any` is rejected
// at schema build), so Str always uses the element-level two-byte-length
// layout. Record, collection, Map, and Enum tags have no type identity on
// the wire, so there is no concrete Go type to reconstruct them into
// without a statically declared element type; decoding one inside a fully
// dynamic element errors instead of guessing.
func decodeValueForTagAny(r *Reader, tag Tag) (reflect.Value, error) {
	switch tag {
	case TagNull:
		return reflect.Zero(anyType), nil
	case TagBool:
		v, err := r.ReadBool()
		return reflect.ValueOf(v), err
	case TagI8:
		v, err := r.ReadU8()
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(int8(v)), nil
	case TagI16:
		v, err := r.ReadI16()
		return reflect.ValueOf(v), err
	case TagChar:
		v, err := r.ReadChar()
		return reflect.ValueOf(v), err
	case TagI32:
		v, err := r.ReadI32()
		return reflect.ValueOf(v), err
	case TagI64:
		v, err := r.ReadI64()
		return reflect.ValueOf(v), err
	case TagF32:
		v, err := r.ReadF32()
		return reflect.ValueOf(v), err
	case TagF64:
		v, err := r.ReadF64()
		return reflect.ValueOf(v), err
	case TagStr:
		s, err := readStringPayload(r, true)
		return reflect.ValueOf(s), err
	default:
		return reflect.Value{}, fmt.Errorf("binrec: %s has no concrete Go type to decode into without a declared element type", tag)
	}
}

// decodeSequence decodes a ListGeneric/Set/Array payload into leaf, a
// settable value of the field's (or element's) concrete slice type.
func decodeSequence(r *Reader, leaf reflect.Value) error {
	n, err := r.ReadI32()
	if err != nil {
		return err
	}
	count := int(uint32(n))

	uniform, err := r.ReadBool()
	if err != nil {
		return err
	}
	var sharedTag Tag
	if uniform {
		b, err := r.ReadU8()
		if err != nil {
			return err
		}
		sharedTag = Tag(b)
	}

	// Every element consumes at least one byte unless the whole sequence is
	// uniform Nulls, so a count beyond the remaining input cannot be valid.
	// Checked before allocation so a corrupt count fails cheaply.
	if count > r.Len() && !(uniform && sharedTag == TagNull) {
		return newFormatError(ErrTruncated, r.Position(),
			"sequence count %d exceeds %d remaining bytes", count, r.Len())
	}

	elemType := leaf.Type().Elem()
	out := reflect.MakeSlice(leaf.Type(), count, count)
	for i := range count {
		tag := sharedTag
		if !uniform {
			b, err := r.ReadU8()
			if err != nil {
				return err
			}
			tag = Tag(b)
		}
		ev, err := decodeValueForTag(r, tag, elemType, true)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(ev)
	}
	leaf.Set(out)
	return nil
}

// decodeListStr decodes a ListStr payload into leaf, a settable []*string.
func decodeListStr(r *Reader, leaf reflect.Value) error {
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	count := int(n)
	if count > r.Len() {
		return newFormatError(ErrTruncated, r.Position(),
			"string list count %d exceeds %d remaining bytes", count, r.Len())
	}
	out := reflect.MakeSlice(leaf.Type(), count, count)
	for i := range count {
		ln, err := r.ReadVarint()
		if err != nil {
			return err
		}
		if ln == 0 {
			continue // A zero length means null; empty strings collapse to null too.
		}
		s, err := r.ReadUTF8Borrowed(int(ln))
		if err != nil {
			return err
		}
		out.Index(i).Set(reflect.ValueOf(&s))
	}
	leaf.Set(out)
	return nil
}

// decodeMap decodes a Map payload into leaf, a settable Map[K, V] value
// (for some K, V fixed by the field's declared type).
func decodeMap(r *Reader, leaf reflect.Value) error {
	n, err := r.ReadI32()
	if err != nil {
		return err
	}
	count := int(uint32(n))

	flags, err := r.ReadU8()
	if err != nil {
		return err
	}
	uk := flags&1 != 0
	uv := flags&2 != 0

	var sharedKeyTag Tag
	if uk {
		b, err := r.ReadU8()
		if err != nil {
			return err
		}
		sharedKeyTag = Tag(b)
	}

	var sharedValTag Tag
	if uv {
		b, err := r.ReadU8()
		if err != nil {
			return err
		}
		sharedValTag = Tag(b)
	}

	// Each entry consumes at least one byte unless both halves are uniform
	// Nulls; reject impossible counts before touching the destination map.
	if count > r.Len() && !(uk && sharedKeyTag == TagNull && uv && sharedValTag == TagNull) {
		return newFormatError(ErrTruncated, r.Position(),
			"map entry count %d exceeds %d remaining bytes", count, r.Len())
	}

	ms, ok := leaf.Addr().Interface().(mapSetter)
	if !ok {
		return fmt.Errorf("binrec: type %s does not implement the Map setter interface", leaf.Type())
	}
	keyType, valType := ms.keyType(), ms.valueType()

	for i := range count {
		kt := sharedKeyTag
		if !uk {
			b, err := r.ReadU8()
			if err != nil {
				return err
			}
			kt = Tag(b)
		}
		kv, err := decodeValueForTag(r, kt, keyType, true)
		if err != nil {
			return fmt.Errorf("key %d: %w", i, err)
		}

		vt := sharedValTag
		if !uv {
			b, err := r.ReadU8()
			if err != nil {
				return err
			}
			vt = Tag(b)
		}
		vv, err := decodeValueForTag(r, vt, valType, true)
		if err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}

		ms.SetAny(kv.Interface(), vv.Interface())
	}
	return nil
}

// readNestedRecordValue reads a length-prefixed nested Record payload and
// decodes it as targetType, a struct type.
func readNestedRecordValue(r *Reader, targetType reflect.Type) (reflect.Value, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return reflect.Value{}, err
	}
	if n > uint64(wire.MaxVarint32) {
		return reflect.Value{}, newFormatError(ErrVarintOverflow, r.Position(), "nested record length %d exceeds limit", n)
	}
	buf, _, err := r.ReadBytesBorrowed(int(n))
	if err != nil {
		return reflect.Value{}, err
	}

	schema, err := schemaFor(targetType)
	if err != nil {
		return reflect.Value{}, err
	}
	sub := NewReader(buf)
	return decodeRecord(sub, schema)
}
