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
	"strings"

	"github.com/cespare/xxhash/v2"
)

// fieldDescriptor is a compiled plan for one declared field of a record
// type.
type fieldDescriptor struct {
	name        string
	structIndex int // index into the record's reflect.Type, for Field/FieldByIndex.
	tag         Tag // the field's statically declared tag, ignoring runtime nulling.

	// nested is set when tag == Record: the schema for the field's record
	// type (or, for a pointer field, its pointee's type).
	nested *Schema
}

// Schema is a compiled, per-record-type plan: field order, each field's
// expected tag, and nested schemas. A Schema is built exactly once per
// record type (schemaFor in cache.go) and never mutated after that.
type Schema struct {
	typ    reflect.Type
	fields []fieldDescriptor

	// headerSize is 1 (record tag) + 1 (field count) + ceil(N/2) (nibble
	// descriptors).
	headerSize int

	// estSize is a rough estimate of a typical instance's serialized size,
	// used to pre-size writer buffers.
	estSize int

	// fingerprint hashes the type name and each field's name and tag with
	// xxhash, so debug
	// tooling and tests can cheaply assert that re-registering a type
	// after ClearCache produces byte-identical schema metadata.
	fingerprint uint64
}

// Type returns the Go type this schema was compiled for.
func (s *Schema) Type() reflect.Type { return s.typ }

// FieldCount returns the number of wire fields in this schema.
func (s *Schema) FieldCount() int { return len(s.fields) }

// Fingerprint returns a hash of this schema's type name and its fields'
// names and tags, in order. It is
// not part of the wire format; it exists purely for diagnostics.
func (s *Schema) Fingerprint() uint64 { return s.fingerprint }

func fingerprint(t reflect.Type, fds []fieldDescriptor) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(t.String())
	for _, fd := range fds {
		_, _ = h.WriteString(fd.name)
		_, _ = h.Write([]byte{byte(fd.tag)})
	}
	return h.Sum64()
}

// headerByteCount is a record's fixed header size: 1 record tag byte +
// 1 field-count byte + ceil(N/2) packed-nibble bytes.
func headerByteCount(n int) int {
	return 2 + (n+1)/2
}

func estimateSize(fds []fieldDescriptor) int {
	size := headerByteCount(len(fds))
	for _, fd := range fds {
		if w, ok := fixedWidth(fd.tag); ok {
			size += w
			continue
		}
		switch fd.tag {
		case TagStr:
			size += 8 // varint + a handful of bytes; a rough guess.
		case tagRecord:
			if fd.nested != nil {
				size += 1 + fd.nested.estSize // varint length + nested payload.
			}
		default:
			size += 16 // ListGeneric/ListStr/Set/Array/Map: a rough guess.
		}
	}
	return size
}

var (
	enumerType  = reflect.TypeOf((*Enumer)(nil)).Elem()
	enumSetter  = reflect.TypeOf((*enumFromOrdinal)(nil)).Elem()
	taggedType  = reflect.TypeOf((*tagged)(nil)).Elem()
	mapLikeType = reflect.TypeOf((*mapLike)(nil)).Elem()
	charType    = reflect.TypeOf(Char(0))
)

// enumFromOrdinal is implemented by the pointee of an Enum field's pointer
// type (or by an addressable Enum value itself), to let the reader
// reconstruct a value from the ordinal it decoded.
type enumFromOrdinal interface {
	SetOrdinal(int32)
}

// enumConstructible reports whether t's pointee (or t itself, for a
// non-pointer Enum field) can be reconstructed from a decoded ordinal via
// enumFromOrdinal. It mirrors addrAsEnumSetter's runtime interface probe
// (decode.go), so that a type failing this check can never reach Unmarshal.
func enumConstructible(t reflect.Type) bool {
	target := t
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	return target.Implements(enumSetter) || reflect.PointerTo(target).Implements(enumSetter)
}

func isPointerMapLike(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(mapLikeType)
}

func implementsTagged(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && (t.Implements(taggedType) || reflect.PointerTo(t).Implements(taggedType))
}

func taggedTagOf(t reflect.Type) Tag {
	if t.Implements(taggedType) {
		return reflect.Zero(t).Interface().(tagged).binrecTag() //nolint:errcheck
	}
	return reflect.Zero(reflect.PointerTo(t)).Elem().Addr().Interface().(tagged).binrecTag() //nolint:errcheck
}

// classifyType maps a field's static declared type to a Tag. It does not
// resolve nested Record schemas; callers do that separately once they
// have the Tag.
func classifyType(t reflect.Type) (Tag, error) {
	if t.Implements(enumerType) {
		return TagEnum, nil
	}

	if t.Kind() == reflect.Pointer {
		elem := t.Elem()
		if elem.Implements(enumerType) || reflect.PointerTo(elem).Implements(enumerType) {
			return TagEnum, nil
		}
		if elem.Kind() == reflect.Struct && !isPointerMapLike(elem) {
			return tagRecord, nil
		}
		return classifyType(elem)
	}

	switch t.Kind() {
	case reflect.Bool:
		return TagBool, nil
	case reflect.Int8, reflect.Uint8:
		return TagI8, nil
	case reflect.Int16, reflect.Uint16:
		if t == charType {
			return TagChar, nil
		}
		return TagI16, nil
	case reflect.Int32, reflect.Uint32:
		return TagI32, nil
	case reflect.Int64, reflect.Uint64:
		return TagI64, nil
	case reflect.Float32:
		return TagF32, nil
	case reflect.Float64:
		return TagF64, nil
	case reflect.String:
		return TagStr, nil
	case reflect.Struct:
		if isPointerMapLike(t) {
			return TagMap, nil
		}
		return tagRecord, nil
	case reflect.Slice:
		if implementsTagged(t) {
			return taggedTagOf(t), nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return TagArray, nil
		}
		return TagListGeneric, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

// classifyValue is classifyType's dynamic counterpart, used for elements
// of a ListGeneric/Set/Array/Map whose declared element type is `any` (or
// whose container is reflection-opaque, like Map). Per-element tag
// derivation happens anyway when scanning a generic collection for
// uniform-run compression; it is not the per-FIELD type test the
// dispatcher exists to avoid on the steady-state path.
func classifyValue(rv reflect.Value) (Tag, error) {
	if !rv.IsValid() {
		return TagNull, nil
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return TagNull, nil
		}
		return classifyValue(rv.Elem())
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return TagNull, nil
		}
		if rv.Type().Implements(enumerType) {
			return TagEnum, nil
		}
		return classifyValue(rv.Elem())
	}
	t := rv.Type()
	if t.Implements(enumerType) {
		return TagEnum, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return TagBool, nil
	case reflect.Int8, reflect.Uint8:
		return TagI8, nil
	case reflect.Int16, reflect.Uint16:
		if t == charType {
			return TagChar, nil
		}
		return TagI16, nil
	case reflect.Int32, reflect.Uint32:
		return TagI32, nil
	case reflect.Int64, reflect.Uint64:
		return TagI64, nil
	case reflect.Float32:
		return TagF32, nil
	case reflect.Float64:
		return TagF64, nil
	case reflect.String:
		return TagStr, nil
	case reflect.Struct:
		if isPointerMapLike(t) {
			return TagMap, nil
		}
		return tagRecord, nil
	case reflect.Slice:
		if implementsTagged(t) {
			return taggedTagOf(t), nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return TagArray, nil
		}
		return TagListGeneric, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

// parseFieldTag splits a `binrec:"name,opt1,opt2"` struct tag into its name
// and options, mirroring the comma-separated convention used by
// encoding/json and (in the retrieved pack) by glint's struct tags.
func parseFieldTag(raw string) (name string, opts []string) {
	parts := strings.Split(raw, ",")
	return parts[0], parts[1:]
}

func hasOpt(opts []string, want string) bool {
	for _, o := range opts {
		if o == want {
			return true
		}
	}
	return false
}

// buildSchema compiles t (which must be a struct type) into a Schema.
// building tracks schemas currently under construction in this call tree,
// so that a record type which (transitively) references itself resolves to
// a placeholder rather than recursing forever.
func buildSchema(t reflect.Type, building map[reflect.Type]*Schema) (*Schema, error) {
	if s, ok := building[t]; ok {
		return s, nil
	}
	if s, ok := globalCache.Load(t); ok {
		return s, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, &SchemaError{Type: t, reason: fmt.Errorf("%w: not a struct", ErrUnsupportedType)}
	}

	s := &Schema{typ: t}
	building[t] = s // Install the placeholder before recursing.

	var fds []fieldDescriptor
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		name, opts := parseFieldTag(sf.Tag.Get("binrec"))
		if name == "-" {
			continue
		}
		if name == "" {
			name = sf.Name
		}

		fd := fieldDescriptor{name: name, structIndex: i}

		tg, err := classifyType(sf.Type)
		if err != nil {
			return nil, &SchemaError{Type: t, Field: name, reason: err}
		}

		if tg == TagListGeneric && hasOpt(opts, "liststr") {
			elem := sf.Type.Elem()
			if elem.Kind() != reflect.Pointer || elem.Elem().Kind() != reflect.String {
				return nil, &SchemaError{Type: t, Field: name,
					reason: fmt.Errorf("liststr option requires a []*string field, got %s", sf.Type)}
			}
			tg = TagListStr
		}

		if tg == TagEnum {
			if !enumConstructible(sf.Type) {
				return nil, &SchemaError{Type: t, Field: name,
					reason: fmt.Errorf("Enum field's type must implement SetOrdinal(int32) for decoding: %s", sf.Type)}
			}
		}

		fd.tag = tg

		if tg == tagRecord {
			nt := sf.Type
			if nt.Kind() == reflect.Pointer {
				nt = nt.Elem()
			}
			nested, err := buildSchema(nt, building)
			if err != nil {
				return nil, err
			}
			fd.nested = nested
		}

		fds = append(fds, fd)
	}

	if len(fds) > 255 {
		return nil, &SchemaError{Type: t, reason: ErrTooManyFields}
	}

	s.fields = fds
	s.headerSize = headerByteCount(len(fds))
	s.estSize = estimateSize(fds)
	s.fingerprint = fingerprint(t, fds)

	return s, nil
}
