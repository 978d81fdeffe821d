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

// Package binrec implements a binary, schema-cached record serializer: a
// record type's wire shape is compiled once into a Schema (Register) and
// then reused by every subsequent Marshal/Unmarshal call for that type,
// avoiding per-call reflection over the record's own Go type.
package binrec

import (
	"reflect"

	"github.com/basilisklabs/binrec/internal/dbg"
)

// Register compiles T's Schema and stores it in the process-wide schema
// cache, ahead of any Marshal/Unmarshal call for T. It is idempotent:
// calling it again for an already-registered T is a cheap cache hit.
//
// Register reports a *SchemaError for T and for every record type reached
// through T's record-typed fields. A record type reached only as a
// collection element or Map key/value is compiled on first use, so Marshal
// or Unmarshal can still return a *SchemaError for it.
func Register[T any](opts ...RegisterOption) error {
	_ = resolveRegisterOptions(opts)
	_, err := schemaFor(reflect.TypeFor[T]())
	return err
}

// Marshal encodes v into a newly allocated byte slice, using T's
// previously registered Schema. It returns ErrUnregistered if T was never
// passed to Register.
func Marshal[T any](v *T, opts ...MarshalOption) ([]byte, error) {
	t := reflect.TypeFor[T]()
	schema, ok := globalCache.Load(t)
	if !ok {
		return nil, ErrUnregistered
	}

	st := &marshalState{opts: resolveMarshalOptions(opts)}
	w, drop := getWriter(schema.estSize)
	defer drop()

	if err := encodeRecord(w, schema, reflect.ValueOf(v).Elem(), st); err != nil {
		return nil, err
	}
	if dbg.Enabled {
		dbg.Log("marshal", "%s: wrote %s (estimated %s)",
			t, dbg.FormatSize(w.Position()), dbg.FormatSize(schema.estSize))
	}
	return w.Bytes(), nil
}

// SchemaFingerprint returns the fingerprint of T's registered Schema. It
// exists for tests and diagnostics that want to assert a schema's field
// layout didn't silently change across a rebuild; it returns
// ErrUnregistered if T was never passed to Register.
func SchemaFingerprint[T any]() (uint64, error) {
	t := reflect.TypeFor[T]()
	schema, ok := globalCache.Load(t)
	if !ok {
		return 0, ErrUnregistered
	}
	return schema.Fingerprint(), nil
}

// Unmarshal decodes data into a newly allocated *T, using T's previously
// registered Schema. It returns ErrUnregistered if T was never passed to
// Register, or a *FormatError if data is malformed or does not match T's
// field count.
func Unmarshal[T any](data []byte, opts ...UnmarshalOption) (*T, error) {
	_ = resolveUnmarshalOptions(opts)
	t := reflect.TypeFor[T]()
	schema, ok := globalCache.Load(t)
	if !ok {
		return nil, ErrUnregistered
	}

	r := NewReader(data)
	rv, err := decodeRecord(r, schema)
	if err != nil {
		return nil, err
	}
	out := rv.Addr().Interface().(*T) //nolint:errcheck
	return out, nil
}
