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

	"golang.org/x/sync/singleflight"

	"github.com/basilisklabs/binrec/internal/dbg"
	"github.com/basilisklabs/binrec/internal/xsync"
)

// globalCache is the process-wide schema cache: many readers, rare
// writers, and once a schema is populated a lookup never blocks on a
// mutex. It is implemented on top of sync.Map, which is exactly that
// access pattern.
var globalCache xsync.Map[reflect.Type, *Schema]

// buildGroup deduplicates concurrent first-registrations of the same
// type: Register calls racing on a not-yet-cached type perform the build
// exactly once. singleflight is purpose-built for "many callers, one
// in-flight build".
var buildGroup singleflight.Group

// schemaFor returns t's compiled Schema, building and caching it if this is
// the first time t has been seen.
func schemaFor(t reflect.Type) (*Schema, error) {
	if s, ok := globalCache.Load(t); ok {
		return s, nil
	}

	v, err, shared := buildGroup.Do(fmt.Sprintf("%s@%p", t, t), func() (any, error) {
		if s, ok := globalCache.Load(t); ok {
			return s, nil
		}
		building := make(map[reflect.Type]*Schema)
		s, err := buildSchema(t, building)
		if err != nil {
			return nil, err
		}
		// Publish every schema the recursion completed, not just the root:
		// a nested field's writer and reader must resolve through this same
		// cache to the same descriptor instance.
		for bt, bs := range building {
			globalCache.LoadOrStore(bt, func() *Schema { return bs })
		}
		if dbg.Enabled {
			dbg.Log("schemaFor", "compiled %s: %d fields, est %s, fingerprint %x",
				t, s.FieldCount(), dbg.FormatSize(s.estSize), s.Fingerprint())
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	if shared && dbg.Enabled {
		dbg.Log("schemaFor", "joined in-flight build for %s", t)
	}
	return v.(*Schema), nil
}

// ClearCache drops every compiled schema from the process-wide cache.
// Intended for tests that register many ad hoc types and want a clean
// slate; production callers normally never need it, since Register is
// idempotent and cheap to call redundantly.
func ClearCache() {
	var types []reflect.Type
	for t, _ := range globalCache.All() { //nolint:revive
		types = append(types, t)
	}
	for _, t := range types {
		globalCache.Delete(t)
	}
}
