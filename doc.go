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

// Package binrec is a schema-cached binary serializer for Go record types.
//
// Call [Register] once per record type to compile a [Schema]: a
// self-contained plan of how each declared field maps onto the wire,
// derived once from the type via reflection and reused for the life of the
// process. [Marshal] and [Unmarshal] then drive that schema's writer and
// reader dispatchers, which perform no per-field type switch once the
// schema exists.
//
// # Wire format
//
// The format is self-describing only with respect to field count and
// per-field tag; it carries no field names and no schema version, so a
// payload can only be decoded by a reader that was built against the exact
// same registered type. See the format notes on Tag and nibble in tag.go
// and on the writer/reader dispatchers in encode.go and decode.go for the
// byte-exact layout.
//
// # Support status
//
// binrec assumes record graphs are trees: there is no reference or cycle
// tracking for *values* (only for *types*, at schema-build time). Passing a
// record with a reference cycle results in either a stack overflow during
// Marshal or an infinite loop; this is explicitly undefined behavior, not a
// bug to be fixed here.
package binrec
