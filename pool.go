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

import "github.com/basilisklabs/binrec/internal/sync2"

// writerPool recycles top-level Writers across Marshal calls, acquired at
// the start of an encode and released at the end. Reset clears the
// buffer's length but keeps its backing array, so once the pool is warm a
// steady-state Marshal call reuses its working buffer; the byte slice it
// returns is still a freshly allocated copy.
var writerPool = sync2.Pool[Writer]{
	Reset: func(w *Writer) { w.Reset(0) },
}

// nestedBufPool supplies scratch buffers for framing nested Record fields:
// the nested record is written once to compute its exact byte length,
// then that same buffer is copied onto the parent writer. Pooling it avoids
// an allocation per nested record per Marshal call.
var nestedBufPool = sync2.Pool[Writer]{
	Reset: func(w *Writer) { w.Reset(0) },
}

// getWriter acquires a pooled Writer pre-sized to at least capacity bytes.
func getWriter(capacity int) (w *Writer, drop func()) {
	w, drop = writerPool.Get()
	w.Reset(capacity)
	return w, drop
}

func getNestedWriter(capacity int) (w *Writer, drop func()) {
	w, drop = nestedBufPool.Get()
	w.Reset(capacity)
	return w, drop
}
