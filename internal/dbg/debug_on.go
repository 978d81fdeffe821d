// Copyright 2025 Buf Technologies, Inc.
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

//go:build binrecdebug

package dbg

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/timandy/routine"
)

// Enabled is true when the binary is built with the binrecdebug tag. Every
// call to Log and every non-trivial Assert on the codec's hot path is
// guarded by this constant, so that a release build compiles them away
// entirely rather than paying for a branch.
const Enabled = true

// Log prints a trace line to stderr: which goroutine, which file/line, and
// a formatted message. Used on the schema-build path and once per Marshal
// call, never inside the per-field write/read dispatch loops themselves.
func Log(operation, format string, args ...any) {
	_, file, line, _ := runtime.Caller(1)
	file = filepath.Base(file)

	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "binrec/%s:%d [g%04d] %s: %s\n",
		file, line, routine.Goid(), operation, msg)
}

// Assert panics if cond is false. Only compiled in under binrecdebug.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("binrec: internal assertion failed: "+format, args...))
	}
}

// FormatSize renders n bytes the way debug trace lines report estimated and
// actual payload sizes, e.g. "30 B" or "1.2 kB".
func FormatSize(n int) string {
	return humanize.Bytes(uint64(n))
}
