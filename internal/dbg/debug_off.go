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

//go:build !binrecdebug

// Package dbg holds the codec's debug-only diagnostics: a build-tag-gated
// trace logger and assertion helper. Both are complete no-ops unless the
// binary is built with -tags binrecdebug, and every call site is guarded
// by the Enabled constant so release builds compile them away entirely.
package dbg

// Enabled is false in release builds. Every call site under `if dbg.Enabled`
// is dead code eliminated by the compiler.
const Enabled = false

// Log is a no-op in release builds.
func Log(operation, format string, args ...any) {}

// Assert is a no-op in release builds; invariant violations are expected to
// have been caught by tests built with -tags binrecdebug instead.
func Assert(cond bool, format string, args ...any) {}

// FormatSize is a no-op in release builds.
func FormatSize(n int) string { return "" }
