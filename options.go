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

// marshalOptions holds the resolved state of every MarshalOption passed to
// Marshal.
type marshalOptions struct {
	strictNulls bool
}

// MarshalOption configures a single call to Marshal.
type MarshalOption struct {
	apply func(*marshalOptions)
}

// WithStrictNulls makes Marshal return a *WriteError (code ErrBadValue)
// instead of silently coercing a null value into a non-nullable field.
// The default behavior downgrades the field to Null on the wire and
// proceeds; this option is for callers who would rather fail loudly than
// let a nil slip through unnoticed.
func WithStrictNulls() MarshalOption {
	return MarshalOption{apply: func(o *marshalOptions) { o.strictNulls = true }}
}

func resolveMarshalOptions(opts []MarshalOption) marshalOptions {
	var o marshalOptions
	for _, opt := range opts {
		opt.apply(&o)
	}
	return o
}

// unmarshalOptions holds the resolved state of every UnmarshalOption passed
// to Unmarshal.
type unmarshalOptions struct{}

// UnmarshalOption configures a single call to Unmarshal. There are
// currently no unmarshal-time options; the type exists so the public API
// can add one later without breaking callers.
type UnmarshalOption struct {
	apply func(*unmarshalOptions)
}

func resolveUnmarshalOptions(opts []UnmarshalOption) unmarshalOptions {
	var o unmarshalOptions
	for _, opt := range opts {
		opt.apply(&o)
	}
	return o
}

// registerOptions holds the resolved state of every RegisterOption passed
// to Register.
type registerOptions struct{}

// RegisterOption configures a single call to Register. There are
// currently no register-time options; the type exists for the same
// forward-compatibility reason as UnmarshalOption.
type RegisterOption struct {
	apply func(*registerOptions)
}

func resolveRegisterOptions(opts []RegisterOption) registerOptions {
	var o registerOptions
	for _, opt := range opts {
		opt.apply(&o)
	}
	return o
}
