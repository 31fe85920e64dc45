// Copyright 2026 The sigframe Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package marshal defines the Marshallable interface for serialize/deserializing
// Go data structures to/from memory, according to the Linux ABI.
//
// Implementations of this interface are written by hand with explicit field
// offsets; nothing in this package aliases Go memory onto guest memory.
package marshal

import (
	"io"

	"sigframe.dev/sigframe/pkg/hostarch"
)

// CopyContext defines the memory operations required to marshal to and from
// user memory. Typically, kernel.Task is used to provide implementations for
// these operations.
type CopyContext interface {
	// CopyInBytes copies len(dst) bytes from the guest address addr into
	// dst.
	CopyInBytes(addr hostarch.Addr, dst []byte) (int, error)

	// CopyOutBytes copies len(src) bytes from src to the guest address addr.
	CopyOutBytes(addr hostarch.Addr, src []byte) (int, error)
}

// Marshallable represents operations on a type that can be marshalled to and
// from memory.
type Marshallable interface {
	// SizeBytes is the size of the memory representation of a type in
	// marshalled form.
	SizeBytes() int

	// MarshalBytes serializes a copy of a type to dst. dst must be at least
	// SizeBytes() long.
	MarshalBytes(dst []byte)

	// UnmarshalBytes deserializes a type from src. src must be at least
	// SizeBytes() long.
	UnmarshalBytes(src []byte)
}

// Marshal returns the serialized contents of m in a newly allocated byte
// slice.
func Marshal(m Marshallable) []byte {
	buf := make([]byte, m.SizeBytes())
	m.MarshalBytes(buf)
	return buf
}

// CopyOut marshals m and copies it to addr.
func CopyOut(cc CopyContext, addr hostarch.Addr, m Marshallable) (int, error) {
	return cc.CopyOutBytes(addr, Marshal(m))
}

// CopyIn copies SizeBytes() bytes from addr and unmarshals them into m. m is
// left unmodified if the copy fails.
func CopyIn(cc CopyContext, addr hostarch.Addr, m Marshallable) (int, error) {
	buf := make([]byte, m.SizeBytes())
	n, err := cc.CopyInBytes(addr, buf)
	if err != nil {
		return n, err
	}
	m.UnmarshalBytes(buf)
	return n, nil
}

// WriteTo writes the serialized contents of m to w.
func WriteTo(w io.Writer, m Marshallable) (int, error) {
	return w.Write(Marshal(m))
}

// ReadFrom reads exactly SizeBytes() bytes from r and unmarshals them into m.
func ReadFrom(r io.Reader, m Marshallable) (int, error) {
	buf := make([]byte, m.SizeBytes())
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return n, err
	}
	m.UnmarshalBytes(buf)
	return n, nil
}
