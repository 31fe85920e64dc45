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

// Package primitive defines marshal.Marshallable implementations for primitive
// types.
package primitive

import (
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/marshal"
)

// Uint32 is a marshal.Marshallable implementation for uint32.
type Uint32 uint32

// Uint64 is a marshal.Marshallable implementation for uint64.
type Uint64 uint64

// Marshallable types used by this file.
var _ marshal.Marshallable = (*Uint32)(nil)
var _ marshal.Marshallable = (*Uint64)(nil)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (i *Uint32) SizeBytes() int {
	return 4
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (i *Uint32) MarshalBytes(dst []byte) {
	hostarch.ByteOrder.PutUint32(dst[:4], uint32(*i))
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (i *Uint32) UnmarshalBytes(src []byte) {
	*i = Uint32(hostarch.ByteOrder.Uint32(src[:4]))
}

// CopyOut implements marshal.Marshallable.CopyOut.
func (i *Uint32) CopyOut(cc marshal.CopyContext, addr hostarch.Addr) (int, error) {
	return marshal.CopyOut(cc, addr, i)
}

// CopyIn implements marshal.Marshallable.CopyIn.
func (i *Uint32) CopyIn(cc marshal.CopyContext, addr hostarch.Addr) (int, error) {
	return marshal.CopyIn(cc, addr, i)
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (i *Uint64) SizeBytes() int {
	return 8
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (i *Uint64) MarshalBytes(dst []byte) {
	hostarch.ByteOrder.PutUint64(dst[:8], uint64(*i))
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (i *Uint64) UnmarshalBytes(src []byte) {
	*i = Uint64(hostarch.ByteOrder.Uint64(src[:8]))
}

// CopyOut implements marshal.Marshallable.CopyOut.
func (i *Uint64) CopyOut(cc marshal.CopyContext, addr hostarch.Addr) (int, error) {
	return marshal.CopyOut(cc, addr, i)
}

// CopyIn implements marshal.Marshallable.CopyIn.
func (i *Uint64) CopyIn(cc marshal.CopyContext, addr hostarch.Addr) (int, error) {
	return marshal.CopyIn(cc, addr, i)
}

// CopyUint64Out is a convenient wrapper for copying out a uint64 to the task's
// memory.
func CopyUint64Out(cc marshal.CopyContext, addr hostarch.Addr, src uint64) (int, error) {
	i := Uint64(src)
	return i.CopyOut(cc, addr)
}

// CopyUint64In is a convenient wrapper for copying in a uint64 from the task's
// memory.
func CopyUint64In(cc marshal.CopyContext, addr hostarch.Addr) (uint64, error) {
	var i Uint64
	if _, err := i.CopyIn(cc, addr); err != nil {
		return 0, err
	}
	return uint64(i), nil
}
