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

// Package fpu provides the lazily saved FPSIMD register state of a thread.
package fpu

import (
	"fmt"

	"sigframe.dev/sigframe/pkg/hostarch"
)

// NumVregs is the number of SIMD&FP vector registers.
const NumVregs = 32

// VregsSize is the size in bytes of the vector register bank.
const VregsSize = NumVregs * 16

// Uint128 is one 128-bit vector register.
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// String implements fmt.Stringer.
func (u Uint128) String() string {
	return fmt.Sprintf("%#016x%016x", u.Hi, u.Lo)
}

// PutBytes stores u into dst[:16] in guest byte order.
func (u Uint128) PutBytes(dst []byte) {
	hostarch.ByteOrder.PutUint64(dst[0:8], u.Lo)
	hostarch.ByteOrder.PutUint64(dst[8:16], u.Hi)
}

// Uint128FromBytes decodes src[:16] in guest byte order.
func Uint128FromBytes(src []byte) Uint128 {
	return Uint128{
		Lo: hostarch.ByteOrder.Uint64(src[0:8]),
		Hi: hostarch.ByteOrder.Uint64(src[8:16]),
	}
}

// State is the FPSIMD state of a thread: V0..V31 and the status and control
// registers.
type State struct {
	Vregs [NumVregs]Uint128
	Fpsr  uint32
	Fpcr  uint32
}

// Fork creates and returns an identical copy of the state.
func (s *State) Fork() *State {
	n := *s
	return &n
}

// VregsBytes returns the vector register bank in its 512-byte memory layout.
func (s *State) VregsBytes() []byte {
	buf := make([]byte, VregsSize)
	for i, v := range s.Vregs {
		v.PutBytes(buf[16*i:])
	}
	return buf
}

// SetVregsBytes loads the vector register bank from its 512-byte memory
// layout.
func (s *State) SetVregsBytes(src []byte) {
	for i := range s.Vregs {
		s.Vregs[i] = Uint128FromBytes(src[16*i:])
	}
}

// Slot holds the FPSIMD state saved for the current trap, if any.
//
// The zero value is an empty slot. A Slot is owned by one thread and is not
// safe for concurrent use.
type Slot struct {
	state *State
}

// Get returns the saved state and true, or nil and false if no state was
// saved for this trap.
func (s *Slot) Get() (*State, bool) {
	return s.state, s.state != nil
}

// Attach returns the saved state, creating a zeroed one on first use.
func (s *Slot) Attach() *State {
	if s.state == nil {
		s.state = &State{}
	}
	return s.state
}

// Discard drops any saved state.
func (s *Slot) Discard() {
	s.state = nil
}

// Fork returns a slot holding an independent copy of s's state.
func (s *Slot) Fork() Slot {
	if s.state == nil {
		return Slot{}
	}
	return Slot{state: s.state.Fork()}
}
