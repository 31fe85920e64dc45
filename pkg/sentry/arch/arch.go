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

// Package arch provides the aarch64 register frame of a guest thread and its
// translation to and from the Linux signal frame ABI.
package arch

import (
	"fmt"

	"sigframe.dev/sigframe/pkg/sentry/arch/fpu"
)

// Arch describes an architecture.
type Arch int

const (
	// ARM64 is the aarch64 architecture.
	ARM64 Arch = iota
)

// String implements fmt.Stringer.
func (a Arch) String() string {
	switch a {
	case ARM64:
		return "arm64"
	default:
		return fmt.Sprintf("Arch(%d)", a)
	}
}

// State contains the saved trap state of one thread: its Register Frame and
// the FPSIMD state saved alongside it.
//
// A State is owned by its thread and only touched by that thread's trap
// path.
type State struct {
	// Regs is the register frame.
	Regs Registers

	// FP holds the FPSIMD state saved for this trap, if any.
	FP fpu.Slot
}

// Fork creates and returns an identical copy of the state.
func (s *State) Fork() State {
	return State{
		Regs: s.Regs,
		FP:   s.FP.Fork(),
	}
}

// Context64 represents an ARM64 thread context.
type Context64 struct {
	State
}

// New returns a new context with a zeroed register frame and no FPSIMD state.
func New() *Context64 {
	return &Context64{}
}

// Arch returns the architecture for this context.
func (c *Context64) Arch() Arch {
	return ARM64
}

// Fork returns an exact copy of this context.
func (c *Context64) Fork() *Context64 {
	return &Context64{State: c.State.Fork()}
}

// General purpose registers usage on Arm64:
// R0...R7: parameter/result registers.
// R8: indirect result location register.
// R9...R15: temporary registers.
// R16: the first intra-procedure-call scratch register.
// R17: the second intra-procedure-call scratch register.
// R18: the platform register.
// R19...R28: callee-saved registers.
// R29: the frame pointer.
// R30: the link register.

// IP returns the current instruction pointer.
func (c *Context64) IP() uintptr {
	return uintptr(c.Regs[FrameELR])
}

// SetIP sets the current instruction pointer.
func (c *Context64) SetIP(value uintptr) {
	c.Regs[FrameELR] = uint64(value)
}

// Stack returns the current stack pointer.
func (c *Context64) Stack() uintptr {
	return uintptr(c.Regs[FrameSP])
}

// SetStack sets the current stack pointer.
func (c *Context64) SetStack(value uintptr) {
	c.Regs[FrameSP] = uint64(value)
}
