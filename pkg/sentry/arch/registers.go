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

package arch

import (
	"fmt"
	"strings"

	"sigframe.dev/sigframe/pkg/bits"
)

// Register Frame word indices.
const (
	FrameX0  = 0
	FrameX1  = 1
	FrameX2  = 2
	FrameX8  = 8
	FrameX29 = 29
	FrameX30 = 30

	// FrameSP is SP_EL0.
	FrameSP = 31

	// FrameELR is the resume program counter.
	FrameELR = 32

	// FrameESRSPSR holds SPSR in its low 32 bits and the kernel-private
	// ESR in its high 32 bits.
	FrameESRSPSR = 33

	// FrameFaultAddress is FAR of the trap.
	FrameFaultAddress = 34

	// FrameTxCtxFlags holds TxCtx* flags.
	FrameTxCtxFlags = 35

	// FrameEL is non-zero while the frame describes a kernel context.
	FrameEL = 36

	// NumFrameWords is the number of words in a Register Frame.
	NumFrameWords = 37
)

// NumGPRegs is the number of general purpose registers, X0..X30.
const NumGPRegs = 31

// TxCtxFPSIMDSaved is set in FrameTxCtxFlags when FPSIMD state was saved for
// the trap.
const TxCtxFPSIMDSaved = 1 << 0

// pstateBits is the width of the user-visible flags word within
// FrameESRSPSR.
const pstateBits = 32

// Registers is the Register Frame of a thread: the CPU state saved at its
// most recent trap.
//
// Registers is a value type. Updates that touch more than one word are made
// on a copy that is assigned back in one statement, so a Register Frame is
// never observed partially written.
type Registers [NumFrameWords]uint64

// Pstate returns the user-visible flags word (SPSR).
func (r *Registers) Pstate() uint64 {
	return r[FrameESRSPSR] & bits.LowMask64(pstateBits)
}

// SetPstate replaces the low 32 bits of FrameESRSPSR with those of pstate.
// The kernel-private high bits are never taken from pstate.
func (r *Registers) SetPstate(pstate uint64) {
	r[FrameESRSPSR] = bits.InsertLow64(r[FrameESRSPSR], pstate, pstateBits)
}

// ESR returns the exception syndrome saved with the trap.
func (r *Registers) ESR() uint32 {
	return uint32(r[FrameESRSPSR] >> pstateBits)
}

// FPSIMDSaved returns true if FPSIMD state was saved for the trap.
func (r *Registers) FPSIMDSaved() bool {
	return bits.IsOn64(r[FrameTxCtxFlags], TxCtxFPSIMDSaved)
}

// InKernel returns true if the frame describes a kernel context.
func (r *Registers) InKernel() bool {
	return r[FrameEL] != 0
}

// RegisterName returns the name of Register Frame word i.
func RegisterName(i int) string {
	switch {
	case i >= 0 && i < NumGPRegs:
		return fmt.Sprintf("R%d", i)
	case i == FrameSP:
		return "Sp"
	case i == FrameELR:
		return "Pc"
	case i == FrameESRSPSR:
		return "EsrSpsr"
	case i == FrameFaultAddress:
		return "FaultAddress"
	case i == FrameTxCtxFlags:
		return "TxCtxFlags"
	case i == FrameEL:
		return "EL"
	default:
		return fmt.Sprintf("word%d", i)
	}
}

// String implements fmt.Stringer.
func (r Registers) String() string {
	var b strings.Builder
	for i, v := range r {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%#x", RegisterName(i), v)
	}
	return b.String()
}
