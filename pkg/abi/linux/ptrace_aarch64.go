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

package linux

import (
	"sigframe.dev/sigframe/pkg/hostarch"
)

const (
	//PSR bits
	PSR_MODE_EL0t = 0x00000000
	PSR_MODE_EL1t = 0x00000004
	PSR_MODE_EL1h = 0x00000005
	PSR_MODE_MASK = 0x0000000f

	// AArch32 CPSR bits
	PSR_MODE32_BIT = 0x00000010

	// AArch64 SPSR bits
	PSR_F_BIT      = 0x00000040
	PSR_I_BIT      = 0x00000080
	PSR_A_BIT      = 0x00000100
	PSR_D_BIT      = 0x00000200
	PSR_BTYPE_MASK = 0x00000c00
	PSR_SSBS_BIT   = 0x00001000
	PSR_PAN_BIT    = 0x00400000
	PSR_UAO_BIT    = 0x00800000
	PSR_DIT_BIT    = 0x01000000
	PSR_TCO_BIT    = 0x02000000
	PSR_V_BIT      = 0x10000000
	PSR_C_BIT      = 0x20000000
	PSR_Z_BIT      = 0x40000000
	PSR_N_BIT      = 0x80000000
)

// Register set identifiers for PTRACE_GETREGSET, from
// include/uapi/linux/elf.h.
const (
	NT_PRSTATUS = 1
	NT_PRFPREG  = 2
)

// PtraceRegs is the set of CPU registers exposed by ptrace, struct
// user_pt_regs.
type PtraceRegs struct {
	Regs   [31]uint64
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

// SizeofPtraceRegs is the size of PtraceRegs in bytes.
const SizeofPtraceRegs = 31*8 + 3*8

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (p *PtraceRegs) SizeBytes() int {
	return SizeofPtraceRegs
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (p *PtraceRegs) MarshalBytes(dst []byte) {
	dst = dst[:SizeofPtraceRegs]
	for i, r := range p.Regs {
		hostarch.ByteOrder.PutUint64(dst[8*i:], r)
	}
	hostarch.ByteOrder.PutUint64(dst[248:], p.Sp)
	hostarch.ByteOrder.PutUint64(dst[256:], p.Pc)
	hostarch.ByteOrder.PutUint64(dst[264:], p.Pstate)
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (p *PtraceRegs) UnmarshalBytes(src []byte) {
	src = src[:SizeofPtraceRegs]
	for i := range p.Regs {
		p.Regs[i] = hostarch.ByteOrder.Uint64(src[8*i:])
	}
	p.Sp = hostarch.ByteOrder.Uint64(src[248:])
	p.Pc = hostarch.ByteOrder.Uint64(src[256:])
	p.Pstate = hostarch.ByteOrder.Uint64(src[264:])
}

// UserFPSIMDState is struct user_fpsimd_state, the NT_PRFPREG register set.
type UserFPSIMDState struct {
	// Vregs holds V0..V31, each as a little-endian 16-byte value.
	Vregs    [32][16]byte
	Fpsr     uint32
	Fpcr     uint32
	Reserved [2]uint32
}

// SizeofUserFPSIMDState is the size of UserFPSIMDState in bytes.
const SizeofUserFPSIMDState = 32*16 + 4*4

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (s *UserFPSIMDState) SizeBytes() int {
	return SizeofUserFPSIMDState
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (s *UserFPSIMDState) MarshalBytes(dst []byte) {
	dst = dst[:SizeofUserFPSIMDState]
	for i := range s.Vregs {
		copy(dst[16*i:16*i+16], s.Vregs[i][:])
	}
	hostarch.ByteOrder.PutUint32(dst[512:], s.Fpsr)
	hostarch.ByteOrder.PutUint32(dst[516:], s.Fpcr)
	hostarch.ByteOrder.PutUint32(dst[520:], s.Reserved[0])
	hostarch.ByteOrder.PutUint32(dst[524:], s.Reserved[1])
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (s *UserFPSIMDState) UnmarshalBytes(src []byte) {
	src = src[:SizeofUserFPSIMDState]
	for i := range s.Vregs {
		copy(s.Vregs[i][:], src[16*i:16*i+16])
	}
	s.Fpsr = hostarch.ByteOrder.Uint32(src[512:])
	s.Fpcr = hostarch.ByteOrder.Uint32(src[516:])
	s.Reserved[0] = hostarch.ByteOrder.Uint32(src[520:])
	s.Reserved[1] = hostarch.ByteOrder.Uint32(src[524:])
}
