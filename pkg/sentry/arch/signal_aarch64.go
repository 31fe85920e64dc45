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

	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/log"
	"sigframe.dev/sigframe/pkg/ring0"
	"sigframe.dev/sigframe/pkg/sentry/arch/fpu"
	"sigframe.dev/sigframe/pkg/usermem"
)

const (
	// FpsimdMagic is the magic number which is used in fpsimd_context.
	FpsimdMagic = 0x46508001

	// FpsimdContextSize is the size of fpsimd_context.
	FpsimdContextSize = 0x210
)

// Offsets of struct rt_sigframe
// (arch/arm64/kernel/signal.c).
const (
	RtSigframeInfoOffset = 0
	RtSigframeUCOffset   = SignalInfoSize
	RtSigframeSize       = RtSigframeUCOffset + UContext64Size

	// FrameRecordSize is the size of struct frame_record {fp, lr}.
	FrameRecordSize = 16
)

// Offsets of struct ucontext
// (arch/arm64/include/uapi/asm/ucontext.h).
const (
	UCFlagsOffset    = 0
	UCLinkOffset     = 8
	UCStackOffset    = 16
	UCSigmaskOffset  = UCStackOffset + SizeofSignalStack
	UCMContextOffset = UCSigmaskOffset + linux.SignalSetSize + ucSigsetPad + ucAlignPad
	UContext64Size   = UCMContextOffset + SignalContext64Size

	// glibc uses a 1024-bit sigset_t.
	ucSigsetPad = (1024 - 64) / 8

	// sigcontext must be aligned to 16-byte.
	ucAlignPad = 8
)

// Offsets of struct sigcontext
// (arch/arm64/include/uapi/asm/sigcontext.h).
const (
	SCFaultAddrOffset   = 0
	SCRegsOffset        = 8
	SCSpOffset          = SCRegsOffset + NumGPRegs*8
	SCPcOffset          = SCSpOffset + 8
	SCPstateOffset      = SCPcOffset + 8
	SCReservedOffset    = SCPstateOffset + 8 + 8
	SCReservedSize      = 4096
	SignalContext64Size = SCReservedOffset + SCReservedSize
)

// Offsets of struct fpsimd_context.
const (
	FpsimdMagicOffset = 0
	FpsimdSizeOffset  = 4
	FpsimdFpsrOffset  = 8
	FpsimdFpcrOffset  = 12
	FpsimdVregsOffset = 16
)

// FrameField names one field of the signal frame and its location relative
// to the frame base.
type FrameField struct {
	Name   string
	Offset int
	Size   int
}

// FrameLayout lists the fields of the aarch64 rt_sigframe, in address order.
var FrameLayout = []FrameField{
	{"info", RtSigframeInfoOffset, SignalInfoSize},
	{"uc.uc_flags", RtSigframeUCOffset + UCFlagsOffset, 8},
	{"uc.uc_link", RtSigframeUCOffset + UCLinkOffset, 8},
	{"uc.uc_stack", RtSigframeUCOffset + UCStackOffset, SizeofSignalStack},
	{"uc.uc_sigmask", RtSigframeUCOffset + UCSigmaskOffset, linux.SignalSetSize},
	{"uc.uc_mcontext.fault_address", RtSigframeUCOffset + UCMContextOffset + SCFaultAddrOffset, 8},
	{"uc.uc_mcontext.regs", RtSigframeUCOffset + UCMContextOffset + SCRegsOffset, NumGPRegs * 8},
	{"uc.uc_mcontext.sp", RtSigframeUCOffset + UCMContextOffset + SCSpOffset, 8},
	{"uc.uc_mcontext.pc", RtSigframeUCOffset + UCMContextOffset + SCPcOffset, 8},
	{"uc.uc_mcontext.pstate", RtSigframeUCOffset + UCMContextOffset + SCPstateOffset, 8},
	{"uc.uc_mcontext.__reserved", RtSigframeUCOffset + UCMContextOffset + SCReservedOffset, SCReservedSize},
}

// SignalContext64 is equivalent to struct sigcontext, the type passed as the
// second argument to signal handlers set by signal(2).
type SignalContext64 struct {
	FaultAddr uint64
	Regs      [NumGPRegs]uint64
	Sp        uint64
	Pc        uint64
	Pstate    uint64

	// Reserved is the extension record area, __reserved.
	Reserved [SCReservedSize]byte
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (sc *SignalContext64) SizeBytes() int {
	return SignalContext64Size
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (sc *SignalContext64) MarshalBytes(dst []byte) {
	dst = dst[:SignalContext64Size]
	hostarch.ByteOrder.PutUint64(dst[SCFaultAddrOffset:], sc.FaultAddr)
	for i, r := range sc.Regs {
		hostarch.ByteOrder.PutUint64(dst[SCRegsOffset+8*i:], r)
	}
	hostarch.ByteOrder.PutUint64(dst[SCSpOffset:], sc.Sp)
	hostarch.ByteOrder.PutUint64(dst[SCPcOffset:], sc.Pc)
	hostarch.ByteOrder.PutUint64(dst[SCPstateOffset:], sc.Pstate)
	hostarch.ByteOrder.PutUint64(dst[SCPstateOffset+8:], 0)
	copy(dst[SCReservedOffset:], sc.Reserved[:])
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (sc *SignalContext64) UnmarshalBytes(src []byte) {
	src = src[:SignalContext64Size]
	sc.FaultAddr = hostarch.ByteOrder.Uint64(src[SCFaultAddrOffset:])
	for i := range sc.Regs {
		sc.Regs[i] = hostarch.ByteOrder.Uint64(src[SCRegsOffset+8*i:])
	}
	sc.Sp = hostarch.ByteOrder.Uint64(src[SCSpOffset:])
	sc.Pc = hostarch.ByteOrder.Uint64(src[SCPcOffset:])
	sc.Pstate = hostarch.ByteOrder.Uint64(src[SCPstateOffset:])
	copy(sc.Reserved[:], src[SCReservedOffset:])
}

// FpsimdContext is struct fpsimd_context, the FPSIMD extension record.
type FpsimdContext struct {
	Magic uint32
	Size  uint32
	Fpsr  uint32
	Fpcr  uint32
	Vregs [fpu.NumVregs]fpu.Uint128
}

// Fpsimd decodes the first extension record. It returns false unless the
// record carries exactly the FPSIMD magic and size.
func (sc *SignalContext64) Fpsimd() (FpsimdContext, bool) {
	r := sc.Reserved[:]
	fp := FpsimdContext{
		Magic: hostarch.ByteOrder.Uint32(r[FpsimdMagicOffset:]),
		Size:  hostarch.ByteOrder.Uint32(r[FpsimdSizeOffset:]),
	}
	if fp.Magic != FpsimdMagic || fp.Size != FpsimdContextSize {
		return fp, false
	}
	fp.Fpsr = hostarch.ByteOrder.Uint32(r[FpsimdFpsrOffset:])
	fp.Fpcr = hostarch.ByteOrder.Uint32(r[FpsimdFpcrOffset:])
	for i := range fp.Vregs {
		fp.Vregs[i] = fpu.Uint128FromBytes(r[FpsimdVregsOffset+16*i:])
	}
	return fp, true
}

// UContext64 is equivalent to ucontext on arm64(arch/arm64/include/uapi/asm/ucontext.h).
type UContext64 struct {
	Flags    uint64
	Link     uint64
	Stack    SignalStack
	Sigset   linux.SignalSet
	MContext SignalContext64
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (uc *UContext64) SizeBytes() int {
	return UContext64Size
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (uc *UContext64) MarshalBytes(dst []byte) {
	dst = dst[:UContext64Size]
	for i := range dst[:UCMContextOffset] {
		dst[i] = 0
	}
	hostarch.ByteOrder.PutUint64(dst[UCFlagsOffset:], uc.Flags)
	hostarch.ByteOrder.PutUint64(dst[UCLinkOffset:], uc.Link)
	uc.Stack.MarshalBytes(dst[UCStackOffset:])
	hostarch.ByteOrder.PutUint64(dst[UCSigmaskOffset:], uint64(uc.Sigset))
	uc.MContext.MarshalBytes(dst[UCMContextOffset:])
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (uc *UContext64) UnmarshalBytes(src []byte) {
	src = src[:UContext64Size]
	uc.Flags = hostarch.ByteOrder.Uint64(src[UCFlagsOffset:])
	uc.Link = hostarch.ByteOrder.Uint64(src[UCLinkOffset:])
	uc.Stack.UnmarshalBytes(src[UCStackOffset:])
	uc.Sigset = linux.SignalSet(hostarch.ByteOrder.Uint64(src[UCSigmaskOffset:]))
	uc.MContext.UnmarshalBytes(src[UCMContextOffset:])
}

// Stack names the processor whose fault guard covers a signal frame write,
// and the user memory the frame is written to.
type Stack struct {
	// CPU is the processor running the trap path.
	CPU *ring0.CPU

	// IO is the thread's user memory.
	IO usermem.Memory
}

// SignalFrameAddrs returns where SignalSetup places the frame for the given
// stack top: the frame record and the new stack pointer (the frame base).
func SignalFrameAddrs(top hostarch.Addr) (rec, sp hostarch.Addr) {
	rec = (top - FrameRecordSize).AlignDown(hostarch.StackAlignment)
	sp = rec - hostarch.Addr(hostarch.AlignUp(RtSigframeSize, hostarch.StackAlignment))
	return rec, sp
}

// SignalSetup writes an rt_sigframe for signal sig onto the user stack and
// rewrites the Register Frame so that the thread resumes in act's handler.
//
// info is only consulted if act has SA_SIGINFO; a nil info then stores a
// siginfo carrying just sig. The frame goes on the alternate stack alt if
// act asks for it and alt is enabled, else below the current stack pointer.
// A nil alt is a disabled alternate stack. sigset is stored in the frame as
// the mask to restore. The handler returns to act.Restorer if act has one,
// else to trampoline.
//
// Every store happens under a fault guard on st.CPU. If one faults,
// SignalSetup returns an error matching linuxerr.EFAULT and the Register
// Frame is unchanged; stores that completed before the fault remain in
// memory below the live stack.
func (c *Context64) SignalSetup(st *Stack, act *SignalAct, sig linux.Signal, info *SignalInfo, alt *SignalStack, sigset linux.SignalSet, trampoline hostarch.Addr) error {
	if alt == nil {
		alt = &SignalStack{Flags: linux.SS_DISABLE}
	}
	if act.IsSigInfo() && info == nil {
		info = &SignalInfo{Signo: int32(sig)}
	}
	regs := c.Regs

	top := hostarch.Addr(regs[FrameSP])
	if act.IsOnStack() && alt.IsEnabled() {
		top = alt.Top()
	}
	rec, sp := SignalFrameAddrs(top)
	infoAddr := sp + RtSigframeInfoOffset
	ucAddr := sp + RtSigframeUCOffset
	mcAddr := ucAddr + UCMContextOffset

	err := st.CPU.Guarded(func(g *ring0.FaultGuard) error {
		m := st.IO

		// Unwind anchor: the interrupted frame pointer and link register.
		g.StoreUint64(m, rec, regs[FrameX29])
		g.StoreUint64(m, rec+8, regs[FrameX30])

		g.StoreUint64(m, ucAddr+UCFlagsOffset, 0)
		g.StoreUint64(m, ucAddr+UCLinkOffset, 0)
		g.StoreUint64(m, ucAddr+UCStackOffset, alt.Addr)
		g.StoreUint32(m, ucAddr+UCStackOffset+8, alt.Flags)
		g.StoreUint64(m, ucAddr+UCStackOffset+16, alt.Size)
		g.StoreUint64(m, ucAddr+UCSigmaskOffset, uint64(sigset))

		g.StoreUint64(m, mcAddr+SCFaultAddrOffset, regs[FrameFaultAddress])
		for i := 0; i < NumGPRegs; i++ {
			g.StoreUint64(m, mcAddr+SCRegsOffset+hostarch.Addr(8*i), regs[i])
		}
		g.StoreUint64(m, mcAddr+SCSpOffset, regs[FrameSP])
		g.StoreUint64(m, mcAddr+SCPcOffset, regs[FrameELR])
		g.StoreUint64(m, mcAddr+SCPstateOffset, regs.Pstate())

		ext := mcAddr + SCReservedOffset
		if fp, ok := c.FP.Get(); ok && regs.FPSIMDSaved() {
			g.StoreUint32(m, ext+FpsimdMagicOffset, FpsimdMagic)
			g.StoreUint32(m, ext+FpsimdSizeOffset, FpsimdContextSize)
			g.StoreUint32(m, ext+FpsimdFpsrOffset, fp.Fpsr)
			g.StoreUint32(m, ext+FpsimdFpcrOffset, fp.Fpcr)
			var vreg [16]byte
			for i, v := range fp.Vregs {
				v.PutBytes(vreg[:])
				g.StoreBytes(m, ext+FpsimdVregsOffset+hostarch.Addr(16*i), vreg[:])
			}
		} else {
			// Terminates the (empty) extension record list.
			g.StoreUint64(m, ext, 0)
		}

		if act.IsSigInfo() {
			buf := make([]byte, SignalInfoSize)
			info.MarshalBytes(buf)
			g.StoreBytes(m, infoAddr, buf)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing signal frame at %v: %w", sp, err)
	}

	if act.IsSigInfo() {
		regs[FrameX1] = uint64(infoAddr)
		regs[FrameX2] = uint64(ucAddr)
	} else {
		regs[FrameX1] = 0
		regs[FrameX2] = 0
	}
	regs[FrameSP] = uint64(sp)
	regs[FrameEL] = 0
	regs[FrameELR] = act.Handler
	regs[FrameX0] = uint64(sig)
	regs[FrameESRSPSR] &^= linux.PSR_TCO_BIT
	regs[FrameX29] = uint64(rec)
	if act.HasRestorer() {
		regs[FrameX30] = act.Restorer
	} else {
		regs[FrameX30] = uint64(trampoline)
	}
	c.Regs = regs

	if log.IsLogging(log.Debug) {
		log.Debugf("Signal %v: frame at %v (stack top %v), handler %#x, return %#x", sig, sp, top, act.Handler, regs[FrameX30])
	}
	return nil
}

// SignalRestore restores the Register Frame and FPSIMD state from uc, the
// ucontext of a frame written by SignalSetup, and returns the signal mask
// saved in it. The caller must normalize the mask before installing it.
//
// Only the low 32 bits of the saved pstate are taken. The FPSIMD state is
// restored only if the first extension record is an FPSIMD record and
// FPSIMD state is attached to the thread; otherwise it is left as is.
func (c *Context64) SignalRestore(uc *UContext64) linux.SignalSet {
	regs := c.Regs
	mc := &uc.MContext
	copy(regs[:NumGPRegs], mc.Regs[:])
	regs[FrameSP] = mc.Sp
	regs[FrameELR] = mc.Pc
	regs.SetPstate(mc.Pstate)

	if rec, ok := mc.Fpsimd(); ok {
		if fp, ok := c.FP.Get(); ok {
			fp.Fpsr = rec.Fpsr
			fp.Fpcr = rec.Fpcr
			fp.Vregs = rec.Vregs
		}
	}
	c.Regs = regs
	return uc.Sigset
}
