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
	"io"

	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/errors/linuxerr"
	"sigframe.dev/sigframe/pkg/marshal"
)

var registersSize = (*linux.PtraceRegs)(nil).SizeBytes()

// PtraceRegs returns the general register snapshot: X0..X30, SP, PC and the
// low 32 bits of the flags word.
func (s *State) PtraceRegs() linux.PtraceRegs {
	var regs linux.PtraceRegs
	copy(regs.Regs[:], s.Regs[:NumGPRegs])
	regs.Sp = s.Regs[FrameSP]
	regs.Pc = s.Regs[FrameELR]
	regs.Pstate = s.Regs.Pstate()
	return regs
}

// PtraceGetRegs writes the general register snapshot to dst.
func (s *State) PtraceGetRegs(dst io.Writer) (int, error) {
	regs := s.PtraceRegs()
	return marshal.WriteTo(dst, &regs)
}

// PtraceSetRegs replaces X0..X30, SP and PC with a snapshot read from src.
// Only the low 32 bits of the flags word are taken, and only EL0 AArch64
// modes are accepted.
func (s *State) PtraceSetRegs(src io.Reader) (int, error) {
	var regs linux.PtraceRegs
	n, err := marshal.ReadFrom(src, &regs)
	if err != nil {
		return n, err
	}
	if regs.Pstate&(linux.PSR_MODE_MASK|linux.PSR_MODE32_BIT) != linux.PSR_MODE_EL0t {
		return 0, fmt.Errorf("pstate %#x: %w", regs.Pstate, linuxerr.EINVAL)
	}
	r := s.Regs
	copy(r[:NumGPRegs], regs.Regs[:])
	r[FrameSP] = regs.Sp
	r[FrameELR] = regs.Pc
	r.SetPstate(regs.Pstate)
	s.Regs = r
	return n, nil
}

// FPRegsSize returns the size of the FPSIMD register snapshot,
// struct user_fpsimd_state.
func (s *State) FPRegsSize() int {
	return linux.SizeofUserFPSIMDState
}

// FPRegs returns the FPSIMD register snapshot. It is zero-filled if no
// FPSIMD state is attached.
func (s *State) FPRegs() linux.UserFPSIMDState {
	var out linux.UserFPSIMDState
	fp, ok := s.FP.Get()
	if !ok {
		return out
	}
	for i, v := range fp.Vregs {
		v.PutBytes(out.Vregs[i][:])
	}
	out.Fpsr = fp.Fpsr
	out.Fpcr = fp.Fpcr
	return out
}

// PtraceGetFPRegs writes the FPSIMD register snapshot to dst.
func (s *State) PtraceGetFPRegs(dst io.Writer) (int, error) {
	fp := s.FPRegs()
	return marshal.WriteTo(dst, &fp)
}

// PtraceGetRegSet implements PTRACE_GETREGSET for NT_PRSTATUS and
// NT_PRFPREG.
func (s *State) PtraceGetRegSet(regset uintptr, dst io.Writer, maxlen int) (int, error) {
	switch regset {
	case linux.NT_PRSTATUS:
		if maxlen < registersSize {
			return 0, linuxerr.EFAULT
		}
		return s.PtraceGetRegs(dst)
	case linux.NT_PRFPREG:
		if maxlen < s.FPRegsSize() {
			return 0, linuxerr.EFAULT
		}
		return s.PtraceGetFPRegs(dst)
	default:
		return 0, linuxerr.EINVAL
	}
}

// RegisterMap returns a map of all registers.
func (s *State) RegisterMap() (map[string]uintptr, error) {
	regs := s.PtraceRegs()
	m := make(map[string]uintptr, NumGPRegs+3)
	for i, r := range regs.Regs {
		m[RegisterName(i)] = uintptr(r)
	}
	m["Sp"] = uintptr(regs.Sp)
	m["Pc"] = uintptr(regs.Pc)
	m["Pstate"] = uintptr(regs.Pstate)
	return m, nil
}
