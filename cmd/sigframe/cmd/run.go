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

package cmd

import (
	"errors"
	"fmt"

	"sigframe.dev/sigframe/cmd/sigframe/config"
	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/errors/linuxerr"
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/log"
	"sigframe.dev/sigframe/pkg/marshal"
	"sigframe.dev/sigframe/pkg/marshal/primitive"
	"sigframe.dev/sigframe/pkg/safecopy"
	"sigframe.dev/sigframe/pkg/sentry/arch"
	"sigframe.dev/sigframe/pkg/sentry/arch/fpu"
	"sigframe.dev/sigframe/pkg/sentry/kernel"
	"sigframe.dev/sigframe/pkg/usermem"
)

// run is one scenario loaded into its own thread group.
type run struct {
	s    *config.Scenario
	act  arch.SignalAct
	as   *usermem.AddressSpace
	mem  *usermem.FaultInjector
	task *kernel.Task
}

// newRun maps the scenario's memory, installs its action and creates a task
// on processor slot cpu in the interrupted state.
func newRun(k *kernel.Kernel, s *config.Scenario, cpu int) (*run, error) {
	as := usermem.NewAddressSpace()
	ars, err := s.MappedRanges()
	if err != nil {
		return nil, err
	}
	for _, ar := range ars {
		if err := as.Map(ar); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
	}
	mem := usermem.NewFaultInjector(as, s.FailStore())

	act, err := s.SignalAct()
	if err != nil {
		return nil, err
	}
	sh := kernel.NewSignalHandlers()
	if _, err := sh.SetAction(linux.Signal(s.Signal), act); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	tg := k.NewThreadGroup(mem, hostarch.Addr(s.VDSOBase), sh)

	t, err := k.NewTask(&kernel.TaskConfig{
		ThreadGroup: tg,
		Context:     s.Context(),
		CPU:         cpu,
		SignalMask:  s.SignalMask(),
	})
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	alt, err := s.SignalStack()
	if err != nil {
		return nil, err
	}
	if alt.Flags&linux.SS_DISABLE == 0 {
		if err := t.SetSignalStack(alt); err != nil {
			return nil, fmt.Errorf("scenario %q: sigaltstack: %w", s.Name, err)
		}
	}
	log.Debugf("Scenario %q: %v on CPU %d, %d regions mapped", s.Name, t, cpu, len(ars))
	return &run{s: s, act: act, as: as, mem: mem, task: t}, nil
}

// stackState is the comparable part of a signal stack.
type stackState struct {
	Addr  uint64
	Size  uint64
	Flags uint32
}

// threadState is the thread state that a signal delivery followed by
// rt_sigreturn must preserve.
type threadState struct {
	Regs   arch.Registers
	FPSIMD *fpu.State
	Mask   linux.SignalSet
	Stack  stackState
}

func (r *run) state() threadState {
	c := r.task.Arch()
	st := threadState{
		Regs: c.Regs,
		Mask: r.task.SignalMask(),
	}
	if fp, ok := c.FP.Get(); ok {
		st.FPSIMD = fp.Fork()
	}
	alt := r.task.SignalStack()
	st.Stack = stackState{Addr: alt.Addr, Size: alt.Size, Flags: alt.Flags}
	return st
}

// deliver delivers the scenario's signal. A fault is reported through
// faulted; any other failure is an error.
func (r *run) deliver() (faulted bool, err error) {
	err = r.task.DeliverSignal(r.s.SignalInfo())
	switch {
	case err == nil:
		log.Debugf("Scenario %q: entering handler at %#x", r.s.Name, r.task.Arch().IP())
		return false, nil
	case errors.Is(err, linuxerr.EFAULT):
		var segv safecopy.SegvError
		if errors.As(err, &segv) {
			log.Infof("Scenario %q: frame write faulted at %#x", r.s.Name, segv.Addr)
		}
		return true, nil
	default:
		return false, err
	}
}

// handlerReturn models the handler running to completion: it clobbers the
// registers a handler may freely use, then returns through X30 with SP back
// at the frame base.
func (r *run) handlerReturn() {
	c := r.task.Arch()
	regs := c.Regs
	for i := 0; i < arch.FrameX29; i++ {
		regs[i] = 0x5a5a5a5a_00000000 | uint64(i)
	}
	c.Regs = regs
	c.SetIP(uintptr(regs[arch.FrameX30]))
	if fp, ok := c.FP.Get(); ok {
		for i := range fp.Vregs {
			fp.Vregs[i] = fpu.Uint128{Lo: ^uint64(i), Hi: ^uint64(i)}
		}
		fp.Fpsr = ^fp.Fpsr
		fp.Fpcr = ^fp.Fpcr
	}
	r.task.SetSignalMask(^linux.SignalSet(0))
}

// frame is a signal frame decoded from memory.
type frame struct {
	Base hostarch.Addr
	Info *arch.SignalInfo
	UC   arch.UContext64

	// FP and LR are the frame record above the frame.
	FP uint64
	LR uint64
}

// readFrame decodes the frame at the task's current stack pointer.
func (r *run) readFrame() (*frame, error) {
	base := hostarch.Addr(r.task.Arch().Stack())
	io := usermem.IO{Memory: r.as}
	f := &frame{Base: base}
	if _, err := marshal.CopyIn(io, base+arch.RtSigframeUCOffset, &f.UC); err != nil {
		return nil, fmt.Errorf("reading ucontext: %w", err)
	}
	rec := base + hostarch.Addr(hostarch.AlignUp(arch.RtSigframeSize, hostarch.StackAlignment))
	var err error
	if f.FP, err = primitive.CopyUint64In(io, rec); err != nil {
		return nil, fmt.Errorf("reading frame record: %w", err)
	}
	if f.LR, err = primitive.CopyUint64In(io, rec+8); err != nil {
		return nil, fmt.Errorf("reading frame record: %w", err)
	}
	if r.act.IsSigInfo() {
		f.Info = &arch.SignalInfo{}
		if _, err := marshal.CopyIn(io, base+arch.RtSigframeInfoOffset, f.Info); err != nil {
			return nil, fmt.Errorf("reading siginfo: %w", err)
		}
	}
	return f, nil
}
