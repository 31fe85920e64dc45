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

package kernel

import (
	"fmt"
	"time"

	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/errors/linuxerr"
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/log"
	"sigframe.dev/sigframe/pkg/metric"
	"sigframe.dev/sigframe/pkg/ring0"
	"sigframe.dev/sigframe/pkg/sentry/arch"
)

var (
	framesBuilt     = metric.MustCreateNewUint64Metric("/signal/frames_built", "Number of signal frames written to user stacks.")
	frameFaults     = metric.MustCreateNewUint64Metric("/signal/frame_faults", "Number of signal deliveries that faulted while writing the frame.")
	sigreturns      = metric.MustCreateNewUint64Metric("/signal/sigreturns", "Number of successful rt_sigreturn calls.")
	sigreturnFaults = metric.MustCreateNewUint64Metric("/signal/sigreturn_faults", "Number of rt_sigreturn calls that faulted reading the frame.")
)

// faultLog reports frame faults. A guest can fault on every delivery, so
// warnings are rate limited.
var faultLog = log.BasicRateLimitedLogger(time.Second)

// NormalizeSignalMask returns m with the signals that can never be blocked
// removed.
func NormalizeSignalMask(m linux.SignalSet) linux.SignalSet {
	return m &^ linux.UnblockableSignals
}

// SignalMask returns a copy of t's signal mask.
func (t *Task) SignalMask() linux.SignalSet {
	return t.signalMask
}

// SetSignalMask sets t's signal mask. SIGKILL and SIGSTOP are silently
// dropped from mask.
func (t *Task) SetSignalMask(mask linux.SignalSet) {
	t.signalMask = NormalizeSignalMask(mask)
}

// onSignalStack returns true if the task is executing on the given signal
// stack.
func (t *Task) onSignalStack(alt arch.SignalStack) bool {
	sp := hostarch.Addr(t.arch.Stack())
	return alt.Contains(sp)
}

// SignalStack returns the task-specific alternate signal stack, as returned
// by sigaltstack(2): SS_ONSTACK is set while the task runs on it.
func (t *Task) SignalStack() arch.SignalStack {
	alt := t.signalStack
	if t.onSignalStack(alt) {
		alt.Flags |= linux.SS_ONSTACK
	}
	return alt
}

// SetSignalStack sets the task-specific alternate signal stack, as
// sigaltstack(2) does. The stack cannot be changed while the task runs on
// it.
func (t *Task) SetSignalStack(alt arch.SignalStack) error {
	if t.onSignalStack(t.signalStack) {
		return fmt.Errorf("changing signal stack while on it: %w", linuxerr.EPERM)
	}
	mode := alt.Flags &^ linux.SS_FLAG_BITS
	switch mode {
	case 0, linux.SS_ONSTACK:
	case linux.SS_DISABLE:
		t.signalStack = arch.SignalStack{Flags: linux.SS_DISABLE}
		return nil
	default:
		return fmt.Errorf("signal stack flags %#x: %w", alt.Flags, linuxerr.EINVAL)
	}
	if alt.Size < linux.MINSIGSTKSZ {
		return fmt.Errorf("signal stack size %d below %d: %w", alt.Size, linux.MINSIGSTKSZ, linuxerr.ENOMEM)
	}
	alt.Flags &^= linux.SS_ONSTACK
	t.signalStack = alt
	return nil
}

// DeliverSignal runs the handler installed for info's signal: it writes a
// signal frame to t's stack and redirects t to the handler, then blocks the
// action's mask (and the signal itself, unless SA_NODEFER) for the duration
// of the handler.
//
// Which signal to deliver and when is decided by the caller. If writing the
// frame faults, DeliverSignal returns an error satisfying
// errors.Is(err, linuxerr.EFAULT), t's registers are unchanged, and the
// caller is expected to force SIGSEGV.
func (t *Task) DeliverSignal(info *arch.SignalInfo) error {
	sig := info.Signal()
	if !sig.IsValid() {
		return fmt.Errorf("deliver signal %d: %w", info.Signo, linuxerr.EINVAL)
	}
	act := t.tg.signalHandlers.dequeueAction(sig)
	if !act.HasHandler() {
		return fmt.Errorf("deliver %v: no handler installed: %w", sig, linuxerr.EINVAL)
	}
	return t.deliverSignalToHandler(sig, info, act)
}

func (t *Task) deliverSignalToHandler(sig linux.Signal, info *arch.SignalInfo, act arch.SignalAct) error {
	alt := t.SignalStack()
	// A handler interrupted on the alternate stack keeps nesting on it,
	// below the current stack pointer.
	onStack := alt.Flags&linux.SS_ONSTACK != 0
	if onStack {
		act.Flags &^= linux.SA_ONSTACK
	}

	mask := t.signalMask
	st := &arch.Stack{CPU: t.cpu, IO: t.tg.mem}
	if err := t.arch.SignalSetup(st, &act, sig, info, &alt, mask, t.tg.SigreturnTrampoline()); err != nil {
		frameFaults.Increment()
		faultLog.Warningf("%v: delivering %v: %v", t, sig, err)
		return err
	}
	framesBuilt.Increment()

	if act.IsOnStack() && alt.IsEnabled() && alt.Flags&linux.SS_AUTODISARM != 0 {
		t.signalStack = arch.SignalStack{Flags: linux.SS_DISABLE}
	}

	newMask := mask | act.Mask
	if !act.IsNoDefer() {
		newMask |= linux.SignalSetOf(sig)
	}
	t.SetSignalMask(newMask)
	return nil
}

// SignalReturn implements rt_sigreturn(2). The signal frame is expected at
// the current stack pointer, where the handler's return lands after the
// frame written by DeliverSignal.
//
// If the frame cannot be read, SignalReturn returns an error satisfying
// errors.Is(err, linuxerr.EFAULT), t's state is unchanged, and the caller is
// expected to force SIGSEGV.
func (t *Task) SignalReturn() error {
	ucAddr := hostarch.Addr(t.arch.Stack()) + arch.RtSigframeUCOffset

	var uc arch.UContext64
	buf := make([]byte, uc.SizeBytes())
	err := t.cpu.Guarded(func(g *ring0.FaultGuard) error {
		g.LoadBytes(t.tg.mem, ucAddr, buf)
		return nil
	})
	if err != nil {
		sigreturnFaults.Increment()
		faultLog.Warningf("%v: rt_sigreturn: %v", t, err)
		return fmt.Errorf("reading signal frame at %v: %w", ucAddr, err)
	}
	uc.UnmarshalBytes(buf)

	mask := t.arch.SignalRestore(&uc)
	t.SetSignalMask(mask)

	// A saved stack that cannot be installed leaves the current one as is.
	if err := t.SetSignalStack(uc.Stack); err != nil && log.IsLogging(log.Debug) {
		log.Debugf("%v: rt_sigreturn: keeping signal stack: %v", t, err)
	}
	sigreturns.Increment()
	return nil
}
