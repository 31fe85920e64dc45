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
	"errors"
	"testing"

	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/errors/linuxerr"
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/sentry/arch"
	"sigframe.dev/sigframe/pkg/usermem"
)

const (
	stackStart = hostarch.Addr(0x7000_0000)
	stackEnd   = hostarch.Addr(0x7001_0000)
	altStart   = hostarch.Addr(0x6000_0000)
	altEnd     = hostarch.Addr(0x6000_4000)
	vdsoBase   = hostarch.Addr(0xffff_0000_0000)
)

type testEnv struct {
	k  *Kernel
	as *usermem.AddressSpace
	tg *ThreadGroup
	t  *Task
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	var k Kernel
	if err := k.Init(InitKernelArgs{MaxCPUs: 2}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	as := usermem.NewAddressSpace()
	for _, ar := range []hostarch.AddrRange{
		{Start: stackStart, End: stackEnd},
		{Start: altStart, End: altEnd},
	} {
		if err := as.Map(ar); err != nil {
			t.Fatalf("Map(%v): %v", ar, err)
		}
	}
	tg := k.NewThreadGroup(as, vdsoBase, nil)
	task, err := k.NewTask(&TaskConfig{ThreadGroup: tg, CPU: 1})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	return &testEnv{k: &k, as: as, tg: tg, t: task}
}

func TestInitRejectsNoCPUs(t *testing.T) {
	var k Kernel
	if err := k.Init(InitKernelArgs{}); !errors.Is(err, linuxerr.EINVAL) {
		t.Errorf("Init with no CPUs = %v, want EINVAL", err)
	}
}

func TestNewTask(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.k.NewTask(&TaskConfig{ThreadGroup: env.tg, CPU: 2}); !errors.Is(err, linuxerr.EINVAL) {
		t.Errorf("NewTask on CPU 2 of 2 = %v, want EINVAL", err)
	}
	var other Kernel
	if err := other.Init(InitKernelArgs{MaxCPUs: 1}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := other.NewTask(&TaskConfig{ThreadGroup: env.tg}); !errors.Is(err, linuxerr.EINVAL) {
		t.Errorf("NewTask with foreign thread group = %v, want EINVAL", err)
	}

	t2, err := env.k.NewTask(&TaskConfig{
		ThreadGroup: env.tg,
		SignalMask:  linux.MakeSignalSet(linux.SIGKILL, linux.SIGUSR1),
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if t2.ThreadID() == env.t.ThreadID() {
		t.Errorf("duplicate thread ID %d", t2.ThreadID())
	}
	if got := env.k.TaskWithID(t2.ThreadID()); got != t2 {
		t.Errorf("TaskWithID(%d) = %v, want %v", t2.ThreadID(), got, t2)
	}
	if got, want := t2.SignalMask(), linux.SignalSetOf(linux.SIGUSR1); got != want {
		t.Errorf("initial mask = %v, want %v", got, want)
	}
	if got := len(env.tg.Tasks()); got != 2 {
		t.Errorf("thread group has %d tasks, want 2", got)
	}
	if t2.CPU().ID() != 0 {
		t.Errorf("task on CPU %d, want 0", t2.CPU().ID())
	}
	t2.Migrate(1)
	if t2.CPU() != env.k.CPU(1) {
		t.Errorf("Migrate(1) left task on CPU %d", t2.CPU().ID())
	}
}

func TestSigreturnTrampoline(t *testing.T) {
	env := newTestEnv(t)
	if got, want := env.tg.SigreturnTrampoline(), vdsoBase+0x80c; got != want {
		t.Errorf("SigreturnTrampoline() = %v, want %v", got, want)
	}
}

func TestNormalizeSignalMask(t *testing.T) {
	all := ^linux.SignalSet(0)
	got := NormalizeSignalMask(all)
	if got&linux.SignalSetOf(linux.SIGKILL) != 0 || got&linux.SignalSetOf(linux.SIGSTOP) != 0 {
		t.Errorf("NormalizeSignalMask(all) = %v still blocks SIGKILL or SIGSTOP", got)
	}
	if want := all &^ linux.MakeSignalSet(linux.SIGKILL, linux.SIGSTOP); got != want {
		t.Errorf("NormalizeSignalMask(all) = %v, want %v", got, want)
	}
}

func TestSetAction(t *testing.T) {
	sh := NewSignalHandlers()
	for _, sig := range []linux.Signal{linux.SIGKILL, linux.SIGSTOP, 0, 65} {
		if _, err := sh.SetAction(sig, arch.SignalAct{Handler: 0x1000}); !errors.Is(err, linuxerr.EINVAL) {
			t.Errorf("SetAction(%v) = %v, want EINVAL", sig, err)
		}
	}

	act := arch.SignalAct{Handler: 0x1000, Mask: linux.MakeSignalSet(linux.SIGKILL, linux.SIGUSR2)}
	if _, err := sh.SetAction(linux.SIGUSR1, act); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	got := sh.Action(linux.SIGUSR1)
	if want := linux.SignalSetOf(linux.SIGUSR2); got.Mask != want {
		t.Errorf("installed mask = %v, want %v", got.Mask, want)
	}
	old, err := sh.SetAction(linux.SIGUSR1, arch.SignalAct{Handler: arch.SignalActIgnore})
	if err != nil || old.Handler != 0x1000 {
		t.Errorf("SetAction returned (%+v, %v), want old handler 0x1000", old, err)
	}
	if !sh.IsIgnored(linux.SIGUSR1) {
		t.Errorf("SIGUSR1 not ignored")
	}

	if _, err := sh.SetAction(linux.SIGUSR2, arch.SignalAct{Handler: 0x2000}); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	fork := sh.Fork()
	if fork.Action(linux.SIGUSR2).Handler != 0x2000 {
		t.Errorf("Fork lost the SIGUSR2 handler")
	}
	exec := sh.CopyForExec()
	if exec.Action(linux.SIGUSR2).Handler != arch.SignalActDefault || !exec.IsIgnored(linux.SIGUSR1) {
		t.Errorf("CopyForExec: SIGUSR2 %+v, SIGUSR1 ignored %t", exec.Action(linux.SIGUSR2), exec.IsIgnored(linux.SIGUSR1))
	}
}

func TestSetSignalStack(t *testing.T) {
	env := newTestEnv(t)
	task := env.t
	task.Arch().SetStack(uintptr(stackEnd - 0x100))

	for _, tc := range []struct {
		name string
		alt  arch.SignalStack
		want error
	}{
		{"bad flags", arch.SignalStack{Addr: uint64(altStart), Size: uint64(altEnd - altStart), Flags: 4}, linuxerr.EINVAL},
		{"too small", arch.SignalStack{Addr: uint64(altStart), Size: linux.MINSIGSTKSZ - 1}, linuxerr.ENOMEM},
		{"ok", arch.SignalStack{Addr: uint64(altStart), Size: uint64(altEnd - altStart)}, nil},
		{"autodisarm", arch.SignalStack{Addr: uint64(altStart), Size: uint64(altEnd - altStart), Flags: linux.SS_AUTODISARM}, nil},
		{"disable", arch.SignalStack{Flags: linux.SS_DISABLE}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := task.SetSignalStack(tc.alt)
			if tc.want == nil && err != nil || tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("SetSignalStack(%+v) = %v, want %v", tc.alt, err, tc.want)
			}
		})
	}

	if err := task.SetSignalStack(arch.SignalStack{Addr: uint64(altStart), Size: uint64(altEnd - altStart)}); err != nil {
		t.Fatalf("SetSignalStack: %v", err)
	}
	task.Arch().SetStack(uintptr(altEnd - 0x10))
	if got := task.SignalStack(); got.Flags&linux.SS_ONSTACK == 0 {
		t.Errorf("SignalStack() = %+v, want SS_ONSTACK while on it", got)
	}
	if err := task.SetSignalStack(arch.SignalStack{Flags: linux.SS_DISABLE}); !errors.Is(err, linuxerr.EPERM) {
		t.Errorf("SetSignalStack while on it = %v, want EPERM", err)
	}
}
