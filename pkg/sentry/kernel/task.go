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

	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/errors/linuxerr"
	"sigframe.dev/sigframe/pkg/ring0"
	"sigframe.dev/sigframe/pkg/sentry/arch"
)

// Task represents a thread of execution in the untrusted app.
//
// Except where noted, a Task's state is exclusive to its own trap path:
// it is touched only by the processor the task is currently running on.
type Task struct {
	k  *Kernel
	tg *ThreadGroup

	// tid is the task's thread ID. It is immutable.
	tid ThreadID

	// cpu is the processor the task traps on. It changes only through
	// Migrate.
	cpu *ring0.CPU

	// arch is the task's register frame and FPSIMD state.
	arch *arch.Context64

	// signalMask is the set of signals whose delivery is currently
	// blocked. It never contains SIGKILL or SIGSTOP.
	signalMask linux.SignalSet

	// signalStack is the alternate signal stack used by signal handlers for
	// which the SA_ONSTACK flag is set.
	signalStack arch.SignalStack
}

// TaskConfig defines the configuration of a new Task (see below).
type TaskConfig struct {
	// ThreadGroup is the ThreadGroup the new task joins.
	ThreadGroup *ThreadGroup

	// Context is the register state of the new task. If nil, the task
	// starts with a zeroed register frame.
	Context *arch.Context64

	// CPU is the processor slot the task initially runs on.
	CPU int

	// SignalMask is the new task's initial signal mask.
	SignalMask linux.SignalSet
}

// NewTask creates a new task defined by cfg.
func (k *Kernel) NewTask(cfg *TaskConfig) (*Task, error) {
	if cfg.ThreadGroup == nil || cfg.ThreadGroup.k != k {
		return nil, fmt.Errorf("task must join a thread group of this kernel: %w", linuxerr.EINVAL)
	}
	if cfg.CPU < 0 || cfg.CPU >= k.NumCPUs() {
		return nil, fmt.Errorf("CPU %d out of range [0, %d): %w", cfg.CPU, k.NumCPUs(), linuxerr.EINVAL)
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = arch.New()
	}
	t := &Task{
		k:           k,
		tg:          cfg.ThreadGroup,
		cpu:         k.CPU(cfg.CPU),
		arch:        ctx,
		signalMask:  NormalizeSignalMask(cfg.SignalMask),
		signalStack: arch.SignalStack{Flags: linux.SS_DISABLE},
	}

	k.mu.Lock()
	k.lastTID++
	t.tid = k.lastTID
	k.tasks[t.tid] = t
	k.mu.Unlock()

	t.tg.mu.Lock()
	t.tg.tasks = append(t.tg.tasks, t)
	t.tg.mu.Unlock()
	return t, nil
}

// ThreadID returns t's thread ID.
func (t *Task) ThreadID() ThreadID {
	return t.tid
}

// ThreadGroup returns the thread group containing t.
func (t *Task) ThreadGroup() *ThreadGroup {
	return t.tg
}

// Kernel returns the Kernel containing t.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// Arch returns t's register state.
func (t *Task) Arch() *arch.Context64 {
	return t.arch
}

// CPU returns the processor t runs on.
func (t *Task) CPU() *ring0.CPU {
	return t.cpu
}

// Migrate moves t to processor slot id.
//
// Preconditions: t is not inside a fault guard.
func (t *Task) Migrate(id int) {
	if t.cpu.InGuard() {
		panic(fmt.Sprintf("task %d migrated while guarded on CPU %d", t.tid, t.cpu.ID()))
	}
	t.cpu = t.k.CPU(id)
}

// String implements fmt.Stringer.
func (t *Task) String() string {
	return fmt.Sprintf("task %d", t.tid)
}
