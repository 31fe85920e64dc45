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

// Package kernel provides the thread and process state that signal
// delivery consumes: tasks, thread groups, their signal handlers and
// signal stacks, and the processors they trap on.
//
// Lock order:
//
//	Kernel.mu
//	  ThreadGroup.mu
//	    SignalHandlers.mu
package kernel

import (
	"fmt"
	"sync"

	"sigframe.dev/sigframe/pkg/errors/linuxerr"
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/ring0"
	"sigframe.dev/sigframe/pkg/usermem"
)

// ThreadID is a thread identifier.
type ThreadID int32

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// MaxCPUs is the number of processor slots. Each slot runs at most one
	// trap path at a time.
	MaxCPUs int
}

// Kernel represents an emulated Linux kernel. It must be initialized by
// calling Init.
type Kernel struct {
	// cpus is the per-CPU table. It is sized by Init and immutable
	// afterwards.
	cpus ring0.Kernel

	// mu protects the fields below.
	mu sync.Mutex

	// lastTID is the most recently allocated thread ID.
	lastTID ThreadID

	// tasks maps thread IDs to live tasks.
	tasks map[ThreadID]*Task
}

// Init initializes a Kernel with no tasks.
func (k *Kernel) Init(args InitKernelArgs) error {
	if args.MaxCPUs <= 0 {
		return fmt.Errorf("MaxCPUs (%d) must be positive: %w", args.MaxCPUs, linuxerr.EINVAL)
	}
	k.cpus.Init(args.MaxCPUs)
	k.tasks = make(map[ThreadID]*Task)
	return nil
}

// NumCPUs returns the number of processor slots.
func (k *Kernel) NumCPUs() int {
	return k.cpus.NumCPUs()
}

// CPU returns processor slot id.
func (k *Kernel) CPU(id int) *ring0.CPU {
	return k.cpus.CPU(id)
}

// TaskWithID returns the task with thread ID tid, or nil.
func (k *Kernel) TaskWithID(tid ThreadID) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tasks[tid]
}

// NewThreadGroup returns a thread group with no tasks, running in mem, with
// the vDSO mapped at vdsoBase. If sh is nil, the group starts with default
// dispositions for every signal.
func (k *Kernel) NewThreadGroup(mem usermem.Memory, vdsoBase hostarch.Addr, sh *SignalHandlers) *ThreadGroup {
	if sh == nil {
		sh = NewSignalHandlers()
	}
	return &ThreadGroup{
		k:              k,
		mem:            mem,
		vdsoBase:       vdsoBase,
		signalHandlers: sh,
	}
}
