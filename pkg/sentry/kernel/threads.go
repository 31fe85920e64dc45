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
	"sync"

	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/usermem"
)

// ThreadGroup is the set of threads of one process. They share an address
// space, a vDSO mapping and signal dispositions.
type ThreadGroup struct {
	k *Kernel

	// mem is the process address space. It is immutable.
	mem usermem.Memory

	// vdsoBase is the address the vDSO image is mapped at. It is immutable.
	vdsoBase hostarch.Addr

	// signalHandlers is the set of signal handlers used by every task in
	// this group. It is immutable.
	signalHandlers *SignalHandlers

	// mu protects tasks.
	mu sync.Mutex

	// tasks is the set of tasks in the group, in creation order.
	tasks []*Task
}

// Kernel returns the kernel the group belongs to.
func (tg *ThreadGroup) Kernel() *Kernel {
	return tg.k
}

// Memory returns the group's address space.
func (tg *ThreadGroup) Memory() usermem.Memory {
	return tg.mem
}

// VDSOBase returns the address the vDSO is mapped at.
func (tg *ThreadGroup) VDSOBase() hostarch.Addr {
	return tg.vdsoBase
}

// SignalHandlers returns the signal handlers used by tg.
func (tg *ThreadGroup) SignalHandlers() *SignalHandlers {
	return tg.signalHandlers
}

// Tasks returns a snapshot of the tasks in the group.
func (tg *ThreadGroup) Tasks() []*Task {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return append([]*Task(nil), tg.tasks...)
}
