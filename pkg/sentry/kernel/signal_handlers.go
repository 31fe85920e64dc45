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
	"sync"

	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/errors/linuxerr"
	"sigframe.dev/sigframe/pkg/sentry/arch"
)

// SignalHandlers holds information about signal actions.
type SignalHandlers struct {
	// mu protects actions, as well as the signal state of all tasks and
	// thread groups using this SignalHandlers object.
	mu sync.Mutex

	// actions is the action to be taken upon receiving each signal. A
	// missing entry is SIG_DFL with no flags.
	actions map[linux.Signal]arch.SignalAct
}

// NewSignalHandlers returns a new SignalHandlers specifying all default
// actions.
func NewSignalHandlers() *SignalHandlers {
	return &SignalHandlers{
		actions: make(map[linux.Signal]arch.SignalAct),
	}
}

// Fork returns a copy of sh for a new thread group.
func (sh *SignalHandlers) Fork() *SignalHandlers {
	sh2 := NewSignalHandlers()
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for sig, act := range sh.actions {
		sh2.actions[sig] = act
	}
	return sh2
}

// CopyForExec returns a copy of sh for a thread group that is undergoing an
// execve: handled signals revert to SIG_DFL, ignored signals stay ignored.
func (sh *SignalHandlers) CopyForExec() *SignalHandlers {
	sh2 := NewSignalHandlers()
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for sig, act := range sh.actions {
		if act.Handler == arch.SignalActIgnore {
			sh2.actions[sig] = arch.SignalAct{
				Handler: arch.SignalActIgnore,
			}
		}
	}
	return sh2
}

// IsIgnored returns true if the signal is ignored.
func (sh *SignalHandlers) IsIgnored(sig linux.Signal) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.actions[sig].Handler == arch.SignalActIgnore
}

// Action returns the current action for sig.
func (sh *SignalHandlers) Action(sig linux.Signal) arch.SignalAct {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.actions[sig]
}

// SetAction implements the action-changing half of rt_sigaction(2): it
// installs act for sig and returns the previous action. SIGKILL and SIGSTOP
// cannot be changed, and neither can be blocked while a handler runs.
func (sh *SignalHandlers) SetAction(sig linux.Signal, act arch.SignalAct) (arch.SignalAct, error) {
	if !sig.IsValid() {
		return arch.SignalAct{}, fmt.Errorf("signal %d: %w", sig, linuxerr.EINVAL)
	}
	if linux.UnblockableSignals&linux.SignalSetOf(sig) != 0 {
		return arch.SignalAct{}, fmt.Errorf("cannot change action for %v: %w", sig, linuxerr.EINVAL)
	}
	act.Mask &^= linux.UnblockableSignals

	sh.mu.Lock()
	defer sh.mu.Unlock()
	old := sh.actions[sig]
	sh.actions[sig] = act
	return old, nil
}

// dequeueAction returns the action to take for sig and, for SA_RESETHAND
// actions, resets the disposition to SIG_DFL.
func (sh *SignalHandlers) dequeueAction(sig linux.Signal) arch.SignalAct {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	act := sh.actions[sig]
	if act.IsResetHandler() {
		delete(sh.actions, sig)
	}
	return act
}
