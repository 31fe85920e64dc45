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
	"testing"

	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/marshal"
)

func TestSignalInfoFields(t *testing.T) {
	var info SignalInfo
	info.Signo = int32(linux.SIGCHLD)
	info.SetPID(123)
	info.SetUID(1000)
	info.SetStatus(7)
	if info.PID() != 123 || info.UID() != 1000 || info.Status() != 7 {
		t.Errorf("pid, uid, status = %d, %d, %d", info.PID(), info.UID(), info.Status())
	}
	info.SetSigval(0xabcdef)
	if info.Sigval() != 0xabcdef {
		t.Errorf("Sigval() = %#x", info.Sigval())
	}
	info.SetAddr(0x1000)
	if info.Addr() != 0x1000 {
		t.Errorf("Addr() = %#x", info.Addr())
	}
	if info.Signal() != linux.SIGCHLD {
		t.Errorf("Signal() = %v", info.Signal())
	}

	b := marshal.Marshal(&info)
	if len(b) != SignalInfoSize {
		t.Fatalf("marshalled siginfo is %d bytes, want %d", len(b), SignalInfoSize)
	}
	if got := hostarch.ByteOrder.Uint64(b[16:]); got != 0x1000 {
		t.Errorf("si_addr at offset 16 = %#x, want 0x1000", got)
	}
	var back SignalInfo
	back.UnmarshalBytes(b)
	if back != info {
		t.Errorf("unmarshal(marshal(info)) = %v, want %v", &back, &info)
	}
}

func TestSignalStack(t *testing.T) {
	s := SignalStack{Addr: 0x1000, Size: 0x2000}
	for _, tc := range []struct {
		sp   hostarch.Addr
		want bool
	}{
		{0x1000, false},
		{0x1001, true},
		{0x3000, true},
		{0x3001, false},
	} {
		if got := s.Contains(tc.sp); got != tc.want {
			t.Errorf("Contains(%v) = %t, want %t", tc.sp, got, tc.want)
		}
	}
	if s.Top() != 0x3000 {
		t.Errorf("Top() = %v", s.Top())
	}
	if !s.IsEnabled() {
		t.Errorf("stack not enabled")
	}
	s.SetOnStack()
	if s.Flags != linux.SS_ONSTACK || !s.IsEnabled() {
		t.Errorf("SetOnStack: flags %#x, enabled %t", s.Flags, s.IsEnabled())
	}
	for _, d := range []SignalStack{{Addr: 0x1000, Size: 0x2000, Flags: linux.SS_DISABLE}, {Addr: 0x1000}} {
		if d.IsEnabled() {
			t.Errorf("%+v reported enabled", d)
		}
	}
}

func TestSignalActPredicates(t *testing.T) {
	act := SignalAct{
		Handler: 0x1000,
		Flags:   linux.SA_SIGINFO | linux.SA_ONSTACK | linux.SA_RESTORER | linux.SA_NODEFER | linux.SA_RESETHAND,
	}
	if !act.IsSigInfo() || !act.IsOnStack() || !act.HasRestorer() || !act.IsNoDefer() || !act.IsResetHandler() || !act.HasHandler() {
		t.Errorf("predicates wrong for %+v", act)
	}
	var none SignalAct
	if none.IsSigInfo() || none.IsOnStack() || none.HasRestorer() || none.HasHandler() {
		t.Errorf("predicates wrong for zero action")
	}
	if (SignalAct{Handler: SignalActIgnore}).HasHandler() {
		t.Errorf("SIG_IGN reported as a handler")
	}
}
