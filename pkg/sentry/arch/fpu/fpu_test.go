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

package fpu

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSlotLifecycle(t *testing.T) {
	var s Slot
	if _, ok := s.Get(); ok {
		t.Fatalf("zero Slot has state")
	}
	st := s.Attach()
	st.Fpsr = 0x10
	if again := s.Attach(); again != st {
		t.Errorf("Attach created a second state")
	}
	got, ok := s.Get()
	if !ok || got.Fpsr != 0x10 {
		t.Errorf("Get = (%+v, %t), wanted attached state", got, ok)
	}
	s.Discard()
	if _, ok := s.Get(); ok {
		t.Errorf("state survived Discard")
	}
}

func TestSlotForkIsIndependent(t *testing.T) {
	var s Slot
	s.Attach().Vregs[3] = Uint128{Lo: 1, Hi: 2}
	f := s.Fork()
	fs, _ := f.Get()
	fs.Vregs[3].Lo = 99

	orig, _ := s.Get()
	if orig.Vregs[3].Lo != 1 {
		t.Errorf("fork aliases the original: Lo = %d", orig.Vregs[3].Lo)
	}
	var empty Slot
	ef := empty.Fork()
	if _, ok := ef.Get(); ok {
		t.Errorf("fork of an empty slot has state")
	}
}

func TestVregsBytes(t *testing.T) {
	var s State
	for i := range s.Vregs {
		s.Vregs[i] = Uint128{Lo: uint64(i), Hi: ^uint64(i)}
	}
	buf := s.VregsBytes()
	if len(buf) != VregsSize {
		t.Fatalf("len = %d, wanted %d", len(buf), VregsSize)
	}
	if buf[16*5] != 5 || buf[16*5+8] != ^byte(5) {
		t.Errorf("vreg 5 encoded as % x", buf[16*5:16*6])
	}
	var back State
	back.SetVregsBytes(buf)
	if diff := cmp.Diff(s, back); diff != "" {
		t.Errorf("SetVregsBytes mismatch (-want +got):\n%s", diff)
	}
}
