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
	"strings"
	"testing"
)

func TestPstateKeepsESR(t *testing.T) {
	var r Registers
	r[FrameESRSPSR] = 0x9200_0047<<32 | 0x8000_0000
	r.SetPstate(0xffff_ffff_6000_03c0)
	if got, want := r[FrameESRSPSR], uint64(0x9200_0047<<32|0x6000_03c0); got != want {
		t.Errorf("FrameESRSPSR = %#x, want %#x", got, want)
	}
	if got := r.Pstate(); got != 0x6000_03c0 {
		t.Errorf("Pstate() = %#x, want 0x600003c0", got)
	}
	if got := r.ESR(); got != 0x9200_0047 {
		t.Errorf("ESR() = %#x, want 0x92000047", got)
	}
}

func TestFrameFlags(t *testing.T) {
	var r Registers
	if r.FPSIMDSaved() || r.InKernel() {
		t.Errorf("zero frame reports FPSIMD saved or kernel mode")
	}
	r[FrameTxCtxFlags] = TxCtxFPSIMDSaved
	r[FrameEL] = 1
	if !r.FPSIMDSaved() || !r.InKernel() {
		t.Errorf("flags not reported: %v", r)
	}
}

func TestRegisterName(t *testing.T) {
	for i, want := range map[int]string{
		0:                 "R0",
		30:                "R30",
		FrameSP:           "Sp",
		FrameELR:          "Pc",
		FrameESRSPSR:      "EsrSpsr",
		FrameFaultAddress: "FaultAddress",
		FrameTxCtxFlags:   "TxCtxFlags",
		FrameEL:           "EL",
		40:                "word40",
	} {
		if got := RegisterName(i); got != want {
			t.Errorf("RegisterName(%d) = %q, want %q", i, got, want)
		}
	}
	var r Registers
	r[FrameELR] = 0x1234
	if s := r.String(); !strings.Contains(s, "Pc=0x1234") {
		t.Errorf("String() = %q, want Pc=0x1234", s)
	}
}

func TestContextAccessors(t *testing.T) {
	c := New()
	c.SetIP(0x400000)
	c.Regs[FrameSP] = 0x7fff0000
	c.Regs[FrameX0] = 42
	if c.IP() != 0x400000 || c.Stack() != 0x7fff0000 {
		t.Errorf("accessors returned ip %#x sp %#x", c.IP(), c.Stack())
	}
	if c.Arch() != ARM64 || c.Arch().String() != "arm64" {
		t.Errorf("Arch() = %v", c.Arch())
	}

	c.FP.Attach().Fpsr = 1
	f := c.Fork()
	f.Regs[FrameX0] = 0
	fs, _ := f.FP.Get()
	fs.Fpsr = 2
	if c.Regs[FrameX0] != 42 {
		t.Errorf("fork shares registers")
	}
	if s, _ := c.FP.Get(); s.Fpsr != 1 {
		t.Errorf("fork shares FPSIMD state")
	}
}
