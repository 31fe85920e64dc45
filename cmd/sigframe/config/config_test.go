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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/log"
	"sigframe.dev/sigframe/pkg/sentry/arch"
	"sigframe.dev/sigframe/pkg/usermem"
)

func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return fs
}

func TestNewFromFlags(t *testing.T) {
	conf, err := NewFromFlags(newFlagSet(t, "-log-format=json", "-cpus=3", "-log=/tmp/x.%PID%"))
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	want := &Config{
		LogFilename: "/tmp/x.%PID%",
		LogFormat:   "json",
		LogLevel:    "info",
		CPUs:        3,
	}
	if diff := cmp.Diff(want, conf); diff != "" {
		t.Errorf("NewFromFlags mismatch (-want +got):\n%s", diff)
	}
	if got := conf.Level(); got != log.Info {
		t.Errorf("Level() = %v, want %v", got, log.Info)
	}
}

func TestNewFromFlagsInvalid(t *testing.T) {
	for _, args := range [][]string{
		{"-log-format=xml"},
		{"-log-level=trace"},
		{"-cpus=0"},
	} {
		if _, err := NewFromFlags(newFlagSet(t, args...)); err == nil {
			t.Errorf("NewFromFlags(%v) succeeded, want error", args)
		}
	}
}

func TestDebugOverridesLevel(t *testing.T) {
	conf, err := NewFromFlags(newFlagSet(t, "-debug", "-log-level=warning"))
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if got := conf.Level(); got != log.Debug {
		t.Errorf("Level() = %v, want %v", got, log.Debug)
	}
}

const fullScenario = `
name = "segv"
signal = 11
vdso_base = 0x7fff_0000
mask = [10]
fault_store = 4

[registers]
x = [1, 2, 3]
sp = 0x7001_0000
pc = 0x40_1000
pstate = 0x2000_0000
esr = 0x9200_0047
fault_address = 0xdead_0000

[fpsimd]
fpsr = 0x10
fpcr = 0x20
vregs = [[1, 2], [3, 4]]

[action]
handler = 0x40_2000
restorer = 0x40_3000
flags = ["SA_SIGINFO", "SA_RESTORER", "SA_ONSTACK"]
mask = [12, 9]

[sigaltstack]
addr = 0x6000_0000
size = 0x4000
flags = ["SS_AUTODISARM"]

[info]
code = 1
addr = 0xdead_0000

[[region]]
start = 0x7000_0000
length = 0x1_0000

[[region]]
start = 0x6000_0000
length = 0x4000
`

func TestDecodeScenario(t *testing.T) {
	s, err := DecodeScenario(fullScenario)
	if err != nil {
		t.Fatalf("DecodeScenario: %v", err)
	}

	act, err := s.SignalAct()
	if err != nil {
		t.Fatalf("SignalAct: %v", err)
	}
	wantAct := arch.SignalAct{
		Handler:  0x402000,
		Restorer: 0x403000,
		Flags:    linux.SA_SIGINFO | linux.SA_RESTORER | linux.SA_ONSTACK,
		Mask:     linux.MakeSignalSet(12, linux.SIGKILL),
	}
	if diff := cmp.Diff(wantAct, act); diff != "" {
		t.Errorf("SignalAct mismatch (-want +got):\n%s", diff)
	}

	alt, err := s.SignalStack()
	if err != nil {
		t.Fatalf("SignalStack: %v", err)
	}
	if want := (arch.SignalStack{Addr: 0x60000000, Size: 0x4000, Flags: linux.SS_AUTODISARM}); alt != want {
		t.Errorf("SignalStack() = %+v, want %+v", alt, want)
	}

	if got, want := s.SignalMask(), linux.SignalSetOf(10); got != want {
		t.Errorf("SignalMask() = %#x, want %#x", got, want)
	}
	if got := s.FailStore(); got != 4 {
		t.Errorf("FailStore() = %d, want 4", got)
	}

	info := s.SignalInfo()
	if info.Signal() != linux.SIGSEGV || info.Code != 1 || info.Addr() != 0xdead0000 {
		t.Errorf("SignalInfo() = %v addr %#x", info, info.Addr())
	}

	c := s.Context()
	if c.Regs[arch.FrameX2] != 3 || c.Regs[arch.FrameSP] != 0x70010000 || c.Regs[arch.FrameELR] != 0x401000 {
		t.Errorf("Context() registers = %v", c.Regs)
	}
	if got := c.Regs.Pstate(); got != 0x20000000 {
		t.Errorf("Pstate() = %#x, want 0x20000000", got)
	}
	if got := c.Regs.ESR(); got != 0x92000047 {
		t.Errorf("ESR() = %#x, want 0x92000047", got)
	}
	if !c.Regs.FPSIMDSaved() {
		t.Errorf("FPSIMDSaved() = false, want true")
	}
	fp, ok := c.FP.Get()
	if !ok {
		t.Fatalf("no FPSIMD state attached")
	}
	if fp.Fpsr != 0x10 || fp.Fpcr != 0x20 || fp.Vregs[1].Lo != 3 || fp.Vregs[1].Hi != 4 || fp.Vregs[2].Lo != 0 {
		t.Errorf("FPSIMD state = %+v", fp)
	}

	ars, err := s.MappedRanges()
	if err != nil {
		t.Fatalf("MappedRanges: %v", err)
	}
	wantRanges := []hostarch.AddrRange{
		{Start: 0x70000000, End: 0x70010000},
		{Start: 0x60000000, End: 0x60004000},
	}
	if diff := cmp.Diff(wantRanges, ars); diff != "" {
		t.Errorf("MappedRanges mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioDefaults(t *testing.T) {
	s, err := DecodeScenario(`
signal = 10
[registers]
sp = 0x7000_8123
[action]
handler = 0x1000
`)
	if err != nil {
		t.Fatalf("DecodeScenario: %v", err)
	}
	if got := s.FailStore(); got != usermem.NoFault {
		t.Errorf("FailStore() = %d, want NoFault", got)
	}
	alt, err := s.SignalStack()
	if err != nil {
		t.Fatalf("SignalStack: %v", err)
	}
	if alt.IsEnabled() {
		t.Errorf("default signal stack %+v is enabled", alt)
	}
	ars, err := s.MappedRanges()
	if err != nil {
		t.Fatalf("MappedRanges: %v", err)
	}
	want := []hostarch.AddrRange{{Start: 0x70009000 - defaultStackSize, End: 0x70009000}}
	if diff := cmp.Diff(want, ars); diff != "" {
		t.Errorf("MappedRanges mismatch (-want +got):\n%s", diff)
	}
	c := s.Context()
	if _, ok := c.FP.Get(); ok || c.Regs.FPSIMDSaved() {
		t.Errorf("scenario without fpsimd attached FPSIMD state")
	}
}

func TestScenarioChildInfo(t *testing.T) {
	s, err := DecodeScenario(`
signal = 17
[registers]
sp = 0x7000_8000
[action]
handler = 0x1000
flags = ["SA_SIGINFO"]
[info]
code = 1
pid = 42
uid = 1000
status = 3
`)
	if err != nil {
		t.Fatalf("DecodeScenario: %v", err)
	}
	info := s.SignalInfo()
	if info.Signal() != linux.SIGCHLD || info.PID() != 42 || info.UID() != 1000 || info.Status() != 3 {
		t.Errorf("SignalInfo() = %v pid %d uid %d status %d, want SIGCHLD 42 1000 3", info, info.PID(), info.UID(), info.Status())
	}
}

func TestScenarioInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
		want string
	}{
		{
			name: "unknown key",
			data: "signal = 10\nbogus = 1\n[action]\nhandler = 1\n",
			want: "unknown keys bogus",
		},
		{
			name: "bad signal",
			data: "signal = 65\n[action]\nhandler = 1\n",
			want: "invalid signal",
		},
		{
			name: "uncatchable",
			data: "signal = 9\n[action]\nhandler = 1\n",
			want: "cannot be caught",
		},
		{
			name: "no handler",
			data: "signal = 10\n",
			want: "no handler",
		},
		{
			name: "bad flag",
			data: "signal = 10\n[action]\nhandler = 1\nflags = [\"SA_FOO\"]\n",
			want: "unknown action flag",
		},
		{
			name: "bad stack flag",
			data: "signal = 10\n[action]\nhandler = 1\n[sigaltstack]\nflags = [\"SS_FOO\"]\n",
			want: "unknown sigaltstack flag",
		},
		{
			name: "unaligned region",
			data: "signal = 10\n[action]\nhandler = 1\n[[region]]\nstart = 0x1001\nlength = 0x1000\n",
			want: "bad region",
		},
		{
			name: "too many registers",
			data: "signal = 10\n[action]\nhandler = 1\n[registers]\nx = [" + strings.Repeat("0, ", 32) + "]\n",
			want: "general registers",
		},
		{
			name: "negative fault store",
			data: "signal = 10\nfault_store = -1\n[action]\nhandler = 1\n",
			want: "negative fault_store",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeScenario(tc.data)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("DecodeScenario = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadScenarioNamesFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usr1.toml")
	if err := os.WriteFile(path, []byte("signal = 10\n[action]\nhandler = 0x1000\n[registers]\nsp = 0x10000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if s.Name != path {
		t.Errorf("Name = %q, want %q", s.Name, path)
	}
}

func TestClone(t *testing.T) {
	s, err := DecodeScenario(fullScenario)
	if err != nil {
		t.Fatalf("DecodeScenario: %v", err)
	}
	c := s.Clone()
	if diff := cmp.Diff(s, c); diff != "" {
		t.Fatalf("Clone mismatch (-orig +clone):\n%s", diff)
	}
	c.Registers.X[0] = 99
	c.FPSIMD.Vregs[0][0] = 99
	*c.FaultStore = 99
	c.Action.Flags[0] = "SA_NODEFER"
	if s.Registers.X[0] != 1 || s.FPSIMD.Vregs[0][0] != 1 || *s.FaultStore != 4 || s.Action.Flags[0] != "SA_SIGINFO" {
		t.Errorf("mutating the clone changed the original: %+v", s)
	}
}

const fullScenarioYAML = `
name: segv
signal: 11
vdso_base: 0x7fff_0000
mask: [10]
fault_store: 4
registers:
  x: [1, 2, 3]
  sp: 0x7001_0000
  pc: 0x40_1000
  pstate: 0x2000_0000
  esr: 0x9200_0047
  fault_address: 0xdead_0000
fpsimd:
  fpsr: 0x10
  fpcr: 0x20
  vregs: [[1, 2], [3, 4]]
action:
  handler: 0x40_2000
  restorer: 0x40_3000
  flags: [SA_SIGINFO, SA_RESTORER, SA_ONSTACK]
  mask: [12, 9]
sigaltstack:
  addr: 0x6000_0000
  size: 0x4000
  flags: [SS_AUTODISARM]
info:
  code: 1
  addr: 0xdead_0000
region:
  - start: 0x7000_0000
    length: 0x1_0000
  - start: 0x6000_0000
    length: 0x4000
`

func TestDecodeScenarioYAML(t *testing.T) {
	want, err := DecodeScenario(fullScenario)
	if err != nil {
		t.Fatalf("DecodeScenario: %v", err)
	}
	got, err := DecodeScenarioYAML([]byte(fullScenarioYAML))
	if err != nil {
		t.Fatalf("DecodeScenarioYAML: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("YAML scenario mismatch (-toml +yaml):\n%s", diff)
	}
}

func TestDecodeScenarioYAMLUnknownKey(t *testing.T) {
	_, err := DecodeScenarioYAML([]byte("signal: 10\naction:\n  handler: 0x1000\n  hander: 0x2000\n"))
	if err == nil || !strings.Contains(err.Error(), "hander") {
		t.Errorf("DecodeScenarioYAML = %v, want error naming the unknown key", err)
	}
}

func TestLoadScenarioYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usr1.yaml")
	if err := os.WriteFile(path, []byte("signal: 10\naction:\n  handler: 0x1000\nregisters:\n  sp: 0x10000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if s.Name != path || s.Signal != int(linux.SIGUSR1) || s.Action.Handler != 0x1000 || s.Registers.SP != 0x10000 {
		t.Errorf("LoadScenario = %+v", s)
	}
}
