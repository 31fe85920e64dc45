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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v2"
	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/sentry/arch"
	"sigframe.dev/sigframe/pkg/sentry/arch/fpu"
	"sigframe.dev/sigframe/pkg/usermem"
)

// defaultStackSize is the size of the stack mapping created below SP when a
// scenario maps no regions.
const defaultStackSize = 64 << 10

// Scenario describes one signal delivery: the interrupted thread, the
// installed action and the memory the frame is written to.
type Scenario struct {
	// Name identifies the scenario in output. It defaults to the file name.
	Name string `toml:"name" yaml:"name"`

	// Signal is the signal number delivered.
	Signal int `toml:"signal" yaml:"signal"`

	// VDSOBase is where the guest vDSO is mapped. The sigreturn trampoline
	// is at a fixed offset from it.
	VDSOBase uint64 `toml:"vdso_base" yaml:"vdso_base"`

	// Mask lists the signals blocked when the signal arrives.
	Mask []int `toml:"mask" yaml:"mask"`

	// FaultStore, if set, is the index of the frame store that faults.
	FaultStore *int `toml:"fault_store" yaml:"fault_store"`

	// ExpectFault is set when delivery is expected to fault.
	ExpectFault bool `toml:"expect_fault" yaml:"expect_fault"`

	Registers Registers  `toml:"registers" yaml:"registers"`
	FPSIMD    *FPSIMD    `toml:"fpsimd" yaml:"fpsimd"`
	Action    Action     `toml:"action" yaml:"action"`
	AltStack  *AltStack  `toml:"sigaltstack" yaml:"sigaltstack"`
	Info      SignalInfo `toml:"info" yaml:"info"`

	// Regions are the mapped ranges of the address space. Both ends must be
	// page aligned.
	Regions []Region `toml:"region" yaml:"region"`
}

// Registers is the interrupted register state.
type Registers struct {
	// X holds X0 upwards. Missing registers are zero.
	X            []uint64 `toml:"x" yaml:"x"`
	SP           uint64   `toml:"sp" yaml:"sp"`
	PC           uint64   `toml:"pc" yaml:"pc"`
	Pstate       uint64   `toml:"pstate" yaml:"pstate"`
	ESR          uint32   `toml:"esr" yaml:"esr"`
	FaultAddress uint64   `toml:"fault_address" yaml:"fault_address"`
}

// FPSIMD is the FPSIMD state saved at the trap. Vector registers are given
// as [low, high] pairs.
type FPSIMD struct {
	Fpsr  uint32      `toml:"fpsr" yaml:"fpsr"`
	Fpcr  uint32      `toml:"fpcr" yaml:"fpcr"`
	Vregs [][2]uint64 `toml:"vregs" yaml:"vregs"`
}

// Action is the installed signal action.
type Action struct {
	Handler  uint64   `toml:"handler" yaml:"handler"`
	Restorer uint64   `toml:"restorer" yaml:"restorer"`
	Flags    []string `toml:"flags" yaml:"flags"`
	Mask     []int    `toml:"mask" yaml:"mask"`
}

// AltStack is the thread's alternate signal stack.
type AltStack struct {
	Addr  uint64   `toml:"addr" yaml:"addr"`
	Size  uint64   `toml:"size" yaml:"size"`
	Flags []string `toml:"flags" yaml:"flags"`
}

// SignalInfo holds the siginfo fields of the delivered signal. Addr selects
// the fault layout; otherwise PID, UID and Status are stored.
type SignalInfo struct {
	Code   int32  `toml:"code" yaml:"code"`
	Errno  int32  `toml:"errno" yaml:"errno"`
	Addr   uint64 `toml:"addr" yaml:"addr"`
	PID    int32  `toml:"pid" yaml:"pid"`
	UID    int32  `toml:"uid" yaml:"uid"`
	Status int32  `toml:"status" yaml:"status"`
}

// Region is one mapped range.
type Region struct {
	Start  uint64 `toml:"start" yaml:"start"`
	Length uint64 `toml:"length" yaml:"length"`
}

var actionFlags = map[string]uint64{
	"SA_NOCLDSTOP": linux.SA_NOCLDSTOP,
	"SA_NOCLDWAIT": linux.SA_NOCLDWAIT,
	"SA_SIGINFO":   linux.SA_SIGINFO,
	"SA_RESTORER":  linux.SA_RESTORER,
	"SA_ONSTACK":   linux.SA_ONSTACK,
	"SA_RESTART":   linux.SA_RESTART,
	"SA_NODEFER":   linux.SA_NODEFER,
	"SA_RESETHAND": linux.SA_RESETHAND,
}

var stackFlags = map[string]uint32{
	"SS_ONSTACK":    linux.SS_ONSTACK,
	"SS_DISABLE":    linux.SS_DISABLE,
	"SS_AUTODISARM": linux.SS_AUTODISARM,
}

// LoadScenario reads a scenario from a file. Files ending in .yaml or .yml
// are YAML; everything else is TOML.
func LoadScenario(path string) (*Scenario, error) {
	var s Scenario
	var undecoded []string
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("loading scenario %q: %w", path, err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.SetStrict(true)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("loading scenario %q: %w", path, err)
		}
	default:
		md, err := toml.DecodeFile(path, &s)
		if err != nil {
			return nil, fmt.Errorf("loading scenario %q: %w", path, err)
		}
		undecoded = undecodedKeys(md)
	}
	if s.Name == "" {
		s.Name = path
	}
	return finish(&s, undecoded)
}

// DecodeScenario parses a scenario from TOML text.
func DecodeScenario(data string) (*Scenario, error) {
	var s Scenario
	md, err := toml.Decode(data, &s)
	if err != nil {
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}
	return finish(&s, undecodedKeys(md))
}

// DecodeScenarioYAML parses a scenario from YAML text. Unknown keys are
// rejected.
func DecodeScenarioYAML(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}
	return finish(&s, nil)
}

func undecodedKeys(md toml.MetaData) []string {
	var keys []string
	for _, k := range md.Undecoded() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}

func finish(s *Scenario, undecoded []string) (*Scenario, error) {
	if len(undecoded) > 0 {
		return nil, fmt.Errorf("scenario %q: unknown keys %s", s.Name, strings.Join(undecoded, ", "))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Clone returns a deep copy of s. Runs mutate their own copy.
func (s *Scenario) Clone() *Scenario {
	return deepcopy.Copy(s).(*Scenario)
}

// Validate checks that s describes a deliverable signal.
func (s *Scenario) Validate() error {
	sig := linux.Signal(s.Signal)
	if !sig.IsValid() {
		return fmt.Errorf("scenario %q: invalid signal %d", s.Name, s.Signal)
	}
	if linux.UnblockableSignals&linux.SignalSetOf(sig) != 0 {
		return fmt.Errorf("scenario %q: %v cannot be caught", s.Name, sig)
	}
	if s.Action.Handler == 0 {
		return fmt.Errorf("scenario %q: action has no handler", s.Name)
	}
	if n := len(s.Registers.X); n > arch.NumGPRegs {
		return fmt.Errorf("scenario %q: %d general registers given, at most %d", s.Name, n, arch.NumGPRegs)
	}
	if s.FPSIMD != nil && len(s.FPSIMD.Vregs) > fpu.NumVregs {
		return fmt.Errorf("scenario %q: %d vector registers given, at most %d", s.Name, len(s.FPSIMD.Vregs), fpu.NumVregs)
	}
	if s.FaultStore != nil && *s.FaultStore < 0 {
		return fmt.Errorf("scenario %q: negative fault_store %d", s.Name, *s.FaultStore)
	}
	if _, err := s.SignalAct(); err != nil {
		return err
	}
	if _, err := s.SignalStack(); err != nil {
		return err
	}
	if _, err := s.MappedRanges(); err != nil {
		return err
	}
	if _, err := signalSet(s.Name, s.Mask); err != nil {
		return err
	}
	return nil
}

func signalSet(name string, sigs []int) (linux.SignalSet, error) {
	var set linux.SignalSet
	for _, n := range sigs {
		sig := linux.Signal(n)
		if !sig.IsValid() {
			return 0, fmt.Errorf("scenario %q: invalid signal %d in mask", name, n)
		}
		set |= linux.SignalSetOf(sig)
	}
	return set, nil
}

// SignalMask returns the thread's signal mask.
func (s *Scenario) SignalMask() linux.SignalSet {
	set, err := signalSet(s.Name, s.Mask)
	if err != nil {
		// Rejected by Validate.
		panic(err)
	}
	return set
}

// SignalAct returns the installed action.
func (s *Scenario) SignalAct() (arch.SignalAct, error) {
	act := arch.SignalAct{
		Handler:  s.Action.Handler,
		Restorer: s.Action.Restorer,
	}
	for _, name := range s.Action.Flags {
		f, ok := actionFlags[name]
		if !ok {
			return arch.SignalAct{}, fmt.Errorf("scenario %q: unknown action flag %q", s.Name, name)
		}
		act.Flags |= f
	}
	mask, err := signalSet(s.Name, s.Action.Mask)
	if err != nil {
		return arch.SignalAct{}, err
	}
	act.Mask = mask
	return act, nil
}

// SignalStack returns the alternate signal stack, or a disabled one if the
// scenario has none.
func (s *Scenario) SignalStack() (arch.SignalStack, error) {
	if s.AltStack == nil {
		return arch.SignalStack{Flags: linux.SS_DISABLE}, nil
	}
	alt := arch.SignalStack{Addr: s.AltStack.Addr, Size: s.AltStack.Size}
	for _, name := range s.AltStack.Flags {
		f, ok := stackFlags[name]
		if !ok {
			return arch.SignalStack{}, fmt.Errorf("scenario %q: unknown sigaltstack flag %q", s.Name, name)
		}
		alt.Flags |= f
	}
	return alt, nil
}

// SignalInfo returns the siginfo of the delivered signal.
func (s *Scenario) SignalInfo() *arch.SignalInfo {
	info := &arch.SignalInfo{
		Signo: int32(s.Signal),
		Errno: s.Info.Errno,
		Code:  s.Info.Code,
	}
	if s.Info.Addr != 0 {
		info.SetAddr(s.Info.Addr)
	} else {
		info.SetPID(s.Info.PID)
		info.SetUID(s.Info.UID)
		info.SetStatus(s.Info.Status)
	}
	return info
}

// Context returns the interrupted thread's register frame and FPSIMD
// state.
func (s *Scenario) Context() *arch.Context64 {
	c := arch.New()
	r := &s.Registers
	copy(c.Regs[:arch.NumGPRegs], r.X)
	c.Regs[arch.FrameSP] = r.SP
	c.Regs[arch.FrameELR] = r.PC
	c.Regs[arch.FrameESRSPSR] = uint64(r.ESR) << 32
	c.Regs.SetPstate(r.Pstate)
	c.Regs[arch.FrameFaultAddress] = r.FaultAddress
	if s.FPSIMD != nil {
		fp := c.FP.Attach()
		fp.Fpsr = s.FPSIMD.Fpsr
		fp.Fpcr = s.FPSIMD.Fpcr
		for i, v := range s.FPSIMD.Vregs {
			fp.Vregs[i] = fpu.Uint128{Lo: v[0], Hi: v[1]}
		}
		c.Regs[arch.FrameTxCtxFlags] |= arch.TxCtxFPSIMDSaved
	}
	return c
}

// MappedRanges returns the ranges to map. Without regions, a stack of
// defaultStackSize is mapped below the page holding SP.
func (s *Scenario) MappedRanges() ([]hostarch.AddrRange, error) {
	if len(s.Regions) == 0 {
		end, ok := hostarch.Addr(s.Registers.SP).RoundUp()
		if !ok || end < defaultStackSize {
			return nil, fmt.Errorf("scenario %q: no default stack fits below sp %#x", s.Name, s.Registers.SP)
		}
		return []hostarch.AddrRange{{Start: end - defaultStackSize, End: end}}, nil
	}
	ars := make([]hostarch.AddrRange, 0, len(s.Regions))
	for _, r := range s.Regions {
		ar, ok := hostarch.Addr(r.Start).ToRange(r.Length)
		if !ok || r.Length == 0 || !ar.Start.IsPageAligned() || !ar.End.IsPageAligned() {
			return nil, fmt.Errorf("scenario %q: bad region start=%#x length=%#x", s.Name, r.Start, r.Length)
		}
		ars = append(ars, ar)
	}
	return ars, nil
}

// FailStore returns the index of the store that faults, or
// usermem.NoFault.
func (s *Scenario) FailStore() int {
	if s.FaultStore == nil {
		return usermem.NoFault
	}
	return *s.FaultStore
}
