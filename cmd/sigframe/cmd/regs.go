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

package cmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"sigframe.dev/sigframe/cmd/sigframe/config"
	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/sentry/arch"
	"sigframe.dev/sigframe/pkg/sentry/arch/fpu"
	"sigframe.dev/sigframe/pkg/sentry/kernel"
)

// Regs implements subcommands.Command for the "regs" command.
type Regs struct {
	output  string
	deliver bool
	raw     bool
}

// Name implements subcommands.Command.Name.
func (*Regs) Name() string {
	return "regs"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Regs) Synopsis() string {
	return "print the ptrace register snapshots of a scenario's thread"
}

// Usage implements subcommands.Command.Usage.
func (*Regs) Usage() string {
	return `regs [-deliver] [-raw] [-o table|json] <scenario> - prints the
NT_PRSTATUS and NT_PRFPREG register sets of the interrupted thread, or of the
thread entering the handler with -deliver.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Regs) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.output, "o", "table", "Output format (table, json).")
	f.BoolVar(&r.deliver, "deliver", false, "deliver the signal before taking the snapshot.")
	f.BoolVar(&r.raw, "raw", false, "dump the register sets as raw bytes instead.")
}

// Execute implements subcommands.Command.Execute.
func (r *Regs) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := checkOutput(r.output); err != nil {
		return Errorf("%v", err)
	}
	conf := args[0].(*config.Config)

	s, err := config.LoadScenario(f.Arg(0))
	if err != nil {
		return Errorf("%v", err)
	}
	k, err := newKernel(conf)
	if err != nil {
		return Errorf("%v", err)
	}
	c, err := r.snapshotContext(k, s)
	if err != nil {
		return Errorf("%v", err)
	}
	if r.raw {
		err = dumpRegSets(os.Stdout, &c.State)
	} else {
		var rep *regsReport
		rep, err = newRegsReport(&c.State)
		if err == nil {
			err = writeRegsReport(os.Stdout, r.output, rep)
		}
	}
	if err != nil {
		return Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

func (r *Regs) snapshotContext(k *kernel.Kernel, s *config.Scenario) (*arch.Context64, error) {
	rn, err := newRun(k, s, 0)
	if err != nil {
		return nil, err
	}
	if r.deliver {
		faulted, err := rn.deliver()
		if err != nil {
			return nil, err
		}
		if faulted {
			return nil, fmt.Errorf("scenario %q: delivery faulted", s.Name)
		}
	}
	return rn.task.Arch(), nil
}

// regsReport holds the register sets of one thread.
type regsReport struct {
	Registers []namedValue `json:"registers"`

	// ESR is the exception syndrome of the trap, and InKernel is set if
	// the frame was taken from a kernel context.
	ESR      uint32 `json:"esr"`
	InKernel bool   `json:"in_kernel"`

	Fpsr  uint32   `json:"fpsr"`
	Fpcr  uint32   `json:"fpcr"`
	Vregs []string `json:"vregs"`
}

func newRegsReport(st *arch.State) (*regsReport, error) {
	m, err := st.RegisterMap()
	if err != nil {
		return nil, err
	}
	rep := &regsReport{}
	for i := 0; i < arch.NumGPRegs; i++ {
		name := arch.RegisterName(i)
		rep.Registers = append(rep.Registers, namedValue{Name: name, Value: uint64(m[name])})
	}
	for _, name := range []string{"Sp", "Pc", "Pstate"} {
		rep.Registers = append(rep.Registers, namedValue{Name: name, Value: uint64(m[name])})
	}
	rep.ESR = st.Regs.ESR()
	rep.InKernel = st.Regs.InKernel()
	fp := st.FPRegs()
	rep.Fpsr = fp.Fpsr
	rep.Fpcr = fp.Fpcr
	for _, v := range fp.Vregs {
		rep.Vregs = append(rep.Vregs, fpu.Uint128FromBytes(v[:]).String())
	}
	return rep, nil
}

func writeRegsReport(w io.Writer, output string, rep *regsReport) error {
	if output == "json" {
		return outputJSON(w, rep)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", "REGISTER", "VALUE")
	for _, v := range rep.Registers {
		fmt.Fprintf(tw, "%s\t%#x\n", v.Name, v.Value)
	}
	fmt.Fprintf(tw, "%s\t%#x\n", "ESR", rep.ESR)
	fmt.Fprintf(tw, "%s\t%t\n", "InKernel", rep.InKernel)
	fmt.Fprintf(tw, "%s\t%#x\n", "Fpsr", rep.Fpsr)
	fmt.Fprintf(tw, "%s\t%#x\n", "Fpcr", rep.Fpcr)
	for i, v := range rep.Vregs {
		fmt.Fprintf(tw, "V%d\t%s\n", i, v)
	}
	return tw.Flush()
}

// dumpRegSets writes both register sets as PTRACE_GETREGSET returns them.
func dumpRegSets(w io.Writer, st *arch.State) error {
	for _, rs := range []struct {
		name   string
		regset uintptr
		size   int
	}{
		{"NT_PRSTATUS", linux.NT_PRSTATUS, (*linux.PtraceRegs)(nil).SizeBytes()},
		{"NT_PRFPREG", linux.NT_PRFPREG, st.FPRegsSize()},
	} {
		var buf bytes.Buffer
		n, err := st.PtraceGetRegSet(rs.regset, &buf, rs.size)
		if err != nil {
			return fmt.Errorf("%s: %w", rs.name, err)
		}
		fmt.Fprintf(w, "%s (%d bytes):\n%s", rs.name, n, hex.Dump(buf.Bytes()))
	}
	return nil
}
