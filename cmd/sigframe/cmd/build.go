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
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"sigframe.dev/sigframe/cmd/sigframe/config"
	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/sentry/arch"
	"sigframe.dev/sigframe/pkg/sentry/kernel"
)

// Build implements subcommands.Command for the "build" command.
type Build struct {
	output string
}

// Name implements subcommands.Command.Name.
func (*Build) Name() string {
	return "build"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Build) Synopsis() string {
	return "deliver a signal and print the frame written to the stack"
}

// Usage implements subcommands.Command.Usage.
func (*Build) Usage() string {
	return `build [-o table|json] <scenario> - delivers the scenario's signal and prints
the resulting registers and the decoded signal frame.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Build) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.output, "o", "table", "Output format (table, json).")
}

// Execute implements subcommands.Command.Execute.
func (b *Build) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := checkOutput(b.output); err != nil {
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
	rep, err := buildFrame(k, s, 0)
	if err != nil {
		return Errorf("%v", err)
	}
	if err := writeBuildReport(os.Stdout, b.output, rep); err != nil {
		return Errorf("writing output: %v", err)
	}
	if rep.Faulted != s.ExpectFault {
		return Errorf("scenario %q: faulted=%t, want %t", s.Name, rep.Faulted, s.ExpectFault)
	}
	return subcommands.ExitSuccess
}

// namedValue is one named word of output.
type namedValue struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

// buildReport is the outcome of one delivery.
type buildReport struct {
	Scenario  string       `json:"scenario"`
	Signal    string       `json:"signal"`
	Faulted   bool         `json:"faulted"`
	Stores    int          `json:"stores"`
	Frame     uint64       `json:"frame,omitempty"`
	Registers []namedValue `json:"registers"`
	Fields    []namedValue `json:"fields,omitempty"`
}

// buildFrame delivers s's signal on processor slot cpu of k and reports the
// registers and the frame.
func buildFrame(k *kernel.Kernel, s *config.Scenario, cpu int) (*buildReport, error) {
	r, err := newRun(k, s, cpu)
	if err != nil {
		return nil, err
	}
	faulted, err := r.deliver()
	if err != nil {
		return nil, err
	}
	rep := &buildReport{
		Scenario:  s.Name,
		Signal:    linux.Signal(s.Signal).String(),
		Faulted:   faulted,
		Stores:    len(r.mem.Stores),
		Registers: registerValues(&r.task.Arch().Regs),
	}
	if faulted {
		return rep, nil
	}
	fr, err := r.readFrame()
	if err != nil {
		return nil, err
	}
	rep.Frame = uint64(fr.Base)
	rep.Fields = fr.fields()
	return rep, nil
}

func registerValues(regs *arch.Registers) []namedValue {
	vals := make([]namedValue, 0, len(regs))
	for i, v := range regs {
		vals = append(vals, namedValue{Name: arch.RegisterName(i), Value: v})
	}
	return vals
}

// fields lists the decoded frame in address order.
func (f *frame) fields() []namedValue {
	var vals []namedValue
	add := func(name string, v uint64) {
		vals = append(vals, namedValue{Name: name, Value: v})
	}
	if f.Info != nil {
		add("info.si_signo", uint64(f.Info.Signo))
		add("info.si_errno", uint64(uint32(f.Info.Errno)))
		add("info.si_code", uint64(uint32(f.Info.Code)))
		add("info.si_addr", f.Info.Addr())
	}
	uc := &f.UC
	add("uc.uc_flags", uc.Flags)
	add("uc.uc_link", uc.Link)
	add("uc.uc_stack.ss_sp", uc.Stack.Addr)
	add("uc.uc_stack.ss_flags", uint64(uc.Stack.Flags))
	add("uc.uc_stack.ss_size", uc.Stack.Size)
	add("uc.uc_sigmask", uint64(uc.Sigset))
	mc := &uc.MContext
	add("uc.uc_mcontext.fault_address", mc.FaultAddr)
	for i, v := range mc.Regs {
		add(fmt.Sprintf("uc.uc_mcontext.regs[%d]", i), v)
	}
	add("uc.uc_mcontext.sp", mc.Sp)
	add("uc.uc_mcontext.pc", mc.Pc)
	add("uc.uc_mcontext.pstate", mc.Pstate)
	fp, ok := mc.Fpsimd()
	if !ok {
		add("uc.uc_mcontext.__reserved[0]", uint64(fp.Magic)|uint64(fp.Size)<<32)
	} else {
		add("fpsimd.magic", uint64(fp.Magic))
		add("fpsimd.size", uint64(fp.Size))
		add("fpsimd.fpsr", uint64(fp.Fpsr))
		add("fpsimd.fpcr", uint64(fp.Fpcr))
		for i, v := range fp.Vregs {
			add(fmt.Sprintf("fpsimd.vregs[%d].lo", i), v.Lo)
			add(fmt.Sprintf("fpsimd.vregs[%d].hi", i), v.Hi)
		}
	}
	add("frame_record.fp", f.FP)
	add("frame_record.lr", f.LR)
	return vals
}

func writeBuildReport(w io.Writer, output string, rep *buildReport) error {
	if output == "json" {
		return outputJSON(w, rep)
	}
	fmt.Fprintf(w, "%s: %s, %d stores", rep.Scenario, rep.Signal, rep.Stores)
	if rep.Faulted {
		fmt.Fprintf(w, ", faulted\n")
	} else {
		fmt.Fprintf(w, ", frame at %#x\n", rep.Frame)
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", "REGISTER", "VALUE")
	for _, v := range rep.Registers {
		fmt.Fprintf(tw, "%s\t%#x\n", v.Name, v.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(rep.Fields) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintf(tw, "%s\t%s\n", "FIELD", "VALUE")
	for _, v := range rep.Fields {
		fmt.Fprintf(tw, "%s\t%#x\n", v.Name, v.Value)
	}
	return tw.Flush()
}
