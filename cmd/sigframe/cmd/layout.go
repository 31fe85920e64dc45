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
	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/sentry/arch"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	output string
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "print the signal frame layout"
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return `layout [-o table|json] - prints field offsets of the rt_sigframe and the sizes of
the records it is built from.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Layout) SetFlags(f *flag.FlagSet) {
	f.StringVar(&l.output, "o", "table", "Output format (table, json).")
}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := checkOutput(l.output); err != nil {
		return Errorf("%v", err)
	}
	if err := writeLayout(os.Stdout, l.output); err != nil {
		return Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

type layoutField struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
}

type layoutReport struct {
	Fields  []layoutField `json:"fields"`
	Records []layoutField `json:"records"`
}

func newLayoutReport() *layoutReport {
	rep := &layoutReport{}
	for _, f := range arch.FrameLayout {
		rep.Fields = append(rep.Fields, layoutField{Name: f.Name, Offset: f.Offset, Size: f.Size})
	}
	rep.Records = []layoutField{
		{Name: "rt_sigframe", Size: arch.RtSigframeSize},
		{Name: "siginfo", Offset: arch.RtSigframeInfoOffset, Size: arch.SignalInfoSize},
		{Name: "ucontext", Offset: arch.RtSigframeUCOffset, Size: arch.UContext64Size},
		{Name: "sigcontext", Offset: arch.RtSigframeUCOffset + arch.UCMContextOffset, Size: arch.SignalContext64Size},
		{Name: "fpsimd_context", Offset: arch.RtSigframeUCOffset + arch.UCMContextOffset + arch.SCReservedOffset, Size: arch.FpsimdContextSize},
		{Name: "frame_record", Size: arch.FrameRecordSize},
		{Name: "user_pt_regs", Size: (*linux.PtraceRegs)(nil).SizeBytes()},
		{Name: "user_fpsimd_state", Size: linux.SizeofUserFPSIMDState},
	}
	return rep
}

func writeLayout(w io.Writer, output string) error {
	rep := newLayoutReport()
	if output == "json" {
		return outputJSON(w, rep)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", "FIELD", "OFFSET", "SIZE")
	for _, f := range rep.Fields {
		fmt.Fprintf(tw, "%s\t%#x\t%d\n", f.Name, f.Offset, f.Size)
	}
	fmt.Fprintf(tw, "\t\t\n")
	fmt.Fprintf(tw, "%s\t%s\t%s\n", "RECORD", "OFFSET", "SIZE")
	for _, f := range rep.Records {
		fmt.Fprintf(tw, "%s\t%#x\t%d\n", f.Name, f.Offset, f.Size)
	}
	return tw.Flush()
}
