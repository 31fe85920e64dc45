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

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"
	"sigframe.dev/sigframe/cmd/sigframe/config"
	"sigframe.dev/sigframe/pkg/sentry/kernel"
)

// Roundtrip implements subcommands.Command for the "roundtrip" command.
type Roundtrip struct{}

// Name implements subcommands.Command.Name.
func (*Roundtrip) Name() string {
	return "roundtrip"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Roundtrip) Synopsis() string {
	return "deliver a signal, return from the handler and compare thread state"
}

// Usage implements subcommands.Command.Usage.
func (*Roundtrip) Usage() string {
	return `roundtrip <scenario> - delivers the scenario's signal, runs a handler that
clobbers its scratch state, calls rt_sigreturn and diffs the thread state
against the interrupted one.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Roundtrip) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Roundtrip) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
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
	res, err := roundTrip(k, s, 0)
	if err != nil {
		return Errorf("%v", err)
	}
	res.write(os.Stdout)
	if !res.ok() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// roundTripResult is the outcome of one round trip.
type roundTripResult struct {
	Scenario    string
	ExpectFault bool
	Faulted     bool

	// Diff is the thread state difference (-before +after). After a
	// faulted delivery it covers the delivery alone.
	Diff string
}

func (r *roundTripResult) ok() bool {
	return r.Faulted == r.ExpectFault && r.Diff == ""
}

func (r *roundTripResult) write(w io.Writer) {
	status := "PASS"
	if !r.ok() {
		status = "FAIL"
	}
	detail := "restored"
	if r.Faulted {
		detail = "delivery faulted"
	}
	fmt.Fprintf(w, "%s %s: %s\n", status, r.Scenario, detail)
	if r.Faulted != r.ExpectFault {
		fmt.Fprintf(w, "\tfaulted=%t, want %t\n", r.Faulted, r.ExpectFault)
	}
	if r.Diff != "" {
		fmt.Fprintf(w, "\tthread state changed (-before +after):\n%s", r.Diff)
	}
}

// roundTrip delivers s's signal on processor slot cpu of k, lets the
// handler return and compares the thread state with the interrupted one.
func roundTrip(k *kernel.Kernel, s *config.Scenario, cpu int) (*roundTripResult, error) {
	r, err := newRun(k, s, cpu)
	if err != nil {
		return nil, err
	}
	res := &roundTripResult{Scenario: s.Name, ExpectFault: s.ExpectFault}
	before := r.state()

	faulted, err := r.deliver()
	if err != nil {
		return nil, err
	}
	if faulted {
		res.Faulted = true
		res.Diff = cmp.Diff(before, r.state())
		return res, nil
	}

	r.handlerReturn()
	if err := r.task.SignalReturn(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	res.Diff = cmp.Diff(before, r.state())
	return res, nil
}
