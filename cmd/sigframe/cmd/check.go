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
	"os"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"sigframe.dev/sigframe/cmd/sigframe/config"
	"sigframe.dev/sigframe/pkg/log"
	"sigframe.dev/sigframe/pkg/sentry/kernel"
)

// Check implements subcommands.Command for the "check" command.
type Check struct {
	repeat int
}

// Name implements subcommands.Command.Name.
func (*Check) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Check) Synopsis() string {
	return "round trip many scenarios concurrently"
}

// Usage implements subcommands.Command.Usage.
func (*Check) Usage() string {
	return `check [-repeat=N] <scenario>... - round trips every scenario, each on its own
processor slot, and fails if any of them does not restore the thread state.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Check) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.repeat, "repeat", 1, "number of times each scenario is run.")
}

// Execute implements subcommands.Command.Execute.
func (c *Check) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 || c.repeat <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	scenarios, err := loadScenarios(f.Args())
	if err != nil {
		return Errorf("%v", err)
	}
	k, err := newKernel(conf)
	if err != nil {
		return Errorf("%v", err)
	}
	results, err := checkAll(ctx, k, scenarios, c.repeat)
	if err != nil {
		return Errorf("%v", err)
	}
	failed := 0
	for _, res := range results {
		res.write(os.Stdout)
		if !res.ok() {
			failed++
		}
	}
	fmt.Fprintf(os.Stdout, "%d runs, %d failed\n", len(results), failed)
	if failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// checkAll round trips every scenario repeat times, running up to one round
// trip per processor slot of k at once. Results are in scenario order.
func checkAll(ctx context.Context, k *kernel.Kernel, scenarios []*config.Scenario, repeat int) ([]*roundTripResult, error) {
	slots := make(chan int, k.NumCPUs())
	for i := 0; i < k.NumCPUs(); i++ {
		slots <- i
	}

	results := make([]*roundTripResult, len(scenarios)*repeat)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(k.NumCPUs())
	for i := range results {
		i := i
		s := scenarios[i/repeat]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cpu := <-slots
			defer func() { slots <- cpu }()

			res, err := roundTrip(k, s.Clone(), cpu)
			if err != nil {
				return err
			}
			if !res.ok() {
				log.Warningf("Scenario %q failed on CPU %d", s.Name, cpu)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
