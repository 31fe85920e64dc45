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
	"os"

	"github.com/google/subcommands"
	"sigframe.dev/sigframe/cmd/sigframe/config"
	"sigframe.dev/sigframe/pkg/log"
	"sigframe.dev/sigframe/pkg/metric"
)

// Metrics implements subcommands.Command for the "metrics" command.
type Metrics struct {
	exporterPrefix string
}

// Name implements subcommands.Command.Name.
func (*Metrics) Name() string {
	return "metrics"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Metrics) Synopsis() string {
	return "print signal delivery metrics in Prometheus format"
}

// Usage implements subcommands.Command.Usage.
func (*Metrics) Usage() string {
	return `metrics [-exporter-prefix=<sigframe_>] [<scenario>...] - round trips the given
scenarios, then prints the metric data in Prometheus text format.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Metrics) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.exporterPrefix, "exporter-prefix", "sigframe_", "Prefix for all metric names, following Prometheus exporter convention")
}

// Execute implements subcommands.Command.Execute.
func (m *Metrics) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)

	if f.NArg() > 0 {
		scenarios, err := loadScenarios(f.Args())
		if err != nil {
			return Errorf("%v", err)
		}
		k, err := newKernel(conf)
		if err != nil {
			return Errorf("%v", err)
		}
		if _, err := checkAll(ctx, k, scenarios, 1); err != nil {
			return Errorf("%v", err)
		}
	}

	written, err := metric.WriteText(os.Stdout, metric.ExportOptions{ExporterPrefix: m.exporterPrefix})
	if err != nil {
		return Errorf("Cannot write metrics to stdout: %v", err)
	}
	log.Infof("Wrote %d bytes of Prometheus metric data to stdout", written)
	return subcommands.ExitSuccess
}
