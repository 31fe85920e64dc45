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

// Package cmd holds implementations of the sigframe commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"sigframe.dev/sigframe/cmd/sigframe/config"
	"sigframe.dev/sigframe/pkg/log"
	"sigframe.dev/sigframe/pkg/sentry/kernel"
)

// Errorf logs the error to the debug log and writes it to stderr. It returns
// subcommands.ExitFailure for convenience.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	log.Warningf(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

// Fatalf logs the error and exits with a non-zero status.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	os.Exit(128)
}

// newKernel returns a kernel with one processor slot per configured CPU.
func newKernel(conf *config.Config) (*kernel.Kernel, error) {
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{MaxCPUs: conf.CPUs}); err != nil {
		return nil, err
	}
	return k, nil
}

// loadScenarios reads every scenario named on the command line. Scenario
// files are TOML, or YAML when named *.yaml or *.yml.
func loadScenarios(paths []string) ([]*config.Scenario, error) {
	scenarios := make([]*config.Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := config.LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// checkOutput validates an -o flag value.
func checkOutput(output string) error {
	switch output {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
