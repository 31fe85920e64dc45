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

// Binary sigframe builds, restores and inspects aarch64 signal frames on a
// simulated address space.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"sigframe.dev/sigframe/cmd/sigframe/cmd"
	"sigframe.dev/sigframe/cmd/sigframe/config"
	"sigframe.dev/sigframe/pkg/log"
	"sigframe.dev/sigframe/pkg/metric"
)

func main() {
	forEachCmd(subcommands.Register)
	config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	subcommand := flag.CommandLine.Arg(0)
	emitters := log.MultiEmitter{newEmitter(conf.LogFormat, os.Stderr)}
	f, err := log.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, log.PatternOpts{Command: subcommand})
	if err != nil {
		cmd.Fatalf("%v", err)
	}
	if f != nil {
		emitters = append(emitters, newEmitter(conf.LogFormat, f))
	}
	if len(emitters) == 1 {
		log.SetTarget(emitters[0])
	} else {
		log.SetTarget(&emitters)
	}
	log.SetLevel(conf.Level())

	// Every metric is registered by package initialization.
	metric.Initialize()

	log.Debugf("sigframe %s/%s, %d CPUs, PID %d", runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), os.Getpid())
	log.Debugf("Args: %v", os.Args)
	if log.IsLogging(log.Debug) {
		conf.Log()
	}

	status := subcommands.Execute(context.Background(), conf)
	if status != subcommands.ExitSuccess {
		log.Debugf("Exiting with status: %v", status)
	}
	if f != nil {
		f.Close()
	}
	os.Exit(int(status))
}

// forEachCmd invokes the passed callback for each command supported by
// sigframe.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Build), "")
	cb(new(cmd.Roundtrip), "")
	cb(new(cmd.Regs), "")
	cb(new(cmd.Check), "")

	const inspectGroup = "inspect"
	cb(new(cmd.Layout), inspectGroup)
	cb(new(cmd.Metrics), inspectGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	cmd.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}
