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

// Package config provides basic infrastructure to set configuration settings
// for sigframe. Each setting that can be changed from the command line must
// have a field in Config tagged with the flag name.
package config

import (
	"flag"
	"fmt"
	"reflect"
	"runtime"

	"sigframe.dev/sigframe/pkg/log"
)

// Config holds configuration that is not part of a scenario.
type Config struct {
	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFilename is the filename to log to, if not empty. It may contain
	// %TIMESTAMP%, %PID% and %COMMAND%.
	LogFilename string `flag:"log"`

	// LogFormat is the log format, "text" or "json".
	LogFormat string `flag:"log-format"`

	// LogLevel is the minimum level logged when Debug is off.
	LogLevel string `flag:"log-level"`

	// CPUs is the number of processor slots of the simulated kernel. It
	// bounds how many scenarios run at once.
	CPUs int `flag:"cpus"`
}

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("log", "", "file path where logs are written, may contain %TIMESTAMP%, %PID% and %COMMAND%.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.String("log-level", "info", "minimum log level: warning, info or debug.")
	flagSet.Int("cpus", runtime.NumCPU(), "number of simulated processor slots.")
}

// NewFromFlags creates a new Config with values coming from command line flags.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.CPUs <= 0 {
		return fmt.Errorf("cpus must be positive, got %d", c.CPUs)
	}
	return nil
}

// Level returns the log level selected by the configuration.
func (c *Config) Level() log.Level {
	if c.Debug {
		return log.Debug
	}
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		// Rejected by validate.
		panic(err)
	}
	return l
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if name, ok := f.Tag.Lookup("flag"); ok {
			log.Infof("\t%s: %v", name, obj.Field(i).Interface())
		}
	}
}
