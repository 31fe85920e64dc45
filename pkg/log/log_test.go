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

package log

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testWriter struct {
	lines []string
	fail  bool
	limit int
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	if w.limit > 0 && len(w.lines) >= w.limit {
		return 0, fmt.Errorf("over limit")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(expected, tw.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestBasicLoggerLevels(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Warningf("shown %d", 3)
	l.SetLevel(Debug)
	l.Debugf("shown %d", 4)

	want := []string{"shown 2", "\n", "shown 3", "\n", "shown 4", "\n"}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if l.IsLogging(Debug) != true {
		t.Errorf("IsLogging(Debug) = false after SetLevel(Debug)")
	}
}

func TestGoogleEmitter(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.May, 4, 13, 2, 1, 123456000, time.UTC)
	e.Emit(0, Warning, ts, "frame at %#x", 0x7000)

	if len(tw.lines) != 1 {
		t.Fatalf("got %d writes, want 1: %q", len(tw.lines), tw.lines)
	}
	re := regexp.MustCompile(`^W0504 13:02:01\.123456 +\d+ log_test\.go:\d+\] frame at 0x7000\n$`)
	if !re.MatchString(tw.lines[0]) {
		t.Errorf("line %q does not match %v", tw.lines[0], re)
	}
}

func TestJSONEmitter(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.May, 4, 13, 2, 1, 0, time.UTC)
	e.Emit(0, Info, ts, "signal %s", "SIGSEGV")

	if len(tw.lines) == 0 {
		t.Fatalf("nothing written")
	}
	var got jsonLog
	if err := json.Unmarshal([]byte(tw.lines[0]), &got); err != nil {
		t.Fatalf("Unmarshal(%q): %v", tw.lines[0], err)
	}
	if got.Msg != "signal SIGSEGV" || got.Level != Info || !got.Time.Equal(ts) {
		t.Errorf("got %+v", got)
	}
	if !strings.HasPrefix(got.Caller, "log_test.go:") {
		t.Errorf("caller = %q, want log_test.go:<line>", got.Caller)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	opts := PatternOpts{
		Command: "build",
		Now:     func() time.Time { return time.Date(2026, time.May, 4, 13, 2, 1, 0, time.UTC) },
	}
	f, err := OpenFile(dir+"/sub/%COMMAND%-%TIMESTAMP%.log", os.O_CREATE|os.O_WRONLY, opts)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	if want := dir + "/sub/build-20260504-130201.000000.log"; f.Name() != want {
		t.Errorf("opened %q, want %q", f.Name(), want)
	}

	if f, err := OpenFile("", os.O_CREATE, opts); f != nil || err != nil {
		t.Errorf("OpenFile(\"\") = (%v, %v), want (nil, nil)", f, err)
	}
}

func TestMultiEmitter(t *testing.T) {
	a, b := &testWriter{}, &testWriter{}
	m := MultiEmitter{&Writer{Next: a}, &Writer{Next: b}}
	m.Emit(0, Info, time.Now(), "both")
	if len(a.lines) == 0 || len(b.lines) == 0 || a.lines[0] != "both" || b.lines[0] != "both" {
		t.Errorf("got %q and %q", a.lines, b.lines)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	base := &BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(base, time.Hour)
	for i := 0; i < 5; i++ {
		rl.Warningf("fault %d", i)
	}
	if len(tw.lines) == 0 || tw.lines[0] != "fault 0" {
		t.Fatalf("first message not logged: %q", tw.lines)
	}
	for _, l := range tw.lines[1:] {
		if l != "\n" {
			t.Errorf("rate limit exceeded: %q", tw.lines)
		}
	}
	if !rl.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = false")
	}
}

func TestSetupTestLogging(t *testing.T) {
	SetupTestLogging(t)
	if !IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = false under SetupTestLogging")
	}
	Debugf("routed to t.Logf")
}
