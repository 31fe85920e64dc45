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

package atomicbitops

import (
	"sync"
	"testing"
)

func TestUint64Concurrent(t *testing.T) {
	const (
		goroutines = 8
		adds       = 1000
	)
	var u Uint64
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < adds; j++ {
				u.Add(1)
			}
		}()
	}
	wg.Wait()
	if got, want := u.Load(), uint64(goroutines*adds); got != want {
		t.Errorf("Load() = %d, want %d", got, want)
	}
}

func TestUint64Ops(t *testing.T) {
	u := FromUint64(5)
	if old := u.Swap(7); old != 5 {
		t.Errorf("Swap returned %d, want 5", old)
	}
	if u.CompareAndSwap(5, 9) {
		t.Errorf("CompareAndSwap(5, 9) succeeded on value 7")
	}
	if !u.CompareAndSwap(7, 9) || u.Load() != 9 {
		t.Errorf("CompareAndSwap(7, 9) failed, value %d", u.Load())
	}
	u.Store(0)
	if u.Load() != 0 {
		t.Errorf("Store(0) left %d", u.Load())
	}
}

func TestBool(t *testing.T) {
	var b Bool
	if b.Load() {
		t.Errorf("zero Bool is true")
	}
	b.Store(true)
	if !b.Swap(false) || b.Load() {
		t.Errorf("Swap(false) after Store(true) misbehaved")
	}
}
