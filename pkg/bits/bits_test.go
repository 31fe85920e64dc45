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

package bits

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestForEachSetBit64(t *testing.T) {
	for _, want := range [][]int{
		{},
		{0},
		{1},
		{63},
		{0, 1},
		{1, 3, 5},
		{0, 63},
	} {
		n := Mask64(want...)
		got := make([]int, 0)
		ForEachSetBit64(n, func(i int) {
			got = append(got, i)
		})
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ForEachSetBit64(%#x) mismatch (-want +got):\n%s", n, diff)
		}
	}
}

func TestIsOn(t *testing.T) {
	for _, s := range []struct {
		mask uint64
		bits uint64
		any  bool
		all  bool
	}{
		{Mask64(0), Mask64(0), true, true},
		{Mask64(63), Mask64(63), true, true},
		{Mask64(0), Mask64(1), false, false},
		{Mask64(0), Mask64(0, 1), true, false},
		{Mask64(1, 63), Mask64(1, 63), true, true},
		{Mask64(1, 63), Mask64(0, 62), false, false},
	} {
		if ok := IsAnyOn64(s.mask, s.bits); ok != s.any {
			t.Errorf("IsAnyOn64(%#x, %#x) = %v, wanted: %v", s.mask, s.bits, ok, s.any)
		}
		if ok := IsOn64(s.mask, s.bits); ok != s.all {
			t.Errorf("IsOn64(%#x, %#x) = %v, wanted: %v", s.mask, s.bits, ok, s.all)
		}
	}
}

func TestLowMask64(t *testing.T) {
	for _, tc := range []struct {
		n    int
		want uint64
	}{
		{0, 0},
		{1, 1},
		{32, 0xffffffff},
		{63, 0x7fffffffffffffff},
		{64, ^uint64(0)},
	} {
		if got := LowMask64(tc.n); got != tc.want {
			t.Errorf("LowMask64(%d) = %#x, want %#x", tc.n, got, tc.want)
		}
	}
}

func TestInsertLow64(t *testing.T) {
	got := InsertLow64(0x1234_5678_9abc_def0, 0xffff_ffff_0000_0001, 32)
	if want := uint64(0x1234_5678_0000_0001); got != want {
		t.Errorf("InsertLow64 = %#x, want %#x", got, want)
	}
}
