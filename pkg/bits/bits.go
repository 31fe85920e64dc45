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

// Package bits includes all bit related types and operations.
package bits

import (
	mbits "math/bits"
)

// IsOn64 returns true if *all* bits set in 'bits' are set in 'mask'.
func IsOn64(mask, bits uint64) bool {
	return mask&bits == bits
}

// IsAnyOn64 returns true if *any* bit set in 'bits' is set in 'mask'.
func IsAnyOn64(mask, bits uint64) bool {
	return mask&bits != 0
}

// Mask64 returns a uint64 with all of the given bits set.
func Mask64(is ...int) uint64 {
	ret := uint64(0)
	for _, i := range is {
		ret |= MaskOf64(i)
	}
	return ret
}

// MaskOf64 is like Mask64, but sets only a single bit (more efficiently).
func MaskOf64(i int) uint64 {
	return uint64(1) << uint64(i)
}

// LowMask64 returns a mask covering the n least significant bits.
//
// Preconditions: 0 <= n <= 64.
func LowMask64(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return MaskOf64(n) - 1
}

// InsertLow64 replaces the n least significant bits of word with those of
// val, leaving the higher bits of word untouched.
func InsertLow64(word, val uint64, n int) uint64 {
	m := LowMask64(n)
	return (word &^ m) | (val & m)
}

// TrailingZeros64 returns the number of bits before the least significant 1
// bit in x; if x is 0, it returns 64.
func TrailingZeros64(x uint64) int {
	return mbits.TrailingZeros64(x)
}

// ForEachSetBit64 calls f once for each set bit in x, with argument i equal
// to the set bit's index.
func ForEachSetBit64(x uint64, f func(i int)) {
	for x != 0 {
		i := TrailingZeros64(x)
		f(i)
		x &^= MaskOf64(i)
	}
}
