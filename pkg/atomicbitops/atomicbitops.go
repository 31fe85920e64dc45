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

// Package atomicbitops provides wrappers around basic atomic operations on
// counters that must not be copied once in use.
package atomicbitops

import "sync/atomic"

// noCopy may be embedded into structs which must not be copied after first
// use. It is recognized by go vet's copylocks checker.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock() {}

// Unlock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Unlock() {}

// Uint64 is an atomic uint64.
//
// The default value is zero.
//
// Don't add fields to this struct. It is important that it remain the same
// size as its builtin analogue.
type Uint64 struct {
	_     noCopy
	value atomic.Uint64
}

// FromUint64 returns an Uint64 initialized to value v.
func FromUint64(v uint64) *Uint64 {
	u := &Uint64{}
	u.value.Store(v)
	return u
}

// Load is analogous to atomic.LoadUint64.
func (u *Uint64) Load() uint64 {
	return u.value.Load()
}

// Store is analogous to atomic.StoreUint64.
func (u *Uint64) Store(v uint64) {
	u.value.Store(v)
}

// Add is analogous to atomic.AddUint64.
func (u *Uint64) Add(v uint64) uint64 {
	return u.value.Add(v)
}

// Swap is analogous to atomic.SwapUint64.
func (u *Uint64) Swap(v uint64) uint64 {
	return u.value.Swap(v)
}

// CompareAndSwap is analogous to atomic.CompareAndSwapUint64.
func (u *Uint64) CompareAndSwap(oldVal, newVal uint64) bool {
	return u.value.CompareAndSwap(oldVal, newVal)
}

// Bool is an atomic Boolean.
//
// The default value is false.
type Bool struct {
	_     noCopy
	value atomic.Uint32
}

// Load is analogous to atomic.LoadBool, if such a thing existed.
func (b *Bool) Load() bool {
	return b.value.Load() != 0
}

// Store is analogous to atomic.StoreBool, if such a thing existed.
func (b *Bool) Store(val bool) {
	b.value.Store(boolToUint32(val))
}

// Swap is analogous to atomic.SwapBool, if such a thing existed.
func (b *Bool) Swap(val bool) bool {
	return b.value.Swap(boolToUint32(val)) != 0
}

func boolToUint32(val bool) uint32 {
	if val {
		return 1
	}
	return 0
}
