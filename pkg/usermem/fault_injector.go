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

package usermem

import (
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/safecopy"
)

// NoFault disables fault injection in a FaultInjector.
const NoFault = -1

// FaultInjector wraps a Memory, records every store, and raises a fault on
// the store with index FailStore (counting from zero).
type FaultInjector struct {
	Memory

	// FailStore is the index of the store that faults, or NoFault.
	FailStore int

	// Stores holds the range of every store issued, including the one that
	// faulted.
	Stores []hostarch.AddrRange
}

// NewFaultInjector returns a FaultInjector over m that faults on store
// number failStore.
func NewFaultInjector(m Memory, failStore int) *FaultInjector {
	return &FaultInjector{Memory: m, FailStore: failStore}
}

// StoreBytes implements Memory.StoreBytes.
func (f *FaultInjector) StoreBytes(addr hostarch.Addr, src []byte) {
	index := len(f.Stores)
	f.Stores = append(f.Stores, hostarch.AddrRange{Start: addr, End: addr + hostarch.Addr(len(src))})
	if index == f.FailStore {
		safecopy.Raise(safecopy.SegvError{Addr: uintptr(addr)}, true)
	}
	f.Memory.StoreBytes(addr, src)
}

// Reset clears the store log and arms a new fault index.
func (f *FaultInjector) Reset(failStore int) {
	f.FailStore = failStore
	f.Stores = nil
}
