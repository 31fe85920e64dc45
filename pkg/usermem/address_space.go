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
	"fmt"
	"sync"

	"github.com/google/btree"
	"sigframe.dev/sigframe/pkg/errors/linuxerr"
	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/safecopy"
)

type mapping struct {
	ar   hostarch.AddrRange
	data []byte
}

func mappingLess(a, b mapping) bool {
	return a.ar.Start < b.ar.Start
}

// key returns a search pivot for the mapping starting at addr.
func key(addr hostarch.Addr) mapping {
	return mapping{ar: hostarch.AddrRange{Start: addr, End: addr}}
}

// AddressSpace is a Memory backed by page-aligned anonymous mappings.
//
// Stores are checked in full before any byte is written.
type AddressSpace struct {
	mu sync.RWMutex

	// mappings is ordered by start address. Entries never overlap.
	mappings *btree.BTreeG[mapping]
}

// NewAddressSpace returns an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{mappings: btree.NewG(8, mappingLess)}
}

// Map creates a zero-filled mapping covering ar.
func (as *AddressSpace) Map(ar hostarch.AddrRange) error {
	if !ar.WellFormed() || ar.Length() == 0 || !ar.Start.IsPageAligned() || !ar.End.IsPageAligned() {
		return fmt.Errorf("mapping %v: %w", ar, linuxerr.EINVAL)
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	_, overlap := as.find(ar.Start)
	as.mappings.AscendRange(key(ar.Start), key(ar.End), func(mapping) bool {
		overlap = true
		return false
	})
	if overlap {
		return fmt.Errorf("mapping %v: %w", ar, linuxerr.EEXIST)
	}
	as.mappings.ReplaceOrInsert(mapping{ar: ar, data: make([]byte, ar.Length())})
	return nil
}

// Unmap removes every mapping that lies entirely within ar.
func (as *AddressSpace) Unmap(ar hostarch.AddrRange) {
	as.mu.Lock()
	defer as.mu.Unlock()
	var gone []mapping
	as.mappings.AscendRange(key(ar.Start), key(ar.End), func(m mapping) bool {
		if ar.IsSupersetOf(m.ar) {
			gone = append(gone, m)
		}
		return true
	})
	for _, m := range gone {
		as.mappings.Delete(m)
	}
}

// Mappings returns the mapped ranges in address order.
func (as *AddressSpace) Mappings() []hostarch.AddrRange {
	as.mu.RLock()
	defer as.mu.RUnlock()
	ars := make([]hostarch.AddrRange, 0, as.mappings.Len())
	as.mappings.Ascend(func(m mapping) bool {
		ars = append(ars, m.ar)
		return true
	})
	return ars
}

// find returns the mapping containing addr.
//
// Preconditions: as.mu is locked.
func (as *AddressSpace) find(addr hostarch.Addr) (mapping, bool) {
	var (
		m  mapping
		ok bool
	)
	as.mappings.DescendLessOrEqual(key(addr), func(c mapping) bool {
		m, ok = c, c.ar.Contains(addr)
		return false
	})
	return m, ok
}

// check returns the backing slices for [addr, addr+n), raising a fault at
// the first unmapped byte.
//
// Preconditions: as.mu is locked.
func (as *AddressSpace) check(addr hostarch.Addr, n int, write bool) [][]byte {
	end, ok := addr.AddLength(uint64(n))
	if !ok {
		safecopy.Raise(safecopy.SegvError{Addr: uintptr(addr)}, write)
	}
	var parts [][]byte
	for cur := addr; cur < end; {
		m, ok := as.find(cur)
		if !ok {
			safecopy.Raise(safecopy.SegvError{Addr: uintptr(cur)}, write)
		}
		stop := end
		if m.ar.End < stop {
			stop = m.ar.End
		}
		parts = append(parts, m.data[cur-m.ar.Start:stop-m.ar.Start])
		cur = stop
	}
	return parts
}

// StoreBytes implements Memory.StoreBytes.
func (as *AddressSpace) StoreBytes(addr hostarch.Addr, src []byte) {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, part := range as.check(addr, len(src), true) {
		src = src[copy(part, src):]
	}
}

// LoadBytes implements Memory.LoadBytes.
func (as *AddressSpace) LoadBytes(addr hostarch.Addr, dst []byte) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	for _, part := range as.check(addr, len(dst), false) {
		dst = dst[copy(dst, part):]
	}
}
