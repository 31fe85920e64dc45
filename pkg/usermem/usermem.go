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

// Package usermem models guest user memory as the kernel's trap path sees it.
package usermem

import (
	"fmt"

	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/safecopy"
)

// Memory is a guest address space accessed with raw loads and stores.
//
// An access that touches an unmapped address raises a safecopy.Fault instead
// of returning. Callers must arm a fault handler (safecopy.Catch or
// ring0.CPU.Guarded) around every access, or use CopyIn and CopyOut.
type Memory interface {
	// StoreBytes writes src to addr. A store either completes or faults
	// without modifying memory.
	StoreBytes(addr hostarch.Addr, src []byte)

	// LoadBytes reads len(dst) bytes at addr into dst.
	LoadBytes(addr hostarch.Addr, dst []byte)
}

// StoreUint64 stores v at addr in guest byte order.
func StoreUint64(m Memory, addr hostarch.Addr, v uint64) {
	var buf [8]byte
	hostarch.ByteOrder.PutUint64(buf[:], v)
	m.StoreBytes(addr, buf[:])
}

// StoreUint32 stores v at addr in guest byte order.
func StoreUint32(m Memory, addr hostarch.Addr, v uint32) {
	var buf [4]byte
	hostarch.ByteOrder.PutUint32(buf[:], v)
	m.StoreBytes(addr, buf[:])
}

// LoadUint64 loads a uint64 from addr in guest byte order.
func LoadUint64(m Memory, addr hostarch.Addr) uint64 {
	var buf [8]byte
	m.LoadBytes(addr, buf[:])
	return hostarch.ByteOrder.Uint64(buf[:])
}

// LoadUint32 loads a uint32 from addr in guest byte order.
func LoadUint32(m Memory, addr hostarch.Addr) uint32 {
	var buf [4]byte
	m.LoadBytes(addr, buf[:])
	return hostarch.ByteOrder.Uint32(buf[:])
}

// CopyOut copies src to addr one page at a time. It returns the number of
// bytes copied and, on a fault, an error that matches both
// linuxerr.EFAULT and the underlying *safecopy.Fault.
func CopyOut(m Memory, addr hostarch.Addr, src []byte) (int, error) {
	return copyPages(addr, len(src), func(a hostarch.Addr, off, n int) {
		m.StoreBytes(a, src[off:off+n])
	})
}

// CopyIn copies len(dst) bytes from addr into dst one page at a time. It
// returns the number of bytes copied, with errors as for CopyOut.
func CopyIn(m Memory, addr hostarch.Addr, dst []byte) (int, error) {
	return copyPages(addr, len(dst), func(a hostarch.Addr, off, n int) {
		m.LoadBytes(a, dst[off:off+n])
	})
}

func copyPages(addr hostarch.Addr, length int, access func(a hostarch.Addr, off, n int)) (int, error) {
	done := 0
	for done < length {
		cur := addr + hostarch.Addr(done)
		n := int(hostarch.PageSize - cur.PageOffset())
		if n > length-done {
			n = length - done
		}
		if f := safecopy.Catch(func() { access(cur, done, n) }); f != nil {
			return done, fmt.Errorf("access at %v: %w", cur, f)
		}
		done += n
	}
	return done, nil
}

// IO adapts a Memory to marshal.CopyContext using checked copies.
type IO struct {
	Memory
}

// CopyInBytes implements marshal.CopyContext.CopyInBytes.
func (io IO) CopyInBytes(addr hostarch.Addr, dst []byte) (int, error) {
	return CopyIn(io.Memory, addr, dst)
}

// CopyOutBytes implements marshal.CopyContext.CopyOutBytes.
func (io IO) CopyOutBytes(addr hostarch.Addr, src []byte) (int, error) {
	return CopyOut(io.Memory, addr, src)
}
