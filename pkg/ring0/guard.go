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

package ring0

import (
	"fmt"

	"sigframe.dev/sigframe/pkg/hostarch"
	"sigframe.dev/sigframe/pkg/safecopy"
	"sigframe.dev/sigframe/pkg/usermem"
)

// FaultGuard is an armed fault-interception scope on one CPU.
//
// A FaultGuard exists only for the duration of a CPU.Guarded callback. All
// guest accesses made inside the scope go through it; using a guard after
// its scope has ended panics.
type FaultGuard struct {
	cpu      *CPU
	released bool
}

// Guarded runs fn with a fault guard armed on c.
//
// A guest memory fault raised inside fn unwinds fn, is recorded on c (see
// ErrorCode, GetFaultAddr and GetVector) and is returned as an error that
// satisfies errors.Is(err, linuxerr.EFAULT) and errors.As(err,
// *safecopy.SegvError). Otherwise Guarded returns the result of fn. The
// guard is released on every path, including panics that are not faults.
//
// Guards do not nest: calling Guarded while a guard is active on c panics.
func (c *CPU) Guarded(fn func(g *FaultGuard) error) error {
	if c.guard != nil {
		panic(fmt.Sprintf("fault guard already active on CPU %d", c.id))
	}
	c.ClearErrorCode()
	g := &FaultGuard{cpu: c}
	c.guard = g
	defer g.release()

	var err error
	if f := safecopy.Catch(func() { err = fn(g) }); f != nil {
		c.errorCode = f.ErrorCode
		c.errorType = 0
		c.faultAddr = f.Addr()
		c.vecCode = El1SyncDa
		c.faults++
		return fmt.Errorf("CPU %d: %w", c.id, f)
	}
	return err
}

func (g *FaultGuard) release() {
	g.released = true
	if g.cpu.guard == g {
		g.cpu.guard = nil
	}
}

// check panics if g is no longer armed.
func (g *FaultGuard) check() {
	if g.released {
		panic(fmt.Sprintf("use of released fault guard on CPU %d", g.cpu.id))
	}
}

// CPU returns the CPU the guard is armed on.
func (g *FaultGuard) CPU() *CPU {
	return g.cpu
}

// StoreBytes writes src to addr in m.
func (g *FaultGuard) StoreBytes(m usermem.Memory, addr hostarch.Addr, src []byte) {
	g.check()
	m.StoreBytes(addr, src)
}

// StoreUint64 writes v to addr in m.
func (g *FaultGuard) StoreUint64(m usermem.Memory, addr hostarch.Addr, v uint64) {
	g.check()
	usermem.StoreUint64(m, addr, v)
}

// StoreUint32 writes v to addr in m.
func (g *FaultGuard) StoreUint32(m usermem.Memory, addr hostarch.Addr, v uint32) {
	g.check()
	usermem.StoreUint32(m, addr, v)
}

// LoadBytes reads len(dst) bytes at addr in m.
func (g *FaultGuard) LoadBytes(m usermem.Memory, addr hostarch.Addr, dst []byte) {
	g.check()
	m.LoadBytes(addr, dst)
}
