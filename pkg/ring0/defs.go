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

// Package ring0 holds the per-processor state of the kernel's trap path.
package ring0

import (
	"fmt"

	"sigframe.dev/sigframe/pkg/hostarch"
)

var (
	// UserspaceSize is the total size of userspace.
	UserspaceSize = uintptr(1) << (VirtualAddressBits())

	// MaximumUserAddress is the largest possible user address.
	MaximumUserAddress = (UserspaceSize - 1) & ^uintptr(hostarch.PageSize-1)
)

// VirtualAddressBits returns the number bits available for virtual addresses.
func VirtualAddressBits() uint32 {
	return 48
}

// IsUserAddress returns true if the range [addr, addr+length) lies within
// userspace.
func IsUserAddress(addr hostarch.Addr, length uint64) bool {
	end, ok := addr.AddLength(length)
	return ok && uintptr(end) <= MaximumUserAddress
}

// Vector is an exception vector.
type Vector uintptr

// Exception vectors recorded by the trap path.
const (
	NoVector Vector = iota
	El1SyncDa
)

// String implements fmt.Stringer.
func (v Vector) String() string {
	switch v {
	case NoVector:
		return "none"
	case El1SyncDa:
		return "el1_da"
	default:
		return fmt.Sprintf("vector(%d)", uintptr(v))
	}
}

// Kernel is a global kernel object.
//
// This contains global state, shared by multiple CPUs. The CPU table is
// sized once by Init and never grows.
type Kernel struct {
	cpus []CPU
}

// Init initializes a kernel with maxCPUs processor slots.
func (k *Kernel) Init(maxCPUs int) {
	if maxCPUs <= 0 {
		panic(fmt.Sprintf("invalid CPU count %d", maxCPUs))
	}
	k.cpus = make([]CPU, maxCPUs)
	for i := range k.cpus {
		k.cpus[i].init(k, i)
	}
}

// NumCPUs returns the number of processor slots.
func (k *Kernel) NumCPUs() int {
	return len(k.cpus)
}

// CPU returns the slot for processor id.
//
// Preconditions: 0 <= id < k.NumCPUs().
func (k *Kernel) CPU(id int) *CPU {
	if id < 0 || id >= len(k.cpus) {
		panic(fmt.Sprintf("CPU %d out of range [0, %d)", id, len(k.cpus)))
	}
	return &k.cpus[id]
}

// CPU is the per-CPU struct.
//
// A CPU is used by one trap path at a time; none of its methods are safe for
// concurrent use.
type CPU struct {
	// id is the index of this CPU in its kernel's table.
	id int

	// kernel is reference to the kernel that this CPU was initialized
	// with.
	kernel *Kernel

	// errorCode is the error code from the last exception.
	errorCode uint64

	// errorType indicates the type of error code here, it is always set
	// along with the errorCode value above.
	//
	// It will either by 1, which indicates a user error, or 0 indicating a
	// kernel error.
	errorType uint64

	// faultAddr is the value of far_el1.
	faultAddr uintptr

	// vecCode is the exception vector of the last exception.
	vecCode Vector

	// guard is the active fault guard, if any.
	guard *FaultGuard

	// faults counts the faults intercepted by guards on this CPU.
	faults uint64
}

func (c *CPU) init(k *Kernel, id int) {
	c.id = id
	c.kernel = k
	c.ClearErrorCode()
}

// ID returns the index of c in its kernel's table.
func (c *CPU) ID() int {
	return c.id
}

// ErrorCode returns the last error code.
//
// The returned boolean indicates whether the error code corresponds to the
// last user error or not. If it does not, then fault information must be
// ignored. This is generally the result of a kernel fault while servicing a
// user fault.
func (c *CPU) ErrorCode() (value uint64, user bool) {
	return c.errorCode, c.errorType != 0
}

// ClearErrorCode resets the error code.
func (c *CPU) ClearErrorCode() {
	c.errorCode = 0 // No code.
	c.errorType = 1 // User mode.
	c.faultAddr = 0
	c.vecCode = NoVector
}

// GetFaultAddr returns the address of the last intercepted fault.
func (c *CPU) GetFaultAddr() (value uintptr) {
	return c.faultAddr
}

// GetVector returns the vector of the last intercepted fault.
func (c *CPU) GetVector() (value Vector) {
	return c.vecCode
}

// Faults returns the number of faults intercepted on c.
func (c *CPU) Faults() uint64 {
	return c.faults
}

// InGuard returns true if a fault guard is active on c.
func (c *CPU) InGuard() bool {
	return c.guard != nil
}
