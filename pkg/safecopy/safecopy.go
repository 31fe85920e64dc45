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

// Package safecopy classifies memory access faults taken while the kernel
// touches guest memory.
//
// A trapping access does not return an error: it raises a *Fault, the way a
// data abort unwinds to the exception vector. Only code that has armed a
// fault handler (see Catch and ring0.FaultGuard) may perform such accesses;
// an uncaught Fault crashes the kernel.
package safecopy

import (
	"fmt"

	"sigframe.dev/sigframe/pkg/errors"
	"sigframe.dev/sigframe/pkg/errors/linuxerr"
)

// SegvError is returned when a safecopy function receives SIGSEGV.
type SegvError struct {
	// Addr is the address at which the SIGSEGV occurred.
	Addr uintptr
}

// Error implements error.Error.
func (e SegvError) Error() string {
	return fmt.Sprintf("SIGSEGV at %#x", e.Addr)
}

// BusError is returned when a safecopy function receives SIGBUS.
type BusError struct {
	// Addr is the address at which the SIGBUS occurred.
	Addr uintptr
}

// Error implements error.Error.
func (e BusError) Error() string {
	return fmt.Sprintf("SIGBUS at %#x", e.Addr)
}

// AlignmentError is returned when a safecopy function is passed an address
// that does not meet alignment requirements.
type AlignmentError struct {
	// Addr is the invalid address.
	Addr uintptr

	// Alignment is the required alignment.
	Alignment uintptr
}

// Error implements error.Error.
func (e AlignmentError) Error() string {
	return fmt.Sprintf("address %#x is not aligned to a %d-byte boundary", e.Addr, e.Alignment)
}

// Exception syndrome values for data aborts taken from the kernel, in the
// ESR_EL1 encoding.
const (
	// ESRDataAbortSameEL is the exception class of a data abort taken
	// without a change in exception level.
	ESRDataAbortSameEL = 0x25 << 26

	// ESRInstructionLength marks a 32-bit instruction.
	ESRInstructionLength = 1 << 25

	// ESRWriteNotRead is set when the abort was caused by a store.
	ESRWriteNotRead = 1 << 6

	// ESRTranslationFault is the level 3 translation fault status code.
	ESRTranslationFault = 0x07

	// ESRAlignmentFault is the alignment fault status code.
	ESRAlignmentFault = 0x21

	// ESRExternalAbort is the synchronous external abort status code.
	ESRExternalAbort = 0x10
)

// Fault is raised by a trapping guest memory access.
type Fault struct {
	// Err is one of SegvError, BusError or AlignmentError.
	Err error

	// ErrorCode is the exception syndrome of the access.
	ErrorCode uint64
}

// Error implements error.Error.
func (f *Fault) Error() string {
	return fmt.Sprintf("fault (esr %#x): %v", f.ErrorCode, f.Err)
}

// Unwrap returns the classified fault.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Is reports every fault as EFAULT, so errors.Is(err, linuxerr.EFAULT) holds
// for any error chain containing a Fault.
func (f *Fault) Is(target error) bool {
	return target == error(linuxerr.EFAULT)
}

// Addr returns the faulting address.
func (f *Fault) Addr() uintptr {
	switch e := f.Err.(type) {
	case SegvError:
		return e.Addr
	case BusError:
		return e.Addr
	case AlignmentError:
		return e.Addr
	default:
		return 0
	}
}

// SyndromeFor returns the exception syndrome for a kernel access fault of
// the given class.
func SyndromeFor(err error, write bool) uint64 {
	code := uint64(ESRDataAbortSameEL | ESRInstructionLength)
	if write {
		code |= ESRWriteNotRead
	}
	switch err.(type) {
	case AlignmentError:
		code |= ESRAlignmentFault
	case BusError:
		code |= ESRExternalAbort
	default:
		code |= ESRTranslationFault
	}
	return code
}

// Raise takes a fault for the given access. It does not return.
func Raise(err error, write bool) {
	panic(&Fault{Err: err, ErrorCode: SyndromeFor(err, write)})
}

// Catch runs fn with a fault handler armed. If fn raises a Fault, Catch
// returns it; any other panic propagates unchanged.
func Catch(fn func()) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Fault)
			if !ok {
				panic(r)
			}
			fault = f
		}
	}()
	fn()
	return nil
}

// ToErrno returns the errno a fault error is reported as, or false if err is
// not a fault.
func ToErrno(err error) (*errors.Error, bool) {
	switch err.(type) {
	case *Fault, SegvError, BusError, AlignmentError:
		return linuxerr.EFAULT, true
	default:
		return nil, false
	}
}

func init() {
	linuxerr.AddErrorUnwrapper(ToErrno)
}
