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

package arch

import (
	"fmt"

	"sigframe.dev/sigframe/pkg/abi/linux"
	"sigframe.dev/sigframe/pkg/hostarch"
)

// SignalAct represents the action that should be taken when a signal is
// delivered, and is equivalent to struct sigaction.
type SignalAct struct {
	Handler  uint64
	Flags    uint64
	Restorer uint64
	Mask     linux.SignalSet
}

// SignalStack represents information about a user stack, and is equivalent to
// stack_t.
type SignalStack struct {
	Addr  uint64
	Flags uint32
	_     uint32
	Size  uint64
}

// SizeofSignalStack is the size of stack_t.
const SizeofSignalStack = 24

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (s *SignalStack) SizeBytes() int {
	return SizeofSignalStack
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (s *SignalStack) MarshalBytes(dst []byte) {
	hostarch.ByteOrder.PutUint64(dst[0:8], s.Addr)
	hostarch.ByteOrder.PutUint32(dst[8:12], s.Flags)
	hostarch.ByteOrder.PutUint32(dst[12:16], 0)
	hostarch.ByteOrder.PutUint64(dst[16:24], s.Size)
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (s *SignalStack) UnmarshalBytes(src []byte) {
	s.Addr = hostarch.ByteOrder.Uint64(src[0:8])
	s.Flags = hostarch.ByteOrder.Uint32(src[8:12])
	s.Size = hostarch.ByteOrder.Uint64(src[16:24])
}

// Contains checks if the stack pointer is within this stack.
func (s *SignalStack) Contains(sp hostarch.Addr) bool {
	return hostarch.Addr(s.Addr) < sp && sp <= hostarch.Addr(s.Addr+s.Size)
}

// Top returns the stack's top address.
func (s *SignalStack) Top() hostarch.Addr {
	return hostarch.Addr(s.Addr + s.Size)
}

// SetOnStack marks this signal stack as in use.
//
// Note that there is no corresponding ClearOnStack, and that this should only
// be called on copies that are serialized to userspace.
func (s *SignalStack) SetOnStack() {
	s.Flags |= linux.SS_ONSTACK
}

// IsEnabled returns true iff this signal stack is marked as enabled.
func (s *SignalStack) IsEnabled() bool {
	return s.Flags&linux.SS_DISABLE == 0 && s.Size != 0
}

// SignalInfo represents information about a signal being delivered, and is
// equivalent to struct siginfo in linux kernel(linux/include/uapi/asm-generic/siginfo.h).
type SignalInfo struct {
	Signo int32 // Signal number
	Errno int32 // Errno value
	Code  int32 // Signal code
	_     uint32

	// struct siginfo::_sifields is a union. In SignalInfo, fields in the union
	// are accessed through methods.
	//
	// _sifields is padded so that the size of siginfo is SI_MAX_SIZE = 128
	// bytes.
	Fields [SignalInfoSize - 16]byte
}

// SignalInfoSize is the size of struct siginfo, SI_MAX_SIZE.
const SignalInfoSize = 128

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (s *SignalInfo) SizeBytes() int {
	return SignalInfoSize
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (s *SignalInfo) MarshalBytes(dst []byte) {
	dst = dst[:SignalInfoSize]
	hostarch.ByteOrder.PutUint32(dst[0:4], uint32(s.Signo))
	hostarch.ByteOrder.PutUint32(dst[4:8], uint32(s.Errno))
	hostarch.ByteOrder.PutUint32(dst[8:12], uint32(s.Code))
	hostarch.ByteOrder.PutUint32(dst[12:16], 0)
	copy(dst[16:], s.Fields[:])
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (s *SignalInfo) UnmarshalBytes(src []byte) {
	src = src[:SignalInfoSize]
	s.Signo = int32(hostarch.ByteOrder.Uint32(src[0:4]))
	s.Errno = int32(hostarch.ByteOrder.Uint32(src[4:8]))
	s.Code = int32(hostarch.ByteOrder.Uint32(src[8:12]))
	copy(s.Fields[:], src[16:])
}

// Signal returns the signal number as a linux.Signal.
func (s *SignalInfo) Signal() linux.Signal {
	return linux.Signal(s.Signo)
}

// PID returns the si_pid field.
func (s *SignalInfo) PID() int32 {
	return int32(hostarch.ByteOrder.Uint32(s.Fields[0:4]))
}

// SetPID mutates the si_pid field.
func (s *SignalInfo) SetPID(val int32) {
	hostarch.ByteOrder.PutUint32(s.Fields[0:4], uint32(val))
}

// UID returns the si_uid field.
func (s *SignalInfo) UID() int32 {
	return int32(hostarch.ByteOrder.Uint32(s.Fields[4:8]))
}

// SetUID mutates the si_uid field.
func (s *SignalInfo) SetUID(val int32) {
	hostarch.ByteOrder.PutUint32(s.Fields[4:8], uint32(val))
}

// Sigval returns the sigval field, which is aliased to both si_int and si_ptr.
func (s *SignalInfo) Sigval() uint64 {
	return hostarch.ByteOrder.Uint64(s.Fields[8:16])
}

// SetSigval mutates the sigval field.
func (s *SignalInfo) SetSigval(val uint64) {
	hostarch.ByteOrder.PutUint64(s.Fields[8:16], val)
}

// Addr returns the si_addr field.
func (s *SignalInfo) Addr() uint64 {
	return hostarch.ByteOrder.Uint64(s.Fields[0:8])
}

// SetAddr sets the si_addr field.
func (s *SignalInfo) SetAddr(val uint64) {
	hostarch.ByteOrder.PutUint64(s.Fields[0:8], val)
}

// Status returns the si_status field.
func (s *SignalInfo) Status() int32 {
	return int32(hostarch.ByteOrder.Uint32(s.Fields[8:12]))
}

// SetStatus mutates the si_status field.
func (s *SignalInfo) SetStatus(val int32) {
	hostarch.ByteOrder.PutUint32(s.Fields[8:12], uint32(val))
}

// String implements fmt.Stringer.
func (s *SignalInfo) String() string {
	return fmt.Sprintf("{signo=%v errno=%d code=%d}", s.Signal(), s.Errno, s.Code)
}

func init() {
	// ucontext follows siginfo directly in the frame.
	if got := len(marshalSignalInfo(&SignalInfo{})); got != SignalInfoSize || sizeofSignalInfo != SignalInfoSize {
		panic(fmt.Sprintf("siginfo is %d bytes (in memory %d), want %d", got, sizeofSignalInfo, SignalInfoSize))
	}
}

func marshalSignalInfo(s *SignalInfo) []byte {
	buf := make([]byte, s.SizeBytes())
	s.MarshalBytes(buf)
	return buf
}
