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

// Package linuxerr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package linuxerr

import (
	goerrors "errors"

	"golang.org/x/sys/unix"
	"sigframe.dev/sigframe/pkg/errors"
)

// The following errors are semantically identical to the unix.Errno of the
// same name, but are distinct values of type *errors.Error. Use Equals or
// ToUnix to compare them against unix.Errno values.
var (
	EPERM     = errors.New(unix.EPERM, "operation not permitted")
	ENOENT    = errors.New(unix.ENOENT, "no such file or directory")
	ESRCH     = errors.New(unix.ESRCH, "no such process")
	EINTR     = errors.New(unix.EINTR, "interrupted system call")
	EIO       = errors.New(unix.EIO, "I/O error")
	EAGAIN    = errors.New(unix.EAGAIN, "try again")
	ENOMEM    = errors.New(unix.ENOMEM, "out of memory")
	EFAULT    = errors.New(unix.EFAULT, "bad address")
	EBUSY     = errors.New(unix.EBUSY, "device or resource busy")
	EEXIST    = errors.New(unix.EEXIST, "file exists")
	EINVAL    = errors.New(unix.EINVAL, "invalid argument")
	ENOSPC    = errors.New(unix.ENOSPC, "no space left on device")
	ERANGE    = errors.New(unix.ERANGE, "math result not representable")
	ENOSYS    = errors.New(unix.ENOSYS, "invalid system call number")
	EOVERFLOW = errors.New(unix.EOVERFLOW, "value too large for defined data type")
)

var errorsByErrno = map[unix.Errno]*errors.Error{
	unix.EPERM:     EPERM,
	unix.ENOENT:    ENOENT,
	unix.ESRCH:     ESRCH,
	unix.EINTR:     EINTR,
	unix.EIO:       EIO,
	unix.EAGAIN:    EAGAIN,
	unix.ENOMEM:    ENOMEM,
	unix.EFAULT:    EFAULT,
	unix.EBUSY:     EBUSY,
	unix.EEXIST:    EEXIST,
	unix.EINVAL:    EINVAL,
	unix.ENOSPC:    ENOSPC,
	unix.ERANGE:    ERANGE,
	unix.ENOSYS:    ENOSYS,
	unix.EOVERFLOW: EOVERFLOW,
}

// errorUnwrappers is an array of unwrap functions to extract typed errors.
var errorUnwrappers = []func(error) (*errors.Error, bool){}

// AddErrorUnwrapper registers an unwrap method that can extract a concrete
// error from a typed, but not initialized, error.
func AddErrorUnwrapper(unwrap func(e error) (*errors.Error, bool)) {
	errorUnwrappers = append(errorUnwrappers, unwrap)
}

// ToError converts a unix.Errno to an *errors.Error. Errnos without a
// registered value are wrapped in a fresh *errors.Error.
func ToError(err unix.Errno) *errors.Error {
	if err == 0 {
		return nil
	}
	if e, ok := errorsByErrno[err]; ok {
		return e
	}
	return errors.New(err, err.Error())
}

// ToUnix converts an *errors.Error to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	if e == nil {
		return 0
	}
	return e.Errno()
}

// TranslateError translates err to an *errors.Error. It walks the error
// chain and consults the registered unwrappers; it returns false if nothing
// in the chain maps to an errno.
func TranslateError(from error) (*errors.Error, bool) {
	for err := from; err != nil; err = goerrors.Unwrap(err) {
		switch e := err.(type) {
		case *errors.Error:
			return e, true
		case unix.Errno:
			return ToError(e), true
		}
		for _, unwrap := range errorUnwrappers {
			if e, ok := unwrap(err); ok {
				return e, true
			}
		}
	}
	return nil, false
}

// Equals compares a linuxerr to a given error. It returns true if err
// translates to the same errno as e.
func Equals(e *errors.Error, err error) bool {
	if err == nil {
		return e == nil
	}
	if e == nil {
		return false
	}
	got, ok := TranslateError(err)
	return ok && got.Errno() == e.Errno()
}
