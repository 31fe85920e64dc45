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
	"unsafe"
)

// sizeofSignalInfo is the in-memory size of SignalInfo.
const sizeofSignalInfo = unsafe.Sizeof(SignalInfo{})

// The package fails to compile unless SignalInfo is exactly SignalInfoSize
// bytes: one of these array lengths overflows otherwise.
var (
	_ [SignalInfoSize - sizeofSignalInfo]struct{}
	_ [sizeofSignalInfo - SignalInfoSize]struct{}
)
