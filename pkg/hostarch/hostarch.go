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

// Package hostarch contains address and byte-order definitions for the guest
// aarch64 user address space.
package hostarch

import (
	"encoding/binary"
)

const (
	// PageShift is the binary log of the guest page size (4K pages).
	PageShift = 12

	// PageSize is the guest page size.
	PageSize = 1 << PageShift

	// StackAlignment is the alignment the aarch64 procedure call standard
	// requires of the stack pointer at public interfaces.
	StackAlignment = 16
)

// ByteOrder is the native byte order of the guest (little endian).
var ByteOrder = binary.LittleEndian
