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

package kernel

import (
	"sigframe.dev/sigframe/pkg/hostarch"
)

// VDSOOffsetRtSigreturn is the offset of __kernel_rt_sigreturn in the arm64
// vDSO image. Signal handlers without SA_RESTORER return there.
const VDSOOffsetRtSigreturn = 0x80c

// SigreturnTrampoline returns the address of the vDSO sigreturn trampoline
// of tg.
func (tg *ThreadGroup) SigreturnTrampoline() hostarch.Addr {
	return tg.vdsoBase + VDSOOffsetRtSigreturn
}
