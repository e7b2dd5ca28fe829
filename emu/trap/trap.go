/*
 * rv64sim  - Trap unit: exception/interrupt entry and return
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package trap raises and returns from RISC-V exceptions and
// interrupts. It plays the role the teacher's storePSW/lpsw/suppress
// trio plays for S/370: given a cause and a faulting value, it snaps
// the privilege-mode state machine into the target mode and redirects
// the PC; SRET/MRET/DRET reverse the process.
package trap

import (
	"errors"

	"github.com/rcornwell/rv64sim/emu/csr"
)

// Synchronous exception cause numbers, spec §6.
const (
	CauseMisalignedFetch uint64 = 0
	CauseFaultFetch      uint64 = 1
	CauseIllegalInst     uint64 = 2
	CauseBreakpoint      uint64 = 3
	CauseMisalignedLoad  uint64 = 4
	CauseFaultLoad       uint64 = 5
	CauseMisalignedStore uint64 = 6
	CauseFaultStore      uint64 = 7
	CauseUEcall          uint64 = 8
	CauseSEcall          uint64 = 9
	CauseMEcall          uint64 = 11
	CauseFetchPageFault  uint64 = 12
	CauseLoadPageFault   uint64 = 13
	CauseStorePageFault  uint64 = 15
)

// Standard interrupt cause bits (also CSR bit positions in mip/mie).
const (
	IntSSI uint64 = 1 // supervisor software interrupt
	IntMSI uint64 = 3 // machine software interrupt
	IntSTI uint64 = 5 // supervisor timer interrupt
	IntMTI uint64 = 7 // machine timer interrupt
	IntSEI uint64 = 9 // supervisor external interrupt
	IntMEI uint64 = 11
)

// InterruptBit is the high bit of XLEN=64, set in xcause for interrupts.
const InterruptBit uint64 = 1 << 63

// Fault is the compact success/fault result memory and translation
// helpers return, per spec §7's propagation policy: a cause plus tval,
// checked by the interpreter before it continues.
type Fault struct {
	Cause uint64
	Tval  uint64
}

// Raise implements spec §4.6 exception entry: consult delegation,
// save xepc/xcause/xtval, snapshot xPIE/xPP, switch privilege, and
// return the redirected PC.
func Raise(f *csr.File, pc uint64, cause uint64, tval uint64, isInterrupt bool) (newPC uint64) {
	bit := cause
	delegated := false
	if f.Priv <= csr.PrivS {
		if isInterrupt {
			delegated = f.Mideleg()&(1<<bit) != 0
		} else {
			delegated = f.Medeleg()&(1<<bit) != 0
		}
	}

	storedCause := cause
	if isInterrupt {
		storedCause |= InterruptBit
	}

	prevPriv := f.Priv
	var tvec uint64
	if delegated {
		f.SetSepc(pc)
		f.SetScause(storedCause)
		f.SetStval(tval)
		f.SetSPIE(f.SIE())
		f.SetSIE(false)
		f.SetSPP(prevPriv)
		f.Priv = csr.PrivS
		tvec = f.Stvec()
	} else {
		f.SetMepc(pc)
		f.SetMcause(storedCause)
		f.SetMtval(tval)
		f.SetMPIE(f.MIE())
		f.SetMIE(false)
		f.SetMPP(prevPriv)
		f.Priv = csr.PrivM
		tvec = f.Mtvec()
	}

	base := tvec &^ 3
	if tvec&1 == 1 && isInterrupt {
		return base + 4*cause
	}
	return base
}

// SRET implements spec §4.6's trap return for S-mode: copy SPIE into
// SIE, set SPIE, restore privilege from SPP, clear SPP, PC <- sepc.
func SRET(f *csr.File) (newPC uint64) {
	f.SetSIE(f.SPIE())
	f.SetSPIE(true)
	f.Priv = f.SPP()
	f.SetSPP(csr.PrivU)
	return f.Sepc()
}

// MRET is SRET's M-mode analogue.
func MRET(f *csr.File) (newPC uint64) {
	f.SetMIE(f.MPIE())
	f.SetMPIE(true)
	mpp := f.MPP()
	f.Priv = mpp
	f.SetMPP(csr.PrivU)
	return f.Mepc()
}

// PendingInterrupt implements spec §4.6's interrupt selection: compute
// mip & mie, restrict to what the current privilege allows, and take
// the lowest-numbered allowed bit. Returns (cause, true) or (0, false).
func PendingInterrupt(f *csr.File) (uint64, bool) {
	pending := f.Mip() & f.Mie()
	if pending == 0 {
		return 0, false
	}
	for bit := uint64(0); bit < 64; bit++ {
		if pending&(1<<bit) == 0 {
			continue
		}
		delegated := f.Mideleg()&(1<<bit) != 0
		allowed := false
		switch f.Priv {
		case csr.PrivM:
			allowed = !delegated && f.MIE()
		case csr.PrivS:
			allowed = !delegated || f.SIE()
		case csr.PrivU:
			allowed = true
		}
		if allowed {
			return bit, true
		}
	}
	return 0, false
}

const (
	debugTrap = 1 << iota
)

var debugOption = map[string]int{
	"TRAP": debugTrap,
}

var debugMsk int

// Debug enables a trap-subsystem debug option.
func Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("trap debug option invalid: " + opt)
	}
	debugMsk |= flag
	return nil
}
