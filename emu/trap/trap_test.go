/*
 * rv64sim  - Trap unit tests
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

package trap

import (
	"testing"

	"github.com/rcornwell/rv64sim/emu/csr"
)

func TestRaiseUndelegatedGoesToM(t *testing.T) {
	f := csr.New()
	f.Priv = csr.PrivU
	f.Write(csr.Mtvec, 0x80000000)

	newPC := Raise(f, 0x1000, CauseIllegalInst, 0xdead, false)

	if newPC != 0x80000000 {
		t.Errorf("newPC = %#x, want mtvec 0x80000000", newPC)
	}
	if f.Priv != csr.PrivM {
		t.Errorf("priv = %d, want M", f.Priv)
	}
	if f.Mepc() != 0x1000 {
		t.Errorf("mepc = %#x, want 0x1000", f.Mepc())
	}
	if f.Mcause() != CauseIllegalInst {
		t.Errorf("mcause = %d, want %d", f.Mcause(), CauseIllegalInst)
	}
	if f.Mtval() != 0xdead {
		t.Errorf("mtval = %#x, want 0xdead", f.Mtval())
	}
}

func TestRaiseDelegatedGoesToS(t *testing.T) {
	f := csr.New()
	f.Priv = csr.PrivS
	f.Write(csr.Medeleg, 1<<CauseBreakpoint)
	f.Write(csr.Stvec, 0x80001000)

	newPC := Raise(f, 0x2000, CauseBreakpoint, 0x2000, false)

	if newPC != 0x80001000 {
		t.Errorf("newPC = %#x, want stvec 0x80001000", newPC)
	}
	if f.Priv != csr.PrivS {
		t.Errorf("priv = %d, want S", f.Priv)
	}
	if f.Sepc() != 0x2000 {
		t.Errorf("sepc = %#x, want 0x2000", f.Sepc())
	}
	if f.Scause() != CauseBreakpoint {
		t.Errorf("scause = %d, want %d", f.Scause(), CauseBreakpoint)
	}
}

func TestRaiseInterruptSetsHighBit(t *testing.T) {
	f := csr.New()
	f.Write(csr.Mtvec, 0x80000000)

	Raise(f, 0x1000, IntMTI, 0, true)

	want := InterruptBit | IntMTI
	if f.Mcause() != want {
		t.Errorf("mcause = %#x, want %#x", f.Mcause(), want)
	}
}

func TestRaiseVectoredInterruptOffsetsByCause(t *testing.T) {
	f := csr.New()
	f.Write(csr.Mtvec, 0x80000000|1) // mode=1, vectored

	newPC := Raise(f, 0x1000, IntMTI, 0, true)

	want := uint64(0x80000000) + 4*IntMTI
	if newPC != want {
		t.Errorf("newPC = %#x, want %#x (vectored base+4*cause)", newPC, want)
	}
}

func TestRaiseSynchronousTrapIgnoresVectoring(t *testing.T) {
	f := csr.New()
	f.Write(csr.Mtvec, 0x80000000|1)

	newPC := Raise(f, 0x1000, CauseIllegalInst, 0, false)

	if newPC != 0x80000000 {
		t.Errorf("synchronous trap should always land at the vector base, got %#x", newPC)
	}
}

func TestMRETRestoresPriorPrivilegeAndReenablesMIE(t *testing.T) {
	f := csr.New()
	f.Priv = csr.PrivM
	f.SetMPP(csr.PrivU)
	f.SetMPIE(true)
	f.SetMepc(0x3000)

	newPC := MRET(f)

	if newPC != 0x3000 {
		t.Errorf("newPC = %#x, want mepc 0x3000", newPC)
	}
	if f.Priv != csr.PrivU {
		t.Errorf("priv = %d, want U (restored from MPP)", f.Priv)
	}
	if !f.MIE() {
		t.Error("MIE should be set from MPIE on MRET")
	}
	if f.MPP() != csr.PrivU {
		t.Errorf("MPP should reset to U after MRET, got %d", f.MPP())
	}
}

func TestSRETRestoresPriorPrivilegeAndReenablesSIE(t *testing.T) {
	f := csr.New()
	f.Priv = csr.PrivS
	f.SetSPP(csr.PrivU)
	f.SetSPIE(true)
	f.SetSepc(0x4000)

	newPC := SRET(f)

	if newPC != 0x4000 {
		t.Errorf("newPC = %#x, want sepc 0x4000", newPC)
	}
	if f.Priv != csr.PrivU {
		t.Errorf("priv = %d, want U (restored from SPP)", f.Priv)
	}
	if !f.SIE() {
		t.Error("SIE should be set from SPIE on SRET")
	}
}

func TestPendingInterruptNoneWhenMIEMasksAll(t *testing.T) {
	f := csr.New()
	f.Priv = csr.PrivM
	f.OrMip(1 << IntMTI)
	f.Write(csr.Mie, 1<<IntMTI)
	f.SetMIE(false)

	if _, ok := PendingInterrupt(f); ok {
		t.Error("an M-mode hart with mie.MIE clear must not take the interrupt")
	}
}

func TestPendingInterruptTakenWhenEnabled(t *testing.T) {
	f := csr.New()
	f.Priv = csr.PrivM
	f.OrMip(1 << IntMTI)
	f.Write(csr.Mie, 1<<IntMTI)
	f.SetMIE(true)

	cause, ok := PendingInterrupt(f)
	if !ok || cause != IntMTI {
		t.Fatalf("PendingInterrupt = (%d, %v), want (%d, true)", cause, ok, IntMTI)
	}
}

func TestPendingInterruptLowestNumberedWins(t *testing.T) {
	f := csr.New()
	f.Priv = csr.PrivM
	f.OrMip(1<<IntMSI | 1<<IntMTI)
	f.Write(csr.Mie, 1<<IntMSI|1<<IntMTI)
	f.SetMIE(true)

	cause, ok := PendingInterrupt(f)
	if !ok || cause != IntMSI {
		t.Fatalf("PendingInterrupt = (%d, %v), want lowest-numbered %d", cause, ok, IntMSI)
	}
}

func TestPendingInterruptAlwaysTakenInUMode(t *testing.T) {
	f := csr.New()
	f.Priv = csr.PrivU
	f.OrMip(1 << IntMTI)
	f.Write(csr.Mie, 1<<IntMTI)
	f.SetMIE(false) // mstatus.MIE is irrelevant below M-mode

	if _, ok := PendingInterrupt(f); !ok {
		t.Error("a pending, enabled interrupt must always be taken below M-mode")
	}
}

func TestDebugRejectsUnknownOption(t *testing.T) {
	if err := Debug("BOGUS"); err == nil {
		t.Error("Debug should reject an unrecognized option")
	}
	if err := Debug("TRAP"); err != nil {
		t.Errorf("Debug(TRAP) should be accepted, got %v", err)
	}
}
