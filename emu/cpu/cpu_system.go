/*
   CPU SYSTEM opcode: ECALL/EBREAK/CSR access/SRET/MRET/WFI/SFENCE.VMA.

   Copyright (c) 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   ROBERT M SUPNIK BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

package cpu

import (
	"github.com/rcornwell/rv64sim/emu/csr"
	"github.com/rcornwell/rv64sim/emu/trap"
)

func registerSystem(t *[128]func(h *hart, d *decoded) *stepFault) {
	t[opSystem] = systemExec
}

func illegal(d *decoded) *stepFault {
	return &stepFault{cause: trap.CauseIllegalInst, tval: uint64(d.raw)}
}

func systemExec(h *hart, d *decoded) *stepFault {
	switch d.funct3 {
	case 0:
		return privExec(h, d)
	case 1:
		return csrExec(h, d, h.getX(d.rs1), true)
	case 2:
		return csrExec(h, d, h.getX(d.rs1), d.rs1 != 0)
	case 3:
		return csrExec(h, d, h.getX(d.rs1), d.rs1 != 0)
	case 5:
		return csrExec(h, d, uint64(d.rs1), true)
	case 6:
		return csrExec(h, d, uint64(d.rs1), d.rs1 != 0)
	case 7:
		return csrExec(h, d, uint64(d.rs1), d.rs1 != 0)
	}
	return illegal(d)
}

// privExec handles the funct3==0 privileged forms: ECALL, EBREAK,
// SRET, MRET, WFI, and SFENCE.VMA (spec §4.6/§4.3).
func privExec(h *hart, d *decoded) *stepFault {
	if d.funct7 == 0x09 {
		// SFENCE.VMA rs1,rs2 (spec §4.3): this build flushes all three
		// TLB sets rather than tracking per-ASID/per-address ranges.
		if h.csr.Priv < csr.PrivS {
			return illegal(d)
		}
		h.flushTLBs()
		return nil
	}

	funct12 := (d.raw >> 20) & 0xfff
	switch funct12 {
	case 0x000: // ECALL
		var cause uint64
		switch h.csr.Priv {
		case csr.PrivU:
			cause = trap.CauseUEcall
		case csr.PrivS:
			cause = trap.CauseSEcall
		default:
			cause = trap.CauseMEcall
		}
		return &stepFault{cause: cause, tval: 0}
	case 0x001: // EBREAK
		return &stepFault{cause: trap.CauseBreakpoint, tval: h.PC}
	case 0x102: // SRET
		if h.csr.Priv < csr.PrivS {
			return illegal(d)
		}
		h.setNextPC(trap.SRET(&h.csr))
		return nil
	case 0x105: // WFI
		h.halted = true
		return nil
	case 0x302: // MRET
		if h.csr.Priv != csr.PrivM {
			return illegal(d)
		}
		h.setNextPC(trap.MRET(&h.csr))
		return nil
	case 0x7b2: // DRET: resume at dpc in dcsr.prv (spec §6's checkpoint-restore path)
		if h.csr.Priv != csr.PrivM {
			return illegal(d)
		}
		h.csr.Priv = uint8(h.csr.Read(csr.Dcsr) & 3)
		h.setNextPC(h.csr.Read(csr.Dpc))
		return nil
	}
	return illegal(d)
}

// csrExec implements CSRRW/CSRRS/CSRRC and their immediate forms
// (spec §4.5): write is false when an RS/RC-family instruction's
// source operand is zero, suppressing the write (and any side
// effect) entirely, per the ISA manual.
func csrExec(h *hart, d *decoded, operand uint64, write bool) *stepFault {
	addr := uint16((d.raw >> 20) & 0xfff)
	if err := h.csr.CheckAccess(addr, write); err != nil {
		return illegal(d)
	}

	old := h.csr.Read(addr)
	if write {
		var newVal uint64
		switch d.funct3 {
		case 1, 5: // CSRRW / CSRRWI
			newVal = operand
		case 2, 6: // CSRRS / CSRRSI
			newVal = old | operand
		case 3, 7: // CSRRC / CSRRCI
			newVal = old &^ operand
		}
		res := h.csr.Write(addr, newVal)
		if res == csr.Illegal {
			return illegal(d)
		}
		h.applyCSRWrite(res)
	}
	h.setX(d.rd, old)
	return nil
}
