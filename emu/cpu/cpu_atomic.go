/*
   CPU atomic memory operations (A extension): LR/SC, AMO*.

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

import "github.com/rcornwell/rv64sim/emu/trap"

const (
	amoLR      = 0b00010
	amoSC      = 0b00011
	amoSWAP    = 0b00001
	amoADD     = 0b00000
	amoXOR     = 0b00100
	amoAND     = 0b01100
	amoOR      = 0b01000
	amoMIN     = 0b10000
	amoMAX     = 0b10100
	amoMINU    = 0b11000
	amoMAXU    = 0b11100
)

func registerAtomic(t *[128]func(h *hart, d *decoded) *stepFault) {
	t[opAMO] = atomicExec
}

// atomicExec implements spec §4.7's single-hart LR/SC/AMO model: every
// AMO is a plain read-modify-write (no real contention to arbitrate),
// and SC succeeds exactly when the reservation set by the most recent
// LR is still valid and covers the same address.
func atomicExec(h *hart, d *decoded) *stepFault {
	var width int
	switch d.funct3 {
	case 2:
		width = 4
	case 3:
		width = 8
	default:
		return illegal(d)
	}

	addr := h.getX(d.rs1)
	if addr%uint64(width) != 0 {
		return &stepFault{cause: trap.CauseMisalignedLoad, tval: addr}
	}

	funct5 := d.funct7 >> 2

	switch funct5 {
	case amoLR:
		v, sf := h.readWidth(addr, width)
		if sf != nil {
			return sf
		}
		h.reservationValid = true
		h.reservationAddr = addr
		h.setX(d.rd, signExtendWidth(v, width))
		return nil

	case amoSC:
		if h.reservationValid && h.reservationAddr == addr {
			if sf := h.writeWidth(addr, width, h.getX(d.rs2)); sf != nil {
				return sf
			}
			h.reservationValid = false
			h.setX(d.rd, 0)
		} else {
			h.reservationValid = false
			h.setX(d.rd, 1)
		}
		return nil

	default:
		old, sf := h.readWidth(addr, width)
		if sf != nil {
			return sf
		}
		rs2 := h.getX(d.rs2)
		var newVal uint64
		if width == 4 {
			newVal = amoComputeW(funct5, old, rs2)
		} else {
			newVal = amoComputeD(funct5, old, rs2)
		}
		if sf := h.writeWidth(addr, width, newVal); sf != nil {
			return sf
		}
		h.setX(d.rd, signExtendWidth(old, width))
		return nil
	}
}

func signExtendWidth(v uint64, width int) uint64 {
	if width == 4 {
		return uint64(int64(int32(v)))
	}
	return v
}

func amoComputeW(funct5 uint32, old, rs2 uint64) uint64 {
	oa, ra := uint32(old), uint32(rs2)
	sa, sb := int32(oa), int32(ra)
	switch funct5 {
	case amoSWAP:
		return uint64(ra)
	case amoADD:
		return uint64(oa + ra)
	case amoXOR:
		return uint64(oa ^ ra)
	case amoAND:
		return uint64(oa & ra)
	case amoOR:
		return uint64(oa | ra)
	case amoMIN:
		if sa < sb {
			return uint64(uint32(sa))
		}
		return uint64(uint32(sb))
	case amoMAX:
		if sa > sb {
			return uint64(uint32(sa))
		}
		return uint64(uint32(sb))
	case amoMINU:
		if oa < ra {
			return uint64(oa)
		}
		return uint64(ra)
	case amoMAXU:
		if oa > ra {
			return uint64(oa)
		}
		return uint64(ra)
	}
	return old
}

func amoComputeD(funct5 uint32, old, rs2 uint64) uint64 {
	sa, sb := int64(old), int64(rs2)
	switch funct5 {
	case amoSWAP:
		return rs2
	case amoADD:
		return old + rs2
	case amoXOR:
		return old ^ rs2
	case amoAND:
		return old & rs2
	case amoOR:
		return old | rs2
	case amoMIN:
		if sa < sb {
			return old
		}
		return rs2
	case amoMAX:
		if sa > sb {
			return old
		}
		return rs2
	case amoMINU:
		if old < rs2 {
			return old
		}
		return rs2
	case amoMAXU:
		if old > rs2 {
			return old
		}
		return rs2
	}
	return old
}
