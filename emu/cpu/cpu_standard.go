/*
   CPU standard integer instructions: OP/OP-IMM/OP-32/OP-IMM-32, LUI,
   AUIPC, JAL, JALR, branches, loads, stores, FENCE.

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

// buildTable constructs the opcode-indexed dispatch table (spec
// §4.7), the RISC-V-generalized form of the teacher's
// cpu.table[256]func(*stepInfo) uint16 idiom: one slot per base
// opcode rather than per full 8-bit S/370 opcode byte, since RISC-V's
// funct3/funct7 sub-dispatch happens inside each handler instead.
func buildTable() [128]func(h *hart, d *decoded) *stepFault {
	var t [128]func(h *hart, d *decoded) *stepFault

	t[opOpImm] = opImmExec
	t[opOpImm32] = opImm32Exec
	t[opOp] = opExec
	t[opOp32] = op32Exec
	t[opLUI] = luiExec
	t[opAUIPC] = auipcExec
	t[opJAL] = jalExec
	t[opJALR] = jalrExec
	t[opBranch] = branchExec
	t[opLoad] = loadExec
	t[opStore] = storeExec
	t[opMiscMem] = fenceExec

	registerAtomic(&t)
	registerFloat(&t)
	registerSystem(&t)

	return t
}

func opImmExec(h *hart, d *decoded) *stepFault {
	a := h.getX(d.rs1)
	imm := uint64(d.imm)
	var v uint64
	switch d.funct3 {
	case 0:
		v = a + imm
	case 1:
		v = a << (imm & 0x3f)
	case 2:
		if int64(a) < d.imm {
			v = 1
		}
	case 3:
		if a < imm {
			v = 1
		}
	case 4:
		v = a ^ imm
	case 5:
		shamt := imm & 0x3f
		if (d.imm>>10)&1 != 0 {
			v = uint64(int64(a) >> shamt)
		} else {
			v = a >> shamt
		}
	case 6:
		v = a | imm
	case 7:
		v = a & imm
	}
	h.setX(d.rd, v)
	return nil
}

func opImm32Exec(h *hart, d *decoded) *stepFault {
	a := uint32(h.getX(d.rs1))
	shamt := uint32(d.imm) & 0x1f
	var v int32
	switch d.funct3 {
	case 0:
		v = int32(a) + int32(d.imm)
	case 1:
		v = int32(a << shamt)
	case 5:
		if (d.imm>>10)&1 != 0 {
			v = int32(a) >> shamt
		} else {
			v = int32(a >> shamt)
		}
	default:
		return &stepFault{cause: trap.CauseIllegalInst, tval: uint64(d.raw)}
	}
	h.setX(d.rd, uint64(int64(v)))
	return nil
}

func opExec(h *hart, d *decoded) *stepFault {
	a, b := h.getX(d.rs1), h.getX(d.rs2)
	if d.funct7 == 1 {
		h.setX(d.rd, mulDiv64(d.funct3, a, b))
		return nil
	}
	var v uint64
	switch d.funct3 {
	case 0:
		if d.funct7 == 0x20 {
			v = a - b
		} else {
			v = a + b
		}
	case 1:
		v = a << (b & 0x3f)
	case 2:
		if int64(a) < int64(b) {
			v = 1
		}
	case 3:
		if a < b {
			v = 1
		}
	case 4:
		v = a ^ b
	case 5:
		if d.funct7 == 0x20 {
			v = uint64(int64(a) >> (b & 0x3f))
		} else {
			v = a >> (b & 0x3f)
		}
	case 6:
		v = a | b
	case 7:
		v = a & b
	}
	h.setX(d.rd, v)
	return nil
}

func op32Exec(h *hart, d *decoded) *stepFault {
	a, b := h.getX(d.rs1), h.getX(d.rs2)
	if d.funct7 == 1 {
		h.setX(d.rd, mulDiv32(d.funct3, a, b))
		return nil
	}
	ua, ub := uint32(a), uint32(b)
	var v int32
	switch d.funct3 {
	case 0:
		if d.funct7 == 0x20 {
			v = int32(ua - ub)
		} else {
			v = int32(ua + ub)
		}
	case 1:
		v = int32(ua << (ub & 0x1f))
	case 5:
		if d.funct7 == 0x20 {
			v = int32(ua) >> (ub & 0x1f)
		} else {
			v = int32(ua >> (ub & 0x1f))
		}
	default:
		return &stepFault{cause: trap.CauseIllegalInst, tval: uint64(d.raw)}
	}
	h.setX(d.rd, uint64(int64(v)))
	return nil
}

func luiExec(h *hart, d *decoded) *stepFault {
	h.setX(d.rd, uint64(d.imm))
	return nil
}

func auipcExec(h *hart, d *decoded) *stepFault {
	h.setX(d.rd, h.PC+uint64(d.imm))
	return nil
}

func jalExec(h *hart, d *decoded) *stepFault {
	target := h.PC + uint64(d.imm)
	if target&1 != 0 {
		return &stepFault{cause: trap.CauseMisalignedFetch, tval: target}
	}
	classifyLink(h, d.rd, 0, false)
	h.setX(d.rd, h.PC+uint64(d.width))
	h.setNextPC(target)
	return nil
}

func jalrExec(h *hart, d *decoded) *stepFault {
	target := (h.getX(d.rs1) + uint64(d.imm)) &^ 1
	if target&1 != 0 {
		return &stepFault{cause: trap.CauseMisalignedFetch, tval: target}
	}
	classifyLink(h, d.rd, d.rs1, true)
	link := h.PC + uint64(d.width)
	h.setX(d.rd, link)
	h.setNextPC(target)
	return nil
}

// classifyLink implements spec §4.7's control-flow hint: rd/rs1 in
// {1,5} are link registers; rd-link & rs1-link with rs1==rd promotes
// "pop-push" to a plain "push" (call), matching the standard
// RISC-V return-address-stack heuristic.
func classifyLink(h *hart, rd, rs1 uint8, indirect bool) {
	rdLink := rd == 1 || rd == 5
	rs1Link := rs1 == 1 || rs1 == 5
	switch {
	case !indirect && rdLink:
		lastControlFlow = CfDirectCall
	case !indirect:
		lastControlFlow = CfPlainJump
	case rdLink && rs1Link && rs1 == rd:
		lastControlFlow = CfDirectCall
	case rdLink:
		lastControlFlow = CfIndirectCall
	case rs1Link:
		lastControlFlow = CfIndirectReturn
	default:
		lastControlFlow = CfIndirectCall
	}
}

func branchExec(h *hart, d *decoded) *stepFault {
	a, b := h.getX(d.rs1), h.getX(d.rs2)
	var taken bool
	switch d.funct3 {
	case 0:
		taken = a == b
	case 1:
		taken = a != b
	case 4:
		taken = int64(a) < int64(b)
	case 5:
		taken = int64(a) >= int64(b)
	case 6:
		taken = a < b
	case 7:
		taken = a >= b
	default:
		return &stepFault{cause: trap.CauseIllegalInst, tval: uint64(d.raw)}
	}
	if taken {
		target := h.PC + uint64(d.imm)
		if target&1 != 0 {
			return &stepFault{cause: trap.CauseMisalignedFetch, tval: target}
		}
		h.setNextPC(target)
	}
	return nil
}

func loadExec(h *hart, d *decoded) *stepFault {
	addr := h.getX(d.rs1) + uint64(d.imm)
	var v uint64
	var sf *stepFault
	switch d.funct3 {
	case 0:
		v, sf = h.readWidth(addr, 1)
		v = uint64(int64(int8(v)))
	case 1:
		v, sf = h.readWidth(addr, 2)
		v = uint64(int64(int16(v)))
	case 2:
		v, sf = h.readWidth(addr, 4)
		v = uint64(int64(int32(v)))
	case 3:
		v, sf = h.readWidth(addr, 8)
	case 4:
		v, sf = h.readWidth(addr, 1)
	case 5:
		v, sf = h.readWidth(addr, 2)
	case 6:
		v, sf = h.readWidth(addr, 4)
	default:
		return &stepFault{cause: trap.CauseIllegalInst, tval: uint64(d.raw)}
	}
	if sf != nil {
		return sf
	}
	h.setX(d.rd, v)
	return nil
}

func storeExec(h *hart, d *decoded) *stepFault {
	addr := h.getX(d.rs1) + uint64(d.imm)
	val := h.getX(d.rs2)
	switch d.funct3 {
	case 0:
		return h.writeWidth(addr, 1, val)
	case 1:
		return h.writeWidth(addr, 2, val)
	case 2:
		return h.writeWidth(addr, 4, val)
	case 3:
		return h.writeWidth(addr, 8, val)
	}
	return &stepFault{cause: trap.CauseIllegalInst, tval: uint64(d.raw)}
}

// fenceExec handles FENCE and FENCE.I: both are no-ops on this single-
// hart, sequentially-consistent model (spec §5: "FENCE.I needs no
// fetch-cache action beyond what a write already does").
func fenceExec(h *hart, d *decoded) *stepFault {
	return nil
}
