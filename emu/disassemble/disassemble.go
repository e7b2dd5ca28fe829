/*
	   rv64sim RISC-V disassembler

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
		RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
		IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
		CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

// Package disassemble formats RISC-V instructions for the monitor's
// instruction trace, grounded on the teacher's emu/disassemble
// package: an opcode-keyed map of mnemonic plus operand shape, a
// fixed-width mnemonic field, and a (text, length) return so the
// caller knows how far to advance. Operand formatting here is keyed
// on the base opcode and funct3/funct7 the way the teacher keys on
// opType/opFlags, rather than reusing emu/cpu's internal decode table
// (this package has no business depending on the hart's dispatch
// table, any more than the teacher's disassembler depended on cpu's
// execute table).
package disassemble

import "fmt"

var xabi = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

func reg(i uint32) string { return xabi[i&31] }

func fReg(i uint32) string { return fmt.Sprintf("f%d", i&31) }

func signExtend(v uint32, bits int) int64 {
	shift := 32 - bits
	return int64(int32(v<<shift)) >> shift
}

// Disassemble decodes the instruction at the start of data (at least
// 2 bytes; 4 if the low bits aren't a compressed form) and returns its
// text and length in bytes (2 or 4).
func Disassemble(data []byte) (string, int) {
	if len(data) < 2 {
		return "?", 2
	}
	lo := uint32(data[0]) | uint32(data[1])<<8
	if lo&3 != 3 {
		return disassembleCompressed(lo)
	}
	if len(data) < 4 {
		return "?", 4
	}
	raw := lo | uint32(data[2])<<16 | uint32(data[3])<<24
	return disassemble32(raw), 4
}

func pad(name string) string {
	const width = 8
	if len(name) >= width {
		return name + " "
	}
	return name + spaces[:width-len(name)]
}

var spaces = "        "

func disassemble32(raw uint32) string {
	opcode := raw & 0x7f
	rd := (raw >> 7) & 0x1f
	funct3 := (raw >> 12) & 0x7
	rs1 := (raw >> 15) & 0x1f
	rs2 := (raw >> 20) & 0x1f
	funct7 := (raw >> 25) & 0x7f

	iImm := signExtend(raw>>20, 12)
	sImm := signExtend(((raw>>25)<<5)|((raw>>7)&0x1f), 12)
	bImm := signExtend(
		(((raw>>31)&1)<<12)|(((raw>>7)&1)<<11)|(((raw>>25)&0x3f)<<5)|(((raw>>8)&0xf)<<1),
		13)
	uImm := int64(raw &^ 0xfff)
	jImm := signExtend(
		(((raw>>31)&1)<<20)|(((raw>>12)&0xff)<<12)|(((raw>>20)&1)<<11)|(((raw>>21)&0x3ff)<<1),
		21)

	switch opcode {
	case 0x37:
		return pad("lui") + fmt.Sprintf("%s,0x%x", reg(rd), uint64(uImm)>>12)
	case 0x17:
		return pad("auipc") + fmt.Sprintf("%s,0x%x", reg(rd), uint64(uImm)>>12)
	case 0x6f:
		name := "jal"
		if rd == 0 {
			name = "j"
			return pad(name) + fmt.Sprintf("%+d", jImm)
		}
		return pad(name) + fmt.Sprintf("%s,%+d", reg(rd), jImm)
	case 0x67:
		if funct3 == 0 {
			if rd == 0 && iImm == 0 && rs1 == 1 {
				return "ret"
			}
			return pad("jalr") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), iImm)
		}
	case 0x63:
		names := map[uint32]string{0: "beq", 1: "bne", 4: "blt", 5: "bge", 6: "bltu", 7: "bgeu"}
		if name, ok := names[funct3]; ok {
			return pad(name) + fmt.Sprintf("%s,%s,%+d", reg(rs1), reg(rs2), bImm)
		}
	case 0x03:
		names := map[uint32]string{0: "lb", 1: "lh", 2: "lw", 3: "ld", 4: "lbu", 5: "lhu", 6: "lwu"}
		if name, ok := names[funct3]; ok {
			return pad(name) + fmt.Sprintf("%s,%d(%s)", reg(rd), iImm, reg(rs1))
		}
	case 0x23:
		names := map[uint32]string{0: "sb", 1: "sh", 2: "sw", 3: "sd"}
		if name, ok := names[funct3]; ok {
			return pad(name) + fmt.Sprintf("%s,%d(%s)", reg(rs2), sImm, reg(rs1))
		}
	case 0x13:
		return opImm(funct3, funct7, rd, rs1, iImm, raw)
	case 0x1b:
		return opImm32(funct3, funct7, rd, rs1, iImm, raw)
	case 0x33:
		return opReg(funct3, funct7, rd, rs1, rs2)
	case 0x3b:
		return opReg32(funct3, funct7, rd, rs1, rs2)
	case 0x0f:
		if funct3 == 0 {
			return "fence"
		}
		return "fence.i"
	case 0x73:
		return system(raw, funct3, rd, rs1, iImm)
	case 0x2f:
		return atomic(raw, funct3, funct7, rd, rs1, rs2)
	case 0x07:
		names := map[uint32]string{2: "flw", 3: "fld"}
		if name, ok := names[funct3]; ok {
			return pad(name) + fmt.Sprintf("%s,%d(%s)", fReg(rd), iImm, reg(rs1))
		}
	case 0x27:
		names := map[uint32]string{2: "fsw", 3: "fsd"}
		if name, ok := names[funct3]; ok {
			return pad(name) + fmt.Sprintf("%s,%d(%s)", fReg(rs2), sImm, reg(rs1))
		}
	case 0x53:
		return fop(raw, rd, rs1, rs2, funct7)
	}
	return fmt.Sprintf(".word 0x%08x", raw)
}

func opImm(funct3, funct7, rd, rs1 uint32, imm int64, raw uint32) string {
	shamt := (raw >> 20) & 0x3f
	switch funct3 {
	case 0:
		if imm == 0 {
			return pad("mv") + fmt.Sprintf("%s,%s", reg(rd), reg(rs1))
		}
		return pad("addi") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), imm)
	case 1:
		return pad("slli") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), shamt)
	case 2:
		return pad("slti") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), imm)
	case 3:
		return pad("sltiu") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), imm)
	case 4:
		return pad("xori") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), imm)
	case 5:
		if funct7>>1 == 0x10 {
			return pad("srai") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), shamt)
		}
		return pad("srli") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), shamt)
	case 6:
		return pad("ori") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), imm)
	case 7:
		return pad("andi") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), imm)
	}
	return ".word"
}

func opImm32(funct3, funct7, rd, rs1 uint32, imm int64, raw uint32) string {
	shamt := (raw >> 20) & 0x1f
	switch funct3 {
	case 0:
		return pad("addiw") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), imm)
	case 1:
		return pad("slliw") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), shamt)
	case 5:
		if funct7>>1 == 0x10 {
			return pad("sraiw") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), shamt)
		}
		return pad("srliw") + fmt.Sprintf("%s,%s,%d", reg(rd), reg(rs1), shamt)
	}
	return ".word"
}

var rtype = map[[2]uint32]string{
	{0, 0x00}: "add", {0, 0x20}: "sub", {1, 0x00}: "sll", {2, 0x00}: "slt",
	{3, 0x00}: "sltu", {4, 0x00}: "xor", {5, 0x00}: "srl", {5, 0x20}: "sra",
	{6, 0x00}: "or", {7, 0x00}: "and",
	{0, 0x01}: "mul", {1, 0x01}: "mulh", {2, 0x01}: "mulhsu", {3, 0x01}: "mulhu",
	{4, 0x01}: "div", {5, 0x01}: "divu", {6, 0x01}: "rem", {7, 0x01}: "remu",
}

func opReg(funct3, funct7, rd, rs1, rs2 uint32) string {
	if name, ok := rtype[[2]uint32{funct3, funct7}]; ok {
		return pad(name) + fmt.Sprintf("%s,%s,%s", reg(rd), reg(rs1), reg(rs2))
	}
	return ".word"
}

var rtype32 = map[[2]uint32]string{
	{0, 0x00}: "addw", {0, 0x20}: "subw", {1, 0x00}: "sllw",
	{5, 0x00}: "srlw", {5, 0x20}: "sraw",
	{0, 0x01}: "mulw", {4, 0x01}: "divw", {5, 0x01}: "divuw",
	{6, 0x01}: "remw", {7, 0x01}: "remuw",
}

func opReg32(funct3, funct7, rd, rs1, rs2 uint32) string {
	if name, ok := rtype32[[2]uint32{funct3, funct7}]; ok {
		return pad(name) + fmt.Sprintf("%s,%s,%s", reg(rd), reg(rs1), reg(rs2))
	}
	return ".word"
}

func system(raw, funct3, rd, rs1 uint32, imm int64) string {
	if funct3 == 0 {
		switch raw >> 20 {
		case 0:
			return "ecall"
		case 1:
			return "ebreak"
		case 0x102:
			return "sret"
		case 0x302:
			return "mret"
		case 0x105:
			return "wfi"
		}
		return ".word"
	}
	csr := raw >> 20
	names := map[uint32]string{1: "csrrw", 2: "csrrs", 3: "csrrc", 5: "csrrwi", 6: "csrrsi", 7: "csrrci"}
	name, ok := names[funct3]
	if !ok {
		return ".word"
	}
	if funct3 >= 5 {
		return pad(name) + fmt.Sprintf("%s,0x%x,%d", reg(rd), csr, rs1)
	}
	return pad(name) + fmt.Sprintf("%s,0x%x,%s", reg(rd), csr, reg(rs1))
}

func atomic(raw, funct3, funct7, rd, rs1, rs2 uint32) string {
	op := funct7 >> 2
	width := "w"
	if funct3 == 3 {
		width = "d"
	}
	names := map[uint32]string{
		0x02: "lr." + width, 0x03: "sc." + width, 0x01: "amoswap." + width,
		0x00: "amoadd." + width, 0x04: "amoxor." + width, 0x0c: "amoand." + width,
		0x08: "amoor." + width, 0x10: "amomin." + width, 0x14: "amomax." + width,
		0x18: "amominu." + width, 0x1c: "amomaxu." + width,
	}
	name, ok := names[op]
	if !ok {
		return ".word"
	}
	if op == 0x02 {
		return pad(name) + fmt.Sprintf("%s,(%s)", reg(rd), reg(rs1))
	}
	return pad(name) + fmt.Sprintf("%s,%s,(%s)", reg(rd), reg(rs2), reg(rs1))
}

func fop(raw, rd, rs1, rs2, funct7 uint32) string {
	switch funct7 {
	case 0x00:
		return pad("fadd.s") + fmt.Sprintf("%s,%s,%s", fReg(rd), fReg(rs1), fReg(rs2))
	case 0x04:
		return pad("fsub.s") + fmt.Sprintf("%s,%s,%s", fReg(rd), fReg(rs1), fReg(rs2))
	case 0x08:
		return pad("fmul.s") + fmt.Sprintf("%s,%s,%s", fReg(rd), fReg(rs1), fReg(rs2))
	case 0x0C:
		return pad("fdiv.s") + fmt.Sprintf("%s,%s,%s", fReg(rd), fReg(rs1), fReg(rs2))
	case 0x01:
		return pad("fadd.d") + fmt.Sprintf("%s,%s,%s", fReg(rd), fReg(rs1), fReg(rs2))
	case 0x05:
		return pad("fsub.d") + fmt.Sprintf("%s,%s,%s", fReg(rd), fReg(rs1), fReg(rs2))
	case 0x09:
		return pad("fmul.d") + fmt.Sprintf("%s,%s,%s", fReg(rd), fReg(rs1), fReg(rs2))
	case 0x0D:
		return pad("fdiv.d") + fmt.Sprintf("%s,%s,%s", fReg(rd), fReg(rs1), fReg(rs2))
	}
	return fmt.Sprintf(".word 0x%08x", raw)
}

// disassembleCompressed covers the handful of RVC forms a monitor
// trace is most likely to hit; anything else falls back to a raw
// halfword dump rather than a full expansion (spec's disassembler is
// a trace aid, not a second decoder — the authoritative expansion
// is emu/cpu's expandCompressed).
func disassembleCompressed(lo uint32) (string, int) {
	op := lo & 3
	funct3 := (lo >> 13) & 7

	rdRs1 := (lo >> 7) & 0x1f
	switch {
	case op == 1 && funct3 == 0 && rdRs1 == 0:
		return "c.nop", 2
	case op == 2 && funct3 == 4 && (lo>>12)&1 == 0 && ((lo>>2)&0x1f) == 0 && rdRs1 != 0:
		return pad("c.jr") + reg(rdRs1), 2
	case op == 2 && funct3 == 4 && (lo>>12)&1 == 1 && ((lo>>2)&0x1f) == 0 && rdRs1 != 0:
		return pad("c.jalr") + reg(rdRs1), 2
	case op == 1 && funct3 == 5:
		return pad("c.j") + fmt.Sprintf("0x%x", lo), 2
	}
	return fmt.Sprintf("c.word 0x%04x", lo), 2
}
