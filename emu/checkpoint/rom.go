/*
   rv64sim checkpoint recovery-ROM synthesis.

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

// Recovery-ROM synthesis: when a checkpoint is taken with the PC away
// from the boot ROM entry, bootram can't just be a verbatim copy of
// low RAM (there may be nothing executable there at all, e.g. after
// the guest OS has long since jumped past it). Instead this builds a
// short, self-contained instruction stream that rematerializes every
// captured register and CSR and finishes with DRET, so a plain reset
// vector fetch at romEntry replays the hart back to its dumped state.
// Kept as its own file per spec.md §9's design note: a table of
// restore actions, not interleaved with the dump/restore textual path
// in dump.go. Grounded on original_source/riscv_cpu.c's
// create_csr_recovery / create_io64_recovery /
// riscv_build_mmu_reset_rom emitter family, which builds the same
// AUIPC+LD-constant-then-CSRRW sequence.
package checkpoint

import (
	"encoding/binary"

	"github.com/rcornwell/rv64sim/emu/cpu"
	"github.com/rcornwell/rv64sim/emu/csr"
)

type restoreKind int

const (
	kindGPR restoreKind = iota
	kindFPR
	kindCSR
)

// restoreItem is one entry in the recovery ROM's table: a destination
// (a GPR index, an FPR index, or a CSR address) and the 64-bit value
// the synthesized code re-materializes into it.
type restoreItem struct {
	kind restoreKind
	idx  uint8
	addr uint16
	val  uint64
}

// readOnlyCSRs are identification registers with no restorable state;
// the recovery ROM never writes them back (re_regs still records them
// for diffability, per dumpRegs, but Restore's textual path and this
// ROM both leave them alone).
var readOnlyCSRs = map[uint16]bool{
	csr.Mvendorid: true,
	csr.Marchid:   true,
	csr.Mimpid:    true,
	csr.Mhartid:   true,
}

// collectRestoreItems snapshots the hart's current architectural
// state into the table the recovery ROM encodes. dpc is forced to the
// hart's actual PC (not whatever dpc last held) and dcsr's prv field
// is patched to the hart's actual current privilege, since those two
// are what DRET uses to resume execution — the ordinary re_regs dump
// just records dcsr/dpc verbatim, but a ROM that resumes via DRET
// needs them to reflect the live PC/privilege, not debug-entry state.
func collectRestoreItems() []restoreItem {
	items := make([]restoreItem, 0, 32+32+len(csrList))

	for i := 1; i < 31; i++ {
		items = append(items, restoreItem{kind: kindGPR, idx: uint8(i), val: cpu.GetX(i)})
	}
	if fpRegisters {
		for i := 0; i < 32; i++ {
			items = append(items, restoreItem{kind: kindFPR, idx: uint8(i), val: cpu.GetF(i)})
		}
	}
	for _, c := range csrList {
		if readOnlyCSRs[c.addr] || c.addr == csr.Dpc || c.addr == csr.Dcsr {
			continue
		}
		items = append(items, restoreItem{kind: kindCSR, addr: c.addr, val: cpu.ReadCSR(c.addr)})
	}

	dcsr := (cpu.ReadCSR(csr.Dcsr) &^ 0x3) | uint64(cpu.Priv()&0x3)
	items = append(items, restoreItem{kind: kindCSR, addr: csr.Dpc, val: cpu.GetPC()})
	items = append(items, restoreItem{kind: kindCSR, addr: csr.Dcsr, val: dcsr})

	// x31 is the ROM's scratch register for every load above, so its
	// own value is restored last.
	items = append(items, restoreItem{kind: kindGPR, idx: 31, val: cpu.GetX(31)})

	return items
}

// splitPCRel splits a PC-relative byte offset into the AUIPC 20-bit
// upper immediate and the paired load's signed 12-bit low immediate,
// the standard two-instruction addend split every RISC-V assembler
// uses for %pcrel_hi/%pcrel_lo.
func splitPCRel(offset int64) (hi, lo int32) {
	hi = int32((offset + 0x800) >> 12)
	lo = int32(offset - int64(hi)<<12)
	return hi, lo
}

func encodeU(opcode, rd uint32, hi20 int32) uint32 {
	return (uint32(hi20) << 12) | (rd << 7) | opcode
}

func encodeI(opcode, rd, funct3, rs1 uint32, imm12 int32) uint32 {
	return (uint32(imm12)&0xFFF)<<20 | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func encodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

// loadConst emits AUIPC+LD against a scratch register so that, once
// both execute, reg holds the 8-byte constant stored at dataAddr.
// Both instructions are PC-relative; instrAddr is the AUIPC's own
// position so the LD's base register already carries that addend.
func loadConst(reg uint8, dataAddr, instrAddr int64) (auipc, ld uint32) {
	hi, lo := splitPCRel(dataAddr - instrAddr)
	auipc = encodeU(0x17, uint32(reg), hi)
	ld = encodeI(0x03, uint32(reg), 3, uint32(reg), lo)
	return auipc, ld
}

// addiMv is ADDI rd, rs1, 0 — a register-to-register move, used to
// land a loaded constant into its destination GPR.
func addiMv(rd, rs1 uint8) uint32 {
	return encodeI(0x13, uint32(rd), 0, uint32(rs1), 0)
}

// fmvDFromX is FMV.D.X fd, xs — reinterprets an integer register's
// raw 64 bits as a double, used to land a loaded constant into its
// destination FPR without going through any FP conversion.
func fmvDFromX(fd, xs uint8) uint32 {
	return encodeR(0x53, uint32(fd), 0, uint32(xs), 0, 0x79)
}

// csrrwFromX is CSRRW x0, csr, rs1 — writes rs1 into csr, discarding
// the prior value (the recovery ROM never needs it back).
func csrrwFromX(csrAddr uint16, rs1 uint8) uint32 {
	return encodeI(0x73, 0, 1, uint32(rs1), int32(csrAddr))
}

// dret is the fixed 32-bit encoding of DRET (the only debug-mode
// trap-return instruction the recovery ROM needs; see spec.md §4.6's
// "MRET and DRET: analogous" trap-return note).
const dretEncoding uint32 = 0x7B200073

func align8(n int) int { return (n + 7) &^ 7 }

// synthesizeRecoveryROM builds the bootram image: three RISC-V
// instructions per restored value (AUIPC, LD, then a move/CSRRW),
// each value's raw bits parked in a trailing data table, followed by
// a single DRET. The ROM is entirely position-independent (every
// AUIPC+LD pair is self-relative) so it behaves identically wherever
// it is ultimately loaded; the loadAddr parameter is accepted for
// symmetry with Dump's call site but unused, since nothing in the
// generated code depends on an absolute base.
func synthesizeRecoveryROM(_ uint64) []byte {
	items := collectRestoreItems()

	const scratch = 31 // x31: collectRestoreItems emits its own GPR entry last
	const instrPerItem = 3

	codeLen := len(items)*instrPerItem*4 + 4 // +4 for the trailing DRET
	dataStart := align8(codeLen)

	code := make([]uint32, 0, len(items)*instrPerItem+1)
	data := make([]uint64, 0, len(items))

	for i, it := range items {
		instrAddr := int64(len(code) * 4)
		dataAddr := int64(dataStart + i*8)

		auipc, ld := loadConst(scratch, dataAddr, instrAddr)
		code = append(code, auipc, ld)

		switch it.kind {
		case kindGPR:
			code = append(code, addiMv(it.idx, scratch))
		case kindFPR:
			code = append(code, fmvDFromX(it.idx, scratch))
		case kindCSR:
			code = append(code, csrrwFromX(it.addr, scratch))
		}
		data = append(data, it.val)
	}
	code = append(code, dretEncoding)

	out := make([]byte, dataStart+len(data)*8)
	for i, w := range code {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	for i, v := range data {
		binary.LittleEndian.PutUint64(out[dataStart+i*8:], v)
	}
	return out
}
