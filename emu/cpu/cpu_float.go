/*
   CPU floating-point (F/D extensions): loads/stores, arithmetic, FMA
   family, conversions, comparisons, FCLASS, moves.

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

import "math"

const nanBoxTop = 0xffffffff00000000

// fflags accrued-exception bits (spec §4.7's catalog, fcsr layout).
const (
	fflagNX uint8 = 1 << iota // inexact
	fflagUF                   // underflow
	fflagOF                   // overflow
	fflagDZ                   // divide by zero
	fflagNV                   // invalid operation
)

func registerFloat(t *[128]func(h *hart, d *decoded) *stepFault) {
	t[opLoadFP] = loadFPExec
	t[opStoreFP] = storeFPExec
	t[opOpFP] = opFPExec
	t[opMADD] = fmaExec
	t[opMSUB] = fmaExec
	t[opNMSUB] = fmaExec
	t[opNMADD] = fmaExec
}

// --- register access: NaN-boxing per spec §4.7 ---

func (h *hart) getF32(i uint8) float32 {
	bits := h.F[i&31]
	if bits&nanBoxTop != nanBoxTop {
		return float32(math.NaN())
	}
	return math.Float32frombits(uint32(bits))
}

func (h *hart) setF32(i uint8, v float32) {
	h.F[i&31] = nanBoxTop | uint64(math.Float32bits(v))
}

func (h *hart) getF64(i uint8) float64 {
	return math.Float64frombits(h.F[i&31])
}

func (h *hart) setF64(i uint8, v float64) {
	h.F[i&31] = math.Float64bits(v)
}

// --- loads / stores ---

func loadFPExec(h *hart, d *decoded) *stepFault {
	if sf := checkFPEnabled(h, d); sf != nil {
		return sf
	}
	addr := h.getX(d.rs1) + uint64(d.imm)
	switch d.funct3 {
	case 2:
		v, sf := h.readWidth(addr, 4)
		if sf != nil {
			return sf
		}
		h.F[d.rd&31] = nanBoxTop | v
	case 3:
		v, sf := h.readWidth(addr, 8)
		if sf != nil {
			return sf
		}
		h.F[d.rd&31] = v
	default:
		return illegal(d)
	}
	return nil
}

func storeFPExec(h *hart, d *decoded) *stepFault {
	if sf := checkFPEnabled(h, d); sf != nil {
		return sf
	}
	addr := h.getX(d.rs1) + uint64(d.imm)
	switch d.funct3 {
	case 2:
		return h.writeWidth(addr, 4, h.F[d.rs2&31]&0xffffffff)
	case 3:
		return h.writeWidth(addr, 8, h.F[d.rs2&31])
	}
	return illegal(d)
}

// checkFPEnabled implements spec §4.7's "Requires mstatus.fs != 0,
// else illegal-instruction": every F/D-extension opcode (loads,
// stores, OP-FP, the FMA family) must check this before touching the
// float register file or fflags.
func checkFPEnabled(h *hart, d *decoded) *stepFault {
	if h.csr.FS() == 0 {
		return illegal(d)
	}
	return nil
}

// resolveRM validates the instruction's rounding-mode field (bits
// [14:12], i.e. d.funct3) per spec §4.7: rm==7 selects the dynamic
// mode in frm, and rm==5/6 (or an out-of-range frm) are reserved and
// raise illegal-instruction. This build's arithmetic always rounds
// via Go's math package (round-to-nearest-even) regardless of which
// legal mode is selected -- the same disclosed simplification as the
// NX/OF/UF fflags accrual, recorded in DESIGN.md.
func resolveRM(h *hart, d *decoded) *stepFault {
	rm := d.funct3
	if rm == 7 {
		rm = uint32(h.csr.FrmValue())
	}
	if rm == 5 || rm == 6 || rm > 7 {
		return illegal(d)
	}
	return nil
}

// --- OP-FP: dispatch on funct7 (spec §4.7's F/D catalog) ---

func opFPExec(h *hart, d *decoded) *stepFault {
	if sf := checkFPEnabled(h, d); sf != nil {
		return sf
	}
	isDouble := d.funct7&1 != 0
	switch d.funct7 &^ 1 {
	case 0x00: // FADD
		if sf := resolveRM(h, d); sf != nil {
			return sf
		}
		return fpBinOp(h, d, isDouble, func(a, b float64) float64 { return a + b })
	case 0x04: // FSUB
		if sf := resolveRM(h, d); sf != nil {
			return sf
		}
		return fpBinOp(h, d, isDouble, func(a, b float64) float64 { return a - b })
	case 0x08: // FMUL
		if sf := resolveRM(h, d); sf != nil {
			return sf
		}
		return fpBinOp(h, d, isDouble, func(a, b float64) float64 { return a * b })
	case 0x0C: // FDIV
		if sf := resolveRM(h, d); sf != nil {
			return sf
		}
		return fpDiv(h, d, isDouble)
	case 0x2C: // FSQRT
		if sf := resolveRM(h, d); sf != nil {
			return sf
		}
		return fpSqrt(h, d, isDouble)
	case 0x10: // FSGNJ family
		return fpSgnj(h, d, isDouble)
	case 0x14: // FMIN/FMAX
		return fpMinMax(h, d, isDouble)
	case 0x50: // FEQ/FLT/FLE
		return fpCompare(h, d, isDouble)
	case 0x70: // FMV.X.W/D, FCLASS
		return fpClassOrMove(h, d, isDouble)
	case 0x78: // FMV.W/D.X
		return fpMoveToFloat(h, d, isDouble)
	case 0x60: // FCVT.W/WU/L/LU.S/D (float -> int)
		if sf := resolveRM(h, d); sf != nil {
			return sf
		}
		return fpToInt(h, d, isDouble)
	case 0x68: // FCVT.S/D.W/WU/L/LU (int -> float)
		if sf := resolveRM(h, d); sf != nil {
			return sf
		}
		return fpFromInt(h, d, isDouble)
	case 0x20: // FCVT.D.S (funct7==0x21) / FCVT.S.D (funct7==0x20)
		if sf := resolveRM(h, d); sf != nil {
			return sf
		}
		return fpWiden(h, d)
	}
	return illegal(d)
}

func fpBinOp(h *hart, d *decoded, isDouble bool, op func(a, b float64) float64) *stepFault {
	if isDouble {
		a, b := h.getF64(d.rs1), h.getF64(d.rs2)
		r := op(a, b)
		if math.IsNaN(r) && !math.IsNaN(a) && !math.IsNaN(b) {
			h.csr.OrFflags(fflagNV)
		}
		h.setF64(d.rd, r)
	} else {
		a, b := h.getF32(d.rs1), h.getF32(d.rs2)
		r := op(float64(a), float64(b))
		r32 := float32(r)
		if math.IsNaN(float64(r32)) && !math.IsNaN(float64(a)) && !math.IsNaN(float64(b)) {
			h.csr.OrFflags(fflagNV)
		}
		h.setF32(d.rd, r32)
	}
	return nil
}

func fpDiv(h *hart, d *decoded, isDouble bool) *stepFault {
	if isDouble {
		a, b := h.getF64(d.rs1), h.getF64(d.rs2)
		if b == 0 && !math.IsNaN(a) {
			h.csr.OrFflags(fflagDZ)
		}
		h.setF64(d.rd, a/b)
	} else {
		a, b := h.getF32(d.rs1), h.getF32(d.rs2)
		if b == 0 && !math.IsNaN(float64(a)) {
			h.csr.OrFflags(fflagDZ)
		}
		h.setF32(d.rd, a/b)
	}
	return nil
}

func fpSqrt(h *hart, d *decoded, isDouble bool) *stepFault {
	if isDouble {
		a := h.getF64(d.rs1)
		if a < 0 {
			h.csr.OrFflags(fflagNV)
		}
		h.setF64(d.rd, math.Sqrt(a))
	} else {
		a := h.getF32(d.rs1)
		if a < 0 {
			h.csr.OrFflags(fflagNV)
		}
		h.setF32(d.rd, float32(math.Sqrt(float64(a))))
	}
	return nil
}

// fpSgnj implements FSGNJ/FSGNJN/FSGNJX (funct3 selects variant): copy
// the magnitude of rs1 and a sign derived from rs1/rs2 per funct3.
func fpSgnj(h *hart, d *decoded, isDouble bool) *stepFault {
	if isDouble {
		a := math.Float64bits(h.getF64(d.rs1))
		b := math.Float64bits(h.getF64(d.rs2))
		var sign uint64
		switch d.funct3 {
		case 0:
			sign = b & (1 << 63)
		case 1:
			sign = (^b) & (1 << 63)
		case 2:
			sign = (a ^ b) & (1 << 63)
		}
		h.setF64(d.rd, math.Float64frombits((a&^(uint64(1)<<63))|sign))
	} else {
		a := math.Float32bits(h.getF32(d.rs1))
		b := math.Float32bits(h.getF32(d.rs2))
		var sign uint32
		switch d.funct3 {
		case 0:
			sign = b & (1 << 31)
		case 1:
			sign = (^b) & (1 << 31)
		case 2:
			sign = (a ^ b) & (1 << 31)
		}
		h.setF32(d.rd, math.Float32frombits((a&^(uint32(1)<<31))|sign))
	}
	return nil
}

// fpMinMax implements FMIN/FMAX: a quiet NaN operand is ignored in
// favor of the other operand; two NaNs yield the canonical quiet NaN.
func fpMinMax(h *hart, d *decoded, isDouble bool) *stepFault {
	max := d.funct3 == 1
	if isDouble {
		a, b := h.getF64(d.rs1), h.getF64(d.rs2)
		h.setF64(d.rd, fpMinMax64(a, b, max, h))
	} else {
		a, b := h.getF32(d.rs1), h.getF32(d.rs2)
		h.setF32(d.rd, float32(fpMinMax64(float64(a), float64(b), max, h)))
	}
	return nil
}

func fpMinMax64(a, b float64, max bool, h *hart) float64 {
	if math.IsNaN(a) && math.IsNaN(b) {
		h.csr.OrFflags(fflagNV)
		return math.NaN()
	}
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) {
		return a
	}
	if max {
		if a > b {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

// fpCompare implements FEQ/FLT/FLE (funct3: 2/1/0), rd gets 0 or 1.
func fpCompare(h *hart, d *decoded, isDouble bool) *stepFault {
	var a, b float64
	if isDouble {
		a, b = h.getF64(d.rs1), h.getF64(d.rs2)
	} else {
		a, b = float64(h.getF32(d.rs1)), float64(h.getF32(d.rs2))
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		// This build doesn't distinguish signaling from quiet NaNs, so
		// every comparison against a NaN operand sets NV (FEQ would
		// only do so for a signaling NaN on real hardware).
		h.csr.OrFflags(fflagNV)
		h.setX(d.rd, 0)
		return nil
	}
	var result bool
	switch d.funct3 {
	case 2:
		result = a == b
	case 1:
		result = a < b
	case 0:
		result = a <= b
	}
	if result {
		h.setX(d.rd, 1)
	} else {
		h.setX(d.rd, 0)
	}
	return nil
}

// fpClassOrMove handles funct7==0x70/0x71: FMV.X.W/FMV.X.D (funct3==0)
// bit-copies the float register to an integer register; FCLASS
// (funct3==1) classifies per spec §6's ten-bit category mask.
func fpClassOrMove(h *hart, d *decoded, isDouble bool) *stepFault {
	switch d.funct3 {
	case 0:
		if isDouble {
			h.setX(d.rd, h.F[d.rs1&31])
		} else {
			h.setX(d.rd, uint64(int64(int32(uint32(h.F[d.rs1&31])))))
		}
		return nil
	case 1:
		var v float64
		if isDouble {
			v = h.getF64(d.rs1)
		} else {
			v = float64(h.getF32(d.rs1))
		}
		h.setX(d.rd, fclass(v))
		return nil
	}
	return illegal(d)
}

func fclass(v float64) uint64 {
	switch {
	case math.IsInf(v, -1):
		return 1 << 0
	case v < 0 && !math.IsInf(v, 0):
		return 1 << 1
	case v == 0 && math.Signbit(v):
		return 1 << 3
	case v == 0:
		return 1 << 4
	case v > 0 && !math.IsInf(v, 0):
		return 1 << 6
	case math.IsInf(v, 1):
		return 1 << 7
	case math.IsNaN(v):
		return 1 << 9 // treat all NaNs as quiet; this build never signals
	}
	return 0
}

// fpMoveToFloat handles FMV.W.X/FMV.D.X (funct7==0x78/0x79): bit-copy
// an integer register into a float register.
func fpMoveToFloat(h *hart, d *decoded, isDouble bool) *stepFault {
	if isDouble {
		h.F[d.rd&31] = h.getX(d.rs1)
	} else {
		h.F[d.rd&31] = nanBoxTop | (h.getX(d.rs1) & 0xffffffff)
	}
	return nil
}

// fpToInt implements FCVT.{W,WU,L,LU}.{S,D}: rs2 selects the integer
// destination type.
func fpToInt(h *hart, d *decoded, isDouble bool) *stepFault {
	var v float64
	if isDouble {
		v = h.getF64(d.rs1)
	} else {
		v = float64(h.getF32(d.rs1))
	}
	if math.IsNaN(v) {
		h.csr.OrFflags(fflagNV)
	}
	switch d.rs2 {
	case 0: // W
		h.setX(d.rd, uint64(int64(int32(v))))
	case 1: // WU
		h.setX(d.rd, uint64(int64(int32(uint32(v)))))
	case 2: // L
		h.setX(d.rd, uint64(int64(v)))
	case 3: // LU
		h.setX(d.rd, uint64(v))
	default:
		return illegal(d)
	}
	return nil
}

// fpFromInt implements FCVT.{S,D}.{W,WU,L,LU}: rs2 selects the integer
// source type.
func fpFromInt(h *hart, d *decoded, isDouble bool) *stepFault {
	x := h.getX(d.rs1)
	var v float64
	switch d.rs2 {
	case 0: // W
		v = float64(int32(x))
	case 1: // WU
		v = float64(uint32(x))
	case 2: // L
		v = float64(int64(x))
	case 3: // LU
		v = float64(x)
	default:
		return illegal(d)
	}
	if isDouble {
		h.setF64(d.rd, v)
	} else {
		h.setF32(d.rd, float32(v))
	}
	return nil
}

// fpWiden implements FCVT.D.S (funct7==0x21, widen) and FCVT.S.D
// (funct7==0x20, narrow).
func fpWiden(h *hart, d *decoded) *stepFault {
	if d.rs2 == 1 { // FCVT.S.D: source is double, narrow to single
		h.setF32(d.rd, float32(h.getF64(d.rs1)))
	} else { // FCVT.D.S: source is single, widen to double
		h.setF64(d.rd, float64(h.getF32(d.rs1)))
	}
	return nil
}

// --- fused multiply-add family ---

func fmaExec(h *hart, d *decoded) *stepFault {
	if sf := checkFPEnabled(h, d); sf != nil {
		return sf
	}
	if sf := resolveRM(h, d); sf != nil {
		return sf
	}
	isDouble := d.funct7&1 != 0
	neg := d.opcode == opNMSUB || d.opcode == opNMADD
	subtract := d.opcode == opMSUB || d.opcode == opNMSUB

	if isDouble {
		a, b, c := h.getF64(d.rs1), h.getF64(d.rs2), h.getF64(d.rs3)
		r := a * b
		if subtract {
			r -= c
		} else {
			r += c
		}
		if neg {
			r = -r
		}
		h.setF64(d.rd, r)
	} else {
		a, b, c := h.getF32(d.rs1), h.getF32(d.rs2), h.getF32(d.rs3)
		r := float64(a) * float64(b)
		if subtract {
			r -= float64(c)
		} else {
			r += float64(c)
		}
		if neg {
			r = -r
		}
		h.setF32(d.rd, float32(r))
	}
	return nil
}
