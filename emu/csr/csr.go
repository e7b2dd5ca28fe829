/*
 * rv64sim  - Control and status register file
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

// Package csr is the hart's control-and-status register file. Like
// the teacher's cpuState, it is a single package-level struct (one
// hart per machine, per spec); access control and write side effects
// live here rather than scattered through the interpreter, the same
// split the teacher keeps between cpuState's flat fields and cpu.go's
// checkProtect/storePSW helpers.
package csr

import "errors"

// Privilege levels, matching mstatus.mpp / sstatus encodings.
const (
	PrivU uint8 = 0
	PrivS uint8 = 1
	PrivM uint8 = 3
)

// Numeric CSR addresses, from spec §6's catalog.
const (
	Fflags = 0x001
	Frm    = 0x002
	Fcsr   = 0x003

	Sstatus    = 0x100
	Sie        = 0x104
	Stvec      = 0x105
	Scounteren = 0x106
	Sscratch   = 0x140
	Sepc       = 0x141
	Scause     = 0x142
	Stval      = 0x143
	Sip        = 0x144
	Satp       = 0x180

	Mstatus    = 0x300
	Misa       = 0x301
	Medeleg    = 0x302
	Mideleg    = 0x303
	Mie        = 0x304
	Mtvec      = 0x305
	Mcounteren = 0x306
	Mscratch   = 0x340
	Mepc       = 0x341
	Mcause     = 0x342
	Mtval      = 0x343
	Mip        = 0x344

	Tselect = 0x7A0
	Tdata1  = 0x7A1
	Tdata2  = 0x7A2
	Tdata3  = 0x7A3
	Dcsr    = 0x7B0
	Dpc     = 0x7B1
	Dscratch = 0x7B2

	Mcycle   = 0xB00
	Minstret = 0xB02
	Cycle    = 0xC00
	Instret  = 0xC02

	Mvendorid = 0xF11
	Marchid   = 0xF12
	Mimpid    = 0xF13
	Mhartid   = 0xF14

	mhpmcounterLo = 0xB03
	mhpmcounterHi = 0xB1F
	hpmLo         = 0xC03
	hpmHi         = 0xC1F
)

// mstatus/sstatus bit positions (RV64).
const (
	statusSIE  uint64 = 1 << 1
	statusMIE  uint64 = 1 << 3
	statusSPIE uint64 = 1 << 5
	statusMPIE uint64 = 1 << 7
	statusSPP  uint64 = 1 << 8
	statusMPP  uint64 = 3 << 11
	statusFS   uint64 = 3 << 13
	statusXS   uint64 = 3 << 15
	statusMPRV uint64 = 1 << 17
	statusSUM  uint64 = 1 << 18
	statusMXR  uint64 = 1 << 19
	statusSD   uint64 = 1 << 63

	sstatusMask uint64 = statusSIE | statusSPIE | statusSPP | statusFS | statusXS |
		statusSUM | statusMXR | statusSD
)

// WriteResult reports what a CSR write did beyond storing a value,
// per spec §4.5's "ok, TLB-flushed, restart, or illegal" contract.
type WriteResult int

const (
	Ok WriteResult = iota
	TLBFlushed
	Restart
	Illegal
)

// File is the hart's CSR register file.
type File struct {
	Priv uint8

	mstatus uint64 // mprv/sum/mxr/mpp/spp/mie/sie/mpie/spie/xs live here; fs kept separately
	fs      uint8  // 0=off,1=initial,2=clean,3=dirty
	xs      uint8

	misa uint64

	medeleg uint64
	mideleg uint64
	mie     uint64
	mip     uint64

	mtvec uint64
	stvec uint64

	mcounteren uint64
	scounteren uint64

	mscratch, sscratch uint64
	mepc, sepc         uint64
	mcause, scause     uint64
	mtval, stval       uint64

	satpVal uint64

	fflags uint8
	frm    uint8

	tselect              uint64
	tdata1, tdata2, tdata3 uint64

	dcsr           uint64
	dpc            uint64
	dscratch       uint64
	stopCount      bool
	stopTime       bool

	mcycle, minstret uint64

	mhartid uint64

	// validation registers (spec §4.5, vendor slots): writes are
	// stored here as-is; nothing checks or acts on the values.
	validation [2]uint64
}

// New returns a File with misa/mvendorid-style reset values for an
// RV64GC hart: MXL=2 (64), extensions I M A F D C U S.
func New() *File {
	f := &File{Priv: PrivM}
	f.misa = (2 << 62) | extBits("IMAFDCSU")
	return f
}

func extBits(letters string) uint64 {
	var bits uint64
	for _, c := range letters {
		bits |= 1 << uint(c-'A')
	}
	return bits
}

var (
	errReadOnly  = errors.New("csr: write to read-only register")
	errPrivilege = errors.New("csr: insufficient privilege")
	errNoCounter = errors.New("csr: counter access disabled by counteren")
)

// CheckAccess implements spec §4.5's access-control rule: current
// privilege must be >= the CSR's encoded privilege field, and for
// writes the top two address bits must not be 11 (read-only range).
func (f *File) CheckAccess(addr uint16, write bool) error {
	reqPriv := uint8((addr >> 8) & 3)
	if f.Priv < reqPriv {
		return errPrivilege
	}
	if write && (addr>>10)&3 == 3 {
		return errReadOnly
	}
	if isCounter(addr) {
		idx := counterIndex(addr)
		if f.Priv < PrivM && f.mcounteren&(1<<idx) == 0 {
			return errNoCounter
		}
		if f.Priv == PrivU && f.scounteren&(1<<idx) == 0 {
			return errNoCounter
		}
	}
	return nil
}

func isCounter(addr uint16) bool {
	return (addr >= Cycle && addr <= hpmHi) || (addr >= Mcycle && addr <= mhpmcounterHi)
}

func counterIndex(addr uint16) uint {
	if addr >= Cycle && addr <= hpmHi {
		return uint(addr - Cycle)
	}
	return uint(addr - Mcycle)
}

// composedMstatus folds fs/xs and the derived SD bit into the stored
// mstatus bits, per spec §4.5's "read side effects: none, but mstatus
// composes SD and fs" rule.
func (f *File) composedMstatus() uint64 {
	v := f.mstatus &^ (statusFS | statusXS | statusSD)
	v |= uint64(f.fs) << 13
	v |= uint64(f.xs) << 15
	if f.fs == 3 || f.xs == 3 {
		v |= statusSD
	}
	return v
}

// Read returns the value of the CSR at addr. The caller must have
// already called CheckAccess.
func (f *File) Read(addr uint16) uint64 {
	switch addr {
	case Fflags:
		return uint64(f.fflags)
	case Frm:
		return uint64(f.frm)
	case Fcsr:
		return uint64(f.frm)<<5 | uint64(f.fflags)
	case Sstatus:
		return f.composedMstatus() & sstatusMask
	case Sie:
		return f.mie & f.mideleg
	case Stvec:
		return f.stvec
	case Scounteren:
		return f.scounteren
	case Sscratch:
		return f.sscratch
	case Sepc:
		return f.sepc
	case Scause:
		return f.scause
	case Stval:
		return f.stval
	case Sip:
		return f.mip & f.mideleg
	case Satp:
		return f.satpVal
	case Mstatus:
		return f.composedMstatus()
	case Misa:
		return f.misa
	case Medeleg:
		return f.medeleg
	case Mideleg:
		return f.mideleg
	case Mie:
		return f.mie
	case Mtvec:
		return f.mtvec
	case Mcounteren:
		return f.mcounteren
	case Mscratch:
		return f.mscratch
	case Mepc:
		return f.mepc
	case Mcause:
		return f.mcause
	case Mtval:
		return f.mtval
	case Mip:
		return f.mip
	case Tselect:
		return f.tselect
	case Tdata1:
		return f.tdata1
	case Tdata2:
		return f.tdata2
	case Tdata3:
		return f.tdata3
	case Dcsr:
		return f.dcsr
	case Dpc:
		return f.dpc
	case Dscratch:
		return f.dscratch
	case Mcycle, Cycle:
		return f.mcycle
	case Minstret, Instret:
		return f.minstret
	case Mvendorid:
		return 0
	case Marchid:
		return 0
	case Mimpid:
		return 0
	case Mhartid:
		return f.mhartid
	default:
		if addr >= mhpmcounterLo && addr <= mhpmcounterHi {
			return 0
		}
		if addr >= hpmLo && addr <= hpmHi {
			return 0
		}
		return 0
	}
}

// Write stores val into the CSR at addr and reports whether anything
// beyond plain storage happened (spec §4.5's per-CSR side effects).
func (f *File) Write(addr uint16, val uint64) WriteResult {
	switch addr {
	case Fflags:
		f.fflags = uint8(val) & 0x1f
		f.fs = 3
		return Ok
	case Frm:
		f.frm = uint8(val) & 0x7
		f.fs = 3
		return Ok
	case Fcsr:
		f.fflags = uint8(val) & 0x1f
		f.frm = uint8(val>>5) & 0x7
		f.fs = 3
		return Ok
	case Sstatus:
		return f.writeMstatus((f.composedMstatus() &^ sstatusMask) | (val & sstatusMask))
	case Sie:
		keep := f.mie &^ f.mideleg
		f.mie = keep | (val & f.mideleg & mieWritable)
		return Ok
	case Stvec:
		f.stvec = val &^ 2
		return Ok
	case Scounteren:
		f.scounteren = val
		return Ok
	case Sscratch:
		f.sscratch = val
		return Ok
	case Sepc:
		f.sepc = maskEpc(val, f.misa)
		return Ok
	case Scause:
		f.scause = val
		return Ok
	case Stval:
		f.stval = val
		return Ok
	case Sip:
		keep := f.mip &^ f.mideleg
		f.mip = keep | (val & f.mideleg & mipWritable)
		return Ok
	case Satp:
		mode := val >> 60
		if mode != 0 && mode != 8 && mode != 9 {
			return Illegal
		}
		f.satpVal = val
		return TLBFlushed
	case Mstatus:
		return f.writeMstatus(val)
	case Misa:
		newMXL := (val >> 62) & 3
		oldMXL := (f.misa >> 62) & 3
		f.misa = (f.misa &^ (uint64(3) << 62)) | (newMXL << 62)
		if newMXL != oldMXL && newMXL == 2 {
			return Restart
		}
		return Ok
	case Medeleg:
		f.medeleg = val & 0xB109
		return Ok
	case Mideleg:
		f.mideleg = val & mideleWritable
		return Ok
	case Mie:
		f.mie = val & mieWritable
		return Ok
	case Mtvec:
		f.mtvec = val &^ 2
		return Ok
	case Mcounteren:
		f.mcounteren = val
		return Ok
	case Mscratch:
		f.mscratch = val
		return Ok
	case Mepc:
		f.mepc = maskEpc(val, f.misa)
		return Ok
	case Mcause:
		f.mcause = val
		return Ok
	case Mtval:
		f.mtval = val
		return Ok
	case Mip:
		f.mip = val & mipWritable
		return Ok
	case Tselect:
		f.tselect = val
		return Ok
	case Tdata1:
		f.tdata1 = val
		return Ok
	case Tdata2:
		f.tdata2 = val
		return Ok
	case Tdata3:
		// Given its own case rather than falling through to the
		// mhpmevent range: the source's fallthrough here has no
		// architectural justification (see DESIGN.md open question).
		f.tdata3 = val
		return Ok
	case Dcsr:
		f.dcsr = val
		f.stopCount = val&(1<<10) != 0
		f.stopTime = val&(1<<9) != 0
		return Ok
	case Dpc:
		f.dpc = maskEpc(val, f.misa)
		return Ok
	case Dscratch:
		f.dscratch = val
		return Ok
	case 0x7A4, 0x7A5: // two vendor validation-event slots, just past tdata3/dcsr
		idx := int(addr - 0x7A4)
		f.validation[idx] = val
		return Ok
	default:
		return Ok
	}
}

const (
	mieWritable    uint64 = (1 << 1) | (1 << 3) | (1 << 5) | (1 << 7) | (1 << 9) | (1 << 11)
	mipWritable    uint64 = mieWritable
	mideleWritable uint64 = (1 << 1) | (1 << 5) | (1 << 9)
)

// writeMstatus applies the toggle-detection rule from spec §4.5:
// flipping mprv/sum/mxr, or changing mpp while mprv is set, must be
// reported as TLBFlushed so the caller flushes the TLB sets. uxl/sxl
// are never stored (this hart is fixed at XLEN=64).
func (f *File) writeMstatus(val uint64) WriteResult {
	const toggle = statusMPRV | statusSUM | statusMXR
	oldMPP := f.mstatus & statusMPP
	changed := (f.mstatus^val)&toggle != 0
	newMPP := val & statusMPP
	if val&statusMPRV != 0 && newMPP != oldMPP {
		changed = true
	}
	f.mstatus = val &^ (statusFS | statusXS | statusSD)
	f.fs = uint8((val & statusFS) >> 13)
	if changed {
		return TLBFlushed
	}
	return Ok
}

// maskEpc forces the low bit to 0, and the low two bits to 0 if the
// C extension is disabled (misa bit 'C'-'A' = 2).
func maskEpc(val, misa uint64) uint64 {
	if misa&(1<<2) == 0 {
		return val &^ 3
	}
	return val &^ 1
}

// Mstatus exposes the raw composed value for the MMU's effective
// privilege / mprv / sum / mxr checks without going through CheckAccess.
func (f *File) Mstatus() uint64 { return f.composedMstatus() }

// FS reports mstatus.fs (0=off,1=initial,2=clean,3=dirty). The
// interpreter consults this before dispatching any F/D instruction
// (spec §4.7: "Requires mstatus.fs != 0, else illegal-instruction").
func (f *File) FS() uint8 { return f.fs }

// MPRV, SUM, MXR, MPP are convenience accessors the translator polls
// on every access; they mirror the bit layout above.
func (f *File) MPRV() bool  { return f.mstatus&statusMPRV != 0 }
func (f *File) SUM() bool   { return f.mstatus&statusSUM != 0 }
func (f *File) MXR() bool   { return f.mstatus&statusMXR != 0 }
func (f *File) MPP() uint8  { return uint8((f.mstatus & statusMPP) >> 11) }
func (f *File) SPP() uint8  { return uint8((f.mstatus & statusSPP) >> 8) }

func (f *File) SetMPP(p uint8) { f.mstatus = (f.mstatus &^ statusMPP) | (uint64(p) << 11) }
func (f *File) SetSPP(p uint8) { f.mstatus = (f.mstatus &^ statusSPP) | (uint64(p&1) << 8) }

func (f *File) MIE() bool  { return f.mstatus&statusMIE != 0 }
func (f *File) SIE() bool  { return f.mstatus&statusSIE != 0 }
func (f *File) MPIE() bool { return f.mstatus&statusMPIE != 0 }
func (f *File) SPIE() bool { return f.mstatus&statusSPIE != 0 }

func (f *File) SetMIE(b bool)  { f.setBit(statusMIE, b) }
func (f *File) SetSIE(b bool)  { f.setBit(statusSIE, b) }
func (f *File) SetMPIE(b bool) { f.setBit(statusMPIE, b) }
func (f *File) SetSPIE(b bool) { f.setBit(statusSPIE, b) }

func (f *File) setBit(bit uint64, b bool) {
	if b {
		f.mstatus |= bit
	} else {
		f.mstatus &^= bit
	}
}

// Satp, Medeleg, Mideleg, Mie, Mip, Mtvec, Stvec, Mepc, Sepc, Mcause,
// Scause, Mtval, Stval expose the raw values to the trap unit and MMU.
func (f *File) Satp() uint64    { return f.satpVal }
func (f *File) Medeleg() uint64 { return f.medeleg }
func (f *File) Mideleg() uint64 { return f.mideleg }
func (f *File) Mie() uint64     { return f.mie }
func (f *File) Mip() uint64     { return f.mip }
func (f *File) Mtvec() uint64   { return f.mtvec }
func (f *File) Stvec() uint64   { return f.stvec }

func (f *File) SetMip(v uint64) { f.mip = v }
func (f *File) OrMip(bit uint64) { f.mip |= bit }
func (f *File) AndMip(mask uint64) { f.mip &= mask }

func (f *File) SetMepc(v uint64) { f.mepc = v }
func (f *File) SetSepc(v uint64) { f.sepc = v }
func (f *File) Mepc() uint64     { return f.mepc }
func (f *File) Sepc() uint64     { return f.sepc }

func (f *File) SetMcause(v uint64) { f.mcause = v }
func (f *File) SetScause(v uint64) { f.scause = v }
func (f *File) SetMtval(v uint64)  { f.mtval = v }
func (f *File) SetStval(v uint64)  { f.stval = v }

func (f *File) Mcause() uint64 { return f.mcause }
func (f *File) Scause() uint64 { return f.scause }
func (f *File) Mtval() uint64  { return f.mtval }
func (f *File) Stval() uint64  { return f.stval }

// OrFflags accrues floating-point exception flags (spec §4.7: every
// FP operation ORs its accrued flags into fflags and marks fs dirty),
// as distinct from Write(Fflags, ...) which replaces the field outright.
func (f *File) OrFflags(bits uint8) {
	f.fflags |= bits & 0x1f
	f.fs = 3
}

// FrmValue reads the current rounding mode field for an FP handler that
// needs to resolve a dynamic (rm==7) instruction-encoded mode.
func (f *File) FrmValue() uint8 { return f.frm }

// StopTheCounter reports dcsr's stopcount/stoptime flag, per spec
// §4.5's dcsr write side effect.
func (f *File) StopTheCounter() bool { return f.stopCount }

// TickCounters increments mcycle and, when retired is true, minstret
// by one, unless dcsr has paused them.
func (f *File) TickCounters(retired bool) {
	if f.StopTheCounter() {
		return
	}
	f.mcycle++
	if retired {
		f.minstret++
	}
}

const (
	// Debug options.
	debugCSR = 1 << iota
)

var debugOption = map[string]int{
	"CSR": debugCSR,
}

var debugMsk int

// Debug enables a CSR-subsystem debug option.
func Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("csr debug option invalid: " + opt)
	}
	debugMsk |= flag
	return nil
}
