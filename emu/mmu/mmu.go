/*
 * rv64sim  - Sv39/Sv48 address translator
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

// Package mmu walks Sv39/Sv48 page tables the way the teacher's
// transAddr walks S/370 segment/page tables: a quick TLB probe first,
// a full walk on miss, then a TLB fill. The step-by-step contract is
// grounded on Dromajo's get_phys_addr (original_source/riscv_cpu.c).
package mmu

import (
	"errors"

	"github.com/rcornwell/rv64sim/emu/csr"
	"github.com/rcornwell/rv64sim/emu/memory"
	"github.com/rcornwell/rv64sim/emu/tlb"
	"github.com/rcornwell/rv64sim/emu/trap"
)

// Access is the kind of access being translated.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessExecute
)

const (
	ptePTE_V uint64 = 1 << 0
	ptePTE_R uint64 = 1 << 1
	ptePTE_W uint64 = 1 << 2
	ptePTE_X uint64 = 1 << 3
	ptePTE_U uint64 = 1 << 4
	ptePTE_A uint64 = 1 << 6
	ptePTE_D uint64 = 1 << 7
	ppnShift uint64 = 10
)

// HardwareADUpdate selects the spec §4.3 A/D bit policy: when false
// (the default), a leaf with A=0 faults on any access and a leaf with
// D=0 faults on write (software-managed). When true, A/D are set and
// the PTE written back instead of faulting.
var HardwareADUpdate bool

// Translate implements translate(vaddr, access) -> paddr | fault(cause),
// spec §4.3, filling the appropriate TLB table (read/write/fetch) on
// a successful walk.
func Translate(f *csr.File, tlbs *tlb.Set, vaddr uint64, access Access) (paddr uint64, fault *trap.Fault) {
	table := tableFor(tlbs, access)

	if ppn, hit := table.Lookup(vaddr); hit {
		return (ppn << 12) | (vaddr & 0xfff), nil
	}

	priv := f.Priv
	if f.MPRV() && access != AccessExecute {
		priv = f.MPP()
	}

	if priv == csr.PrivM {
		pa := vaddr
		if pa>>56 != 0 {
			return 0, accessFault(access, vaddr)
		}
		return pa, nil
	}

	mode := f.Satp() >> 60
	if mode == 0 {
		return vaddr, nil
	}

	var levels int
	switch mode {
	case 8:
		levels = 3
	case 9:
		levels = 4
	default:
		return vaddr, nil
	}

	topBits := 64 - (12 + 9*levels)
	signBit := uint64(1) << (12 + 9*levels - 1)
	top := vaddr >> uint(12+9*levels)
	var wantTop uint64
	if vaddr&signBit != 0 {
		wantTop = (uint64(1) << uint(topBits)) - 1
	}
	if top != wantTop {
		return 0, pageFault(access, vaddr)
	}

	base := (f.Satp() & ((1 << 44) - 1)) << 12
	var pte uint64
	var pteAddr uint64
	level := levels - 1
	for {
		idx := (vaddr >> uint(12+9*level)) & 0x1ff
		pteAddr = base + idx*8
		v, ok := memory.ReadBytes(pteAddr, 8)
		if !ok {
			return 0, accessFault(access, vaddr)
		}
		pte = v

		if pte&ptePTE_V == 0 || (pte&ptePTE_W != 0 && pte&ptePTE_R == 0) {
			return 0, pageFault(access, vaddr)
		}

		leaf := pte&(ptePTE_R|ptePTE_W|ptePTE_X) != 0
		if leaf {
			break
		}
		if level == 0 {
			return 0, pageFault(access, vaddr)
		}
		base = (pte >> ppnShift) << 12
		level--
	}

	if f.Priv == csr.PrivS && pte&ptePTE_U != 0 {
		if !(f.SUM() && access != AccessExecute) {
			return 0, pageFault(access, vaddr)
		}
	}
	if f.Priv == csr.PrivU && pte&ptePTE_U == 0 {
		return 0, pageFault(access, vaddr)
	}

	perm := pte
	if f.MXR() {
		if perm&ptePTE_X != 0 {
			perm |= ptePTE_R
		}
	}
	switch access {
	case AccessRead:
		if perm&ptePTE_R == 0 {
			return 0, pageFault(access, vaddr)
		}
	case AccessWrite:
		if perm&ptePTE_W == 0 {
			return 0, pageFault(access, vaddr)
		}
	case AccessExecute:
		if perm&ptePTE_X == 0 {
			return 0, pageFault(access, vaddr)
		}
	}

	ppn := pte >> ppnShift
	lowMask := uint64(1)<<uint(9*level) - 1
	if ppn&lowMask != 0 {
		return 0, pageFault(access, vaddr)
	}

	if pte&ptePTE_A == 0 {
		if !HardwareADUpdate {
			return 0, pageFault(access, vaddr)
		}
		pte |= ptePTE_A
	}
	if access == AccessWrite && pte&ptePTE_D == 0 {
		if !HardwareADUpdate {
			return 0, pageFault(access, vaddr)
		}
		pte |= ptePTE_D
	}
	if HardwareADUpdate {
		memory.WriteBytes(pteAddr, 8, pte)
	}

	pageOffsetBits := uint(12 + 9*level)
	paMask := (uint64(1) << pageOffsetBits) - 1
	paddr = ((ppn << 12) &^ paMask) | (vaddr & paMask)

	table.Fill(vaddr, paddr>>12)

	return paddr, nil
}

func tableFor(tlbs *tlb.Set, access Access) *tlb.Table {
	switch access {
	case AccessRead:
		return &tlbs.Read
	case AccessWrite:
		return &tlbs.Write
	default:
		return &tlbs.Fetch
	}
}

func pageFault(access Access, vaddr uint64) *trap.Fault {
	switch access {
	case AccessRead:
		return &trap.Fault{Cause: trap.CauseLoadPageFault, Tval: vaddr}
	case AccessWrite:
		return &trap.Fault{Cause: trap.CauseStorePageFault, Tval: vaddr}
	default:
		return &trap.Fault{Cause: trap.CauseFetchPageFault, Tval: vaddr}
	}
}

func accessFault(access Access, vaddr uint64) *trap.Fault {
	switch access {
	case AccessRead:
		return &trap.Fault{Cause: trap.CauseFaultLoad, Tval: vaddr}
	case AccessWrite:
		return &trap.Fault{Cause: trap.CauseFaultStore, Tval: vaddr}
	default:
		return &trap.Fault{Cause: trap.CauseFaultFetch, Tval: vaddr}
	}
}

const (
	debugMMU = 1 << iota
)

var debugOption = map[string]int{
	"MMU": debugMMU,
}

var debugMsk int

// Debug enables an MMU-subsystem debug option.
func Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("mmu debug option invalid: " + opt)
	}
	debugMsk |= flag
	return nil
}
