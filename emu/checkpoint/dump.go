/*
   rv64sim checkpoint serialization.

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

// Package checkpoint serializes and restores the machine's
// architectural state as a three-file dump sharing a common prefix:
// <prefix>.re_regs, <prefix>.mainram, <prefix>.bootram. The register
// file is plain text, one "key:value" line per register or CSR.
package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rcornwell/rv64sim/emu/cpu"
	"github.com/rcornwell/rv64sim/emu/csr"
	"github.com/rcornwell/rv64sim/emu/memory"
)

// fpRegisters gates whether f0..f31 are dumped/restored, set by
// main.go according to whether the build configured the F/D
// extension.
var fpRegisters = true

// SetFPEnabled controls whether f0..f31 are included in future dumps
// and expected on restore.
func SetFPEnabled(enabled bool) { fpRegisters = enabled }

// csrList is every CSR visible to a checkpoint, named exactly as the
// re_regs key. Order is stable so the file is diffable across dumps.
var csrList = []struct {
	key  string
	addr uint16
}{
	{"mstatus", csr.Mstatus}, {"misa", csr.Misa},
	{"medeleg", csr.Medeleg}, {"mideleg", csr.Mideleg},
	{"mie", csr.Mie}, {"mtvec", csr.Mtvec}, {"mcounteren", csr.Mcounteren},
	{"mscratch", csr.Mscratch}, {"mepc", csr.Mepc}, {"mcause", csr.Mcause},
	{"mtval", csr.Mtval}, {"mip", csr.Mip},
	{"sstatus", csr.Sstatus}, {"sie", csr.Sie}, {"stvec", csr.Stvec},
	{"scounteren", csr.Scounteren}, {"sscratch", csr.Sscratch},
	{"sepc", csr.Sepc}, {"scause", csr.Scause}, {"stval", csr.Stval},
	{"sip", csr.Sip}, {"satp", csr.Satp},
	{"fflags", csr.Fflags}, {"frm", csr.Frm}, {"fcsr", csr.Fcsr},
	{"mcycle", csr.Mcycle}, {"minstret", csr.Minstret},
	{"mvendorid", csr.Mvendorid}, {"marchid", csr.Marchid},
	{"mimpid", csr.Mimpid}, {"mhartid", csr.Mhartid},
	{"tselect", csr.Tselect}, {"tdata1", csr.Tdata1},
	{"tdata2", csr.Tdata2}, {"tdata3", csr.Tdata3},
	{"dcsr", csr.Dcsr}, {"dpc", csr.Dpc}, {"dscratch", csr.Dscratch},
}

// Dump writes <prefix>.re_regs, <prefix>.mainram and <prefix>.bootram.
// romEntry is the PC the boot ROM starts at; when the hart's current
// PC equals it, bootram is a verbatim copy of low RAM, otherwise it is
// a synthesized recovery ROM (see rom.go).
func Dump(prefix string, romEntry uint64) error {
	if err := dumpRegs(prefix + ".re_regs"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := dumpRAM(prefix+".mainram", mainRAM()); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	lowRAM := bootRAM()
	pc := cpu.GetPC()
	if pc == romEntry {
		if err := dumpRAM(prefix+".bootram", lowRAM); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		return nil
	}

	rom := synthesizeRecoveryROM(romEntry)
	if err := os.WriteFile(prefix+".bootram", rom, 0o644); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// mainRAM and bootRAM pick the RAM region registered at the spec's
// main-RAM base (0x8000_0000) and low-RAM base (0x0000_0000)
// respectively, per spec.md §4.1's default physical memory map.
const (
	lowRAMBase  = 0x0000_0000
	mainRAMBase = 0x8000_0000
)

func regionAt(base uint64) []byte {
	bases := memory.RAMBases()
	regions := memory.RAMRegions()
	for i, b := range bases {
		if b == base {
			return regions[i]
		}
	}
	return nil
}

func mainRAM() []byte { return regionAt(mainRAMBase) }
func bootRAM() []byte { return regionAt(lowRAMBase) }

func dumpRAM(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func dumpRegs(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "pc:%#016x\n", cpu.GetPC())
	fmt.Fprintf(w, "priv:%d\n", cpu.Priv())

	for i := 1; i < 32; i++ {
		fmt.Fprintf(w, "x%d:%#016x\n", i, cpu.GetX(i))
	}
	if fpRegisters {
		for i := 0; i < 32; i++ {
			fmt.Fprintf(w, "f%d:%#016x\n", i, cpu.GetF(i))
		}
	}
	for _, c := range csrList {
		fmt.Fprintf(w, "%s:%#016x\n", c.key, cpu.ReadCSR(c.addr))
	}

	fmt.Fprintf(w, "ram:%#x:%#x\n", mainRAMBase, len(mainRAM()))
	fmt.Fprintf(w, "bootram:%#x:%#x\n", lowRAMBase, len(bootRAM()))

	return w.Flush()
}

// Restore loads a checkpoint written by Dump back into the running
// hart and memory image. The caller must have already registered RAM
// regions of at least the sizes recorded in the dump (main.go does
// this from its own configuration before calling Restore).
func Restore(prefix string) error {
	if err := restoreRAM(prefix+".mainram", mainRAM()); err != nil {
		return fmt.Errorf("checkpoint restore: %w", err)
	}
	if err := restoreRAM(prefix+".bootram", bootRAM()); err != nil {
		return fmt.Errorf("checkpoint restore: %w", err)
	}
	if err := restoreRegs(prefix + ".re_regs"); err != nil {
		return fmt.Errorf("checkpoint restore: %w", err)
	}
	cpu.FlushTLBs()
	return nil
}

func restoreRAM(path string, dst []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	n := copy(dst, data)
	if n < len(dst) {
		clear(dst[n:])
	}
	return nil
}

func restoreRegs(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	csrByKey := make(map[string]uint16, len(csrList))
	for _, c := range csrList {
		csrByKey[c.key] = c.addr
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		_, isCSR := csrByKey[key]
		switch {
		case key == "pc":
			if v, err := strconv.ParseUint(rest, 0, 64); err == nil {
				cpu.SetPC(v)
			}
		case key == "priv":
			if v, err := strconv.ParseUint(rest, 0, 8); err == nil {
				cpu.SetPriv(uint8(v))
			}
		case key == "ram" || key == "bootram":
			// Descriptive only; sizing is the caller's responsibility.
		case strings.HasPrefix(key, "x"):
			if idx, err := strconv.Atoi(key[1:]); err == nil {
				if v, err := strconv.ParseUint(rest, 0, 64); err == nil {
					cpu.SetX(idx, v)
				}
			}
		case strings.HasPrefix(key, "f") && fpRegisters && !isCSR:
			if idx, err := strconv.Atoi(key[1:]); err == nil {
				if v, err := strconv.ParseUint(rest, 0, 64); err == nil {
					cpu.SetF(idx, v)
				}
			}
		default:
			if addr, ok := csrByKey[key]; ok {
				if v, err := strconv.ParseUint(rest, 0, 64); err == nil {
					cpu.WriteCSR(addr, v)
				}
			}
		}
	}
	return scanner.Err()
}
