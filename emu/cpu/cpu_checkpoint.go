/*
   CPU checkpoint accessors: the narrow surface emu/checkpoint uses to
   read and restore architectural state, so the checkpoint package
   never needs its own copy of the register file.

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

// GetX and SetX read/write an integer register by index (0..31).
func GetX(i int) uint64      { return sysHart.X[i&31] }
func SetX(i int, v uint64)   { sysHart.setX(uint8(i), v) }

// GetF and SetF read/write a floating-point register's raw NaN-boxed
// 64-bit pattern.
func GetF(i int) uint64    { return sysHart.F[i&31] }
func SetF(i int, v uint64) { sysHart.F[i&31] = v }

// GetPC and SetPC access the program counter directly, bypassing the
// normal fetch-execute redirect path.
func GetPC() uint64    { return sysHart.PC }
func SetPC(pc uint64)  { sysHart.PC = pc }

// ReadCSR and WriteCSR expose the CSR file by numeric address, the
// same addressing spec §4.5 defines for CSRRW/CSRRS/CSRRC, without
// going through CheckAccess (the checkpoint path runs with full
// privilege by construction).
func ReadCSR(addr uint16) uint64        { return sysHart.csr.Read(addr) }
func WriteCSR(addr uint16, val uint64)  { sysHart.csr.Write(addr, val) }

// Priv and SetPriv access the hart's current privilege level.
func Priv() uint8       { return sysHart.csr.Priv }
func SetPriv(p uint8)   { sysHart.csr.Priv = p }

// Halted reports whether the hart is parked in WFI.
func Halted() bool { return sysHart.halted }

// FlushTLBs is the exported form of the restore path's "state just
// changed out from under the translator" rule (spec §3).
func FlushTLBs() { sysHart.flushTLBs() }

// FlushWriteRange is the memory map's flush_tlb_write_range_ram
// callback (spec §4.1): invalidate any write-TLB entry whose host
// pointer falls inside a RAM range a host-side write just touched
// (e.g. an image load), installed into emu/memory via
// memory.SetFlushCallback by main.go.
func FlushWriteRange(base, size uint64) { sysHart.tlbs.FlushWriteRange(base, size) }
