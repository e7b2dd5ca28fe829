/*
 * rv64sim  - Translation lookaside buffer
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

// Package tlb holds the three direct-mapped translation caches the
// address translator fills and the interpreter's fast path probes
// before falling back to a full page-table walk. The single packed
// S/370 segment-table cache this is grounded on stored one tag plus
// a physical page in a uint32; RISC-V needs a wider tag (the vaddr
// page number on a 39- or 48-bit space) so each table is its own
// entry slice rather than a bitfield-packed array, but the
// quick-check-then-fallback shape is unchanged.
package tlb

const (
	// Size is TLB_SIZE from spec §4.2: 256 direct-mapped entries per table.
	Size = 256

	pageShift = 12
	pageMask  = (1 << pageShift) - 1
	indexMask = Size - 1
)

type entry struct {
	valid bool
	tag   uint64 // vaddr & ^pageMask
	ppn   uint64 // physical page number: paddr>>12
}

// Table is one of the three parallel direct-mapped caches (read,
// write, or fetch/code).
type Table struct {
	entries [Size]entry
}

// Lookup returns the cached physical page number for vaddr, if the
// index's tag matches. Index = (vaddr >> 12) & 255, same shape as the
// teacher's cpu.tlb[page] quick check.
func (t *Table) Lookup(vaddr uint64) (ppn uint64, hit bool) {
	idx := (vaddr >> pageShift) & indexMask
	e := &t.entries[idx]
	if e.valid && e.tag == vaddr&^uint64(pageMask) {
		return e.ppn, true
	}
	return 0, false
}

// Fill installs a translation: the page containing vaddr maps to
// physical page ppn. Direct-mapped, so this evicts whatever entry
// previously lived at vaddr's index.
func (t *Table) Fill(vaddr, ppn uint64) {
	idx := (vaddr >> pageShift) & indexMask
	t.entries[idx] = entry{valid: true, tag: vaddr &^ uint64(pageMask), ppn: ppn}
}

// Flush invalidates every entry in the table.
func (t *Table) Flush() {
	for i := range t.entries {
		t.entries[i].valid = false
	}
}

// Set is the three parallel tables a hart keeps: one per access kind,
// matching spec §4.2's "three parallel direct-mapped tables".
type Set struct {
	Read  Table
	Write Table
	Fetch Table
}

// FlushAll invalidates all three tables. Called on satp writes, on
// mstatus writes that toggle mprv/sum/mxr (or change mpp while
// mprv is set), and on SFENCE.VMA.
func (s *Set) FlushAll() {
	s.Read.Flush()
	s.Write.Flush()
	s.Fetch.Flush()
}

// FlushWriteRange implements the flush_tlb_write_range_ram callback
// emu/memory.RegisterRAM's contract requires: invalidate any write
// TLB entry whose cached physical page could fall inside a RAM range
// that changed shape. Since this simulator's RAM layout is fixed at
// machine-build time and never resized afterward, a full flush of
// the write table is a correct (if conservative) implementation —
// there is no finer-grained reverse map from ppn back to the set of
// vaddrs that could have cached it.
func (s *Set) FlushWriteRange(base, size uint64) {
	s.Write.Flush()
}
