package memory

/*
 * rv64sim  - Physical memory map
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

import (
	"fmt"
	"sort"

	"github.com/rcornwell/rv64sim/emu/device"
)

// PageShift and PageSize match the translator's 4 KiB leaf granularity;
// the dirty bitmap and flushTLBWriteRange callback both work in units
// of a page.
const (
	PageShift = 12
	PageSize  = 1 << PageShift
)

// Range flags for register_ram.
const (
	FlagReadOnly uint32 = 1 << iota
)

// ramRegion is a RAM-backed range: a flat byte slice plus a
// per-page dirty bitmap, reported by DirtyPages.
type ramRegion struct {
	base    uint64
	size    uint64
	flags   uint32
	bytes   []byte
	dirty   []uint64 // one bit per page
}

// devRegion is a device-backed range: every access is dispatched
// through the Device interface rather than a host byte slice, so
// there is no host pointer for the TLB to cache.
type devRegion struct {
	base uint64
	size uint64
	dev  device.Device
}

type physMap struct {
	ram   []*ramRegion
	dev   []*devRegion
}

var phys physMap

// flushTLBWriteRange is supplied at startup (main.go passes
// cpu.FlushWriteRange); register_ram wiring a write to a RAM range
// that shrinks or replaces a page must invalidate any cached write-TLB
// entry pointing into it. The memory layer stores it but never calls
// it itself.
var flushTLBWriteRange func(base, size uint64)

// SetFlushCallback installs the callback register_ram's contract
// requires. Called once, from machine setup, before any RAM is
// registered.
func SetFlushCallback(fn func(base, size uint64)) {
	flushTLBWriteRange = fn
}

// Reset clears the whole physical map. Used by tests and before a
// fresh machine is built from a new config file.
func Reset() {
	phys = physMap{}
}

// RegisterRAM installs a RAM-backed range of size bytes at base.
// Ranges must not overlap an existing RAM or device range.
func RegisterRAM(base, size uint64, flags uint32) error {
	if err := checkOverlap(base, size); err != nil {
		return err
	}
	r := &ramRegion{
		base:  base,
		size:  size,
		flags: flags,
		bytes: make([]byte, size),
		dirty: make([]uint64, (size/PageSize/64)+1),
	}
	phys.ram = append(phys.ram, r)
	sort.Slice(phys.ram, func(i, j int) bool { return phys.ram[i].base < phys.ram[j].base })
	return nil
}

// RegisterDevice installs a device-backed range of size bytes at
// base, dispatching loads and stores to dev.
func RegisterDevice(base, size uint64, dev device.Device) error {
	if err := checkOverlap(base, size); err != nil {
		return err
	}
	phys.dev = append(phys.dev, &devRegion{base: base, size: size, dev: dev})
	sort.Slice(phys.dev, func(i, j int) bool { return phys.dev[i].base < phys.dev[j].base })
	return nil
}

func checkOverlap(base, size uint64) error {
	end := base + size
	for _, r := range phys.ram {
		if base < r.base+r.size && end > r.base {
			return fmt.Errorf("memory range %#x-%#x overlaps RAM at %#x-%#x", base, end, r.base, r.base+r.size)
		}
	}
	for _, r := range phys.dev {
		if base < r.base+r.size && end > r.base {
			return fmt.Errorf("memory range %#x-%#x overlaps device %s at %#x-%#x", base, end, r.dev.Name(), r.base, r.base+r.size)
		}
	}
	return nil
}

// Kind reports what lookup(paddr) found.
type Kind int

const (
	NoRange Kind = iota
	RAM
	MMIO
)

// Lookup implements spec's lookup(paddr) -> range | none. Executable
// means the range may back an instruction fetch: only RAM qualifies.
type LookupResult struct {
	Kind       Kind
	ReadOnly   bool
	Executable bool
	ram        *ramRegion
	dev        *devRegion
	offset     uint64
}

func Lookup(paddr uint64) LookupResult {
	for _, r := range phys.ram {
		if paddr >= r.base && paddr < r.base+r.size {
			return LookupResult{Kind: RAM, ReadOnly: r.flags&FlagReadOnly != 0, Executable: true, ram: r, offset: paddr - r.base}
		}
	}
	for _, r := range phys.dev {
		if paddr >= r.base && paddr < r.base+r.size {
			return LookupResult{Kind: MMIO, dev: r, offset: paddr - r.base}
		}
	}
	return LookupResult{Kind: NoRange}
}

// HostPointer returns the byte offset into the RAM region's backing
// slice a hit TLB entry caches as its "host pointer". Only valid for
// a RAM lookup.
func (l LookupResult) HostPointer() (region []byte, offset uint64) {
	return l.ram.bytes, l.offset
}

func markDirty(r *ramRegion, offset uint64) {
	page := offset / PageSize
	r.dirty[page/64] |= 1 << (page % 64)
}

// ReadBytes reads width bytes (1, 2, 4, or 8) little-endian and
// reports whether any backing range answered the access. A read that
// lands entirely outside every range returns (0, false); per spec
// §4.1 this is not itself an exception — the translator decides
// whether a missing range is a fault.
func ReadBytes(paddr uint64, width int) (uint64, bool) {
	l := Lookup(paddr)
	switch l.Kind {
	case RAM:
		if int(l.offset)+width > len(l.ram.bytes) {
			return 0, false
		}
		return readLE(l.ram.bytes[l.offset:l.offset+uint64(width)]), true
	case MMIO:
		return mmioRead(l.dev, l.offset, width)
	default:
		return 0, false
	}
}

// WriteBytes writes width bytes (1, 2, 4, or 8) little-endian and
// reports whether any backing range accepted the access.
func WriteBytes(paddr uint64, width int, value uint64) bool {
	l := Lookup(paddr)
	switch l.Kind {
	case RAM:
		if l.ReadOnly {
			return false
		}
		if int(l.offset)+width > len(l.ram.bytes) {
			return false
		}
		writeLE(l.ram.bytes[l.offset:l.offset+uint64(width)], value)
		markDirty(l.ram, l.offset)
		return true
	case MMIO:
		return mmioWrite(l.dev, l.offset, width, value)
	default:
		return false
	}
}

// mmioRead implements the spec's width-mismatch policy: a 64-bit
// access to a device is split into two 32-bit accesses at offsets
// 0 and 4 (little-endian) when the device only speaks 32-bit widths.
// Any other width the device doesn't accept reads as zero.
func mmioRead(r *devRegion, offset uint64, width int) (uint64, bool) {
	if v, ok := r.dev.Load(offset, width); ok {
		return v, true
	}
	if width == 8 {
		lo, okLo := r.dev.Load(offset, 4)
		hi, okHi := r.dev.Load(offset+4, 4)
		if okLo && okHi {
			return lo | (hi << 32), true
		}
	}
	return 0, true
}

// mmioWrite mirrors mmioRead's split, and silently drops writes the
// device never accepts at any width.
func mmioWrite(r *devRegion, offset uint64, width int, value uint64) bool {
	if r.dev.Store(offset, width, value) {
		return true
	}
	if width == 8 {
		okLo := r.dev.Store(offset, 4, value&0xffffffff)
		okHi := r.dev.Store(offset+4, 4, value>>32)
		if okLo && okHi {
			return true
		}
	}
	return true
}

func readLE(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

func writeLE(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}

// DirtyPages returns every dirty page base address across all RAM
// regions. clear, if true, resets the dirty bitmap after reporting.
// The checkpoint writer does not use it; it dumps whole regions.
func DirtyPages(clear bool) []uint64 {
	var out []uint64
	for _, r := range phys.ram {
		for word, bits := range r.dirty {
			for bits != 0 {
				bit := bits & -bits
				idx := trailingZeros64(bits)
				page := uint64(word)*64 + uint64(idx)
				if page*PageSize < r.size {
					out = append(out, r.base+page*PageSize)
				}
				bits &^= bit
			}
			if clear {
				r.dirty[word] = 0
			}
		}
	}
	return out
}

func trailingZeros64(x uint64) int {
	n := 0
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

// RAMRegions exposes every RAM range's backing bytes, in the same
// order as RAMBases, for the checkpoint dump and restore.
func RAMRegions() [][]byte {
	out := make([][]byte, len(phys.ram))
	for i, r := range phys.ram {
		out[i] = r.bytes
	}
	return out
}

// RAMBases reports the base address of each range returned by RAMRegions.
func RAMBases() []uint64 {
	out := make([]uint64, len(phys.ram))
	for i, r := range phys.ram {
		out[i] = r.base
	}
	return out
}
