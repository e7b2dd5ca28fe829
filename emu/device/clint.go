/*
rv64sim RISC-V MMIO device interface.

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
package device

import "sync"

// CLINT offsets, single-hart (spec §6): MSIP at 0, MTIMECMP at
// 0x4000, MTIME at 0xBFF8, matching the SiFive/QEMU layout Dromajo's
// riscv_machine.c also follows.
const (
	clintMSIP     = 0x0000
	clintMTimeCmp = 0x4000
	clintMTime    = 0xBFF8
	clintSize     = 0xC0000 // 768 KiB window, spec §4.2's physical memory map
)

// Clint is the core-local interruptor: one machine-mode software
// interrupt bit and one machine timer comparator, driven by a
// wall-clock or instruction-count tick from emu/core rather than a
// scheduled event list (spec §6's "no separate event package" design
// note — grounded on replacing emu/event with a direct poll since the
// retrieved pack's master/event wiring didn't survive to this tree).
type Clint struct {
	mu       sync.Mutex
	name     string
	base     uint64
	mtime    uint64
	mtimecmp uint64
	msip     uint32
}

// NewClint constructs a CLINT device registered under name.
func NewClint(name string, base uint64) *Clint {
	return &Clint{name: name, base: base, mtimecmp: ^uint64(0)}
}

func (c *Clint) Name() string { return c.name }
func (c *Clint) Base() uint64 { return c.base }
func (c *Clint) Size() uint64 { return clintSize }

func (c *Clint) Load(addr uint64, width int) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case addr == clintMSIP && width == Width4:
		return uint64(c.msip), true
	case addr == clintMTimeCmp && width == Width8:
		return c.mtimecmp, true
	case addr == clintMTimeCmp && width == Width4:
		return c.mtimecmp & 0xffffffff, true
	case addr == clintMTimeCmp+4 && width == Width4:
		return c.mtimecmp >> 32, true
	case addr == clintMTime && width == Width8:
		return c.mtime, true
	case addr == clintMTime && width == Width4:
		return c.mtime & 0xffffffff, true
	case addr == clintMTime+4 && width == Width4:
		return c.mtime >> 32, true
	}
	return 0, false
}

func (c *Clint) Store(addr uint64, width int, value uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case addr == clintMSIP && width == Width4:
		c.msip = uint32(value) & 1
		return true
	case addr == clintMTimeCmp && width == Width8:
		c.mtimecmp = value
		return true
	case addr == clintMTimeCmp && width == Width4:
		c.mtimecmp = (c.mtimecmp &^ 0xffffffff) | (value & 0xffffffff)
		return true
	case addr == clintMTimeCmp+4 && width == Width4:
		c.mtimecmp = (c.mtimecmp & 0xffffffff) | (value << 32)
		return true
	case addr == clintMTime && width == Width8:
		c.mtime = value
		return true
	case addr == clintMTime && width == Width4:
		c.mtime = (c.mtime &^ 0xffffffff) | (value & 0xffffffff)
		return true
	case addr == clintMTime+4 && width == Width4:
		c.mtime = (c.mtime & 0xffffffff) | (value << 32)
		return true
	}
	return false
}

func (c *Clint) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mtime = 0
	c.mtimecmp = ^uint64(0)
	c.msip = 0
}

func (c *Clint) Shutdown() {}

func (c *Clint) Debug(string) error { return nil }

// Tick advances mtime by delta; emu/core hands it to emu/timer, which
// calls it once per real-time timer period.
func (c *Clint) Tick(delta uint64) {
	c.mu.Lock()
	c.mtime += delta
	c.mu.Unlock()
}

// SoftwarePending reports MSIP (spec §6: machine software interrupt).
func (c *Clint) SoftwarePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msip != 0
}

// TimerPending reports whether mtime has reached mtimecmp (spec §6:
// machine timer interrupt), the comparator-style check Dromajo's
// riscv_machine.c performs every cycle.
func (c *Clint) TimerPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mtime >= c.mtimecmp
}

// MTime exposes the current counter, for checkpoint serialization.
func (c *Clint) MTime() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mtime
}
