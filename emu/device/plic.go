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

// PLIC layout (spec §6), trimmed to a single context (machine mode,
// hart 0) and a fixed source count — enough to route HTIF's console
// interrupt and leave room for future devices without modeling the
// full multi-context SiFive register file.
const (
	plicSources  = 32
	plicPriority = 0x000000
	plicPending  = 0x001000
	plicEnable   = 0x002000
	plicContext  = 0x200000
	plicSize     = 0x400000 // 4 MiB window, spec §4.2's physical memory map
)

// Plic is the platform-level interrupt controller: priority, pending,
// and per-context enable bits plus claim/complete, grounded on
// Dromajo's riscv_machine.c PLIC emulation.
type Plic struct {
	mu       sync.Mutex
	name     string
	base     uint64
	priority [plicSources]uint32
	pending  uint32
	enable   uint32
	threshold uint32
	claimed  uint32 // currently claimed, not yet completed
}

// NewPlic constructs a PLIC device registered under name.
func NewPlic(name string, base uint64) *Plic {
	return &Plic{name: name, base: base}
}

func (p *Plic) Name() string { return p.name }
func (p *Plic) Base() uint64 { return p.base }
func (p *Plic) Size() uint64 { return plicSize }

func (p *Plic) Load(addr uint64, width int) (uint64, bool) {
	if width != Width4 {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case addr >= plicPriority && addr < plicPriority+4*plicSources:
		src := addr / 4
		return uint64(p.priority[src]), true
	case addr == plicPending:
		return uint64(p.pending), true
	case addr == plicEnable:
		return uint64(p.enable), true
	case addr == plicContext:
		return uint64(p.threshold), true
	case addr == plicContext+4:
		return uint64(p.claim()), true
	}
	return 0, false
}

func (p *Plic) Store(addr uint64, width int, value uint64) bool {
	if width != Width4 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case addr >= plicPriority && addr < plicPriority+4*plicSources:
		src := addr / 4
		p.priority[src] = uint32(value)
		return true
	case addr == plicEnable:
		p.enable = uint32(value)
		return true
	case addr == plicContext:
		p.threshold = uint32(value)
		return true
	case addr == plicContext+4:
		p.complete(uint32(value))
		return true
	}
	return false
}

func (p *Plic) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priority = [plicSources]uint32{}
	p.pending = 0
	p.enable = 0
	p.threshold = 0
	p.claimed = 0
}

func (p *Plic) Shutdown() {}

func (p *Plic) Debug(string) error { return nil }

// claim returns the highest-priority pending-and-enabled source above
// threshold and marks it claimed (caller holds p.mu).
func (p *Plic) claim() uint32 {
	best := uint32(0)
	bestPrio := p.threshold
	for src := uint32(1); src < plicSources; src++ {
		if p.pending&(1<<src) == 0 || p.enable&(1<<src) == 0 {
			continue
		}
		if p.priority[src] > bestPrio {
			bestPrio = p.priority[src]
			best = src
		}
	}
	if best != 0 {
		p.pending &^= 1 << best
		p.claimed |= 1 << best
	}
	return best
}

// complete clears the in-service bit for a completed source (caller
// holds p.mu).
func (p *Plic) complete(src uint32) {
	if src < plicSources {
		p.claimed &^= 1 << src
	}
}

// SetPending raises (level) or clears (!level) a source's pending bit,
// called by a device (e.g. HTIF) that wants to interrupt the hart.
func (p *Plic) SetPending(src uint32, level bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if src == 0 || src >= plicSources {
		return
	}
	if level {
		p.pending |= 1 << src
	} else {
		p.pending &^= 1 << src
	}
}

// Pending reports whether any enabled source above threshold is
// waiting to be claimed, for emu/core's external-interrupt poll.
func (p *Plic) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for src := uint32(1); src < plicSources; src++ {
		if p.pending&(1<<src) != 0 && p.enable&(1<<src) != 0 && p.priority[src] > p.threshold {
			return true
		}
	}
	return false
}
