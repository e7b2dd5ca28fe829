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

const (
	htifToHost   = 0x00
	htifFromHost = 0x08
	htifSize     = 0x10

	htifDevConsole = 1
	htifCmdPutchar = 1
	htifCmdGetchar = 0
)

// Htif is the host-target interface mailbox (spec §6): a single
// console device multiplexed over the tohost/fromhost pair, replacing
// Dromajo's multi-device HTIF with the one channel this build's guest
// software needs. A write to tohost is decoded and acted on
// synchronously; fromhost carries the one pending input byte back.
type Htif struct {
	mu       sync.Mutex
	name     string
	base     uint64
	toHost   uint64
	fromHost uint64

	consoleOut func(byte)

	pendingInput bool
	inputByte    byte

	exitRequested bool
	exitCode      int

	irqDevice *Plic
	irqLine   uint32
}

// NewHtif constructs an HTIF device; consoleOut receives each byte
// written via the putchar command (wired to the telnet console or
// stdout by main.go).
func NewHtif(name string, base uint64, consoleOut func(byte)) *Htif {
	return &Htif{name: name, base: base, consoleOut: consoleOut}
}

// SetInterruptTarget wires the PLIC source HTIF raises when console
// input becomes available.
func (h *Htif) SetInterruptTarget(p *Plic, line uint32) {
	h.mu.Lock()
	h.irqDevice, h.irqLine = p, line
	h.mu.Unlock()
}

func (h *Htif) Name() string { return h.name }
func (h *Htif) Base() uint64 { return h.base }
func (h *Htif) Size() uint64 { return htifSize }

func (h *Htif) Load(addr uint64, width int) (uint64, bool) {
	if width != Width8 {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	switch addr {
	case htifToHost:
		return h.toHost, true
	case htifFromHost:
		return h.fromHost, true
	}
	return 0, false
}

func (h *Htif) Store(addr uint64, width int, value uint64) bool {
	if width != Width8 {
		return false
	}
	switch addr {
	case htifToHost:
		h.mu.Lock()
		h.toHost = value
		h.mu.Unlock()
		h.handleToHost(value)
		return true
	case htifFromHost:
		h.mu.Lock()
		h.fromHost = value
		h.mu.Unlock()
		return true
	}
	return false
}

func (h *Htif) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.toHost, h.fromHost = 0, 0
	h.pendingInput = false
	h.exitRequested = false
	h.exitCode = 0
}

func (h *Htif) Shutdown() {}

func (h *Htif) Debug(string) error { return nil }

// handleToHost decodes a tohost write per the Dromajo/riscv-pk
// convention (original_source/riscv_machine.c): device 0, command 0
// with bit 0 set means a syscall-style power-off/exit request,
// otherwise the top 16 bits select device and command.
func (h *Htif) handleToHost(value uint64) {
	if value>>48 == 0 && value&1 != 0 {
		h.mu.Lock()
		h.exitRequested = true
		h.exitCode = int(value >> 1)
		h.mu.Unlock()
		return
	}

	dev := value >> 56
	cmd := (value >> 48) & 0xff
	payload := value & 0xffffffffffff

	if dev == htifDevConsole && cmd == htifCmdPutchar {
		if h.consoleOut != nil {
			h.consoleOut(byte(payload))
		}
		h.mu.Lock()
		h.toHost = 0
		h.mu.Unlock()
		return
	}

	if dev == htifDevConsole && cmd == htifCmdGetchar {
		h.mu.Lock()
		if h.pendingInput {
			h.fromHost = (htifDevConsole << 56) | (htifCmdGetchar << 48) | uint64(h.inputByte)
			h.pendingInput = false
		} else {
			h.fromHost = 0
		}
		h.toHost = 0
		h.mu.Unlock()
	}
}

// PushInput delivers one console input byte to the guest, raising the
// configured PLIC line so the guest's console driver can poll fromhost.
func (h *Htif) PushInput(b byte) {
	h.mu.Lock()
	h.pendingInput = true
	h.inputByte = b
	irq, line := h.irqDevice, h.irqLine
	h.mu.Unlock()
	if irq != nil {
		irq.SetPending(line, true)
	}
}

// ExitRequested reports a power-off/exit request from the guest, for
// emu/core's driver loop to act on.
func (h *Htif) ExitRequested() (bool, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitRequested, h.exitCode
}
