/*
   rv64sim hart driver: the goroutine that actually runs the guest.

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

// Package core hosts the single cooperative driver goroutine that
// repeatedly calls emu/cpu.Run in bounded slices, polling the CLINT
// and PLIC after every slice to feed pending interrupt lines back into
// the hart — the same "one goroutine drives the engine, a channel
// carries control messages" shape the teacher's own core.go used for
// its S/370 CPU, with the master.Packet bus replaced by plain method
// calls and a direct poll: the only things CLINT/PLIC ever schedule
// are a timer comparator and a pending-bit check, both O(1), so there
// is no separate event-queue package to carry forward.
package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/rv64sim/emu/cpu"
	"github.com/rcornwell/rv64sim/emu/device"
	"github.com/rcornwell/rv64sim/emu/timer"
	"github.com/rcornwell/rv64sim/emu/trap"
)

// quantum is how many instructions Run executes per scheduling slice
// before the driver loop re-polls CLINT/PLIC and checks for a stop
// request.
const quantum = 10000

// idleSleep is how long the driver loop waits between slices that
// retire nothing (hart parked in WFI, no pending interrupt), so a
// halted guest doesn't spin a host CPU core at 100%.
const idleSleep = 200 * time.Microsecond

// Core drives one hart against the machine's CLINT, PLIC, and HTIF.
type Core struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	stopped chan struct{}

	clint *device.Clint
	plic  *device.Plic
	htif  *device.Htif

	clock *timer.Timer

	// exited/exitCode record a guest power-off request from HTIF, for
	// main.go to notice and shut the process down.
	exited   bool
	exitCode int
}

// NewCore wires a driver around the machine's interrupt-capable
// devices. clint and plic may be nil if the configuration omitted
// them, in which case their interrupt lines are simply never raised.
func NewCore(clint *device.Clint, plic *device.Plic, htif *device.Htif) *Core {
	c := &Core{clint: clint, plic: plic, htif: htif}
	if clint != nil {
		c.clock = timer.NewTimer(clint.Tick)
		c.clock.Start()
	}
	return c
}

// Reset restores the hart to its power-on state at romEntry. Must not
// be called while the driver is running.
func (c *Core) Reset(romEntry uint64) {
	cpu.Reset(romEntry)
}

// Start launches the driver goroutine if it isn't already running.
func (c *Core) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.run(c.stopCh, c.stopped)
}

// Stop halts the driver goroutine and waits for it to exit. Safe to
// call whether or not the driver is running.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	stopCh, stopped := c.stopCh, c.stopped
	c.running = false
	c.mu.Unlock()

	close(stopCh)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for hart to stop.")
	}
}

// Shutdown stops the driver and tears down the real-time clock.
func (c *Core) Shutdown() {
	c.Stop()
	if c.clock != nil {
		c.clock.Shutdown()
	}
}

// IsRunning reports whether the driver goroutine is active, for the
// monitor's "show running" command.
func (c *Core) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Step runs up to n instructions synchronously and returns the number
// retired. The caller must ensure the driver isn't already running
// (IsRunning() == false); this is the monitor's single-step command.
func (c *Core) Step(n int) int {
	c.pollInterrupts()
	return cpu.Run(n)
}

// ExitStatus reports whether the guest requested a power-off via HTIF,
// and the exit code it asked for.
func (c *Core) ExitStatus() (exited bool, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited, c.exitCode
}

// pollInterrupts feeds CLINT/PLIC pending state into the hart's mip
// register. This is the bridge the teacher's master.Packet channel
// played for channel-end interrupts: here it's a direct poll rather
// than a message, since there is exactly one hart and no cross-device
// fan-in to arbitrate.
func (c *Core) pollInterrupts() {
	if c.clint != nil {
		cpu.SetInterruptLine(trap.IntMTI, c.clint.TimerPending())
		cpu.SetInterruptLine(trap.IntMSI, c.clint.SoftwarePending())
	}
	if c.plic != nil {
		cpu.SetInterruptLine(trap.IntMEI, c.plic.Pending())
	}
}

func (c *Core) run(stopCh, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		c.pollInterrupts()
		retired := cpu.Run(quantum)

		if c.htif != nil {
			if exited, code := c.htif.ExitRequested(); exited {
				c.mu.Lock()
				c.exited, c.exitCode = true, code
				c.mu.Unlock()
				slog.Info("guest requested power-off", "code", code)
				return
			}
		}

		if retired == 0 {
			select {
			case <-stopCh:
				return
			case <-time.After(idleSleep):
			}
		}
	}
}
