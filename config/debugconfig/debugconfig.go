/*
 * rv64sim - Debug options configuration.
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

// Package debugconfig wires the "DEBUG" config model to each
// subsystem's own debug-option setter, the same way the teacher
// routes "DEBUG CPU INST" or "DEBUG CHANNEL 3 CMD" lines to the CPU
// and channel packages.
package debugconfig

import (
	"strings"

	config "github.com/rcornwell/rv64sim/config/configparser"
	"github.com/rcornwell/rv64sim/emu/cpu"
	"github.com/rcornwell/rv64sim/emu/csr"
	"github.com/rcornwell/rv64sim/emu/device"
	"github.com/rcornwell/rv64sim/emu/mmu"
	"github.com/rcornwell/rv64sim/emu/trap"
)

func init() {
	config.RegisterModel("DEBUG", config.TypeOptions, setDebug)
}

// setDebug dispatches "DEBUG <subsystem> <opt...>" lines to the
// subsystem named. Subsystems other than a bare name (CPU, MMU, CSR,
// TRAP) are looked up as MMIO device names (CLINT, PLIC, HTIF).
func setDebug(_ uint16, subsystem string, options []config.Option) error {
	apply := func(set func(string) error) error {
		for _, opt := range options {
			if err := set(strings.ToUpper(opt.Name)); err != nil {
				return err
			}
			for _, value := range opt.Value {
				if err := set(strings.ToUpper(*value)); err != nil {
					return err
				}
			}
		}
		return nil
	}

	switch strings.ToUpper(subsystem) {
	case "CPU":
		return apply(cpu.Debug)
	case "MMU":
		return apply(mmu.Debug)
	case "CSR":
		return apply(csr.Debug)
	case "TRAP":
		return apply(trap.Debug)
	default:
		dev, err := device.Lookup(strings.ToUpper(subsystem))
		if err != nil {
			return err
		}
		return apply(dev.Debug)
	}
}
