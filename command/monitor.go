/*
 * rv64sim - Interactive console/monitor terminal wiring.
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

// Package command hosts the one piece of the monitor that main.go
// needs directly rather than through command/reader or command/parser:
// RunConsole, which shares a single local terminal between the guest's
// HTIF console and the line-oriented monitor. The terminal spends most
// of its time in raw mode as a transparent HTIF passthrough; typing the
// escape byte (Ctrl-]) drops it into a cooked-mode monitor line for one
// command, then returns to passthrough. This is only reachable when
// stdin is an actual terminal; the telnet console (telnet/telnet.go)
// and the plain liner session (command/reader) cover the non-terminal
// and remote cases.
package command

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/rcornwell/rv64sim/command/parser"
	"github.com/rcornwell/rv64sim/emu/core"
	"github.com/rcornwell/rv64sim/emu/device"
)

// escapeByte is the conventional VM-console escape character: Ctrl-].
const escapeByte = 0x1d

// RunConsole runs until stdin closes or the monitor's quit command is
// entered at an escape prompt. htif may be nil if the machine has no
// HTIF device configured, in which case this degenerates to a plain
// monitor loop.
func RunConsole(c *core.Core, htif *device.Htif) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return runCookedLoop(c)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	defer term.Restore(fd, oldState)

	in := bufio.NewReader(os.Stdin)
	for {
		b, err := in.ReadByte()
		if err != nil {
			return nil
		}
		if b != escapeByte {
			if htif != nil {
				htif.PushInput(b)
			}
			continue
		}

		term.Restore(fd, oldState)
		fmt.Print("\r\nmonitor> ")
		cmdLine, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		quit, err := parser.ProcessCommand(cmdLine, c)
		if err != nil {
			fmt.Println("Error: " + err.Error())
		}
		if quit {
			return nil
		}

		if _, err := term.MakeRaw(fd); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
	}
}

// runCookedLoop is the non-terminal fallback: a plain read-eval loop
// with no HTIF passthrough, used when stdin is a pipe or file.
func runCookedLoop(c *core.Core) error {
	in := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("monitor> ")
		cmdLine, err := in.ReadString('\n')
		if err != nil {
			return nil
		}
		quit, err := parser.ProcessCommand(cmdLine, c)
		if err != nil {
			fmt.Println("Error: " + err.Error())
		}
		if quit {
			return nil
		}
	}
}
