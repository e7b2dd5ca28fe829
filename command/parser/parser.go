/*
 * rv64sim - Command parser.
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

// Package parser implements the line-oriented monitor command set:
// register/memory/breakpoint inspection of a running or stopped hart.
// The scanner shape (cmdLine position cursor, skipSpace/getWord token
// reading) is the teacher's own command-line scanning idiom, retargeted
// from S/370 device-attach syntax to RISC-V register/address syntax.
package parser

import (
	"errors"
	"strings"
	"unicode"

	"github.com/rcornwell/rv64sim/emu/core"
)

type cmd struct {
	name    string
	min     int
	process func(*cmdLine, *core.Core) (bool, error)
}

type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmd{
	{name: "quit", min: 1, process: quit},
	{name: "exit", min: 2, process: quit},
	{name: "stop", min: 2, process: stop},
	{name: "continue", min: 1, process: cont},
	{name: "step", min: 2, process: step},
	{name: "reset", min: 3, process: reset},
	{name: "show", min: 2, process: show},
	{name: "examine", min: 1, process: examine},
	{name: "deposit", min: 1, process: deposit},
	{name: "disassemble", min: 2, process: disassembleCmd},
	{name: "break", min: 3, process: setBreak},
	{name: "unbreak", min: 1, process: clearBreak},
	{name: "help", min: 1, process: help},
}

// ProcessCommand scans and executes one command line. The returned
// bool reports whether the session should end (the quit command).
func ProcessCommand(commandLine string, c *core.Core) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	match := matchList(name)
	if len(match) == 0 {
		return false, errors.New("command not found: " + name)
	}
	if len(match) > 1 {
		return false, errors.New("ambiguous command: " + name)
	}
	return match[0].process(&line, c)
}

// CompleteCmd completes a partially typed command name for the line
// editor; there is no device/option sub-completion in this monitor,
// only the command table itself.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()
	if !line.isEOL() {
		return nil
	}
	match := matchList(name)
	matches := make([]string, len(match))
	for i, m := range match {
		matches[i] = m.name
	}
	return matches
}

func matchCommand(m cmd, name string) bool {
	if len(name) > len(m.name) || name != m.name[:len(name)] {
		return false
	}
	return len(name) >= m.min
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, name) {
			match = append(match, m)
		}
	}
	return match
}

func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line) || line.line[line.pos] == '#'
}

// getWord reads a run of non-space characters, lower-cased, used for command names
// and the "regs"/"csr"/"devices"/"breaks" show-targets.
func (line *cmdLine) getWord() string {
	line.skipSpace()
	if line.isEOL() {
		return ""
	}
	start := line.pos
	for !line.isEOL() && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	return strings.ToLower(line.line[start:line.pos])
}

// getToken reads a run of non-space characters verbatim (case
// preserved), used for hex addresses and values.
func (line *cmdLine) getToken() string {
	line.skipSpace()
	if line.isEOL() {
		return ""
	}
	start := line.pos
	for !line.isEOL() && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	return line.line[start:line.pos]
}
