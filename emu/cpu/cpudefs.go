/*
   CPU definitions for rv64sim

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

import (
	"errors"

	"github.com/rcornwell/rv64sim/emu/csr"
	"github.com/rcornwell/rv64sim/emu/tlb"
)

// decoded is the per-instruction scratch struct the dispatch table's
// handlers read, grounded on the teacher's stepInfo — one struct
// filled once by decode, read by whichever opXxx handler runs.
type decoded struct {
	raw        uint32
	opcode     uint32
	rd         uint8
	rs1        uint8
	rs2        uint8
	rs3        uint8
	funct3     uint32
	funct7     uint32
	imm        int64
	compressed bool
	width      uint8 // 2 or 4, instruction length in bytes
}

// regWrite records provenance for a register write, per spec §4.7:
// "every write records the destination index, the retired-instruction
// timestamp, and the prior value" (to support external co-simulation).
type regWrite struct {
	index    uint8
	seq      uint64
	priorVal uint64
}

// stepFault is the compact result a handler returns: nil on success,
// or the cause/tval to raise. This is the Go analogue of the
// teacher's uint16 ircXxx return convention threaded through
// execute()/fetch()/transAddr().
type stepFault struct {
	cause uint64
	tval  uint64
}

// hart is the machine's single execution context. One package-level
// instance (sysHart) plays the role the teacher's sysCPU singleton
// plays: there is exactly one hart per machine (spec §5).
type hart struct {
	X  [32]uint64 // integer registers, x0 hard-wired zero
	F  [32]uint64 // floating registers, NaN-boxed per spec §4.7
	PC uint64

	csr  csr.File
	tlbs tlb.Set

	lastWrite regWrite
	seq       uint64 // retired-instruction timestamp

	reservationValid bool
	reservationAddr  uint64

	nextPC     uint64 // set by a control-transfer handler via setNextPC
	pcAssigned bool

	halted bool // WFI power-down flag

	misalignedEnabled bool // spec §4.4: misaligned access emulation on/off

	table [128]func(h *hart, d *decoded) *stepFault

	terminate bool
}

var sysHart hart

// CfKind classifies a taken jump or JALR per spec §4.7's
// rd/rs1 = {1,5} link-register heuristic.
type CfKind int

const (
	CfNone CfKind = iota
	CfDirectCall
	CfDirectReturn
	CfIndirectCall
	CfIndirectReturn
	CfPlainJump
)

// lastControlFlow holds the last executed instruction's control-flow
// classification: reset to CfNone before each instruction, set by
// JAL/JALR.
var lastControlFlow CfKind

// LastControlFlow exposes the most recent step's branch classification
// to callers outside the package, to be read after a step.
func LastControlFlow() CfKind { return lastControlFlow }

const (
	// Debug options.
	debugInst = 1 << iota
	debugData
	debugDetail
)

var debugOption = map[string]int{
	"INST":   debugInst,
	"DATA":   debugData,
	"DETAIL": debugDetail,
}

var debugMsk int

// Debug enables a CPU-subsystem debug option (INST/DATA/DETAIL), the
// same trio the teacher's CPU package dispatches through config's
// DEBUG model.
func Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("cpu debug option invalid: " + opt)
	}
	debugMsk |= flag
	return nil
}
