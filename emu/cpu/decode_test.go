package cpu

/*
   Compressed-instruction expansion table tests: each RVC encoding
   compared field-by-field against its canonical 32-bit decode, the
   way the teacher's opcode tables get exercised.

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

import (
	"testing"

	"github.com/go-test/deep"
)

// rvcCase is one compressed encoding and the decoded struct its
// canonical 32-bit expansion must produce.
type rvcCase struct {
	name string
	raw  uint16
	want decoded
}

// expandAndDecode runs the full decodeInst path (expand then
// decode32) and strips the fields that legitimately differ between
// the compressed and canonical encodings (raw, width, compressed)
// before comparison, since those are expected to differ by design.
func expandAndDecodeFields(t *testing.T, raw uint16) decoded {
	t.Helper()
	d := decodeInst(uint32(raw), 2)
	d.raw = 0
	d.width = 0
	d.compressed = false
	return d
}

func TestCompressedExpansionTable(t *testing.T) {
	cases := []rvcCase{
		{
			// raw bit7 set, all other nzuimm/rd' bits clear: rd'=x8,
			// rs1 forced to x2, nzuimm = bit6 only = 64.
			name: "C.ADDI4SPN",
			raw:  0x0080,
			want: decoded{opcode: opOpImm, rd: 8, rs1: 2, funct3: 0, imm: 64},
		},
		{
			name: "C.ADDI",
			// quadrant 1, funct3=0, rd/rs1=x10, imm=5 (bit12 clear keeps it positive)
			raw:  0b000<<13 | 0<<12 | 10<<7 | 5<<2 | 1,
			want: decoded{opcode: opOpImm, rd: 10, rs1: 10, funct3: 0, imm: 5},
		},
		{
			name: "C.LI",
			raw:  0b010<<13 | 0<<12 | 11<<7 | 7<<2 | 1,
			want: decoded{opcode: opOpImm, rd: 11, rs1: 0, funct3: 0, imm: 7},
		},
		{
			name: "C.MV",
			// quadrant 2, funct3=4, bit12=0, rs2!=0 -> C.MV rd <- rs2
			raw:  0b100<<13 | 0<<12 | 9<<7 | 5<<2 | 2,
			want: decoded{opcode: opOp, rd: 9, rs1: 0, rs2: 5, funct3: 0, funct7: 0},
		},
		{
			name: "C.JR",
			raw:  0b100<<13 | 0<<12 | 9<<7 | 0<<2 | 2,
			want: decoded{opcode: opJALR, rd: 0, rs1: 9, funct3: 0, imm: 0},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := expandAndDecodeFields(t, tc.raw)
			if diff := deep.Equal(got, tc.want); diff != nil {
				t.Errorf("expansion mismatch for %s: %v", tc.name, diff)
			}
		})
	}
}

// TestCompressedIllegalZeroImm covers the two RVC forms that are
// reserved when their immediate is all-zero (C.ADDI4SPN, C.LUI),
// rather than silently aliasing a different instruction.
func TestCompressedIllegalZeroImm(t *testing.T) {
	// C.ADDI4SPN with nzuimm == 0 is reserved.
	_, illegal := expandCompressed(0b000<<13 | 0<<2)
	if !illegal {
		t.Error("C.ADDI4SPN with nzuimm=0 should be illegal")
	}

	// C.LUI with a zero immediate (quadrant 1, funct3=3, rd != 2, imm bits zero) is reserved.
	_, illegal = expandCompressed(0b011<<13 | 0<<12 | 9<<7 | 0<<2 | 1)
	if !illegal {
		t.Error("C.LUI with imm=0 should be illegal")
	}
}
