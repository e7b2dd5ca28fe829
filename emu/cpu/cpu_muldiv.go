/*
   CPU multiply/divide (M extension).

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

import "math/bits"

// mulDiv64 implements MUL/MULH/MULHU/MULHSU/DIV/DIVU/REM/REMU (spec
// §4.7): division by zero yields all-ones quotient / dividend-as-
// remainder, and INT_MIN/-1 overflow yields dividend-as-quotient /
// zero-remainder, matching the RISC-V spec's defined (non-trapping)
// behavior instead of Go's trapping integer division.
func mulDiv64(funct3 uint32, a, b uint64) uint64 {
	switch funct3 {
	case 0: // MUL
		return a * b
	case 1: // MULH (signed x signed)
		hi, _ := bits.Mul64(uint64(int64(a)), uint64(int64(b)))
		_ = hi
		return uint64(mulhSS(int64(a), int64(b)))
	case 2: // MULHSU (signed x unsigned)
		return uint64(mulhSU(int64(a), b))
	case 3: // MULHU
		hi, _ := bits.Mul64(a, b)
		return hi
	case 4: // DIV
		sa, sb := int64(a), int64(b)
		if sb == 0 {
			return ^uint64(0)
		}
		if sa == -1<<63 && sb == -1 {
			return a
		}
		return uint64(sa / sb)
	case 5: // DIVU
		if b == 0 {
			return ^uint64(0)
		}
		return a / b
	case 6: // REM
		sa, sb := int64(a), int64(b)
		if sb == 0 {
			return a
		}
		if sa == -1<<63 && sb == -1 {
			return 0
		}
		return uint64(sa % sb)
	case 7: // REMU
		if b == 0 {
			return a
		}
		return a % b
	}
	return 0
}

func mulhSS(a, b int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	_ = lo
	return int64(hi)
}

func mulhSU(a int64, b uint64) int64 {
	hi, lo := bits.Mul64(uint64(a), b)
	if a < 0 {
		hi -= b
	}
	_ = lo
	return int64(hi)
}

// mulDiv32 implements the W-suffixed forms (MULW/DIVW/DIVUW/REMW/
// REMUW): operate on the low 32 bits of each operand and sign-extend
// the 32-bit result, per spec §4.7.
func mulDiv32(funct3 uint32, a, b uint64) uint64 {
	sa, sb := int32(uint32(a)), int32(uint32(b))
	switch funct3 {
	case 0: // MULW
		return uint64(int64(sa * sb))
	case 4: // DIVW
		if sb == 0 {
			return ^uint64(0)
		}
		if sa == -1<<31 && sb == -1 {
			return uint64(int64(int32(sa)))
		}
		return uint64(int64(sa / sb))
	case 5: // DIVUW
		ua, ub := uint32(a), uint32(b)
		if ub == 0 {
			return ^uint64(0)
		}
		return uint64(int64(int32(ua / ub)))
	case 6: // REMW
		if sb == 0 {
			return uint64(int64(sa))
		}
		if sa == -1<<31 && sb == -1 {
			return 0
		}
		return uint64(int64(sa % sb))
	case 7: // REMUW
		ua, ub := uint32(a), uint32(b)
		if ub == 0 {
			return uint64(int64(int32(ua)))
		}
		return uint64(int64(int32(ua % ub)))
	}
	return 0
}
