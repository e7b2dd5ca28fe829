/*
 * rv64sim  - Translation lookaside buffer tests
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

package tlb

import "testing"

func TestTableMissThenFill(t *testing.T) {
	var tbl Table
	if _, hit := tbl.Lookup(0x1000); hit {
		t.Fatal("empty table should miss")
	}
	tbl.Fill(0x1000, 7)
	ppn, hit := tbl.Lookup(0x1000)
	if !hit || ppn != 7 {
		t.Fatalf("Lookup = (%d, %v), want (7, true)", ppn, hit)
	}
}

func TestTableLookupWithinSamePage(t *testing.T) {
	var tbl Table
	tbl.Fill(0x2000, 9)
	if ppn, hit := tbl.Lookup(0x2fff); !hit || ppn != 9 {
		t.Fatalf("same-page offset should still hit: got (%d, %v)", ppn, hit)
	}
}

func TestTableFillEvictsOnIndexCollision(t *testing.T) {
	var tbl Table
	tbl.Fill(0x1000, 1)
	// Index is (vaddr>>12)&255, so vaddr + (256 pages) collides on the
	// same direct-mapped slot and must evict the first entry.
	collide := uint64(0x1000) + uint64(Size)<<pageShift
	tbl.Fill(collide, 2)

	if _, hit := tbl.Lookup(0x1000); hit {
		t.Error("original entry should have been evicted by the colliding fill")
	}
	if ppn, hit := tbl.Lookup(collide); !hit || ppn != 2 {
		t.Fatalf("colliding fill should hit with its own ppn: got (%d, %v)", ppn, hit)
	}
}

func TestTableFlush(t *testing.T) {
	var tbl Table
	tbl.Fill(0x3000, 3)
	tbl.Flush()
	if _, hit := tbl.Lookup(0x3000); hit {
		t.Error("Flush should invalidate every entry")
	}
}

func TestSetFlushAllCoversAllThreeTables(t *testing.T) {
	var s Set
	s.Read.Fill(0x1000, 1)
	s.Write.Fill(0x1000, 1)
	s.Fetch.Fill(0x1000, 1)

	s.FlushAll()

	if _, hit := s.Read.Lookup(0x1000); hit {
		t.Error("read table survived FlushAll")
	}
	if _, hit := s.Write.Lookup(0x1000); hit {
		t.Error("write table survived FlushAll")
	}
	if _, hit := s.Fetch.Lookup(0x1000); hit {
		t.Error("fetch table survived FlushAll")
	}
}

func TestSetFlushWriteRangeOnlyTouchesWriteTable(t *testing.T) {
	var s Set
	s.Read.Fill(0x4000, 4)
	s.Write.Fill(0x4000, 4)

	s.FlushWriteRange(0x4000, 0x1000)

	if _, hit := s.Read.Lookup(0x4000); !hit {
		t.Error("FlushWriteRange must not touch the read table")
	}
	if _, hit := s.Write.Lookup(0x4000); hit {
		t.Error("FlushWriteRange must invalidate the write table")
	}
}
