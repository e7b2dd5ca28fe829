/*
   rv64sim Real-time tick source test.

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

package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimer(t *testing.T) {
	var counter int64
	timer := NewTimer(func(delta uint64) {
		atomic.AddInt64(&counter, int64(delta))
	})

	// Start timer and wait about a second; ~150 ticks expected at the
	// 6.66ms period.
	timer.Start()
	time.Sleep(time.Second)
	if v := atomic.LoadInt64(&counter); v < 140 || v > 160 {
		t.Errorf("expected ~150 ticks during a second, got: %d", v)
	}

	// Stop timer and make sure no further ticks arrive.
	timer.Stop()
	atomic.StoreInt64(&counter, 0)
	time.Sleep(200 * time.Millisecond)
	if v := atomic.LoadInt64(&counter); v != 0 {
		t.Errorf("expected 0 ticks while stopped, got: %d", v)
	}

	// Restart and verify ticks resume.
	timer.Start()
	time.Sleep(300 * time.Millisecond)
	if v := atomic.LoadInt64(&counter); v == 0 {
		t.Errorf("expected ticks to resume after Start, got: %d", v)
	}

	timer.Shutdown()
}
