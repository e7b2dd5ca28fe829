/*
   rv64sim Real-time tick source for the CLINT's mtime counter.

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

// Package timer drives the CLINT's mtime counter from the wall clock,
// the same enable/disable/shutdown shape the teacher's clock timer
// uses for its 5ms channel pulse, with the master-channel send
// replaced by a direct tick callback since there is no packet bus in
// this build.
package timer

import (
	"log/slog"
	"sync"
	"time"
)

// interval is the real-time period between mtime ticks. Arbitrary
// (spec §6 leaves mtime's real-time rate unspecified beyond "advances
// monotonically"); kept at the teacher's own 6.66ms period since
// nothing downstream depends on a particular frequency.
const interval = 6666666 * time.Nanosecond

// Timer periodically invokes tick(1) while running, advancing the
// CLINT's mtime by one unit per period.
type Timer struct {
	wg      sync.WaitGroup
	running bool
	tick    func(delta uint64)
	enable  chan bool
	done    chan struct{}
	ticker  *time.Ticker
}

// NewTimer starts the background goroutine, stopped until Start is
// called.
func NewTimer(tick func(delta uint64)) *Timer {
	t := &Timer{
		tick:   tick,
		enable: make(chan bool, 1),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Start enables the tick callback.
func (t *Timer) Start() {
	t.enable <- true
}

// Stop disables the tick callback without tearing down the goroutine.
func (t *Timer) Stop() {
	t.enable <- false
}

// Shutdown stops the goroutine entirely.
func (t *Timer) Shutdown() {
	close(t.done)
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for timer to finish.")
	}
}

func (t *Timer) run() {
	defer t.wg.Done()
	t.ticker = time.NewTicker(interval)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.ticker.C:
			if t.running && t.tick != nil {
				t.tick(1)
			}
		case t.running = <-t.enable:
		case <-t.done:
			return
		}
	}
}
