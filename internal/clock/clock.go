/*
vm64 - Per-core periodic clock producer

Copyright (c) 2026, VM64 Project Contributors

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
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL
THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER
DEALINGS IN THE SOFTWARE.
*/

// Package clock runs one periodic tick producer per core (§4.7): unless
// suppressed by -t, each core gets its own thread enqueuing CLOCK at a
// fixed 2000µs cadence, paced by measured delta rather than a bare
// time.Ticker so a busy host doesn't pile up backlogged ticks.
package clock

import (
	"log/slog"
	"sync"
	"time"

	"github.com/virtuacore/vm64/internal/intid"
)

// Period is the clock's nominal tick interval.
const Period = 2000 * time.Microsecond

// Core is the subset of *cpu.Core the clock producer needs, expressed as
// an interface here so this package never imports cpu.
type Core interface {
	Enqueue(id uint8) bool
	Running() bool
	Debugging() bool
}

// Producer is one core's clock thread.
type Producer struct {
	core Core
	done chan struct{}
	wg   sync.WaitGroup
}

// Start spawns the clock goroutine for core and returns a handle to stop it.
func Start(core Core) *Producer {
	p := &Producer{core: core, done: make(chan struct{})}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Producer) run() {
	defer p.wg.Done()
	last := time.Now()
	for {
		select {
		case <-p.done:
			return
		default:
		}
		if !p.core.Running() {
			return
		}
		if p.core.Debugging() {
			// Paused by the debugger: wait on the flag rather than
			// accumulating a backlog of ticks.
			time.Sleep(time.Millisecond)
			last = time.Now()
			continue
		}

		now := time.Now()
		delta := now.Sub(last)
		sleep := Period - delta
		if sleep > 0 {
			time.Sleep(sleep)
		}
		last = time.Now()

		if !p.core.Enqueue(intid.Clock) {
			return
		}
	}
}

// Stop requests the clock thread to exit and waits up to a second.
func (p *Producer) Stop() {
	close(p.done)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("clock producer did not stop within 1s")
	}
}
