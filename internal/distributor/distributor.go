/*
vm64 - Global interrupt distributor

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

// Package distributor implements the process-wide interrupt distributor
// (§4.7): a single queue of (int_id, mode) entries, drained by its own
// thread, that routes single-target entries to the running core with the
// shortest local queue and broadcasts the rest to every running core.
package distributor

import (
	"log/slog"
	"sync"
	"time"
)

// Mode selects single-target or broadcast delivery.
type Mode int

const (
	ModeSingle Mode = iota
	ModeBroadcast
)

type entry struct {
	intID uint8
	mode  Mode
}

// Core is the subset of *cpu.Core the distributor needs.
type Core interface {
	Enqueue(id uint8) bool
	Running() bool
	QueueLen() int
}

const queueCapacity = 4096

// Distributor owns the process-wide entry queue and the set of cores it
// routes to.
type Distributor struct {
	cores []Core

	mu      sync.Mutex
	entries []entry

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a distributor over the given cores in stable index
// order; index order is also the tie-break order for single-target
// delivery.
func New(cores []Core) *Distributor {
	return &Distributor{cores: cores, done: make(chan struct{})}
}

// Post enqueues a new entry for delivery, blocking with a short sleep if
// the distributor's own queue is momentarily full.
func (d *Distributor) Post(id uint8, mode Mode) {
	for {
		d.mu.Lock()
		if len(d.entries) < queueCapacity {
			d.entries = append(d.entries, entry{intID: id, mode: mode})
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
		time.Sleep(200 * time.Microsecond)
	}
}

// Start runs the distributor's drain loop in its own goroutine.
func (d *Distributor) Start() {
	d.wg.Add(1)
	go d.run()
}

func (d *Distributor) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		default:
		}

		e, ok := d.pop()
		if !ok {
			time.Sleep(200 * time.Microsecond)
			continue
		}
		switch e.mode {
		case ModeBroadcast:
			for _, c := range d.cores {
				if c.Running() {
					c.Enqueue(e.intID)
				}
			}
		default:
			d.deliverSingle(e.intID)
		}
	}
}

func (d *Distributor) pop() (entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.entries) == 0 {
		return entry{}, false
	}
	e := d.entries[0]
	d.entries = d.entries[1:]
	return e, true
}

// deliverSingle scans cores in index order and enqueues onto the first
// running core whose queue is strictly shorter than every running core
// seen before it, i.e. the leftmost of the running cores with minimal
// queue depth. Grounded in the original implementation's tie-breaking
// rule: a deterministic left-to-right scan, not an arbitrary min search.
func (d *Distributor) deliverSingle(id uint8) {
	best := -1
	bestLen := 0
	for i, c := range d.cores {
		if !c.Running() {
			continue
		}
		l := c.QueueLen()
		if best == -1 || l < bestLen {
			best = i
			bestLen = l
		}
	}
	if best == -1 {
		return
	}
	d.cores[best].Enqueue(id)
}

// Stop requests the distributor's drain loop to exit and waits up to a second.
func (d *Distributor) Stop() {
	close(d.done)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("distributor did not stop within 1s")
	}
}
