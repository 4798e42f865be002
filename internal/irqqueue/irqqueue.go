/*
vm64 - Per-core bounded interrupt queue

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

// Package irqqueue implements the bounded ring buffer of pending interrupt
// IDs that sits on every core. Any goroutine (the core's own loop, the
// global distributor, the I/O plane, or a clock producer) may push;
// only the owning core's loop pops. A single mutex covers head, tail, and
// the backing array, matching the "spin lock" the spec calls for — Go's
// mutex already spins briefly before parking, so a hand-rolled spin lock
// would buy nothing here.
package irqqueue

import "sync"

// Capacity is the fixed ring size mandated by the wire contract.
const Capacity = 8192

// Queue is a bounded FIFO of interrupt IDs plus the "currently triggered"
// slot that the core loop dispatches from. It is safe for concurrent use
// by multiple producers and one consumer.
type Queue struct {
	mu   sync.Mutex
	ring [Capacity]uint8
	head int
	tail int
	size int

	triggered bool
	intID     uint8
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push enqueues an interrupt ID, reporting false if the ring is full (the
// caller is expected to retry after a short sleep, per the spec's
// producer-blocking rule).
func (q *Queue) Push(id uint8) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == Capacity {
		return false
	}
	q.ring[q.tail] = id
	q.tail = (q.tail + 1) % Capacity
	q.size++
	return true
}

// PopInto, called by the core loop, moves the head of the queue into the
// "triggered" slot if nothing is already triggered. It reports whether an
// interrupt is triggered after the call.
func (q *Queue) PopInto() (triggered bool, id uint8) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.triggered && q.size > 0 {
		q.triggered = true
		q.intID = q.ring[q.head]
		q.head = (q.head + 1) % Capacity
		q.size--
	}
	return q.triggered, q.intID
}

// ClearTriggered clears the triggered slot after the core loop has
// entered the handler for it.
func (q *Queue) ClearTriggered() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.triggered = false
	q.intID = 0
}

// Len reports the current queue depth, excluding any triggered entry.
// Used by the global distributor to pick the shortest queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
