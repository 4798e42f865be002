/*
vm64 - I/O control plane

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

// Package ioplane implements the 64-port I/O control plane (§6.8): each
// port has a bounded input ring (host/device -> guest, drained by in) and
// output ring (guest -> host/device, filled by out). Port 1 additionally
// carries "start core" side-channel semantics: a byte written to its
// output ring in range names a core index whose start flag the plane
// thread sets.
package ioplane

import (
	"sync"
	"time"
)

// PortCount and RingSize are the fixed dimensions from §6.8.
const (
	PortCount  = 64
	RingSize   = 65536
	startPort  = 1
)

type ring struct {
	mu   sync.Mutex
	buf  [RingSize]byte
	head int
	tail int
	size int
}

func (r *ring) push(b byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == RingSize {
		return false
	}
	r.buf[r.tail] = b
	r.tail = (r.tail + 1) % RingSize
	r.size++
	return true
}

func (r *ring) pop() (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return 0, false
	}
	b := r.buf[r.head]
	r.head = (r.head + 1) % RingSize
	r.size--
	return b, true
}

type port struct {
	in  ring // host/device -> guest, drained by `in`
	out ring // guest -> host/device, filled by `out`
}

// Starter sets a core's start flag; the process orchestrator's core set
// satisfies this for port 1's side effect.
type Starter interface {
	SetStart(index int, v bool)
}

// Plane is the process-wide I/O control plane, wired into every core as
// their cpu.IOPorts implementation.
type Plane struct {
	ports   [PortCount]port
	starter Starter
	numCore int

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs the plane. numCore bounds the valid core indices
// accepted by port 1's start-core command.
func New(starter Starter, numCore int) *Plane {
	return &Plane{starter: starter, numCore: numCore, done: make(chan struct{})}
}

// In implements cpu.IOPorts: reads the next queued byte for port, or
// reports !ok if the port number is out of range. An empty ring is not
// itself a fault; it yields 0 so the core never blocks on I/O (see the
// `in` opcode's doc comment in internal/cpu).
func (p *Plane) In(portNum uint8) (uint8, bool) {
	if int(portNum) >= PortCount {
		return 0, false
	}
	b, ok := p.ports[portNum].in.pop()
	if !ok {
		return 0, true
	}
	return b, true
}

// Out implements cpu.IOPorts: appends value to port's output ring.
func (p *Plane) Out(portNum uint8, value uint8) bool {
	if int(portNum) >= PortCount {
		return false
	}
	p.ports[portNum].out.push(value)
	return true
}

// Inject feeds a byte into a port's input ring, the host side of a
// device driving `in`. Used by device simulators and tests, not by the
// guest itself.
func (p *Plane) Inject(portNum uint8, value uint8) bool {
	if int(portNum) >= PortCount {
		return false
	}
	return p.ports[portNum].in.push(value)
}

// Start runs the plane's port-1 watcher thread, which implements the
// "start core" side channel: out-of-range indices are silently
// discarded, per the original controller's behavior.
func (p *Plane) Start() {
	p.wg.Add(1)
	go p.run()
}

func (p *Plane) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		default:
		}
		b, ok := p.ports[startPort].out.pop()
		if !ok {
			time.Sleep(200 * time.Microsecond)
			continue
		}
		idx := int(b)
		if idx >= 0 && idx < p.numCore && p.starter != nil {
			p.starter.SetStart(idx, true)
		}
	}
}

// Stop requests the plane's watcher thread to exit.
func (p *Plane) Stop() {
	close(p.done)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
