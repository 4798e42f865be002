/*
vm64 - Debugger-facing accessors for per-core state

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

package cpu

import "errors"

// AddBreakpoint adds v to the breakpoint list (§4.8: max 64, duplicates
// rejected).
func (c *Core) AddBreakpoint(v uint64) error {
	c.Debug.mu.Lock()
	defer c.Debug.mu.Unlock()
	for _, bp := range c.Debug.Breakpoints {
		if bp == v {
			return errors.New("breakpoint already set")
		}
	}
	if len(c.Debug.Breakpoints) >= maxBreakpoints {
		return errors.New("breakpoint list full")
	}
	c.Debug.Breakpoints = append(c.Debug.Breakpoints, v)
	return nil
}

// RemoveBreakpoint removes v from the breakpoint list; a no-op if absent.
func (c *Core) RemoveBreakpoint(v uint64) {
	c.Debug.mu.Lock()
	defer c.Debug.mu.Unlock()
	for i, bp := range c.Debug.Breakpoints {
		if bp == v {
			c.Debug.Breakpoints = append(c.Debug.Breakpoints[:i], c.Debug.Breakpoints[i+1:]...)
			return
		}
	}
}

// Breakpoints returns a snapshot of the breakpoint list.
func (c *Core) Breakpoints() []uint64 {
	c.Debug.mu.Lock()
	defer c.Debug.mu.Unlock()
	out := make([]uint64, len(c.Debug.Breakpoints))
	copy(out, c.Debug.Breakpoints)
	return out
}

// SetTrap implements `stp N`: trap after N more instructions.
func (c *Core) SetTrap(n int) {
	c.Debug.mu.Lock()
	defer c.Debug.mu.Unlock()
	c.Debug.Trap = n
	c.Debug.ContFlg = false
	c.Debug.TrapFlg = true
}

// SetContinue implements `cont`: resume free-running.
func (c *Core) SetContinue() {
	c.Debug.mu.Lock()
	defer c.Debug.mu.Unlock()
	c.Debug.Continuing = true
	c.Debug.ContFlg = true
	c.Debug.TrapFlg = false
}

// DebugSnapshot is a point-in-time view of a core's debug state for the
// `core?` command.
type DebugSnapshot struct {
	Running   bool
	Debugging bool
	IP        uint64
}

func (c *Core) Snapshot() DebugSnapshot {
	return DebugSnapshot{
		Running:   c.Running(),
		Debugging: c.Debugging(),
		IP:        c.IP,
	}
}
