/*
vm64 - Per-core fetch/translate/dispatch loop

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

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/virtuacore/vm64/internal/addressing"
	"github.com/virtuacore/vm64/internal/ext"
	"github.com/virtuacore/vm64/internal/intid"
)

// pollInterval is the short-sleep primitive design note 9 calls for in
// place of a host usleep: every blocking point in §5 polls at this
// granularity rather than parking on a condition variable.
const pollInterval = 200 * time.Microsecond

func sleepShort() {
	time.Sleep(pollInterval)
}

// SetDebugEnabled turns the per-core debugger gate (§4.8) on or off,
// mirroring the -d command-line flag.
func (c *Core) SetDebugEnabled(on bool) { c.debugEnabled = on }

// Run is the core's steady-state goroutine body: idle-wait on the start
// gate, then repeatedly Step until told to shut down.
func (c *Core) Run() {
	c.wg.Add(1)
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		default:
		}
		if !c.start.Load() {
			sleepShort()
			continue
		}
		c.Step()
	}
}

// Stop requests the core's goroutine to exit and waits up to a second
// for it to do so, matching the teacher's Core.Stop/Timer.Shutdown
// bounded-wait pattern.
func (c *Core) Stop() {
	close(c.done)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("core did not stop within 1s", "core", c.ID)
	}
}

// Step runs exactly one iteration of the core's steady state (§4.5).
func (c *Core) Step() {
	ready := c.maintainIPBuffer()

	if c.debugEnabled {
		c.debugGate()
	}

	if ready {
		c.decodeAndDispatch()
	}

	// A fault enqueued above (by decode/dispatch) may already be
	// pending; pick it up in the same cycle it was raised so a faulting
	// instruction is serviced by the very next step, not the one after.
	triggered, id := c.irq.PopInto()
	if c.Flg&FlagIE != 0 && triggered {
		c.enterHandler(id)
	}
}

func (c *Core) decodeAndDispatch() {
	opcode := c.readByte(c.ipbuff)
	switch opcode {
	case OpNop:
		for {
			if triggered, _ := c.irq.PopInto(); triggered {
				break
			}
			if !c.Running() {
				return
			}
			sleepShort()
		}
		c.advance(1)
	case OpInitExt:
		id := c.readByte(c.ipbuff + 1)
		c.doInitExt(int(id))
		c.advance(2)
	case OpDestExt:
		c.doDestExt()
		c.advance(1)
	default:
		fn := c.table.Get(opcode)
		if fn == nil {
			c.Enqueue(intid.UnrecognizedInstruction)
			return
		}
		n := fn(c.ipbuff, c)
		c.Incr = n
		if n != 0 {
			c.advance(n)
		}
	}
}

// advance moves ip and ipbuff forward by n bytes and marks the IP
// translation stale if that step crossed a 16 KiB page boundary.
func (c *Core) advance(n uint64) {
	old := c.IP
	c.IP += n
	c.ipbuff += n
	if old&^uint64(PageSize-1) != c.IP&^uint64(PageSize-1) {
		c.ipbuffNeedFlush = true
	}
}

// maintainIPBuffer refreshes ipbuff from ip when needed, consulting the
// address cache first. It reports whether ipbuff is valid for this
// cycle's decode step; a translation fault enqueues the interrupt and
// returns false, leaving decode to the next cycle's retry/skip.
func (c *Core) maintainIPBuffer() bool {
	if c.amNeedFlush {
		c.addrCache.Flush()
		c.amNeedFlush = false
	}
	if !c.ipbuffNeedFlush {
		return true
	}

	if p, ok := c.addrCache.Lookup(c.IP); ok {
		c.ipbuff = p
		c.ipbuffNeedFlush = false
		return true
	}

	p, fault, ok := addressing.Translate(c.mem, c.Kpt, c.Upt, c.Flg, c.IP, addressing.ModeTranslate)
	if !ok {
		c.Enqueue(fault)
		return false
	}
	c.addrCache.Insert(c.IP, p)
	c.ipbuff = p
	c.ipbuffNeedFlush = false
	return true
}

// enterHandler performs the interrupt-entry sequence from §4.5 step 5:
// save ip/flg, clear ie and the user bit, jump through the IVT.
func (c *Core) enterHandler(id uint8) {
	c.X[0] = c.IP
	c.X[1] = c.Flg
	c.Flg &^= FlagIE
	c.Flg &^= FlagUser
	target, _ := c.mem.ReadQuad(c.Ivt + uint64(id)*8)
	c.IP = target
	c.requestIPFlush()
	c.irq.ClearTriggered()
}

// --- Debugger gate (§4.8), evaluated once per iteration when enabled.

func (c *Core) debugGate() {
	d := &c.Debug

	d.mu.Lock()
	hitBreak := false
	for _, bp := range d.Breakpoints {
		if bp == c.IP {
			hitBreak = true
			break
		}
	}
	if hitBreak {
		d.Continuing = false
		d.ContFlg = false
		d.TrapFlg = false
		d.Debugging = true
	}
	d.mu.Unlock()

	if hitBreak {
		c.waitForDebugger()
		d.mu.Lock()
		d.Debugging = false
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	trapFlg, trap := d.TrapFlg, d.Trap
	d.mu.Unlock()
	if trapFlg {
		if trap > 0 {
			d.mu.Lock()
			d.Trap--
			d.mu.Unlock()
			return
		}
		d.mu.Lock()
		d.Debugging = true
		d.mu.Unlock()
		c.waitForDebugger()
		d.mu.Lock()
		d.Debugging = false
		d.TrapFlg = false
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	contFlg, continuing := d.ContFlg, d.Continuing
	d.mu.Unlock()
	if contFlg {
		if continuing {
			return
		}
		d.mu.Lock()
		d.Debugging = true
		d.mu.Unlock()
		c.waitForDebugger()
		d.mu.Lock()
		d.Debugging = false
		d.ContFlg = false
		d.mu.Unlock()
	}
}

func (c *Core) waitForDebugger() {
	for {
		d := &c.Debug
		d.mu.Lock()
		ready := d.Continuing || d.Trap > 0
		d.mu.Unlock()
		if ready {
			return
		}
		if !c.Running() {
			return
		}
		sleepShort()
	}
}

// --- Extension load/unload (§6.5), handled by the core loop ahead of
// the dispatch table rather than as dispatch slots themselves.

// RegisterExtensionNames seeds the id->name contract an initext call is
// checked against. The orchestrator populates this once at boot by
// scanning the extension directory's filenames (see ext.ScanNames):
// the fixed filename template already encodes both fields, so no
// separate configuration language is needed for this out-of-scope
// loader glue.
func (c *Core) RegisterExtensionNames(names map[int]string) {
	for id, name := range names {
		c.extNames[id] = name
	}
}

// SetFatal installs the hook invoked when extension verification fails,
// a host-fatal condition per §7 ("Corruption of the dispatch table from
// a failed extension load is fatal"). Defaults to a panic if never set.
func (c *Core) SetFatal(f func(reason string)) {
	if f != nil {
		c.fatal = f
	}
}

func (c *Core) fatalf(format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	if c.fatal != nil {
		c.fatal(reason)
		return
	}
	panic(reason)
}

func (c *Core) doInitExt(id int) {
	c.extMu.Lock()
	defer c.extMu.Unlock()

	name, known := c.extNames[id]
	if !known {
		c.fatalf("initext: no registered extension name for id %d", id)
		return
	}

	mod, err := ext.Load(c.extDir, id, name)
	if err != nil {
		c.fatalf("initext id %d (%s): %v", id, name, err)
		return
	}
	if mod.ID != id || mod.Name != name {
		c.fatalf("initext id %d: module reports id=%d name=%q, want id=%d name=%q",
			id, mod.ID, mod.Name, id, name)
		return
	}
	if mod.SpaceStart < ExtensionSpaceStart {
		c.fatalf("initext id %d: space_start %d below reserved base %d", id, mod.SpaceStart, ExtensionSpaceStart)
		return
	}

	fns, ok := mod.Instructions.(*[]DispatchFunc)
	if !ok || len(*fns) != mod.InstCount {
		c.fatalf("initext id %d: Instructions symbol shape mismatch", id)
		return
	}

	if c.extActive != nil {
		c.doDestExtLocked()
	}
	for i, fn := range *fns {
		c.table.InstallExtension(uint8(mod.SpaceStart+i), mod.ID, fn)
	}
	c.extActive = mod
}

func (c *Core) doDestExt() {
	c.extMu.Lock()
	defer c.extMu.Unlock()
	c.doDestExtLocked()
}

func (c *Core) doDestExtLocked() {
	if c.extActive == nil {
		return
	}
	mod := c.extActive
	for i := 0; i < mod.InstCount; i++ {
		c.table.ClearExtension(uint8(mod.SpaceStart+i), mod.ID)
	}
	c.extActive = nil
}
