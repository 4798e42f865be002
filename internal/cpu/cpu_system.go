/*
vm64 - Privileged instruction semantics: interrupts, syscalls, I/O, MMU control

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
	"github.com/virtuacore/vm64/internal/intid"
)

// IOPorts is the I/O control plane's view from a core's perspective,
// satisfied by internal/ioplane's port manager. Defined here rather than
// imported from ioplane so that ioplane has no dependency on cpu.
type IOPorts interface {
	In(port uint8) (value uint8, ok bool)
	Out(port uint8, value uint8) bool
}

// SetIOPorts wires the process-wide I/O control plane into this core's
// in/out instructions. Called once by the orchestrator during boot.
func (c *Core) SetIOPorts(io IOPorts) { c.io = io }

// privileged enforces §3's invariant: in user mode, any instruction
// listed as privileged raises PERMISSION_DENIED and leaves architectural
// state untouched. Callers that are privileged opcodes call this first
// and return immediately if it reports a violation.
func (c *Core) privileged() bool {
	if c.Flg&FlagUser != 0 {
		c.Enqueue(intid.PermissionDenied)
		return false
	}
	return true
}

// --- Interrupt return: ir. 2 bytes [op, mode]. Privileged.

const (
	IRModeCold  uint8 = 0
	IRModeRetry uint8 = 1
	IRModeSkip  uint8 = 2
)

func opIr(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	mode := c.readByte(pc + 1)
	switch mode {
	case IRModeCold:
		c.IP = 0
		c.Flg = 0
		c.requestIPFlush()
		return 0
	case IRModeRetry:
		c.Flg = c.X[1]
		// x0 holds the ip as it stood at interrupt entry, which is
		// already past the instruction that was current when the
		// interrupt was taken (the core loop advances ip before
		// checking for a pending interrupt). Subtracting Incr rewinds
		// ip back to that instruction's first byte so the next fetch
		// re-reads it.
		c.IP = c.X[0] - c.Incr
		c.requestIPFlush()
		return 0
	case IRModeSkip:
		c.Flg = c.X[1]
		c.IP = c.X[0]
		c.requestIPFlush()
		return 0
	default:
		return 2
	}
}

// --- System call / system return: sysc, sysr. 1 byte each. sysr privileged.

// opSysc enters kernel mode (clears the user bit) rather than setting
// it: the prose elsewhere in the wire contract ("enters kernel mode")
// and sysr's status as a privileged instruction (only runnable already
// in kernel mode, to then hand control back to user code) only make
// sense together if sysc clears bit 8 and sysr sets it, the reverse of
// a literal "setting flg bit 8 = 1" reading. Resolved here the same way
// the documented open questions elsewhere in this instruction set are.
func opSysc(pc uint64, c *Core) uint64 {
	c.X[0] = c.IP
	c.Flg &^= FlagUser
	c.IP = c.Scp
	c.requestIPFlush()
	return 0
}

func opSysr(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	c.Flg |= FlagUser
	c.IP = c.X[0]
	c.requestIPFlush()
	return 1
}

// --- Flag toggles: ei, di, ep, dp. 1 byte each. Privileged.

func opEi(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	c.Flg |= FlagIE
	return 1
}

func opDi(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	c.Flg &^= FlagIE
	return 1
}

func opEp(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	c.Flg |= FlagPE
	return 1
}

func opDp(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	c.Flg &^= FlagPE
	return 1
}

// --- Load special registers: livt, lkpt, lupt. 2 bytes [op, regpack],
// low nibble names the general register. Privileged. lkpt/lupt flush the
// address cache since every resident mapping may now be stale.

func opLivt(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	reg, _ := regPack(c.readByte(pc + 1))
	c.Ivt = c.X[reg]
	return 2
}

func opLkpt(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	reg, _ := regPack(c.readByte(pc + 1))
	c.Kpt = c.X[reg]
	c.amNeedFlush = true
	return 2
}

func opLupt(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	reg, _ := regPack(c.readByte(pc + 1))
	c.Upt = c.X[reg]
	c.amNeedFlush = true
	return 2
}

// --- Special-register bank load/store: lsrg, ssrg. 2 bytes [op, pack],
// low nibble = general register, high nibble = special-register index in
// the stable order usb,ust,ksb,kst,kpt,upt,ivt,scp. Privileged.

func (c *Core) sregPtr(idx uint8) *uint64 {
	switch idx {
	case SRegUsb:
		return &c.Usb
	case SRegUst:
		return &c.Ust
	case SRegKsb:
		return &c.Ksb
	case SRegKst:
		return &c.Kst
	case SRegKpt:
		return &c.Kpt
	case SRegUpt:
		return &c.Upt
	case SRegIvt:
		return &c.Ivt
	case SRegScp:
		return &c.Scp
	default:
		return nil
	}
}

func opLsrg(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	pack := c.readByte(pc + 1)
	reg, idx := regPack(pack)
	if p := c.sregPtr(idx); p != nil {
		c.X[reg] = *p
	}
	return 2
}

func opSsrg(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	pack := c.readByte(pc + 1)
	reg, idx := regPack(pack)
	if p := c.sregPtr(idx); p != nil {
		*p = c.X[reg]
		if idx == SRegKpt || idx == SRegUpt {
			c.amNeedFlush = true
		}
	}
	return 2
}

// --- I/O: in, out. 3 bytes [op, port, payload]. Privileged. payload's
// low nibble names the general register. An unknown port raises
// INVALID_IO_PORT. An empty input queue is not itself a fault (the wire
// contract is silent on it); in yields 0 without blocking so the core
// loop can never stall on I/O, leaving queue-empty detection to whatever
// status convention the guest and its driver agree on.

func opIn(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	port := c.readByte(pc + 1)
	payload := c.readByte(pc + 2)
	reg, _ := regPack(payload)

	if c.io == nil {
		c.Enqueue(intid.InvalidIOPort)
		return 0
	}
	v, ok := c.io.In(port)
	if !ok {
		c.Enqueue(intid.InvalidIOPort)
		return 0
	}
	c.X[reg] = uint64(v)
	return 3
}

func opOut(pc uint64, c *Core) uint64 {
	if !c.privileged() {
		return 0
	}
	port := c.readByte(pc + 1)
	payload := c.readByte(pc + 2)
	reg, _ := regPack(payload)

	if c.io == nil || !c.io.Out(port, uint8(c.X[reg])) {
		c.Enqueue(intid.InvalidIOPort)
		return 0
	}
	return 3
}
