/*
vm64 - Per-core state and fixed wire constants

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

// Package cpu is the per-core execution engine: register file, flag
// register, the 256-slot opcode dispatch table, the 40 base instruction
// semantics, and the steady-state fetch/translate/dispatch loop. It is
// the single package that understands both "Core" and "dispatch
// function", matching the teacher's internal/cpu layout where cpudefs.go,
// cpu_standard.go and cpu_system.go share one package rather than
// splitting the state from its opcodes across an import boundary.
package cpu

import (
	"sync"
	"sync/atomic"

	"github.com/virtuacore/vm64/internal/addressing"
	"github.com/virtuacore/vm64/internal/ext"
	"github.com/virtuacore/vm64/internal/irqqueue"
	"github.com/virtuacore/vm64/internal/memory"
)

// Condition register bit assignments (fixed wire contract, §3).
const (
	FlagEqual    uint64 = 1 << 0
	FlagAbove    uint64 = 1 << 1 // unsigned
	FlagBelow    uint64 = 1 << 2 // unsigned
	FlagZero     uint64 = 1 << 3
	FlagSignal   uint64 = 1 << 4
	FlagOverflow uint64 = 1 << 5
	FlagIE       uint64 = 1 << 6 // interrupt enable
	FlagPE       uint64 = 1 << 7 // paging enable
	FlagUser     uint64 = 1 << 8 // 0 kernel, 1 user
	FlagSHigher  uint64 = 1 << 9 // signed higher
	FlagSLower   uint64 = 1 << 10
)

// PageSize is the 16 KiB page granularity implied by the 14-bit offset
// field (§3 invariants: any transition across this boundary flushes the
// IP translation cache entry).
const PageSize = 1 << 14

// Opcode slot assignments. Slots 1..40 are preloaded with these base
// functions; slot 0 (NOP) and slots 34/35 (initext/destext) are handled
// by the core loop itself before the dispatch table is consulted, per
// §4.3. Slot 41 is left empty.
const (
	OpNop uint8 = 0 // handled directly by the core loop

	OpAdd uint8 = 1
	OpSub uint8 = 2
	OpAnd uint8 = 3
	OpOr  uint8 = 4
	OpXor uint8 = 5

	OpInc  uint8 = 6
	OpDec  uint8 = 7
	OpNot  uint8 = 8
	OpCut  uint8 = 9
	OpICut uint8 = 10
	OpIExp uint8 = 11

	OpCmp uint8 = 12

	OpJc uint8 = 13
	OpCc uint8 = 14

	OpR uint8 = 15

	OpIr uint8 = 16

	OpSysc uint8 = 17
	OpSysr uint8 = 18

	OpLoop uint8 = 19

	OpChl uint8 = 20
	OpChr uint8 = 21
	OpRol uint8 = 22
	OpRor uint8 = 23

	OpLdi uint8 = 24

	OpLdm uint8 = 25
	OpStm uint8 = 26

	OpEi uint8 = 27
	OpDi uint8 = 28
	OpEp uint8 = 29
	OpDp uint8 = 30

	OpMv uint8 = 31

	OpLivt uint8 = 32
	OpLkpt uint8 = 33

	OpInitExt uint8 = 34 // handled directly by the core loop
	OpDestExt uint8 = 35 // handled directly by the core loop

	OpLupt uint8 = 36
	OpLsrg uint8 = 37
	OpSsrg uint8 = 38

	OpIn  uint8 = 39
	OpOut uint8 = 40
)

// ExtensionSpaceStart is the lowest dispatch slot an extension module may
// declare as its space_start (§6.5).
const ExtensionSpaceStart = 42

// Special-register bank order for lsrg/ssrg (§4.4).
const (
	SRegUsb = iota
	SRegUst
	SRegKsb
	SRegKst
	SRegKpt
	SRegUpt
	SRegIvt
	SRegScp
	sRegCount
)

// DispatchFunc is one opcode's semantics. pc is the physical offset of
// the instruction's opcode byte. The return value is the byte length to
// advance ip by; a return of 0 means the function already set ip itself
// (jumps, returns, and faulted translations).
type DispatchFunc func(pc uint64, c *Core) uint64

// slotKind tags a dispatch table entry (design note 9: tagged variants
// Empty/BaseOp/Extension).
type slotKind int

const (
	slotEmpty slotKind = iota
	slotBase
	slotExtension
)

type slot struct {
	kind     slotKind
	fn       DispatchFunc
	moduleID int
}

// DispatchTable is the 256-entry opcode table. Base slots are installed
// once at construction; extension slots are the only entries mutated at
// runtime, and only by the core executing initext/destext.
type DispatchTable struct {
	slots [256]slot
}

// NewDispatchTable builds the table with the 38 base opcodes installed
// (everything in 1..40 except initext/destext, which the core loop
// special-cases ahead of the table, as it does NOP in slot 0).
func NewDispatchTable() *DispatchTable {
	t := &DispatchTable{}
	base := map[uint8]DispatchFunc{
		OpAdd: opAdd, OpSub: opSub, OpAnd: opAnd, OpOr: opOr, OpXor: opXor,
		OpInc: opInc, OpDec: opDec, OpNot: opNot, OpCut: opCut, OpICut: opICut, OpIExp: opIExp,
		OpCmp:  opCmp,
		OpJc:   opJc, OpCc: opCc,
		OpR:    opR,
		OpIr:   opIr,
		OpSysc: opSysc, OpSysr: opSysr,
		OpLoop: opLoop,
		OpChl:  opChl, OpChr: opChr, OpRol: opRol, OpRor: opRor,
		OpLdi:  opLdi,
		OpLdm:  opLdm, OpStm: opStm,
		OpEi: opEi, OpDi: opDi, OpEp: opEp, OpDp: opDp,
		OpMv:   opMv,
		OpLivt: opLivt, OpLkpt: opLkpt, OpLupt: opLupt,
		OpLsrg: opLsrg, OpSsrg: opSsrg,
		OpIn: opIn, OpOut: opOut,
	}
	for op, fn := range base {
		t.slots[op] = slot{kind: slotBase, fn: fn}
	}
	return t
}

// Get returns the function installed at a slot, or nil if empty.
func (t *DispatchTable) Get(op uint8) DispatchFunc {
	s := t.slots[op]
	if s.kind == slotEmpty {
		return nil
	}
	return s.fn
}

// InstallExtension installs fn at op on behalf of moduleID. Only called
// by the core executing initext.
func (t *DispatchTable) InstallExtension(op uint8, moduleID int, fn DispatchFunc) {
	t.slots[op] = slot{kind: slotExtension, fn: fn, moduleID: moduleID}
}

// ClearExtension zeroes op if it is currently occupied by moduleID.
func (t *DispatchTable) ClearExtension(op uint8, moduleID int) {
	s := t.slots[op]
	if s.kind == slotExtension && s.moduleID == moduleID {
		t.slots[op] = slot{}
	}
}

// DebugState is the per-core debugger bookkeeping from §3/§4.8.
type DebugState struct {
	mu          sync.Mutex
	Breakpoints []uint64
	Trap        int
	Continuing  bool
	Debugging   bool
	ContFlg     bool
	TrapFlg     bool
}

const maxBreakpoints = 64

// Core is one hardware thread's architectural state plus the plumbing
// (queue, address cache, dispatch table reference, start gate) needed to
// run its own fetch/execute loop concurrently with every other core.
type Core struct {
	ID uint64

	mem   *memory.Memory
	table *DispatchTable

	// Extension resolution: directory to search and the VM's registered
	// id->name contract, seeded at boot through RegisterExtensionNames.
	extDir    string
	extMu     sync.Mutex
	extNames  map[int]string
	extActive *ext.Module

	X   [16]uint64
	Flg uint64
	IP  uint64

	Usb, Ust, Ksb, Kst uint64
	Kpt, Upt           uint64
	Ivt                uint64
	Scp                uint64

	Incr uint64 // length in bytes of the instruction just retired

	irq             *irqqueue.Queue
	addrCache       *addressing.Cache
	ipbuff          uint64
	ipbuffNeedFlush bool
	amNeedFlush     bool

	Debug        DebugState
	debugEnabled bool

	io IOPorts

	// fatal is invoked when extension verification fails (§7); defaults
	// to a panic if the orchestrator never installs one via SetFatal.
	fatal func(reason string)

	start atomic.Bool
	done  chan struct{}
	wg    sync.WaitGroup

	logf func(format string, args ...any)
}

// New constructs a core in its post-boot-image state: all registers
// zero, flg zero (kernel mode, paging and interrupts disabled), ip zero.
// The caller (orchestrator) sets the start gate and IVT/page tables as
// appropriate before starting the core's loop.
func New(id uint64, mem *memory.Memory, table *DispatchTable, extDir string) *Core {
	return &Core{
		ID:        id,
		mem:       mem,
		table:     table,
		extDir:    extDir,
		extNames:  make(map[int]string),
		irq:       irqqueue.New(),
		addrCache: addressing.NewCache(),
		ipbuffNeedFlush: true,
		done:      make(chan struct{}),
		logf:      func(string, ...any) {},
	}
}

// SetLogf installs a printf-style sink for structured trace lines (the
// core loop never logs guest faults themselves, per §7, but may emit
// category-gated operational trace through this hook).
func (c *Core) SetLogf(f func(format string, args ...any)) {
	if f != nil {
		c.logf = f
	}
}

// Memory returns the shared guest memory view.
func (c *Core) Memory() *memory.Memory { return c.mem }

// Running reports whether the core's start flag is set.
func (c *Core) Running() bool { return c.start.Load() }

// SetStart flips the core's start flag. Setting it false causes the
// core's loop (and its clock) to exit on the next poll, per §5.
func (c *Core) SetStart(v bool) { c.start.Store(v) }

// QueueLen reports the current interrupt queue depth, used by the
// distributor to pick the shortest queue among running cores.
func (c *Core) QueueLen() int { return c.irq.Len() }

// Enqueue pushes an interrupt ID onto this core's queue, retrying with a
// short sleep if the ring is momentarily full (spec §4.6/§5). It returns
// false only if the core has been stopped while retrying.
func (c *Core) Enqueue(id uint8) bool {
	for {
		if c.irq.Push(id) {
			return true
		}
		if !c.Running() {
			return false
		}
		sleepShort()
	}
}

// Debugging reports whether the debugger has this core paused.
func (c *Core) Debugging() bool {
	c.Debug.mu.Lock()
	defer c.Debug.mu.Unlock()
	return c.Debug.Debugging
}

func flagSet(flg uint64, bit uint64, on bool) uint64 {
	if on {
		return flg | bit
	}
	return flg &^ bit
}
