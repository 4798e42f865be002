/*
vm64 - Four-level address translation and per-core TLB

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

// Package addressing implements the VM's 4-level demand-paged address
// translation and the small per-core software TLB ("address cache") that
// sits in front of it. It is deliberately stateless with respect to core
// registers: callers pass the page-table roots and flag bits it needs
// rather than a core handle, so this package has no dependency on the
// core/cpu package and can be unit tested in isolation.
//
// Virtual address bit layout (bit 63 down to bit 0):
//
//	[63]      user-space flag (stripped before the walk, selects upt vs kpt)
//	[54:44]   L4 selector (11 bits)
//	[43:34]   L3 selector (10 bits)
//	[33:24]   L2 selector (10 bits)
//	[23:14]   L1 selector (10 bits)
//	[13:0]    page offset (14 bits -> 16 KiB pages)
//
// Page-table entries are 8-byte little-endian words: the low 14 bits are
// flags (bit 0 present, bit 1 big-page), the remaining upper bits, masked
// of flags, are a physical byte offset.
package addressing

import (
	"sync"

	"github.com/virtuacore/vm64/internal/intid"
	"github.com/virtuacore/vm64/internal/memory"
)

// Mode selects between a normal translation (used for instruction fetch)
// and a probe (used for explicit operand addresses raised by ldm, stm and
// mv). Per the wire contract, only probe mode raises
// PERMISSION_DENIED for disabled paging in user mode and INVALID_ADDRESS
// for an absent page-table entry; translate mode skips those two checks
// (the walk is trusted to already point at resident pages) but still
// enforces the mem_size bound unconditionally.
type Mode int

const (
	ModeTranslate Mode = iota
	ModeProbe
)

const (
	offsetBits = 14
	l1Bits     = 10
	l2Bits     = 10
	l3Bits     = 10
	l4Bits     = 11

	l1Shift = offsetBits
	l2Shift = l1Shift + l1Bits
	l3Shift = l2Shift + l2Bits
	l4Shift = l3Shift + l3Bits

	// UserFlagBit is bit 63 of a virtual address: set when the address was
	// formed in user space and should be walked against upt, not kpt.
	UserFlagBit = 63

	offsetMask  uint64 = (1 << offsetBits) - 1
	l1SelMask   uint64 = (1 << l1Bits) - 1
	l2SelMask   uint64 = (1 << l2Bits) - 1
	l3SelMask   uint64 = (1 << l3Bits) - 1
	l4SelMask   uint64 = (1 << l4Bits) - 1
	entryFlags  uint64 = offsetMask // low 14 bits of a PTE are flags
	entryAddr          = ^entryFlags
	bigL4Offset uint64 = (1 << l4Shift) - 1
	bigL3Offset uint64 = (1 << l3Shift) - 1
	bigL2Offset uint64 = (1 << l2Shift) - 1

	ptePresent uint64 = 1 << 0
	pteBig     uint64 = 1 << 1
)

const (
	flagPagingEnable uint64 = 1 << 7
	flagUser         uint64 = 1 << 8
)

// Fault carries a failed translation's interrupt ID. The zero value is
// never a valid Fault; callers check the ok return instead.
type Fault = uint8

// Translate walks the 4-level page table rooted at kpt (kernel mode) or
// upt (user mode, selected by bit 63 of v) and returns the physical
// offset. On failure it returns the interrupt ID that the caller must
// enqueue on the faulting core; ok is false in that case and p is 0.
//
// flg is the core's full condition register; only the paging-enable and
// user-mode bits are consulted here.
func Translate(mem *memory.Memory, kpt, upt, flg, v uint64, mode Mode) (p uint64, fault Fault, ok bool) {
	userMode := flg&flagUser != 0

	if flg&flagPagingEnable == 0 {
		if mode == ModeProbe && userMode {
			return 0, intid.PermissionDenied, false
		}
		if v >= mem.Size() {
			return 0, intid.InvalidAddress, false
		}
		return v, 0, true
	}

	fromUserSpace := v&(1<<UserFlagBit) != 0
	v &^= 1 << UserFlagBit
	if userMode && mode == ModeProbe && !fromUserSpace {
		return 0, intid.PermissionDenied, false
	}

	root := kpt
	if fromUserSpace {
		root = upt
	}

	sel4 := (v >> l4Shift) & l4SelMask
	entry, rok := mem.ReadQuad(root + sel4*8)
	if !rok {
		return 0, intid.InvalidAddress, false
	}
	if entry&pteBig != 0 {
		if mode == ModeProbe && entry&ptePresent == 0 {
			return 0, intid.InvalidAddress, false
		}
		p = (entry & entryAddr) + (v & bigL4Offset)
		return boundsCheck(mem, p)
	}

	sel3 := (v >> l3Shift) & l3SelMask
	entry, rok = mem.ReadQuad((entry&entryAddr)+sel3*8)
	if !rok {
		return 0, intid.InvalidAddress, false
	}
	if entry&pteBig != 0 {
		if mode == ModeProbe && entry&ptePresent == 0 {
			return 0, intid.InvalidAddress, false
		}
		p = (entry & entryAddr) + (v & bigL3Offset)
		return boundsCheck(mem, p)
	}

	sel2 := (v >> l2Shift) & l2SelMask
	entry, rok = mem.ReadQuad((entry&entryAddr)+sel2*8)
	if !rok {
		return 0, intid.InvalidAddress, false
	}
	if entry&pteBig != 0 {
		if mode == ModeProbe && entry&ptePresent == 0 {
			return 0, intid.InvalidAddress, false
		}
		p = (entry & entryAddr) + (v & bigL2Offset)
		return boundsCheck(mem, p)
	}

	sel1 := (v >> l1Shift) & l1SelMask
	entry, rok = mem.ReadQuad((entry&entryAddr)+sel1*8)
	if !rok {
		return 0, intid.InvalidAddress, false
	}
	if mode == ModeProbe && entry&ptePresent == 0 {
		return 0, intid.InvalidAddress, false
	}
	p = (entry & entryAddr) | (v & offsetMask)
	return boundsCheck(mem, p)
}

func boundsCheck(mem *memory.Memory, p uint64) (uint64, Fault, bool) {
	if p >= mem.Size() {
		return 0, intid.InvalidAddress, false
	}
	return p, 0, true
}

// cacheCapacity is the address cache's maximum size; on overflow the
// oldest evictBatch entries are dropped in bulk rather than one at a time.
const (
	cacheCapacity = 256
	evictBatch    = 64
)

type cacheEntry struct {
	virt, phys uint64
}

// Cache is a per-core bounded, insertion-ordered map of recent
// virtual->physical translations: a software TLB. A hit promotes its
// entry to the most-recently-used end; eviction on overflow drops the
// oldest evictBatch entries at once rather than trimming one at a time.
type Cache struct {
	mu      sync.Mutex
	entries []cacheEntry
}

// NewCache returns an empty address cache.
func NewCache() *Cache {
	return &Cache{entries: make([]cacheEntry, 0, cacheCapacity)}
}

// Lookup returns the cached physical offset for virt, promoting the
// entry to most-recently-used on a hit.
func (c *Cache) Lookup(virt uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.virt == virt {
			if i != len(c.entries)-1 {
				c.entries = append(c.entries[:i], c.entries[i+1:]...)
				c.entries = append(c.entries, e)
			}
			return e.phys, true
		}
	}
	return 0, false
}

// Insert records a new translation, evicting the oldest batch of entries
// first if the cache is at capacity.
func (c *Cache) Insert(virt, phys uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= cacheCapacity {
		c.entries = append(c.entries[:0], c.entries[evictBatch:]...)
	}
	c.entries = append(c.entries, cacheEntry{virt: virt, phys: phys})
}

// Flush clears the entire cache. Called whenever kpt or upt is written,
// since every resident mapping may now be stale.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = c.entries[:0]
}

// Len reports the current number of cached entries, used by tests to
// assert the capacity invariant.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
