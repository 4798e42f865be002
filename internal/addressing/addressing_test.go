package addressing

import (
	"testing"

	"github.com/virtuacore/vm64/internal/intid"
	"github.com/virtuacore/vm64/internal/memory"
)

func TestTranslatePagingDisabled(t *testing.T) {
	mem := memory.New(0x10000)

	p, _, ok := Translate(mem, 0, 0, 0, 0x1234, ModeTranslate)
	if !ok || p != 0x1234 {
		t.Fatalf("got p=%#x ok=%v, want 0x1234/true", p, ok)
	}

	_, fault, ok := Translate(mem, 0, 0, 0, 0x20000, ModeTranslate)
	if ok || fault != intid.InvalidAddress {
		t.Fatalf("got fault=%v ok=%v, want INVALID_ADDRESS", fault, ok)
	}
}

func TestTranslatePagingDisabledUserProbeDenied(t *testing.T) {
	mem := memory.New(0x10000)
	flg := uint64(1 << 8) // user mode, paging disabled

	_, fault, ok := Translate(mem, 0, 0, flg, 0x100, ModeProbe)
	if ok || fault != intid.PermissionDenied {
		t.Fatalf("got fault=%v ok=%v, want PERMISSION_DENIED", fault, ok)
	}
}

// writePTE writes an 8-byte little-endian page-table entry at off.
func writePTE(t *testing.T, mem *memory.Memory, off, addr uint64, present, big bool) {
	t.Helper()
	var v uint64
	if present {
		v |= ptePresent
	}
	if big {
		v |= pteBig
	}
	v |= addr &^ entryFlags
	if !mem.WriteQuad(off, v) {
		t.Fatalf("write PTE at %#x failed", off)
	}
}

func TestTranslateBigPageWalk(t *testing.T) {
	mem := memory.New(1 << 20)
	const kpt = 0
	writePTE(t, mem, kpt, 0x40000, true, true) // L4 selector 0 -> big page at 0x40000

	flg := uint64(1 << 7) // paging enabled, kernel mode
	p, _, ok := Translate(mem, kpt, 0, flg, 0x1234, ModeTranslate)
	if !ok {
		t.Fatalf("translation failed")
	}
	if want := uint64(0x40000 + 0x1234); p != want {
		t.Fatalf("got p=%#x, want %#x", p, want)
	}
}

func TestTranslateFourLevelWalk(t *testing.T) {
	mem := memory.New(1 << 20)
	// Table and page addresses are 16 KiB aligned: the low 14 bits of a
	// PTE are flags and are masked off the address.
	const kpt = 0x1000
	const l3tab = 0x4000
	const l2tab = 0x8000
	const l1tab = 0xc000
	const page = 0x10000

	writePTE(t, mem, kpt, l3tab, true, false)
	writePTE(t, mem, l3tab, l2tab, true, false)
	writePTE(t, mem, l2tab, l1tab, true, false)
	writePTE(t, mem, l1tab, page, true, false)

	flg := uint64(1 << 7)
	p, _, ok := Translate(mem, kpt, 0, flg, 0x77, ModeTranslate)
	if !ok || p != page+0x77 {
		t.Fatalf("got p=%#x ok=%v, want %#x/true", p, ok, page+0x77)
	}
}

func TestTranslateProbeAbsentRaisesInvalidAddress(t *testing.T) {
	mem := memory.New(1 << 20)
	const kpt = 0x1000
	writePTE(t, mem, kpt, 0x2000, false, false) // not present

	flg := uint64(1 << 7)
	_, fault, ok := Translate(mem, kpt, 0, flg, 0x10, ModeProbe)
	if ok || fault != intid.InvalidAddress {
		t.Fatalf("got fault=%v ok=%v, want INVALID_ADDRESS", fault, ok)
	}
}

func TestTranslateOutOfBoundsPhysical(t *testing.T) {
	mem := memory.New(0x1000)
	const kpt = 0
	writePTE(t, mem, kpt, 0x5000, true, true) // big page addr beyond mem_size

	flg := uint64(1 << 7)
	_, fault, ok := Translate(mem, kpt, 0, flg, 0, ModeTranslate)
	if ok || fault != intid.InvalidAddress {
		t.Fatalf("got fault=%v ok=%v, want INVALID_ADDRESS", fault, ok)
	}
}

func TestCachePromotesOnHitAndRespectsCapacity(t *testing.T) {
	c := NewCache()
	for i := uint64(0); i < cacheCapacity; i++ {
		c.Insert(i, i*0x1000)
	}
	if c.Len() != cacheCapacity {
		t.Fatalf("got len=%d, want %d", c.Len(), cacheCapacity)
	}

	if _, ok := c.Lookup(0); !ok {
		t.Fatalf("expected hit on entry 0")
	}

	c.Insert(cacheCapacity, cacheCapacity*0x1000)
	if c.Len() > cacheCapacity {
		t.Fatalf("cache exceeded capacity: %d", c.Len())
	}

	// Entry 0 was promoted to MRU before the bulk eviction, so it must
	// have survived even though it was originally the oldest.
	if _, ok := c.Lookup(0); !ok {
		t.Fatalf("expected promoted entry 0 to survive eviction")
	}
}

func TestCacheFlushClearsAll(t *testing.T) {
	c := NewCache()
	c.Insert(1, 0x1000)
	c.Insert(2, 0x2000)
	c.Flush()
	if c.Len() != 0 {
		t.Fatalf("got len=%d after flush, want 0", c.Len())
	}
}
