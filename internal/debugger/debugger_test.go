package debugger

import (
	"testing"

	"github.com/virtuacore/vm64/internal/cpu"
	"github.com/virtuacore/vm64/internal/logging"
	"github.com/virtuacore/vm64/internal/memory"
)

func newTestDebugger(t *testing.T, n int) *Debugger {
	t.Helper()
	mem := memory.New(1 << 16)
	table := cpu.NewDispatchTable()
	cores := make([]*cpu.Core, n)
	for i := range cores {
		cores[i] = cpu.New(uint64(i), mem, table, t.TempDir())
	}
	var mask logging.Category
	return New(cores, &mask)
}

func TestCoreSelectAndReg(t *testing.T) {
	d := newTestDebugger(t, 2)
	if _, err := d.Process("core 1"); err != nil {
		t.Fatalf("core select failed: %v", err)
	}
	if d.selected != 1 {
		t.Fatalf("selected = %d, want 1", d.selected)
	}
	if _, err := d.Process("reg ip"); err != nil {
		t.Fatalf("reg ip failed: %v", err)
	}
}

func TestBreakpointAddRemove(t *testing.T) {
	d := newTestDebugger(t, 1)
	if _, err := d.Process("core 0"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Process("bp 4096"); err != nil {
		t.Fatalf("bp failed: %v", err)
	}
	bps := d.Cores[0].Breakpoints()
	if len(bps) != 1 || bps[0] != 4096 {
		t.Fatalf("breakpoints = %v, want [4096]", bps)
	}
	if _, err := d.Process("rbp 4096"); err != nil {
		t.Fatalf("rbp failed: %v", err)
	}
	if len(d.Cores[0].Breakpoints()) != 0 {
		t.Fatalf("expected breakpoint removed")
	}
}

func TestNoCoreSelectedRejectsTargetedCommands(t *testing.T) {
	d := newTestDebugger(t, 1)
	if _, err := d.Process("bp 100"); err == nil {
		t.Fatalf("expected error with no core selected")
	}
}

func TestDebugCommandTogglesMask(t *testing.T) {
	d := newTestDebugger(t, 1)
	if _, err := d.Process("debug core on"); err != nil {
		t.Fatalf("debug on failed: %v", err)
	}
	if *d.mask&logging.CatCore == 0 {
		t.Fatalf("expected CatCore bit set")
	}
	if _, err := d.Process("debug core off"); err != nil {
		t.Fatalf("debug off failed: %v", err)
	}
	if *d.mask&logging.CatCore != 0 {
		t.Fatalf("expected CatCore bit cleared")
	}
}

func TestQuitCommandReturnsTrue(t *testing.T) {
	d := newTestDebugger(t, 1)
	quit, err := d.Process("quit")
	if err != nil || !quit {
		t.Fatalf("quit = %v, %v; want true, nil", quit, err)
	}
}

func TestUnknownCommandErrors(t *testing.T) {
	d := newTestDebugger(t, 1)
	if _, err := d.Process("frobnicate"); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
