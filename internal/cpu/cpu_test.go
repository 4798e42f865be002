package cpu

import (
	"testing"

	"github.com/virtuacore/vm64/internal/memory"
)

func newTestCore(t *testing.T, memSize uint64) *Core {
	t.Helper()
	mem := memory.New(memSize)
	table := NewDispatchTable()
	c := New(0, mem, table, t.TempDir())
	c.SetStart(true)
	return c
}

func putBytes(c *Core, addr uint64, b ...byte) {
	for i, v := range b {
		c.mem.WriteByte(addr+uint64(i), v)
	}
}

func TestOpAddSetsZeroFlag(t *testing.T) {
	c := newTestCore(t, 1<<16)
	putBytes(c, 0, OpAdd, 0x21, 0x03) // a=x1, b=x2, dst=x3
	c.X[1] = 5
	c.X[2] = ^uint64(4) // -5
	n := opAdd(0, c)
	if n != 3 {
		t.Fatalf("advance = %d, want 3", n)
	}
	if c.X[3] != 0 {
		t.Fatalf("x3 = %d, want 0", c.X[3])
	}
	if c.Flg&FlagZero == 0 {
		t.Fatalf("FlagZero not set")
	}
}

func TestOpIncWrapSetsOverflow(t *testing.T) {
	c := newTestCore(t, 1<<16)
	putBytes(c, 0, OpInc, 0x00)
	c.X[0] = ^uint64(0)
	opInc(0, c)
	if c.X[0] != 0 {
		t.Fatalf("x0 = %d, want 0", c.X[0])
	}
	if c.Flg&FlagOverflow == 0 {
		t.Fatalf("FlagOverflow not set on wraparound")
	}
}

func TestOpDecToZeroSetsZeroFlag(t *testing.T) {
	c := newTestCore(t, 1<<16)
	putBytes(c, 0, OpDec, 0x00)
	c.X[0] = 1
	opDec(0, c)
	if c.X[0] != 0 || c.Flg&FlagZero == 0 {
		t.Fatalf("dec to zero did not set FlagZero: x0=%d flg=%x", c.X[0], c.Flg)
	}
}

func TestOpCmpComparesAAgainstB(t *testing.T) {
	c := newTestCore(t, 1<<16)
	c.X[1] = 10
	c.X[2] = 20
	putBytes(c, 0, OpCmp, 0x21)
	opCmp(0, c)
	if c.Flg&FlagBelow == 0 {
		t.Fatalf("expected x1 < x2 to set FlagBelow")
	}
	if c.Flg&FlagAbove != 0 {
		t.Fatalf("FlagAbove unexpectedly set")
	}
}

func TestOpJcTakenSetsIPAndRequestsFlush(t *testing.T) {
	c := newTestCore(t, 1<<16)
	c.ipbuffNeedFlush = false
	c.Flg = FlagZero
	// cond=12 (zero), width sel=1 (32-bit imm)
	putBytes(c, 0, OpJc, 0xc1)
	c.mem.WriteWord(2, 0x4000)
	n := opJc(0, c)
	if n != 0 {
		t.Fatalf("advance = %d, want 0 (jc sets ip itself)", n)
	}
	if c.IP != 0x4000 {
		t.Fatalf("ip = %x, want 0x4000", c.IP)
	}
	if !c.ipbuffNeedFlush {
		t.Fatalf("expected ipbuffNeedFlush after jc")
	}
}

func TestOpCcNotTakenAdvancesPastImmediate(t *testing.T) {
	c := newTestCore(t, 1<<16)
	c.Flg = 0 // condition 1 (eq) does not hold
	putBytes(c, 0, OpCc, 0x10)
	n := opCc(0, c)
	if n != 4 { // 2 + 2-byte immediate
		t.Fatalf("advance = %d, want 4", n)
	}
}

func TestOpLoopDecrementsAndBranches(t *testing.T) {
	c := newTestCore(t, 1<<16)
	c.X[1] = 2
	putBytes(c, 0, OpLoop, 0x01)
	c.mem.WriteWord(2, uint32(int32(-6)))
	n := opLoop(0, c)
	if c.X[1] != 1 {
		t.Fatalf("x1 = %d, want 1", c.X[1])
	}
	if int64(n) != -6 {
		t.Fatalf("advance = %d, want -6", int64(n))
	}
}

func TestOpLoopExitsAtZero(t *testing.T) {
	c := newTestCore(t, 1<<16)
	c.X[1] = 0
	putBytes(c, 0, OpLoop, 0x01)
	n := opLoop(0, c)
	if n != 6 {
		t.Fatalf("advance = %d, want 6 on loop exit", n)
	}
	if c.X[1] != 0 {
		t.Fatalf("x1 = %d, want 0 (untouched on zero-exit path)", c.X[1])
	}
}

func TestOpRolRorUse63BitComplement(t *testing.T) {
	c := newTestCore(t, 1<<16)
	// pack 0x12: src (lo) = x2 holds the rotate count, dst (hi) = x1 is
	// the register actually rotated in place. The complement shift is
	// (63 - bits), so rol followed by ror is not an identity.
	c.X[2] = 5 // rotate count
	c.X[1] = 0x1
	putBytes(c, 0, OpRol, 0x12)
	opRol(0, c)
	if c.X[1] != 0x20 { // (1 << 5) | (1 >> 58)
		t.Fatalf("rol = %x, want 0x20", c.X[1])
	}
	putBytes(c, 2, OpRor, 0x12)
	opRor(2, c)
	if c.X[1] != 0x8000000000000001 { // (0x20 >> 5) | (0x20 << 58)
		t.Fatalf("ror = %x, want 0x8000000000000001", c.X[1])
	}
}

func TestOpLdiWidths(t *testing.T) {
	c := newTestCore(t, 1<<16)
	putBytes(c, 0, OpLdi, 0x30) // dst=x3, width sel 0 -> 1 byte
	c.mem.WriteByte(2, 0xAB)
	n := opLdi(0, c)
	if n != 3 || c.X[3] != 0xAB {
		t.Fatalf("ldi 1-byte: n=%d x3=%x", n, c.X[3])
	}
}

func TestOpLdmStmSymmetric(t *testing.T) {
	c := newTestCore(t, 1<<16)
	c.Flg = 0 // paging disabled: ModeProbe only enforces the mem_size bound
	c.X[1] = 0x100 // address register
	c.X[2] = 0xdeadbeef
	putBytes(c, 0, OpStm, 0x21) // addrReg=x1, valReg=x2
	opStm(0, c)
	v, _ := c.mem.ReadQuad(0x100)
	if v != 0xdeadbeef {
		t.Fatalf("stm did not write expected value, got %x", v)
	}

	putBytes(c, 8, OpLdm, 0x31) // addrReg=x1, valReg=x3
	opLdm(8, c)
	if c.X[3] != 0xdeadbeef {
		t.Fatalf("ldm = %x, want 0xdeadbeef", c.X[3])
	}
}

func TestPrivilegedOpcodeRejectedInUserMode(t *testing.T) {
	c := newTestCore(t, 1<<16)
	c.Flg = FlagUser
	putBytes(c, 0, OpEi)
	n := opEi(0, c)
	if n != 0 {
		t.Fatalf("advance = %d, want 0 on privilege violation", n)
	}
	if c.QueueLen() != 1 {
		t.Fatalf("expected PERMISSION_DENIED enqueued, queue len = %d", c.QueueLen())
	}
}

func TestOpSyscEntersKernelMode(t *testing.T) {
	c := newTestCore(t, 1<<16)
	c.Flg = FlagUser
	c.Scp = 0x8000
	c.IP = 0x200
	opSysc(0, c)
	if c.Flg&FlagUser != 0 {
		t.Fatalf("sysc did not clear the user bit")
	}
	if c.IP != 0x8000 {
		t.Fatalf("sysc did not jump to scp")
	}
	if c.X[0] != 0x200 {
		t.Fatalf("sysc did not save return ip in x0")
	}
}

func TestOpSysrReturnsToUserMode(t *testing.T) {
	c := newTestCore(t, 1<<16)
	c.Flg = 0 // kernel mode
	c.X[0] = 0x200
	opSysr(0, c)
	if c.Flg&FlagUser == 0 {
		t.Fatalf("sysr did not set the user bit")
	}
	if c.IP != 0x200 {
		t.Fatalf("sysr did not restore ip from x0")
	}
}

func TestStepUnrecognizedOpcodeEntersHandler(t *testing.T) {
	c := newTestCore(t, 1<<20)
	c.Ivt = 0x1000
	c.Flg = FlagIE
	c.mem.WriteQuad(c.Ivt+4*8, 0x2000)
	putBytes(c, 0, 0xff)

	c.Step()

	if c.IP != 0x2000 {
		t.Fatalf("ip = %x, want 0x2000 after unrecognized-opcode fault", c.IP)
	}
	if c.X[0] != 0 {
		t.Fatalf("x0 = %x, want 0 (the faulting ip)", c.X[0])
	}
	if c.Flg&FlagIE != 0 {
		t.Fatalf("ie not cleared on interrupt entry")
	}
	if c.Flg&FlagUser != 0 {
		t.Fatalf("user bit not cleared on interrupt entry")
	}
}

func TestStepConditionalJumpTaken(t *testing.T) {
	c := newTestCore(t, 1<<20)
	c.Flg = FlagZero
	putBytes(c, 0, OpJc, 0xc1)
	c.mem.WriteWord(2, 0x5000)

	c.Step()

	if c.IP != 0x5000 {
		t.Fatalf("ip = %x, want 0x5000", c.IP)
	}
}

func TestIrRetryRewindsToFaultingInstruction(t *testing.T) {
	c := newTestCore(t, 1<<20)
	c.Incr = 3
	c.X[0] = 0x100 // ip as saved at interrupt entry, already past the fault
	c.X[1] = FlagIE
	putBytes(c, 0, OpIr, IRModeRetry)
	opIr(0, c)
	if c.IP != 0x100-3 {
		t.Fatalf("ip = %x, want %x", c.IP, 0x100-3)
	}
	if c.Flg != FlagIE {
		t.Fatalf("flg not restored from x1")
	}
}

func TestExtensionSlotEmptyBeforeInit(t *testing.T) {
	c := newTestCore(t, 1<<16)
	if c.table.Get(ExtensionSpaceStart) != nil {
		t.Fatalf("expected extension space to start empty")
	}
}
