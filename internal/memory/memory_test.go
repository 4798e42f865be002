package memory

import "testing"

func TestSizeAndRange(t *testing.T) {
	m := New(1024)
	if m.Size() != 1024 {
		t.Errorf("Size got: %d expected: %d", m.Size(), 1024)
	}
	if !m.InRange(1020, 4) {
		t.Errorf("InRange(1020,4) should fit exactly at the end")
	}
	if m.InRange(1021, 4) {
		t.Errorf("InRange(1021,4) should cross the end")
	}
	if m.InRange(1024, 1) {
		t.Errorf("InRange(1024,1) should be out of range")
	}
}

func TestByteRoundTrip(t *testing.T) {
	m := New(16)
	for i := uint64(0); i < 16; i++ {
		if !m.WriteByte(i, uint8(i*7+1)) {
			t.Fatalf("WriteByte(%d) failed unexpectedly", i)
		}
	}
	for i := uint64(0); i < 16; i++ {
		got, ok := m.ReadByte(i)
		if !ok {
			t.Fatalf("ReadByte(%d) failed unexpectedly", i)
		}
		if want := uint8(i*7 + 1); got != want {
			t.Errorf("ReadByte(%d) got: %#x expected: %#x", i, got, want)
		}
	}
	if _, ok := m.ReadByte(16); ok {
		t.Errorf("ReadByte at size should fail")
	}
}

func TestHalfWordWordQuadRoundTrip(t *testing.T) {
	m := New(32)
	if !m.WriteHalf(0, 0x1234) {
		t.Fatalf("WriteHalf failed")
	}
	if got, _ := m.ReadHalf(0); got != 0x1234 {
		t.Errorf("ReadHalf got: %#x expected: %#x", got, 0x1234)
	}
	if b, _ := m.ReadByte(0); b != 0x34 {
		t.Errorf("little-endian low byte got: %#x expected: %#x", b, 0x34)
	}

	if !m.WriteWord(8, 0xdeadbeef) {
		t.Fatalf("WriteWord failed")
	}
	if got, _ := m.ReadWord(8); got != 0xdeadbeef {
		t.Errorf("ReadWord got: %#x expected: %#x", got, 0xdeadbeef)
	}

	if !m.WriteQuad(16, 0x0102030405060708) {
		t.Fatalf("WriteQuad failed")
	}
	if got, _ := m.ReadQuad(16); got != 0x0102030405060708 {
		t.Errorf("ReadQuad got: %#x expected: %#x", got, 0x0102030405060708)
	}

	if m.WriteQuad(28, 0) {
		t.Errorf("WriteQuad crossing mem_size should fail")
	}
}

func TestLoadImage(t *testing.T) {
	m := New(8)
	if !m.Load(0, []byte{1, 2, 3, 4}) {
		t.Fatalf("Load failed unexpectedly")
	}
	if b, _ := m.ReadByte(3); b != 4 {
		t.Errorf("Load got: %#x expected: %#x", b, 4)
	}
	if m.Load(6, []byte{1, 2, 3}) {
		t.Errorf("Load exceeding mem_size should fail")
	}
}

func TestZero(t *testing.T) {
	m := New(4)
	m.Load(0, []byte{1, 2, 3, 4})
	m.Zero()
	for i := uint64(0); i < 4; i++ {
		if b, _ := m.ReadByte(i); b != 0 {
			t.Errorf("Zero left byte %d = %#x", i, b)
		}
	}
}
