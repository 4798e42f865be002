/*
vm64 - Flat guest memory

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

// Package memory implements the VM's single flat guest RAM: a contiguous
// byte array shared read/write by every core, with bounds-checked byte,
// half-word, word, and quad load/store at physical offsets.
package memory

import "encoding/binary"

// Memory is the single owner of guest RAM. The orchestrator creates one
// instance at boot and hands every core a pointer to it; it is never
// reallocated or resized for the life of the process.
type Memory struct {
	bytes []byte
}

// New allocates size bytes of guest RAM. The backing slice starts out
// zeroed, as every Go allocation does; the orchestrator still calls Zero
// before loading a boot image.
func New(size uint64) *Memory {
	return &Memory{bytes: make([]byte, size)}
}

// Size returns the configured memory size in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.bytes))
}

// InRange reports whether a span of n bytes starting at addr lies wholly
// within guest memory.
func (m *Memory) InRange(addr, n uint64) bool {
	if addr > uint64(len(m.bytes)) {
		return false
	}
	end := addr + n
	return end >= addr && end <= uint64(len(m.bytes))
}

// Zero fills the entire memory with zero bytes.
func (m *Memory) Zero() {
	clear(m.bytes)
}

// Load copies img into memory starting at offset. It fails if img does
// not fit.
func (m *Memory) Load(offset uint64, img []byte) bool {
	if !m.InRange(offset, uint64(len(img))) {
		return false
	}
	copy(m.bytes[offset:], img)
	return true
}

// ReadByte loads one byte at a physical offset.
func (m *Memory) ReadByte(addr uint64) (uint8, bool) {
	if !m.InRange(addr, 1) {
		return 0, false
	}
	return m.bytes[addr], true
}

// WriteByte stores one byte at a physical offset.
func (m *Memory) WriteByte(addr uint64, v uint8) bool {
	if !m.InRange(addr, 1) {
		return false
	}
	m.bytes[addr] = v
	return true
}

// ReadHalf loads a little-endian 2-byte half-word.
func (m *Memory) ReadHalf(addr uint64) (uint16, bool) {
	if !m.InRange(addr, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.bytes[addr:]), true
}

// WriteHalf stores a little-endian 2-byte half-word.
func (m *Memory) WriteHalf(addr uint64, v uint16) bool {
	if !m.InRange(addr, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.bytes[addr:], v)
	return true
}

// ReadWord loads a little-endian 4-byte word.
func (m *Memory) ReadWord(addr uint64) (uint32, bool) {
	if !m.InRange(addr, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.bytes[addr:]), true
}

// WriteWord stores a little-endian 4-byte word.
func (m *Memory) WriteWord(addr uint64, v uint32) bool {
	if !m.InRange(addr, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.bytes[addr:], v)
	return true
}

// ReadQuad loads a little-endian 8-byte quad word.
func (m *Memory) ReadQuad(addr uint64) (uint64, bool) {
	if !m.InRange(addr, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.bytes[addr:]), true
}

// WriteQuad stores a little-endian 8-byte quad word.
func (m *Memory) WriteQuad(addr uint64, v uint64) bool {
	if !m.InRange(addr, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.bytes[addr:], v)
	return true
}

// ReadBytes returns a read-only view of n bytes starting at addr, used by
// the debugger's mem command. The returned slice aliases guest memory.
func (m *Memory) ReadBytes(addr, n uint64) ([]byte, bool) {
	if !m.InRange(addr, n) {
		return nil, false
	}
	return m.bytes[addr : addr+n], true
}
