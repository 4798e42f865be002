/*
vm64 - Base instruction semantics: arithmetic, compare, branch, data move

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

import "github.com/virtuacore/vm64/internal/addressing"

// regPack splits a nibble-packed register byte: low nibble first ("A" /
// source), high nibble second ("B" / destination or second source),
// matching §4.4's "source in the low nibble unless otherwise specified".
func regPack(b uint8) (lo, hi uint8) {
	return b & 0x0f, (b >> 4) & 0x0f
}

func (c *Core) readByte(addr uint64) uint8 {
	v, _ := c.mem.ReadByte(addr)
	return v
}

// --- Register-register arithmetic: add, sub, and, or, xor. 3 bytes
// [op, pack, tgt]. pack low nibble = source A, high nibble = source B;
// tgt low nibble = destination.

func arith3(pc uint64, c *Core, f func(a, b uint64) uint64) uint64 {
	pack := c.readByte(pc + 1)
	tgt := c.readByte(pc + 2)
	a, b := regPack(pack)
	dst, _ := regPack(tgt)
	result := f(c.X[a], c.X[b])
	c.X[dst] = result
	c.Flg = flagSet(c.Flg, FlagZero, result == 0)
	return 3
}

func opAdd(pc uint64, c *Core) uint64 { return arith3(pc, c, func(a, b uint64) uint64 { return a + b }) }
func opSub(pc uint64, c *Core) uint64 { return arith3(pc, c, func(a, b uint64) uint64 { return a - b }) }
func opAnd(pc uint64, c *Core) uint64 { return arith3(pc, c, func(a, b uint64) uint64 { return a & b }) }
func opOr(pc uint64, c *Core) uint64  { return arith3(pc, c, func(a, b uint64) uint64 { return a | b }) }
func opXor(pc uint64, c *Core) uint64 { return arith3(pc, c, func(a, b uint64) uint64 { return a ^ b }) }

// --- Unary: inc, dec, not, cut, icut, iexp. 2 bytes [op, regpack].

func opInc(pc uint64, c *Core) uint64 {
	reg, _ := regPack(c.readByte(pc + 1))
	result := c.X[reg] + 1
	c.X[reg] = result
	c.Flg = flagSet(c.Flg, FlagOverflow, result == 0) // wrapped to zero
	return 2
}

func opDec(pc uint64, c *Core) uint64 {
	reg, _ := regPack(c.readByte(pc + 1))
	result := c.X[reg] - 1
	c.X[reg] = result
	c.Flg = flagSet(c.Flg, FlagZero, result == 0)
	return 2
}

// opNot reads source in the low nibble and destination in the high
// nibble of its single register-pack byte (resolved open question #3:
// the instruction is complete at 2 bytes, with no second operand byte).
func opNot(pc uint64, c *Core) uint64 {
	src, dst := regPack(c.readByte(pc + 1))
	c.X[dst] = ^c.X[src]
	return 2
}

func widthMask(w uint8) uint64 {
	switch w {
	case 1:
		return 0xff
	case 2:
		return 0xffff
	case 4:
		return 0xffffffff
	default: // width 8 is a no-op
		return ^uint64(0)
	}
}

func opCut(pc uint64, c *Core) uint64 {
	reg, w := regPack(c.readByte(pc + 1))
	c.X[reg] &= widthMask(w)
	return 2
}

// signExtend sign-extends the low w bytes of v to a full 64-bit value.
func signExtend(v uint64, w uint8) uint64 {
	switch w {
	case 1:
		return uint64(int64(int8(v)))
	case 2:
		return uint64(int64(int16(v)))
	case 4:
		return uint64(int64(int32(v)))
	default:
		return v
	}
}

func opICut(pc uint64, c *Core) uint64 {
	reg, w := regPack(c.readByte(pc + 1))
	c.X[reg] = signExtend(c.X[reg], w)
	return 2
}

// opIExp performs "signed inverse-sign expansion to 64 bits": the
// complement of icut — given a value already sign-extended, iexp
// recovers the truncated low-W-byte representation by masking, so that
// icut(W) followed by iexp(W) is the identity on the low W bytes (§8).
func opIExp(pc uint64, c *Core) uint64 {
	reg, w := regPack(c.readByte(pc + 1))
	c.X[reg] &= widthMask(w)
	return 2
}

// --- Compare: 2 bytes [op, pack]. Sets the six comparison bits from the
// two registers. Resolved open question #1: compares register A against
// register B, not a register against itself.

func opCmp(pc uint64, c *Core) uint64 {
	pack := c.readByte(pc + 1)
	ra, rb := regPack(pack)
	a, b := c.X[ra], c.X[rb]
	sa, sb := int64(a), int64(b)

	flg := c.Flg
	flg = flagSet(flg, FlagEqual, a == b)
	flg = flagSet(flg, FlagAbove, a > b)
	flg = flagSet(flg, FlagBelow, a < b)
	flg = flagSet(flg, FlagZero, a == 0)
	flg = flagSet(flg, FlagSHigher, sa > sb)
	flg = flagSet(flg, FlagSLower, sa < sb)
	c.Flg = flg
	return 2
}

// --- Conditional branch: jc, cc. 2 + {2,4,8} bytes.

const (
	condAlways = iota
	condEq
	condAbove
	condBelow
	condNe
	condNotAbove
	condNotBelow
	condSHigher
	condSLower
	condNotSHigher
	condNotSLower
	condOverflow
	condZero
)

func condHolds(flg uint64, cond uint8) bool {
	switch cond {
	case condAlways:
		return true
	case condEq:
		return flg&FlagEqual != 0
	case condAbove:
		return flg&FlagAbove != 0
	case condBelow:
		return flg&FlagBelow != 0
	case condNe:
		return flg&FlagEqual == 0
	case condNotAbove:
		return flg&FlagAbove == 0
	case condNotBelow:
		return flg&FlagBelow == 0
	case condSHigher:
		return flg&FlagSHigher != 0
	case condSLower:
		return flg&FlagSLower != 0
	case condNotSHigher:
		return flg&FlagSHigher == 0
	case condNotSLower:
		return flg&FlagSLower == 0
	case condOverflow:
		return flg&FlagOverflow != 0
	case condZero:
		return flg&FlagZero != 0
	default:
		return false
	}
}

func immWidth(sel uint8) uint8 {
	switch sel & 0x0f {
	case 0:
		return 2
	case 1:
		return 4
	default:
		return 8
	}
}

func (c *Core) readImm(addr uint64, width uint8) uint64 {
	switch width {
	case 2:
		v, _ := c.mem.ReadHalf(addr)
		return uint64(v)
	case 4:
		v, _ := c.mem.ReadWord(addr)
		return uint64(v)
	default:
		v, _ := c.mem.ReadQuad(addr)
		return v
	}
}

func branch(pc uint64, c *Core, link bool) uint64 {
	b1 := c.readByte(pc + 1)
	cond := (b1 >> 4) & 0x0f
	width := immWidth(b1)
	length := uint64(2) + uint64(width)

	if !condHolds(c.Flg, cond) {
		return length
	}

	imm := c.readImm(pc+2, width)
	if link {
		c.X[0] = pc + length
	}
	c.IP = imm
	c.requestIPFlush()
	return 0
}

func opJc(pc uint64, c *Core) uint64 { return branch(pc, c, false) }
func opCc(pc uint64, c *Core) uint64 { return branch(pc, c, true) }

// --- Return: r. 1 byte.

func opR(pc uint64, c *Core) uint64 {
	c.IP = c.X[0]
	c.requestIPFlush()
	return 0
}

// --- Loop: 6 bytes [op, reg, imm32].

func opLoop(pc uint64, c *Core) uint64 {
	reg := c.readByte(pc+1) & 0x0f
	imm, _ := c.mem.ReadWord(pc + 2)
	pre := c.X[reg]
	if pre != 0 {
		c.X[reg] = pre - 1
		return uint64(int64(int32(imm)))
	}
	return 6
}

// --- Shifts and rotates: chl, chr, rol, ror. 2 bytes [op, pack]. Source
// register (low nibble) holds the count; target register (high nibble)
// is shifted/rotated in place.

// rotateWidth is kept at 63 bits exactly as specified (resolved open
// question #5): guest programs built against this VM may rely on the
// documented, if biased, (63-bits) complement rather than the
// conventional 64.
const rotateWidth = 63

func opChl(pc uint64, c *Core) uint64 {
	src, dst := regPack(c.readByte(pc + 1))
	c.X[dst] <<= c.X[src] & 0x3f
	return 2
}

func opChr(pc uint64, c *Core) uint64 {
	src, dst := regPack(c.readByte(pc + 1))
	c.X[dst] >>= c.X[src] & 0x3f
	return 2
}

func opRol(pc uint64, c *Core) uint64 {
	src, dst := regPack(c.readByte(pc + 1))
	bits := c.X[src] & 0x3f
	v := c.X[dst]
	c.X[dst] = (v << bits) | (v >> (rotateWidth - bits))
	return 2
}

func opRor(pc uint64, c *Core) uint64 {
	src, dst := regPack(c.readByte(pc + 1))
	bits := c.X[src] & 0x3f
	v := c.X[dst]
	c.X[dst] = (v >> bits) | (v << (rotateWidth - bits))
	return 2
}

// --- Load immediate: ldi. 2 + {1,2,4,8} bytes.

func ldiWidth(sel uint8) uint8 {
	switch sel & 0x0f {
	case 0:
		return 1
	case 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}

func opLdi(pc uint64, c *Core) uint64 {
	b1 := c.readByte(pc + 1)
	dst := (b1 >> 4) & 0x0f
	width := ldiWidth(b1)

	var v uint64
	switch width {
	case 1:
		v = uint64(c.readByte(pc + 2))
	case 2:
		h, _ := c.mem.ReadHalf(pc + 2)
		v = uint64(h)
	case 4:
		w, _ := c.mem.ReadWord(pc + 2)
		v = uint64(w)
	default:
		q, _ := c.mem.ReadQuad(pc + 2)
		v = q
	}
	c.X[dst] = v
	return 2 + uint64(width)
}

// --- Load/store memory: ldm, stm. 2 bytes [op, pack]. Resolved open
// question #4: pack low nibble names the register holding the address
// ("source" role for ldm, "target" role for stm per the guest-visible
// mnemonic), high nibble names the register holding/receiving the value.
// stm writes the value in the *source*-role register to the address in
// the *target*-role register; ldm mirrors this, keeping the pair
// symmetric rather than inverted.

func opLdm(pc uint64, c *Core) uint64 {
	pack := c.readByte(pc + 1)
	addrReg, valReg := regPack(pack)
	p, fault, ok := addressing.Translate(c.mem, c.Kpt, c.Upt, c.Flg, c.X[addrReg], addressing.ModeProbe)
	if !ok {
		c.Enqueue(fault)
		return 0
	}
	v, _ := c.mem.ReadQuad(p)
	c.X[valReg] = v
	return 2
}

func opStm(pc uint64, c *Core) uint64 {
	pack := c.readByte(pc + 1)
	addrReg, valReg := regPack(pack)
	p, fault, ok := addressing.Translate(c.mem, c.Kpt, c.Upt, c.Flg, c.X[addrReg], addressing.ModeProbe)
	if !ok {
		c.Enqueue(fault)
		return 0
	}
	c.mem.WriteQuad(p, c.X[valReg])
	return 2
}

// --- General move: mv. 3 bytes [op, flags, pack]. flags bit0 = dest is
// memory via target register; bit1 = source is memory via source
// register. Memory operands are 8 bytes.

func opMv(pc uint64, c *Core) uint64 {
	flags := c.readByte(pc + 1)
	pack := c.readByte(pc + 2)
	srcReg, dstReg := regPack(pack)
	srcIsMem := flags&0x02 != 0
	dstIsMem := flags&0x01 != 0

	var value uint64
	if srcIsMem {
		p, fault, ok := addressing.Translate(c.mem, c.Kpt, c.Upt, c.Flg, c.X[srcReg], addressing.ModeProbe)
		if !ok {
			c.Enqueue(fault)
			return 0
		}
		value, _ = c.mem.ReadQuad(p)
	} else {
		value = c.X[srcReg]
	}

	if dstIsMem {
		p, fault, ok := addressing.Translate(c.mem, c.Kpt, c.Upt, c.Flg, c.X[dstReg], addressing.ModeProbe)
		if !ok {
			c.Enqueue(fault)
			return 0
		}
		c.mem.WriteQuad(p, value)
	} else {
		c.X[dstReg] = value
	}
	return 3
}

// requestIPFlush marks the IP translation as stale, per the invariant
// that any write to ip sets ipbuff_need_flush.
func (c *Core) requestIPFlush() {
	c.ipbuffNeedFlush = true
}
