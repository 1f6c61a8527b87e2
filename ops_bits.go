// ops_bits.go - Bit test, bit scan, and BMI2/ADX handlers
//
// BT/BTS/BTR/BTC with register bit displacement, BSF/BSR and their TZCNT/
// LZCNT refinements, POPCNT, the PDEP/PEXT/RORX/MULX subset of BMI2, and
// the ADCX/ADOX carry-chain pair.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "math/bits"

func bts(x, y uint64) uint64 { return x | y }
func btr(x, y uint64) uint64 { return x &^ y }
func btc(x, y uint64) uint64 { return x ^ y }

// opBit covers 0F A3/AB/B3/BB and the 0F BA immediate group.
func opBit(m *Machine, rde Rde) {
	w := uint(2)
	if rde.Osz() {
		w = 1
	}
	if rde.Rexw() {
		w = 3
	}
	width := int64(8) << w
	var op int
	var bit uint
	var bitdisp int64
	if rde.Opcode() == 0xba {
		op = rde.ModrmReg()
		bit = uint(m.insn.uimm0) & uint(width-1)
	} else {
		op = rde.Opcode() >> 3 & 7
		bitdisp = readRegisterSigned(rde, m.regRexrReg(rde))
		bit = uint(bitdisp) & uint(width-1)
		bitdisp &= ^(width - 1)
		bitdisp >>= 3
	}
	var p []byte
	var v int64
	if rde.IsModrmRegister() {
		p = m.regRexbRm(rde)
	} else {
		v = int64(maskAddress(rde.Eamode(),
			uint64(m.computeAddress(rde)+bitdisp)))
		p = m.reserveAddress(v, 1<<w, op != 4)
		if op == 4 {
			m.setReadAddr(v, 1<<w)
		} else {
			m.setWriteAddr(v, 1<<w)
		}
	}
	if rde.Lock() {
		m.lockBus(v)
		defer m.unlockBus(v)
	}
	y := uint64(1) << bit
	x := readMemory(rde, p)
	m.flags = SetFlag(m.flags, flagsCF, x&y != 0)
	var z uint64
	switch op {
	case 4:
		return
	case 5:
		z = bts(x, y)
	case 6:
		z = btr(x, y)
	case 7:
		z = btc(x, y)
	default:
		m.OpUdImpl()
	}
	writeRegisterOrMemory(rde, p, z)
}

func (m *Machine) bitscanWidth(rde Rde) (uint64, uint) {
	if rde.Rexw() {
		return 0xffffffffffffffff, 64
	} else if !rde.Osz() {
		return 0xffffffff, 32
	}
	return 0xffff, 16
}

func (m *Machine) aluBsr(rde Rde, x uint64) uint64 {
	mask, n := m.bitscanWidth(rde)
	x &= mask
	if rde.Rep() == 3 { // lzcnt
		if x == 0 {
			m.flags = SetFlag(m.flags, flagsCF, true)
			m.flags = SetFlag(m.flags, flagsZF, false)
			return uint64(n)
		}
		m.flags = SetFlag(m.flags, flagsCF, false)
		z := uint64(n) - 1 - uint64(63-bits.LeadingZeros64(x))
		m.flags = SetFlag(m.flags, flagsZF, z == 0)
		return z
	}
	m.flags = SetFlag(m.flags, flagsZF, x == 0)
	if x == 0 {
		return 0
	}
	return uint64(63 - bits.LeadingZeros64(x))
}

func (m *Machine) aluBsf(rde Rde, x uint64) uint64 {
	mask, n := m.bitscanWidth(rde)
	x &= mask
	if rde.Rep() == 3 { // tzcnt
		if x == 0 {
			m.flags = SetFlag(m.flags, flagsCF, true)
			m.flags = SetFlag(m.flags, flagsZF, false)
			return uint64(n)
		}
		m.flags = SetFlag(m.flags, flagsCF, false)
		m.flags = SetFlag(m.flags, flagsZF, x&1 != 0)
	} else {
		m.flags = SetFlag(m.flags, flagsZF, x == 0)
		if x == 0 {
			return 0
		}
	}
	return uint64(bits.TrailingZeros64(x))
}

func (m *Machine) aluPopcnt(rde Rde, x uint64) uint64 {
	m.flags = SetFlag(m.flags, flagsZF, x == 0)
	m.flags = SetFlag(m.flags, flagsCF, false)
	m.flags = SetFlag(m.flags, flagsSF, false)
	m.flags = SetFlag(m.flags, flagsOF, false)
	m.flags = SetFlag(m.flags, flagsPF, false)
	return uint64(bits.OnesCount64(x))
}

func (m *Machine) bitscan(rde Rde, op func(Rde, uint64) uint64) {
	writeRegister(rde, m.regRexrReg(rde),
		op(rde, readMemory(rde, m.modrmWordPointerReadOszRexw(rde))))
}

func opBsf(m *Machine, rde Rde) { m.bitscan(rde, m.aluBsf) }
func opBsr(m *Machine, rde Rde) { m.bitscan(rde, m.aluBsr) }

func op1b8(m *Machine, rde Rde) {
	if rde.Rep() == 3 {
		m.bitscan(rde, m.aluPopcnt)
	} else {
		m.OpUdImpl()
	}
}

// ----------------------------------------------------------------------------
// BMI2 subset: PDEP, PEXT, RORX, MULX; ADX: ADCX, ADOX
// ----------------------------------------------------------------------------

func pdep(x, mask uint64) uint64 {
	var r, b uint64
	for b = 1; mask != 0; mask, b = mask>>1, b<<1 {
		if mask&1 != 0 {
			if x&1 != 0 {
				r |= b
			}
			x >>= 1
		}
	}
	return r
}

func pext(x, mask uint64) uint64 {
	var r uint64
	b := uint64(1)
	for ; mask != 0; mask, x = mask>>1, x>>1 {
		if mask&1 != 0 {
			if x&1 != 0 {
				r |= b
			}
			b <<= 1
		}
	}
	return r
}

// regVreg selects the non-destructive source register. VEX encodings are
// not decoded, so the vreg field is zero and the source defaults to rAX.
func (m *Machine) regVreg(rde Rde) []byte {
	return m.regSlice(int(rde >> 60 & 15))
}

func op2f5(m *Machine, rde Rde) {
	var op func(x, mask uint64) uint64
	switch rde.Rep() {
	case 2:
		op = pdep
	case 3:
		op = pext
	default:
		m.OpUdImpl()
	}
	if rde.Rexw() {
		Put64(m.regRexrReg(rde), op(Get64(m.regVreg(rde)),
			Get64(m.modrmWordPointerRead(rde, 8))))
	} else {
		Put64(m.regRexrReg(rde), uint64(uint32(op(uint64(Get32(m.regVreg(rde))),
			uint64(Get32(m.modrmWordPointerRead(rde, 4)))))))
	}
}

// opMulx is the flagless widening multiply: the high half goes to the reg
// operand, the low half to the non-destructive register. When the two
// coincide the high half wins.
func opMulx(m *Machine, rde Rde) {
	if rde.Rexw() {
		hi, lo := bits.Mul64(Get64(m.dx()),
			Get64(m.modrmWordPointerRead(rde, 8)))
		Put64(m.regVreg(rde), lo)
		Put64(m.regRexrReg(rde), hi)
	} else {
		z := uint64(Get32(m.dx())) *
			uint64(Get32(m.modrmWordPointerRead(rde, 4)))
		Put64(m.regVreg(rde), z&0xffffffff)
		Put64(m.regRexrReg(rde), z>>32)
	}
}

// adcxAdox adds r/m into the reg operand through a single carry-chain flag
// bit, leaving every other flag untouched.
func (m *Machine) adcxAdox(rde Rde, flag int) {
	p := m.regRexrReg(rde)
	carry := uint64(b2u(GetFlag(m.flags, flag)))
	if rde.Rexw() {
		sum, c := bits.Add64(Get64(p),
			Get64(m.modrmWordPointerRead(rde, 8)), carry)
		Put64(p, sum)
		m.flags = SetFlag(m.flags, flag, c != 0)
	} else {
		z := uint64(Get32(p)) +
			uint64(Get32(m.modrmWordPointerRead(rde, 4))) + carry
		Put64(p, z&0xffffffff)
		m.flags = SetFlag(m.flags, flag, z>>32 != 0)
	}
}

func opAdcx(m *Machine, rde Rde) {
	m.adcxAdox(rde, flagsCF)
}

func opAdox(m *Machine, rde Rde) {
	m.adcxAdox(rde, flagsOF)
}

// op2f6 splits the 0F 38 F6 point on its mandatory prefix: 66 is ADCX,
// F3 is ADOX, F2 is MULX.
func op2f6(m *Machine, rde Rde) {
	switch {
	case rde.Rep() == 2:
		opMulx(m, rde)
	case rde.Rep() == 3:
		opAdox(m, rde)
	case rde.Osz():
		opAdcx(m, rde)
	default:
		m.OpUdImpl()
	}
}

func opRorx(m *Machine, rde Rde) {
	var z uint64
	if rde.Rexw() {
		x := Get64(m.modrmWordPointerRead(rde, 8))
		z = bits.RotateLeft64(x, -int(m.insn.uimm0&63))
	} else {
		x := Get32(m.modrmWordPointerRead(rde, 4))
		z = uint64(bits.RotateLeft32(x, -int(m.insn.uimm0&31)))
	}
	Put64(m.regRexrReg(rde), z)
}
