// addressing_x86.go - Effective address computation and operand resolution
//
// Turns ModR/M, SIB, displacement, and segment state into guest linear
// addresses, and hands handlers host pointers for their register or memory
// operands. All address arithmetic is performed modulo the effective address
// size before the segment base is added.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

type addrSeg struct {
	addr int64
	seg  uint64
}

// loadEffectiveAddress computes the pre-segment effective address of a
// memory operand together with its default segment base.
func (m *Machine) loadEffectiveAddress(rde Rde, disp int64) addrSeg {
	i := uint64(disp)
	s := m.seg[segDs].base
	if rde.Eamode() != modeReal {
		if !rde.SibExists() {
			if rde.IsRipRelative() {
				if rde.Mode() == modeLong {
					i += m.ip
				}
			} else {
				i += Get64(m.regRexbRm(rde))
				if rde.RexbRm() == regSp || rde.RexbRm() == regBp {
					s = m.seg[segSs].base
				}
			}
		} else {
			if rde.SibHasBase() {
				i += Get64(m.regSlice(rde.RexbBase()))
				if rde.RexbBase() == regSp || rde.RexbBase() == regBp {
					s = m.seg[segSs].base
				}
			}
			if rde.SibHasIndex() {
				i += Get64(m.regSlice(rde.RexxIndex())) << uint(rde.SibScale())
			}
		}
		if rde.Eamode() == modeLegacy {
			i &= 0xffffffff
		}
	} else {
		switch rde.ModrmRm() {
		case 0:
			i += uint64(Get16(m.bx())) + uint64(Get16(m.si()))
		case 1:
			i += uint64(Get16(m.bx())) + uint64(Get16(m.di()))
		case 2:
			s = m.seg[segSs].base
			i += uint64(Get16(m.bp())) + uint64(Get16(m.si()))
		case 3:
			s = m.seg[segSs].base
			i += uint64(Get16(m.bp())) + uint64(Get16(m.di()))
		case 4:
			i += uint64(Get16(m.si()))
		case 5:
			i += uint64(Get16(m.di()))
		case 6:
			if rde.ModrmMod() != 0 {
				s = m.seg[segSs].base
				i += uint64(Get16(m.bp()))
			}
		case 7:
			i += uint64(Get16(m.bx()))
		}
		i &= 0xffff
	}
	return addrSeg{addr: int64(i), seg: s}
}

// addSegment applies a segment override or the default segment base.
func (m *Machine) addSegment(rde Rde, i int64, s uint64) int64 {
	if rde.Sego() != 0 {
		return i + int64(m.seg[rde.Sego()-1].base)
	}
	return i + int64(s)
}

// computeAddress yields the guest linear address of the memory operand.
func (m *Machine) computeAddress(rde Rde) int64 {
	ea := m.loadEffectiveAddress(rde, m.insn.disp)
	return m.addSegment(rde, ea.addr, ea.seg)
}

func (m *Machine) dataSegment(rde Rde, i uint64) int64 {
	return m.addSegment(rde, int64(i), m.seg[segDs].base)
}

// addressOb is the absolute-offset form used by the MOV moffs encodings.
func (m *Machine) addressOb(rde Rde) int64 {
	return m.dataSegment(rde, uint64(m.insn.disp))
}

func (m *Machine) addressSi(rde Rde) int64 {
	switch rde.Eamode() {
	case modeLong:
		return m.dataSegment(rde, Get64(m.si()))
	case modeReal:
		return m.dataSegment(rde, uint64(Get16(m.si())))
	default:
		return m.dataSegment(rde, uint64(Get32(m.si())))
	}
}

func (m *Machine) addressDi(rde Rde) int64 {
	i := int64(m.seg[segEs].base)
	switch rde.Eamode() {
	case modeLong:
		return i + int64(Get64(m.di()))
	case modeReal:
		return i + int64(Get16(m.di()))
	default:
		return i + int64(Get32(m.di()))
	}
}

// ----------------------------------------------------------------------------
// Reserved operand pointers
// ----------------------------------------------------------------------------

func (m *Machine) computeReserveAddressRead(rde Rde, n int) []byte {
	v := m.computeAddress(rde)
	m.setReadAddr(v, n)
	return m.reserveAddress(v, n, false)
}

func (m *Machine) computeReserveAddressWrite(rde Rde, n int) []byte {
	v := m.computeAddress(rde)
	m.setWriteAddr(v, n)
	return m.reserveAddress(v, n, true)
}

// modrmBytePointerRead resolves an Eb operand for reading.
func (m *Machine) modrmBytePointerRead(rde Rde) []byte {
	if rde.IsModrmRegister() {
		return m.byteRexbRm(rde)
	}
	return m.computeReserveAddressRead(rde, 1)
}

func (m *Machine) modrmBytePointerWrite(rde Rde) []byte {
	if rde.IsModrmRegister() {
		return m.byteRexbRm(rde)
	}
	return m.computeReserveAddressWrite(rde, 1)
}

// modrmWordPointerRead resolves an Ev operand of n bytes for reading.
func (m *Machine) modrmWordPointerRead(rde Rde, n int) []byte {
	if rde.IsModrmRegister() {
		return m.regRexbRm(rde)
	}
	return m.computeReserveAddressRead(rde, n)
}

func (m *Machine) modrmWordPointerWrite(rde Rde, n int) []byte {
	if rde.IsModrmRegister() {
		return m.regRexbRm(rde)
	}
	return m.computeReserveAddressWrite(rde, n)
}

// modrmWordPointerReadOszRexw sizes the operand by the rexw/osz rules.
func (m *Machine) modrmWordPointerReadOszRexw(rde Rde) []byte {
	if rde.Rexw() {
		return m.modrmWordPointerRead(rde, 8)
	} else if !rde.Osz() {
		return m.modrmWordPointerRead(rde, 4)
	}
	return m.modrmWordPointerRead(rde, 2)
}

func (m *Machine) modrmWordPointerWriteOszRexw(rde Rde) []byte {
	if rde.Rexw() {
		return m.modrmWordPointerWrite(rde, 8)
	} else if !rde.Osz() {
		return m.modrmWordPointerWrite(rde, 4)
	}
	return m.modrmWordPointerWrite(rde, 2)
}

func (m *Machine) modrmWordPointerReadOsz(rde Rde) []byte {
	if !rde.Osz() {
		return m.modrmWordPointerRead(rde, 8)
	}
	return m.modrmWordPointerRead(rde, 2)
}

func (m *Machine) modrmWordPointerWriteOsz(rde Rde) []byte {
	if !rde.Osz() {
		return m.modrmWordPointerWrite(rde, 8)
	}
	return m.modrmWordPointerWrite(rde, 2)
}

// modrmReadBW and modrmWriteBW pick the byte or word resolver off the
// operand's srm parity.
func (m *Machine) modrmReadBW(rde Rde) []byte {
	if rde.IsByteOp() {
		return m.modrmBytePointerRead(rde)
	}
	return m.modrmWordPointerReadOszRexw(rde)
}

func (m *Machine) modrmWriteBW(rde Rde) []byte {
	if rde.IsByteOp() {
		return m.modrmBytePointerWrite(rde)
	}
	return m.modrmWordPointerWriteOszRexw(rde)
}

// modrmMmPointerRead resolves a Qq operand (MMX register or memory).
func (m *Machine) modrmMmPointerRead(rde Rde, n int) []byte {
	if rde.IsModrmRegister() {
		return m.mmRm(rde)
	}
	return m.computeReserveAddressRead(rde, n)
}

func (m *Machine) modrmMmPointerWrite(rde Rde, n int) []byte {
	if rde.IsModrmRegister() {
		return m.mmRm(rde)
	}
	return m.computeReserveAddressWrite(rde, n)
}

// modrmXmmPointerRead resolves a Wdq operand (XMM register or memory).
func (m *Machine) modrmXmmPointerRead(rde Rde, n int) []byte {
	if rde.IsModrmRegister() {
		return m.xmmRexbRm(rde)
	}
	return m.computeReserveAddressRead(rde, n)
}

func (m *Machine) modrmXmmPointerWrite(rde Rde, n int) []byte {
	if rde.IsModrmRegister() {
		return m.xmmRexbRm(rde)
	}
	return m.computeReserveAddressWrite(rde, n)
}
