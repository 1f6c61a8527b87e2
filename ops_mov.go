// ops_mov.go - Data movement handlers
//
// MOV in all its encodings, sign/zero extension, exchanges against the
// accumulator, conditional moves, SETcc, BSWAP, the CBW/CWD convert pair,
// LEA, and XLAT.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

func opMovEbGb(m *Machine, rde Rde) {
	Put8(m.modrmBytePointerWrite(rde), Get8(m.byteRexrReg(rde)))
}

func opMovGbEb(m *Machine, rde Rde) {
	Put8(m.byteRexrReg(rde), Get8(m.modrmBytePointerRead(rde)))
}

func opMovEvqpGvqp(m *Machine, rde Rde) {
	writeRegisterOrMemory(rde, m.modrmWordPointerWriteOszRexw(rde),
		readMemory(rde, m.regRexrReg(rde)))
}

func opMovGvqpEvqp(m *Machine, rde Rde) {
	writeRegister(rde, m.regRexrReg(rde),
		readMemory(rde, m.modrmWordPointerReadOszRexw(rde)))
}

func opMovEbIb(m *Machine, rde Rde) {
	Put8(m.modrmBytePointerWrite(rde), uint8(m.insn.uimm0))
}

func opMovEvqpIvds(m *Machine, rde Rde) {
	writeRegisterOrMemory(rde, m.modrmWordPointerWriteOszRexw(rde),
		m.insn.uimm0)
}

func opMovZbIb(m *Machine, rde Rde) {
	Put8(m.byteRexbSrm(rde), uint8(m.insn.uimm0))
}

func opMovZvqpIvqp(m *Machine, rde Rde) {
	writeRegister(rde, m.regRexbSrm(rde), m.insn.uimm0)
}

func opMovAlOb(m *Machine, rde Rde) {
	addr := m.addressOb(rde)
	m.setReadAddr(addr, 1)
	Put8(m.ax(), Get8(m.resolveAddress(addr)))
}

func opMovObAl(m *Machine, rde Rde) {
	addr := m.addressOb(rde)
	m.setWriteAddr(addr, 1)
	Put8(m.resolveAddress(addr), m.al())
}

func opMovRaxOvqp(m *Machine, rde Rde) {
	v := m.dataSegment(rde, uint64(m.insn.disp))
	m.setReadAddr(v, 1<<rde.RegLog2())
	writeRegister(rde, m.ax(), readMemory(rde, m.resolveAddress(v)))
}

func opMovOvqpRax(m *Machine, rde Rde) {
	v := m.dataSegment(rde, uint64(m.insn.disp))
	m.setWriteAddr(v, 1<<rde.RegLog2())
	writeMemory(rde, m.resolveAddress(v), Get64(m.ax()))
}

func opMovzbGvqpEb(m *Machine, rde Rde) {
	writeRegister(rde, m.regRexrReg(rde),
		uint64(Get8(m.modrmBytePointerRead(rde))))
}

func opMovzwGvqpEw(m *Machine, rde Rde) {
	writeRegister(rde, m.regRexrReg(rde),
		uint64(Get16(m.modrmWordPointerRead(rde, 2))))
}

func opMovsbGvqpEb(m *Machine, rde Rde) {
	writeRegister(rde, m.regRexrReg(rde),
		uint64(int64(int8(Get8(m.modrmBytePointerRead(rde))))))
}

func opMovswGvqpEw(m *Machine, rde Rde) {
	writeRegister(rde, m.regRexrReg(rde),
		uint64(int64(int16(Get16(m.modrmWordPointerRead(rde, 2))))))
}

func opMovsxdGdqpEd(m *Machine, rde Rde) {
	Put64(m.regRexrReg(rde),
		uint64(int64(int32(Get32(m.modrmWordPointerRead(rde, 4))))))
}

func opLeaGvqpM(m *Machine, rde Rde) {
	writeRegister(rde, m.regRexrReg(rde),
		uint64(m.loadEffectiveAddress(rde, m.insn.disp).addr))
}

func opXlatAlBbb(m *Machine, rde Rde) {
	v := maskAddress(rde.Eamode(), Get64(m.bx())+uint64(m.al()))
	addr := m.dataSegment(rde, v)
	m.setReadAddr(addr, 1)
	Put8(m.ax(), Get8(m.resolveAddress(addr)))
}

// opXchgZvqp swaps rAX with a register selected by the opcode low bits.
func opXchgZvqp(m *Machine, rde Rde) {
	x := Get64(m.ax())
	y := Get64(m.regRexbSrm(rde))
	writeRegister(rde, m.ax(), y)
	writeRegister(rde, m.regRexbSrm(rde), x)
}

func opSax(m *Machine, rde Rde) {
	if rde.Rexw() {
		Put64(m.ax(), uint64(int64(int32(Get32(m.ax())))))
	} else if !rde.Osz() {
		Put64(m.ax(), uint64(uint32(int32(int16(Get16(m.ax()))))))
	} else {
		Put16(m.ax(), uint16(int16(int8(m.al()))))
	}
}

func opConvert(m *Machine, rde Rde) {
	if rde.Rexw() {
		if Get64(m.ax())>>63 != 0 {
			Put64(m.dx(), 0xffffffffffffffff)
		} else {
			Put64(m.dx(), 0)
		}
	} else if !rde.Osz() {
		if Get32(m.ax())>>31 != 0 {
			Put64(m.dx(), 0xffffffff)
		} else {
			Put64(m.dx(), 0)
		}
	} else {
		if Get16(m.ax())>>15 != 0 {
			Put16(m.dx(), 0xffff)
		} else {
			Put16(m.dx(), 0)
		}
	}
}

func opBswapZvqp(m *Machine, rde Rde) {
	p := m.regRexbSrm(rde)
	x := Get64(p)
	if rde.Rexw() {
		Put64(p, x>>56&0xff|x>>40&0xff00|x>>24&0xff0000|x>>8&0xff000000|
			x<<8&0xff00000000|x<<24&0xff0000000000|
			x<<40&0xff000000000000|x<<56)
	} else if !rde.Osz() {
		Put64(p, uint64(uint32(x)>>24|uint32(x)>>8&0xff00|
			uint32(x)<<8&0xff0000|uint32(x)<<24))
	} else {
		Put16(p, uint16(x)<<8|uint16(x)>>8)
	}
}

// ----------------------------------------------------------------------------
// CMOVcc and SETcc
// ----------------------------------------------------------------------------

// condition evaluates the Jcc/SETcc/CMOVcc predicate in the opcode low
// nibble.
func (m *Machine) condition(cc int) bool {
	switch cc & 15 {
	case 0:
		return GetFlag(m.flags, flagsOF)
	case 1:
		return !GetFlag(m.flags, flagsOF)
	case 2:
		return GetFlag(m.flags, flagsCF)
	case 3:
		return !GetFlag(m.flags, flagsCF)
	case 4:
		return GetFlag(m.flags, flagsZF)
	case 5:
		return !GetFlag(m.flags, flagsZF)
	case 6:
		return m.isBelowOrEqual()
	case 7:
		return m.isAbove()
	case 8:
		return GetFlag(m.flags, flagsSF)
	case 9:
		return !GetFlag(m.flags, flagsSF)
	case 10:
		return m.isParity()
	case 11:
		return !m.isParity()
	case 12:
		return m.isLess()
	case 13:
		return m.isGreaterOrEqual()
	case 14:
		return m.isLessOrEqual()
	default:
		return m.isGreater()
	}
}

func opCmovcc(m *Machine, rde Rde) {
	if m.condition(rde.Opcode()) {
		opMovGvqpEvqp(m, rde)
	}
}

func opSetcc(m *Machine, rde Rde) {
	var x uint8
	if m.condition(rde.Opcode()) {
		x = 1
	}
	Put8(m.modrmBytePointerWrite(rde), x)
}
