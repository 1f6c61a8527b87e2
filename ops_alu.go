// ops_alu.go - Integer ALU instruction handlers
//
// Glue between the dispatcher and the size-generic kernels: the classic
// two-operand forms, their flipped and immediate variants, the accumulator
// short forms, and the shift/rotate group. Immediate ALU sites participate
// in path building, picking fast or full kernels per the flag crawl.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

func opAlub(m *Machine, rde Rde) {
	op := kAlu[rde.Opcode()>>3&7][0]
	a := m.modrmBytePointerWrite(rde)
	Put8(a, uint8(op(uint64(Get8(a)), uint64(Get8(m.byteRexrReg(rde))), &m.flags)))
}

func opAluw(m *Machine, rde Rde) {
	op := kAlu[rde.Opcode()>>3&7][rde.RegLog2()]
	p := m.modrmWordPointerWriteOszRexw(rde)
	y := readRegister(rde, m.regRexrReg(rde))
	if rde.Lock() && !rde.IsModrmRegister() {
		m.lockedRmw(rde, p, m.writeAddr, op, y)
		return
	}
	writeRegisterOrMemory(rde, p, op(readMemory(rde, p), y, &m.flags))
}

func opAlubFlip(m *Machine, rde Rde) {
	op := kAlu[rde.Opcode()>>3&7][0]
	q := m.byteRexrReg(rde)
	Put8(q, uint8(op(uint64(Get8(q)), uint64(Get8(m.modrmBytePointerRead(rde))), &m.flags)))
}

func opAluwFlip(m *Machine, rde Rde) {
	op := kAlu[rde.Opcode()>>3&7][rde.RegLog2()]
	writeRegister(rde, m.regRexrReg(rde),
		op(Get64(m.regRexrReg(rde)),
			readMemory(rde, m.modrmWordPointerReadOszRexw(rde)), &m.flags))
}

func opAlubCmp(m *Machine, rde Rde) {
	Sub8(uint64(Get8(m.modrmBytePointerRead(rde))),
		uint64(Get8(m.byteRexrReg(rde))), &m.flags)
}

func opAlubFlipCmp(m *Machine, rde Rde) {
	Sub8(uint64(Get8(m.byteRexrReg(rde))),
		uint64(Get8(m.modrmBytePointerRead(rde))), &m.flags)
}

func opAluwCmp(m *Machine, rde Rde) {
	if m.isMakingPath() {
		m.fuseBranchCmp(rde, false)
	}
	kAlu[aluSub][rde.RegLog2()](
		readMemory(rde, m.modrmWordPointerReadOszRexw(rde)),
		Get64(m.regRexrReg(rde)), &m.flags)
}

func opAluwFlipCmp(m *Machine, rde Rde) {
	kAlu[aluSub][rde.RegLog2()](
		Get64(m.regRexrReg(rde)),
		readMemory(rde, m.modrmWordPointerReadOszRexw(rde)), &m.flags)
}

func opAlubTest(m *Machine, rde Rde) {
	And8(uint64(Get8(m.modrmBytePointerRead(rde))),
		uint64(Get8(m.byteRexrReg(rde))), &m.flags)
}

func opAluwTest(m *Machine, rde Rde) {
	kAlu[aluAnd][rde.RegLog2()](
		readMemory(rde, m.modrmWordPointerReadOszRexw(rde)),
		Get64(m.regRexrReg(rde)), &m.flags)
	if m.isMakingPath() {
		m.fuseBranchTest(rde)
	}
}

// opAluAlIb covers the 0x04..0x3C accumulator byte-immediate forms.
func opAluAlIb(m *Machine, rde Rde) {
	op := kAlu[rde.Opcode()>>3&7][0]
	Put8(m.ax(), uint8(op(uint64(m.al()), m.insn.uimm0, &m.flags)))
}

func opAluRaxIvds(m *Machine, rde Rde) {
	op := kAlu[rde.Opcode()>>3&7][rde.RegLog2()]
	writeRegister(rde, m.ax(),
		op(readRegister(rde, m.ax()), m.insn.uimm0, &m.flags))
}

func opCmpAlIb(m *Machine, rde Rde) {
	Sub8(uint64(m.al()), m.insn.uimm0, &m.flags)
}

func opCmpRaxIvds(m *Machine, rde Rde) {
	kAlu[aluSub][rde.RegLog2()](readRegister(rde, m.ax()), m.insn.uimm0,
		&m.flags)
}

func opTestAlIb(m *Machine, rde Rde) {
	And8(uint64(m.al()), m.insn.uimm0, &m.flags)
}

func opTestRaxIvds(m *Machine, rde Rde) {
	kAlu[aluAnd][rde.RegLog2()](readRegister(rde, m.ax()), m.insn.uimm0,
		&m.flags)
}

// ----------------------------------------------------------------------------
// Group 1: ALU r/m, imm
// ----------------------------------------------------------------------------

// opAluiReg handles 0x80/0x81/0x82/0x83. CMP is read-only; the rest are
// read-modify-write and honour LOCK. When a path is being built the flag
// crawl selects the fast kernel where the full flags are provably dead.
func opAluiReg(m *Machine, rde Rde) {
	reg := rde.ModrmReg()
	if reg == aluCmp {
		if m.isMakingPath() && m.fuseBranchCmp(rde, true) {
			kAlu[aluSub][rde.RegLog2()](
				m.readRegisterOrMemoryBW(rde, m.modrmReadBW(rde)),
				m.insn.uimm0, &m.flags)
			return
		}
		m.aluiRo(rde, &kAlu[aluSub], &kAluFast[aluSub])
		return
	}
	op := kAlu[reg][rde.RegLog2()]
	if rde.IsByteOp() {
		op = kAlu[reg][0]
	}
	p := m.modrmWriteBW(rde)
	if rde.Lock() && !rde.IsModrmRegister() {
		m.lockedRmw(rde, p, m.writeAddr, op, m.insn.uimm0)
		return
	}
	m.writeRegisterOrMemoryBW(rde, p,
		op(m.readRegisterOrMemoryBW(rde, p), m.insn.uimm0, &m.flags))
	if m.isMakingPath() {
		m.jitAluiRmw(rde, reg)
	}
}

// aluiRo evaluates a flag-only immediate ALU form, recording either the
// fast or the full kernel on the current path.
func (m *Machine) aluiRo(rde Rde, ops, fast *[4]aluOp) {
	log2 := rde.RegLog2()
	ops[log2](m.readRegisterOrMemoryBW(rde, m.modrmReadBW(rde)),
		m.insn.uimm0, &m.flags)
	if m.isMakingPath() {
		m.jitAluiRo(rde, ops, fast)
	}
}

func opTestEvqpIvds(m *Machine, rde Rde) {
	m.aluiRo(rde, &kAlu[aluAnd], &kAluFast[aluAnd])
}

func opTestEbIb(m *Machine, rde Rde) {
	And8(uint64(Get8(m.modrmBytePointerRead(rde))), m.insn.uimm0, &m.flags)
}

// ----------------------------------------------------------------------------
// Group 2: shifts and rotates
// ----------------------------------------------------------------------------

func (m *Machine) bsuwi(rde Rde, y uint64) {
	p := m.modrmWordPointerWriteOszRexw(rde)
	writeRegisterOrMemory(rde, p,
		kBsu[rde.ModrmReg()][rde.RegLog2()](readMemory(rde, p), y, &m.flags))
}

func (m *Machine) bsubi(rde Rde, y uint64) {
	a := m.modrmBytePointerWrite(rde)
	Put8(a, uint8(kBsu[rde.ModrmReg()][0](uint64(Get8(a)), y, &m.flags)))
}

func opBsuwi1(m *Machine, rde Rde)   { m.bsuwi(rde, 1) }
func opBsuwiCl(m *Machine, rde Rde)  { m.bsuwi(rde, uint64(m.cl())) }
func opBsuwiImm(m *Machine, rde Rde) { m.bsuwi(rde, m.insn.uimm0) }
func opBsubi1(m *Machine, rde Rde)   { m.bsubi(rde, 1) }
func opBsubiCl(m *Machine, rde Rde)  { m.bsubi(rde, uint64(m.cl())) }
func opBsubiImm(m *Machine, rde Rde) { m.bsubi(rde, m.insn.uimm0) }

// opDoubleShift implements SHLD and SHRD.
func opDoubleShift(m *Machine, rde Rde) {
	var w uint = 2
	if rde.Osz() {
		w = 1
	}
	if rde.Rexw() {
		w = 3
	}
	count := uint8(m.insn.uimm0)
	if rde.Opcode()&1 != 0 {
		count = m.cl()
	}
	p := m.modrmWordPointerWriteOszRexw(rde)
	writeRegisterOrMemory(rde, p,
		BsuDoubleShift(w, readMemory(rde, p),
			readRegister(rde, m.regRexrReg(rde)), count,
			rde.Opcode()&8 != 0, &m.flags))
}

// ----------------------------------------------------------------------------
// INC/DEC short forms and r/m forms
// ----------------------------------------------------------------------------

func opIncZv(m *Machine, rde Rde) {
	if !rde.Osz() {
		Put32(m.regSrm(rde), uint32(Inc32(uint64(Get32(m.regSrm(rde))), 0, &m.flags)))
		Put32(m.regSrm(rde)[4:], 0)
	} else {
		Put16(m.regSrm(rde), uint16(Inc16(uint64(Get16(m.regSrm(rde))), 0, &m.flags)))
	}
}

func opDecZv(m *Machine, rde Rde) {
	if !rde.Osz() {
		Put32(m.regSrm(rde), uint32(Dec32(uint64(Get32(m.regSrm(rde))), 0, &m.flags)))
		Put32(m.regSrm(rde)[4:], 0)
	} else {
		Put16(m.regSrm(rde), uint16(Dec16(uint64(Get16(m.regSrm(rde))), 0, &m.flags)))
	}
}

func opIncEvqp(m *Machine, rde Rde) {
	op := kAlu[aluInc][rde.RegLog2()]
	if rde.IsByteOp() {
		op = kAlu[aluInc][0]
	}
	p := m.modrmWriteBW(rde)
	if rde.Lock() && !rde.IsModrmRegister() {
		m.lockedRmw(rde, p, m.writeAddr, op, 0)
		return
	}
	m.writeRegisterOrMemoryBW(rde, p,
		op(m.readRegisterOrMemoryBW(rde, p), 0, &m.flags))
}

func opDecEvqp(m *Machine, rde Rde) {
	op := kAlu[aluDec][rde.RegLog2()]
	if rde.IsByteOp() {
		op = kAlu[aluDec][0]
	}
	p := m.modrmWriteBW(rde)
	if rde.Lock() && !rde.IsModrmRegister() {
		m.lockedRmw(rde, p, m.writeAddr, op, 0)
		return
	}
	m.writeRegisterOrMemoryBW(rde, p,
		op(m.readRegisterOrMemoryBW(rde, p), 0, &m.flags))
}

func opNotEvqp(m *Machine, rde Rde) {
	op := kAlu[aluNot][rde.RegLog2()]
	if rde.IsByteOp() {
		op = kAlu[aluNot][0]
	}
	p := m.modrmWriteBW(rde)
	m.writeRegisterOrMemoryBW(rde, p,
		op(m.readRegisterOrMemoryBW(rde, p), 0, &m.flags))
}

func opNegEvqp(m *Machine, rde Rde) {
	op := kAlu[aluNeg][rde.RegLog2()]
	if rde.IsByteOp() {
		op = kAlu[aluNeg][0]
	}
	p := m.modrmWriteBW(rde)
	if rde.Lock() && !rde.IsModrmRegister() {
		m.lockedRmw(rde, p, m.writeAddr, op, 0)
		return
	}
	m.writeRegisterOrMemoryBW(rde, p,
		op(m.readRegisterOrMemoryBW(rde, p), 0, &m.flags))
}
