// ops_cmpxchg.go - Atomic exchange family
//
// XCHG, CMPXCHG, and XADD. LOCK-prefixed naturally aligned 4 and 8 byte
// forms run as compare-and-swap loops; everything else serialises through
// the per-page bus lock. XCHG against memory is implicitly locked.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

func opXchgGbEb(m *Machine, rde Rde) {
	r := m.byteRexrReg(rde)
	if !rde.IsModrmRegister() {
		p := m.computeReserveAddressWrite(rde, 1)
		v := m.writeAddr
		m.lockBus(v)
		x := Get8(p)
		Put8(p, Get8(r))
		Put8(r, x)
		m.unlockBus(v)
		return
	}
	p := m.byteRexbRm(rde)
	x := Get8(r)
	Put8(r, Get8(p))
	Put8(p, x)
}

func opXchgGvqpEvqp(m *Machine, rde Rde) {
	q := m.regRexrReg(rde)
	p := m.modrmWordPointerWriteOszRexw(rde)
	if !rde.IsModrmRegister() {
		v := m.writeAddr
		m.lockBus(v)
		x := readRegister(rde, q)
		writeRegister(rde, q, readMemory(rde, p))
		writeMemory(rde, p, x)
		m.unlockBus(v)
		return
	}
	x := readRegister(rde, q)
	writeRegister(rde, q, readRegister(rde, p))
	writeRegister(rde, p, x)
}

func opCmpxchgEbAlGb(m *Machine, rde Rde) {
	var didit bool
	if !rde.IsModrmRegister() {
		p := m.computeReserveAddressWrite(rde, 1)
		v := m.writeAddr
		m.lockBus(v)
		x := Get8(p)
		if didit = x == m.al(); didit {
			Put8(p, Get8(m.byteRexrReg(rde)))
		} else {
			m.setAl(x)
		}
		m.unlockBus(v)
	} else {
		p := m.byteRexbRm(rde)
		x := Get8(p)
		if didit = x == m.al(); didit {
			Put8(p, Get8(m.byteRexrReg(rde)))
		} else {
			m.setAl(x)
		}
	}
	m.flags = SetFlag(m.flags, flagsZF, didit)
}

func opCmpxchgEvqpRaxGvqp(m *Machine, rde Rde) {
	q := m.regRexrReg(rde)
	p := m.modrmWordPointerWriteOszRexw(rde)
	var didit bool
	if rde.Rexw() {
		if rde.Lock() && aligned(p, 8) {
			ax := Get64(m.ax())
			if didit = Cas64(p, ax, Get64(q)); !didit {
				Put64(m.ax(), Load64Acq(p))
			}
		} else {
			x := Get64(p)
			if didit = x == Get64(m.ax()); didit {
				Put64(p, Get64(q))
			} else {
				Put64(m.ax(), x)
			}
		}
	} else if !rde.Osz() {
		if rde.Lock() && aligned(p, 4) {
			ax := Get32(m.ax())
			if didit = Cas32(p, ax, Get32(q)); !didit {
				Put64(m.ax(), uint64(Load32Acq(p)))
			}
		} else {
			x := Get32(p)
			if didit = x == Get32(m.ax()); didit {
				Put32(p, Get32(q))
			} else {
				Put64(m.ax(), uint64(x))
			}
		}
		if rde.IsModrmRegister() {
			Put32(p[4:], 0)
		}
	} else {
		x := Get16(p)
		if didit = x == Get16(m.ax()); didit {
			Put16(p, Get16(q))
		} else {
			Put16(m.ax(), x)
		}
	}
	m.flags = SetFlag(m.flags, flagsZF, didit)
}

// opCmpxchg8b16b handles the 0F C7 /1 memory form at either width.
func opCmpxchg8b16b(m *Machine, rde Rde) {
	if rde.IsModrmRegister() {
		m.OpUdImpl()
	}
	if rde.Rexw() { // cmpxchg16b
		p := m.computeReserveAddressWrite(rde, 16)
		v := m.writeAddr
		m.lockBus(v)
		lo, hi := Get64(p), Get64(p[8:])
		if lo == Get64(m.ax()) && hi == Get64(m.dx()) {
			Put64(p, Get64(m.bx()))
			Put64(p[8:], Get64(m.cx()))
			m.flags = SetFlag(m.flags, flagsZF, true)
		} else {
			Put64(m.ax(), lo)
			Put64(m.dx(), hi)
			m.flags = SetFlag(m.flags, flagsZF, false)
		}
		m.unlockBus(v)
		return
	}
	p := m.computeReserveAddressWrite(rde, 8)
	v := m.writeAddr
	m.lockBus(v)
	lo, hi := Get32(p), Get32(p[4:])
	if lo == Get32(m.ax()) && hi == Get32(m.dx()) {
		Put32(p, Get32(m.bx()))
		Put32(p[4:], Get32(m.cx()))
		m.flags = SetFlag(m.flags, flagsZF, true)
	} else {
		Put64(m.ax(), uint64(lo))
		Put64(m.dx(), uint64(hi))
		m.flags = SetFlag(m.flags, flagsZF, false)
	}
	m.unlockBus(v)
}

func opXaddEbGb(m *Machine, rde Rde) {
	p := m.modrmBytePointerWrite(rde)
	q := m.byteRexrReg(rde)
	if rde.Lock() && !rde.IsModrmRegister() {
		v := m.writeAddr
		m.lockBus(v)
		x := Get8(p)
		z := Add8(uint64(x), uint64(Get8(q)), &m.flags)
		Put8(q, x)
		Put8(p, uint8(z))
		m.unlockBus(v)
		return
	}
	x := Get8(p)
	z := Add8(uint64(x), uint64(Get8(q)), &m.flags)
	Put8(q, x)
	Put8(p, uint8(z))
}

func opXaddEvqpGvqp(m *Machine, rde Rde) {
	p := m.modrmWordPointerWriteOszRexw(rde)
	q := m.regRexrReg(rde)
	op := kAlu[aluAdd][rde.RegLog2()]
	if rde.Lock() && !rde.IsModrmRegister() {
		v := m.writeAddr
		m.lockBus(v)
		x := readMemory(rde, p)
		z := op(x, readRegister(rde, q), &m.flags)
		writeRegister(rde, q, x)
		writeMemory(rde, p, z)
		m.unlockBus(v)
		return
	}
	x := readMemory(rde, p)
	z := op(x, readRegister(rde, q), &m.flags)
	writeRegister(rde, q, x)
	writeRegisterOrMemory(rde, p, z)
}
