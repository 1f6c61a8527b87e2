// ops_bcd.go - BCD adjust handlers
//
// DAA/DAS/AAA/AAS/AAM/AAD, legacy-mode only. All of them refresh the
// arithmetic flags from AL, including the lazy parity byte.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

func (m *Machine) bcdFlags(af, cf bool) {
	m.flags = SetFlag(m.flags, flagsCF, cf)
	m.flags = SetFlag(m.flags, flagsAF, af)
	m.flags = SetFlag(m.flags, flagsZF, m.al() == 0)
	m.flags = SetFlag(m.flags, flagsSF, int8(m.al()) < 0)
	m.flags = setLazyParityByte(m.flags, m.al())
}

func opDaa(m *Machine, rde Rde) {
	al := m.al()
	af, cf := false, false
	if al&0x0f > 9 || GetFlag(m.flags, flagsAF) {
		cf = al > 0xf9 || GetFlag(m.flags, flagsCF)
		m.setAl(al + 0x06)
		af = true
	}
	if al > 0x99 || GetFlag(m.flags, flagsCF) {
		m.setAl(m.al() + 0x60)
		cf = true
	}
	m.bcdFlags(af, cf)
}

func opDas(m *Machine, rde Rde) {
	al := m.al()
	af, cf := false, false
	if al&0x0f > 9 || GetFlag(m.flags, flagsAF) {
		cf = al < 6 || GetFlag(m.flags, flagsCF)
		m.setAl(al - 0x06)
		af = true
	}
	if al > 0x99 || GetFlag(m.flags, flagsCF) {
		m.setAl(m.al() - 0x60)
		cf = true
	}
	m.bcdFlags(af, cf)
}

func opAaa(m *Machine, rde Rde) {
	af, cf := false, false
	if m.al()&0x0f > 9 || GetFlag(m.flags, flagsAF) {
		Put16(m.ax(), Get16(m.ax())+0x106)
		af, cf = true, true
	}
	m.setAl(m.al() & 0x0f)
	m.bcdFlags(af, cf)
}

func opAas(m *Machine, rde Rde) {
	af, cf := false, false
	if m.al()&0x0f > 9 || GetFlag(m.flags, flagsAF) {
		Put16(m.ax(), Get16(m.ax())-0x106)
		af, cf = true, true
	}
	m.setAl(m.al() & 0x0f)
	m.bcdFlags(af, cf)
}

func opAam(m *Machine, rde Rde) {
	i := uint8(m.insn.uimm0)
	if i == 0 {
		m.RaiseDivideError()
	}
	m.setAh(m.al() / i)
	m.setAl(m.al() % i)
	m.bcdFlags(false, false)
}

func opAad(m *Machine, rde Rde) {
	i := uint8(m.insn.uimm0)
	Put16(m.ax(), uint16(m.ah()*i+m.al())&0xff)
	m.bcdFlags(false, false)
}
