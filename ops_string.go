// ops_string.go - String instruction handlers
//
// MOVS/CMPS/STOS/LODS/SCAS/INS/OUTS with their REP/REPE/REPNE forms.
// Destination writes use the cross-page store protocol per element, and the
// enhanced REP MOVSB/STOSB fast paths copy page-sized runs directly, which
// is what the ERMS CPUID bit advertises.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

const (
	stringCmps = iota
	stringMovs
	stringStos
	stringLods
	stringScas
	stringOuts
	stringIns
)

func (m *Machine) addDi(rde Rde, x uint64) uint64 {
	switch rde.Eamode() {
	case modeLong:
		res := Get64(m.di()) + x
		Put64(m.di(), res)
		return res
	case modeLegacy:
		res := (uint64(Get32(m.di())) + x) & 0xffffffff
		Put64(m.di(), res)
		return res
	default:
		res := uint64(Get16(m.di()) + uint16(x))
		Put16(m.di(), uint16(res))
		return res
	}
}

func (m *Machine) addSi(rde Rde, x uint64) uint64 {
	switch rde.Eamode() {
	case modeLong:
		res := Get64(m.si()) + x
		Put64(m.si(), res)
		return res
	case modeLegacy:
		res := (uint64(Get32(m.si())) + x) & 0xffffffff
		Put64(m.si(), res)
		return res
	default:
		res := uint64(Get16(m.si()) + uint16(x))
		Put16(m.si(), uint16(res))
		return res
	}
}

func (m *Machine) readCx(rde Rde) uint64 {
	switch rde.Eamode() {
	case modeLong:
		return Get64(m.cx())
	case modeLegacy:
		return uint64(Get32(m.cx()))
	default:
		return uint64(Get16(m.cx()))
	}
}

func (m *Machine) subtractCx(rde Rde, x uint64) uint64 {
	cx := Get64(m.cx()) - x
	if rde.Eamode() != modeReal {
		if rde.Eamode() == modeLegacy {
			cx &= 0xffffffff
		}
		Put64(m.cx(), cx)
	} else {
		cx &= 0xffff
		Put16(m.cx(), uint16(cx))
	}
	return cx
}

func (m *Machine) stringOp(rde Rde, op int) {
	var buf [2][8]byte
	stop := false
	n := 1 << rde.RegLog2()
	log2 := rde.RegLog2()
	sgn := uint64(n)
	if GetFlag(m.flags, flagsDF) {
		sgn = -uint64(n)
	}
	for {
		if rde.Rep() != 0 && m.readCx(rde) == 0 {
			break
		}
		switch op {
		case stringCmps:
			kAlu[aluSub][log2](
				GetN(m.load(m.addressSi(rde), n, buf[0][:]), log2),
				GetN(m.load(m.addressDi(rde), n, buf[1][:]), log2),
				&m.flags)
			m.addDi(rde, sgn)
			m.addSi(rde, sgn)
			stop = rde.Rep() == 2 && GetFlag(m.flags, flagsZF) ||
				rde.Rep() == 3 && !GetFlag(m.flags, flagsZF)
		case stringMovs:
			v := m.addressDi(rde)
			src := m.load(m.addressSi(rde), n, buf[1][:])
			copy(m.beginStore(v, n), src)
			m.addDi(rde, sgn)
			m.addSi(rde, sgn)
			m.endStore()
		case stringStos:
			v := m.addressDi(rde)
			copy(m.beginStore(v, n), m.ax()[:n])
			m.addDi(rde, sgn)
			m.endStore()
		case stringLods:
			copy(m.ax()[:n], m.load(m.addressSi(rde), n, buf[1][:]))
			m.addSi(rde, sgn)
		case stringScas:
			kAlu[aluSub][log2](
				GetN(m.load(m.addressDi(rde), n, buf[1][:]), log2),
				GetN(m.ax(), log2), &m.flags)
			m.addDi(rde, sgn)
			stop = rde.Rep() == 2 && GetFlag(m.flags, flagsZF) ||
				rde.Rep() == 3 && !GetFlag(m.flags, flagsZF)
		case stringOuts:
			m.opOut(Get16(m.dx()),
				uint32(GetN(m.load(m.addressSi(rde), n, buf[1][:]), log2)))
			m.addSi(rde, sgn)
		case stringIns:
			v := m.addressDi(rde)
			PutN(m.beginStore(v, n), uint64(m.opIn(Get16(m.dx()))), log2)
			m.addDi(rde, sgn)
			m.endStore()
		}
		if rde.Rep() == 0 {
			break
		}
		m.subtractCx(rde, 1)
		if stop {
			break
		}
	}
}

// repMovsbEnhanced copies page-bounded runs for REP MOVSB with DF clear.
func (m *Machine) repMovsbEnhanced(rde Rde) {
	cx := m.readCx(rde)
	if cx == 0 {
		return
	}
	diactual := m.addressDi(rde)
	siactual := m.addressSi(rde)
	if diactual == siactual {
		return
	}
	m.setWriteAddr(diactual, int(cx))
	m.setReadAddr(siactual, int(cx))
	for {
		direal := m.resolveAddress(diactual)
		sireal := m.resolveAddress(siactual)
		n := cx
		if r := uint64(pageSize - diactual&pageMask); r < n {
			n = r
		}
		if r := uint64(pageSize - siactual&pageMask); r < n {
			n = r
		}
		copy(direal[:n], sireal[:n])
		diactual = int64(m.addDi(rde, n))
		siactual = int64(m.addSi(rde, n))
		if cx = m.subtractCx(rde, n); cx == 0 {
			return
		}
	}
}

// repStosbEnhanced fills page-bounded runs for REP STOSB with DF clear.
func (m *Machine) repStosbEnhanced(rde Rde) {
	cx := m.readCx(rde)
	if cx == 0 {
		return
	}
	diactual := m.addressDi(rde)
	m.setWriteAddr(diactual, int(cx))
	al := m.al()
	for {
		direal := m.resolveAddress(diactual)
		n := cx
		if r := uint64(pageSize - diactual&pageMask); r < n {
			n = r
		}
		for i := uint64(0); i < n; i++ {
			direal[i] = al
		}
		diactual = int64(m.addDi(rde, n))
		if cx = m.subtractCx(rde, n); cx == 0 {
			return
		}
	}
}

func opMovs(m *Machine, rde Rde) { m.stringOp(rde, stringMovs) }
func opCmps(m *Machine, rde Rde) { m.stringOp(rde, stringCmps) }
func opStos(m *Machine, rde Rde) { m.stringOp(rde, stringStos) }
func opLods(m *Machine, rde Rde) { m.stringOp(rde, stringLods) }
func opScas(m *Machine, rde Rde) { m.stringOp(rde, stringScas) }
func opIns(m *Machine, rde Rde)  { m.stringOp(rde, stringIns) }
func opOuts(m *Machine, rde Rde) { m.stringOp(rde, stringOuts) }

func opMovsb(m *Machine, rde Rde) {
	if rde.Rep() != 0 && !GetFlag(m.flags, flagsDF) {
		m.repMovsbEnhanced(rde)
	} else {
		opMovs(m, rde)
	}
}

func opStosb(m *Machine, rde Rde) {
	if rde.Rep() != 0 && !GetFlag(m.flags, flagsDF) {
		m.repStosbEnhanced(rde)
	} else {
		opStos(m, rde)
	}
}
