// ops_stack.go - Stack, call, and branch handlers
//
// Push/pop in every mode and operand size, near and far calls and returns,
// LEAVE/ENTER, the legacy PUSHA/POPA pair, jumps, conditional jumps, and the
// LOOP family. Stack writes go through the store protocol so a push that
// straddles a page commits atomically.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

var (
	kStackOsz = [2][3]uint8{{4, 4, 8}, {2, 2, 2}}
	kCallOsz  = [2][3]uint8{{4, 4, 8}, {2, 2, 8}}
)

func stackOsz(table *[2][3]uint8, rde Rde) int {
	osz := 0
	if rde.Osz() {
		osz = 1
	}
	return int(table[osz][rde.Mode()])
}

func writeStackWord(p []byte, osz int, x uint64) {
	switch osz {
	case 8:
		Put64(p, x)
	case 2:
		Put16(p, uint16(x))
	default:
		Put32(p, uint32(x))
	}
}

func readStackWord(p []byte, osz int) uint64 {
	switch osz {
	case 8:
		return Get64(p)
	case 2:
		return uint64(Get16(p))
	default:
		return uint64(Get32(p))
	}
}

func (m *Machine) pushN(rde Rde, x uint64, mode, osz int) {
	var v uint64
	switch mode {
	case modeReal:
		v = (uint64(Get32(m.sp())) - uint64(osz)) & 0xffff
		Put16(m.sp(), uint16(v))
		v += m.seg[segSs].base
	case modeLegacy:
		v = (uint64(Get32(m.sp())) - uint64(osz)) & 0xffffffff
		Put64(m.sp(), v)
		v += m.seg[segSs].base
	default:
		v = Get64(m.sp()) - uint64(osz)
		Put64(m.sp(), v)
	}
	w := m.beginStore(int64(v), osz)
	writeStackWord(w, osz, x)
	m.endStore()
}

func (m *Machine) push(rde Rde, x uint64) {
	m.pushN(rde, x, rde.Eamode(), stackOsz(&kStackOsz, rde))
}

func (m *Machine) popN(rde Rde, extra, osz int) uint64 {
	var v uint64
	switch rde.Eamode() {
	case modeLong:
		v = Get64(m.sp())
		Put64(m.sp(), v+uint64(osz+extra))
	case modeLegacy:
		v = uint64(Get32(m.sp()))
		Put64(m.sp(), (v+uint64(osz+extra))&0xffffffff)
		v += m.seg[segSs].base
	default:
		v = uint64(Get16(m.sp()))
		Put16(m.sp(), uint16(v+uint64(osz+extra)))
		v += m.seg[segSs].base
	}
	var buf [8]byte
	return readStackWord(m.load(int64(v), osz, buf[:]), osz)
}

func (m *Machine) pop(rde Rde, extra int) uint64 {
	return m.popN(rde, extra, stackOsz(&kStackOsz, rde))
}

func opPushZvq(m *Machine, rde Rde) {
	osz := stackOsz(&kStackOsz, rde)
	m.pushN(rde, readStackWord(m.regRexbSrm(rde), osz), rde.Eamode(), osz)
	if m.isMakingPath() && !rde.Osz() {
		m.jitFastPush(rde)
	}
}

func opPopZvq(m *Machine, rde Rde) {
	osz := stackOsz(&kStackOsz, rde)
	x := m.popN(rde, 0, osz)
	switch osz {
	case 8, 4:
		Put64(m.regRexbSrm(rde), x)
	case 2:
		Put16(m.regRexbSrm(rde), uint16(x))
	}
	if m.isMakingPath() && !rde.Osz() {
		m.jitFastPop(rde)
	}
}

func opPushEvq(m *Machine, rde Rde) {
	osz := stackOsz(&kStackOsz, rde)
	m.push(rde, readStackWord(m.modrmWordPointerRead(rde, osz), osz))
}

func opPopEvq(m *Machine, rde Rde) {
	osz := stackOsz(&kStackOsz, rde)
	x := m.pop(rde, 0)
	p := m.modrmWordPointerWrite(rde, osz)
	writeStackWord(p, osz, x)
	m.endStore()
}

func opPushImm(m *Machine, rde Rde) {
	m.push(rde, m.insn.uimm0)
}

func opPushSeg(m *Machine, rde Rde) {
	seg := rde.Opcode() >> 3 & 7
	m.push(rde, m.seg[seg].base>>4)
}

func opPopSeg(m *Machine, rde Rde) {
	seg := rde.Opcode() >> 3 & 7
	m.seg[seg].base = m.pop(rde, 0) << 4
}

func opCall(m *Machine, rde Rde, fn uint64) {
	m.pushN(rde, m.ip, rde.Mode(), stackOsz(&kCallOsz, rde))
	m.ip = fn
}

func opCallJvds(m *Machine, rde Rde) {
	opCall(m, rde, m.ip+uint64(m.insn.disp))
}

func (m *Machine) loadAddressFromMemory(rde Rde) uint64 {
	osz := stackOsz(&kCallOsz, rde)
	p := m.modrmWordPointerRead(rde, osz)
	return readStackWord(p, osz)
}

func opCallEq(m *Machine, rde Rde) {
	opCall(m, rde, m.loadAddressFromMemory(rde))
}

func opJmpEq(m *Machine, rde Rde) {
	m.ip = m.loadAddressFromMemory(rde)
}

func opLeave(m *Machine, rde Rde) {
	switch rde.Eamode() {
	case modeLong:
		Put64(m.sp(), Get64(m.bp()))
		Put64(m.bp(), m.pop(rde, 0))
	case modeLegacy:
		Put64(m.sp(), uint64(Get32(m.bp())))
		Put64(m.bp(), m.pop(rde, 0))
	default:
		Put16(m.sp(), Get16(m.bp()))
		Put16(m.bp(), uint16(m.pop(rde, 0)))
	}
}

func opRet(m *Machine, rde Rde) {
	m.ip = m.pop(rde, 0)
}

func opRetIw(m *Machine, rde Rde) {
	m.ip = m.pop(rde, int(m.insn.uimm0))
}

func opCallf(m *Machine, rde Rde) {
	m.push(rde, uint64(m.seg[segCs].sel))
	m.push(rde, m.ip)
	m.seg[segCs].sel = uint16(m.insn.uimm0)
	m.seg[segCs].base = m.insn.uimm0 << 4
	if rde.Osz() {
		m.ip = uint64(m.insn.disp) & 0xffff
	} else {
		m.ip = uint64(m.insn.disp) & 0xffffffff
	}
}

func opRetf(m *Machine, rde Rde) {
	ip := m.pop(rde, 0)
	sel := m.pop(rde, int(m.insn.uimm0))
	m.seg[segCs].sel = uint16(sel)
	m.seg[segCs].base = sel << 4
	m.ip = ip
}

func opJmpf(m *Machine, rde Rde) {
	m.seg[segCs].sel = uint16(m.insn.uimm0)
	m.seg[segCs].base = m.insn.uimm0 << 4
	m.ip = uint64(m.insn.disp)
}

// ----------------------------------------------------------------------------
// PUSHA and POPA (legacy modes only)
// ----------------------------------------------------------------------------

func (m *Machine) pushaN(rde Rde, n int) {
	order := [8]int{regDi, regSi, regBp, regSp, regBx, regDx, regCx, regAx}
	b := make([]byte, 8*n)
	for i, r := range order {
		copy(b[i*n:], m.reg[r][:n])
	}
	var v uint64
	if n == 2 {
		v = (uint64(Get16(m.sp())) - uint64(len(b))) & 0xffff
		Put16(m.sp(), uint16(v))
	} else {
		v = (uint64(Get32(m.sp())) - uint64(len(b))) & 0xffffffff
		Put64(m.sp(), v)
	}
	m.copyToGuest(int64(m.seg[segSs].base+v), b)
}

func (m *Machine) popaN(rde Rde, n int) {
	order := [8]int{regDi, regSi, regBp, regSp, regBx, regDx, regCx, regAx}
	b := make([]byte, 8*n)
	var v uint64
	if n == 2 {
		v = uint64(Get16(m.sp()))
	} else {
		v = uint64(Get32(m.sp()))
	}
	addr := int64(m.seg[segSs].base + v)
	if m.copyFromGuest(b, addr) != len(b) {
		m.ThrowSegmentationFault(addr)
	}
	if n == 2 {
		Put16(m.sp(), uint16((v+uint64(len(b)))&0xffff))
	} else {
		Put64(m.sp(), (v+uint64(len(b)))&0xffffffff)
	}
	for i, r := range order {
		if r == regSp {
			continue
		}
		copy(m.reg[r][:n], b[i*n:])
	}
}

func opPusha(m *Machine, rde Rde) {
	switch rde.Eamode() {
	case modeReal:
		m.pushaN(rde, 2)
	case modeLegacy:
		m.pushaN(rde, 4)
	default:
		m.OpUdImpl()
	}
}

func opPopa(m *Machine, rde Rde) {
	switch rde.Eamode() {
	case modeReal:
		m.popaN(rde, 2)
	case modeLegacy:
		m.popaN(rde, 4)
	default:
		m.OpUdImpl()
	}
}

// ----------------------------------------------------------------------------
// Jumps
// ----------------------------------------------------------------------------

func opJmp(m *Machine, rde Rde) {
	m.ip += uint64(m.insn.disp)
}

func opJcc(m *Machine, rde Rde) {
	if m.condition(rde.Opcode()) {
		opJmp(m, rde)
	}
}

func opJcxz(m *Machine, rde Rde) {
	if maskAddress(rde.Eamode(), Get64(m.cx())) == 0 {
		opJmp(m, rde)
	}
}

func (m *Machine) loop(rde Rde, cond bool) {
	cx := Get64(m.cx()) - 1
	if rde.Eamode() != modeReal {
		if rde.Eamode() == modeLegacy {
			cx &= 0xffffffff
		}
		Put64(m.cx(), cx)
	} else {
		cx &= 0xffff
		Put16(m.cx(), uint16(cx))
	}
	if cx != 0 && cond {
		opJmp(m, rde)
	}
}

func opLoope(m *Machine, rde Rde) {
	m.loop(rde, GetFlag(m.flags, flagsZF))
}

func opLoopne(m *Machine, rde Rde) {
	m.loop(rde, !GetFlag(m.flags, flagsZF))
}

func opLoop1(m *Machine, rde Rde) {
	m.loop(rde, true)
}
