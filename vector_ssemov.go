// vector_ssemov.go - Vector load/store and register move forms
//
// The 0F 10-17, 0F 28-2B, 0F 6E/6F, 0F 7E/7F, 0F D6, 0F E7, and 0F F7
// encodings, keyed off the prefix state. Aligned and unaligned forms are
// not distinguished beyond the alignment trap the hardware would skip in
// user mode; non-temporal stores behave as plain stores.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

func (m *Machine) xmmCopy(dst, src []byte, n int) {
	var t [16]byte
	copy(t[:n], src[:n])
	copy(dst[:n], t[:n])
}

// opMov0f10 is MOVUPS/MOVUPD/MOVSS/MOVSD load forms.
func opMov0f10(m *Machine, rde Rde) {
	switch {
	case rde.Rep() == 3: // movss
		if rde.IsModrmRegister() {
			copy(m.xmmRexrReg(rde)[:4], m.xmmRexbRm(rde)[:4])
		} else {
			p := m.xmmRexrReg(rde)
			copy(p[:4], m.modrmXmmPointerRead(rde, 4)[:4])
			for i := 4; i < 16; i++ {
				p[i] = 0
			}
		}
	case rde.Rep() == 2: // movsd
		if rde.IsModrmRegister() {
			copy(m.xmmRexrReg(rde)[:8], m.xmmRexbRm(rde)[:8])
		} else {
			p := m.xmmRexrReg(rde)
			copy(p[:8], m.modrmXmmPointerRead(rde, 8)[:8])
			for i := 8; i < 16; i++ {
				p[i] = 0
			}
		}
	default: // movups, movupd
		m.xmmCopy(m.xmmRexrReg(rde), m.modrmXmmPointerRead(rde, 16), 16)
	}
}

// opMovWpsVps is the store direction of 0F 11/29.
func opMovWpsVps(m *Machine, rde Rde) {
	switch {
	case rde.Rep() == 3:
		p := m.modrmXmmPointerWrite(rde, 4)
		copy(p[:4], m.xmmRexrReg(rde)[:4])
		m.endStore()
	case rde.Rep() == 2:
		p := m.modrmXmmPointerWrite(rde, 8)
		copy(p[:8], m.xmmRexrReg(rde)[:8])
		m.endStore()
	default:
		p := m.modrmXmmPointerWrite(rde, 16)
		m.xmmCopy(p, m.xmmRexrReg(rde), 16)
		m.endStore()
	}
}

// opMov0f12 is MOVLPS/MOVLPD/MOVHLPS/MOVDDUP/MOVSLDUP.
func opMov0f12(m *Machine, rde Rde) {
	p := m.xmmRexrReg(rde)
	switch {
	case rde.Rep() == 2: // movddup
		q := m.modrmXmmPointerRead(rde, 8)
		copy(p[:8], q[:8])
		copy(p[8:16], p[:8])
	case rde.Rep() == 3: // movsldup
		q := m.modrmXmmPointerRead(rde, 16)
		copy(p[0:4], q[0:4])
		copy(p[4:8], q[0:4])
		copy(p[8:12], q[8:12])
		copy(p[12:16], q[8:12])
	case rde.IsModrmRegister(): // movhlps
		copy(p[:8], m.xmmRexbRm(rde)[8:16])
	default: // movlps, movlpd
		copy(p[:8], m.modrmXmmPointerRead(rde, 8)[:8])
	}
}

func opMov0f13(m *Machine, rde Rde) {
	p := m.modrmXmmPointerWrite(rde, 8)
	copy(p[:8], m.xmmRexrReg(rde)[:8])
	m.endStore()
}

// opMov0f16 is MOVHPS/MOVHPD/MOVLHPS/MOVSHDUP.
func opMov0f16(m *Machine, rde Rde) {
	p := m.xmmRexrReg(rde)
	switch {
	case rde.Rep() == 3: // movshdup
		q := m.modrmXmmPointerRead(rde, 16)
		copy(p[0:4], q[4:8])
		copy(p[4:8], q[4:8])
		copy(p[8:12], q[12:16])
		copy(p[12:16], q[12:16])
	case rde.IsModrmRegister(): // movlhps
		copy(p[8:16], m.xmmRexbRm(rde)[:8])
	default: // movhps, movhpd
		copy(p[8:16], m.modrmXmmPointerRead(rde, 8)[:8])
	}
}

func opMov0f17(m *Machine, rde Rde) {
	p := m.modrmXmmPointerWrite(rde, 8)
	copy(p[:8], m.xmmRexrReg(rde)[8:16])
	m.endStore()
}

// opMov0f28 is the aligned MOVAPS/MOVAPD load.
func opMov0f28(m *Machine, rde Rde) {
	m.xmmCopy(m.xmmRexrReg(rde), m.modrmXmmPointerRead(rde, 16), 16)
}

// opMov0f2b is MOVNTPS/MOVNTPD.
func opMov0f2b(m *Machine, rde Rde) {
	p := m.modrmXmmPointerWrite(rde, 16)
	m.xmmCopy(p, m.xmmRexrReg(rde), 16)
	m.endStore()
}

// opMov0f6e is MOVD/MOVQ into a vector register.
func opMov0f6e(m *Machine, rde Rde) {
	p := m.xmmRexrReg(rde)
	if !rde.Osz() {
		p = m.xmm[rde.ModrmReg()][:]
	}
	if rde.Rexw() {
		Put64(p, Get64(m.modrmWordPointerRead(rde, 8)))
	} else {
		Put64(p, uint64(Get32(m.modrmWordPointerRead(rde, 4))))
	}
	if rde.Osz() {
		Put64(p[8:], 0)
	}
}

// opMov0f6f is MOVQ/MOVDQA/MOVDQU loads.
func opMov0f6f(m *Machine, rde Rde) {
	if rde.Osz() || rde.Rep() == 3 {
		m.xmmCopy(m.xmmRexrReg(rde), m.modrmXmmPointerRead(rde, 16), 16)
	} else {
		copy(m.mmReg(rde), m.modrmMmPointerRead(rde, 8)[:8])
	}
}

// opMov0f7e is MOVD/MOVQ out of a vector register, or the F3 MOVQ load.
func opMov0f7e(m *Machine, rde Rde) {
	if rde.Rep() == 3 {
		p := m.xmmRexrReg(rde)
		copy(p[:8], m.modrmXmmPointerRead(rde, 8)[:8])
		Put64(p[8:], 0)
		return
	}
	src := m.xmmRexrReg(rde)
	if !rde.Osz() {
		src = m.xmm[rde.ModrmReg()][:]
	}
	if rde.Rexw() {
		p := m.modrmWordPointerWrite(rde, 8)
		Put64(p, Get64(src))
	} else {
		p := m.modrmWordPointerWrite(rde, 4)
		if rde.IsModrmRegister() {
			Put64(p, uint64(Get32(src)))
		} else {
			Put32(p, Get32(src))
		}
	}
	m.endStore()
}

// opMov0f7f is MOVQ/MOVDQA/MOVDQU stores.
func opMov0f7f(m *Machine, rde Rde) {
	if rde.Osz() || rde.Rep() == 3 {
		p := m.modrmXmmPointerWrite(rde, 16)
		m.xmmCopy(p, m.xmmRexrReg(rde), 16)
	} else {
		p := m.modrmMmPointerWrite(rde, 8)
		copy(p[:8], m.xmm[rde.ModrmReg()][:8])
	}
	m.endStore()
}

// opMov0fD6 is MOVQ to the low half, zeroing the rest on register targets.
func opMov0fD6(m *Machine, rde Rde) {
	p := m.modrmXmmPointerWrite(rde, 8)
	copy(p[:8], m.xmmRexrReg(rde)[:8])
	if rde.IsModrmRegister() {
		for i := 8; i < 16; i++ {
			m.xmmRexbRm(rde)[i] = 0
		}
	}
	m.endStore()
}

// opMov0fE7 is MOVNTQ/MOVNTDQ.
func opMov0fE7(m *Machine, rde Rde) {
	if rde.IsModrmRegister() {
		m.OpUdImpl()
	}
	if rde.Osz() {
		p := m.modrmXmmPointerWrite(rde, 16)
		m.xmmCopy(p, m.xmmRexrReg(rde), 16)
	} else {
		p := m.modrmMmPointerWrite(rde, 8)
		copy(p[:8], m.xmm[rde.ModrmReg()][:8])
	}
	m.endStore()
}

func opLddquVdqMdq(m *Machine, rde Rde) {
	m.xmmCopy(m.xmmRexrReg(rde), m.modrmXmmPointerRead(rde, 16), 16)
}

func opMovntdqaVdqMdq(m *Machine, rde Rde) {
	if !rde.Osz() || rde.IsModrmRegister() {
		m.OpUdImpl()
	}
	m.xmmCopy(m.xmmRexrReg(rde), m.modrmXmmPointerRead(rde, 16), 16)
}

func opMovntiMdqpGdqp(m *Machine, rde Rde) {
	if rde.Rexw() {
		Put64(m.modrmWordPointerWrite(rde, 8), Get64(m.regRexrReg(rde)))
	} else {
		Put32(m.modrmWordPointerWrite(rde, 4), Get32(m.regRexrReg(rde)))
	}
	m.endStore()
}

// opMaskMovDiXmmRegXmmRm stores the byte lanes whose mask high bit is set
// to [rDI].
func opMaskMovDiXmmRegXmmRm(m *Machine, rde Rde) {
	n := 8
	if rde.Osz() {
		n = 16
	}
	src := m.xmmRexrReg(rde)
	mask := m.xmmRexbRm(rde)
	v := m.addressDi(rde)
	p := m.beginStore(v, n)
	var cur [16]byte
	copy(cur[:n], m.load(v, n, cur[:n]))
	for i := 0; i < n; i++ {
		if mask[i]&0x80 != 0 {
			p[i] = src[i]
		} else {
			p[i] = cur[i]
		}
	}
	m.endStore()
}
