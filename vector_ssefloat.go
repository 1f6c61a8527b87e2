// vector_ssefloat.go - Packed and scalar floating point kernels
//
// The PS/PD/SS/SD arithmetic family keyed off the rep and osz prefixes,
// the shuffle group with explicit imm8 index decode, the CMPPS/CMPPD
// predicates, and COMISS/UCOMISS flag production with the MXCSR invalid
// path.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "math"

func f32(p []byte) float32     { return math.Float32frombits(Get32(p)) }
func putF32(p []byte, v float32) { Put32(p, math.Float32bits(v)) }
func f64(p []byte) float64     { return math.Float64frombits(Get64(p)) }
func putF64(p []byte, v float64) { Put64(p, math.Float64bits(v)) }

func pshufw(b, a []byte, m int) {
	var t [8]byte
	for i := 0; i < 4; i++ {
		copy(t[i*2:], a[(m>>(i*2)&3)*2:(m>>(i*2)&3)*2+2])
	}
	copy(b[:8], t[:])
}

func pshufd(b, a []byte, m int) {
	var t [16]byte
	for i := 0; i < 4; i++ {
		copy(t[i*4:], a[(m>>(i*2)&3)*4:(m>>(i*2)&3)*4+4])
	}
	copy(b[:16], t[:])
}

func pshuflw(b, a []byte, m int) {
	var t [16]byte
	for i := 0; i < 4; i++ {
		copy(t[i*2:], a[(m>>(i*2)&3)*2:(m>>(i*2)&3)*2+2])
	}
	copy(t[8:], a[8:16])
	copy(b[:16], t[:])
}

func pshufhw(b, a []byte, m int) {
	var t [16]byte
	copy(t[:8], a[:8])
	for i := 0; i < 4; i++ {
		copy(t[8+i*2:], a[8+(m>>(i*2)&3)*2:8+(m>>(i*2)&3)*2+2])
	}
	copy(b[:16], t[:])
}

// opShuffle covers 0F 70: PSHUFW, PSHUFD, PSHUFLW, PSHUFHW.
func opShuffle(m *Machine, rde Rde) {
	imm := int(m.insn.uimm0)
	osz := 0
	if rde.Osz() {
		osz = 1
	}
	switch rde.Rep() | osz {
	case 0:
		var q [8]byte
		copy(q[:], m.modrmXmmPointerRead(rde, 8))
		pshufw(m.xmmRexrReg(rde)[:8], q[:], imm)
	case 1:
		var x [16]byte
		copy(x[:], m.modrmXmmPointerRead(rde, 16))
		pshufd(m.xmmRexrReg(rde), x[:], imm)
	case 2:
		var x [16]byte
		copy(x[:], m.modrmXmmPointerRead(rde, 16))
		pshuflw(m.xmmRexrReg(rde), x[:], imm)
	default:
		var x [16]byte
		copy(x[:], m.modrmXmmPointerRead(rde, 16))
		pshufhw(m.xmmRexrReg(rde), x[:], imm)
	}
}

func opShufpsd(m *Machine, rde Rde) {
	imm := int(m.insn.uimm0)
	q := m.modrmXmmPointerRead(rde, 16)
	p := m.xmmRexrReg(rde)
	if rde.Osz() {
		var z [2]uint64
		y := [2]uint64{Get64(q), Get64(q[8:])}
		x := [2]uint64{Get64(p), Get64(p[8:])}
		z[0] = x[imm&1]
		z[1] = y[imm>>1&1]
		Put64(p, z[0])
		Put64(p[8:], z[1])
	} else {
		var x, y, z [4]uint32
		for i := 0; i < 4; i++ {
			y[i] = Get32(q[i*4:])
			x[i] = Get32(p[i*4:])
		}
		z[0] = x[imm&3]
		z[1] = x[imm>>2&3]
		z[2] = y[imm>>4&3]
		z[3] = y[imm>>6&3]
		for i := 0; i < 4; i++ {
			Put32(p[i*4:], z[i])
		}
	}
}

func opUnpcklpsd(m *Machine, rde Rde) {
	a := m.xmmRexrReg(rde)
	b := m.modrmXmmPointerRead(rde, 8)
	if rde.Osz() {
		copy(a[8:16], b[:8])
	} else {
		copy(a[12:16], b[4:8])
		copy(a[8:12], a[4:8])
		copy(a[4:8], b[0:4])
	}
}

func opUnpckhpsd(m *Machine, rde Rde) {
	a := m.xmmRexrReg(rde)
	b := m.modrmXmmPointerRead(rde, 16)
	if rde.Osz() {
		copy(a[0:8], b[8:16])
		copy(a[8:16], b[8:16])
	} else {
		copy(a[0:4], a[8:12])
		copy(a[4:8], b[8:12])
		copy(a[8:12], a[12:16])
		copy(a[12:16], b[12:16])
	}
}

func opPextrwGdqpUdqIb(m *Machine, rde Rde) {
	i := int(m.insn.uimm0)
	if rde.Osz() {
		i &= 7
	} else {
		i &= 3
	}
	Put64(m.regRexrReg(rde), uint64(Get16(m.xmmRexbRm(rde)[i*2:])))
}

func opPinsrwVdqEwIb(m *Machine, rde Rde) {
	i := int(m.insn.uimm0)
	if rde.Osz() {
		i &= 7
	} else {
		i &= 3
	}
	Put16(m.xmmRexrReg(rde)[i*2:], Get16(m.modrmWordPointerRead(rde, 2)))
}

func opPmovmskbGdqpNqUdq(m *Machine, rde Rde) {
	p := m.xmmRexbRm(rde)
	n := 8
	if rde.Osz() {
		n = 16
	}
	var mask uint32
	for i := 0; i < n; i++ {
		mask |= uint32(p[i]>>7) << uint(i)
	}
	Put64(m.regRexrReg(rde), uint64(mask))
}

// ----------------------------------------------------------------------------
// Arithmetic
// ----------------------------------------------------------------------------

// opPsd applies a scalar pair of kernels per the SS/SD/PS/PD prefix rules.
func (m *Machine) opPsd(rde Rde,
	fs func(x, y float32) float32, fd func(x, y float64) float64) {
	switch {
	case rde.Rep() == 2: // sd
		y := f64(m.modrmXmmPointerRead(rde, 8))
		p := m.xmmRexrReg(rde)
		putF64(p, fd(f64(p), y))
	case rde.Rep() == 3: // ss
		y := f32(m.modrmXmmPointerRead(rde, 4))
		p := m.xmmRexrReg(rde)
		putF32(p, fs(f32(p), y))
	case rde.Osz(): // pd
		q := m.modrmXmmPointerRead(rde, 16)
		p := m.xmmRexrReg(rde)
		putF64(p, fd(f64(p), f64(q)))
		putF64(p[8:], fd(f64(p[8:]), f64(q[8:])))
	default: // ps
		q := m.modrmXmmPointerRead(rde, 16)
		p := m.xmmRexrReg(rde)
		for i := 0; i < 4; i++ {
			putF32(p[i*4:], fs(f32(p[i*4:]), f32(q[i*4:])))
		}
	}
}

func opAddpsd(m *Machine, rde Rde) {
	m.opPsd(rde,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

func opSubpsd(m *Machine, rde Rde) {
	m.opPsd(rde,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

func opMulpsd(m *Machine, rde Rde) {
	m.opPsd(rde,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

func opDivpsd(m *Machine, rde Rde) {
	m.opPsd(rde,
		func(x, y float32) float32 { return x / y },
		func(x, y float64) float64 { return x / y })
}

func opMinpsd(m *Machine, rde Rde) {
	m.opPsd(rde,
		func(x, y float32) float32 {
			if y < x {
				return y
			}
			return x
		},
		func(x, y float64) float64 {
			if y < x {
				return y
			}
			return x
		})
}

func opMaxpsd(m *Machine, rde Rde) {
	m.opPsd(rde,
		func(x, y float32) float32 {
			if y > x {
				return y
			}
			return x
		},
		func(x, y float64) float64 {
			if y > x {
				return y
			}
			return x
		})
}

func opSqrtpsd(m *Machine, rde Rde) {
	switch {
	case rde.Rep() == 2:
		y := f64(m.modrmXmmPointerRead(rde, 8))
		putF64(m.xmmRexrReg(rde), math.Sqrt(y))
	case rde.Rep() == 3:
		y := f32(m.modrmXmmPointerRead(rde, 4))
		putF32(m.xmmRexrReg(rde), float32(math.Sqrt(float64(y))))
	case rde.Osz():
		q := m.modrmXmmPointerRead(rde, 16)
		p := m.xmmRexrReg(rde)
		putF64(p, math.Sqrt(f64(q)))
		putF64(p[8:], math.Sqrt(f64(q[8:])))
	default:
		q := m.modrmXmmPointerRead(rde, 16)
		p := m.xmmRexrReg(rde)
		for i := 0; i < 4; i++ {
			putF32(p[i*4:], float32(math.Sqrt(float64(f32(q[i*4:])))))
		}
	}
}

func opRsqrtps(m *Machine, rde Rde) {
	if rde.Rep() == 3 {
		y := f32(m.modrmXmmPointerRead(rde, 4))
		putF32(m.xmmRexrReg(rde), float32(1/math.Sqrt(float64(y))))
		return
	}
	q := m.modrmXmmPointerRead(rde, 16)
	p := m.xmmRexrReg(rde)
	for i := 0; i < 4; i++ {
		putF32(p[i*4:], float32(1/math.Sqrt(float64(f32(q[i*4:])))))
	}
}

func opRcpps(m *Machine, rde Rde) {
	if rde.Rep() == 3 {
		y := f32(m.modrmXmmPointerRead(rde, 4))
		putF32(m.xmmRexrReg(rde), 1/y)
		return
	}
	q := m.modrmXmmPointerRead(rde, 16)
	p := m.xmmRexrReg(rde)
	for i := 0; i < 4; i++ {
		putF32(p[i*4:], 1/f32(q[i*4:]))
	}
}

// Bitwise operations over the full 128 bits regardless of PS/PD.

func opAndpsd(m *Machine, rde Rde) {
	q := m.modrmXmmPointerRead(rde, 16)
	p := m.xmmRexrReg(rde)
	Put64(p, Get64(p)&Get64(q))
	Put64(p[8:], Get64(p[8:])&Get64(q[8:]))
}

func opAndnpsd(m *Machine, rde Rde) {
	q := m.modrmXmmPointerRead(rde, 16)
	p := m.xmmRexrReg(rde)
	Put64(p, ^Get64(p)&Get64(q))
	Put64(p[8:], ^Get64(p[8:])&Get64(q[8:]))
}

func opOrpsd(m *Machine, rde Rde) {
	q := m.modrmXmmPointerRead(rde, 16)
	p := m.xmmRexrReg(rde)
	Put64(p, Get64(p)|Get64(q))
	Put64(p[8:], Get64(p[8:])|Get64(q[8:]))
}

func opXorpsd(m *Machine, rde Rde) {
	q := m.modrmXmmPointerRead(rde, 16)
	p := m.xmmRexrReg(rde)
	Put64(p, Get64(p)^Get64(q))
	Put64(p[8:], Get64(p[8:])^Get64(q[8:]))
}

// ----------------------------------------------------------------------------
// Horizontal and alternating float operations (SSE3)
// ----------------------------------------------------------------------------

func opHaddpsd(m *Machine, rde Rde) {
	p := m.xmmRexrReg(rde)
	if rde.Rep() == 2 {
		q := m.modrmXmmPointerRead(rde, 16)
		z := [4]float32{f32(p) + f32(p[4:]), f32(p[8:]) + f32(p[12:]),
			f32(q) + f32(q[4:]), f32(q[8:]) + f32(q[12:])}
		for i := 0; i < 4; i++ {
			putF32(p[i*4:], z[i])
		}
	} else if rde.Osz() {
		q := m.modrmXmmPointerRead(rde, 16)
		z := [2]float64{f64(p) + f64(p[8:]), f64(q) + f64(q[8:])}
		putF64(p, z[0])
		putF64(p[8:], z[1])
	} else {
		m.OpUdImpl()
	}
}

func opHsubpsd(m *Machine, rde Rde) {
	p := m.xmmRexrReg(rde)
	if rde.Rep() == 2 {
		q := m.modrmXmmPointerRead(rde, 16)
		z := [4]float32{f32(p) - f32(p[4:]), f32(p[8:]) - f32(p[12:]),
			f32(q) - f32(q[4:]), f32(q[8:]) - f32(q[12:])}
		for i := 0; i < 4; i++ {
			putF32(p[i*4:], z[i])
		}
	} else if rde.Osz() {
		q := m.modrmXmmPointerRead(rde, 16)
		z := [2]float64{f64(p) - f64(p[8:]), f64(q) - f64(q[8:])}
		putF64(p, z[0])
		putF64(p[8:], z[1])
	} else {
		m.OpUdImpl()
	}
}

func opAddsubpsd(m *Machine, rde Rde) {
	p := m.xmmRexrReg(rde)
	if rde.Rep() == 2 {
		q := m.modrmXmmPointerRead(rde, 16)
		z := [4]float32{f32(p) - f32(q), f32(p[4:]) + f32(q[4:]),
			f32(p[8:]) - f32(q[8:]), f32(p[12:]) + f32(q[12:])}
		for i := 0; i < 4; i++ {
			putF32(p[i*4:], z[i])
		}
	} else if rde.Osz() {
		q := m.modrmXmmPointerRead(rde, 16)
		z := [2]float64{f64(p) - f64(q), f64(p[8:]) + f64(q[8:])}
		putF64(p, z[0])
		putF64(p[8:], z[1])
	} else {
		m.OpUdImpl()
	}
}

// ----------------------------------------------------------------------------
// Comparisons
// ----------------------------------------------------------------------------

// cmpFloatPredicate evaluates the CMPPS/CMPPD imm8 predicate.
func cmpFloatPredicate(imm int, x, y float64) bool {
	switch imm & 7 {
	case 0:
		return x == y
	case 1:
		return x < y
	case 2:
		return x <= y
	case 3:
		return math.IsNaN(x) || math.IsNaN(y)
	case 4:
		return x != y
	case 5:
		return x >= y
	case 6:
		return x > y
	default:
		return !(math.IsNaN(x) || math.IsNaN(y))
	}
}

func cmpMask32(imm int, x, y float32) uint32 {
	if cmpFloatPredicate(imm, float64(x), float64(y)) {
		return 0xffffffff
	}
	return 0
}

func cmpMask64(imm int, x, y float64) uint64 {
	if cmpFloatPredicate(imm, x, y) {
		return 0xffffffffffffffff
	}
	return 0
}

func opCmppsd(m *Machine, rde Rde) {
	imm := int(m.insn.uimm0)
	switch {
	case rde.Rep() == 2:
		p := m.xmmRexrReg(rde)
		y := f64(m.modrmXmmPointerRead(rde, 8))
		Put64(p, cmpMask64(imm, f64(p), y))
	case rde.Rep() == 3:
		p := m.xmmRexrReg(rde)
		y := f32(m.modrmXmmPointerRead(rde, 4))
		Put32(p, cmpMask32(imm, f32(p), y))
	case rde.Osz():
		p := m.xmmRexrReg(rde)
		q := m.modrmXmmPointerRead(rde, 16)
		Put64(p, cmpMask64(imm, f64(p), f64(q)))
		Put64(p[8:], cmpMask64(imm, f64(p[8:]), f64(q[8:])))
	default:
		p := m.xmmRexrReg(rde)
		q := m.modrmXmmPointerRead(rde, 16)
		for i := 0; i < 4; i++ {
			Put32(p[i*4:], cmpMask32(imm, f32(p[i*4:]), f32(q[i*4:])))
		}
	}
}

// opComissVsWs covers UCOMISS/UCOMISD (0F 2E) and COMISS/COMISD (0F 2F).
// The ordered forms raise the SIMD invalid exception on NaN when unmasked.
func opComissVsWs(m *Machine, rde Rde) {
	var zf, cf, pf, ie bool
	if !rde.Osz() {
		x := f32(m.xmmRexrReg(rde))
		y := f32(m.modrmXmmPointerRead(rde, 4))
		if !isNaN32(x) && !isNaN32(y) {
			zf = x == y
			cf = x < y
		} else {
			zf, cf, pf, ie = true, true, true, true
		}
	} else {
		x := f64(m.xmmRexrReg(rde))
		y := f64(m.modrmXmmPointerRead(rde, 8))
		if !math.IsNaN(x) && !math.IsNaN(y) {
			zf = x == y
			cf = x < y
		} else {
			zf, cf, pf, ie = true, true, true, true
		}
	}
	m.flags = SetFlag(m.flags, flagsZF, zf)
	m.flags = SetFlag(m.flags, flagsPF, pf)
	m.flags = SetFlag(m.flags, flagsCF, cf)
	m.flags = SetFlag(m.flags, flagsSF, false)
	m.flags = SetFlag(m.flags, flagsOF, false)
	if rde.Opcode()&1 != 0 {
		m.mxcsr &^= mxcsrIe
		if ie {
			m.mxcsr |= mxcsrIe
			if m.mxcsr&mxcsrIm == 0 {
				m.HaltMachine(machineSimdException)
			}
		}
	}
}

func isNaN32(x float32) bool {
	return x != x
}
