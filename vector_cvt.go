// vector_cvt.go - SSE conversion kernels
//
// The 0F 2A/2C/2D/5A/5B/E6 conversion groups between integers, singles,
// and doubles. Rounding honours the MXCSR RC field; the truncating forms
// force round-to-zero regardless.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "math"

// MXCSR bits.
const (
	mxcsrIe = 1 << 0
	mxcsrZe = 1 << 2
	mxcsrOe = 1 << 3
	mxcsrPe = 1 << 5
	mxcsrIm = 1 << 7
	mxcsrZm = 1 << 9
	mxcsrOm = 1 << 10
	mxcsrPm = 1 << 12
	mxcsrRc = 3 << 13
)

// sseRound rounds per MXCSR.RC.
func (m *Machine) sseRound(x float64) float64 {
	switch m.mxcsr & mxcsrRc >> 13 {
	case 0:
		return math.RoundToEven(x)
	case 1:
		return math.Floor(x)
	case 2:
		return math.Ceil(x)
	default:
		return math.Trunc(x)
	}
}

func cvtInt32(x float64) int32 {
	if math.IsNaN(x) || x < math.MinInt32 || x > math.MaxInt32 {
		return math.MinInt32
	}
	return int32(x)
}

func cvtInt64(x float64) int64 {
	if math.IsNaN(x) || x < math.MinInt64 || x >= math.MaxInt64 {
		return math.MinInt64
	}
	return int64(x)
}

func opCvt0f2a(m *Machine, rde Rde) {
	switch {
	case rde.Rep() == 3: // cvtsi2ss
		if rde.Rexw() {
			putF32(m.xmmRexrReg(rde),
				float32(int64(Get64(m.modrmWordPointerRead(rde, 8)))))
		} else {
			putF32(m.xmmRexrReg(rde),
				float32(int32(Get32(m.modrmWordPointerRead(rde, 4)))))
		}
	case rde.Rep() == 2: // cvtsi2sd
		if rde.Rexw() {
			putF64(m.xmmRexrReg(rde),
				float64(int64(Get64(m.modrmWordPointerRead(rde, 8)))))
		} else {
			putF64(m.xmmRexrReg(rde),
				float64(int32(Get32(m.modrmWordPointerRead(rde, 4)))))
		}
	case rde.Osz(): // cvtpi2pd
		q := m.modrmMmPointerRead(rde, 8)
		p := m.xmmRexrReg(rde)
		putF64(p, float64(int32(Get32(q))))
		putF64(p[8:], float64(int32(Get32(q[4:]))))
	default: // cvtpi2ps
		q := m.modrmMmPointerRead(rde, 8)
		p := m.xmmRexrReg(rde)
		putF32(p, float32(int32(Get32(q))))
		putF32(p[4:], float32(int32(Get32(q[4:]))))
	}
}

// opCvtt0f2c is the truncating scalar/packed to-integer family.
func opCvtt0f2c(m *Machine, rde Rde) {
	switch {
	case rde.Rep() == 3: // cvttss2si
		x := float64(f32(m.modrmXmmPointerRead(rde, 4)))
		if rde.Rexw() {
			putCvtResult(m, rde, cvtInt64(math.Trunc(x)))
		} else {
			putCvtResult(m, rde, int64(cvtInt32(math.Trunc(x))))
		}
	case rde.Rep() == 2: // cvttsd2si
		x := f64(m.modrmXmmPointerRead(rde, 8))
		if rde.Rexw() {
			putCvtResult(m, rde, cvtInt64(math.Trunc(x)))
		} else {
			putCvtResult(m, rde, int64(cvtInt32(math.Trunc(x))))
		}
	case rde.Osz(): // cvttpd2pi
		q := m.modrmXmmPointerRead(rde, 16)
		p := m.mmReg(rde)
		Put32(p, uint32(cvtInt32(math.Trunc(f64(q)))))
		Put32(p[4:], uint32(cvtInt32(math.Trunc(f64(q[8:])))))
	default: // cvttps2pi
		q := m.modrmXmmPointerRead(rde, 8)
		p := m.mmReg(rde)
		Put32(p, uint32(cvtInt32(math.Trunc(float64(f32(q))))))
		Put32(p[4:], uint32(cvtInt32(math.Trunc(float64(f32(q[4:]))))))
	}
}

func putCvtResult(m *Machine, rde Rde, n int64) {
	if !rde.Rexw() {
		n &= 0xffffffff
	}
	Put64(m.regRexrReg(rde), uint64(n))
}

func opCvt0f2d(m *Machine, rde Rde) {
	switch {
	case rde.Rep() == 3: // cvtss2si
		x := float64(f32(m.modrmXmmPointerRead(rde, 4)))
		if rde.Rexw() {
			putCvtResult(m, rde, cvtInt64(m.sseRound(x)))
		} else {
			putCvtResult(m, rde, int64(cvtInt32(m.sseRound(x))))
		}
	case rde.Rep() == 2: // cvtsd2si
		x := f64(m.modrmXmmPointerRead(rde, 8))
		if rde.Rexw() {
			putCvtResult(m, rde, cvtInt64(m.sseRound(x)))
		} else {
			putCvtResult(m, rde, int64(cvtInt32(m.sseRound(x))))
		}
	case rde.Osz(): // cvtpd2pi
		q := m.modrmXmmPointerRead(rde, 16)
		p := m.mmReg(rde)
		Put32(p, uint32(cvtInt32(m.sseRound(f64(q)))))
		Put32(p[4:], uint32(cvtInt32(m.sseRound(f64(q[8:])))))
	default: // cvtps2pi
		q := m.modrmXmmPointerRead(rde, 8)
		p := m.mmReg(rde)
		Put32(p, uint32(cvtInt32(m.sseRound(float64(f32(q))))))
		Put32(p[4:], uint32(cvtInt32(m.sseRound(float64(f32(q[4:]))))))
	}
}

// opCvt0f5a converts between singles and doubles.
func opCvt0f5a(m *Machine, rde Rde) {
	switch {
	case rde.Rep() == 3: // cvtss2sd
		putF64(m.xmmRexrReg(rde), float64(f32(m.modrmXmmPointerRead(rde, 4))))
	case rde.Rep() == 2: // cvtsd2ss
		putF32(m.xmmRexrReg(rde), float32(f64(m.modrmXmmPointerRead(rde, 8))))
	case rde.Osz(): // cvtpd2ps
		q := m.modrmXmmPointerRead(rde, 16)
		p := m.xmmRexrReg(rde)
		a := float32(f64(q))
		b := float32(f64(q[8:]))
		putF32(p, a)
		putF32(p[4:], b)
		Put64(p[8:], 0)
	default: // cvtps2pd
		q := m.modrmXmmPointerRead(rde, 8)
		p := m.xmmRexrReg(rde)
		a := float64(f32(q))
		b := float64(f32(q[4:]))
		putF64(p, a)
		putF64(p[8:], b)
	}
}

// opCvt0f5b converts between packed dwords and packed singles.
func opCvt0f5b(m *Machine, rde Rde) {
	p := m.xmmRexrReg(rde)
	q := m.modrmXmmPointerRead(rde, 16)
	switch {
	case rde.Rep() == 3: // cvttps2dq
		for i := 0; i < 4; i++ {
			Put32(p[i*4:], uint32(cvtInt32(math.Trunc(float64(f32(q[i*4:]))))))
		}
	case rde.Osz(): // cvtps2dq
		for i := 0; i < 4; i++ {
			Put32(p[i*4:], uint32(cvtInt32(m.sseRound(float64(f32(q[i*4:]))))))
		}
	default: // cvtdq2ps
		for i := 0; i < 4; i++ {
			putF32(p[i*4:], float32(int32(Get32(q[i*4:]))))
		}
	}
}

// opCvt0fE6 converts between packed doubles and packed dwords.
func opCvt0fE6(m *Machine, rde Rde) {
	p := m.xmmRexrReg(rde)
	switch {
	case rde.Rep() == 3: // cvtdq2pd
		q := m.modrmXmmPointerRead(rde, 8)
		a := float64(int32(Get32(q)))
		b := float64(int32(Get32(q[4:])))
		putF64(p, a)
		putF64(p[8:], b)
	case rde.Rep() == 2: // cvtpd2dq
		q := m.modrmXmmPointerRead(rde, 16)
		Put32(p, uint32(cvtInt32(m.sseRound(f64(q)))))
		Put32(p[4:], uint32(cvtInt32(m.sseRound(f64(q[8:])))))
		Put64(p[8:], 0)
	case rde.Osz(): // cvttpd2dq
		q := m.modrmXmmPointerRead(rde, 16)
		Put32(p, uint32(cvtInt32(math.Trunc(f64(q)))))
		Put32(p[4:], uint32(cvtInt32(math.Trunc(f64(q[8:])))))
		Put64(p[8:], 0)
	default:
		m.OpUdImpl()
	}
}
