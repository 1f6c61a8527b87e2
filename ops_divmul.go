// ops_divmul.go - Multiply and divide handlers
//
// MUL/IMUL/DIV/IDIV across every operand size, with 128-bit intermediates
// done through math/bits. Divide overflow and divide-by-zero raise #DE.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "math/bits"

func (m *Machine) setMulFlags(of bool) {
	m.flags = SetFlag(m.flags, flagsCF, of)
	m.flags = SetFlag(m.flags, flagsOF, of)
}

func opDivAlAhAxEbSigned(m *Machine, rde Rde) {
	x := int16(Get16(m.ax()))
	y := int8(Get8(m.modrmBytePointerRead(rde)))
	if y == 0 {
		m.RaiseDivideError()
	}
	if x == -32768 {
		m.RaiseDivideError()
	}
	q := x / int16(y)
	r := x % int16(y)
	if q != int16(int8(q)) {
		m.RaiseDivideError()
	}
	m.setAl(uint8(q))
	m.setAh(uint8(r))
}

func opDivAlAhAxEbUnsigned(m *Machine, rde Rde) {
	x := Get16(m.ax())
	y := Get8(m.modrmBytePointerRead(rde))
	if y == 0 {
		m.RaiseDivideError()
	}
	q := x / uint16(y)
	r := x % uint16(y)
	if q > 0xff {
		m.RaiseDivideError()
	}
	m.setAl(uint8(q))
	m.setAh(uint8(r))
}

func (m *Machine) divSigned64(p []byte) {
	y := int64(Get64(p))
	lo := Get64(m.ax())
	hi := Get64(m.dx())
	if y == 0 {
		m.RaiseDivideError()
	}
	if lo == 0 && hi == 0x8000000000000000 {
		m.RaiseDivideError()
	}
	neg := false
	ay, alo, ahi := y, lo, hi
	if int64(hi) < 0 {
		alo = -lo
		ahi = ^hi
		if lo == 0 {
			ahi = -hi
		}
		neg = !neg
	}
	if ay < 0 {
		ay = -ay
		neg = !neg
	}
	if ahi >= uint64(ay) {
		m.RaiseDivideError()
	}
	q, r := bits.Div64(ahi, alo, uint64(ay))
	if neg {
		q = -q
	}
	if int64(hi) < 0 {
		r = -r
	}
	if neg && int64(q) > 0 || !neg && int64(q) < 0 {
		m.RaiseDivideError()
	}
	Put64(m.ax(), q)
	Put64(m.dx(), r)
}

func (m *Machine) divUnsigned64(p []byte) {
	y := Get64(p)
	lo := Get64(m.ax())
	hi := Get64(m.dx())
	if y == 0 {
		m.RaiseDivideError()
	}
	if hi >= y {
		m.RaiseDivideError()
	}
	q, r := bits.Div64(hi, lo, y)
	Put64(m.ax(), q)
	Put64(m.dx(), r)
}

func opDivRdxRaxEvqpSigned(m *Machine, rde Rde) {
	p := m.modrmWordPointerReadOszRexw(rde)
	if rde.Rexw() {
		m.divSigned64(p)
	} else if !rde.Osz() {
		x := int64(uint64(Get32(m.dx()))<<32 | uint64(Get32(m.ax())))
		y := int32(Get32(p))
		if y == 0 {
			m.RaiseDivideError()
		}
		if x == -0x8000000000000000 {
			m.RaiseDivideError()
		}
		q := x / int64(y)
		r := x % int64(y)
		if q != int64(int32(q)) {
			m.RaiseDivideError()
		}
		Put64(m.ax(), uint64(q)&0xffffffff)
		Put64(m.dx(), uint64(r)&0xffffffff)
	} else {
		x := int32(uint32(Get16(m.dx()))<<16 | uint32(Get16(m.ax())))
		y := int16(Get16(p))
		if y == 0 {
			m.RaiseDivideError()
		}
		if x == -0x80000000 {
			m.RaiseDivideError()
		}
		q := x / int32(y)
		r := x % int32(y)
		if q != int32(int16(q)) {
			m.RaiseDivideError()
		}
		Put16(m.ax(), uint16(q))
		Put16(m.dx(), uint16(r))
	}
}

func opDivRdxRaxEvqpUnsigned(m *Machine, rde Rde) {
	p := m.modrmWordPointerReadOszRexw(rde)
	if rde.Rexw() {
		m.divUnsigned64(p)
	} else if !rde.Osz() {
		x := uint64(Get32(m.dx()))<<32 | uint64(Get32(m.ax()))
		y := Get32(p)
		if y == 0 {
			m.RaiseDivideError()
		}
		q := x / uint64(y)
		r := x % uint64(y)
		if q > 0xffffffff {
			m.RaiseDivideError()
		}
		Put64(m.ax(), q&0xffffffff)
		Put64(m.dx(), r&0xffffffff)
	} else {
		x := uint32(Get16(m.dx()))<<16 | uint32(Get16(m.ax()))
		y := Get16(p)
		if y == 0 {
			m.RaiseDivideError()
		}
		q := x / uint32(y)
		r := x % uint32(y)
		if q > 0xffff {
			m.RaiseDivideError()
		}
		Put16(m.ax(), uint16(q))
		Put16(m.dx(), uint16(r))
	}
}

func opMulAxAlEbSigned(m *Machine, rde Rde) {
	ax := int16(int8(m.al())) * int16(int8(Get8(m.modrmBytePointerRead(rde))))
	m.setMulFlags(ax != int16(int8(ax)))
	Put16(m.ax(), uint16(ax))
}

func opMulAxAlEbUnsigned(m *Machine, rde Rde) {
	ax := uint16(m.al()) * uint16(Get8(m.modrmBytePointerRead(rde)))
	m.setMulFlags(ax != uint16(uint8(ax)))
	Put16(m.ax(), ax)
}

func opMulRdxRaxEvqpSigned(m *Machine, rde Rde) {
	p := m.modrmWordPointerReadOszRexw(rde)
	if rde.Rexw() {
		x := int64(Get64(m.ax()))
		y := int64(Get64(p))
		hi, lo := bits.Mul64(uint64(x), uint64(y))
		// adjust the unsigned high half into a signed product
		if x < 0 {
			hi -= uint64(y)
		}
		if y < 0 {
			hi -= uint64(x)
		}
		Put64(m.ax(), lo)
		Put64(m.dx(), hi)
		m.setMulFlags(int64(hi) != int64(lo)>>63)
	} else if !rde.Osz() {
		z := int64(int32(Get32(m.ax()))) * int64(int32(Get32(p)))
		Put64(m.ax(), uint64(z)&0xffffffff)
		Put64(m.dx(), uint64(z>>32)&0xffffffff)
		m.setMulFlags(z != int64(int32(z)))
	} else {
		z := int32(int16(Get16(m.ax()))) * int32(int16(Get16(p)))
		Put16(m.ax(), uint16(z))
		Put16(m.dx(), uint16(z>>16))
		m.setMulFlags(z != int32(int16(z)))
	}
}

func opMulRdxRaxEvqpUnsigned(m *Machine, rde Rde) {
	p := m.modrmWordPointerReadOszRexw(rde)
	if rde.Rexw() {
		hi, lo := bits.Mul64(Get64(m.ax()), Get64(p))
		Put64(m.ax(), lo)
		Put64(m.dx(), hi)
		m.setMulFlags(hi != 0)
	} else if !rde.Osz() {
		z := uint64(Get32(m.ax())) * uint64(Get32(p))
		Put64(m.ax(), z&0xffffffff)
		Put64(m.dx(), z>>32)
		m.setMulFlags(z>>32 != 0)
	} else {
		z := uint32(Get16(m.ax())) * uint32(Get16(p))
		Put16(m.ax(), uint16(z))
		Put16(m.dx(), uint16(z>>16))
		m.setMulFlags(z>>16 != 0)
	}
}

func (m *Machine) aluImul(rde Rde, a, b []byte) {
	var of bool
	if rde.Rexw() {
		x := int64(Get64(a))
		y := int64(Get64(b))
		hi, lo := bits.Mul64(uint64(x), uint64(y))
		if x < 0 {
			hi -= uint64(y)
		}
		if y < 0 {
			hi -= uint64(x)
		}
		of = int64(hi) != int64(lo)>>63
		Put64(m.regRexrReg(rde), lo)
	} else if !rde.Osz() {
		z := int64(int32(Get32(a))) * int64(int32(Get32(b)))
		of = z != int64(int32(z))
		Put64(m.regRexrReg(rde), uint64(z)&0xffffffff)
	} else {
		z := int32(int16(Get16(a))) * int32(int16(Get16(b)))
		of = z != int32(int16(z))
		Put16(m.regRexrReg(rde), uint16(z))
	}
	m.setMulFlags(of)
}

func opImulGvqpEvqp(m *Machine, rde Rde) {
	m.aluImul(rde, m.regRexrReg(rde), m.modrmWordPointerReadOszRexw(rde))
}

func opImulGvqpEvqpImm(m *Machine, rde Rde) {
	var b [8]byte
	Put64(b[:], m.insn.uimm0)
	m.aluImul(rde, m.modrmWordPointerReadOszRexw(rde), b[:])
}
