// fpu_x87_test.go - x87 stack engine tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"math"
	"testing"
)

func TestX87_PushPopAndTop(t *testing.T) {
	m := newTestMachine(t)
	m.FpuPush(1)
	m.FpuPush(2)
	m.FpuPush(3)
	if top := int(m.fpu.sw & fpuSwSp >> 11); top != 5 {
		t.Fatalf("TOP = %d, want 5", top)
	}
	if m.st0() != 3 || m.st1() != 2 || m.st(2) != 1 {
		t.Fatalf("stack order wrong: %v %v %v", m.st0(), m.st1(), m.st(2))
	}
	if m.FpuPop() != 3 || m.FpuPop() != 2 || m.FpuPop() != 1 {
		t.Fatalf("pop order wrong")
	}
}

func TestX87_UnderflowReturnsNegNan(t *testing.T) {
	m := newTestMachine(t)
	x := m.FpuPop()
	if !math.IsNaN(x) || !math.Signbit(x) {
		t.Fatalf("underflow pop = %v", x)
	}
	if m.fpu.sw&fpuSwIe == 0 || m.fpu.sw&fpuSwSf == 0 {
		t.Fatalf("underflow status not raised: %#x", m.fpu.sw)
	}
}

func TestX87_OverflowRaisesC1(t *testing.T) {
	m := newTestMachine(t)
	for i := 0; i < 8; i++ {
		m.FpuPush(float64(i))
	}
	m.FpuPush(9)
	if m.fpu.sw&(fpuSwIe|fpuSwC1|fpuSwSf) != fpuSwIe|fpuSwC1|fpuSwSf {
		t.Fatalf("overflow status = %#x", m.fpu.sw)
	}
}

func TestX87_InfinityArithmetic(t *testing.T) {
	m := newTestMachine(t)
	inf := math.Inf(1)
	if x := m.fpuAdd(inf, inf); !math.IsInf(x, 1) {
		t.Fatalf("inf+inf = %v", x)
	}
	if x := m.fpuAdd(inf, math.Inf(-1)); !math.IsNaN(x) {
		t.Fatalf("inf + -inf = %v", x)
	}
	if m.fpu.sw&fpuSwIe == 0 {
		t.Fatalf("invalid op not raised")
	}
	m.fpu.sw = 0
	if x := m.fpuMul(inf, 0); !math.IsNaN(x) {
		t.Fatalf("inf*0 = %v", x)
	}
	m.fpu.sw = 0
	if x := m.fpuDiv(1, 0); !math.IsInf(x, 1) {
		t.Fatalf("1/0 = %v", x)
	}
	if m.fpu.sw&fpuSwZe == 0 {
		t.Fatalf("divide by zero not flagged")
	}
}

func TestX87_FpremQuotientBits(t *testing.T) {
	m := newTestMachine(t)
	r := m.fprem(7, 2) // quotient 3 sets C1 and C3
	if r != 1 {
		t.Fatalf("7 rem 2 = %v", r)
	}
	if m.fpu.sw&fpuSwC1 == 0 || m.fpu.sw&fpuSwC3 == 0 {
		t.Fatalf("quotient bits = %#x", m.fpu.sw)
	}
	if m.fpu.sw&fpuSwC2 != 0 {
		t.Fatalf("C2 set on complete reduction")
	}
}

func TestX87_FpremLargeMagnitudes(t *testing.T) {
	m := newTestMachine(t)
	r := m.fprem(12300000000000000., .0000000000000123)
	if math.Abs(r-1.1766221079117338e-14) > 1e-28 {
		t.Fatalf("fprem = %v", r)
	}
}

func TestX87_RoundingControl(t *testing.T) {
	m := newTestMachine(t)
	m.fpu.cw = m.fpu.cw&^uint32(fpuCwRc) | 3<<10 // chop
	if m.fpuRound(1.7) != 1 {
		t.Fatalf("chop failed")
	}
	m.fpu.cw = m.fpu.cw &^ uint32(fpuCwRc) // nearest
	if m.fpuRound(2.5) != 2 {
		t.Fatalf("round to even failed")
	}
	m.fpu.cw = m.fpu.cw&^uint32(fpuCwRc) | 1<<10 // down
	if m.fpuRound(-1.5) != -2 {
		t.Fatalf("floor failed")
	}
}

func TestX87_Fxam(t *testing.T) {
	m := newTestMachine(t)
	m.FpuPush(0)
	m.opFxam()
	if m.fpu.sw&fpuSwC3 == 0 {
		t.Fatalf("zero class wrong: %#x", m.fpu.sw)
	}
	m.setSt0(math.Inf(-1))
	m.opFxam()
	if m.fpu.sw&fpuSwC0 == 0 || m.fpu.sw&fpuSwC2 == 0 ||
		m.fpu.sw&fpuSwC1 == 0 {
		t.Fatalf("-inf class wrong: %#x", m.fpu.sw)
	}
}

func TestX87_TagWordTracksSlots(t *testing.T) {
	m := newTestMachine(t)
	if m.FpuGetTag(0) != fpuTagEmpty {
		t.Fatalf("fresh slot not empty")
	}
	m.FpuPush(1.5)
	if m.FpuGetTag(0) == fpuTagEmpty {
		t.Fatalf("pushed slot still empty")
	}
	m.FpuPop()
	if m.FpuGetTag(-1) != fpuTagEmpty {
		t.Fatalf("popped slot not freed")
	}
}

func TestX87_Fcomi(t *testing.T) {
	m := newTestMachine(t)
	m.FpuPush(2)
	m.FpuPush(1) // st0=1, st1=2
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d, []byte{0xdb, 0xf1}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.opFcomi(d.rde)
	if !GetFlag(m.flags, flagsCF) {
		t.Fatalf("1 < 2 should set CF")
	}
	if GetFlag(m.flags, flagsZF) || GetFlag(m.flags, flagsPF) {
		t.Fatalf("unexpected flags: %#x", m.flags)
	}
}

func TestLdbl_RoundTrip(t *testing.T) {
	cases := []float64{
		0, math.Copysign(0, -1), 1, -1.5, math.Pi,
		math.Inf(1), math.Inf(-1),
		2.2250738585072014e-308, math.MaxFloat64,
	}
	var b [10]byte
	for _, x := range cases {
		got := DeserializeLdbl(SerializeLdbl(b[:], x))
		if math.IsInf(x, 0) {
			if !math.IsInf(got, int(math.Copysign(1, x))) {
				t.Errorf("round trip %v = %v", x, got)
			}
			continue
		}
		if got != x {
			t.Errorf("round trip %v = %v", x, got)
		}
		if math.Signbit(got) != math.Signbit(x) {
			t.Errorf("sign lost for %v", x)
		}
	}
	if !math.IsNaN(DeserializeLdbl(SerializeLdbl(b[:], math.NaN()))) {
		t.Errorf("nan round trip failed")
	}
}

func TestLdbl_MemoryImage(t *testing.T) {
	var b [10]byte
	SerializeLdbl(b[:], 1)
	// 1.0 in extended format: bias 0x3fff, explicit integer bit set
	if Get16(b[8:]) != 0x3fff {
		t.Fatalf("exponent = %#x", Get16(b[8:]))
	}
	if Get64(b[:]) != 0x8000000000000000 {
		t.Fatalf("mantissa = %#x", Get64(b[:]))
	}
}
