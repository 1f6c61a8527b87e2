// vector_sse_test.go - Vector kernel tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"bytes"
	"math"
	"testing"
)

func TestVector_PaddbWraps(t *testing.T) {
	x := []byte{0xff, 0x01, 0x80, 0x7f, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8}
	y := []byte{0x01, 0xff, 0x80, 0x01, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1}
	ssePaddb(x, y)
	want := []byte{0x00, 0x00, 0x00, 0x80, 0, 0, 0, 0, 2, 3, 4, 5, 6, 7, 8, 9}
	if !bytes.Equal(x, want) {
		t.Fatalf("paddb = %x", x)
	}
}

func TestVector_SaturatingAdds(t *testing.T) {
	x := make([]byte, 16)
	y := make([]byte, 16)
	Put16(x, 0x7fff)
	Put16(y, 1)
	ssePaddsw(x, y)
	if int16(Get16(x)) != 32767 {
		t.Fatalf("paddsw did not saturate: %#x", Get16(x))
	}
	x[0], y[0] = 0xff, 0xff
	ssePaddusb(x, y)
	if x[0] != 0xff {
		t.Fatalf("paddusb did not saturate")
	}
	x[0], y[0] = 0x01, 0x7f
	ssePaddsb(x, y)
	if x[0] != 0x7f {
		t.Fatalf("paddsb = %#x, want saturation at 0x7f", x[0])
	}
}

func TestVector_Pshufb(t *testing.T) {
	x := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	y := []byte{15, 14, 13, 12, 0x80, 3, 2, 1, 0, 0, 0, 0, 0x90, 5, 5, 5}
	ssePshufb(x, y)
	want := []byte{15, 14, 13, 12, 0, 3, 2, 1, 0, 0, 0, 0, 0, 5, 5, 5}
	if !bytes.Equal(x, want) {
		t.Fatalf("pshufb = %x", x)
	}
}

func TestVector_Palignr(t *testing.T) {
	x := []byte{16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31}
	y := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	ssePalignr(x, y, 4)
	want := []byte{4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	if !bytes.Equal(x, want) {
		t.Fatalf("palignr = %x", x)
	}
}

func TestVector_Punpck(t *testing.T) {
	x := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	y := []byte{100, 101, 102, 103, 104, 105, 106, 107,
		108, 109, 110, 111, 112, 113, 114, 115}
	ssePunpcklbw(x, y)
	want := []byte{0, 100, 1, 101, 2, 102, 3, 103, 4, 104, 5, 105, 6, 106,
		7, 107}
	if !bytes.Equal(x, want) {
		t.Fatalf("punpcklbw = %x", x)
	}
}

func TestVector_ShiftZeroing(t *testing.T) {
	x := make([]byte, 16)
	Put64(x, 0xffffffffffffffff)
	Put64(x[8:], 0xffffffffffffffff)
	ssePsllq(x, 64)
	for _, b := range x {
		if b != 0 {
			t.Fatalf("psllq by 64 did not zero")
		}
	}
}

func TestVector_Psadbw(t *testing.T) {
	x := make([]byte, 16)
	y := make([]byte, 16)
	for i := range x {
		x[i] = byte(i)
		y[i] = byte(16 - i)
	}
	ssePsadbw(x, y)
	var lo, hi uint64
	for i := 0; i < 8; i++ {
		lo += uint64(absDiff(byte(i), byte(16-i)))
	}
	for i := 8; i < 16; i++ {
		hi += uint64(absDiff(byte(i), byte(16-i)))
	}
	if Get64(x) != lo || Get64(x[8:]) != hi {
		t.Fatalf("psadbw = %d,%d want %d,%d", Get64(x), Get64(x[8:]), lo, hi)
	}
}

func TestVector_CmppsPredicates(t *testing.T) {
	cases := []struct {
		imm  int
		x, y float64
		want bool
	}{
		{0, 1, 1, true},
		{0, 1, 2, false},
		{1, 1, 2, true},
		{2, 2, 2, true},
		{3, math.NaN(), 1, true},
		{4, 1, 2, true},
		{5, 2, 1, true},
		{6, 3, 1, true},
		{7, 1, 1, true},
		{7, math.NaN(), 1, false},
		{1, math.NaN(), 1, false},
	}
	for i, c := range cases {
		if got := cmpFloatPredicate(c.imm, c.x, c.y); got != c.want {
			t.Errorf("case %d: predicate %d (%v,%v) = %v",
				i, c.imm, c.x, c.y, got)
		}
	}
}

func TestVector_CvttForcesTruncation(t *testing.T) {
	m := newTestMachine(t)
	m.mxcsr |= 2 << 13 // round up, which cvtt must ignore
	putF32(m.xmm[1][:], 1.9)
	putF32(m.xmm[1][4:], -1.9)
	putF32(m.xmm[1][8:], 2.5)
	putF32(m.xmm[1][12:], -2.5)
	var d Insn
	InitInsn(&d, modeLong)
	// cvttps2dq xmm0, xmm1
	if err := DecodeInstruction(&d, []byte{0xf3, 0x0f, 0x5b, 0xc1}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	opCvt0f5b(m, d.rde)
	want := []int32{1, -1, 2, -2}
	for i, w := range want {
		if got := int32(Get32(m.xmm[0][i*4:])); got != w {
			t.Errorf("lane %d = %d, want %d", i, got, w)
		}
	}
}

func TestVector_CvtHonoursRoundingControl(t *testing.T) {
	m := newTestMachine(t)
	putF32(m.xmm[1][:], 1.5)
	putF32(m.xmm[1][4:], 2.5)
	putF32(m.xmm[1][8:], -1.5)
	putF32(m.xmm[1][12:], 0)
	var d Insn
	InitInsn(&d, modeLong)
	// cvtps2dq xmm0, xmm1
	if err := DecodeInstruction(&d, []byte{0x66, 0x0f, 0x5b, 0xc1}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	opCvt0f5b(m, d.rde)
	// round to nearest even
	want := []int32{2, 2, -2, 0}
	for i, w := range want {
		if got := int32(Get32(m.xmm[0][i*4:])); got != w {
			t.Errorf("lane %d = %d, want %d", i, got, w)
		}
	}
}

func TestVector_Pmovmskb(t *testing.T) {
	m := newTestMachine(t)
	for i := 0; i < 16; i++ {
		if i%3 == 0 {
			m.xmm[2][i] = 0x80
		}
	}
	var d Insn
	InitInsn(&d, modeLong)
	// pmovmskb eax, xmm2
	if err := DecodeInstruction(&d, []byte{0x66, 0x0f, 0xd7, 0xc2}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	opPmovmskbGdqpNqUdq(m, d.rde)
	var want uint32
	for i := 0; i < 16; i++ {
		if i%3 == 0 {
			want |= 1 << uint(i)
		}
	}
	if got := Get32(m.ax()); got != want {
		t.Fatalf("pmovmskb = %#x, want %#x", got, want)
	}
}

func TestVector_ComisdFlags(t *testing.T) {
	m := newTestMachine(t)
	putF64(m.xmm[0][:], 1)
	putF64(m.xmm[1][:], 2)
	var d Insn
	InitInsn(&d, modeLong)
	// comisd xmm0, xmm1
	if err := DecodeInstruction(&d, []byte{0x66, 0x0f, 0x2f, 0xc1}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	opComissVsWs(m, d.rde)
	if !GetFlag(m.flags, flagsCF) || GetFlag(m.flags, flagsZF) {
		t.Fatalf("1 < 2 comisd flags wrong: %#x", m.flags)
	}
	putF64(m.xmm[1][:], math.NaN())
	opComissVsWs(m, d.rde)
	if !GetFlag(m.flags, flagsZF) || !GetFlag(m.flags, flagsCF) ||
		!GetFlag(m.flags, flagsPF) {
		t.Fatalf("unordered comisd flags wrong: %#x", m.flags)
	}
	if m.mxcsr&mxcsrIe == 0 {
		t.Fatalf("invalid not latched in mxcsr")
	}
}

func TestVector_Pshufd(t *testing.T) {
	var a, b [16]byte
	for i := 0; i < 4; i++ {
		Put32(a[i*4:], uint32(i+1))
	}
	pshufd(b[:], a[:], 0x1b) // reverse
	for i := 0; i < 4; i++ {
		if Get32(b[i*4:]) != uint32(4-i) {
			t.Fatalf("pshufd lane %d = %d", i, Get32(b[i*4:]))
		}
	}
}

func TestVector_Pclmulqdq(t *testing.T) {
	m := newTestMachine(t)
	Put64(m.xmm[0][:], 3) // x + 1
	Put64(m.xmm[1][:], 5) // x^2 + 1
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d,
		[]byte{0x66, 0x0f, 0x3a, 0x44, 0xc1, 0x00}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	opSsePclmulqdq(m, d.rde)
	// (x+1)(x^2+1) = x^3+x^2+x+1 = 0b1111
	if got := Get64(m.xmm[0][:]); got != 0xf {
		t.Fatalf("pclmulqdq = %#x, want 0xf", got)
	}
}
