// decoder_x86_test.go - Instruction length decoder tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"bytes"
	"testing"
)

func decode(t *testing.T, mode int, op []byte) *Insn {
	t.Helper()
	var d Insn
	InitInsn(&d, mode)
	if err := DecodeInstruction(&d, op); err != nil {
		t.Fatalf("decode %x: %v", op, err)
	}
	return &d
}

func TestDecode_Lengths(t *testing.T) {
	cases := []struct {
		op   []byte
		want int
	}{
		{[]byte{0x90}, 1},                                     // nop
		{[]byte{0x31, 0xd2}, 2},                               // xor
		{[]byte{0x45, 0x31, 0xc0}, 3},                         // rex xor
		{[]byte{0xbe, 3, 0, 0, 0}, 5},                         // mov imm32
		{[]byte{0x48, 0xb8, 1, 2, 3, 4, 5, 6, 7, 8}, 10},      // movabs
		{[]byte{0x83, 0xf9, 0x0a}, 3},                         // cmp imm8
		{[]byte{0x74, 0x0b}, 2},                               // je rel8
		{[]byte{0x0f, 0x84, 1, 2, 3, 4}, 6},                   // je rel32
		{[]byte{0x8d, 0x04, 0x8d, 0, 0, 0, 0}, 7},             // lea sib disp32
		{[]byte{0x8b, 0x84, 0x24, 4, 0, 0, 0}, 7},             // mov with sib
		{[]byte{0x66, 0x0f, 0xef, 0xc1}, 4},                   // pxor xmm
		{[]byte{0x66, 0x0f, 0x38, 0x00, 0xc1}, 5},             // pshufb
		{[]byte{0x66, 0x0f, 0x3a, 0x0f, 0xc1, 0x08}, 6},       // palignr
		{[]byte{0xf7, 0xc1, 1, 0, 0, 0}, 6},                   // test imm32
		{[]byte{0xf7, 0xd1}, 2},                               // not
		{[]byte{0xc7, 0x00, 1, 2, 3, 4}, 6},                   // mov m32,imm32
		{[]byte{0xd9, 0x05, 1, 0, 0, 0}, 6},                   // flds
		{[]byte{0xf0, 0x48, 0x0f, 0xb1, 0x0f}, 5},             // lock cmpxchg
		{[]byte{0xf3, 0xa4}, 2},                               // rep movsb
		{[]byte{0x67, 0x8d, 0x04, 0x03}, 4},                   // addr32 lea
		{[]byte{0xa1, 1, 2, 3, 4, 5, 6, 7, 8}, 9},             // mov moffs64
	}
	for i, c := range cases {
		d := decode(t, modeLong, c.op)
		if d.length != c.want {
			t.Errorf("case %d %x: length = %d, want %d",
				i, c.op, d.length, c.want)
		}
	}
}

// The decoder must never read past the decoded length, so appending junk
// cannot change the outcome.
func TestDecode_NeverReadsPastLength(t *testing.T) {
	progs := [][]byte{
		{0x90},
		{0x48, 0x01, 0xd8},
		{0x83, 0xf9, 0x0a},
		{0x0f, 0xaf, 0xc3},
		{0x66, 0x0f, 0x3a, 0x0f, 0xc1, 0x08},
	}
	for _, p := range progs {
		var a, b Insn
		InitInsn(&a, modeLong)
		if err := DecodeInstruction(&a, p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		junk := append(append([]byte{}, p...),
			0xde, 0xad, 0xbe, 0xef, 0xcc, 0xcc, 0xcc)
		InitInsn(&b, modeLong)
		if err := DecodeInstruction(&b, junk); err != nil {
			t.Fatalf("decode with junk: %v", err)
		}
		if a.length != b.length || a.rde != b.rde ||
			a.uimm0 != b.uimm0 || a.disp != b.disp {
			t.Fatalf("junk changed decode of %x", p)
		}
		if !bytes.Equal(a.bytes[:a.length], junk[:a.length]) {
			t.Fatalf("bytes not captured for %x", p)
		}
	}
}

func TestDecode_TooShort(t *testing.T) {
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d, []byte{0xbe, 3, 0}); err != errDecodeTooShort {
		t.Fatalf("err = %v, want too short", err)
	}
}

func TestDecode_InstrTooLong(t *testing.T) {
	// fifteen prefix bytes followed by an opcode cannot fit
	op := bytes.Repeat([]byte{0x66}, 15)
	op = append(op, 0x90)
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d, op); err == nil {
		t.Fatalf("expected failure on oversized instruction")
	}
}

func TestDecode_BadMap(t *testing.T) {
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d, []byte{0x0f, 0x3b, 0x00, 0x00}); err != errBadMap {
		t.Fatalf("err = %v, want bad map", err)
	}
}

func TestDecode_RexFields(t *testing.T) {
	d := decode(t, modeLong, []byte{0x4c, 0x8d, 0x04, 0x8d, 0, 0, 0, 0})
	rde := d.rde
	if !rde.Rexw() {
		t.Fatalf("rexw missing")
	}
	if rde.Rexr() != 1 || rde.Rexb() != 0 || rde.Rexx() != 0 {
		t.Fatalf("rex bits wrong")
	}
	if rde.RexrReg() != 8 {
		t.Fatalf("RexrReg = %d, want 8", rde.RexrReg())
	}
	if rde.SibIndex() != 1 || rde.SibScale() != 2 || rde.SibBase() != 5 {
		t.Fatalf("sib fields wrong")
	}
}

// A REX prefix followed by a legacy prefix is cancelled.
func TestDecode_RexCancelledByLegacyPrefix(t *testing.T) {
	d := decode(t, modeLong, []byte{0x48, 0x66, 0x01, 0xd8})
	if d.rde.Rexw() {
		t.Fatalf("stale rex.w survived a later prefix")
	}
	if !d.rde.Osz() {
		t.Fatalf("osz lost")
	}
}

func TestDecode_SegmentOverrides(t *testing.T) {
	// cs/ds overrides are ignored in long mode; fs/gs are honoured
	d := decode(t, modeLong, []byte{0x2e, 0x8b, 0x03})
	if d.rde.Sego() != 0 {
		t.Fatalf("cs override honoured in long mode")
	}
	d = decode(t, modeLong, []byte{0x64, 0x8b, 0x03})
	if d.rde.Sego() != 5 {
		t.Fatalf("fs override = %d, want 5", d.rde.Sego())
	}
	d = decode(t, modeLegacy, []byte{0x2e, 0x8b, 0x03})
	if d.rde.Sego() != 2 {
		t.Fatalf("cs override = %d, want 2", d.rde.Sego())
	}
}

func TestDecode_RepAndLock(t *testing.T) {
	d := decode(t, modeLong, []byte{0xf3, 0xa4})
	if d.rde.Rep() != 3 {
		t.Fatalf("rep = %d, want 3", d.rde.Rep())
	}
	d = decode(t, modeLong, []byte{0xf2, 0xae})
	if d.rde.Rep() != 2 {
		t.Fatalf("repne = %d, want 2", d.rde.Rep())
	}
	d = decode(t, modeLong, []byte{0xf0, 0x01, 0x03})
	if !d.rde.Lock() {
		t.Fatalf("lock bit lost")
	}
}

func TestDecode_WordLog2(t *testing.T) {
	cases := []struct {
		op   []byte
		want uint
	}{
		{[]byte{0x00, 0xd8}, 0},       // add byte
		{[]byte{0x01, 0xd8}, 2},       // add dword
		{[]byte{0x66, 0x01, 0xd8}, 1}, // add word
		{[]byte{0x48, 0x01, 0xd8}, 3}, // add qword
	}
	for i, c := range cases {
		d := decode(t, modeLong, c.op)
		if d.rde.RegLog2() != c.want {
			t.Errorf("case %d: RegLog2 = %d, want %d",
				i, d.rde.RegLog2(), c.want)
		}
	}
}

func TestDecode_ImmediateExtension(t *testing.T) {
	// the 0x83 group sign-extends its byte immediate
	d := decode(t, modeLong, []byte{0x83, 0xd9, 0xff})
	if d.uimm0 != 0xffffffffffffffff {
		t.Fatalf("uimm0 = %#x, want sign extension", d.uimm0)
	}
	// 0xf6 /0 test takes imm8
	d = decode(t, modeLong, []byte{0xf6, 0xc1, 0x80})
	if d.length != 3 {
		t.Fatalf("f6/0 length = %d, want 3", d.length)
	}
	// 0xf6 /2 not takes none
	d = decode(t, modeLong, []byte{0xf6, 0xd1})
	if d.length != 2 {
		t.Fatalf("f6/2 length = %d, want 2", d.length)
	}
	// 0xc7 /0 takes immz
	d = decode(t, modeLong, []byte{0xc7, 0x00, 1, 0, 0, 0})
	if d.length != 6 {
		t.Fatalf("c7/0 length = %d, want 6", d.length)
	}
}

func TestDecode_SrmAndOplength(t *testing.T) {
	d := decode(t, modeLong, []byte{0xb9, 1, 0, 0, 0}) // mov ecx,1
	if d.rde.Srm() != 1 {
		t.Fatalf("srm = %d, want 1", d.rde.Srm())
	}
	if d.rde.Oplength() != 5 {
		t.Fatalf("oplength = %d, want 5", d.rde.Oplength())
	}
	if d.rde.Mopcode() != 0xb9 {
		t.Fatalf("mopcode = %#x", d.rde.Mopcode())
	}
}

func TestDecode_RealModeDefaults(t *testing.T) {
	// real mode defaults to 16-bit operands, so the same add is word sized
	d := decode(t, modeReal, []byte{0x01, 0xd8})
	if d.rde.RegLog2() != 1 {
		t.Fatalf("real mode RegLog2 = %d, want 1", d.rde.RegLog2())
	}
	if d.rde.Eamode() != modeReal {
		t.Fatalf("eamode = %d", d.rde.Eamode())
	}
}

func BenchmarkDecode(b *testing.B) {
	op := []byte{0x48, 0x8d, 0x04, 0x8d, 0, 0, 0, 0}
	var d Insn
	for i := 0; i < b.N; i++ {
		InitInsn(&d, modeLong)
		if err := DecodeInstruction(&d, op); err != nil {
			b.Fatal(err)
		}
	}
}
