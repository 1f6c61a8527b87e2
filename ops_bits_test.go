// ops_bits_test.go - BMI2 and ADX handler tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "testing"

func TestBits_Mulx(t *testing.T) {
	m := newTestMachine(t)
	// mulx with rdx and rbx as sources; lo lands in the vreg fallback rAX,
	// hi in the reg operand rcx
	Put64(m.dx(), 0xffffffffffffffff)
	Put64(m.bx(), 2)
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d,
		[]byte{0xf2, 0x48, 0x0f, 0x38, 0xf6, 0xcb}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	m.flags = 1<<flagsCF | 1<<flagsOF
	before := m.flags
	op2f6(m, d.rde)
	if got := Get64(m.ax()); got != 0xfffffffffffffffe {
		t.Fatalf("mulx lo = %#x", got)
	}
	if got := Get64(m.cx()); got != 1 {
		t.Fatalf("mulx hi = %#x", got)
	}
	if m.flags != before {
		t.Fatalf("mulx touched flags: %#x -> %#x", before, m.flags)
	}
}

func TestBits_Mulx32(t *testing.T) {
	m := newTestMachine(t)
	Put64(m.dx(), 0xffffffff)
	Put64(m.bx(), 0xffffffff)
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d,
		[]byte{0xf2, 0x0f, 0x38, 0xf6, 0xcb}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	op2f6(m, d.rde)
	// 0xffffffff^2 = 0xfffffffe_00000001
	if got := Get64(m.ax()); got != 0x00000001 {
		t.Fatalf("mulx32 lo = %#x", got)
	}
	if got := Get64(m.cx()); got != 0xfffffffe {
		t.Fatalf("mulx32 hi = %#x", got)
	}
}

// ADCX carries through CF only; ADOX through OF only. A 128-bit add chained
// through both must leave the other chain's flag alone.
func TestBits_AdcxAdoxChains(t *testing.T) {
	m := newTestMachine(t)
	var d Insn
	InitInsn(&d, modeLong)
	// adcx rcx, rbx
	if err := DecodeInstruction(&d,
		[]byte{0x66, 0x48, 0x0f, 0x38, 0xf6, 0xcb}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	Put64(m.cx(), 0xffffffffffffffff)
	Put64(m.bx(), 1)
	m.flags = SetFlag(0, flagsOF, true)
	op2f6(m, d.rde)
	if got := Get64(m.cx()); got != 0 {
		t.Fatalf("adcx sum = %#x", got)
	}
	if !GetFlag(m.flags, flagsCF) {
		t.Fatalf("adcx lost carry out")
	}
	if !GetFlag(m.flags, flagsOF) {
		t.Fatalf("adcx clobbered OF")
	}
	// second limb consumes the carry
	Put64(m.cx(), 5)
	Put64(m.bx(), 7)
	op2f6(m, d.rde)
	if got := Get64(m.cx()); got != 13 {
		t.Fatalf("adcx carried sum = %d, want 13", got)
	}
	if GetFlag(m.flags, flagsCF) {
		t.Fatalf("adcx carry not consumed")
	}
	// adox rcx, rbx
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d,
		[]byte{0xf3, 0x48, 0x0f, 0x38, 0xf6, 0xcb}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	Put64(m.cx(), 0xffffffffffffffff)
	Put64(m.bx(), 1)
	m.flags = SetFlag(0, flagsCF, true)
	op2f6(m, d.rde)
	if got := Get64(m.cx()); got != 0 {
		t.Fatalf("adox sum = %#x, want wrap to 0", got)
	}
	if !GetFlag(m.flags, flagsOF) {
		t.Fatalf("adox lost carry out")
	}
	if !GetFlag(m.flags, flagsCF) {
		t.Fatalf("adox clobbered CF")
	}
}

func TestBits_PdepPext(t *testing.T) {
	if got := pdep(0b1011, 0b11010010); got != 0b10010010 {
		t.Fatalf("pdep = %#b", got)
	}
	if got := pext(0b10010010, 0b11010010); got != 0b1011 {
		t.Fatalf("pext = %#b", got)
	}
	if pdep(0xffffffffffffffff, 0) != 0 || pext(0xffffffffffffffff, 0) != 0 {
		t.Fatalf("empty mask must yield zero")
	}
}

func TestBits_RorxLeavesFlags(t *testing.T) {
	m := newTestMachine(t)
	var d Insn
	InitInsn(&d, modeLong)
	// rorx rcx, rbx, 8
	if err := DecodeInstruction(&d,
		[]byte{0x48, 0x0f, 0x3a, 0xf0, 0xcb, 0x08}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m.insn = d
	Put64(m.bx(), 0x1122334455667788)
	m.flags = 1 << flagsCF
	before := m.flags
	opRorx(m, d.rde)
	if got := Get64(m.cx()); got != 0x8811223344556677 {
		t.Fatalf("rorx = %#x", got)
	}
	if m.flags != before {
		t.Fatalf("rorx touched flags")
	}
}

func TestBits_Adx2f6FlagTables(t *testing.T) {
	adcx := decodeRde(t, []byte{0x66, 0x48, 0x0f, 0x38, 0xf6, 0xcb})
	if getFlagClobbers(adcx) != maskCF || getFlagDeps(adcx) != maskCF {
		t.Fatalf("adcx flag tables wrong")
	}
	adox := decodeRde(t, []byte{0xf3, 0x48, 0x0f, 0x38, 0xf6, 0xcb})
	if getFlagClobbers(adox) != maskOF || getFlagDeps(adox) != maskOF {
		t.Fatalf("adox flag tables wrong")
	}
	mulx := decodeRde(t, []byte{0xf2, 0x48, 0x0f, 0x38, 0xf6, 0xcb})
	if getFlagClobbers(mulx) != 0 || getFlagDeps(mulx) != 0 {
		t.Fatalf("mulx flag tables wrong")
	}
}
