// machine_x86_test.go - End-to-end machine execution tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"math"
	"testing"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	s, err := NewSystem(1 << 20)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestMachine(t *testing.T) *Machine {
	s := newTestSystem(t)
	m := s.NewMachine()
	Put64(m.sp(), 0x8000)
	return m
}

func loadProgram(m *Machine, code []byte) {
	copy(m.sys.ram[0:], code)
	m.ip = 0
}

func runUntilHalt(t *testing.T, m *Machine) int {
	t.Helper()
	return m.Run()
}

var kTenthprime = []byte{
	0x31, 0xd2, // xor    %edx,%edx
	0x45, 0x31, 0xc0, // xor    %r8d,%r8d
	0x31, 0xc9, // xor    %ecx,%ecx
	0xbe, 0x03, 0x00, 0x00, 0x00, // mov    $0x3,%esi
	0x41, 0xff, 0xc0, // inc    %r8d
	0x44, 0x89, 0xc0, // mov    %r8d,%eax
	0x83, 0xf9, 0x0a, // cmp    $0xa,%ecx
	0x74, 0x0b, // je     20
	0x99,       // cltd
	0xf7, 0xfe, // idiv   %esi
	0x83, 0xfa, 0x01, // cmp    $0x1,%edx
	0x83, 0xd9, 0xff, // sbb    $-1,%ecx
	0xeb, 0xea, // jmp    a
	0xf4, // hlt
}

// kTenthprime2 is the trial-division rendition; it really does compute the
// tenth prime.
var kTenthprime2 = []byte{
	0xe8, 0x11, 0x00, 0x00, 0x00, // call   isprime
	0xf4,       // hlt
	0x89, 0xf8, // mov    %edi,%eax
	0xb9, 0x03, 0x00, 0x00, 0x00, // mov    $3,%ecx
	0x99,       // cltd
	0xf7, 0xf9, // idiv   %ecx
	0x85, 0xd2, // test   %edx,%edx
	0x0f, 0x95, 0xc0, // setnz  %al
	0xc3, // ret
	0x55, // push   %rbp
	0x48, 0x89, 0xe5, // mov    %rsp,%rbp
	0x31, 0xf6, // xor    %esi,%esi
	0x45, 0x31, 0xc0, // xor    %r8d,%r8d
	0x44, 0x89, 0xc7, // mov    %r8d,%edi
	0xe8, 0xdf, 0xff, 0xff, 0xff, // call   checker
	0x0f, 0xb6, 0xc0, // movzbl %al,%eax
	0x66, 0x83, 0xf8, 0x01, // cmp    $1,%ax
	0x83, 0xde, 0xff, // sbb    $-1,%esi
	0x41, 0xff, 0xc0, // inc    %r8d
	0x83, 0xfe, 0x0a, // cmp    $10,%esi
	0x75, 0xe6, // jne    loop
	0x44, 0x89, 0xc0, // mov    %r8d,%eax
	0x5d, // pop    %rbp
	0xc3, // ret
}

func TestMachine_TenthprimeLoop(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, kTenthprime)
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d, want %d", code, machineHalt)
	}
	if got := Get32(m.ax()); got != 15 {
		t.Fatalf("EAX = %d, want 15", got)
	}
}

func TestMachine_TenthprimeTrialDivision(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, kTenthprime2)
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d, want %d", code, machineHalt)
	}
	if got := Get32(m.ax()); got != 29 {
		t.Fatalf("EAX = %d, want 29", got)
	}
}

func TestMachine_CallAddr32(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0x67, 0xe8, 0x01, 0x00, 0x00, 0x00, // addr32 call +1
		0xf4, // hlt
		0xc3, // ret
	})
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d, want %d", code, machineHalt)
	}
}

func TestMachine_DivideError(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0x31, 0xc9, // xor %ecx,%ecx
		0x31, 0xd2, // xor %edx,%edx
		0xb8, 0x07, 0x00, 0x00, 0x00, // mov $7,%eax
		0xf7, 0xf1, // div %ecx
		0xf4,
	})
	if code := runUntilHalt(t, m); code != machineDivideError {
		t.Fatalf("halt code = %d, want %d", code, machineDivideError)
	}
}

func TestMachine_PushaLongModeIsUndefined(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{0x60, 0xf4})
	if code := runUntilHalt(t, m); code != machineUndefinedInstruction {
		t.Fatalf("halt code = %d, want #UD", code)
	}
}

func TestMachine_PushaLegacyOrder(t *testing.T) {
	m := newTestMachine(t)
	m.mode = modeLegacy
	for i, r := range []int{regAx, regCx, regDx, regBx, regBp, regSi, regDi} {
		Put64(m.regSlice(r), uint64(0x11111111*(i+1)))
	}
	Put64(m.sp(), 0x8000)
	loadProgram(m, []byte{0x60, 0xf4})
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	if got := Get32(m.sp()); got != 0x8000-32 {
		t.Fatalf("ESP = %#x, want %#x", got, 0x8000-32)
	}
	// order on the stack, low address first: DI SI BP SP BX DX CX AX
	want := []uint32{
		Get32(m.di()), Get32(m.si()), Get32(m.bp()), 0x8000,
		Get32(m.bx()), Get32(m.dx()), Get32(m.cx()), Get32(m.ax()),
	}
	for i, w := range want {
		if got := Get32(m.sys.ram[0x8000-32+i*4:]); got != w {
			t.Errorf("stack slot %d = %#x, want %#x", i, got, w)
		}
	}
}

func TestMachine_PopaRestoresAllButSp(t *testing.T) {
	m := newTestMachine(t)
	m.mode = modeLegacy
	Put64(m.sp(), 0x8000)
	loadProgram(m, []byte{
		0x60, // pusha
		0xbb, 0xef, 0xbe, 0x00, 0x00, // mov $0xbeef,%ebx
		0x61, // popa
		0xf4,
	})
	Put64(m.bx(), 0x1234)
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	if got := Get32(m.bx()); got != 0x1234 {
		t.Fatalf("EBX = %#x, want restored 0x1234", got)
	}
	if got := Get32(m.sp()); got != 0x8000 {
		t.Fatalf("ESP = %#x, want 0x8000", got)
	}
}

func TestMachine_CmovAndSetcc(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0xb8, 0x05, 0x00, 0x00, 0x00, // mov $5,%eax
		0xbb, 0x09, 0x00, 0x00, 0x00, // mov $9,%ebx
		0x39, 0xd8, // cmp %ebx,%eax
		0x0f, 0x4c, 0xcb, // cmovl %ebx,%ecx
		0x0f, 0x9c, 0xc2, // setl %dl
		0xf4,
	})
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	if got := Get32(m.cx()); got != 9 {
		t.Fatalf("ECX = %d, want 9", got)
	}
	if m.reg[regDx][0] != 1 {
		t.Fatalf("DL = %d, want 1", m.reg[regDx][0])
	}
}

func TestMachine_FldPi(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{0xd9, 0xeb, 0xf4})
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	if x := m.FpuPop(); math.Abs(x-math.Pi) > 1e-15 {
		t.Fatalf("fldpi = %v", x)
	}
}

var kPi80 = []byte{
	0xd9, 0xe8, // fld1
	0xb8, 0x0a, 0x00, 0x00, 0x00, // mov    $0xa,%eax
	0x31, 0xd2, // xor    %edx,%edx
	0xd9, 0xee, // fldz
	0x48, 0x98, // cltq
	0x48, 0x39, 0xc2, // cmp    %rax,%rdx
	0xd9, 0x05, 0x1a, 0x00, 0x00, 0x00, // flds   0x1a(%rip)
	0x7d, 0x13, // jge    +0x13
	0xde, 0xc1, // faddp
	0x48, 0xff, 0xc2, // inc    %rdx
	0xd9, 0xfa, // fsqrt
	0xd9, 0x05, 0x0f, 0x00, 0x00, 0x00, // flds   15(%rip)
	0xd8, 0xc9, // fmul   %st(1),%st
	0xde, 0xca, // fmulp  %st,%st(2)
	0xeb, 0xe2, // jmp    back
	0xdd, 0xd9, // fstp   %st(1)
	0xde, 0xf1, // fdivp
	0xf4, // hlt
	0x00, 0x00, 0x00, 0x40, // .float 2.0
	0x00, 0x00, 0x00, 0x3f, // .float 0.5
}

func TestMachine_Pi80(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, kPi80)
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	if x := m.FpuPop(); math.Abs(x-3.14159) > 1e-4 {
		t.Fatalf("pi = %v", x)
	}
}

func TestMachine_FpremSign(t *testing.T) {
	// 1 rem -1.5 leaves 1 with C2 clear
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0xd9, 0x05, 0x05, 0x00, 0x00, 0x00, // flds -1.5
		0xd9, 0xe8, // fld1
		0xd9, 0xf8, // fprem
		0xf4,
		0x00, 0x00, 0xc0, 0xbf, // .float -1.5
	})
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	if m.fpu.sw&fpuSwC2 != 0 {
		t.Fatalf("C2 set after fprem")
	}
	if x := m.FpuPop(); x != 1 {
		t.Fatalf("fprem = %v, want 1", x)
	}
}

func TestMachine_LeaAddressSizeOverride(t *testing.T) {
	m := newTestMachine(t)
	Put64(m.bx(), 0x2)
	Put64(m.ax(), 0xffffffff)
	// without 0x67 the whole expression keeps 64-bit width
	InitInsn(&m.insn, modeLong)
	if err := DecodeInstruction(&m.insn, []byte{0x8d, 0x04, 0x03}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := m.computeAddress(m.insn.rde); got != 0x100000001 {
		t.Fatalf("lea = %#x, want 0x100000001", got)
	}
	// with 0x67 the expression truncates to 32 bits
	InitInsn(&m.insn, modeLong)
	if err := DecodeInstruction(&m.insn,
		[]byte{0x67, 0x8d, 0x04, 0x03}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := m.computeAddress(m.insn.rde); got != 0x1 {
		t.Fatalf("lea with 67 = %#x, want 0x1", got)
	}
}

func TestMachine_SibIndexOnly(t *testing.T) {
	m := newTestMachine(t)
	Put64(m.bp(), 0x123)
	Put64(m.cx(), 0x123)
	InitInsn(&m.insn, modeLong)
	if err := DecodeInstruction(&m.insn,
		[]byte{0x4c, 0x8d, 0x04, 0x8d, 0, 0, 0, 0}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rde := m.insn.rde
	if !rde.Rexw() || rde.Rexr() != 1 || rde.Rexb() != 0 {
		t.Fatalf("rex bits wrong: %#x", uint64(rde))
	}
	if rde.ModrmReg() != 0 || rde.ModrmRm() != 4 {
		t.Fatalf("modrm fields wrong")
	}
	if got := m.computeAddress(rde); got != 0x123*4 {
		t.Fatalf("addr = %#x, want %#x", got, 0x123*4)
	}
}

func TestMachine_RizIndexForms(t *testing.T) {
	m := newTestMachine(t)
	Put64(m.si(), 0x100000001)
	Put64(m.bp(), 0x200000002)
	cases := []struct {
		op   []byte
		want int64
	}{
		{[]byte{0x8d, 0x34, 0x26}, 0x100000001},
		{[]byte{0x67, 0x8d, 0x34, 0xe6}, 0x000000001},
		{[]byte{103, 141, 180, 229, 55, 19, 3, 0}, 0x31339},
		{[]byte{141, 52, 229, 55, 19, 3, 0}, 0x31337},
	}
	for i, c := range cases {
		InitInsn(&m.insn, modeLong)
		if err := DecodeInstruction(&m.insn, c.op); err != nil {
			t.Fatalf("case %d decode: %v", i, err)
		}
		if got := m.computeAddress(m.insn.rde); got != c.want {
			t.Errorf("case %d addr = %#x, want %#x", i, got, c.want)
		}
	}
}

func TestMachine_SegmentationFaultAddress(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0x48, 0xb8, 0, 0, 0, 0, 0, 0, 0xf0, 0x7f, // movabs $0x7ff..,%rax
		0x8b, 0x00, // mov (%rax),%eax
		0xf4,
	})
	if code := runUntilHalt(t, m); code != machineSegmentationFault {
		t.Fatalf("halt code = %d, want #SEGV", code)
	}
	if m.faultAddr == 0 {
		t.Fatalf("faultaddr not recorded")
	}
}

func TestMachine_Cpuid(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0x31, 0xc0, // xor %eax,%eax
		0x0f, 0xa2, // cpuid
		0xf4,
	})
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	if got := Get32(m.ax()); got != 7 {
		t.Fatalf("max leaf = %d, want 7", got)
	}
	var vendor [12]byte
	Put32(vendor[0:], Get32(m.bx()))
	Put32(vendor[4:], Get32(m.dx()))
	Put32(vendor[8:], Get32(m.cx()))
	if string(vendor[:]) != "GenuineIntel" {
		t.Fatalf("vendor = %q", vendor)
	}
}

func TestMachine_RepStosAndMovs(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0xb0, 0x5a, // mov $0x5a,%al
		0xbf, 0x00, 0x40, 0x00, 0x00, // mov $0x4000,%edi
		0xb9, 0x20, 0x00, 0x00, 0x00, // mov $32,%ecx
		0xf3, 0xaa, // rep stosb
		0xbe, 0x00, 0x40, 0x00, 0x00, // mov $0x4000,%esi
		0xbf, 0x00, 0x50, 0x00, 0x00, // mov $0x5000,%edi
		0xb9, 0x20, 0x00, 0x00, 0x00, // mov $32,%ecx
		0xf3, 0xa4, // rep movsb
		0xf4,
	})
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	for i := 0; i < 32; i++ {
		if m.sys.ram[0x4000+i] != 0x5a || m.sys.ram[0x5000+i] != 0x5a {
			t.Fatalf("byte %d not copied", i)
		}
	}
	if got := Get64(m.cx()); got != 0 {
		t.Fatalf("RCX = %d, want 0", got)
	}
}
