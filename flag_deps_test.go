// flag_deps_test.go - Flag dependency crawl and path builder tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "testing"

func decodeRde(t *testing.T, op []byte) Rde {
	t.Helper()
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d, op); err != nil {
		t.Fatalf("decode %x: %v", op, err)
	}
	return d.rde
}

func TestDeps_ClobberAndDepTables(t *testing.T) {
	add := decodeRde(t, []byte{0x01, 0xd8})
	if getFlagClobbers(add) != allArithFlags {
		t.Fatalf("add clobbers = %#x", getFlagClobbers(add))
	}
	if getFlagDeps(add) != 0 {
		t.Fatalf("add deps = %#x", getFlagDeps(add))
	}
	adc := decodeRde(t, []byte{0x11, 0xd8})
	if getFlagDeps(adc) != maskCF {
		t.Fatalf("adc deps = %#x", getFlagDeps(adc))
	}
	je := decodeRde(t, []byte{0x74, 0x00})
	if getFlagDeps(je) != maskZF || getFlagClobbers(je) != 0 {
		t.Fatalf("je tables wrong")
	}
	jbe := decodeRde(t, []byte{0x76, 0x00})
	if getFlagDeps(jbe) != maskCF|maskZF {
		t.Fatalf("jbe deps = %#x", getFlagDeps(jbe))
	}
	rol := decodeRde(t, []byte{0xd1, 0xc0})
	if getFlagClobbers(rol) != maskOF|maskCF {
		t.Fatalf("rol clobbers = %#x", getFlagClobbers(rol))
	}
	sar := decodeRde(t, []byte{0xd1, 0xf8})
	if getFlagClobbers(sar) != allArithFlags {
		t.Fatalf("sar clobbers = %#x", getFlagClobbers(sar))
	}
	ret := decodeRde(t, []byte{0xc3})
	if getFlagClobbers(ret) != -1 {
		t.Fatalf("ret must be opaque")
	}
}

func TestDeps_CrawlStopsAtClobber(t *testing.T) {
	m := newTestMachine(t)
	// xor clobbers every flag before anything reads it
	loadProgram(m, []byte{
		0x31, 0xc0, // xor %eax,%eax
		0x74, 0x00, // je
		0xf4,
	})
	if need := m.GetNeededFlags(0, allArithFlags); need != 0 {
		t.Fatalf("need = %#x, want 0", need)
	}
}

func TestDeps_CrawlSeesReader(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0x89, 0xd8, // mov %ebx,%eax
		0x74, 0x02, // je +2
		0x31, 0xc0, // xor %eax,%eax
		0xf4,
	})
	need := m.GetNeededFlags(0, allArithFlags)
	if need&maskZF == 0 {
		t.Fatalf("need = %#x, want ZF", need)
	}
}

func TestDeps_CrawlFollowsJump(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0xeb, 0x02, // jmp +2
		0xcc, 0xcc, // junk never reached
		0x72, 0x00, // jb
		0x31, 0xc0, // xor
		0xf4,
	})
	need := m.GetNeededFlags(0, allArithFlags)
	if need != maskCF {
		t.Fatalf("need = %#x, want CF", need)
	}
}

func TestDeps_PreciousOpIsUnknown(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0x89, 0xd8, // mov
		0xc3, // ret
	})
	if need := m.GetNeededFlags(0, allArithFlags); need != -1 {
		t.Fatalf("need = %#x, want -1", need)
	}
}

// The analyser must be a pure function of the instruction stream.
func TestDeps_CrawlIsIdempotent(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, []byte{
		0x89, 0xd8,
		0x74, 0x02,
		0x31, 0xc0,
		0xf4,
	})
	first := m.GetNeededFlags(0, allArithFlags)
	for i := 0; i < 10; i++ {
		if got := m.GetNeededFlags(0, allArithFlags); got != first {
			t.Fatalf("crawl not idempotent: %#x then %#x", first, got)
		}
	}
}

// ----------------------------------------------------------------------------
// Path builder
// ----------------------------------------------------------------------------

// Running a hot loop with the path builder enabled must finish in the same
// state as pure interpretation.
func TestPath_MatchesInterpreter(t *testing.T) {
	run := func(jit bool) (uint32, uint32) {
		s, err := NewSystem(1 << 20)
		if err != nil {
			t.Fatalf("NewSystem: %v", err)
		}
		defer s.Close()
		s.jitEnabled = jit
		m := s.NewMachine()
		Put64(m.sp(), 0x8000)
		loadProgram(m, kTenthprime)
		if code := m.Run(); code != machineHalt {
			t.Fatalf("halt code = %d", code)
		}
		return Get32(m.ax()), Get32(m.cx())
	}
	iax, icx := run(false)
	jax, jcx := run(true)
	if iax != jax || icx != jcx {
		t.Fatalf("jit diverged: eax %d vs %d, ecx %d vs %d",
			iax, jax, icx, jcx)
	}
	if iax != 15 {
		t.Fatalf("eax = %d, want 15", iax)
	}
}

// The AL,imm8 compare exists both as a plain handler and as a recorded
// micro-op; the two must agree on every input.
func TestPath_CmpAlIbEquivalence(t *testing.T) {
	m := newTestMachine(t)
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d, []byte{0x3c, 0x80}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for al := 0; al < 256; al++ {
		m.setAl(uint8(al))
		m.flags = 0
		m.insn = d
		opCmpAlIb(m, d.rde)
		want := m.flags
		m.flags = 0
		var f uint32
		kAlu[aluCmp][0](uint64(uint8(al)), d.uimm0, &f)
		if GetFlag(want, flagsCF) != GetFlag(f, flagsCF) ||
			GetFlag(want, flagsZF) != GetFlag(f, flagsZF) ||
			GetFlag(want, flagsSF) != GetFlag(f, flagsSF) ||
			GetFlag(want, flagsOF) != GetFlag(f, flagsOF) ||
			GetFlag(want, flagsPF) != GetFlag(f, flagsPF) {
			t.Fatalf("al=%#x: handler flags %#x, kernel flags %#x",
				al, want, f)
		}
	}
}

func TestPath_FusedBranchLoop(t *testing.T) {
	// count to 1000 in a tight cmp+jne loop, hot enough to compile
	prog := []byte{
		0x31, 0xc0, // xor %eax,%eax
		0xff, 0xc0, // inc %eax
		0x81, 0xf8, 0xe8, 0x03, 0x00, 0x00, // cmp $1000,%eax
		0x75, 0xf6, // jne back to the inc
		0x89, 0xc3, // mov %eax,%ebx
		0x31, 0xc9, // xor %ecx,%ecx
		0xf4,
	}
	s, err := NewSystem(1 << 20)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	defer s.Close()
	s.jitEnabled = true
	m := s.NewMachine()
	Put64(m.sp(), 0x8000)
	loadProgram(m, prog)
	if code := m.Run(); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	if got := Get32(m.ax()); got != 1000 {
		t.Fatalf("eax = %d, want 1000", got)
	}
}

func TestPath_FlushDropsInstalledPaths(t *testing.T) {
	s := newTestSystem(t)
	p := &Path{start: 0x1234, elements: 1}
	s.installPath(p)
	if s.getPath(0x1234) == nil {
		t.Fatalf("path not installed")
	}
	s.FlushJit()
	if s.getPath(0x1234) != nil {
		t.Fatalf("path survived flush")
	}
}
