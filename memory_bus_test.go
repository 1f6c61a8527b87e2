// memory_bus_test.go - Memory subsystem and commit protocol tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"sync"
	"testing"
)

func TestMemory_LoadSinglePageAliases(t *testing.T) {
	m := newTestMachine(t)
	m.sys.ram[0x2000] = 0xaa
	var buf [8]byte
	p := m.load(0x2000, 1, buf[:])
	if p[0] != 0xaa {
		t.Fatalf("load = %#x", p[0])
	}
	p[0] = 0xbb
	if m.sys.ram[0x2000] != 0xbb {
		t.Fatalf("single-page load did not alias guest ram")
	}
}

func TestMemory_CrossPageLoadGathers(t *testing.T) {
	m := newTestMachine(t)
	base := int64(pageSize - 4)
	for i := 0; i < 8; i++ {
		m.sys.ram[base+int64(i)] = byte(i + 1)
	}
	var buf [8]byte
	p := m.load(base, 8, buf[:])
	for i := 0; i < 8; i++ {
		if p[i] != byte(i+1) {
			t.Fatalf("gathered byte %d = %#x", i, p[i])
		}
	}
}

// Commit atomicity: before endStore the second page is unchanged; after,
// both pages reflect the full value.
func TestMemory_CrossPageStoreCommitAtomicity(t *testing.T) {
	m := newTestMachine(t)
	addr := int64(pageSize - 4)
	p := m.beginStore(addr, 8)
	Put64(p, 0x1122334455667788)
	for i := 0; i < 4; i++ {
		if m.sys.ram[pageSize+i] != 0 {
			t.Fatalf("second page touched before commit")
		}
	}
	if m.stashAddr != addr {
		t.Fatalf("stash not recorded")
	}
	m.commitStash()
	if got := Get64(m.sys.ram[addr:]); got != 0x1122334455667788 {
		t.Fatalf("committed value = %#x", got)
	}
}

// The cross-page MOV through the dispatcher behaves the same way.
func TestMemory_CrossPageMovStore(t *testing.T) {
	m := newTestMachine(t)
	Put64(m.di(), uint64(2*pageSize-4))
	Put64(m.ax(), 0xdeadbeefcafebabe)
	loadProgram(m, []byte{
		0x48, 0x89, 0x07, // mov %rax,(%rdi)
		0xf4,
	})
	if code := runUntilHalt(t, m); code != machineHalt {
		t.Fatalf("halt code = %d", code)
	}
	if got := Get64(m.sys.ram[2*pageSize-4:]); got != 0xdeadbeefcafebabe {
		t.Fatalf("stored = %#x", got)
	}
}

func TestMemory_CrossPageStoreFaultsBeforeWriting(t *testing.T) {
	s := newTestSystem(t)
	m := s.NewMachine()
	addr := int64(len(s.ram) - 4)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected fault")
			}
		}()
		m.beginStore(addr, 8)
	}()
	for i := int64(0); i < 4; i++ {
		if s.ram[addr+i] != 0 {
			t.Fatalf("bytes written before fault")
		}
	}
}

func TestMemory_TlbInvalidation(t *testing.T) {
	m := newTestMachine(t)
	m.resolveAddress(0x3000)
	found := false
	for i := range m.tlb {
		if m.tlb[i].virt == 0x3000 {
			found = true
		}
	}
	if !found {
		t.Fatalf("translation not cached")
	}
	m.ResetTlb()
	for i := range m.tlb {
		if m.tlb[i].virt == 0x3000 {
			t.Fatalf("translation survived invalidation")
		}
	}
}

func TestMemory_PageWalk(t *testing.T) {
	m := newTestMachine(t)
	ram := m.sys.ram
	// map virtual page 0x7000 to physical 0x9000 through a 4-level tree
	// rooted at 0x10000
	const root = 0x10000
	Put64(ram[root:], 0x11000|pageV)
	Put64(ram[0x11000:], 0x12000|pageV)
	Put64(ram[0x12000:], 0x13000|pageV)
	Put64(ram[0x13000+7*8:], 0x9000|pageV)
	m.cr0 |= cr0Pg
	m.cr3 = root
	m.ResetTlb()
	ram[0x9000] = 0x77
	p := m.resolveAddress(0x7000)
	if p[0] != 0x77 {
		t.Fatalf("walked page wrong: %#x", p[0])
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected fault on unmapped page")
		}
	}()
	m.resolveAddress(0x8000)
}

func lockedIncrementRace(t *testing.T, addr int64) {
	t.Helper()
	s := newTestSystem(t)
	m1 := s.NewMachine()
	m2 := s.NewMachine()
	const rounds = 2000
	var d Insn
	InitInsn(&d, modeLong)
	if err := DecodeInstruction(&d,
		[]byte{0xf0, 0x83, 0x07, 0x01}); err != nil { // lock addl $1,(%rdi)
		t.Fatalf("decode: %v", err)
	}
	var wg sync.WaitGroup
	for _, m := range []*Machine{m1, m2} {
		wg.Add(1)
		go func(m *Machine) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				p := m.resolveAddress(addr)[:4]
				m.lockedRmw(d.rde, p, addr, kAlu[aluAdd][2], 1)
			}
		}(m)
	}
	wg.Wait()
	if got := Get32(s.ram[addr:]); got != 2*rounds {
		t.Fatalf("lost updates: %d, want %d", got, 2*rounds)
	}
}

// Lock linearisability: concurrent locked RMW from two machines must not
// lose updates, whether the CAS loop or the bus lock serves the access.
func TestMemory_LockedRmwLinearisable(t *testing.T) {
	lockedIncrementRace(t, 0x4000)
}

func TestMemory_LockedRmwUnaligned(t *testing.T) {
	lockedIncrementRace(t, 0x4001)
}

func TestMemory_MaskAddress(t *testing.T) {
	if maskAddress(modeReal, 0x12345) != 0x2345 {
		t.Fatalf("real mask wrong")
	}
	if maskAddress(modeLegacy, 0x112345678) != 0x12345678 {
		t.Fatalf("legacy mask wrong")
	}
	if maskAddress(modeLong, 0x112345678) != 0x112345678 {
		t.Fatalf("long mask wrong")
	}
}
