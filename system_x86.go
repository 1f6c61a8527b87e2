// system_x86.go - The system owning guest RAM, machines, and the JIT arena
//
// Machines are arena-owned and addressed by index so the machine/system/jit
// reference cycle never holds raw back-pointers. Guest RAM is one anonymous
// mapping shared by every machine; installed JIT paths are published under a
// single writer lock and read lock-free through an atomic map value.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

const defaultRamSize = 256 << 20

// Statistics is the process-wide counter set, initialised lazily.
type Statistics struct {
	aluSimplified atomic.Int64
	fusedBranches atomic.Int64
	pathAbandoned atomic.Int64
	pathCount     atomic.Int64
}

// System owns the resources shared between guest threads.
type System struct {
	ram      []byte
	mapped   bool
	machines []*Machine
	mu       sync.Mutex

	busLocks [64]sync.Mutex

	jitEnabled bool
	jitMu      sync.Mutex
	jitPaths   atomic.Value // map[int64]*Path
	hot        atomic.Value // *sync.Map of int64 -> *atomic.Int64

	stats Statistics

	onSyscall func(*Machine)
	onIn      func(*Machine, uint16) uint32
	onOut     func(*Machine, uint16, uint32)
}

// NewSystem reserves guest RAM, preferring an anonymous mapping so large
// guests stay lazily committed, and falls back to a plain allocation.
func NewSystem(ramSize int) (*System, error) {
	if ramSize <= 0 {
		ramSize = defaultRamSize
	}
	if ramSize&pageMask != 0 {
		return nil, errors.New("ram size must be page aligned")
	}
	s := &System{}
	ram, err := unix.Mmap(-1, 0, ramSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err == nil {
		s.ram = ram
		s.mapped = true
	} else {
		logrus.WithError(err).Debug("mmap failed, using heap ram")
		s.ram = make([]byte, ramSize)
	}
	s.jitPaths.Store(map[int64]*Path{})
	s.hot.Store(new(sync.Map))
	return s, nil
}

// Close releases the RAM mapping.
func (s *System) Close() error {
	if s.mapped {
		s.mapped = false
		return unix.Munmap(s.ram)
	}
	return nil
}

// NewMachine adds a guest thread to the arena and returns it. Machines are
// referred to by index; the slice is append-only.
func (s *System) NewMachine() *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := NewMachine(s, len(s.machines))
	s.machines = append(s.machines, m)
	return m
}

// MachineByIndex resolves an arena index.
func (s *System) MachineByIndex(id int) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.machines) {
		return nil
	}
	return s.machines[id]
}

// Run executes every machine on its own goroutine and returns the first
// halt code, interrupting the rest.
func (s *System) Run() (int, error) {
	var g errgroup.Group
	var first atomic.Int64
	first.Store(int64(^uint64(0) >> 1))
	s.mu.Lock()
	machines := append([]*Machine(nil), s.machines...)
	s.mu.Unlock()
	for _, m := range machines {
		m := m
		g.Go(func() error {
			code := m.Run()
			first.CompareAndSwap(int64(^uint64(0)>>1), int64(code))
			for _, other := range machines {
				if other != m {
					other.sigCheck.Store(true)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return int(first.Load()), err
}

// ----------------------------------------------------------------------------
// JIT arena
// ----------------------------------------------------------------------------

// getPath reads the installed path map lock-free.
func (s *System) getPath(pc int64) *Path {
	paths := s.jitPaths.Load().(map[int64]*Path)
	return paths[pc]
}

// installPath publishes a finished path; writers serialise, readers keep
// seeing a consistent snapshot.
func (s *System) installPath(p *Path) {
	s.jitMu.Lock()
	defer s.jitMu.Unlock()
	old := s.jitPaths.Load().(map[int64]*Path)
	next := make(map[int64]*Path, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[p.start] = p
	s.jitPaths.Store(next)
	s.stats.pathCount.Add(1)
}

// FlushJit reclaims every installed path, e.g. when guest mappings change.
func (s *System) FlushJit() {
	s.jitMu.Lock()
	defer s.jitMu.Unlock()
	s.jitPaths.Store(map[int64]*Path{})
	s.hot.Store(new(sync.Map))
	s.mu.Lock()
	for _, m := range s.machines {
		m.ResetInstructionCache()
		m.ResetTlb()
	}
	s.mu.Unlock()
}

// bumpHot counts dispatches at a pc for the hot-path heuristic.
func (s *System) bumpHot(pc int64) int64 {
	hot := s.hot.Load().(*sync.Map)
	v, _ := hot.LoadOrStore(pc, new(atomic.Int64))
	return v.(*atomic.Int64).Add(1)
}
