// memory_bus.go - Guest memory access and the cross-page commit protocol
//
// Translates guest linear addresses to host slices over the system RAM,
// with a small direct-mapped TLB and an optional 4-level page walk when the
// guest enables paging. Stores that straddle a page boundary go through the
// BeginStore/EndStore protocol: the handler writes into the machine's stash
// buffer and the dispatcher scatter-copies it out after the instruction
// completes, so no partially written state is ever visible.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

const (
	pageSize = 4096
	pageMask = pageSize - 1
)

// Page table entry bits used by the walk.
const (
	pageV  = 1 << 0
	pageRw = 1 << 1
	pageU  = 1 << 2
)

const cr0Pg = 1 << 31

// maskAddress truncates an address to the given addressing mode.
func maskAddress(mode int, x uint64) uint64 {
	switch mode {
	case modeReal:
		return x & 0xffff
	case modeLegacy:
		return x & 0xffffffff
	default:
		return x
	}
}

// ResetTlb invalidates all cached translations, e.g. on mmap, mprotect, or
// CR3 writes.
func (m *Machine) ResetTlb() {
	for i := range m.tlb {
		m.tlb[i] = tlbEntry{virt: -1}
	}
	m.tlbIndex = 0
}

// walkPageTable resolves one page through the 4-level tree rooted at CR3,
// returning the physical page frame or -1.
func (m *Machine) walkPageTable(virt int64) int64 {
	ram := m.sys.ram
	table := int64(m.cr3 &^ pageMask)
	for level := 39; level >= 12; level -= 9 {
		idx := virt >> level & 511
		off := table + idx*8
		if off < 0 || off+8 > int64(len(ram)) {
			return -1
		}
		entry := int64(Get64(ram[off:]))
		if entry&pageV == 0 {
			return -1
		}
		if level == 12 {
			return entry &^ pageMask & 0x7ffffffff000
		}
		table = entry &^ pageMask & 0x7ffffffff000
	}
	return -1
}

// findPage returns the host page backing a guest virtual page, consulting
// the TLB first.
func (m *Machine) findPage(virt int64) []byte {
	virt &^= pageMask
	for i := range m.tlb {
		if m.tlb[i].virt == virt && m.tlb[i].host != nil {
			return m.tlb[i].host
		}
	}
	var phys int64
	if m.cr0&cr0Pg != 0 {
		phys = m.walkPageTable(virt)
		if phys < 0 {
			return nil
		}
	} else {
		phys = virt
	}
	if phys < 0 || phys+pageSize > int64(len(m.sys.ram)) {
		return nil
	}
	host := m.sys.ram[phys : phys+pageSize : phys+pageSize]
	i := m.tlbIndex & uint32(len(m.tlb)-1)
	m.tlb[i] = tlbEntry{virt: virt, host: host}
	m.tlbIndex++
	return host
}

// lookupAddress returns the host bytes at a guest address up to the end of
// its page, or nil.
func (m *Machine) lookupAddress(virt int64) []byte {
	page := m.findPage(virt)
	if page == nil {
		return nil
	}
	return page[virt&pageMask:]
}

// resolveAddress is lookupAddress that faults instead of returning nil.
func (m *Machine) resolveAddress(virt int64) []byte {
	p := m.lookupAddress(virt)
	if p == nil {
		m.ThrowSegmentationFault(virt)
	}
	return p
}

// copyFromGuest gathers bytes across page boundaries; returns bytes copied
// before the first unmapped page.
func (m *Machine) copyFromGuest(dst []byte, virt int64) int {
	n := 0
	for n < len(dst) {
		p := m.lookupAddress(virt + int64(n))
		if p == nil {
			break
		}
		n += copy(dst[n:], p)
	}
	return n
}

// copyToGuest scatters bytes across page boundaries, faulting on unmapped
// pages.
func (m *Machine) copyToGuest(virt int64, src []byte) {
	n := 0
	for n < len(src) {
		p := m.resolveAddress(virt + int64(n))
		n += copy(p, src[n:])
	}
}

// load reads size bytes at virt. If the access fits one page the returned
// slice aliases guest RAM; otherwise the bytes are gathered into buf.
func (m *Machine) load(virt int64, size int, buf []byte) []byte {
	if virt&pageMask+int64(size) <= pageSize {
		return m.resolveAddress(virt)[:size]
	}
	if m.copyFromGuest(buf[:size], virt) != size {
		m.ThrowSegmentationFault(virt)
	}
	return buf[:size]
}

// beginStore reserves size bytes at virt for writing. A single-page access
// returns a direct pointer into guest RAM; a straddling access verifies both
// pages up front, so the fault is raised before any bytes are touched, and
// returns the machine's stash, recording the pending commit.
func (m *Machine) beginStore(virt int64, size int) []byte {
	if virt&pageMask+int64(size) <= pageSize {
		return m.resolveAddress(virt)[:size]
	}
	if m.lookupAddress(virt) == nil {
		m.ThrowSegmentationFault(virt)
	}
	last := virt + int64(size) - 1
	if m.lookupAddress(last) == nil {
		m.ThrowSegmentationFault(last &^ pageMask)
	}
	m.stashAddr = virt
	m.stashSize = size
	return m.stash[:size]
}

// endStore completes a beginStore immediately. Handlers that defer to the
// dispatcher's commit simply leave the stash pending.
func (m *Machine) endStore() {
	if m.stashAddr != 0 {
		m.commitStash()
	}
}

// commitStash scatter-copies a pending cross-page store out to the two
// underlying guest pages.
func (m *Machine) commitStash() {
	addr, size := m.stashAddr, m.stashSize
	m.stashAddr = 0
	m.copyToGuest(addr, m.stash[:size])
}

// reserveAddress returns a host window of size bytes at virt, routing
// page-straddling stores through the stash.
func (m *Machine) reserveAddress(virt int64, size int, store bool) []byte {
	if store {
		return m.beginStore(virt, size)
	}
	return m.load(virt, size, m.readBuf[:])
}

// setReadAddr and setWriteAddr record probe windows for diagnostics.
func (m *Machine) setReadAddr(addr int64, size int) {
	m.readAddr, m.readSize = addr, size
}

func (m *Machine) setWriteAddr(addr int64, size int) {
	m.writeAddr, m.writeSize = addr, size
}

// ----------------------------------------------------------------------------
// Bus locking
// ----------------------------------------------------------------------------

// lockBus acquires the striped page lock covering a guest address.
func (m *Machine) lockBus(virt int64) {
	m.sys.busLocks[uint64(virt)>>12&uint64(len(m.sys.busLocks)-1)].Lock()
}

func (m *Machine) unlockBus(virt int64) {
	m.sys.busLocks[uint64(virt)>>12&uint64(len(m.sys.busLocks)-1)].Unlock()
}

// lockedRmw runs an ALU kernel atomically against guest memory. Naturally
// aligned 4 and 8 byte operands use a lock-free compare-and-swap loop; all
// other shapes serialise through the per-page bus lock.
func (m *Machine) lockedRmw(rde Rde, p []byte, virt int64, op aluOp, y uint64) {
	switch rde.RegLog2() {
	case 3:
		if aligned(p, 8) {
			for {
				x := Load64Acq(p)
				z := op(x, y, &m.flags)
				if Cas64(p, x, z) {
					return
				}
			}
		}
	case 2:
		if aligned(p, 4) {
			for {
				x := Load32Acq(p)
				z := uint32(op(uint64(x), y, &m.flags))
				if Cas32(p, x, z) {
					return
				}
			}
		}
	}
	m.lockBus(virt)
	m.writeRegisterOrMemoryBW(rde, p, op(m.readRegisterOrMemoryBW(rde, p), y, &m.flags))
	m.unlockBus(virt)
}
