// machine_x86.go - x86-64 machine state and execution loop
//
// A Machine is one guest thread of execution: the 16-entry byte-addressable
// register file, segment descriptors, EFLAGS with the lazy parity cache,
// x87 and XMM state, the instruction pointer, a decoded-instruction cache,
// the per-thread TLB, and the cross-page store stash. Guest-visible faults
// unwind to the Run loop through a single panic/recover channel carrying a
// halt code.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Halt reason codes.
const (
	machineHalt                 = -1
	machineDecodeError          = -2
	machineUndefinedInstruction = -3
	machineSegmentationFault    = -4
	machineExit                 = -5
	machineDivideError          = -6
	machineFpuException         = -7
	machineProtectionFault      = -8
	machineSimdException        = -9
)

// Segment register indices.
const (
	segEs = 0
	segCs = 1
	segSs = 2
	segDs = 3
	segFs = 4
	segGs = 5
)

// Segment holds one descriptor-cache entry. In long mode only the FS and GS
// bases are observable; CS/SS/DS/ES base to zero.
type Segment struct {
	sel   uint16
	base  uint64
	limit uint32
	attr  uint16
}

type tlbEntry struct {
	virt int64
	host []byte
}

const icacheLines = 1024

type icacheLine struct {
	virt  int64
	valid bool
	insn  Insn
}

// Machine is one guest thread of execution.
type Machine struct {
	sys   *System
	id    int
	ip    uint64
	oldip uint64
	mode  int
	flags uint32
	reg   [16][8]byte
	xmm   [16][16]byte
	seg   [6]Segment
	fpu   FpuState
	mxcsr uint32
	cr0   uint64
	cr2   uint64
	cr3   uint64
	cr4   uint64

	insn   Insn
	icache [icacheLines]icacheLine

	tlb      [16]tlbEntry
	tlbIndex uint32

	stashAddr int64
	stashSize int
	stash     [4096]byte
	readBuf   [64]byte

	readAddr  int64
	writeAddr int64
	readSize  int
	writeSize int
	faultAddr int64

	path pathState

	haltCode int
	halted   bool
	sigCheck atomic.Bool

	trapCpuid bool
	trapRdtsc bool
	trace     bool
}

// machineFault is the payload of the single non-local exit used for guest
// visible faults; it unwinds handlers back to the Run loop.
type machineFault struct {
	code int
}

// General register indices.
const (
	regAx = iota
	regCx
	regDx
	regBx
	regSp
	regBp
	regSi
	regDi
	regR8
	regR9
	regR10
	regR11
	regR12
	regR13
	regR14
	regR15
)

// kByteReg maps the 5-bit (rex present, rex.b, reg) byte-register index to a
// byte offset within the register file. Without REX, indices 4-7 select the
// AH family one byte up inside AX..BX.
var kByteReg = [32]uint8{
	0, 8, 16, 24, 1, 9, 17, 25,
	64, 72, 80, 88, 65, 73, 81, 89,
	0, 8, 16, 24, 32, 40, 48, 56,
	64, 72, 80, 88, 96, 104, 112, 120,
}

func NewMachine(sys *System, id int) *Machine {
	m := &Machine{sys: sys, id: id, mode: modeLong}
	m.Reset()
	return m
}

// Reset puts the machine in its power-on state without touching guest RAM.
func (m *Machine) Reset() {
	m.ip = 0
	m.flags = 0
	for i := range m.reg {
		for j := range m.reg[i] {
			m.reg[i][j] = 0
		}
	}
	for i := range m.seg {
		m.seg[i] = Segment{}
	}
	m.fpu.Reset()
	m.mxcsr = 0x1f80
	m.halted = false
	m.haltCode = 0
	m.ResetTlb()
	m.ResetInstructionCache()
	m.stashAddr = 0
	m.path = pathState{}
}

// ----------------------------------------------------------------------------
// Register file access
// ----------------------------------------------------------------------------

// regSlice returns the 8-byte window of a general register.
func (m *Machine) regSlice(i int) []byte {
	return m.reg[i&15][:]
}

func (m *Machine) ax() []byte { return m.reg[regAx][:] }
func (m *Machine) cx() []byte { return m.reg[regCx][:] }
func (m *Machine) dx() []byte { return m.reg[regDx][:] }
func (m *Machine) bx() []byte { return m.reg[regBx][:] }
func (m *Machine) sp() []byte { return m.reg[regSp][:] }
func (m *Machine) bp() []byte { return m.reg[regBp][:] }
func (m *Machine) si() []byte { return m.reg[regSi][:] }
func (m *Machine) di() []byte { return m.reg[regDi][:] }

func (m *Machine) al() uint8     { return m.reg[regAx][0] }
func (m *Machine) setAl(x uint8) { m.reg[regAx][0] = x }
func (m *Machine) ah() uint8     { return m.reg[regAx][1] }
func (m *Machine) setAh(x uint8) { m.reg[regAx][1] = x }
func (m *Machine) cl() uint8     { return m.reg[regCx][0] }

// byteReg returns the one-byte window selected by a 5-bit byte register
// index (see kByteReg).
func (m *Machine) byteReg(k int) []byte {
	off := kByteReg[k&31]
	return m.reg[off>>3][off&7 : off&7+1]
}

func (m *Machine) regRexbRm(rde Rde) []byte  { return m.regSlice(rde.RexbRm()) }
func (m *Machine) regRexrReg(rde Rde) []byte { return m.regSlice(rde.RexrReg()) }
func (m *Machine) regRexbSrm(rde Rde) []byte { return m.regSlice(rde.RexbSrm()) }
func (m *Machine) regSrm(rde Rde) []byte     { return m.regSlice(rde.Srm()) }
func (m *Machine) byteRexbRm(rde Rde) []byte { return m.byteReg(rde.ByteRexb()) }
func (m *Machine) byteRexrReg(rde Rde) []byte {
	return m.byteReg(rde.ByteRexr())
}
func (m *Machine) byteRexbSrm(rde Rde) []byte {
	return m.byteReg(int(rde>>12) & 037)
}
func (m *Machine) xmmRexbRm(rde Rde) []byte  { return m.xmm[rde.RexbRm()][:] }
func (m *Machine) xmmRexrReg(rde Rde) []byte { return m.xmm[rde.RexrReg()][:] }
func (m *Machine) mmRm(rde Rde) []byte       { return m.xmm[rde.ModrmRm()][:8] }
func (m *Machine) mmReg(rde Rde) []byte      { return m.xmm[rde.ModrmReg()][:8] }

// readRegister reads a general register honouring the osz/rexw width rules.
func readRegister(rde Rde, p []byte) uint64 {
	if rde.Rexw() {
		return Get64(p)
	} else if !rde.Osz() {
		return uint64(Get32(p))
	}
	return uint64(Get16(p))
}

func readRegisterSigned(rde Rde, p []byte) int64 {
	if rde.Rexw() {
		return int64(Get64(p))
	} else if !rde.Osz() {
		return int64(int32(Get32(p)))
	}
	return int64(int16(Get16(p)))
}

// writeRegister writes a general register; 32-bit writes zero the top half.
func writeRegister(rde Rde, p []byte, x uint64) {
	if rde.Rexw() {
		Put64(p, x)
	} else if !rde.Osz() {
		Put64(p, x&0xffffffff)
	} else {
		Put16(p, uint16(x))
	}
}

// readMemoryBW reads a byte or word-sized operand through a host pointer,
// using acquire semantics on aligned word sizes.
func readMemory(rde Rde, p []byte) uint64 {
	if rde.Rexw() {
		return Load64Acq(p)
	} else if !rde.Osz() {
		return uint64(Load32Acq(p))
	}
	return uint64(Get16(p))
}

func readMemorySigned(rde Rde, p []byte) int64 {
	if rde.Rexw() {
		return int64(Load64Acq(p))
	} else if !rde.Osz() {
		return int64(int32(Load32Acq(p)))
	}
	return int64(int16(Get16(p)))
}

func writeMemory(rde Rde, p []byte, x uint64) {
	if rde.Rexw() {
		Store64Rel(p, x)
	} else if !rde.Osz() {
		Store32Rel(p, uint32(x))
	} else {
		Put16(p, uint16(x))
	}
}

// writeRegisterOrMemory picks the register write rules (32-bit zero
// extension) for register operands and the memory rules otherwise.
func writeRegisterOrMemory(rde Rde, p []byte, x uint64) {
	if rde.IsModrmRegister() {
		writeRegister(rde, p, x)
	} else {
		writeMemory(rde, p, x)
	}
}

// readRegisterOrMemoryBW reads the rm operand at its natural width
// including the byte forms.
func (m *Machine) readRegisterOrMemoryBW(rde Rde, p []byte) uint64 {
	if rde.IsByteOp() {
		return uint64(Get8(p))
	}
	return readMemory(rde, p)
}

func (m *Machine) writeRegisterOrMemoryBW(rde Rde, p []byte, x uint64) {
	if rde.IsByteOp() {
		Put8(p, uint8(x))
		return
	}
	writeRegisterOrMemory(rde, p, x)
}

// ----------------------------------------------------------------------------
// Faults
// ----------------------------------------------------------------------------

// HaltMachine performs the non-local exit out of the dispatch loop. The
// in-flight stash is dropped; committed writes are retained.
func (m *Machine) HaltMachine(code int) {
	m.stashAddr = 0
	panic(machineFault{code})
}

func (m *Machine) RaiseDivideError() {
	m.HaltMachine(machineDivideError)
}

func (m *Machine) ThrowSegmentationFault(addr int64) {
	m.faultAddr = addr
	m.HaltMachine(machineSegmentationFault)
}

func (m *Machine) ThrowProtectionFault() {
	m.HaltMachine(machineProtectionFault)
}

// OpUdImpl raises the undefined-instruction fault from deep inside helpers.
func (m *Machine) OpUdImpl() {
	m.HaltMachine(machineUndefinedInstruction)
}

func opUd(m *Machine, rde Rde) {
	m.OpUdImpl()
}

func opNoop(m *Machine, rde Rde) {
}

// ----------------------------------------------------------------------------
// Fetch, decode, execute
// ----------------------------------------------------------------------------

func (m *Machine) maskedIp() uint64 {
	switch m.mode {
	case modeReal:
		return m.ip & 0xffff
	case modeLegacy:
		return m.ip & 0xffffffff
	default:
		return m.ip
	}
}

// ResetInstructionCache drops all cached decodes, e.g. after guest mmap or
// mprotect changes.
func (m *Machine) ResetInstructionCache() {
	for i := range m.icache {
		m.icache[i].valid = false
	}
}

// LoadInstruction decodes the instruction at the current IP, consulting the
// decoded-instruction cache first.
func (m *Machine) LoadInstruction() {
	pc := int64(m.seg[segCs].base + m.maskedIp())
	line := &m.icache[uint64(pc)&(icacheLines-1)]
	if line.valid && line.virt == pc {
		m.insn = line.insn
		return
	}
	if err := m.loadInstructionAt(pc, &m.insn); err != nil {
		m.HaltMachine(machineDecodeError)
	}
	line.virt = pc
	line.insn = m.insn
	line.valid = true
}

// loadInstructionAt decodes without touching the machine's own record; the
// flag-dependency crawl uses it speculatively.
func (m *Machine) loadInstructionAt(pc int64, d *Insn) error {
	var buf [15]byte
	n := m.copyFromGuest(buf[:], pc)
	if n == 0 {
		return errDecodeTooShort
	}
	InitInsn(d, m.mode)
	return DecodeInstruction(d, buf[:n])
}

// ExecuteInstruction advances the IP past the decoded instruction, runs its
// handler, then commits any pending cross-page store so no partially written
// state is ever observable across an instruction boundary.
func (m *Machine) ExecuteInstruction() {
	m.oldip = m.ip
	m.ip += uint64(m.insn.length)
	dispatch(m, m.insn.rde)
	if m.stashAddr != 0 {
		m.commitStash()
	}
}

// Run executes instructions until the machine halts, returning the reason
// code. Signal delivery is only checked between instructions.
func (m *Machine) Run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(machineFault)
			if !ok {
				panic(r)
			}
			m.halted = true
			m.haltCode = f.code
			code = f.code
			logrus.WithFields(logrus.Fields{
				"machine": m.id,
				"ip":      m.oldip,
				"code":    f.code,
			}).Debug("machine halted")
		}
	}()
	for {
		if m.sigCheck.Load() {
			m.sigCheck.Store(false)
			m.HaltMachine(machineExit)
		}
		m.LoadInstruction()
		if m.trace {
			logrus.WithFields(logrus.Fields{
				"machine": m.id,
				"ip":      m.maskedIp(),
				"op":      m.insn.rde.Mopcode(),
			}).Trace("step")
		}
		if !m.maybeExecutePath() {
			m.ExecuteInstruction()
		}
	}
}
