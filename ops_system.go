// ops_system.go - System and miscellaneous instruction handlers
//
// Flag manipulation, PUSHF/POPF/LAHF/SAHF with lazy parity export, CPUID,
// RDTSC/RDTSCP/RDPID, RDRAND/RDSEED, CRC32, the FS/GS base group, MXCSR
// loads and stores, FXSAVE/FXRSTOR, fences, port I/O, HLT, PAUSE, and the
// interrupt forms that terminate execution.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	crand "crypto/rand"
	"runtime"
	"sync"
	"time"
)

func opCmc(m *Machine, rde Rde) {
	m.flags = SetFlag(m.flags, flagsCF, !GetFlag(m.flags, flagsCF))
}

func opClc(m *Machine, rde Rde) { m.flags = SetFlag(m.flags, flagsCF, false) }
func opStc(m *Machine, rde Rde) { m.flags = SetFlag(m.flags, flagsCF, true) }
func opCli(m *Machine, rde Rde) { m.flags = SetFlag(m.flags, flagsIF, false) }
func opSti(m *Machine, rde Rde) { m.flags = SetFlag(m.flags, flagsIF, true) }
func opCld(m *Machine, rde Rde) { m.flags = SetFlag(m.flags, flagsDF, false) }
func opStd(m *Machine, rde Rde) { m.flags = SetFlag(m.flags, flagsDF, true) }

func opPushf(m *Machine, rde Rde) {
	m.push(rde, uint64(ExportFlags(m.flags)&0xfcffff))
}

func opPopf(m *Machine, rde Rde) {
	if !rde.Osz() {
		ImportFlags(m, uint32(m.pop(rde, 0)))
	} else {
		ImportFlags(m, m.flags&^0xffff|uint32(m.pop(rde, 0))&0xffff)
	}
}

func opLahf(m *Machine, rde Rde) {
	m.setAh(uint8(ExportFlags(m.flags)))
}

func opSahf(m *Machine, rde Rde) {
	ImportFlags(m, m.flags&^0xff|uint32(m.ah()))
}

func opSalc(m *Machine, rde Rde) {
	if GetFlag(m.flags, flagsCF) {
		m.setAl(255)
	} else {
		m.setAl(0)
	}
}

func opHlt(m *Machine, rde Rde) {
	m.HaltMachine(machineHalt)
}

func (m *Machine) interrupt(rde Rde, i int) {
	m.HaltMachine(i)
}

func opInterruptImm(m *Machine, rde Rde) {
	m.interrupt(rde, int(m.insn.uimm0))
}

func opInterrupt1(m *Machine, rde Rde) { m.interrupt(rde, 1) }
func opInterrupt3(m *Machine, rde Rde) { m.interrupt(rde, 3) }

func opSyscall(m *Machine, rde Rde) {
	if m.sys.onSyscall != nil {
		m.sys.onSyscall(m)
		return
	}
	m.HaltMachine(machineExit)
}

func opPause(m *Machine, rde Rde) {
	runtime.Gosched()
}

// opNop disambiguates 0x90: with rex.b it is XCHG r8, with rep it is PAUSE.
func opNop(m *Machine, rde Rde) {
	if rde.Rexb() != 0 {
		opXchgZvqp(m, rde)
	} else if rde.Rep() == 3 {
		opPause(m, rde)
	}
}

func opNopEv(m *Machine, rde Rde) {
}

// ----------------------------------------------------------------------------
// CPUID
// ----------------------------------------------------------------------------

const (
	cpuidVendorIntel = "GenuineIntel"
	cpuidVendorBlink = "GenuineBlink"
	cpuidOsName      = "Linux\x00\x00\x00\x00\x00\x00\x00"
	cpuidArchName    = "x86_64\x00\x00\x00\x00\x00\x00"
)

func cpuidWords(s string) (a, b, c uint32) {
	p := []byte(s + "\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")
	return Get32(p), Get32(p[4:]), Get32(p[8:])
}

func opCpuid(m *Machine, rde Rde) {
	if m.trapCpuid {
		m.ThrowSegmentationFault(0)
	}
	var ax, bx, cx, dx uint32
	switch Get32(m.ax()) {
	case 0:
		ax = 7
		bx, dx, cx = cpuidWords(cpuidVendorIntel)
	case 0x80000000:
		ax = 0x80000001
		bx, dx, cx = cpuidWords(cpuidVendorIntel)
	case 0x40000000:
		bx, cx, dx = cpuidWords(cpuidVendorBlink)
	case 0x40031337:
		bx, cx, dx = cpuidWords(cpuidOsName)
	case 0x40031338:
		bx, cx, dx = cpuidWords(cpuidArchName)
	case 1:
		cx |= 1 << 0  // sse3
		cx |= 1 << 1  // pclmulqdq
		cx |= 1 << 9  // ssse3
		cx |= 1 << 13 // cmpxchg16b
		cx |= 1 << 23 // popcnt
		cx |= 1 << 30 // rdrnd
		cx |= 1 << 31 // hypervisor
		dx |= 1 << 0  // fpu
		dx |= 1 << 4  // tsc
		dx |= 1 << 8  // cmpxchg8b
		dx |= 1 << 15 // cmov
		dx |= 1 << 19 // clflush
		dx |= 1 << 23 // mmx
		dx |= 1 << 24 // fxsave
		dx |= 1 << 25 // sse
		dx |= 1 << 26 // sse2
	case 7:
		if Get32(m.cx()) == 0 {
			bx |= 1 << 0  // fsgsbase
			bx |= 1 << 8  // bmi2: pdep/pext/rorx/mulx in ops_bits.go
			bx |= 1 << 9  // erms
			bx |= 1 << 18 // rdseed
			bx |= 1 << 19 // adx: adcx/adox in ops_bits.go
			cx |= 1 << 22 // rdpid
		}
	case 0x80000001:
		cx |= 1 << 0  // lahf
		dx |= 1 << 11 // syscall
		dx |= 1 << 20 // nx
		dx |= 1 << 29 // long mode
	}
	Put64(m.ax(), uint64(ax))
	Put64(m.bx(), uint64(bx))
	Put64(m.cx(), uint64(cx))
	Put64(m.dx(), uint64(dx))
}

// ----------------------------------------------------------------------------
// Timestamps and randomness
// ----------------------------------------------------------------------------

func opRdtsc(m *Machine, rde Rde) {
	if m.trapRdtsc {
		m.ThrowSegmentationFault(0)
	}
	c := uint64(time.Now().UnixNano()) * 3
	Put64(m.ax(), c&0xffffffff)
	Put64(m.dx(), c>>32)
}

func opRdtscp(m *Machine, rde Rde) {
	opRdtsc(m, rde)
	Put64(m.cx(), 0)
}

func opRdpid(m *Machine, rde Rde) {
	Put64(m.regRexbRm(rde), 0)
}

var gRdrand struct {
	sync.Mutex
	state uint64
	count uint
}

// vigna is the splitmix64 output function used to stretch reseeds.
func vigna(s *uint64) uint64 {
	*s += 0x9e3779b97f4a7c15
	z := *s
	z = (z ^ z>>30) * 0xbf58476d1ce4e5b9
	z = (z ^ z>>27) * 0x94d049bb133111eb
	return z ^ z>>31
}

func hostRandom() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return Get64(b[:])
}

func (m *Machine) opRand(rde Rde, x uint64) {
	writeRegister(rde, m.regRexbRm(rde), x)
	m.flags = SetFlag(m.flags, flagsCF, true)
}

func opRdrand(m *Machine, rde Rde) {
	gRdrand.Lock()
	if gRdrand.count%16 == 0 {
		gRdrand.state = hostRandom()
	}
	gRdrand.count++
	x := vigna(&gRdrand.state)
	gRdrand.Unlock()
	m.opRand(rde, x)
}

func opRdseed(m *Machine, rde Rde) {
	m.opRand(rde, hostRandom())
}

// op1c7 covers the 0F C7 group: CMPXCHG8B/16B in memory, RDRAND, RDSEED,
// and RDPID in registers.
func op1c7(m *Machine, rde Rde) {
	ismem := !rde.IsModrmRegister()
	switch rde.ModrmReg() {
	case 1:
		if ismem {
			opCmpxchg8b16b(m, rde)
		} else {
			m.OpUdImpl()
		}
	case 6:
		if !ismem {
			opRdrand(m, rde)
		} else {
			m.OpUdImpl()
		}
	case 7:
		if !ismem {
			if rde.Rep() == 3 {
				opRdpid(m, rde)
			} else {
				opRdseed(m, rde)
			}
		} else {
			m.OpUdImpl()
		}
	default:
		m.OpUdImpl()
	}
}

// ----------------------------------------------------------------------------
// CRC32 (Castagnoli)
// ----------------------------------------------------------------------------

var (
	kCastagnoli     [256]uint32
	castagnoliOnce  sync.Once
	castagnoliPolyn = reverseBits32(0x1edc6f41)
)

func reverseBits32(x uint32) uint32 {
	x = x>>16 | x<<16
	x = x&0xaaaaaaaa>>1 | x&0x55555555<<1
	x = x&0xcccccccc>>2 | x&0x33333333<<2
	x = x&0xf0f0f0f0>>4 | x&0x0f0f0f0f<<4
	return x
}

func castagnoli(h uint32, w uint64, n int) uint32 {
	castagnoliOnce.Do(func() {
		for d := range kCastagnoli {
			r := uint32(d)
			for i := 0; i < 8; i++ {
				if r&1 != 0 {
					r = r>>1 ^ castagnoliPolyn
				} else {
					r >>= 1
				}
			}
			kCastagnoli[d] = r
		}
	})
	for i := 0; i < n; i++ {
		h = h>>8 ^ kCastagnoli[uint8(h)^uint8(w)]
		w >>= 8
	}
	return h
}

func opCrc32(m *Machine, rde Rde) {
	Put64(m.regRexrReg(rde), uint64(castagnoli(Get32(m.regRexrReg(rde)),
		m.readRegisterOrMemoryBW(rde, m.modrmReadBW(rde)),
		1<<rde.RegLog2())))
}

func op2f01(m *Machine, rde Rde) {
	if rde.Rep() == 2 && !rde.Osz() {
		opCrc32(m, rde)
	} else {
		m.OpUdImpl()
	}
}

// ----------------------------------------------------------------------------
// The 0F AE group
// ----------------------------------------------------------------------------

func opLdmxcsr(m *Machine, rde Rde) {
	m.mxcsr = Get32(m.computeReserveAddressRead(rde, 4))
}

func opStmxcsr(m *Machine, rde Rde) {
	p := m.computeReserveAddressWrite(rde, 4)
	Put32(p, m.mxcsr)
	m.endStore()
}

func opRdfsbase(m *Machine, rde Rde) {
	writeRegister(rde, m.regRexbRm(rde), m.seg[segFs].base)
}

func opRdgsbase(m *Machine, rde Rde) {
	writeRegister(rde, m.regRexbRm(rde), m.seg[segGs].base)
}

func opWrfsbase(m *Machine, rde Rde) {
	m.seg[segFs].base = readRegister(rde, m.regRexbRm(rde))
}

func opWrgsbase(m *Machine, rde Rde) {
	m.seg[segGs].base = readRegister(rde, m.regRexbRm(rde))
}

func opFxsave(m *Machine, rde Rde) {
	var buf [32]byte
	Put16(buf[0:], uint16(m.fpu.cw))
	Put16(buf[2:], uint16(m.fpu.sw))
	Put8(buf[4:], uint8(m.fpu.tw))
	Put16(buf[6:], uint16(m.fpu.op))
	Put32(buf[8:], uint32(m.fpu.ip))
	Put32(buf[24:], m.mxcsr)
	v := m.computeAddress(rde)
	m.copyToGuest(v, buf[:])
	var st [128]byte
	for i := 0; i < 8; i++ {
		Put64(st[i*16:], float64Bits(m.fpu.st[i]))
	}
	m.copyToGuest(v+32, st[:])
	for i := 0; i < 16; i++ {
		m.copyToGuest(v+160+int64(i*16), m.xmm[i][:])
	}
	m.setWriteAddr(v, 416)
}

func opFxrstor(m *Machine, rde Rde) {
	var buf [32]byte
	v := m.computeAddress(rde)
	m.setReadAddr(v, 416)
	if m.copyFromGuest(buf[:], v) != len(buf) {
		m.ThrowSegmentationFault(v)
	}
	m.fpu.cw = uint32(Get16(buf[0:]))
	m.fpu.sw = uint32(Get16(buf[2:]))
	m.fpu.tw = int(Get8(buf[4:]))
	m.fpu.op = int(Get16(buf[6:]))
	m.fpu.ip = int64(Get32(buf[8:]))
	m.mxcsr = Get32(buf[24:])
	var st [128]byte
	if m.copyFromGuest(st[:], v+32) != len(st) {
		m.ThrowSegmentationFault(v + 32)
	}
	for i := 0; i < 8; i++ {
		m.fpu.st[i] = float64FromBits(Get64(st[i*16:]))
	}
	var xm [256]byte
	if m.copyFromGuest(xm[:], v+160) != len(xm) {
		m.ThrowSegmentationFault(v + 160)
	}
	for i := 0; i < 16; i++ {
		copy(m.xmm[i][:], xm[i*16:])
	}
}

func op1ae(m *Machine, rde Rde) {
	ismem := !rde.IsModrmRegister()
	switch rde.ModrmReg() {
	case 0:
		if ismem {
			opFxsave(m, rde)
		} else {
			opRdfsbase(m, rde)
		}
	case 1:
		if ismem {
			opFxrstor(m, rde)
		} else {
			opRdgsbase(m, rde)
		}
	case 2:
		if ismem {
			opLdmxcsr(m, rde)
		} else {
			opWrfsbase(m, rde)
		}
	case 3:
		if ismem {
			opStmxcsr(m, rde)
		} else {
			opWrgsbase(m, rde)
		}
	case 4:
		if ismem {
			opNoop(m, rde) // xsave
		} else {
			m.OpUdImpl()
		}
	case 5, 6:
		opNoop(m, rde) // lfence, mfence
	case 7:
		opNoop(m, rde) // clflush, sfence
	default:
		m.OpUdImpl()
	}
}

// op101 covers the 0F 01 group; only the fsgsbase-adjacent members a user
// process can see are implemented.
func op101(m *Machine, rde Rde) {
	m.OpUdImpl()
}

// ----------------------------------------------------------------------------
// Port I/O
// ----------------------------------------------------------------------------

func (m *Machine) opIn(port uint16) uint32 {
	if m.sys.onIn != nil {
		return m.sys.onIn(m, port)
	}
	return 0
}

func (m *Machine) opOut(port uint16, value uint32) {
	if m.sys.onOut != nil {
		m.sys.onOut(m, port, value)
	}
}

func (m *Machine) writeEaxAx(rde Rde, x uint32) {
	if !rde.Osz() {
		Put64(m.ax(), uint64(x))
	} else {
		Put16(m.ax(), uint16(x))
	}
}

func (m *Machine) readEaxAx(rde Rde) uint32 {
	if !rde.Osz() {
		return Get32(m.ax())
	}
	return uint32(Get16(m.ax()))
}

func opInAlImm(m *Machine, rde Rde) {
	m.setAl(uint8(m.opIn(uint16(m.insn.uimm0))))
}

func opInAxImm(m *Machine, rde Rde) {
	m.writeEaxAx(rde, m.opIn(uint16(m.insn.uimm0)))
}

func opInAlDx(m *Machine, rde Rde) {
	m.setAl(uint8(m.opIn(Get16(m.dx()))))
}

func opInAxDx(m *Machine, rde Rde) {
	m.writeEaxAx(rde, m.opIn(Get16(m.dx())))
}

func opOutImmAl(m *Machine, rde Rde) {
	m.opOut(uint16(m.insn.uimm0), uint32(m.al()))
}

func opOutImmAx(m *Machine, rde Rde) {
	m.opOut(uint16(m.insn.uimm0), m.readEaxAx(rde))
}

func opOutDxAl(m *Machine, rde Rde) {
	m.opOut(Get16(m.dx()), uint32(m.al()))
}

func opOutDxAx(m *Machine, rde Rde) {
	m.opOut(Get16(m.dx()), m.readEaxAx(rde))
}

// ----------------------------------------------------------------------------
// Control and segment plumbing
// ----------------------------------------------------------------------------

func opMovEvqpSw(m *Machine, rde Rde) {
	if rde.ModrmReg() >= 6 {
		m.OpUdImpl()
	}
	writeRegisterOrMemory(rde, m.modrmWordPointerWriteOszRexw(rde),
		m.seg[rde.ModrmReg()].base>>4)
}

func opMovSwEvqp(m *Machine, rde Rde) {
	if rde.ModrmReg() >= 6 {
		m.OpUdImpl()
	}
	x := readMemory(rde, m.modrmWordPointerReadOszRexw(rde))
	m.seg[rde.ModrmReg()].sel = uint16(x)
	m.seg[rde.ModrmReg()].base = x << 4
}

func (m *Machine) loadFarPointer(rde Rde, seg int) {
	fp := Get32(m.computeReserveAddressRead(rde, 4))
	m.seg[seg].sel = uint16(fp)
	m.seg[seg].base = uint64(fp&0xffff) << 4
	Put16(m.regRexrReg(rde), uint16(fp>>16))
}

func opLes(m *Machine, rde Rde) { m.loadFarPointer(rde, segEs) }
func opLds(m *Machine, rde Rde) { m.loadFarPointer(rde, segDs) }
