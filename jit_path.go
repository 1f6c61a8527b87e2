// jit_path.go - Micro-op path builder and interpreter sink
//
// A path is a straight-line guest trace compiled to a tape of typed micro
// operations. Handlers describe their fast forms through a printf-style RPN
// directive string; the builder lowers each directive to a MicroOp against
// a small virtual register file (two results, six arguments, five saves).
// Executing the tape must leave registers, flags, and memory identical to
// running the plain handlers, so any instruction without a fast form is
// recorded as a generic call back into its own handler. Finished paths are
// installed atomically per start address and flushed wholesale when guest
// mappings change.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// Virtual register identifiers.
const (
	jitRes0 = iota
	jitRes1
	jitArg0
	jitArg1
	jitArg2
	jitArg3
	jitArg4
	jitArg5
	jitSav0
	jitSav1
	jitSav2
	jitSav3
	jitSav4
	jitRegCount
)

// PathVM is the runtime register file of the tape interpreter.
type PathVM struct {
	regs [jitRegCount]uint64
}

type microFn func(m *Machine, vm *PathVM)

// MicroOp kinds.
const (
	uopSetImm = iota
	uopMovReg
	uopCall
	uopExec
	uopAdvanceIp
	uopCommitStash
	uopGetReg
	uopPutReg
	uopGetRegOrMem
	uopPutRegOrMem
	uopGetCl
	uopFusedBranch
	uopTrap
)

// MicroOp is one element of the tape.
type MicroOp struct {
	kind  int
	dst   int
	src   int
	log2  uint
	imm   uint64
	rde   Rde
	disp  int64
	fn    microFn
	hand  opHandler
	taken int64 // fused branch target displacement
	jcc   int   // fused branch condition
}

// Path is a compiled trace.
type Path struct {
	start    int64
	elements int
	ops      []MicroOp
}

// pathState is the per-machine builder state.
type pathState struct {
	jp      *Path // path being built, nil otherwise
	start   int64
	emitted bool // current instruction produced its own micro-ops
}

func (m *Machine) isMakingPath() bool {
	return m.path.jp != nil
}

// ----------------------------------------------------------------------------
// Tape execution
// ----------------------------------------------------------------------------

func (m *Machine) executePath(p *Path) {
	var vm PathVM
	for i := range p.ops {
		op := &p.ops[i]
		switch op.kind {
		case uopSetImm:
			vm.regs[op.dst] = op.imm
		case uopMovReg:
			vm.regs[op.dst] = vm.regs[op.src]
		case uopCall:
			op.fn(m, &vm)
		case uopExec:
			m.insn.rde = op.rde
			m.insn.disp = op.disp
			m.insn.uimm0 = op.imm
			m.insn.length = op.rde.Oplength()
			op.hand(m, op.rde)
		case uopAdvanceIp:
			m.oldip = m.ip
			m.ip += uint64(op.imm)
		case uopCommitStash:
			if m.stashAddr != 0 {
				m.commitStash()
			}
		case uopGetReg:
			if op.log2 == 0 {
				vm.regs[jitRes0] = uint64(Get8(m.byteReg(op.dst)))
			} else {
				vm.regs[jitRes0] = GetN(m.regSlice(op.dst), op.log2)
			}
		case uopPutReg:
			if op.log2 == 0 {
				Put8(m.byteReg(op.dst), uint8(vm.regs[jitRes0]))
			} else if op.log2 == 2 {
				Put64(m.regSlice(op.dst), vm.regs[jitRes0]&0xffffffff)
			} else {
				PutN(m.regSlice(op.dst), vm.regs[jitRes0], op.log2)
			}
		case uopGetRegOrMem:
			m.insn.disp = op.disp
			if op.rde.IsByteOp() {
				vm.regs[jitRes0] = uint64(Get8(m.modrmBytePointerRead(op.rde)))
			} else {
				vm.regs[jitRes0] = readMemory(op.rde,
					m.modrmWordPointerReadOszRexw(op.rde))
			}
		case uopPutRegOrMem:
			m.insn.disp = op.disp
			if op.rde.IsByteOp() {
				Put8(m.modrmBytePointerWrite(op.rde), uint8(vm.regs[jitRes0]))
			} else {
				writeRegisterOrMemory(op.rde,
					m.modrmWordPointerWriteOszRexw(op.rde), vm.regs[jitRes0])
			}
		case uopGetCl:
			vm.regs[jitRes0] = uint64(m.cl())
		case uopFusedBranch:
			// the comparison already ran through sav1/res0
			if m.fusedTaken(op.jcc, vm.regs[jitSav1], vm.regs[jitRes0],
				op.rde) {
				m.ip += uint64(op.taken)
				return
			}
		case uopTrap:
			m.HaltMachine(machineUndefinedInstruction)
		}
	}
}

// fusedTaken evaluates a fused cmp/test condition directly from the
// operand values, eliding flag materialisation.
func (m *Machine) fusedTaken(jcc int, x, y uint64, rde Rde) bool {
	if !rde.Rexw() {
		x = uint64(int64(int32(x)))
		y = uint64(int64(int32(y)))
	}
	switch jcc & 15 {
	case 0x4:
		return y == x
	case 0x5:
		return y != x
	case 0x2:
		return uint64(y) < uint64(x)
	case 0x3:
		return uint64(y) >= uint64(x)
	case 0x6:
		return uint64(y) <= uint64(x)
	case 0x7:
		return uint64(y) > uint64(x)
	case 0xc:
		return int64(y) < int64(x)
	case 0xd:
		return int64(y) >= int64(x)
	case 0xe:
		return int64(y) <= int64(x)
	case 0xf:
		return int64(y) > int64(x)
	default:
		// sign/overflow forms fall back to the flags computed by the
		// full kernel recorded before the fused branch
		return m.condition(jcc)
	}
}

// ----------------------------------------------------------------------------
// Recording
// ----------------------------------------------------------------------------

const (
	pathHotThreshold = 16
	pathMaxElements  = 64
)

// maybeExecutePath runs an installed path at the current pc, or advances
// path construction, returning true when the instruction cycle has been
// consumed.
func (m *Machine) maybeExecutePath() bool {
	if m.sys == nil || !m.sys.jitEnabled {
		return false
	}
	pc := int64(m.seg[segCs].base + m.maskedIp())
	if !m.isMakingPath() {
		if p := m.sys.getPath(pc); p != nil {
			m.executePath(p)
			return true
		}
		if m.sys.bumpHot(pc) >= pathHotThreshold {
			m.createPath(pc)
		}
		if !m.isMakingPath() {
			return false
		}
	}
	// record this instruction, then interpret it
	m.path.emitted = false
	m.appendOp(MicroOp{kind: uopAdvanceIp, imm: uint64(m.insn.length)})
	preops := len(m.path.jp.ops)
	rde := m.insn.rde
	disp := m.insn.disp
	uimm0 := m.insn.uimm0
	m.oldip = m.ip
	m.ip += uint64(m.insn.length)
	dispatch(m, rde)
	if m.stashAddr != 0 {
		m.commitStash()
	}
	if !m.path.emitted && m.isMakingPath() {
		// no fast form: splice in a generic call to the handler
		m.path.jp.ops = m.path.jp.ops[:preops]
		m.appendOp(MicroOp{
			kind: uopExec,
			rde:  rde,
			disp: disp,
			imm:  uimm0,
			hand: getOp(rde.Mopcode()),
		})
	}
	if m.isMakingPath() {
		m.appendOp(MicroOp{kind: uopCommitStash})
		m.path.jp.elements++
		if classifyOp(rde) != kOpNormal ||
			m.path.jp.elements >= pathMaxElements {
			m.commitPath()
		}
	}
	return true
}

func (m *Machine) createPath(pc int64) {
	m.path.jp = &Path{start: pc}
	m.path.start = pc
}

func (m *Machine) commitPath() {
	p := m.path.jp
	m.path = pathState{}
	if p != nil && p.elements > 0 {
		m.sys.installPath(p)
	}
}

// abandonPath drops the trace under construction, falling back to the
// interpreter for this region.
func (m *Machine) abandonPath() {
	m.path = pathState{}
	m.sys.stats.pathAbandoned.Add(1)
}

func (m *Machine) appendOp(op MicroOp) {
	m.path.jp.ops = append(m.path.jp.ops, op)
}

// ----------------------------------------------------------------------------
// The directive front end
// ----------------------------------------------------------------------------

var (
	kJitRes = [2]int{jitRes0, jitRes1}
	kJitArg = [6]int{jitArg0, jitArg1, jitArg2, jitArg3, jitArg4, jitArg5}
	kJitSav = [5]int{jitSav0, jitSav1, jitSav2, jitSav3, jitSav4}
)

// Jitter lowers an RPN directive string to micro-ops on the current path.
// Directives:
//
//	zN    force operand size log2 for the next operand
//	rN    push result register N
//	aN    push argument register N
//	sN    push saved register N
//	i     pop register; set it to the next immediate argument
//	=     pop dst, pop src; register to register move
//	A     result0 = Read Reg(RexrReg)
//	B     result0 = Read RegOrMem(RexbRm)
//	C     Write Reg(RexrReg) from pop
//	D     Write RegOrMem(RexbRm) from pop
//	c m   call the next function argument
//	q     argument0 = machine
//	t     argument0 = result0
//	u     unpop
//	$     result0 = CL
//	!     trap
func (m *Machine) Jitter(rde Rde, format string, args ...interface{}) {
	if !m.isMakingPath() {
		return
	}
	var stack [8]int
	sp := 0
	argi := 0
	log2 := rde.RegLog2()
	nextImm := func() uint64 {
		v := args[argi]
		argi++
		switch x := v.(type) {
		case uint64:
			return x
		case int64:
			return uint64(x)
		case int:
			return uint64(x)
		case uint:
			return uint64(x)
		default:
			m.abandonPath()
			return 0
		}
	}
	nextFn := func() microFn {
		v := args[argi]
		argi++
		if fn, ok := v.(microFn); ok {
			return fn
		}
		m.abandonPath()
		return nil
	}
	for k := 0; k < len(format); k++ {
		if !m.isMakingPath() {
			return
		}
		switch c := format[k]; c {
		case ' ':
		case 'z':
			k++
			log2 = uint(format[k] - '0')
			continue
		case 'r':
			k++
			stack[sp] = kJitRes[format[k]-'0']
			sp++
		case 'a':
			k++
			stack[sp] = kJitArg[format[k]-'0']
			sp++
		case 's':
			k++
			stack[sp] = kJitSav[format[k]-'0']
			sp++
		case 'i':
			sp--
			imm := nextImm()
			if !m.isMakingPath() {
				return
			}
			m.appendOp(MicroOp{kind: uopSetImm, dst: stack[sp], imm: imm})
		case '=':
			m.appendOp(MicroOp{kind: uopMovReg,
				dst: stack[sp-1], src: stack[sp-2]})
			sp -= 2
		case 'u':
			sp++
		case 'A':
			reg := rde.RexrReg()
			if log2 == 0 {
				reg = rde.ByteRexr()
			}
			m.appendOp(MicroOp{kind: uopGetReg, dst: reg, log2: log2})
		case 'C':
			sp--
			reg := rde.RexrReg()
			if log2 == 0 {
				reg = rde.ByteRexr()
			}
			m.appendOp(MicroOp{kind: uopPutReg, dst: reg, log2: log2})
		case 'B':
			m.appendOp(MicroOp{kind: uopGetRegOrMem, rde: rde,
				disp: m.insn.disp, log2: log2})
		case 'D':
			sp--
			m.appendOp(MicroOp{kind: uopPutRegOrMem, rde: rde,
				disp: m.insn.disp, log2: log2})
		case 'q':
			m.appendOp(MicroOp{kind: uopMovReg, dst: jitArg0, src: jitSav0})
		case 't':
			m.appendOp(MicroOp{kind: uopMovReg, dst: jitArg0, src: jitRes0})
		case '$':
			m.appendOp(MicroOp{kind: uopGetCl})
		case 'c', 'm':
			fn := nextFn()
			if fn == nil {
				return
			}
			m.appendOp(MicroOp{kind: uopCall, fn: fn})
		case '!':
			m.appendOp(MicroOp{kind: uopTrap})
		default:
			m.abandonPath()
			return
		}
		log2 = rde.RegLog2()
	}
	m.path.emitted = true
}

// ----------------------------------------------------------------------------
// Micro-op helpers referenced by handlers
// ----------------------------------------------------------------------------

// aluCallFast wraps an ALU kernel as a micro-op: it consumes the operand in
// argument1 and the immediate in argument2 and leaves the result in
// result0.
func aluCallFast(op aluOp) microFn {
	return func(m *Machine, vm *PathVM) {
		vm.regs[jitRes0] = op(vm.regs[jitArg1], vm.regs[jitArg2], &m.flags)
	}
}

// jitAluiRo records a flag-only immediate ALU form, choosing the fast
// kernel when the crawl proves the other flags dead.
func (m *Machine) jitAluiRo(rde Rde, ops, fast *[4]aluOp) {
	kernel := ops[rde.RegLog2()]
	switch m.GetNeededFlags(int64(m.ip), allArithFlags) {
	case 0, maskCF, maskZF, maskCF | maskZF:
		kernel = fast[rde.RegLog2()]
		m.sys.stats.aluSimplified.Add(1)
	case -1:
	}
	m.Jitter(rde, "B a2i r0a1= q m", // rm -> arg1, imm -> arg2, call
		m.insn.uimm0, aluCallFast(kernel))
}

// jitAluiRmw records a read-modify-write immediate ALU form with the same
// fast/full kernel split, plus the result store.
func (m *Machine) jitAluiRmw(rde Rde, reg int) {
	log2 := rde.RegLog2()
	kernel := kAlu[reg][log2]
	switch m.GetNeededFlags(int64(m.ip), allArithFlags) {
	case 0, maskCF, maskZF, maskCF | maskZF:
		kernel = kAluFast[reg][log2]
		m.sys.stats.aluSimplified.Add(1)
	case -1:
	}
	m.Jitter(rde, "B r0a1= a2i q m r0D", // rm -> arg1, imm -> arg2, store res0
		m.insn.uimm0, aluCallFast(kernel))
}

// jitFastPush and jitFastPop record the common 64-bit stack forms.
func (m *Machine) jitFastPush(rde Rde) {
	reg := rde.RexbSrm()
	m.Jitter(rde, "a1i m",
		uint64(reg), microFn(func(m *Machine, vm *PathVM) {
			v := Get64(m.sp()) - 8
			Put64(m.sp(), v)
			w := m.beginStore(int64(v), 8)
			Put64(w, Get64(m.regSlice(int(vm.regs[jitArg1]))))
			m.endStore()
		}))
}

func (m *Machine) jitFastPop(rde Rde) {
	reg := rde.RexbSrm()
	m.Jitter(rde, "a1i m",
		uint64(reg), microFn(func(m *Machine, vm *PathVM) {
			v := Get64(m.sp())
			var buf [8]byte
			x := Get64(m.load(int64(v), 8, buf[:]))
			Put64(m.sp(), v+8)
			Put64(m.regSlice(int(vm.regs[jitArg1])), x)
		}))
}

// ----------------------------------------------------------------------------
// Branch fusion
// ----------------------------------------------------------------------------

// peekJcc inspects the bytes at the current ip for a conditional jump and
// returns its condition, length, and displacement.
func (m *Machine) peekJcc() (jcc, jlen int, bdisp int64, ok bool) {
	var b [6]byte
	pc := int64(m.seg[segCs].base + m.maskedIp())
	if m.copyFromGuest(b[:], pc) < 6 {
		return 0, 0, 0, false
	}
	if b[0]&0xf0 == 0x70 {
		return int(b[0] & 0x0f), 2, int64(int8(b[1])), true
	}
	if b[0] == 0x0f && b[1]&0xf0 == 0x80 {
		return int(b[1] & 0x0f), 6, int64(int32(Get32(b[2:]))), true
	}
	return 0, 0, 0, false
}

// fuseBranchCmp fuses CMP r/m,i or CMP r/m,r followed by Jcc into a single
// compare-and-branch micro-op when no later instruction needs the flags.
func (m *Machine) fuseBranchCmp(rde Rde, imm bool) bool {
	if rde.RegLog2() < 2 {
		return false
	}
	jcc, jlen, bdisp, ok := m.peekJcc()
	if !ok || jcc < 0x2 || (jcc >= 0x8 && jcc <= 0xb) {
		return false
	}
	ipAfter := int64(m.ip) + int64(jlen)
	if m.GetNeededFlags(ipAfter+bdisp, allArithFlags) != 0 {
		return false
	}
	if m.GetNeededFlags(ipAfter, allArithFlags) != 0 {
		return false
	}
	if imm {
		m.Jitter(rde, "s1i", m.insn.uimm0)
	} else {
		m.Jitter(rde, "A r0s1=")
	}
	m.Jitter(rde, "B")
	m.appendOp(MicroOp{kind: uopFusedBranch, rde: rde, jcc: jcc,
		taken: int64(jlen) + bdisp})
	m.appendOp(MicroOp{kind: uopAdvanceIp, imm: uint64(jlen)})
	m.sys.stats.fusedBranches.Add(1)
	// a fused branch consumes the jcc and ends the trace
	m.path.jp.elements++
	m.commitPath()
	m.path.emitted = true
	return true
}

// fuseBranchTest fuses TEST r,r (same operand) followed by Jcc.
func (m *Machine) fuseBranchTest(rde Rde) bool {
	if rde.RegLog2() < 2 || rde.RexrReg() != rde.RexbRm() ||
		!rde.IsModrmRegister() {
		return false
	}
	jcc, jlen, bdisp, ok := m.peekJcc()
	if !ok || (jcc != 0x4 && jcc != 0x5) {
		return false
	}
	ipAfter := int64(m.ip) + int64(jlen)
	if m.GetNeededFlags(ipAfter+bdisp, allArithFlags) != 0 {
		return false
	}
	if m.GetNeededFlags(ipAfter, allArithFlags) != 0 {
		return false
	}
	m.Jitter(rde, "s1i", uint64(0))
	m.Jitter(rde, "A")
	m.appendOp(MicroOp{kind: uopFusedBranch, rde: rde, jcc: jcc,
		taken: int64(jlen) + bdisp})
	m.appendOp(MicroOp{kind: uopAdvanceIp, imm: uint64(jlen)})
	m.sys.stats.fusedBranches.Add(1)
	m.path.jp.elements++
	m.commitPath()
	m.path.emitted = true
	return true
}
