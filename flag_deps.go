// flag_deps.go - Flag dependency and clobber analysis
//
// Per-opcode tables describing which flags an instruction reads and which
// it writes or makes undefined, and the speculative forward crawl that
// decides whether a flag-producing site may use a fast kernel. The crawl
// follows unconditional jumps, recurses into conditional targets, and gives
// up on precious operations whose effect on flags is unknowable.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

const allArithFlags = maskCF | maskZF | maskSF | maskOF | maskAF | maskPF

// Operation classes for the crawl.
const (
	kOpNormal = iota
	kOpBranching
	kOpPrecious
)

func isJump(rde Rde) bool {
	op := rde.Mopcode()
	return op == 0x0e9 || op == 0x0eb
}

func isConditionalJump(rde Rde) bool {
	op := rde.Mopcode()
	return op >= 0x070 && op <= 0x07f || op >= 0x180 && op <= 0x18f
}

// getFlagClobbers returns the flags an op definitely writes or leaves
// undefined, or -1 for everything.
func getFlagClobbers(rde Rde) int {
	switch rde.Mopcode() {
	default:
		return 0
	case 0x0e8, 0x0c3, 0x105: // call, ret, syscall
		return -1
	case 0x000, 0x001, 0x002, 0x003, 0x004, 0x005,
		0x008, 0x009, 0x00a, 0x00b, 0x00c, 0x00d,
		0x010, 0x011, 0x012, 0x013, 0x014, 0x015,
		0x018, 0x019, 0x01a, 0x01b, 0x01c, 0x01d,
		0x020, 0x021, 0x022, 0x023, 0x024, 0x025,
		0x028, 0x029, 0x02a, 0x02b, 0x02c, 0x02d,
		0x030, 0x031, 0x032, 0x033, 0x034, 0x035,
		0x038, 0x039, 0x03a, 0x03b, 0x03c, 0x03d,
		0x080, 0x081, 0x082, 0x083, 0x084, 0x085,
		0x0a6, 0x0a7, 0x0a8, 0x0a9, 0x0ae, 0x0af,
		0x069, 0x06b, 0x1af, 0x12e, 0x12f,
		0x1a4, 0x1a5, 0x1ac, 0x1ad, 0x1b0, 0x1b1,
		0x1bc, 0x1bd, 0x1c0, 0x1c1,
		0x02f, 0x037, 0x03f, 0x0d5:
		return allArithFlags
	case 0x0c0, 0x0c1, 0x0d0, 0x0d1, 0x0d2, 0x0d3:
		switch rde.ModrmReg() {
		case bsuRol, bsuRor, bsuRcl, bsuRcr:
			return maskOF | maskCF
		default:
			return allArithFlags
		}
	case 0x0db, 0x0df: // fucomip, fcomip
		if rde.IsModrmRegister() &&
			(rde.ModrmReg() == 5 || rde.ModrmReg() == 6) {
			return maskOF | maskSF | maskAF
		}
		return 0
	case 0x0f5, 0x0f8, 0x0f9: // cmc, clc, stc
		return maskCF
	case 0x0f6, 0x0f7:
		if rde.ModrmReg() == 2 { // not
			return 0
		}
		return allArithFlags
	case 0x0fe, 0x0ff:
		switch rde.ModrmReg() {
		case 0, 1: // inc, dec
			return maskZF | maskSF | maskOF | maskAF | maskPF
		case 2: // call Ev
			return -1
		default:
			return 0
		}
	case 0x1a3, 0x1ab, 0x1b3, 0x1ba, 0x1bb: // bt family
		return maskCF | maskSF | maskOF | maskAF | maskPF
	case 0x09e: // sahf
		return maskCF | maskZF | maskSF | maskAF | maskPF
	case 0x09d: // popf
		return 0x00ffffff
	case 0x1b8:
		if rde.Rep() == 3 { // popcnt
			return maskCF | maskZF | maskSF | maskOF | maskPF
		}
		return 0
	case 0x2f5: // pdep, pext
		return 0
	case 0x2f6:
		if rde.Rep() == 2 { // mulx
			return 0
		}
		if rde.Rep() == 3 { // adox
			return maskOF
		}
		if rde.Osz() { // adcx
			return maskCF
		}
		return 0
	}
}

// getFlagDeps returns the flags an op reads.
func getFlagDeps(rde Rde) int {
	switch rde.Mopcode() {
	default:
		return 0
	case 0x010, 0x011, 0x012, 0x013, 0x014, 0x015,
		0x018, 0x019, 0x01a, 0x01b, 0x01c, 0x01d,
		0x072, 0x073, 0x142, 0x143, 0x182, 0x183, 0x192, 0x193,
		0x0d6, 0x0f5:
		return maskCF
	case 0x070, 0x071, 0x140, 0x141, 0x180, 0x181, 0x190, 0x191, 0x0ce:
		return maskOF
	case 0x074, 0x075, 0x144, 0x145, 0x184, 0x185, 0x194, 0x195,
		0x0e0, 0x0e1:
		return maskZF
	case 0x076, 0x077, 0x146, 0x147, 0x186, 0x187, 0x196, 0x197:
		return maskCF | maskZF
	case 0x078, 0x079, 0x148, 0x149, 0x188, 0x189, 0x198, 0x199:
		return maskSF
	case 0x07a, 0x07b, 0x14a, 0x14b, 0x18a, 0x18b, 0x19a, 0x19b:
		return maskPF
	case 0x07c, 0x07d, 0x14c, 0x14d, 0x18c, 0x18d, 0x19c, 0x19d:
		return maskOF | maskSF
	case 0x07e, 0x07f, 0x14e, 0x14f, 0x18e, 0x18f, 0x19e, 0x19f:
		return maskOF | maskSF | maskZF
	case 0x080, 0x081, 0x082, 0x083,
		0x0c0, 0x0c1, 0x0d0, 0x0d1, 0x0d2, 0x0d3:
		switch rde.ModrmReg() {
		case 2, 3: // adc/rcl, sbb/rcr
			return maskCF
		default:
			return 0
		}
	case 0x0da, 0x0db: // fcmovcc
		switch rde.ModrmReg() {
		case 0:
			return maskCF
		case 1:
			return maskZF
		case 2:
			return maskCF | maskZF
		case 3:
			return maskPF
		default:
			return 0
		}
	case 0x09f: // lahf
		return maskCF | maskZF | maskSF | maskAF | maskPF
	case 0x02f, 0x037, 0x03f: // das, aaa, aas
		return maskCF | maskAF
	case 0x09c: // pushf
		return 0x00ffffff
	case 0x2f6:
		if rde.Rep() == 2 { // mulx
			return 0
		}
		if rde.Rep() == 3 { // adox
			return maskOF
		}
		if rde.Osz() { // adcx
			return maskCF
		}
		return 0
	}
}

// classifyOp tells the crawl whether an op falls through, branches, or has
// effects the analyser cannot see past.
func classifyOp(rde Rde) int {
	op := rde.Mopcode()
	switch {
	case op >= 0x070 && op <= 0x07f,
		op >= 0x180 && op <= 0x18f,
		op == 0x0e9, op == 0x0ea, op == 0x0eb,
		op >= 0x0e0 && op <= 0x0e3:
		return kOpBranching
	case op == 0x09a, op == 0x0c2, op == 0x0c3, op == 0x0ca, op == 0x0cb,
		op == 0x0cf, op == 0x0e8, op == 0x105,
		op == 0x0cc, op == 0x0cd, op == 0x0f1, op == 0x0f4:
		return kOpPrecious
	case op == 0x0fe || op == 0x0ff:
		if rde.ModrmReg() >= 2 {
			return kOpPrecious
		}
		return kOpNormal
	default:
		return kOpNormal
	}
}

const crawlBudget = 32

func (m *Machine) crawlFlags(pc int64, myflags, look, depth int) int {
	var d Insn
	need := 0
	for {
		if m.loadInstructionAt(pc, &d) != nil {
			return -1
		}
		rde := d.rde
		pc += int64(d.length)
		need |= getFlagDeps(rde) & myflags
		if myflags &= ^getFlagClobbers(rde); myflags == 0 {
			return need
		}
		if look--; look == 0 {
			return -1
		}
		switch {
		case isJump(rde):
			pc += d.disp
		case isConditionalJump(rde):
			sub := m.crawlFlags(pc+d.disp, myflags, look, depth+1)
			if sub == -1 {
				return -1
			}
			need |= sub
		case classifyOp(rde) != kOpNormal:
			return -1
		}
	}
}

// GetNeededFlags walks forward from pc and reports which of myflags the
// future instruction stream actually reads, or -1 when unknown. The result
// is a pure function of the static bytes at pc.
func (m *Machine) GetNeededFlags(pc int64, myflags int) int {
	return m.crawlFlags(pc, myflags, crawlBudget, 0)
}
