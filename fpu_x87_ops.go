// fpu_x87_ops.go - x87 escape opcode dispatch
//
// The eight D8-DF escape bytes each split on whether the ModR/M selects a
// stack register or memory, then on the reg field, exactly mirroring the
// coprocessor's internal decode matrix.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

const (
	fpuReg = 0
	fpuMem = 1
)

func fpuDisp(op, ismem, reg int) int {
	return op&7<<4 | ismem<<3 | reg
}

func opFpu(m *Machine, rde Rde) {
	op := rde.Opcode() & 7
	ismem := fpuReg
	if !rde.IsModrmRegister() {
		ismem = fpuMem
	}
	m.fpu.ip = int64(maskAddress(m.mode, m.ip-uint64(rde.Oplength())))
	m.fpu.op = op<<8 | rde.Modrm()
	if ismem == fpuMem {
		m.fpu.dp = m.computeAddress(rde)
	} else {
		m.fpu.dp = 0
	}
	switch fpuDisp(op, ismem, rde.ModrmReg()) {
	case fpuDisp(0xd8, fpuReg, 0):
		m.setSt0(m.fpuAdd(m.st0(), m.stRm(rde)))
	case fpuDisp(0xd8, fpuReg, 1):
		m.setSt0(m.fpuMul(m.st0(), m.stRm(rde)))
	case fpuDisp(0xd8, fpuReg, 2):
		m.fpuCompare(m.stRm(rde))
	case fpuDisp(0xd8, fpuReg, 3):
		m.fpuCompare(m.stRm(rde))
		m.FpuPop()
	case fpuDisp(0xd8, fpuReg, 4):
		m.setSt0(m.fpuSub(m.st0(), m.stRm(rde)))
	case fpuDisp(0xd8, fpuReg, 5):
		m.setSt0(m.fpuSub(m.stRm(rde), m.st0()))
	case fpuDisp(0xd8, fpuReg, 6):
		m.setSt0(m.fpuDiv(m.st0(), m.stRm(rde)))
	case fpuDisp(0xd8, fpuReg, 7):
		m.setSt0(m.fpuDiv(m.stRm(rde), m.st0()))
	case fpuDisp(0xd8, fpuMem, 0):
		m.setSt0(m.fpuAdd(m.st0(), m.fpuGetMemoryFloat()))
	case fpuDisp(0xd8, fpuMem, 1):
		m.setSt0(m.fpuMul(m.st0(), m.fpuGetMemoryFloat()))
	case fpuDisp(0xd8, fpuMem, 2):
		m.fpuCompare(m.fpuGetMemoryFloat())
	case fpuDisp(0xd8, fpuMem, 3):
		m.fpuCompare(m.fpuGetMemoryFloat())
		m.FpuPop()
	case fpuDisp(0xd8, fpuMem, 4):
		m.setSt0(m.fpuSub(m.st0(), m.fpuGetMemoryFloat()))
	case fpuDisp(0xd8, fpuMem, 5):
		m.setSt0(m.fpuSub(m.fpuGetMemoryFloat(), m.st0()))
	case fpuDisp(0xd8, fpuMem, 6):
		m.setSt0(m.fpuDiv(m.st0(), m.fpuGetMemoryFloat()))
	case fpuDisp(0xd8, fpuMem, 7):
		m.setSt0(m.fpuDiv(m.fpuGetMemoryFloat(), m.st0()))
	case fpuDisp(0xd9, fpuReg, 0):
		m.FpuPush(m.stRm(rde))
	case fpuDisp(0xd9, fpuReg, 1):
		m.opFxch(rde)
	case fpuDisp(0xd9, fpuReg, 2):
		// fnop
	case fpuDisp(0xd9, fpuReg, 3):
		m.setStRmPop(rde, m.st0())
	case fpuDisp(0xd9, fpuReg, 4):
		switch rde.ModrmRm() {
		case 0:
			m.opFchs()
		case 1:
			m.opFabs()
		case 4:
			m.opFtst()
		case 5:
			m.opFxam()
		default:
			m.OpUdImpl()
		}
	case fpuDisp(0xd9, fpuReg, 5):
		m.opFldConstant(rde)
	case fpuDisp(0xd9, fpuReg, 6):
		switch rde.ModrmRm() {
		case 0:
			m.opF2xm1()
		case 1:
			m.opFyl2x()
		case 2:
			m.opFptan()
		case 3:
			m.opFpatan()
		case 4:
			m.opFxtract()
		case 5:
			m.opFprem1()
		case 6:
			m.opFdecstp()
		default:
			m.opFincstp()
		}
	case fpuDisp(0xd9, fpuReg, 7):
		switch rde.ModrmRm() {
		case 0:
			m.opFprem()
		case 1:
			m.opFyl2xp1()
		case 2:
			m.opFsqrt()
		case 3:
			m.opFsincos()
		case 4:
			m.opFrndint()
		case 5:
			m.opFscale()
		case 6:
			m.opFsin()
		default:
			m.opFcos()
		}
	case fpuDisp(0xd9, fpuMem, 0):
		m.FpuPush(m.fpuGetMemoryFloat())
	case fpuDisp(0xd9, fpuMem, 2):
		m.fpuSetMemoryFloat(m.st0())
	case fpuDisp(0xd9, fpuMem, 3):
		m.fpuSetMemoryFloat(m.st0())
		m.FpuPop()
	case fpuDisp(0xd9, fpuMem, 4):
		m.opFldenv()
	case fpuDisp(0xd9, fpuMem, 5):
		m.fpu.cw = uint32(uint16(m.fpuGetMemoryShort()))
	case fpuDisp(0xd9, fpuMem, 6):
		m.opFstenv()
	case fpuDisp(0xd9, fpuMem, 7):
		m.fpuSetMemoryShort(int16(m.fpu.cw))
	case fpuDisp(0xda, fpuReg, 0):
		if GetFlag(m.flags, flagsCF) {
			m.setSt0(m.stRm(rde))
		}
	case fpuDisp(0xda, fpuReg, 1):
		if GetFlag(m.flags, flagsZF) {
			m.setSt0(m.stRm(rde))
		}
	case fpuDisp(0xda, fpuReg, 2):
		if m.isBelowOrEqual() {
			m.setSt0(m.stRm(rde))
		}
	case fpuDisp(0xda, fpuReg, 3):
		if m.isParity() {
			m.setSt0(m.stRm(rde))
		}
	case fpuDisp(0xda, fpuMem, 0):
		m.setSt0(m.fpuAdd(m.st0(), float64(m.fpuGetMemoryInt())))
	case fpuDisp(0xda, fpuMem, 1):
		m.setSt0(m.fpuMul(m.st0(), float64(m.fpuGetMemoryInt())))
	case fpuDisp(0xda, fpuMem, 2):
		m.fpuCompare(float64(m.fpuGetMemoryInt()))
	case fpuDisp(0xda, fpuMem, 3):
		m.fpuCompare(float64(m.fpuGetMemoryInt()))
		m.FpuPop()
	case fpuDisp(0xda, fpuMem, 4):
		m.setSt0(m.fpuSub(m.st0(), float64(m.fpuGetMemoryInt())))
	case fpuDisp(0xda, fpuMem, 5):
		m.setSt0(m.fpuSub(float64(m.fpuGetMemoryInt()), m.st0()))
	case fpuDisp(0xda, fpuMem, 6):
		m.setSt0(m.fpuDiv(m.st0(), float64(m.fpuGetMemoryInt())))
	case fpuDisp(0xda, fpuMem, 7):
		m.setSt0(m.fpuDiv(float64(m.fpuGetMemoryInt()), m.st0()))
	case fpuDisp(0xdb, fpuReg, 0):
		if !GetFlag(m.flags, flagsCF) {
			m.setSt0(m.stRm(rde))
		}
	case fpuDisp(0xdb, fpuReg, 1):
		if !GetFlag(m.flags, flagsZF) {
			m.setSt0(m.stRm(rde))
		}
	case fpuDisp(0xdb, fpuReg, 2):
		if !m.isBelowOrEqual() {
			m.setSt0(m.stRm(rde))
		}
	case fpuDisp(0xdb, fpuReg, 3):
		if !m.isParity() {
			m.setSt0(m.stRm(rde))
		}
	case fpuDisp(0xdb, fpuReg, 4):
		switch rde.ModrmRm() {
		case 2:
			m.opFnclex()
		case 3:
			m.opFinit()
		default:
			m.OpUdImpl()
		}
	case fpuDisp(0xdb, fpuReg, 5):
		m.opFcomi(rde)
	case fpuDisp(0xdb, fpuReg, 6):
		m.opFcomi(rde)
	case fpuDisp(0xdb, fpuMem, 0):
		m.FpuPush(float64(m.fpuGetMemoryInt()))
	case fpuDisp(0xdb, fpuMem, 1):
		m.fpuSetMemoryInt(int32(m.FpuPop()))
	case fpuDisp(0xdb, fpuMem, 2):
		m.fpuSetMemoryInt(int32(m.fpuRound(m.st0())))
	case fpuDisp(0xdb, fpuMem, 3):
		m.fpuSetMemoryInt(int32(m.fpuRound(m.st0())))
		m.FpuPop()
	case fpuDisp(0xdb, fpuMem, 5):
		m.FpuPush(m.fpuGetMemoryLdbl())
	case fpuDisp(0xdb, fpuMem, 7):
		m.fpuSetMemoryLdbl(m.FpuPop())
	case fpuDisp(0xdc, fpuReg, 0):
		m.setStRm(rde, m.fpuAdd(m.stRm(rde), m.st0()))
	case fpuDisp(0xdc, fpuReg, 1):
		m.setStRm(rde, m.fpuMul(m.stRm(rde), m.st0()))
	case fpuDisp(0xdc, fpuReg, 2):
		m.fpuCompare(m.stRm(rde))
	case fpuDisp(0xdc, fpuReg, 3):
		m.fpuCompare(m.stRm(rde))
		m.FpuPop()
	case fpuDisp(0xdc, fpuReg, 4):
		m.setStRm(rde, m.fpuSub(m.st0(), m.stRm(rde)))
	case fpuDisp(0xdc, fpuReg, 5):
		m.setStRm(rde, m.fpuSub(m.stRm(rde), m.st0()))
	case fpuDisp(0xdc, fpuReg, 6):
		m.setStRm(rde, m.fpuDiv(m.stRm(rde), m.st0()))
	case fpuDisp(0xdc, fpuReg, 7):
		m.setStRm(rde, m.fpuDiv(m.st0(), m.stRm(rde)))
	case fpuDisp(0xdc, fpuMem, 0):
		m.setSt0(m.fpuAdd(m.st0(), m.fpuGetMemoryDouble()))
	case fpuDisp(0xdc, fpuMem, 1):
		m.setSt0(m.fpuMul(m.st0(), m.fpuGetMemoryDouble()))
	case fpuDisp(0xdc, fpuMem, 2):
		m.fpuCompare(m.fpuGetMemoryDouble())
	case fpuDisp(0xdc, fpuMem, 3):
		m.fpuCompare(m.fpuGetMemoryDouble())
		m.FpuPop()
	case fpuDisp(0xdc, fpuMem, 4):
		m.setSt0(m.fpuSub(m.st0(), m.fpuGetMemoryDouble()))
	case fpuDisp(0xdc, fpuMem, 5):
		m.setSt0(m.fpuSub(m.fpuGetMemoryDouble(), m.st0()))
	case fpuDisp(0xdc, fpuMem, 6):
		m.setSt0(m.fpuDiv(m.st0(), m.fpuGetMemoryDouble()))
	case fpuDisp(0xdc, fpuMem, 7):
		m.setSt0(m.fpuDiv(m.fpuGetMemoryDouble(), m.st0()))
	case fpuDisp(0xdd, fpuReg, 0):
		m.opFfree(rde)
	case fpuDisp(0xdd, fpuReg, 1):
		m.opFxch(rde)
	case fpuDisp(0xdd, fpuReg, 2):
		m.setStRm(rde, m.st0())
	case fpuDisp(0xdd, fpuReg, 3):
		m.setStRmPop(rde, m.st0())
	case fpuDisp(0xdd, fpuReg, 4):
		m.fpuCompare(m.stRm(rde))
	case fpuDisp(0xdd, fpuReg, 5):
		m.fpuCompare(m.stRm(rde))
		m.FpuPop()
	case fpuDisp(0xdd, fpuMem, 0):
		m.FpuPush(m.fpuGetMemoryDouble())
	case fpuDisp(0xdd, fpuMem, 1):
		m.fpuSetMemoryLong(int64(m.FpuPop()))
	case fpuDisp(0xdd, fpuMem, 2):
		m.fpuSetMemoryDouble(m.st0())
	case fpuDisp(0xdd, fpuMem, 3):
		m.fpuSetMemoryDouble(m.st0())
		m.FpuPop()
	case fpuDisp(0xdd, fpuMem, 4):
		m.opFrstor()
	case fpuDisp(0xdd, fpuMem, 6):
		m.opFsave()
	case fpuDisp(0xdd, fpuMem, 7):
		m.fpuSetMemoryShort(int16(m.fpu.sw))
	case fpuDisp(0xde, fpuReg, 0):
		m.setStRmPop(rde, m.fpuAdd(m.st0(), m.stRm(rde)))
	case fpuDisp(0xde, fpuReg, 1):
		m.setStRmPop(rde, m.fpuMul(m.st0(), m.stRm(rde)))
	case fpuDisp(0xde, fpuReg, 2):
		m.fpuCompare(m.stRm(rde))
		m.FpuPop()
	case fpuDisp(0xde, fpuReg, 3):
		m.fpuCompare(m.stRm(rde))
		m.FpuPop()
		m.FpuPop()
	case fpuDisp(0xde, fpuReg, 4):
		m.setStRmPop(rde, m.fpuSub(m.st0(), m.stRm(rde)))
	case fpuDisp(0xde, fpuReg, 5):
		m.setStPop(1, m.fpuSub(m.stRm(rde), m.st0()))
	case fpuDisp(0xde, fpuReg, 6):
		m.setStRmPop(rde, m.fpuDiv(m.st0(), m.stRm(rde)))
	case fpuDisp(0xde, fpuReg, 7):
		m.setStRmPop(rde, m.fpuDiv(m.stRm(rde), m.st0()))
	case fpuDisp(0xde, fpuMem, 0):
		m.setSt0(m.fpuAdd(m.st0(), float64(m.fpuGetMemoryShort())))
	case fpuDisp(0xde, fpuMem, 1):
		m.setSt0(m.fpuMul(m.st0(), float64(m.fpuGetMemoryShort())))
	case fpuDisp(0xde, fpuMem, 2):
		m.fpuCompare(float64(m.fpuGetMemoryShort()))
	case fpuDisp(0xde, fpuMem, 3):
		m.fpuCompare(float64(m.fpuGetMemoryShort()))
		m.FpuPop()
	case fpuDisp(0xde, fpuMem, 4):
		m.setSt0(m.fpuSub(m.st0(), float64(m.fpuGetMemoryShort())))
	case fpuDisp(0xde, fpuMem, 5):
		m.setSt0(m.fpuSub(float64(m.fpuGetMemoryShort()), m.st0()))
	case fpuDisp(0xde, fpuMem, 6):
		m.setSt0(m.fpuDiv(m.st0(), float64(m.fpuGetMemoryShort())))
	case fpuDisp(0xde, fpuMem, 7):
		m.setSt0(m.fpuDiv(float64(m.fpuGetMemoryShort()), m.st0()))
	case fpuDisp(0xdf, fpuReg, 0):
		if rde.ModrmRm() != 0 {
			m.opFfree(rde)
		}
		m.FpuPop()
	case fpuDisp(0xdf, fpuReg, 1):
		m.opFxch(rde)
	case fpuDisp(0xdf, fpuReg, 2), fpuDisp(0xdf, fpuReg, 3):
		m.setStRmPop(rde, m.st0())
	case fpuDisp(0xdf, fpuReg, 4):
		Put16(m.ax(), uint16(m.fpu.sw))
	case fpuDisp(0xdf, fpuReg, 5):
		m.opFcomi(rde)
		m.FpuPop()
	case fpuDisp(0xdf, fpuReg, 6):
		m.opFcomi(rde)
		m.FpuPop()
	case fpuDisp(0xdf, fpuMem, 0):
		m.FpuPush(float64(m.fpuGetMemoryShort()))
	case fpuDisp(0xdf, fpuMem, 1):
		m.fpuSetMemoryShort(int16(m.FpuPop()))
	case fpuDisp(0xdf, fpuMem, 2):
		m.fpuSetMemoryShort(int16(m.fpuRound(m.st0())))
	case fpuDisp(0xdf, fpuMem, 3):
		m.fpuSetMemoryShort(int16(m.fpuRound(m.st0())))
		m.FpuPop()
	case fpuDisp(0xdf, fpuMem, 4):
		m.FpuPush(m.fpuLoadBcd())
	case fpuDisp(0xdf, fpuMem, 5):
		m.FpuPush(float64(m.fpuGetMemoryLong()))
	case fpuDisp(0xdf, fpuMem, 6):
		m.fpuStoreBcd(m.FpuPop())
	case fpuDisp(0xdf, fpuMem, 7):
		m.fpuSetMemoryLong(int64(m.fpuRound(m.FpuPop())))
	default:
		m.OpUdImpl()
	}
}

// fpuLoadBcd and fpuStoreBcd move packed 18-digit BCD through memory.
func (m *Machine) fpuLoadBcd() float64 {
	var b [10]byte
	p := m.load(m.fpu.dp, 10, b[:])
	var val int64
	mul := int64(1)
	for i := 0; i < 9; i++ {
		val += int64(p[i]&0x0f) * mul
		mul *= 10
		val += int64(p[i]>>4&0x0f) * mul
		mul *= 10
	}
	if p[9]&0x80 != 0 {
		val = -val
	}
	return float64(val)
}

func (m *Machine) fpuStoreBcd(v float64) {
	r := int64(m.fpuRound(v))
	neg := r < 0
	if neg {
		r = -r
	}
	p := m.beginStore(m.fpu.dp, 10)
	for i := 0; i < 9; i++ {
		d0 := byte(r % 10)
		r /= 10
		d1 := byte(r % 10)
		r /= 10
		p[i] = d0 | d1<<4
	}
	if neg {
		p[9] = 0x80
	} else {
		p[9] = 0
	}
	m.endStore()
}
