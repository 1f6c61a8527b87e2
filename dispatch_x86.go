// dispatch_x86.go - Primary and sparse opcode dispatch
//
// A 0x200-entry handler array covers the one-byte map and the 0F map; the
// 0F 38 and 0F 3A maps fall through to a sparse secondary dispatcher. The
// ModR/M sub-opcode families route through small per-group tables.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "sync/atomic"

type opHandler func(m *Machine, rde Rde)

var kDispatch [0x200]opHandler

// kDispatchCount tallies executed instructions per dispatch index.
var kDispatchCount [0x500]atomic.Int64

// getOp returns the handler for a mopcode, defaulting to #UD.
func getOp(mopcode int) opHandler {
	if mopcode < len(kDispatch) {
		return kDispatch[mopcode]
	}
	return sparseHandler(mopcode)
}

// dispatch runs one decoded instruction.
func dispatch(m *Machine, rde Rde) {
	idx := rde.Mopcode()
	kDispatchCount[idx&0x4ff].Add(1)
	if idx < len(kDispatch) {
		kDispatch[idx](m, rde)
		return
	}
	sparseHandler(idx)(m, rde)
}

// sparseHandler resolves the MAP2/MAP3 instructions.
func sparseHandler(mopcode int) opHandler {
	switch mopcode {
	case 0x200:
		return ssePaired(mmxPshufb, ssePshufb)
	case 0x201:
		return ssePaired(mmxPhaddw, ssePhaddw)
	case 0x202:
		return ssePaired(mmxPhaddd, ssePhaddd)
	case 0x203:
		return ssePaired(mmxPhaddsw, ssePhaddsw)
	case 0x204:
		return ssePaired(mmxPmaddubsw, ssePmaddubsw)
	case 0x205:
		return ssePaired(mmxPhsubw, ssePhsubw)
	case 0x206:
		return ssePaired(mmxPhsubd, ssePhsubd)
	case 0x207:
		return ssePaired(mmxPhsubsw, ssePhsubsw)
	case 0x208:
		return ssePaired(mmxPsignb, ssePsignb)
	case 0x209:
		return ssePaired(mmxPsignw, ssePsignw)
	case 0x20a:
		return ssePaired(mmxPsignd, ssePsignd)
	case 0x20b:
		return ssePaired(mmxPmulhrsw, ssePmulhrsw)
	case 0x21c:
		return ssePaired(mmxPabsb, ssePabsb)
	case 0x21d:
		return ssePaired(mmxPabsw, ssePabsw)
	case 0x21e:
		return ssePaired(mmxPabsd, ssePabsd)
	case 0x22a:
		return opMovntdqaVdqMdq
	case 0x240:
		return ssePaired(mmxPmulld, ssePmulld)
	case 0x2f0, 0x2f1:
		return op2f01
	case 0x2f5:
		return op2f5
	case 0x2f6:
		return op2f6
	case 0x30f:
		return opSsePalignr
	case 0x344:
		return opSsePclmulqdq
	case 0x3f0:
		return opRorx
	default:
		return opUd
	}
}

// Group tables indexed by modrm.reg.

var kOp0f6 = [8]opHandler{
	opTestEbIb, opTestEbIb, opNotEvqp, opNegEvqp,
	opMulAxAlEbUnsigned, opMulAxAlEbSigned,
	opDivAlAhAxEbUnsigned, opDivAlAhAxEbSigned,
}

func op0f6(m *Machine, rde Rde) {
	kOp0f6[rde.ModrmReg()](m, rde)
}

var kOp0f7 = [8]opHandler{
	opTestEvqpIvds, opTestEvqpIvds, opNotEvqp, opNegEvqp,
	opMulRdxRaxEvqpUnsigned, opMulRdxRaxEvqpSigned,
	opDivRdxRaxEvqpUnsigned, opDivRdxRaxEvqpSigned,
}

func op0f7(m *Machine, rde Rde) {
	kOp0f7[rde.ModrmReg()](m, rde)
}

var kOp0fe = [8]opHandler{
	opIncEvqp, opDecEvqp, opUd, opUd, opUd, opUd, opUd, opUd,
}

func op0fe(m *Machine, rde Rde) {
	kOp0fe[rde.ModrmReg()](m, rde)
}

var kOp0ff = [8]opHandler{
	opIncEvqp, opDecEvqp, opCallEq, opUd, opJmpEq, opUd, opPushEvq, opUd,
}

func op0ff(m *Machine, rde Rde) {
	kOp0ff[rde.ModrmReg()](m, rde)
}

func init() {
	for i := range kDispatch {
		kDispatch[i] = opUd
	}
	// 0x00-0x3F: the classic two-operand ALU block
	for op := 0; op < 8; op++ {
		base := op << 3
		kDispatch[base+0] = opAlub
		kDispatch[base+1] = opAluw
		kDispatch[base+2] = opAlubFlip
		kDispatch[base+3] = opAluwFlip
		kDispatch[base+4] = opAluAlIb
		kDispatch[base+5] = opAluRaxIvds
	}
	kDispatch[0x38] = opAlubCmp
	kDispatch[0x39] = opAluwCmp
	kDispatch[0x3a] = opAlubFlipCmp
	kDispatch[0x3b] = opAluwFlipCmp
	kDispatch[0x3c] = opCmpAlIb
	kDispatch[0x3d] = opCmpRaxIvds
	kDispatch[0x06] = opPushSeg
	kDispatch[0x07] = opPopSeg
	kDispatch[0x0e] = opPushSeg
	kDispatch[0x0f] = opUd // two-byte escape never dispatches here
	kDispatch[0x16] = opPushSeg
	kDispatch[0x17] = opPopSeg
	kDispatch[0x1e] = opPushSeg
	kDispatch[0x1f] = opPopSeg
	kDispatch[0x26] = opUd
	kDispatch[0x27] = opDaa
	kDispatch[0x2e] = opUd
	kDispatch[0x2f] = opDas
	kDispatch[0x36] = opUd
	kDispatch[0x37] = opAaa
	kDispatch[0x3e] = opUd
	kDispatch[0x3f] = opAas
	for i := 0x40; i <= 0x47; i++ {
		kDispatch[i] = opIncZv
	}
	for i := 0x48; i <= 0x4f; i++ {
		kDispatch[i] = opDecZv
	}
	for i := 0x50; i <= 0x57; i++ {
		kDispatch[i] = opPushZvq
	}
	for i := 0x58; i <= 0x5f; i++ {
		kDispatch[i] = opPopZvq
	}
	kDispatch[0x60] = opPusha
	kDispatch[0x61] = opPopa
	kDispatch[0x63] = opMovsxdGdqpEd
	kDispatch[0x68] = opPushImm
	kDispatch[0x69] = opImulGvqpEvqpImm
	kDispatch[0x6a] = opPushImm
	kDispatch[0x6b] = opImulGvqpEvqpImm
	kDispatch[0x6c] = opIns
	kDispatch[0x6d] = opIns
	kDispatch[0x6e] = opOuts
	kDispatch[0x6f] = opOuts
	for i := 0x70; i <= 0x7f; i++ {
		kDispatch[i] = opJcc
	}
	kDispatch[0x80] = opAluiReg
	kDispatch[0x81] = opAluiReg
	kDispatch[0x82] = opAluiReg
	kDispatch[0x83] = opAluiReg
	kDispatch[0x84] = opAlubTest
	kDispatch[0x85] = opAluwTest
	kDispatch[0x86] = opXchgGbEb
	kDispatch[0x87] = opXchgGvqpEvqp
	kDispatch[0x88] = opMovEbGb
	kDispatch[0x89] = opMovEvqpGvqp
	kDispatch[0x8a] = opMovGbEb
	kDispatch[0x8b] = opMovGvqpEvqp
	kDispatch[0x8c] = opMovEvqpSw
	kDispatch[0x8d] = opLeaGvqpM
	kDispatch[0x8e] = opMovSwEvqp
	kDispatch[0x8f] = opPopEvq
	kDispatch[0x90] = opNop
	for i := 0x91; i <= 0x97; i++ {
		kDispatch[i] = opXchgZvqp
	}
	kDispatch[0x98] = opSax
	kDispatch[0x99] = opConvert
	kDispatch[0x9a] = opCallf
	kDispatch[0x9b] = opFwait
	kDispatch[0x9c] = opPushf
	kDispatch[0x9d] = opPopf
	kDispatch[0x9e] = opSahf
	kDispatch[0x9f] = opLahf
	kDispatch[0xa0] = opMovAlOb
	kDispatch[0xa1] = opMovRaxOvqp
	kDispatch[0xa2] = opMovObAl
	kDispatch[0xa3] = opMovOvqpRax
	kDispatch[0xa4] = opMovsb
	kDispatch[0xa5] = opMovs
	kDispatch[0xa6] = opCmps
	kDispatch[0xa7] = opCmps
	kDispatch[0xa8] = opTestAlIb
	kDispatch[0xa9] = opTestRaxIvds
	kDispatch[0xaa] = opStosb
	kDispatch[0xab] = opStos
	kDispatch[0xac] = opLods
	kDispatch[0xad] = opLods
	kDispatch[0xae] = opScas
	kDispatch[0xaf] = opScas
	for i := 0xb0; i <= 0xb7; i++ {
		kDispatch[i] = opMovZbIb
	}
	for i := 0xb8; i <= 0xbf; i++ {
		kDispatch[i] = opMovZvqpIvqp
	}
	kDispatch[0xc0] = opBsubiImm
	kDispatch[0xc1] = opBsuwiImm
	kDispatch[0xc2] = opRetIw
	kDispatch[0xc3] = opRet
	kDispatch[0xc4] = opLes
	kDispatch[0xc5] = opLds
	kDispatch[0xc6] = opMovEbIb
	kDispatch[0xc7] = opMovEvqpIvds
	kDispatch[0xc9] = opLeave
	kDispatch[0xca] = opRetf
	kDispatch[0xcb] = opRetf
	kDispatch[0xcc] = opInterrupt3
	kDispatch[0xcd] = opInterruptImm
	kDispatch[0xd0] = opBsubi1
	kDispatch[0xd1] = opBsuwi1
	kDispatch[0xd2] = opBsubiCl
	kDispatch[0xd3] = opBsuwiCl
	kDispatch[0xd4] = opAam
	kDispatch[0xd5] = opAad
	kDispatch[0xd6] = opSalc
	kDispatch[0xd7] = opXlatAlBbb
	for i := 0xd8; i <= 0xdf; i++ {
		kDispatch[i] = opFpu
	}
	kDispatch[0xe0] = opLoopne
	kDispatch[0xe1] = opLoope
	kDispatch[0xe2] = opLoop1
	kDispatch[0xe3] = opJcxz
	kDispatch[0xe4] = opInAlImm
	kDispatch[0xe5] = opInAxImm
	kDispatch[0xe6] = opOutImmAl
	kDispatch[0xe7] = opOutImmAx
	kDispatch[0xe8] = opCallJvds
	kDispatch[0xe9] = opJmp
	kDispatch[0xea] = opJmpf
	kDispatch[0xeb] = opJmp
	kDispatch[0xec] = opInAlDx
	kDispatch[0xed] = opInAxDx
	kDispatch[0xee] = opOutDxAl
	kDispatch[0xef] = opOutDxAx
	kDispatch[0xf1] = opInterrupt1
	kDispatch[0xf4] = opHlt
	kDispatch[0xf5] = opCmc
	kDispatch[0xf6] = op0f6
	kDispatch[0xf7] = op0f7
	kDispatch[0xf8] = opClc
	kDispatch[0xf9] = opStc
	kDispatch[0xfa] = opCli
	kDispatch[0xfb] = opSti
	kDispatch[0xfc] = opCld
	kDispatch[0xfd] = opStd
	kDispatch[0xfe] = op0fe
	kDispatch[0xff] = op0ff

	// the 0F map
	kDispatch[0x103] = opUd // lsl needs a descriptor table
	kDispatch[0x101] = op101
	kDispatch[0x105] = opSyscall
	kDispatch[0x10d] = opNopEv
	kDispatch[0x110] = opMov0f10
	kDispatch[0x111] = opMovWpsVps
	kDispatch[0x112] = opMov0f12
	kDispatch[0x113] = opMov0f13
	kDispatch[0x114] = opUnpcklpsd
	kDispatch[0x115] = opUnpckhpsd
	kDispatch[0x116] = opMov0f16
	kDispatch[0x117] = opMov0f17
	for i := 0x118; i <= 0x11e; i++ {
		kDispatch[i] = opNopEv
	}
	kDispatch[0x11f] = opNopEv
	kDispatch[0x128] = opMov0f28
	kDispatch[0x129] = opMovWpsVps
	kDispatch[0x12a] = opCvt0f2a
	kDispatch[0x12b] = opMov0f2b
	kDispatch[0x12c] = opCvtt0f2c
	kDispatch[0x12d] = opCvt0f2d
	kDispatch[0x12e] = opComissVsWs
	kDispatch[0x12f] = opComissVsWs
	kDispatch[0x130] = opNoop // wrmsr
	kDispatch[0x131] = opRdtsc
	kDispatch[0x132] = opRdmsr
	for i := 0x140; i <= 0x14f; i++ {
		kDispatch[i] = opCmovcc
	}
	kDispatch[0x151] = opSqrtpsd
	kDispatch[0x152] = opRsqrtps
	kDispatch[0x153] = opRcpps
	kDispatch[0x154] = opAndpsd
	kDispatch[0x155] = opAndnpsd
	kDispatch[0x156] = opOrpsd
	kDispatch[0x157] = opXorpsd
	kDispatch[0x158] = opAddpsd
	kDispatch[0x159] = opMulpsd
	kDispatch[0x15a] = opCvt0f5a
	kDispatch[0x15b] = opCvt0f5b
	kDispatch[0x15c] = opSubpsd
	kDispatch[0x15d] = opMinpsd
	kDispatch[0x15e] = opDivpsd
	kDispatch[0x15f] = opMaxpsd
	kDispatch[0x160] = ssePaired(mmxPunpcklbw, ssePunpcklbw)
	kDispatch[0x161] = ssePaired(mmxPunpcklwd, ssePunpcklwd)
	kDispatch[0x162] = ssePaired(mmxPunpckldq, ssePunpckldq)
	kDispatch[0x163] = ssePaired(mmxPacksswb, ssePacksswb)
	kDispatch[0x164] = ssePaired(mmxPcmpgtb, ssePcmpgtb)
	kDispatch[0x165] = ssePaired(mmxPcmpgtw, ssePcmpgtw)
	kDispatch[0x166] = ssePaired(mmxPcmpgtd, ssePcmpgtd)
	kDispatch[0x167] = ssePaired(mmxPackuswb, ssePackuswb)
	kDispatch[0x168] = ssePaired(mmxPunpckhbw, ssePunpckhbw)
	kDispatch[0x169] = ssePaired(mmxPunpckhwd, ssePunpckhwd)
	kDispatch[0x16a] = ssePaired(mmxPunpckhdq, ssePunpckhdq)
	kDispatch[0x16b] = ssePaired(mmxPackssdw, ssePackssdw)
	kDispatch[0x16c] = ssePaired(noMmx, ssePunpcklqdq)
	kDispatch[0x16d] = ssePaired(noMmx, ssePunpckhqdq)
	kDispatch[0x16e] = opMov0f6e
	kDispatch[0x16f] = opMov0f6f
	kDispatch[0x170] = opShuffle
	kDispatch[0x171] = op171
	kDispatch[0x172] = op172
	kDispatch[0x173] = op173
	kDispatch[0x174] = ssePaired(mmxPcmpeqb, ssePcmpeqb)
	kDispatch[0x175] = ssePaired(mmxPcmpeqw, ssePcmpeqw)
	kDispatch[0x176] = ssePaired(mmxPcmpeqd, ssePcmpeqd)
	kDispatch[0x177] = opEmms
	kDispatch[0x17c] = opHaddpsd
	kDispatch[0x17d] = opHsubpsd
	kDispatch[0x17e] = opMov0f7e
	kDispatch[0x17f] = opMov0f7f
	for i := 0x180; i <= 0x18f; i++ {
		kDispatch[i] = opJcc
	}
	for i := 0x190; i <= 0x19f; i++ {
		kDispatch[i] = opSetcc
	}
	kDispatch[0x1a0] = opPushSeg
	kDispatch[0x1a1] = opPopSeg
	kDispatch[0x1a2] = opCpuid
	kDispatch[0x1a3] = opBit
	kDispatch[0x1a4] = opDoubleShift
	kDispatch[0x1a5] = opDoubleShift
	kDispatch[0x1a8] = opPushSeg
	kDispatch[0x1a9] = opPopSeg
	kDispatch[0x1ab] = opBit
	kDispatch[0x1ac] = opDoubleShift
	kDispatch[0x1ad] = opDoubleShift
	kDispatch[0x1ae] = op1ae
	kDispatch[0x1af] = opImulGvqpEvqp
	kDispatch[0x1b0] = opCmpxchgEbAlGb
	kDispatch[0x1b1] = opCmpxchgEvqpRaxGvqp
	kDispatch[0x1b3] = opBit
	kDispatch[0x1b6] = opMovzbGvqpEb
	kDispatch[0x1b7] = opMovzwGvqpEw
	kDispatch[0x1b8] = op1b8
	kDispatch[0x1ba] = opBit
	kDispatch[0x1bb] = opBit
	kDispatch[0x1bc] = opBsf
	kDispatch[0x1bd] = opBsr
	kDispatch[0x1be] = opMovsbGvqpEb
	kDispatch[0x1bf] = opMovswGvqpEw
	kDispatch[0x1c0] = opXaddEbGb
	kDispatch[0x1c1] = opXaddEvqpGvqp
	kDispatch[0x1c2] = opCmppsd
	kDispatch[0x1c3] = opMovntiMdqpGdqp
	kDispatch[0x1c4] = opPinsrwVdqEwIb
	kDispatch[0x1c5] = opPextrwGdqpUdqIb
	kDispatch[0x1c6] = opShufpsd
	kDispatch[0x1c7] = op1c7
	for i := 0x1c8; i <= 0x1cf; i++ {
		kDispatch[i] = opBswapZvqp
	}
	kDispatch[0x1d0] = opAddsubpsd
	kDispatch[0x1d1] = ssePaired(mmxPsrlwv, ssePsrlwv)
	kDispatch[0x1d2] = ssePaired(mmxPsrldv, ssePsrldv)
	kDispatch[0x1d3] = ssePaired(mmxPsrlqv, ssePsrlqv)
	kDispatch[0x1d4] = ssePaired(mmxPaddq, ssePaddq)
	kDispatch[0x1d5] = ssePaired(mmxPmullw, ssePmullw)
	kDispatch[0x1d6] = opMov0fD6
	kDispatch[0x1d7] = opPmovmskbGdqpNqUdq
	kDispatch[0x1d8] = ssePaired(mmxPsubusb, ssePsubusb)
	kDispatch[0x1d9] = ssePaired(mmxPsubusw, ssePsubusw)
	kDispatch[0x1da] = ssePaired(mmxPminub, ssePminub)
	kDispatch[0x1db] = ssePaired(mmxPand, ssePand)
	kDispatch[0x1dc] = ssePaired(mmxPaddusb, ssePaddusb)
	kDispatch[0x1dd] = ssePaired(mmxPaddusw, ssePaddusw)
	kDispatch[0x1de] = ssePaired(mmxPmaxub, ssePmaxub)
	kDispatch[0x1df] = ssePaired(mmxPandn, ssePandn)
	kDispatch[0x1e0] = ssePaired(mmxPavgb, ssePavgb)
	kDispatch[0x1e1] = ssePaired(mmxPsrawv, ssePsrawv)
	kDispatch[0x1e2] = ssePaired(mmxPsradv, ssePsradv)
	kDispatch[0x1e3] = ssePaired(mmxPavgw, ssePavgw)
	kDispatch[0x1e4] = ssePaired(mmxPmulhuw, ssePmulhuw)
	kDispatch[0x1e5] = ssePaired(mmxPmulhw, ssePmulhw)
	kDispatch[0x1e6] = opCvt0fE6
	kDispatch[0x1e7] = opMov0fE7
	kDispatch[0x1e8] = ssePaired(mmxPsubsb, ssePsubsb)
	kDispatch[0x1e9] = ssePaired(mmxPsubsw, ssePsubsw)
	kDispatch[0x1ea] = ssePaired(mmxPminsw, ssePminsw)
	kDispatch[0x1eb] = ssePaired(mmxPor, ssePor)
	kDispatch[0x1ec] = ssePaired(mmxPaddsb, ssePaddsb)
	kDispatch[0x1ed] = ssePaired(mmxPaddsw, ssePaddsw)
	kDispatch[0x1ee] = ssePaired(mmxPmaxsw, ssePmaxsw)
	kDispatch[0x1ef] = ssePaired(mmxPxor, ssePxor)
	kDispatch[0x1f0] = opLddquVdqMdq
	kDispatch[0x1f1] = ssePaired(mmxPsllwv, ssePsllwv)
	kDispatch[0x1f2] = ssePaired(mmxPslldv, ssePslldv)
	kDispatch[0x1f3] = ssePaired(mmxPsllqv, ssePsllqv)
	kDispatch[0x1f4] = ssePaired(mmxPmuludq, ssePmuludq)
	kDispatch[0x1f5] = ssePaired(mmxPmaddwd, ssePmaddwd)
	kDispatch[0x1f6] = ssePaired(mmxPsadbw, ssePsadbw)
	kDispatch[0x1f7] = opMaskMovDiXmmRegXmmRm
	kDispatch[0x1f8] = ssePaired(mmxPsubb, ssePsubb)
	kDispatch[0x1f9] = ssePaired(mmxPsubw, ssePsubw)
	kDispatch[0x1fa] = ssePaired(mmxPsubd, ssePsubd)
	kDispatch[0x1fb] = ssePaired(mmxPsubq, ssePsubq)
	kDispatch[0x1fc] = ssePaired(mmxPaddb, ssePaddb)
	kDispatch[0x1fd] = ssePaired(mmxPaddw, ssePaddw)
	kDispatch[0x1fe] = ssePaired(mmxPaddd, ssePaddd)
}

// noMmx marks an SSE form with no 64-bit rendition.
func noMmx(x, y []byte) {
}

func opRdmsr(m *Machine, rde Rde) {
	Put32(m.dx(), 0)
	Put32(m.ax(), 0)
}
