// vector_sse.go - 16-byte lane kernels and the paired MMX/SSE dispatch
//
// Each packed-integer opcode exists in an 8-byte and a 16-byte rendition;
// the osz prefix picks which one runs. Most SSE kernels run the MMX kernel
// over both halves; the cross-half shuffles and packs carry their own
// bodies.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

func sseHalves(k func(x, y []byte)) func(x, y []byte) {
	return func(x, y []byte) {
		k(x[:8], y[:8])
		k(x[8:16], y[8:16])
	}
}

func sseHalvesCount(k func(x, y []byte)) func(x, y []byte) {
	return func(x, y []byte) {
		k(x[:8], y)
		k(x[8:16], y)
	}
}

var (
	ssePor       = sseHalves(mmxPor)
	ssePxor      = sseHalves(mmxPxor)
	ssePand      = sseHalves(mmxPand)
	ssePandn     = sseHalves(mmxPandn)
	ssePsubb     = sseHalves(mmxPsubb)
	ssePaddb     = sseHalves(mmxPaddb)
	ssePavgb     = sseHalves(mmxPavgb)
	ssePabsb     = sseHalves(mmxPabsb)
	ssePminub    = sseHalves(mmxPminub)
	ssePmaxub    = sseHalves(mmxPmaxub)
	ssePaddusb   = sseHalves(mmxPaddusb)
	ssePsubusb   = sseHalves(mmxPsubusb)
	ssePcmpeqb   = sseHalves(mmxPcmpeqb)
	ssePcmpgtb   = sseHalves(mmxPcmpgtb)
	ssePsubsb    = sseHalves(mmxPsubsb)
	ssePaddsb    = sseHalves(mmxPaddsb)
	ssePmulhrsw  = sseHalves(mmxPmulhrsw)
	ssePmaddubsw = sseHalves(mmxPmaddubsw)
	ssePmaddwd   = sseHalves(mmxPmaddwd)
	ssePsubw     = sseHalves(mmxPsubw)
	ssePaddw     = sseHalves(mmxPaddw)
	ssePsubd     = sseHalves(mmxPsubd)
	ssePaddd     = sseHalves(mmxPaddd)
	ssePaddq     = sseHalves(mmxPaddq)
	ssePsubq     = sseHalves(mmxPsubq)
	ssePaddsw    = sseHalves(mmxPaddsw)
	ssePsubsw    = sseHalves(mmxPsubsw)
	ssePaddusw   = sseHalves(mmxPaddusw)
	ssePsubusw   = sseHalves(mmxPsubusw)
	ssePminsw    = sseHalves(mmxPminsw)
	ssePmaxsw    = sseHalves(mmxPmaxsw)
	ssePcmpgtw   = sseHalves(mmxPcmpgtw)
	ssePcmpeqw   = sseHalves(mmxPcmpeqw)
	ssePcmpgtd   = sseHalves(mmxPcmpgtd)
	ssePcmpeqd   = sseHalves(mmxPcmpeqd)
	ssePavgw     = sseHalves(mmxPavgw)
	ssePmulhuw   = sseHalves(mmxPmulhuw)
	ssePmulhw    = sseHalves(mmxPmulhw)
	ssePmuludq   = sseHalves(mmxPmuludq)
	ssePmullw    = sseHalves(mmxPmullw)
	ssePmulld    = sseHalves(mmxPmulld)
	ssePsignb    = sseHalves(mmxPsignb)
	ssePsignw    = sseHalves(mmxPsignw)
	ssePsignd    = sseHalves(mmxPsignd)
	ssePabsw     = sseHalves(mmxPabsw)
	ssePabsd     = sseHalves(mmxPabsd)
	ssePsrawv    = sseHalvesCount(mmxPsrawv)
	ssePsradv    = sseHalvesCount(mmxPsradv)
	ssePsrlwv    = sseHalvesCount(mmxPsrlwv)
	ssePsllwv    = sseHalvesCount(mmxPsllwv)
	ssePsrldv    = sseHalvesCount(mmxPsrldv)
	ssePslldv    = sseHalvesCount(mmxPslldv)
	ssePsrlqv    = sseHalvesCount(mmxPsrlqv)
	ssePsllqv    = sseHalvesCount(mmxPsllqv)
)

func ssePsadbw(x, y []byte) {
	var s, t uint64
	for i := 0; i < 8; i++ {
		s += uint64(absDiff(x[i], y[i]))
	}
	for i := 8; i < 16; i++ {
		t += uint64(absDiff(x[i], y[i]))
	}
	Put64(x, s)
	Put64(x[8:], t)
}

func ssePshufb(x, y []byte) {
	var t [16]byte
	for i := 0; i < 16; i++ {
		if y[i]&128 != 0 {
			t[i] = 0
		} else {
			t[i] = x[y[i]&15]
		}
	}
	copy(x[:16], t[:])
}

func ssePackuswb(x, y []byte) {
	var t [16]byte
	for i := 0; i < 8; i++ {
		t[i] = clampu8(int16(Get16(x[i*2:])))
	}
	for i := 0; i < 8; i++ {
		t[i+8] = clampu8(int16(Get16(y[i*2:])))
	}
	copy(x[:16], t[:])
}

func ssePacksswb(x, y []byte) {
	var t [16]byte
	for i := 0; i < 8; i++ {
		t[i] = uint8(clamp8(int16(Get16(x[i*2:]))))
	}
	for i := 0; i < 8; i++ {
		t[i+8] = uint8(clamp8(int16(Get16(y[i*2:]))))
	}
	copy(x[:16], t[:])
}

func ssePackssdw(x, y []byte) {
	var t [16]byte
	for i := 0; i < 4; i++ {
		Put16(t[i*2:], uint16(clamp16(int32(Get32(x[i*4:])))))
	}
	for i := 0; i < 4; i++ {
		Put16(t[i*2+8:], uint16(clamp16(int32(Get32(y[i*4:])))))
	}
	copy(x[:16], t[:])
}

func ssePhaddw(x, y []byte) {
	var t [16]byte
	for i := 0; i < 4; i++ {
		Put16(t[i*2:], Get16(x[i*4:])+Get16(x[i*4+2:]))
		Put16(t[i*2+8:], Get16(y[i*4:])+Get16(y[i*4+2:]))
	}
	copy(x[:16], t[:])
}

func ssePhsubw(x, y []byte) {
	var t [16]byte
	for i := 0; i < 4; i++ {
		Put16(t[i*2:], Get16(x[i*4:])-Get16(x[i*4+2:]))
		Put16(t[i*2+8:], Get16(y[i*4:])-Get16(y[i*4+2:]))
	}
	copy(x[:16], t[:])
}

func ssePhaddd(x, y []byte) {
	var t [16]byte
	Put32(t[0:], Get32(x[0:])+Get32(x[4:]))
	Put32(t[4:], Get32(x[8:])+Get32(x[12:]))
	Put32(t[8:], Get32(y[0:])+Get32(y[4:]))
	Put32(t[12:], Get32(y[8:])+Get32(y[12:]))
	copy(x[:16], t[:])
}

func ssePhsubd(x, y []byte) {
	var t [16]byte
	Put32(t[0:], Get32(x[0:])-Get32(x[4:]))
	Put32(t[4:], Get32(x[8:])-Get32(x[12:]))
	Put32(t[8:], Get32(y[0:])-Get32(y[4:]))
	Put32(t[12:], Get32(y[8:])-Get32(y[12:]))
	copy(x[:16], t[:])
}

func ssePhaddsw(x, y []byte) {
	var t [16]byte
	for i := 0; i < 4; i++ {
		Put16(t[i*2:], uint16(clamp16(int32(int16(Get16(x[i*4:])))+
			int32(int16(Get16(x[i*4+2:]))))))
		Put16(t[i*2+8:], uint16(clamp16(int32(int16(Get16(y[i*4:])))+
			int32(int16(Get16(y[i*4+2:]))))))
	}
	copy(x[:16], t[:])
}

func ssePhsubsw(x, y []byte) {
	var t [16]byte
	for i := 0; i < 4; i++ {
		Put16(t[i*2:], uint16(clamp16(int32(int16(Get16(x[i*4:])))-
			int32(int16(Get16(x[i*4+2:]))))))
		Put16(t[i*2+8:], uint16(clamp16(int32(int16(Get16(y[i*4:])))-
			int32(int16(Get16(y[i*4+2:]))))))
	}
	copy(x[:16], t[:])
}

func ssePunpcklbw(x, y []byte) {
	var t [16]byte
	for i := 0; i < 8; i++ {
		t[i*2] = x[i]
		t[i*2+1] = y[i]
	}
	copy(x[:16], t[:])
}

func ssePunpckhbw(x, y []byte) {
	var t [16]byte
	for i := 0; i < 8; i++ {
		t[i*2] = x[8+i]
		t[i*2+1] = y[8+i]
	}
	copy(x[:16], t[:])
}

func ssePunpcklwd(x, y []byte) {
	var t [16]byte
	for i := 0; i < 4; i++ {
		copy(t[i*4:], x[i*2:i*2+2])
		copy(t[i*4+2:], y[i*2:i*2+2])
	}
	copy(x[:16], t[:])
}

func ssePunpckhwd(x, y []byte) {
	var t [16]byte
	for i := 0; i < 4; i++ {
		copy(t[i*4:], x[8+i*2:8+i*2+2])
		copy(t[i*4+2:], y[8+i*2:8+i*2+2])
	}
	copy(x[:16], t[:])
}

func ssePunpckldq(x, y []byte) {
	var t [16]byte
	copy(t[0:], x[0:4])
	copy(t[4:], y[0:4])
	copy(t[8:], x[4:8])
	copy(t[12:], y[4:8])
	copy(x[:16], t[:])
}

func ssePunpckhdq(x, y []byte) {
	var t [16]byte
	copy(t[0:], x[8:12])
	copy(t[4:], y[8:12])
	copy(t[8:], x[12:16])
	copy(t[12:], y[12:16])
	copy(x[:16], t[:])
}

func ssePunpcklqdq(x, y []byte) {
	copy(x[8:16], y[0:8])
}

func ssePunpckhqdq(x, y []byte) {
	copy(x[0:8], x[8:16])
	copy(x[8:16], y[8:16])
}

func ssePslldq(x []byte, k uint) {
	var t [16]byte
	if k > 16 {
		k = 16
	}
	copy(t[k:], x[:16-k])
	copy(x[:16], t[:])
}

func ssePsrldq(x []byte, k uint) {
	var t [16]byte
	if k > 16 {
		k = 16
	}
	copy(t[:], x[k:16])
	copy(x[:16], t[:])
}

func ssePsraw(x []byte, k uint) { mmxPsraw(x[:8], k); mmxPsraw(x[8:16], k) }
func ssePsrad(x []byte, k uint) { mmxPsrad(x[:8], k); mmxPsrad(x[8:16], k) }
func ssePsrlw(x []byte, k uint) { mmxPsrlw(x[:8], k); mmxPsrlw(x[8:16], k) }
func ssePsllw(x []byte, k uint) { mmxPsllw(x[:8], k); mmxPsllw(x[8:16], k) }
func ssePsrld(x []byte, k uint) { mmxPsrld(x[:8], k); mmxPsrld(x[8:16], k) }
func ssePslld(x []byte, k uint) { mmxPslld(x[:8], k); mmxPslld(x[8:16], k) }
func ssePsrlq(x []byte, k uint) { mmxPsrlq(x[:8], k); mmxPsrlq(x[8:16], k) }
func ssePsllq(x []byte, k uint) { mmxPsllq(x[:8], k); mmxPsllq(x[8:16], k) }

func ssePalignr(x, y []byte, k uint) {
	var t [48]byte
	copy(t[0:], y[:16])
	copy(t[16:], x[:16])
	if k > 32 {
		k = 32
	}
	copy(x[:16], t[k:])
}

// ----------------------------------------------------------------------------
// Dispatch glue
// ----------------------------------------------------------------------------

// opSse picks the MMX or SSE rendition of a paired kernel off the osz
// prefix and resolves the source operand accordingly.
func (m *Machine) opSse(rde Rde, mmxKernel, sseKernel func(x, y []byte)) {
	if rde.Osz() {
		sseKernel(m.xmmRexrReg(rde), m.modrmXmmPointerRead(rde, 16))
	} else {
		mmxKernel(m.xmmRexrReg(rde)[:8], m.modrmXmmPointerRead(rde, 8))
	}
}

func ssePaired(mmxKernel, sseKernel func(x, y []byte)) opHandler {
	return func(m *Machine, rde Rde) {
		m.opSse(rde, mmxKernel, sseKernel)
	}
}

// opPsb runs the shift-by-immediate subgroup against a register operand.
func (m *Machine) opPsb(rde Rde, mmxKernel, sseKernel func([]byte, uint)) {
	k := uint(m.insn.uimm0)
	if rde.Osz() {
		sseKernel(m.xmmRexbRm(rde), k)
	} else {
		mmxKernel(m.xmmRexbRm(rde)[:8], k)
	}
}

func op171(m *Machine, rde Rde) {
	switch rde.ModrmReg() {
	case 2:
		m.opPsb(rde, mmxPsrlw, ssePsrlw)
	case 4:
		m.opPsb(rde, mmxPsraw, ssePsraw)
	case 6:
		m.opPsb(rde, mmxPsllw, ssePsllw)
	default:
		m.OpUdImpl()
	}
}

func op172(m *Machine, rde Rde) {
	switch rde.ModrmReg() {
	case 2:
		m.opPsb(rde, mmxPsrld, ssePsrld)
	case 4:
		m.opPsb(rde, mmxPsrad, ssePsrad)
	case 6:
		m.opPsb(rde, mmxPslld, ssePslld)
	default:
		m.OpUdImpl()
	}
}

func op173(m *Machine, rde Rde) {
	switch rde.ModrmReg() {
	case 2:
		m.opPsb(rde, mmxPsrlq, ssePsrlq)
	case 3:
		m.opPsb(rde, mmxPsrldq, ssePsrldq)
	case 6:
		m.opPsb(rde, mmxPsllq, ssePsllq)
	case 7:
		m.opPsb(rde, mmxPslldq, ssePslldq)
	default:
		m.OpUdImpl()
	}
}

func opSsePalignr(m *Machine, rde Rde) {
	if rde.Osz() {
		ssePalignr(m.xmmRexrReg(rde), m.modrmXmmPointerRead(rde, 16),
			uint(m.insn.uimm0))
	} else {
		mmxPalignr(m.xmmRexrReg(rde)[:8], m.modrmXmmPointerRead(rde, 8),
			uint(m.insn.uimm0))
	}
}

// opSsePclmulqdq is carry-less multiply over the selected 64-bit halves.
func opSsePclmulqdq(m *Machine, rde Rde) {
	if !rde.Osz() {
		m.OpUdImpl()
	}
	p := m.xmmRexrReg(rde)
	q := m.modrmXmmPointerRead(rde, 16)
	imm := m.insn.uimm0
	a := Get64(p[imm&1*8:])
	b := Get64(q[imm>>4&1*8:])
	var lo, hi uint64
	for i := uint(0); i < 64; i++ {
		if b>>i&1 != 0 {
			lo ^= a << i
			if i != 0 {
				hi ^= a >> (64 - i)
			}
		}
	}
	Put64(p, lo)
	Put64(p[8:], hi)
}

func opEmms(m *Machine, rde Rde) {
	m.fpu.tw = -1
}
