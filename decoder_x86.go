// decoder_x86.go - x86-64 instruction length decoder
//
// Scans up to 15 bytes of machine code and produces a fixed-size Insn record
// whose packed rde word carries every attribute the dispatcher and the
// operand resolver need. The phase order is prefix scan, opcode and map
// selection, ModR/M, SIB, displacement, immediate; width resolution is
// table driven in the manner of the Intel ILD.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "errors"

// Machine operating modes, also the decoder's notion of operand bitness.
const (
	modeReal   = 0 // 16-bit
	modeLegacy = 1 // 32-bit
	modeLong   = 2 // 64-bit
)

// Opcode maps.
const (
	map0   = 0 // one byte
	map1   = 1 // 0F xx
	map2   = 2 // 0F 38 xx
	map3   = 3 // 0F 3A xx
	badMap = 7
)

var (
	errDecodeTooShort = errors.New("x86 decode: buffer too short")
	errInstrTooLong   = errors.New("x86 decode: instruction exceeds 15 bytes")
	errBadMap         = errors.New("x86 decode: reserved opcode escape")
	errDecodeGeneral  = errors.New("x86 decode: general error")
)

// Rde is the packed decode word. Sub-fields live at fixed bit positions and
// are only ever read through the accessors below.
//
//	0-2   modrm.reg        32-34  sib.base
//	3     rex.r            35-37  sib.index
//	4     rex present      38-39  sib.scale
//	5     osz (0x66)       40-47  opcode
//	6     rex.w            48-50  opmap
//	7-9   modrm.rm         51-52  rep (0,2,3)
//	10    rex.b            53-56  oplength
//	11    rex present      57-58  word log2
//	12-14 srm (opcode&7)   60-63  vreg
//	15    rex.b
//	16    rex present
//	17    rex.x
//	18-20 segment override
//	21    asz (0x67)
//	22-23 modrm.mod
//	24-25 eamode
//	26-27 mode
//	28-29 reg log2
//	30    ymm
//	31    lock
type Rde uint64

func (x Rde) RexrReg() int   { return int(x & 017) }
func (x Rde) ModrmReg() int  { return int(x & 007) }
func (x Rde) Rexr() int      { return int(x>>3) & 1 }
func (x Rde) Rex() int       { return int(x>>4) & 1 }
func (x Rde) Osz() bool      { return x>>5&1 != 0 }
func (x Rde) Rexw() bool     { return x>>6&1 != 0 }
func (x Rde) ModrmRm() int   { return int(x>>7) & 7 }
func (x Rde) RexbRm() int    { return int(x>>7) & 017 }
func (x Rde) Rexb() int      { return int(x>>10) & 1 }
func (x Rde) Srm() int       { return int(x>>12) & 7 }
func (x Rde) RexbSrm() int   { return int(x>>12) & 017 }
func (x Rde) Rexx() int      { return int(x>>17) & 1 }
func (x Rde) Sego() int      { return int(x>>18) & 7 }
func (x Rde) Asz() int       { return int(x>>21) & 1 }
func (x Rde) ModrmMod() int  { return int(x>>22) & 3 }
func (x Rde) Eamode() int    { return int(x>>24) & 3 }
func (x Rde) Mode() int      { return int(x>>26) & 3 }
func (x Rde) RegLog2() uint  { return uint(x>>28) & 3 }
func (x Rde) Lock() bool     { return x>>31&1 != 0 }
func (x Rde) SibBase() int   { return int(x>>32) & 7 }
func (x Rde) SibIndex() int  { return int(x>>35) & 7 }
func (x Rde) SibScale() int  { return int(x>>38) & 3 }
func (x Rde) Opcode() int    { return int(x>>40) & 0xff }
func (x Rde) Opmap() int     { return int(x>>48) & 7 }
func (x Rde) Mopcode() int   { return int(x>>40) & 0x7ff }
func (x Rde) Rep() int       { return int(x>>51) & 3 }
func (x Rde) Oplength() int  { return int(x>>53) & 15 }
func (x Rde) WordLog2() uint { return uint(x>>57) & 3 }

// ByteRexr and ByteRexb index the 32-entry byte register window.
func (x Rde) ByteRexr() int { return int(x & 037) }
func (x Rde) ByteRexb() int { return int(x>>7) & 037 }

func (x Rde) IsByteOp() bool        { return x.Srm()&1 == 0 }
func (x Rde) SibExists() bool       { return x.ModrmRm() == 4 }
func (x Rde) IsModrmRegister() bool { return x.ModrmMod() == 3 }
func (x Rde) SibHasIndex() bool     { return x.SibIndex() != 4 || x.Rexx() != 0 }
func (x Rde) SibHasBase() bool      { return x.SibBase() != 5 || x.ModrmMod() != 0 }
func (x Rde) RexbBase() int         { return x.Rexb()<<3 | x.SibBase() }
func (x Rde) RexxIndex() int        { return x.Rexx()<<3 | x.SibIndex() }
func (x Rde) Modrm() int {
	return x.ModrmMod()<<6 | x.ModrmReg()<<3 | x.ModrmRm()
}
func (x Rde) IsRipRelative() bool {
	return x.Eamode() != modeReal && x.ModrmRm() == 5 && x.ModrmMod() == 0
}

// Insn is the decoded instruction record.
type Insn struct {
	bytes  [15]byte
	length int
	rde    Rde
	disp   int64  // sign-extended unless an absolute-offset form
	uimm0  uint64 // sign- or zero-extended per the immediate table

	// decoder scratch
	maxBytes     int
	opcode       int
	opmap        int
	rep          int
	realmode     bool
	hasModrm     int
	hasSib       bool
	dispWidth    int // bits
	immWidth     int // bits
	immSigned    bool
	dispUnsigned bool
	outOfBytes   bool
	err          error
}

const hasModrmIgnoreMod = 2

// kEamode maps [asz][mode] to the effective address mode.
var kEamode = [2][3]uint8{
	{modeReal, modeLegacy, modeLong},
	{modeLegacy, modeReal, modeLegacy},
}

// kPrefixBits is a 256-bit membership bitmap of legacy/rex prefix bytes.
var kPrefixBits = [8]uint32{
	0x00000000, 0x40404040, 0x0000ffff, 0x000000f0,
	0x00000000, 0x00000000, 0x00000000, 0x000d0000,
}

func isPrefixByte(b byte) bool {
	return kPrefixBits[b>>5]>>(b&0x1f)&1 != 0
}

// kHasSib is indexed by [eamode][mod][rm].
var kHasSib = [3][4][8]uint8{
	{{0, 0, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 0}},
	{{0, 0, 0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 0}},
	{{0, 0, 0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 0}},
}

// kDispRegular is indexed by [eamode][mod][rm], values in bytes.
var kDispRegular = [3][4][8]uint8{
	{{0, 0, 0, 0, 0, 0, 2, 0},
		{1, 1, 1, 1, 1, 1, 1, 1},
		{2, 2, 2, 2, 2, 2, 2, 2},
		{0, 0, 0, 0, 0, 0, 0, 0}},
	{{0, 0, 0, 0, 0, 4, 0, 0},
		{1, 1, 1, 1, 1, 1, 1, 1},
		{4, 4, 4, 4, 4, 4, 4, 4},
		{0, 0, 0, 0, 0, 0, 0, 0}},
	{{0, 0, 0, 0, 0, 4, 0, 0},
		{1, 1, 1, 1, 1, 1, 1, 1},
		{4, 4, 4, 4, 4, 4, 4, 4},
		{0, 0, 0, 0, 0, 0, 0, 0}},
}

// Immediate resolution actions for kImmBits.
const (
	immNone = iota + 1
	immByRegC7
	immByRegF6
	immByRegF7
	immSimm8
	immSimmzDf64
	immSimmz
	immUimm16
	immUimm8
	immUimmv
	immEnter
	immExtrq
)

var kImmBits = [2][256]uint8{
	{1, 1, 1, 1, 5, 7, 1, 1, 1, 1, 1, 1, 9, 7, 1, 0, 1, 1, 1, 1, 5, 7,
		1, 1, 1, 1, 1, 1, 5, 7, 1, 1, 1, 1, 1, 1, 5, 7, 0, 1, 1, 1, 1, 1,
		5, 7, 0, 1, 1, 1, 1, 1, 9, 7, 0, 1, 1, 1, 1, 1, 5, 7, 0, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 6, 7, 5, 5, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 5, 7, 5, 5,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		8, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 5, 7, 1, 1, 1, 1, 1, 1,
		9, 9, 9, 9, 9, 9, 9, 9, 10, 10, 10, 10, 10, 10, 10, 10, 9, 9, 8, 1, 1, 1,
		9, 2, 11, 1, 8, 1, 1, 9, 1, 1, 1, 1, 1, 1, 9, 9, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 9, 9, 9, 9, 1, 1, 8, 1, 1, 1, 1, 1, 0, 1,
		0, 0, 1, 1, 3, 4, 1, 1, 1, 1, 1, 1, 1, 1},
	{1, 1, 1, 1, 0, 1, 1, 1, 1, 1, 0, 1, 0, 1, 1, 0, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 9, 9, 9, 9, 1, 1, 1, 1,
		12, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 9, 1, 0, 0,
		1, 1, 1, 1, 9, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 9, 1, 9, 9, 9, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
}

var kHasModrm = [2][256]uint8{
	{1, 1, 1, 1, 0, 0, 0, 0, 1, 1, 1, 1, 0, 0, 0, 3, 1, 1, 1, 1, 0, 0, 0, 0,
		1, 1, 1, 1, 0, 0, 0, 0, 1, 1, 1, 1, 0, 0, 3, 0, 1, 1, 1, 1, 0, 0, 3, 0,
		1, 1, 1, 1, 0, 0, 3, 0, 1, 1, 1, 1, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 1, 1, 3, 3, 3, 3, 0, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		1, 1, 0, 0, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 0, 0, 0, 0,
		1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		3, 0, 3, 3, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 1, 1},
	{1, 1, 1, 1, 3, 0, 0, 0, 0, 0, 3, 0, 3, 1, 0, 3, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 1, 1, 1, 1, 1, 1, 1, 1,
		0, 0, 0, 0, 0, 0, 3, 0, 3, 3, 3, 3, 3, 3, 3, 3, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0,
		1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 1, 1, 1, 3, 3,
		0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
}

// Displacement resolution actions for kDispBits.
const (
	dispBr8 = iota + 1
	dispBrz
	dispBucket0
	dispEmpty
	dispMemv
	dispByRegC7
)

var kDispBits = [2][256]uint8{
	{4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 0, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 0, 4, 4, 4, 4, 4, 4, 4, 0, 4,
		4, 4, 4, 4, 4, 4, 0, 4, 4, 4, 4, 4, 4, 4, 0, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 0, 0, 0, 0, 4, 4, 4, 4, 4, 4, 4, 4, 1, 1, 1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1, 1, 1, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 2, 4, 4, 4, 4, 4, 5, 5, 5, 5, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 6, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 1, 1, 1, 1, 4, 4, 4, 4, 3, 3, 2, 1, 4, 4, 4, 4,
		0, 4, 0, 0, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4},
	{4, 4, 4, 4, 0, 4, 4, 4, 4, 4, 0, 4, 0, 4, 4, 0, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 0, 0, 0, 0, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 0, 4, 0, 0, 0, 0, 0, 0, 0, 0, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 0, 0,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4},
}

// Effective operand size nonterminals, indexed [rexw][osz][mode].
var (
	kEoszPlain = [2][2][3]uint8{{{1, 2, 2}, {2, 1, 1}}, {{1, 2, 3}, {2, 1, 3}}}
	kEoszDf64  = [2][2][3]uint8{{{1, 2, 3}, {2, 1, 1}}, {{1, 2, 3}, {2, 1, 3}}}
	kEasz      = [2][3]uint8{{1, 2, 3}, {2, 1, 2}}
)

var (
	kSimmzWidth  = [4]uint8{0, 16, 32, 32}
	kUimmvWidth  = [4]uint8{0, 16, 32, 64}
	kBrdispWidth = [4]uint8{0, 16, 32, 32}
	kMemvWidth   = [4]uint8{0, 16, 32, 64}
)

func (d *Insn) tooShort() {
	d.outOfBytes = true
	if d.maxBytes >= 15 {
		d.err = errInstrTooLong
	} else {
		d.err = errDecodeTooShort
	}
}

func (d *Insn) badMap() {
	d.opmap = badMap
	d.err = errBadMap
}

func readNumber(p []byte, n int, signed bool) uint64 {
	switch n {
	case 1:
		if signed {
			return uint64(int64(int8(p[0])))
		}
		return uint64(p[0])
	case 2:
		if signed {
			return uint64(int64(int16(Get16(p))))
		}
		return uint64(Get16(p))
	case 4:
		if signed {
			return uint64(int64(int32(Get32(p))))
		}
		return uint64(Get32(p))
	default:
		return Get64(p)
	}
}

func (d *Insn) scanPrefixes() {
	var rex byte
	rde := d.rde
	islong := rde.Mode() == modeLong
	for d.length < d.maxBytes {
		b := d.bytes[d.length]
		if !isPrefixByte(b) {
			break
		}
		switch b {
		case 0x66:
			rex = 0
			rde |= 1 << 5
		case 0x67:
			rex = 0
			rde |= 1 << 21
		case 0x2e: // cs
			if !islong {
				rde = rde&^(7<<18) | 2<<18
			}
			rex = 0
		case 0x3e: // ds
			if !islong {
				rde = rde&^(7<<18) | 4<<18
			}
			rex = 0
		case 0x26: // es
			if !islong {
				rde = rde&^(7<<18) | 1<<18
			}
			rex = 0
		case 0x36: // ss
			if !islong {
				rde = rde&^(7<<18) | 3<<18
			}
			rex = 0
		case 0x64: // fs
			rde = rde&^(7<<18) | 5<<18
			rex = 0
		case 0x65: // gs
			rde = rde&^(7<<18) | 6<<18
			rex = 0
		case 0xf0:
			rde |= 1 << 31
			rex = 0
		case 0xf2, 0xf3:
			d.rep = int(b & 3)
			rex = 0
		default:
			if islong && b&0xf0 == 0x40 {
				rex = b
			} else {
				goto out
			}
		}
		d.length++
	}
out:
	if rex != 0 {
		rexw := Rde(rex>>3) & 1
		rexr := Rde(rex>>2) & 1
		rexx := Rde(rex>>1) & 1
		rexb := Rde(rex) & 1
		rde |= rexx<<17 | 1<<16 | rexb<<15 | 1<<11 | rexb<<10 |
			rexw<<6 | 1<<4 | rexr<<3
	}
	d.rde = rde
	if d.length >= d.maxBytes {
		d.tooShort()
	}
}

func (d *Insn) nextAsOpcode() {
	if d.length < d.maxBytes {
		d.opcode = int(d.bytes[d.length])
		d.length++
	} else {
		d.tooShort()
	}
}

func (d *Insn) scanOpcode() {
	b := d.bytes[d.length]
	if b != 0x0f {
		d.opmap = map0
		d.opcode = int(b)
		d.length++
		return
	}
	d.length++
	if d.length >= d.maxBytes {
		d.tooShort()
		return
	}
	switch b = d.bytes[d.length]; b {
	case 0x38:
		d.length++
		d.opmap = map2
		d.nextAsOpcode()
	case 0x3a:
		d.length++
		d.opmap = map3
		d.immWidth = 8
		d.nextAsOpcode()
	case 0x0f:
		d.badMap()
		d.length++
	case 0x39, 0x3b, 0x3c, 0x3d, 0x3e, 0x3f:
		d.badMap()
		d.length++
		d.nextAsOpcode()
	default:
		d.opcode = int(b)
		d.length++
		d.opmap = map1
	}
}

func (d *Insn) scanModrm() {
	if d.opmap < 2 {
		d.hasModrm = int(kHasModrm[d.opmap][d.opcode])
	} else {
		d.hasModrm = 1
	}
	if d.hasModrm == 0 {
		return
	}
	if d.length >= d.maxBytes {
		d.tooShort()
		return
	}
	b := d.bytes[d.length]
	d.length++
	rm := Rde(b) & 7
	reg := Rde(b>>3) & 7
	mod := Rde(b>>6) & 3
	d.rde = d.rde&^7 | mod<<22 | rm<<7 | reg
	if d.hasModrm != hasModrmIgnoreMod {
		eamode := kEamode[d.rde.Asz()][d.rde.Mode()]
		d.dispWidth = int(kDispRegular[eamode][mod][rm]) * 8
		d.hasSib = kHasSib[eamode][mod][rm] != 0
	}
}

func (d *Insn) scanSib() {
	if !d.hasSib {
		return
	}
	if d.length >= d.maxBytes {
		d.tooShort()
		return
	}
	b := d.bytes[d.length]
	d.length++
	d.rde |= Rde(b&7)<<32 | Rde(b>>3&7)<<35 | Rde(b>>6&3)<<38
	if b&7 == 5 && d.rde.ModrmMod() == 0 {
		d.dispWidth = 32
	}
}

func (d *Insn) setSimmz(eosz *[2][2][3]uint8) {
	rexw, osz := 0, 0
	if d.rde.Rexw() {
		rexw = 1
	}
	if d.rde.Osz() {
		osz = 1
	}
	d.immWidth = int(kSimmzWidth[eosz[rexw][osz][d.rde.Mode()]])
	d.immSigned = true
}

func (d *Insn) setUimmv() {
	rexw, osz := 0, 0
	if d.rde.Rexw() {
		rexw = 1
	}
	if d.rde.Osz() {
		osz = 1
	}
	d.immWidth = int(kUimmvWidth[kEoszPlain[rexw][osz][d.rde.Mode()]])
}

func (d *Insn) resolveImmWidth() {
	if d.immWidth != 0 || d.opmap >= 2 {
		return
	}
	switch kImmBits[d.opmap][d.opcode] {
	case immNone:
		// no immediate
	case immByRegC7:
		switch d.rde.ModrmReg() {
		case 0:
			d.setSimmz(&kEoszPlain)
		case 7:
			d.immWidth = 0
		}
	case immByRegF6:
		if d.rde.ModrmReg() <= 1 {
			d.immWidth = 8
			d.immSigned = true
		}
	case immByRegF7:
		if d.rde.ModrmReg() <= 1 {
			d.setSimmz(&kEoszPlain)
		}
	case immSimm8:
		d.immWidth = 8
		d.immSigned = true
	case immSimmzDf64:
		d.setSimmz(&kEoszDf64)
	case immSimmz:
		d.setSimmz(&kEoszPlain)
	case immUimm16:
		d.immWidth = 16
	case immUimm8:
		d.immWidth = 8
	case immUimmv:
		d.setUimmv()
	case immEnter:
		d.immWidth = 16
	case immExtrq:
		if d.rde.Osz() || d.rep == 2 {
			d.immWidth = 8
		}
	default:
		d.err = errDecodeGeneral
	}
}

func (d *Insn) scanDisp() {
	if d.opmap < 2 {
		switch kDispBits[d.opmap][d.opcode] {
		case dispBr8:
			d.dispWidth = 8
		case dispBrz:
			rexw, osz := 0, 0
			if d.rde.Rexw() {
				rexw = 1
			}
			if d.rde.Osz() {
				osz = 1
			}
			d.dispWidth = int(kBrdispWidth[kEoszPlain[rexw][osz][d.rde.Mode()]])
			d.dispUnsigned = true
		case dispBucket0:
			if d.rde.Mode() <= modeLegacy {
				rexw, osz := 0, 0
				if d.rde.Rexw() {
					rexw = 1
				}
				if d.rde.Osz() {
					osz = 1
				}
				d.dispWidth = int(kBrdispWidth[kEoszPlain[rexw][osz][d.rde.Mode()]])
			} else {
				d.dispWidth = 32
			}
		case dispEmpty:
			// resolved by the regular modrm/sib tables
		case dispMemv:
			d.dispWidth = int(kMemvWidth[kEasz[d.rde.Asz()][d.rde.Mode()]])
			d.dispUnsigned = true
		case dispByRegC7:
			if d.rde.ModrmReg() == 7 {
				rexw, osz := 0, 0
				if d.rde.Rexw() {
					rexw = 1
				}
				if d.rde.Osz() {
					osz = 1
				}
				d.dispWidth = int(kBrdispWidth[kEoszPlain[rexw][osz][d.rde.Mode()]])
				d.dispUnsigned = true
			}
		default:
			d.err = errDecodeGeneral
			return
		}
	}
	if n := d.dispWidth / 8; n != 0 {
		if d.length+n <= d.maxBytes {
			d.disp = int64(readNumber(d.bytes[d.length:], n, !d.dispUnsigned))
			d.length += n
		} else {
			d.tooShort()
		}
	}
}

func (d *Insn) scanImm() {
	d.resolveImmWidth()
	if n := d.immWidth / 8; n != 0 {
		if d.length+n <= d.maxBytes {
			d.uimm0 = readNumber(d.bytes[d.length:], n, d.immSigned)
			d.length += n
		} else {
			d.tooShort()
		}
	}
}

// InitInsn clears decoder state for a machine operating mode.
func InitInsn(d *Insn, mode int) *Insn {
	*d = Insn{}
	switch mode {
	case modeReal:
		d.realmode = true
	}
	d.rde = Rde(mode) << 26
	return d
}

// kWordLog2 is indexed by [~opcode&1][osz][rexw].
var kWordLog2 = [2][2][2]uint8{{{2, 3}, {1, 3}}}

// DecodeInstruction decodes the instruction at the head of itext, populating
// d and returning its error status. The record's length never exceeds 15 and
// the decoder never reads past the decoded length.
func DecodeInstruction(d *Insn, itext []byte) error {
	n := len(itext)
	if n > 15 {
		n = 15
	}
	copy(d.bytes[:], itext[:n])
	d.maxBytes = n
	d.scanPrefixes()
	if !d.outOfBytes {
		if d.err == nil {
			d.scanOpcode()
		}
		d.scanModrm()
		d.scanSib()
		d.scanDisp()
		d.scanImm()
	}
	realbit := Rde(0)
	if d.realmode {
		realbit = 1
	}
	d.rde |= Rde(d.opcode&7) << 12
	d.rde ^= realbit << 5
	invb := ^d.opcode & 1
	osz, rexw := 0, 0
	if d.rde.Osz() {
		osz = 1
	}
	if d.rde.Rexw() {
		rexw = 1
	}
	wlog2 := Rde(kWordLog2[invb][osz][rexw])
	d.rde |= wlog2 << 57
	d.rde |= wlog2 << 28
	d.rde |= Rde(kEamode[d.rde.Asz()][d.rde.Mode()]) << 24
	d.rde |= Rde(d.opmap&7) << 48
	d.rde |= Rde(d.opcode&0xff) << 40
	d.rde |= Rde(d.rep&3) << 51
	d.rde |= Rde(d.length&15) << 53
	if d.outOfBytes {
		if d.err != nil {
			return d.err
		}
		return errDecodeTooShort
	}
	if d.opmap == badMap {
		return errBadMap
	}
	return d.err
}
