// flags_x86.go - EFLAGS storage with lazy parity
//
// The architectural flags live in a 32-bit word. Bits 24-31 are repurposed
// as a cache of the last ALU result's low byte; the parity flag is derived
// from that byte on demand and the cache is zeroed whenever flags are
// exported to the guest.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// Flag bit positions.
const (
	flagsCF   = 0
	flagsVF   = 1 // always 1
	flagsPF   = 2
	flagsF1   = 3 // always 0
	flagsAF   = 4
	flagsKF   = 5 // always 0
	flagsZF   = 6
	flagsSF   = 7
	flagsTF   = 8
	flagsIF   = 9
	flagsDF   = 10
	flagsOF   = 11
	flagsIOPL = 12 // [12,13]
	flagsNT   = 14
	flagsRF   = 16
	flagsVM   = 17
	flagsAC   = 18
	flagsVIF  = 19
	flagsVIP  = 20
	flagsID   = 21
	flagsLP   = 24 // [24,31] low byte of last alu result
)

// Flag masks used by the dependency analyser.
const (
	maskCF = 1 << flagsCF
	maskPF = 1 << flagsPF
	maskAF = 1 << flagsAF
	maskZF = 1 << flagsZF
	maskSF = 1 << flagsSF
	maskOF = 1 << flagsOF
)

var kParity [256]bool

func init() {
	for i := range kParity {
		b := uint8(i)
		b ^= b >> 4
		b ^= b >> 2
		b ^= b >> 1
		kParity[i] = b&1 == 0
	}
}

// GetParity reports even parity of b.
func GetParity(b uint8) bool {
	return kParity[b]
}

func getLazyParity(f uint32) bool {
	return GetParity(uint8(f >> flagsLP))
}

func setLazyParityByte(f uint32, x uint8) uint32 {
	return f&0x00ffffff | uint32(x)<<flagsLP
}

// GetFlag reads a flag bit, deriving PF from the lazy parity cache.
func GetFlag(f uint32, b int) bool {
	if b == flagsPF {
		return getLazyParity(f)
	}
	return f>>b&1 != 0
}

// SetFlag writes a flag bit. Writing PF stores an equivalent parity byte.
func SetFlag(f uint32, b int, v bool) uint32 {
	if b == flagsPF {
		if v {
			return setLazyParityByte(f, 0)
		}
		return setLazyParityByte(f, 1)
	}
	if v {
		return f | 1<<b
	}
	return f &^ (1 << b)
}

// ExportFlags materialises PF and zeroes the non-architectural cache bits,
// yielding the value the guest may observe through PUSHF or LAHF.
func ExportFlags(f uint32) uint32 {
	f = SetFlag(f, flagsVF, true)
	pf := getLazyParity(f)
	f &= 0x00ffffff
	if pf {
		f |= 1 << flagsPF
	}
	f &^= 1<<flagsF1 | 1<<flagsKF | 1<<15
	return f
}

// ImportFlags loads a guest-supplied flags word, accepting only the bits a
// userspace program may change, and reconstructs the lazy parity cache.
func ImportFlags(m *Machine, f uint32) {
	mask := uint32(0)
	mask |= 1 << flagsCF
	mask |= 1 << flagsPF
	mask |= 1 << flagsAF
	mask |= 1 << flagsZF
	mask |= 1 << flagsSF
	mask |= 1 << flagsTF
	mask |= 1 << flagsDF
	mask |= 1 << flagsOF
	mask |= 1 << flagsNT
	mask |= 1 << flagsAC
	mask |= 1 << flagsID
	m.flags = f&mask | m.flags&^mask
	m.flags = SetFlag(m.flags, flagsPF, f>>flagsPF&1 != 0)
}

// ----------------------------------------------------------------------------
// Condition predicates
// ----------------------------------------------------------------------------

func (m *Machine) isParity() bool {
	return GetFlag(m.flags, flagsPF)
}

func (m *Machine) isBelowOrEqual() bool {
	return GetFlag(m.flags, flagsCF) || GetFlag(m.flags, flagsZF)
}

func (m *Machine) isAbove() bool {
	return !GetFlag(m.flags, flagsCF) && !GetFlag(m.flags, flagsZF)
}

func (m *Machine) isLess() bool {
	return GetFlag(m.flags, flagsSF) != GetFlag(m.flags, flagsOF)
}

func (m *Machine) isGreaterOrEqual() bool {
	return GetFlag(m.flags, flagsSF) == GetFlag(m.flags, flagsOF)
}

func (m *Machine) isLessOrEqual() bool {
	return GetFlag(m.flags, flagsZF) || GetFlag(m.flags, flagsSF) != GetFlag(m.flags, flagsOF)
}

func (m *Machine) isGreater() bool {
	return !GetFlag(m.flags, flagsZF) && GetFlag(m.flags, flagsSF) == GetFlag(m.flags, flagsOF)
}
