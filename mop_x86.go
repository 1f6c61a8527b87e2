// mop_x86.go - Memory operation primitives for the x86-64 core
//
// Little-endian scalar accessors over guest memory plus the acquire/release
// and compare-and-swap forms used to preserve x86 total-store-order on the
// host. Unaligned plain accessors are always legal; the atomic forms require
// natural alignment and fall back to the bus lock otherwise.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

func Get8(p []byte) uint8 {
	return p[0]
}

func Put8(p []byte, x uint8) {
	p[0] = x
}

func Get16(p []byte) uint16 {
	return binary.LittleEndian.Uint16(p)
}

func Put16(p []byte, x uint16) {
	binary.LittleEndian.PutUint16(p, x)
}

func Get32(p []byte) uint32 {
	return binary.LittleEndian.Uint32(p)
}

func Put32(p []byte, x uint32) {
	binary.LittleEndian.PutUint32(p, x)
}

func Get64(p []byte) uint64 {
	return binary.LittleEndian.Uint64(p)
}

func Put64(p []byte, x uint64) {
	binary.LittleEndian.PutUint64(p, x)
}

// GetN reads a little-endian integer of 1<<log2 bytes.
func GetN(p []byte, log2 uint) uint64 {
	switch log2 {
	case 0:
		return uint64(Get8(p))
	case 1:
		return uint64(Get16(p))
	case 2:
		return uint64(Get32(p))
	default:
		return Get64(p)
	}
}

// PutN writes a little-endian integer of 1<<log2 bytes.
func PutN(p []byte, x uint64, log2 uint) {
	switch log2 {
	case 0:
		Put8(p, uint8(x))
	case 1:
		Put16(p, uint16(x))
	case 2:
		Put32(p, uint32(x))
	default:
		Put64(p, x)
	}
}

func aligned(p []byte, n uintptr) bool {
	return uintptr(unsafe.Pointer(&p[0]))&(n-1) == 0
}

// Load32Acq performs an acquire load when the pointer is naturally aligned.
func Load32Acq(p []byte) uint32 {
	if aligned(p, 4) {
		return atomic.LoadUint32((*uint32)(unsafe.Pointer(&p[0])))
	}
	return Get32(p)
}

// Load64Acq performs an acquire load when the pointer is naturally aligned.
func Load64Acq(p []byte) uint64 {
	if aligned(p, 8) {
		return atomic.LoadUint64((*uint64)(unsafe.Pointer(&p[0])))
	}
	return Get64(p)
}

// Store32Rel performs a release store when the pointer is naturally aligned.
func Store32Rel(p []byte, x uint32) {
	if aligned(p, 4) {
		atomic.StoreUint32((*uint32)(unsafe.Pointer(&p[0])), x)
		return
	}
	Put32(p, x)
}

// Store64Rel performs a release store when the pointer is naturally aligned.
func Store64Rel(p []byte, x uint64) {
	if aligned(p, 8) {
		atomic.StoreUint64((*uint64)(unsafe.Pointer(&p[0])), x)
		return
	}
	Put64(p, x)
}

// Cas32 is a sequentially consistent compare-and-swap on aligned memory.
func Cas32(p []byte, old, new uint32) bool {
	return atomic.CompareAndSwapUint32((*uint32)(unsafe.Pointer(&p[0])), old, new)
}

// Cas64 is a sequentially consistent compare-and-swap on aligned memory.
func Cas64(p []byte, old, new uint64) bool {
	return atomic.CompareAndSwapUint64((*uint64)(unsafe.Pointer(&p[0])), old, new)
}
