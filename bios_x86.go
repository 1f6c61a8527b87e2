// bios_x86.go - Pseudo-BIOS bootstrap and flat image loading
//
// Enough firmware to get a bare program running: a real-mode interrupt
// vector table pointing at HLT stubs, the reset vector, a serial console on
// the classic COM1 ports, and a loader that copies a flat binary image into
// guest RAM at a chosen origin. Full ELF loading belongs to the front end
// that wraps the core.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"fmt"
	"os"
)

const (
	biosVectorTable = 0x0000
	biosStubBase    = 0x0500
	biosResetIp     = 0xfff0
	serialPortData  = 0x3f8
	serialPortLsr   = 0x3fd
	debugPort       = 0xe9
)

// InstallBios writes the vector table and HLT stubs into low RAM and wires
// the serial console ports.
func (s *System) InstallBios(console *ConsoleHost) {
	// 256 vectors, each pointing at a hlt stub in segment 0
	for v := 0; v < 256; v++ {
		off := biosVectorTable + v*4
		Put16(s.ram[off:], uint16(biosStubBase+v*2))
		Put16(s.ram[off+2:], 0)
	}
	for v := 0; v < 256; v++ {
		s.ram[biosStubBase+v*2] = 0xf4   // hlt
		s.ram[biosStubBase+v*2+1] = 0xcf // iret
	}
	s.onOut = func(m *Machine, port uint16, value uint32) {
		switch port {
		case serialPortData, debugPort:
			b := []byte{byte(value)}
			if console != nil {
				console.WriteByte(b[0])
			} else {
				os.Stdout.Write(b)
			}
		}
	}
	s.onIn = func(m *Machine, port uint16) uint32 {
		switch port {
		case serialPortLsr:
			return 0x60 // transmitter idle
		case serialPortData:
			if console != nil {
				return uint32(console.ReadByte())
			}
		}
		return 0
	}
}

// LoadFlatImage copies a raw binary into guest RAM at origin and points the
// machine's IP at entry.
func (s *System) LoadFlatImage(m *Machine, image []byte, origin, entry uint64) error {
	if origin+uint64(len(image)) > uint64(len(s.ram)) {
		return fmt.Errorf("image of %d bytes does not fit at %#x",
			len(image), origin)
	}
	copy(s.ram[origin:], image)
	m.ip = entry
	return nil
}

// ResetToBios puts a machine at the real-mode reset vector.
func (m *Machine) ResetToBios() {
	m.Reset()
	m.mode = modeReal
	m.seg[segCs].sel = 0xf000
	m.seg[segCs].base = 0xf0000
	m.ip = biosResetIp
}
