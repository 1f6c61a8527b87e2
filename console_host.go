// console_host.go - Raw-mode terminal adapter for the guest serial port
//
// Reads raw stdin and feeds bytes to the guest's serial input; guest serial
// output goes straight to stdout. Only instantiated by the front end for
// interactive use - never in tests.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/term"
)

// ConsoleHost owns the host terminal while a guest runs.
type ConsoleHost struct {
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	input        chan byte
	oldTermState *term.State
}

// NewConsoleHost creates a host adapter over stdin/stdout.
func NewConsoleHost() *ConsoleHost {
	return &ConsoleHost{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		input:  make(chan byte, 256),
	}
}

// Start puts the terminal in raw mode and begins reading in a goroutine.
// Call Stop to restore the terminal state.
func (h *ConsoleHost) Start() {
	h.fd = int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState
	go func() {
		defer close(h.done)
		buf := make([]byte, 1)
		for {
			select {
			case <-h.stopCh:
				return
			default:
			}
			n, err := os.Stdin.Read(buf)
			if err != nil {
				if err == syscall.EINTR {
					continue
				}
				return
			}
			if n == 1 {
				select {
				case h.input <- buf[0]:
				case <-h.stopCh:
					return
				}
			}
		}
	}()
}

// Stop restores the terminal and joins the reader.
func (h *ConsoleHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
		if h.oldTermState != nil {
			_ = term.Restore(h.fd, h.oldTermState)
			h.oldTermState = nil
		}
	})
}

// WriteByte emits one byte of guest serial output.
func (h *ConsoleHost) WriteByte(b byte) {
	if b == '\n' {
		os.Stdout.Write([]byte{'\r'})
	}
	os.Stdout.Write([]byte{b})
}

// ReadByte returns the next buffered input byte, or zero when none is
// pending; the guest polls the line status register first.
func (h *ConsoleHost) ReadByte() byte {
	select {
	case b := <-h.input:
		return b
	default:
		return 0
	}
}
