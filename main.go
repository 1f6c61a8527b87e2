// main.go - Front end for the IntuitionX64 user-mode x86-64 emulator
//
// Loads a flat machine code image into guest RAM and runs it to completion,
// reporting the halt reason. The execution core itself lives beside this
// file; everything here is plumbing.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runFlags struct {
	origin  uint64
	entry   uint64
	ramSize int
	real    bool
	jit     bool
	trace   bool
	tty     bool
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "intuitionx64 [flags] image",
		Short: "user-mode x86-64 emulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(args[0])
		},
		SilenceUsage: true,
	}
	f := root.Flags()
	f.Uint64Var(&runFlags.origin, "origin", 0x10000, "guest load address")
	f.Uint64Var(&runFlags.entry, "entry", 0x10000, "guest entry point")
	f.IntVar(&runFlags.ramSize, "ram", defaultRamSize, "guest ram bytes")
	f.BoolVar(&runFlags.real, "real", false, "start in 16-bit real mode")
	f.BoolVar(&runFlags.jit, "jit", true, "enable the micro-op path builder")
	f.BoolVar(&runFlags.trace, "trace", false, "log every instruction")
	f.BoolVar(&runFlags.tty, "tty", false, "attach raw-mode console")
	return root
}

func runImage(path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sys, err := NewSystem(runFlags.ramSize)
	if err != nil {
		return err
	}
	defer sys.Close()
	sys.jitEnabled = runFlags.jit

	var console *ConsoleHost
	if runFlags.tty {
		console = NewConsoleHost()
		console.Start()
		defer console.Stop()
	}
	sys.InstallBios(console)

	m := sys.NewMachine()
	m.trace = runFlags.trace
	if runFlags.real {
		m.mode = modeReal
	}
	if err := sys.LoadFlatImage(m, image, runFlags.origin,
		runFlags.entry); err != nil {
		return err
	}
	code, err := sys.Run()
	if err != nil {
		return err
	}
	logrus.WithField("code", code).Info("machine halted")
	switch code {
	case machineHalt, machineExit:
		return nil
	default:
		return fmt.Errorf("guest fault %d at %#x", code, m.faultAddr)
	}
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if os.Getenv("INTUITIONX64_DEBUG") != "" {
		logrus.SetLevel(logrus.TraceLevel)
	}
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
