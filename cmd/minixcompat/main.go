// Command minixcompat runs a MINIX 1.5 a.out binary under user-mode
// emulation, translating its TRAP #0 syscalls to host POSIX operations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ksherlock/MINIXCompat/internal/config"
	"github.com/ksherlock/MINIXCompat/internal/core"
	"github.com/ksherlock/MINIXCompat/internal/cpu"
	"github.com/ksherlock/MINIXCompat/internal/fsbridge"
	"github.com/ksherlock/MINIXCompat/internal/loader"
	glog "github.com/ksherlock/MINIXCompat/internal/log"
	"github.com/ksherlock/MINIXCompat/internal/monitor"
	"github.com/ksherlock/MINIXCompat/internal/procbridge"
	"github.com/ksherlock/MINIXCompat/internal/ram"
	"github.com/ksherlock/MINIXCompat/internal/runloop"
)

// Exit codes for pre-exec failures (spec §6).
const (
	exUsage = 64
	exOSErr = 71
)

var (
	verbose    bool
	quiet      bool
	useMonitor bool
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "minixcompat <guest-path-to-executable> [args...]",
		Short: "Run a MINIX 1.5 binary under user-mode emulation",
		Long: `minixcompat executes MINIX 1.5 a.out binaries on a modern POSIX host.

Guest machine code runs in an emulated M68000 CPU; every guest TRAP #0
syscall is intercepted and translated into an equivalent host POSIX
operation through a filesystem bridge and a process bridge.

Examples:
  minixcompat /bin/sh
  minixcompat -v /bin/cat /etc/motd
  minixcompat --monitor /bin/ls`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		RunE:                  run,
	}

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "raise logging to debug level")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress logging below error level")
	rootCmd.Flags().BoolVar(&useMonitor, "monitor", false, "start the debug-monitor UI instead of logging trace lines")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file overriding MINIXCOMPAT_DIR/MINIXCOMPAT_PWD")

	infoCmd := &cobra.Command{
		Use:   "info <guest-executable>",
		Short: "Show executable header information without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}
	rootCmd.AddCommand(infoCmd)

	if err := rootCmd.Execute(); err != nil {
		if _, ok := err.(usageError); ok {
			os.Exit(exUsage)
		}
		os.Exit(exOSErr)
	}
}

// usageError marks a RunE error as a usage problem (bad arguments,
// unreadable config) rather than an operational failure, per spec §6's
// EX_USAGE/EX_OSERR split.
type usageError struct{ error }

func run(cmd *cobra.Command, args []string) error {
	glog.Init(verbose && !quiet)
	logger := glog.L
	if quiet {
		logger = &glog.Logger{Logger: glog.L.WithOptions(zap.IncreaseLevel(zap.ErrorLevel))}
	}

	guestPath := args[0]
	guestArgv := args

	file, err := config.Load(configPath)
	if err != nil {
		return usageError{err}
	}
	dir, pwd := config.Resolve(file)

	fs, err := fsbridge.New(dir, pwd)
	if err != nil {
		return fmt.Errorf("setting up filesystem bridge: %w", err)
	}

	r := ram.New()
	backend, err := cpu.NewUnicorn(r)
	if err != nil {
		return fmt.Errorf("initializing cpu backend: %w", err)
	}
	defer backend.Close()

	proc := procbridge.New(os.Getpid())
	env := core.New(r, backend, fs, proc)

	hostPath := fs.HostPathFor(guestPath)

	loop := &runloop.Loop{
		Env:    env,
		Logger: logger,
		StartExec: func(e *core.Environment) error {
			err := loader.ExecFromHost(e, hostPath, guestArgv, os.Environ())
			logger.ExecLoad(hostPath, core.ExecBase, err)
			return err
		},
	}

	if useMonitor {
		snaps := make(chan runloop.Snapshot)
		loop.Snapshots = snaps
		loop.Logger = nil // the monitor replaces per-call trace lines
		go func() {
			if err := monitor.Run(snaps); err != nil {
				logger.Warn("monitor exited", zap.Error(err))
			}
		}()
	}

	code, err := loop.Run()
	if err != nil {
		logger.Error("run loop failed", zap.Error(err))
		return err
	}
	os.Exit(code)
	return nil
}

func showInfo(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return usageError{fmt.Errorf("opening %s: %w", args[0], err)}
	}
	defer f.Close()

	img, err := loader.Load(f, core.ExecBase)
	if err != nil {
		return usageError{err}
	}

	kind := "separate I&D"
	if img.Header.Magic == loader.MagicCombined {
		kind = "combined I&D"
	}
	fmt.Printf("magic:  0x%08x (%s)\n", img.Header.Magic, kind)
	fmt.Printf("text:   0x%x\n", img.Header.Text)
	fmt.Printf("data:   0x%x\n", img.Header.Data)
	fmt.Printf("bss:    0x%x\n", img.Header.Bss)
	fmt.Printf("total:  0x%x\n", img.Header.Total)
	fmt.Printf("syms:   0x%x\n", img.Header.SymsSize)
	fmt.Printf("image:  %d bytes\n", len(img.Bytes))
	return nil
}
