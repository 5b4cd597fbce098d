// Package cpu defines the narrow interface the core consumes from a
// guest CPU emulator, and the concrete backends that satisfy it: a
// Unicorn-Engine M68K implementation for real execution, and a small
// software fake used by tests that must not require cgo.
package cpu

// Reg identifies one of the M68000's general or special registers.
type Reg int

const (
	D0 Reg = iota
	D1
	D2
	D3
	D4
	D5
	D6
	D7
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7 // user/active stack pointer
	PC
	SR
	SSP // supervisor stack pointer (exception vector 0x000)
)

// TrapHook is invoked when the guest executes TRAP #0. It returns true
// if the trap was handled (the emulator should resume past it), or
// false if default CPU handling should apply (spec §6's Trap ABI).
type TrapHook func(c CPU) (handled bool)

// CPU is the narrow interface the core requires of a guest emulator:
// reset, run, register read/write, and a trap callback hook. Memory is
// never exposed through this interface — it is wired directly between
// the backend and internal/ram via MMIO-style callbacks, so internal/ram
// remains the sole owner of guest memory (spec §3).
type CPU interface {
	// Reset clears the status register and begins fetching from the
	// reset vector (SSP/PC as currently held in guest RAM at 0x000/0x004).
	Reset() error

	// Run executes up to quantum instructions, or until a trap, an
	// invariant-violating memory access, or Stop is observed. It returns
	// nil if the quantum elapsed normally.
	Run(quantum int) error

	// Stop requests that a Run in progress return at the next
	// instruction boundary.
	Stop()

	ReadReg(r Reg) uint32
	WriteReg(r Reg, v uint32)

	// SetTrapHook installs the callback invoked on TRAP #0.
	SetTrapHook(hook TrapHook)

	// Close releases any backend resources (e.g. the Unicorn instance).
	Close() error
}
