// Package core carries the single explicit environment value that
// replaces the singletons spec §9 describes: guest RAM, the FD table,
// the process table, the signal table, the execution state, and the
// current break address, all threaded explicitly into every subsystem.
package core

import (
	"github.com/ksherlock/MINIXCompat/internal/cpu"
	"github.com/ksherlock/MINIXCompat/internal/fsbridge"
	"github.com/ksherlock/MINIXCompat/internal/procbridge"
	"github.com/ksherlock/MINIXCompat/internal/ram"
)

// Address-space layout constants (spec §3).
const (
	ExecBase    = 0x001000
	HeapCeiling = 0x00FE0000
	StackBase   = 0x00FF0000
)

// State is the execution state machine (spec §3).
type State int

const (
	Started State = iota
	Ready
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Started:
		return "Started"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Finished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// Transition validates and applies a state change per spec §3's legal
// transition table, panicking (an invariant violation, per spec §7) on
// any other attempted transition.
func (s *State) Transition(to State) {
	switch {
	case *s == Started && to == Ready,
		*s == Ready && to == Running,
		*s == Running && to == Ready,
		*s == Running && to == Finished,
		*s == Finished && to == Finished:
		*s = to
	default:
		panic(errInvalidTransition(*s, to))
	}
}

type transitionError struct{ from, to State }

func (e *transitionError) Error() string {
	return "core: invalid state transition " + e.from.String() + " -> " + e.to.String()
}

func errInvalidTransition(from, to State) error {
	return &transitionError{from: from, to: to}
}

// Environment is the single explicit value threaded through every
// subsystem: RAM, CPU, filesystem bridge, process bridge, execution
// state, and the current guest heap break.
type Environment struct {
	RAM   *ram.RAM
	CPU   cpu.CPU
	FS    *fsbridge.Bridge
	Proc  *procbridge.Bridge

	State    State
	Break    uint32
	ExitCode int
}

// New constructs an Environment with freshly initialized subsystems.
// The CPU is supplied by the caller (cmd/minixcompat wires either the
// Unicorn backend or, in tests, the fake) since its construction
// depends on the chosen backend and on RAM already existing to back its
// MMIO region.
func New(r *ram.RAM, c cpu.CPU, fs *fsbridge.Bridge, proc *procbridge.Bridge) *Environment {
	return &Environment{
		RAM:   r,
		CPU:   c,
		FS:    fs,
		Proc:  proc,
		State: Started,
		Break: ExecBase,
	}
}

// Brk implements the guest brk() call (spec §4.6): the break is
// monotonically non-decreasing and must stay below the heap ceiling.
func (e *Environment) Brk(requested uint32) (newBreak uint32, ok bool) {
	if requested < e.Break || requested >= HeapCeiling {
		return 0xFFFFFFFF, false
	}
	e.Break = requested
	return requested, true
}

// BootstrapCPU installs SSP/PC into the exception vectors and pulses
// reset, per spec §4.5's "CPU bootstrap after load" step. Called on the
// Ready→Running transition.
func (e *Environment) BootstrapCPU(execBase uint32) error {
	e.RAM.Write32(0x000, StackBase)
	e.RAM.Write32(0x004, execBase)
	return e.CPU.Reset()
}
