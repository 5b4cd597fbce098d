// Package runloop drives the execution state machine described in
// spec §4.7: perform the startup exec, bootstrap and run the CPU in
// quanta, and deliver pending guest signals between quanta.
package runloop

import (
	"fmt"

	"github.com/ksherlock/MINIXCompat/internal/core"
	"github.com/ksherlock/MINIXCompat/internal/cpu"
	"github.com/ksherlock/MINIXCompat/internal/dispatch"
	"github.com/ksherlock/MINIXCompat/internal/log"
	"github.com/ksherlock/MINIXCompat/internal/message"
)

// recentCalls is the number of trailing syscalls a Snapshot carries for
// the optional debug monitor.
const recentCalls = 5

// QuantumCycles is the number of guest instructions run per Running
// iteration before the loop checks for pending signals (spec §4.7).
const QuantumCycles = 10_000

// Snapshot is a point-in-time copy of run-loop state, pushed once per
// quantum to any listener (e.g. the optional debug monitor). It carries
// no pointers into live Environment state, so a slow or absent
// consumer can never observe torn or stale-but-aliased data.
type Snapshot struct {
	State  core.State
	PC     uint32
	D      [8]uint32
	A      [8]uint32
	Recent []CallRecord
}

// CallRecord is one dispatched syscall, kept for the monitor's trailing
// call log.
type CallRecord struct {
	CallNo int
	OK     bool
}

// Loop owns the Started→Ready→Running→Finished cycle for one guest
// process.
type Loop struct {
	Env       *core.Environment
	Logger    *log.Logger
	StartExec func(env *core.Environment) error

	// Snapshots, if non-nil, receives one Snapshot per quantum,
	// non-blocking (spec §5's SPEC_FULL addition: the monitor never
	// blocks the core).
	Snapshots chan<- Snapshot

	recent []CallRecord
}

// Run drives the state machine to completion and returns the guest
// exit code. It installs the syscall trap hook (wiring CPU, dispatch
// table, and environment together) once, before entering the loop.
func (l *Loop) Run() (int, error) {
	l.Env.CPU.SetTrapHook(l.wrapTrapHook(dispatch.HandleTrap(l.Env)))

	for {
		switch l.Env.State {
		case core.Started:
			if err := l.StartExec(l.Env); err != nil {
				return 0, fmt.Errorf("runloop: startup exec: %w", err)
			}
			l.Env.State.Transition(core.Ready)

		case core.Ready:
			if err := l.Env.BootstrapCPU(core.ExecBase); err != nil {
				return 0, fmt.Errorf("runloop: cpu bootstrap: %w", err)
			}
			l.Env.State.Transition(core.Running)

		case core.Running:
			if err := l.Env.CPU.Run(QuantumCycles); err != nil {
				return 0, fmt.Errorf("runloop: cpu run: %w", err)
			}
			l.publishSnapshot()
			if l.Env.State == core.Running {
				l.deliverPendingSignal()
			}

		case core.Finished:
			return l.Env.ExitCode, nil
		}
	}
}

// wrapTrapHook decorates base with recent-call tracking for the
// snapshot feed, without changing its handled/D0 semantics.
func (l *Loop) wrapTrapHook(base cpu.TrapHook) cpu.TrapHook {
	return func(c cpu.CPU) bool {
		a0 := c.ReadReg(cpu.A0)
		raw := l.Env.RAM.BlockToHost(a0, uint32(message.Size))
		callNo := int(message.FromRAM(raw).Type())

		handled := base(c)

		d0 := c.ReadReg(cpu.D0)
		l.recordCall(callNo, d0 != 0xFFFFFFFF)
		if l.Logger != nil {
			l.Logger.Syscall(callNo, int16(c.ReadReg(cpu.D1)), d0 != 0xFFFFFFFF)
		}
		return handled
	}
}

func (l *Loop) recordCall(callNo int, ok bool) {
	l.recent = append(l.recent, CallRecord{CallNo: callNo, OK: ok})
	if len(l.recent) > recentCalls {
		l.recent = l.recent[len(l.recent)-recentCalls:]
	}
}

func (l *Loop) publishSnapshot() {
	if l.Snapshots == nil {
		return
	}
	snap := Snapshot{
		State:  l.Env.State,
		PC:     l.Env.CPU.ReadReg(cpu.PC),
		Recent: append([]CallRecord(nil), l.recent...),
	}
	for i := 0; i < 8; i++ {
		snap.D[i] = l.Env.CPU.ReadReg(cpu.Reg(int(cpu.D0) + i))
		snap.A[i] = l.Env.CPU.ReadReg(cpu.Reg(int(cpu.A0) + i))
	}
	select {
	case l.Snapshots <- snap:
	default:
	}
}

// deliverPendingSignal invokes the guest handler for a pending signal,
// if any, on the guest stack — never from host signal-handler context
// (spec §5). "Invoking on the guest stack" here means arranging for the
// next quantum's PC to start at the handler address; a full signal
// frame (saved PC/SR push) is out of scope per the same non-goal that
// excludes accurate hardware trap emulation.
func (l *Loop) deliverPendingSignal() {
	sig, ok := l.Env.Proc.TakePending()
	if !ok {
		return
	}
	handler := l.Env.Proc.HandlerFor(sig)
	if handler == 0 || handler == 1 {
		// DFL/IGN: no guest code to run.
		return
	}
	if l.Logger != nil {
		l.Logger.SignalPending(sig)
	}
	l.Env.CPU.WriteReg(cpu.PC, handler)
}

