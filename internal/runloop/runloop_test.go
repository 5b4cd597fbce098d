package runloop

import (
	"testing"

	"github.com/ksherlock/MINIXCompat/internal/core"
	"github.com/ksherlock/MINIXCompat/internal/cpu"
	"github.com/ksherlock/MINIXCompat/internal/dispatch"
	"github.com/ksherlock/MINIXCompat/internal/fsbridge"
	"github.com/ksherlock/MINIXCompat/internal/message"
	"github.com/ksherlock/MINIXCompat/internal/procbridge"
	"github.com/ksherlock/MINIXCompat/internal/ram"
)

// stepCPU is a minimal cpu.CPU that fires its installed trap hook once
// per Run call, letting tests drive the run loop deterministically
// without a real instruction-stepping backend.
type stepCPU struct {
	regs [19]uint32
	hook cpu.TrapHook
	runs int
}

func (c *stepCPU) Reset() error { return nil }
func (c *stepCPU) Run(quantum int) error {
	c.runs++
	if c.hook != nil {
		c.hook(c)
	}
	return nil
}
func (c *stepCPU) Stop()                       {}
func (c *stepCPU) ReadReg(r cpu.Reg) uint32     { return c.regs[r] }
func (c *stepCPU) WriteReg(r cpu.Reg, v uint32) { c.regs[r] = v }
func (c *stepCPU) SetTrapHook(h cpu.TrapHook)   { c.hook = h }
func (c *stepCPU) Close() error                 { return nil }

func newTestLoop(t *testing.T) (*Loop, *core.Environment, *stepCPU) {
	t.Helper()
	r := ram.New()
	c := &stepCPU{}
	fs, err := fsbridge.New(t.TempDir(), "/")
	if err != nil {
		t.Fatal(err)
	}
	proc := procbridge.New(1234)
	env := core.New(r, c, fs, proc)
	env.State = core.Running

	loop := &Loop{
		Env:       env,
		StartExec: func(*core.Environment) error { return nil },
	}
	return loop, env, c
}

func TestRunReachesFinishedOnExit(t *testing.T) {
	loop, env, c := newTestLoop(t)

	msg := &message.Message{}
	msg.SetType(dispatch.CallExit)
	msg.SetM1I1(7)
	env.RAM.BlockFromHost(0x5000, msg.ToRAM())

	c.regs[cpu.D0] = dispatch.FuncSend
	c.regs[cpu.D1] = dispatch.TaskMM
	c.regs[cpu.A0] = 0x5000

	code, err := loop.Run()
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
	if env.State != core.Finished {
		t.Errorf("state = %v, want Finished", env.State)
	}
	if c.runs != 1 {
		t.Errorf("runs = %d, want 1", c.runs)
	}
}

func TestSnapshotPublishedNonBlocking(t *testing.T) {
	loop, env, c := newTestLoop(t)
	snaps := make(chan Snapshot) // unbuffered, intentionally never drained
	loop.Snapshots = snaps

	msg := &message.Message{}
	msg.SetType(dispatch.CallExit)
	env.RAM.BlockFromHost(0x5000, msg.ToRAM())
	c.regs[cpu.D0] = dispatch.FuncSend
	c.regs[cpu.D1] = dispatch.TaskMM
	c.regs[cpu.A0] = 0x5000

	if _, err := loop.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	// publishSnapshot must not have blocked despite nobody reading snaps.
}

func TestDeliverPendingSignalWritesPC(t *testing.T) {
	loop, env, _ := newTestLoop(t)
	env.Proc.Signal(1, 0x1234)
	env.Proc.RecordPending(1)

	loop.deliverPendingSignal()

	if got := env.CPU.ReadReg(cpu.PC); got != 0x1234 {
		t.Errorf("PC = 0x%x, want 0x1234", got)
	}
}

func TestDeliverPendingSignalIgnoresDFL(t *testing.T) {
	loop, env, _ := newTestLoop(t)
	env.Proc.RecordPending(2)

	loop.deliverPendingSignal()

	if got := env.CPU.ReadReg(cpu.PC); got != 0 {
		t.Errorf("PC = 0x%x, want 0 (no handler installed)", got)
	}
}
