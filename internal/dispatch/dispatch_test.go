package dispatch

import (
	"testing"

	"github.com/ksherlock/MINIXCompat/internal/core"
	"github.com/ksherlock/MINIXCompat/internal/cpu"
	"github.com/ksherlock/MINIXCompat/internal/fsbridge"
	"github.com/ksherlock/MINIXCompat/internal/message"
	"github.com/ksherlock/MINIXCompat/internal/procbridge"
	"github.com/ksherlock/MINIXCompat/internal/ram"
)

func newTestEnv(t *testing.T) (*core.Environment, *cpu.FakeCPU) {
	t.Helper()
	r := ram.New()
	c := cpu.NewFake(r)
	fs, err := fsbridge.New(t.TempDir(), "/")
	if err != nil {
		t.Fatal(err)
	}
	proc := procbridge.New(1234)
	env := core.New(r, c, fs, proc)
	return env, c
}

// Scenario 4: unknown syscall.
func TestUnknownSyscallSetsD0ToMinusOne(t *testing.T) {
	env, c := newTestEnv(t)
	c.SetTrapHook(HandleTrap(env))

	msg := &message.Message{}
	msg.SetType(34) // nice: unimplemented
	env.RAM.BlockFromHost(0x2000, msg.ToRAM())

	c.WriteReg(cpu.D0, FuncSend)
	c.WriteReg(cpu.D1, TaskFS)
	c.WriteReg(cpu.A0, 0x2000)

	if handled := c.FireTrap(); !handled {
		t.Fatal("expected trap to be handled")
	}
	if got := c.ReadReg(cpu.D0); got != 0xFFFFFFFF {
		t.Errorf("D0 = 0x%x, want 0xFFFFFFFF", got)
	}
}

func TestGetpidDispatch(t *testing.T) {
	env, c := newTestEnv(t)
	c.SetTrapHook(HandleTrap(env))

	msg := &message.Message{}
	msg.SetType(CallGetpid)
	env.RAM.BlockFromHost(0x2000, msg.ToRAM())

	c.WriteReg(cpu.D0, FuncSendReceive)
	c.WriteReg(cpu.D1, TaskMM)
	c.WriteReg(cpu.A0, 0x2000)
	c.FireTrap()

	raw := env.RAM.BlockToHost(0x2000, uint32(message.Size))
	reply := message.FromRAM(raw)
	if reply.Type() != 0 {
		t.Errorf("getpid reply pid = %d, want 0", reply.Type())
	}
}

func TestBrkDispatch(t *testing.T) {
	env, c := newTestEnv(t)
	c.SetTrapHook(HandleTrap(env))

	msg := &message.Message{}
	msg.SetType(CallBrk)
	msg.SetM1P1(0x2000)
	env.RAM.BlockFromHost(0x3000, msg.ToRAM())

	c.WriteReg(cpu.D0, FuncSendReceive)
	c.WriteReg(cpu.D1, TaskMM)
	c.WriteReg(cpu.A0, 0x3000)
	c.FireTrap()

	raw := env.RAM.BlockToHost(0x3000, uint32(message.Size))
	reply := message.FromRAM(raw)
	if reply.Type() != 0 {
		t.Errorf("brk reply type = %d, want 0", reply.Type())
	}
	if reply.M1P1() != 0x2000 {
		t.Errorf("brk reply address = 0x%x, want 0x2000", reply.M1P1())
	}
	if env.Break != 0x2000 {
		t.Errorf("env.Break = 0x%x, want 0x2000", env.Break)
	}
}

func TestExitTransitionsToFinished(t *testing.T) {
	env, c := newTestEnv(t)
	env.State = core.Running
	c.SetTrapHook(HandleTrap(env))

	msg := &message.Message{}
	msg.SetType(CallExit)
	msg.SetM1I1(42)
	env.RAM.BlockFromHost(0x4000, msg.ToRAM())

	c.WriteReg(cpu.D0, FuncSend)
	c.WriteReg(cpu.D1, TaskMM)
	c.WriteReg(cpu.A0, 0x4000)
	c.FireTrap()

	if env.State != core.Finished {
		t.Errorf("state = %v, want Finished", env.State)
	}
	if env.ExitCode != 42 {
		t.Errorf("exit code = %d, want 42", env.ExitCode)
	}
}
