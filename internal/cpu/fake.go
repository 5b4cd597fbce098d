// FakeCPU is a minimal software stand-in for CPU, used by dispatcher and
// run-loop tests that must not require cgo/Unicorn. It holds a register
// array and reads the reset vectors; it executes no M68000 instructions,
// and a TRAP #0 is simulated only by calling FireTrap. Grounded on the teacher's own
// test fixtures (hand-assembled instruction streams run to a sentinel),
// translated from Unicorn's concrete API to this module's CPU interface.
package cpu

import (
	"fmt"

	"github.com/ksherlock/MINIXCompat/internal/ram"
)

// FakeCPU exposes raw register fields for direct test manipulation in
// addition to the CPU interface, so tests can set up a scenario without
// writing machine code.
type FakeCPU struct {
	regs [19]uint32 // indexed by Reg
	ram  *ram.RAM
	hook TrapHook

	// stopped is set by Stop; every later Run call returns an error.
	stopped bool
}

// NewFake constructs a FakeCPU backed by r for any memory it does touch
// (only the exception-vector reads Reset performs).
func NewFake(r *ram.RAM) *FakeCPU {
	return &FakeCPU{ram: r}
}

func (f *FakeCPU) Reset() error {
	f.regs[SR] = 0
	f.regs[PC] = f.ram.Read32(0x004)
	f.regs[SSP] = f.ram.Read32(0x000)
	f.regs[A7] = f.regs[SSP]
	return nil
}

// Run is a no-op quantum for the fake: real instruction stepping is not
// modeled. Tests drive behavior by calling FireTrap directly. This
// matches how dispatcher/run-loop tests want to exercise "a trap
// occurred" without needing real M68K decode.
func (f *FakeCPU) Run(quantum int) error {
	if f.stopped {
		return fmt.Errorf("cpu: fake cpu stopped")
	}
	return nil
}

func (f *FakeCPU) Stop() { f.stopped = true }

func (f *FakeCPU) ReadReg(r Reg) uint32  { return f.regs[r] }
func (f *FakeCPU) WriteReg(r Reg, v uint32) { f.regs[r] = v }

func (f *FakeCPU) SetTrapHook(hook TrapHook) { f.hook = hook }

func (f *FakeCPU) Close() error { return nil }

// FireTrap simulates the guest executing TRAP #0 with D0/D1/A0 already
// set by the test, invoking the installed hook exactly as the Unicorn
// backend's interrupt hook would.
func (f *FakeCPU) FireTrap() bool {
	if f.hook == nil {
		return false
	}
	return f.hook(f)
}
