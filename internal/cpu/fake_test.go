package cpu

import (
	"testing"

	"github.com/ksherlock/MINIXCompat/internal/ram"
)

func TestFakeResetReadsVectors(t *testing.T) {
	r := ram.New()
	r.Write32(0x000, 0x00FF0000)
	r.Write32(0x004, 0x00001000)

	c := NewFake(r)
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if c.ReadReg(PC) != 0x00001000 {
		t.Errorf("PC = 0x%x, want 0x1000", c.ReadReg(PC))
	}
	if c.ReadReg(A7) != 0x00FF0000 {
		t.Errorf("A7 = 0x%x, want 0xFF0000", c.ReadReg(A7))
	}
}

func TestFakeTrapHook(t *testing.T) {
	r := ram.New()
	c := NewFake(r)

	var gotD0, gotD1 uint32
	c.SetTrapHook(func(cpu CPU) bool {
		gotD0 = cpu.ReadReg(D0)
		gotD1 = cpu.ReadReg(D1)
		return true
	})

	c.WriteReg(D0, 3)
	c.WriteReg(D1, 1)
	if handled := c.FireTrap(); !handled {
		t.Error("expected trap to be handled")
	}
	if gotD0 != 3 || gotD1 != 1 {
		t.Errorf("hook saw D0=%d D1=%d, want 3 1", gotD0, gotD1)
	}
}

func TestFakeRegWriteReadRoundTrip(t *testing.T) {
	c := NewFake(ram.New())
	c.WriteReg(A0, 0xDEADBEEF)
	if got := c.ReadReg(A0); got != 0xDEADBEEF {
		t.Errorf("A0 = 0x%x, want 0xDEADBEEF", got)
	}
}
