package procbridge

import "testing"

func TestGetIDs(t *testing.T) {
	b := New(1234)
	pid, ppid := b.GetIDs()
	if pid != 0 {
		t.Errorf("pid = %d, want 0", pid)
	}
	if ppid != PidInit {
		t.Errorf("ppid = %d, want %d", ppid, PidInit)
	}
}

func TestFirstUserPIDReservation(t *testing.T) {
	b := New(1234)
	slot, pid, err := b.reserveSlot()
	if err != nil {
		t.Fatalf("reserveSlot: %v", err)
	}
	if pid != firstUserPID {
		t.Errorf("pid = %d, want %d", pid, firstUserPID)
	}
	if slot < 0 {
		t.Errorf("slot = %d, want >= 0", slot)
	}
}

func TestMonotonicPIDAllocation(t *testing.T) {
	b := New(1234)
	_, pid1, _ := b.reserveSlot()
	_, pid2, _ := b.reserveSlot()
	if pid2 <= pid1 {
		t.Errorf("pid2 (%d) not > pid1 (%d)", pid2, pid1)
	}
	for _, p := range []int16{pid1, pid2} {
		if p == 0 || p == PidMM || p == PidFS || p == PidInit {
			t.Errorf("allocated pid %d collides with a reserved pid", p)
		}
	}
}

func TestSignalRecordsHandlerAndReturnsOld(t *testing.T) {
	b := New(1234)
	old, rc := b.Signal(1, 0x2000)
	if rc != 0 {
		t.Fatalf("Signal rc = %d, want 0", rc)
	}
	if old != SigDFL {
		t.Errorf("old = 0x%x, want SigDFL", old)
	}
	if b.HandlerFor(1) != 0x2000 {
		t.Errorf("HandlerFor(1) = 0x%x, want 0x2000", b.HandlerFor(1))
	}

	old2, _ := b.Signal(1, 0x3000)
	if old2 != 0x2000 {
		t.Errorf("old2 = 0x%x, want 0x2000", old2)
	}
}

func TestSignalOutOfRange(t *testing.T) {
	b := New(1234)
	if _, rc := b.Signal(0, 0); rc >= 0 {
		t.Error("expected error for signal 0")
	}
	if _, rc := b.Signal(17, 0); rc >= 0 {
		t.Error("expected error for signal 17")
	}
}

func TestPendingSignalQueue(t *testing.T) {
	b := New(1234)
	if _, ok := b.TakePending(); ok {
		t.Fatal("expected no pending signal initially")
	}
	b.RecordPending(14)
	sig, ok := b.TakePending()
	if !ok || sig != 14 {
		t.Errorf("TakePending = (%d, %v), want (14, true)", sig, ok)
	}
	if _, ok := b.TakePending(); ok {
		t.Error("expected pending to be cleared after TakePending")
	}
}

func TestKillUnknownPID(t *testing.T) {
	b := New(1234)
	if rc := b.Kill(999, 9); rc >= 0 {
		t.Error("expected -ESRCH for unknown guest pid")
	}
}
