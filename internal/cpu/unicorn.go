// Unicorn-Engine M68K backend. Grounded on internal/emulator/emulator.go's
// New/mapMemory/setupHooks/Run lifecycle, retargeted from ARCH_ARM64/MODE_ARM
// to ARCH_M68K/MODE_BIG_ENDIAN and from a Unicorn-owned memory map to an
// MMIO region backed by internal/ram (preserving the RAM-ownership
// invariant in spec §3).
package cpu

import (
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/ksherlock/MINIXCompat/internal/ram"
)

// RAMBackend is the subset of internal/ram's RAM that the Unicorn
// backend needs in order to wire up MMIO callbacks.
type RAMBackend interface {
	MmioRead(offset uint64, size int) uint64
	MmioWrite(offset uint64, size int, value int64)
}

// UnicornCPU implements CPU using the real M68K core.
type UnicornCPU struct {
	mu      uc.Unicorn
	backend RAMBackend
	hook    TrapHook
}

var regMap = map[Reg]int{
	D0: uc.M68K_REG_D0, D1: uc.M68K_REG_D1, D2: uc.M68K_REG_D2, D3: uc.M68K_REG_D3,
	D4: uc.M68K_REG_D4, D5: uc.M68K_REG_D5, D6: uc.M68K_REG_D6, D7: uc.M68K_REG_D7,
	A0: uc.M68K_REG_A0, A1: uc.M68K_REG_A1, A2: uc.M68K_REG_A2, A3: uc.M68K_REG_A3,
	A4: uc.M68K_REG_A4, A5: uc.M68K_REG_A5, A6: uc.M68K_REG_A6, A7: uc.M68K_REG_A7,
	PC: uc.M68K_REG_PC, SR: uc.M68K_REG_SR,
	// SSP has no distinct Unicorn register on M68K in user mode; it is
	// tracked as an ordinary guest-RAM value at 0x000 and never read
	// through the CPU interface directly (the run loop writes it into
	// RAM, then pulses reset, matching spec §4.5's CPU bootstrap step).
}

// NewUnicorn constructs a Unicorn-backed M68K CPU whose entire address
// space is the given backend's MMIO callbacks.
func NewUnicorn(backend RAMBackend) (*UnicornCPU, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_M68K, uc.MODE_BIG_ENDIAN)
	if err != nil {
		return nil, fmt.Errorf("cpu: create unicorn m68k: %w", err)
	}

	if err := mu.MmioMap(0, ram.Size,
		func(_ uc.Unicorn, offset uint64, size int) uint64 {
			return backend.MmioRead(offset, size)
		},
		func(_ uc.Unicorn, offset uint64, size int, value int64) {
			backend.MmioWrite(offset, size, value)
		},
	); err != nil {
		mu.Close()
		return nil, fmt.Errorf("cpu: mmio map: %w", err)
	}

	c := &UnicornCPU{mu: mu, backend: backend}

	if _, err := mu.HookAdd(uc.HOOK_INTR, func(_ uc.Unicorn, intno uint32) {
		// M68K TRAP #n raises exception vector 32+n; only TRAP #0 (vector
		// 32) is handled here per spec §4.6/§6.
		if intno != 32 {
			return
		}
		if c.hook == nil {
			return
		}
		c.hook(c)
	}, 1, 0); err != nil {
		mu.Close()
		return nil, fmt.Errorf("cpu: hook trap: %w", err)
	}

	return c, nil
}

// Reset zeroes SR and loads PC/A7 from the reset vectors currently held
// in guest RAM at 0x000 (SSP) and 0x004 (PC), matching FakeCPU.Reset and
// the CPU interface contract.
func (c *UnicornCPU) Reset() error {
	if err := c.mu.RegWrite(uc.M68K_REG_SR, 0); err != nil {
		return err
	}
	ssp := uint32(c.backend.MmioRead(0, 4))
	pc := uint32(c.backend.MmioRead(4, 4))
	if err := c.mu.RegWrite(uc.M68K_REG_A7, uint64(ssp)); err != nil {
		return err
	}
	return c.mu.RegWrite(uc.M68K_REG_PC, uint64(pc))
}

func (c *UnicornCPU) Run(quantum int) error {
	pc, err := c.mu.RegRead(uc.M68K_REG_PC)
	if err != nil {
		return err
	}
	return c.mu.StartWithOptions(pc, 0, &uc.UcOptions{Count: uint64(quantum)})
}

func (c *UnicornCPU) Stop() {
	c.mu.Stop()
}

func (c *UnicornCPU) ReadReg(r Reg) uint32 {
	ucReg, ok := regMap[r]
	if !ok {
		return 0
	}
	v, _ := c.mu.RegRead(ucReg)
	return uint32(v)
}

func (c *UnicornCPU) WriteReg(r Reg, v uint32) {
	ucReg, ok := regMap[r]
	if !ok {
		return
	}
	c.mu.RegWrite(ucReg, uint64(v))
}

func (c *UnicornCPU) SetTrapHook(hook TrapHook) {
	c.hook = hook
}

func (c *UnicornCPU) Close() error {
	return c.mu.Close()
}
