package dispatch

import (
	"github.com/ksherlock/MINIXCompat/internal/core"
	"github.com/ksherlock/MINIXCompat/internal/cpu"
	"github.com/ksherlock/MINIXCompat/internal/message"
)

// Trap function codes (D0 low word), spec §4.6.
const (
	FuncSend          = 1
	FuncReceive       = 2
	FuncSendReceive   = 3
)

// Well-known task IDs (D1 low word), spec §4.6.
const (
	TaskMM = 0
	TaskFS = 1
)

// Dispatch looks up msg's call number (its Type field) in the fixed
// table and invokes the handler, or returns Failure for any
// unimplemented or out-of-range call number.
func Dispatch(env *core.Environment, msg *message.Message) (Result, uint32) {
	callNo := int(msg.Type())
	if callNo < 0 || callNo >= NumCalls || table[callNo] == nil {
		return Failure, 0
	}
	return table[callNo](env, msg)
}

// HandleTrap implements the cpu.TrapHook signature: it decodes the
// D0/D1/A0 trap ABI (spec §6), copies the message out of guest RAM,
// dispatches it, and copies the reply back if the caller requested
// send-and-receive. It always reports the trap as handled for vector
// 0 — the only vector this CPU interface is ever asked about.
func HandleTrap(env *core.Environment) cpu.TrapHook {
	return func(c cpu.CPU) bool {
		d0 := c.ReadReg(cpu.D0)
		d1 := c.ReadReg(cpu.D1)
		a0 := c.ReadReg(cpu.A0)

		fn := int16(uint16(d0))
		dest := int16(uint16(d1))

		if fn == FuncReceive {
			// receive is unimplemented per spec §4.6.
			c.WriteReg(cpu.D0, Failure.D0Value(0))
			return true
		}
		if fn != FuncSend && fn != FuncSendReceive {
			c.WriteReg(cpu.D0, Failure.D0Value(0))
			return true
		}
		if dest != TaskMM && dest != TaskFS && dest >= 0 {
			c.WriteReg(cpu.D0, Failure.D0Value(0))
			return true
		}

		raw := env.RAM.BlockToHost(a0, uint32(message.Size))
		msg := message.FromRAM(raw)

		result, ancillary := Dispatch(env, msg)

		if fn == FuncSendReceive {
			env.RAM.BlockFromHost(a0, msg.ToRAM())
		}

		c.WriteReg(cpu.D0, result.D0Value(ancillary))
		return true
	}
}
