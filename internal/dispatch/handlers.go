package dispatch

import (
	"github.com/ksherlock/MINIXCompat/internal/core"
	"github.com/ksherlock/MINIXCompat/internal/errno"
	"github.com/ksherlock/MINIXCompat/internal/fsbridge"
	"github.com/ksherlock/MINIXCompat/internal/loader"
	"github.com/ksherlock/MINIXCompat/internal/message"
)

// HandlerFunc performs one syscall's bridge work and fills msg with the
// reply fields for its shape. It returns the tri-state result and the
// ancillary D0 value (spec §4.6: individual syscall error/success
// information travels in the reply message's type field, not in D0;
// D0 carries ancillary results such as signal's old handler).
type HandlerFunc func(env *core.Environment, msg *message.Message) (Result, uint32)

var table [NumCalls]HandlerFunc

func init() {
	table[CallExit] = handleExit
	table[CallFork] = handleFork
	table[CallRead] = handleRead
	table[CallWrite] = handleWrite
	table[CallOpen] = handleOpen
	table[CallClose] = handleClose
	table[CallWait] = handleWait
	table[CallCreat] = handleCreat
	table[CallUnlink] = handleUnlink
	table[CallTime] = handleTime
	table[CallBrk] = handleBrk
	table[CallStat] = handleStat
	table[CallLseek] = handleLseek
	table[CallGetpid] = handleGetpid
	table[CallGetuid] = handleGetuid
	table[CallFstat] = handleFstat
	table[CallAccess] = handleAccess
	table[CallKill] = handleKill
	table[CallGetgid] = handleGetgid
	table[CallSignal] = handleSignal
	table[CallExece] = handleExece
}

// readGuestString reads a NUL-terminated string out of guest RAM at
// addr, bounded by maxLen bytes.
func readGuestString(env *core.Environment, addr uint32, maxLen int) string {
	buf := make([]byte, 0, 64)
	for i := 0; i < maxLen; i++ {
		b := env.RAM.Read8(addr + uint32(i))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

func handleExit(env *core.Environment, msg *message.Message) (Result, uint32) {
	env.ExitCode = int(msg.M1I1())
	env.State.Transition(core.Finished)
	return SuccessEmpty, 0
}

func handleFork(env *core.Environment, msg *message.Message) (Result, uint32) {
	rc := env.Proc.Fork()
	msg.Clear()
	msg.SetType(int16(rc))
	return Success, 0
}

func handleRead(env *core.Environment, msg *message.Message) (Result, uint32) {
	fd := int(msg.M1I1())
	nbytes := int(msg.M1I2())
	bufAddr := msg.M1P1()
	hostBuf := make([]byte, nbytes)
	n := env.FS.Read(fd, hostBuf)
	if n >= 0 {
		env.RAM.BlockFromHost(bufAddr, hostBuf[:n])
	}
	msg.Clear()
	msg.SetType(int16(n))
	return Success, 0
}

func handleWrite(env *core.Environment, msg *message.Message) (Result, uint32) {
	fd := int(msg.M1I1())
	nbytes := int(msg.M1I2())
	bufAddr := msg.M1P1()
	hostBuf := env.RAM.BlockToHost(bufAddr, uint32(nbytes))
	n := env.FS.Write(fd, hostBuf)
	msg.Clear()
	msg.SetType(int16(n))
	return Success, 0
}

// handleOpen uses mess3: I1=flags, I2=mode, P1=guest pointer to the
// NUL-terminated pathname. Bridge.Open always returns a nil error, with
// any failure already folded into a negative-errno fd.
func handleOpen(env *core.Environment, msg *message.Message) (Result, uint32) {
	flags := int(msg.M3I1())
	mode := uint32(msg.M3I2())
	path := readGuestString(env, msg.M3P1(), 1024)
	fd, _ := env.FS.Open(path, flags, mode)
	msg.Clear()
	msg.SetType(int16(fd))
	return Success, 0
}

// handleCreat is open() with O_CREAT|O_WRONLY|O_TRUNC implied.
func handleCreat(env *core.Environment, msg *message.Message) (Result, uint32) {
	path := readGuestString(env, msg.M3P1(), 1024)
	mode := uint32(msg.M3I1())
	fd, _ := env.FS.Open(path, fsbridge.OCreat|fsbridge.OTrunc|fsbridge.OWrOnly, mode)
	msg.Clear()
	msg.SetType(int16(fd))
	return Success, 0
}

func handleClose(env *core.Environment, msg *message.Message) (Result, uint32) {
	fd := int(msg.M1I1())
	rc := env.FS.Close(fd)
	msg.Clear()
	msg.SetType(int16(rc))
	return Success, 0
}

func handleWait(env *core.Environment, msg *message.Message) (Result, uint32) {
	gpid, status, rc := env.Proc.Wait()
	msg.Clear()
	if rc < 0 {
		msg.SetType(int16(rc))
		return Success, 0
	}
	msg.SetType(int16(gpid))
	msg.SetM1I2(int16(status))
	return Success, 0
}

func handleUnlink(env *core.Environment, msg *message.Message) (Result, uint32) {
	path := readGuestString(env, msg.M3P1(), 1024)
	rc := env.FS.Unlink(path)
	msg.Clear()
	msg.SetType(int16(rc))
	return Success, 0
}

func handleTime(env *core.Environment, msg *message.Message) (Result, uint32) {
	// Accurate timing is a non-goal (spec §1): report a fixed epoch.
	msg.Clear()
	msg.SetM2L1(0)
	return Success, 0
}

func handleBrk(env *core.Environment, msg *message.Message) (Result, uint32) {
	requested := msg.M1P1()
	newBreak, ok := env.Brk(requested)
	msg.Clear()
	if !ok {
		msg.SetType(int16(-errno.ENOMEM))
		msg.SetM1P1(0xFFFFFFFF)
		return Success, 0
	}
	msg.SetM1P1(newBreak)
	return Success, 0
}

func handleStat(env *core.Environment, msg *message.Message) (Result, uint32) {
	path := readGuestString(env, msg.M1P1(), 1024)
	st, rc := env.FS.Stat(path)
	msg.Clear()
	if rc < 0 {
		msg.SetType(int16(rc))
		return Success, 0
	}
	writeStatToRAM(env, msg.M1P2(), st)
	msg.SetType(0)
	return Success, 0
}

func handleFstat(env *core.Environment, msg *message.Message) (Result, uint32) {
	fd := int(msg.M1I1())
	st, rc := env.FS.Fstat(fd)
	msg.Clear()
	if rc < 0 {
		msg.SetType(int16(rc))
		return Success, 0
	}
	writeStatToRAM(env, msg.M1P2(), st)
	msg.SetType(0)
	return Success, 0
}

// writeStatToRAM serializes a GuestStat into guest RAM at addr, already
// swapped to guest (big-endian) order via the big-endian RAM accessors.
func writeStatToRAM(env *core.Environment, addr uint32, st fsbridge.GuestStat) {
	env.RAM.Write16(addr+0, st.Dev)
	env.RAM.Write16(addr+2, st.Inode)
	env.RAM.Write16(addr+4, st.Mode)
	env.RAM.Write8(addr+6, st.Nlink)
	env.RAM.Write8(addr+7, st.Uid)
	env.RAM.Write8(addr+8, st.Gid)
	env.RAM.Write16(addr+9, st.Rdev)
	env.RAM.Write32(addr+11, uint32(st.Size))
	env.RAM.Write32(addr+15, uint32(st.Atime))
	env.RAM.Write32(addr+19, uint32(st.Mtime))
	env.RAM.Write32(addr+23, uint32(st.Ctime))
}

// handleLseek's resulting offset is a 32-bit long and does not fit in
// the reply's 16-bit type field, so it stays a genuine out-param in
// m2_l1; the type field carries 0 on success and the negative errno on
// failure, same as stat/fstat.
func handleLseek(env *core.Environment, msg *message.Message) (Result, uint32) {
	fd := int(msg.M2I1())
	offset := int64(msg.M2L1())
	whence := int(msg.M2I2())
	off := env.FS.Seek(fd, offset, whence)
	msg.Clear()
	msg.SetM2L1(int32(off))
	if off < 0 {
		msg.SetType(int16(off))
		return Success, 0
	}
	msg.SetType(0)
	return Success, 0
}

// handleGetpid's primary result is the caller's own pid; the parent pid
// is an ancillary out-param carried in m1_i2.
func handleGetpid(env *core.Environment, msg *message.Message) (Result, uint32) {
	pid, ppid := env.Proc.GetIDs()
	msg.Clear()
	msg.SetType(pid)
	msg.SetM1I2(ppid)
	return Success, 0
}

func handleGetuid(env *core.Environment, msg *message.Message) (Result, uint32) {
	msg.Clear()
	msg.SetType(0) // root-equivalent single guest user
	return Success, 0
}

func handleGetgid(env *core.Environment, msg *message.Message) (Result, uint32) {
	msg.Clear()
	msg.SetType(0)
	return Success, 0
}

func handleAccess(env *core.Environment, msg *message.Message) (Result, uint32) {
	path := readGuestString(env, msg.M3P1(), 1024)
	mode := uint32(msg.M3I1())
	rc := env.FS.Access(path, mode)
	msg.Clear()
	msg.SetType(int16(rc))
	return Success, 0
}

func handleKill(env *core.Environment, msg *message.Message) (Result, uint32) {
	pid := msg.M1I1()
	sig := int(msg.M1I2())
	rc := env.Proc.Kill(pid, sig)
	msg.Clear()
	msg.SetType(int16(rc))
	return Success, 0
}

func handleSignal(env *core.Environment, msg *message.Message) (Result, uint32) {
	sig := int(msg.M6I1())
	handler := msg.M6F1()
	old, rc := env.Proc.Signal(sig, handler)
	msg.Clear()
	if rc < 0 {
		msg.SetType(int16(rc))
		return Success, 0
	}
	msg.SetType(0)
	msg.SetM6F1(old)
	// Per spec §4.6, D0 carries the ancillary "old handler" result for
	// signal, while the reply's type field carries success/error.
	return Success, old
}

// handleExece uses mess1: P1=pathname pointer, I2=stack snapshot length
// in bytes, P2=guest pointer to the already-assembled argc/argv/envp
// snapshot (spec §4.5's "from guest" exec entry point). On success the
// executable image and execution state have already changed underneath
// this very call, so there is no meaningful reply payload to fill in;
// on failure the old image is left untouched and the reply carries the
// guest errno as usual.
func handleExece(env *core.Environment, msg *message.Message) (Result, uint32) {
	path := readGuestString(env, msg.M1P1(), 1024)
	snapLen := int(msg.M1I2())
	snapshot := env.RAM.BlockToHost(msg.M1P2(), uint32(snapLen))
	hostPath := env.FS.HostPathFor(path)

	err := loader.ExecFromGuest(env, hostPath, snapshot)
	msg.Clear()
	if err != nil {
		msg.SetType(int16(-errno.ERROR))
		return Success, 0
	}
	return SuccessEmpty, 0
}
