// Package errno translates between host errno values and the guest's
// MINIX 1.5 errno numbering. It holds no byte-order helpers; the message
// codec and guest RAM do their own big-endian conversion.
package errno

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Guest errno values, as defined by MINIX 1.5's <errno.h>.
const (
	EPERM   = 1
	ENOENT  = 2
	ESRCH   = 3
	EINTR   = 4
	EIO     = 5
	ENXIO   = 6
	E2BIG   = 7
	ENOEXEC = 8
	EBADF   = 9
	ECHILD  = 10
	EAGAIN  = 11
	ENOMEM  = 12
	EACCES  = 13
	EFAULT  = 14
	ENOTBLK = 15
	EBUSY   = 16
	EEXIST  = 17
	EXDEV   = 18
	ENODEV  = 19
	ENOTDIR = 20
	EISDIR  = 21
	EINVAL  = 22
	ENFILE  = 23
	EMFILE  = 24
	ENOTTY  = 25
	ETXTBSY = 26
	EFBIG   = 27
	ENOSPC  = 28
	ESPIPE  = 29
	EROFS   = 30
	EMLINK  = 31
	EPIPE   = 32
	EDOM    = 33
	ERANGE  = 34
	EDEADLK = 35
	ENAMETOOLONG = 36
	ENOLCK       = 37
	ENOSYS       = 38

	// ERROR is the catch-all used when no specific mapping exists.
	ERROR = 99
)

// hostToGuest maps host errno values (from golang.org/x/sys/unix) to the
// guest table above. Every entry here must have an inverse in
// guestToHost for the round-trip property in spec §8 to hold.
var hostToGuest = map[int]int{
	int(unix.EPERM):        EPERM,
	int(unix.ENOENT):       ENOENT,
	int(unix.ESRCH):        ESRCH,
	int(unix.EINTR):        EINTR,
	int(unix.EIO):          EIO,
	int(unix.ENXIO):        ENXIO,
	int(unix.E2BIG):        E2BIG,
	int(unix.ENOEXEC):      ENOEXEC,
	int(unix.EBADF):        EBADF,
	int(unix.ECHILD):       ECHILD,
	int(unix.EAGAIN):       EAGAIN,
	int(unix.ENOMEM):       ENOMEM,
	int(unix.EACCES):       EACCES,
	int(unix.EFAULT):       EFAULT,
	int(unix.ENOTBLK):      ENOTBLK,
	int(unix.EBUSY):        EBUSY,
	int(unix.EEXIST):       EEXIST,
	int(unix.EXDEV):        EXDEV,
	int(unix.ENODEV):       ENODEV,
	int(unix.ENOTDIR):      ENOTDIR,
	int(unix.EISDIR):       EISDIR,
	int(unix.EINVAL):       EINVAL,
	int(unix.ENFILE):       ENFILE,
	int(unix.EMFILE):       EMFILE,
	int(unix.ENOTTY):       ENOTTY,
	int(unix.ETXTBSY):      ETXTBSY,
	int(unix.EFBIG):        EFBIG,
	int(unix.ENOSPC):       ENOSPC,
	int(unix.ESPIPE):       ESPIPE,
	int(unix.EROFS):        EROFS,
	int(unix.EMLINK):       EMLINK,
	int(unix.EPIPE):        EPIPE,
	int(unix.EDOM):         EDOM,
	int(unix.ERANGE):       ERANGE,
	int(unix.EDEADLK):      EDEADLK,
	int(unix.ENAMETOOLONG): ENAMETOOLONG,
	int(unix.ENOLCK):       ENOLCK,
	int(unix.ENOSYS):       ENOSYS,
}

var guestToHost map[int]int

func init() {
	guestToHost = make(map[int]int, len(hostToGuest))
	for h, g := range hostToGuest {
		guestToHost[g] = h
	}
}

// FromHost maps a host error to a guest errno. Non-errno errors and
// unmapped errno values both produce ERROR.
func FromHost(err error) int {
	if err == nil {
		return 0
	}
	var e unix.Errno
	if errnoErr, ok := err.(unix.Errno); ok {
		e = errnoErr
	} else {
		return ERROR
	}
	if g, ok := hostToGuest[int(e)]; ok {
		return g
	}
	return ERROR
}

// ToHost maps a guest errno back to its host equivalent. Returns false
// if there is no mapping (e.g. the catch-all ERROR value).
func ToHost(guest int) (unix.Errno, bool) {
	h, ok := guestToHost[guest]
	if !ok {
		return 0, false
	}
	return unix.Errno(h), true
}

// GuestError wraps a mapped guest errno so callers can distinguish an
// expected guest-visible failure from a structural or invariant error.
type GuestError struct {
	Errno int
	Op    string
}

func (e *GuestError) Error() string {
	return fmt.Sprintf("%s: guest errno %d", e.Op, e.Errno)
}

// FromHostOp wraps a host error into a *GuestError for bridge operation
// op, using FromHost for the translation.
func FromHostOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &GuestError{Errno: FromHost(err), Op: op}
}
