// Package fsbridge implements the filesystem bridge: guest-path rooting,
// the 20-slot file-descriptor table, and translation of guest
// open/read/write/seek/stat/unlink/access calls into real host POSIX
// operations.
package fsbridge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ksherlock/MINIXCompat/internal/errno"
)

// NumFDs is the fixed size of the guest file-descriptor table.
const NumFDs = 20

// DirEntrySize is the on-wire size of one guest directory entry.
const DirEntrySize = 16

// Guest open flag bits (MINIX octal bitmask).
const (
	OCreat    = 0o100
	OExcl     = 0o200
	ONoctty   = 0o400
	OTrunc    = 0o1000
	OAppend   = 0o2000
	ONonblock = 0o4000
	OAccMode  = 0o3 // low two bits: access mode
)

// Guest access-mode values (low two bits of the open flags).
const (
	ORdOnly = 0
	OWrOnly = 1
	ORdWr   = 2
)

// Whence values for Seek.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// DirEntry is one guest-format directory entry: a 16-bit inode followed
// by a 14-byte NUL-padded name.
type DirEntry struct {
	Inode uint16
	Name  [14]byte
}

// slot holds the state for one FD-table entry.
type slot struct {
	hostFD   int
	isDir    bool
	entries  []DirEntry
	cursor   int64 // byte offset within a directory's serialized entries
}

func emptySlot() slot {
	return slot{hostFD: -1}
}

// Bridge owns the filesystem-related guest state: the root directory,
// the guest working directory, and the FD table.
type Bridge struct {
	root     string // host-absolute MINIX root, e.g. /opt/minix
	guestPwd string // guest-absolute working directory, e.g. /usr/bin
	hostPwd  string // materialized host-absolute equivalent of guestPwd

	fds [NumFDs]slot
}

// New constructs a Bridge rooted at root, with the initial guest working
// directory resolved per spec §4.4: MINIXCOMPAT_PWD if set, else the
// host cwd if it lies under root (prefix stripped), else "/".
func New(root, pwdOverride string) (*Bridge, error) {
	b := &Bridge{root: root}
	for i := range b.fds {
		b.fds[i] = emptySlot()
	}
	// Wire stdin/stdout/stderr.
	b.fds[0] = slot{hostFD: int(os.Stdin.Fd())}
	b.fds[1] = slot{hostFD: int(os.Stdout.Fd())}
	b.fds[2] = slot{hostFD: int(os.Stderr.Fd())}

	if pwdOverride != "" {
		b.guestPwd = pwdOverride
	} else if hostCwd, err := os.Getwd(); err == nil && pathContains(root, hostCwd) {
		rel := strings.TrimPrefix(hostCwd, root)
		if rel == "" {
			rel = "/"
		}
		b.guestPwd = rel
	} else {
		b.guestPwd = "/"
	}
	b.hostPwd = b.HostPathFor(b.guestPwd)
	return b, nil
}

// pathContains reports whether hostPath lies inside root, re-derived
// from the stated intent ("is the host cwd inside the MINIX root?")
// rather than a byte-length comparison (see spec §9's open question on
// MINIXCompat_PathContains).
func pathContains(root, hostPath string) bool {
	root = filepath.Clean(root)
	hostPath = filepath.Clean(hostPath)
	if root == hostPath {
		return true
	}
	return strings.HasPrefix(hostPath, root+string(filepath.Separator))
}

// HostPathFor translates a guest path to its host-absolute equivalent
// per spec §4.4: absolute guest paths are rooted under MINIX_ROOT;
// relative paths are joined against the current host working directory.
func (b *Bridge) HostPathFor(guestPath string) string {
	if strings.HasPrefix(guestPath, "/") {
		return b.root + guestPath
	}
	return b.hostPwd + "/" + guestPath
}

func (b *Bridge) freeSlot() (int, error) {
	for i := 0; i < NumFDs; i++ {
		if b.fds[i].hostFD == -1 {
			return i, nil
		}
	}
	return -1, fmt.Errorf("fsbridge: no free FD slot")
}

func validFD(fd int) bool {
	return fd >= 0 && fd < NumFDs
}

func translateOpenFlags(guestFlags int) int {
	host := 0
	switch guestFlags & OAccMode {
	case OWrOnly:
		host |= os.O_WRONLY
	case ORdWr:
		host |= os.O_RDWR
	default:
		host |= os.O_RDONLY
	}
	if guestFlags&OCreat != 0 {
		host |= os.O_CREATE
	}
	if guestFlags&OExcl != 0 {
		host |= os.O_EXCL
	}
	if guestFlags&OTrunc != 0 {
		host |= os.O_TRUNC
	}
	if guestFlags&OAppend != 0 {
		host |= os.O_APPEND
	}
	if guestFlags&ONonblock != 0 {
		host |= os.O_SYNC // closest available signal; MINIX non-block semantics are not replicated (ioctl/driver non-goal)
	}
	return host
}

// translateMode maps MINIX octal permission bits directly onto host
// permission bits — both use the standard nine rwxrwxrwx bits plus
// setuid/setgid/sticky in the same positions, so no reordering is
// required, only masking to the bits open/access actually care about.
func translateMode(guestMode uint32) os.FileMode {
	return os.FileMode(guestMode & 0o7777)
}

// Open implements the guest open() call.
func (b *Bridge) Open(guestPath string, guestFlags int, guestMode uint32) (int, error) {
	fd, err := b.freeSlot()
	if err != nil {
		return -errno.EMFILE, nil
	}
	hostPath := b.HostPathFor(guestPath)
	hostFlags := translateOpenFlags(guestFlags)
	hostMode := translateMode(guestMode)

	f, err := os.OpenFile(hostPath, hostFlags, hostMode)
	if err != nil {
		return -errno.FromHost(unwrapErrno(err)), nil
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return -errno.FromHost(unwrapErrno(err)), nil
	}

	// An *os.File closes its descriptor when it is garbage-collected, so
	// the slot owns a duplicate and f itself is closed here.
	hostFD, err := unix.Dup(int(f.Fd()))
	f.Close()
	if err != nil {
		return -errno.FromHost(err), nil
	}

	b.fds[fd] = slot{hostFD: hostFD}
	if info.IsDir() {
		entries, derr := precacheDir(hostPath)
		if derr != nil {
			unix.Close(hostFD)
			b.fds[fd] = emptySlot()
			return -errno.FromHost(unwrapErrno(derr)), nil
		}
		b.fds[fd].isDir = true
		b.fds[fd].entries = entries
	}
	return fd, nil
}

// Close implements the guest close() call.
func (b *Bridge) Close(fd int) int {
	if !validFD(fd) || b.fds[fd].hostFD == -1 {
		return -errno.EBADF
	}
	hostFD := b.fds[fd].hostFD
	err := unix.Close(hostFD)
	b.fds[fd] = emptySlot()
	if err != nil {
		return -errno.FromHost(err)
	}
	return 0
}

// Read implements the guest read() call, serving either a regular file
// or the pre-cached directory entry array.
func (b *Bridge) Read(fd int, buf []byte) int {
	if !validFD(fd) || b.fds[fd].hostFD == -1 {
		return -errno.EBADF
	}
	s := &b.fds[fd]
	if s.isDir {
		return readDir(s, buf)
	}
	n, err := unix.Read(s.hostFD, buf)
	if err != nil {
		return -errno.FromHost(err)
	}
	return n
}

func readDir(s *slot, buf []byte) int {
	total := int64(len(s.entries)) * DirEntrySize
	if s.cursor >= total {
		return 0
	}
	raw := serializeEntries(s.entries)
	n := copy(buf, raw[s.cursor:])
	if n != len(buf) {
		return -errno.EIO
	}
	s.cursor += int64(n)
	return n
}

func serializeEntries(entries []DirEntry) []byte {
	out := make([]byte, len(entries)*DirEntrySize)
	for i, e := range entries {
		off := i * DirEntrySize
		out[off] = byte(e.Inode >> 8)
		out[off+1] = byte(e.Inode)
		copy(out[off+2:off+16], e.Name[:])
	}
	return out
}

// Write implements the guest write() call. Writing to a directory slot
// is an invariant violation (spec §4.4) and panics rather than
// returning a guest-visible error.
func (b *Bridge) Write(fd int, buf []byte) int {
	if !validFD(fd) || b.fds[fd].hostFD == -1 {
		return -errno.EBADF
	}
	s := &b.fds[fd]
	if s.isDir {
		panic(fmt.Errorf("fsbridge: write to directory fd %d", fd))
	}
	n, err := unix.Write(s.hostFD, buf)
	if err != nil {
		return -errno.FromHost(err)
	}
	return n
}

// Seek implements the guest lseek() call.
func (b *Bridge) Seek(fd int, offset int64, whence int) int64 {
	if !validFD(fd) || b.fds[fd].hostFD == -1 {
		return -errno.EBADF
	}
	s := &b.fds[fd]
	if s.isDir {
		max := int64(len(s.entries))*DirEntrySize - 1
		var newOff int64
		switch whence {
		case SeekSet:
			newOff = offset
		case SeekCur:
			newOff = s.cursor + offset
		case SeekEnd:
			newOff = max + offset
		default:
			return -errno.EINVAL
		}
		if newOff < 0 || newOff > max {
			return -errno.EINVAL
		}
		s.cursor = newOff
		return newOff
	}
	off, err := unix.Seek(s.hostFD, offset, whence)
	if err != nil {
		return -errno.FromHost(err)
	}
	return off
}

// GuestStat is the guest-layout stat record (host order; byte-swapping
// to guest wire order is the caller's responsibility — the dispatcher's
// writeStatToRAM stores each field through the big-endian RAM accessors,
// mirroring spec §4.4's "finally byte-swap the whole stat record to
// guest order" step).
type GuestStat struct {
	Dev   uint16
	Inode uint16
	Mode  uint16
	Nlink uint8
	Uid   uint8
	Gid   uint8
	Rdev  uint16
	Size  int32
	Atime int32
	Mtime int32
	Ctime int32
}

// MINIX file-type mask and bits (S_IFMT / S_IFREG / etc.), same
// positions as traditional Unix stat.
const (
	sIFMT  = 0o170000
	sIFIFO = 0o010000
	sIFCHR = 0o020000
	sIFDIR = 0o040000
	sIFBLK = 0o060000
	sIFREG = 0o100000
)

func translateStat(st *unix.Stat_t) GuestStat {
	mode := translateModeFromHost(uint32(st.Mode))
	inode := truncateInode(uint64(st.Ino))
	size := st.Size
	if size > 0x7FFFFFFF {
		size = 0x7FFFFFFF
	}
	return GuestStat{
		Dev:   uint16(st.Dev),
		Inode: inode,
		Mode:  mode,
		Nlink: uint8(st.Nlink),
		Uid:   uint8(st.Uid),
		Gid:   uint8(st.Gid),
		Rdev:  uint16(st.Rdev),
		Size:  int32(size),
		Atime: int32(st.Atim.Sec),
		Mtime: int32(st.Mtim.Sec),
		Ctime: int32(st.Ctim.Sec),
	}
}

// truncateInode truncates a host inode to 16 bits; if that would
// produce 0 from a non-zero host inode, the upper 16-bit halves are
// folded in by addition until the result is non-zero (spec §4.4).
func truncateInode(hostIno uint64) uint16 {
	lo := uint16(hostIno)
	if lo != 0 || hostIno == 0 {
		return lo
	}
	acc := hostIno
	for {
		acc >>= 16
		if acc == 0 {
			return 0
		}
		lo = uint16(uint32(lo) + uint32(uint16(acc)))
		if lo != 0 {
			return lo
		}
	}
}

// translateModeFromHost preserves file-type bits (tested with exact-mask
// equality, per spec §9's open question on mode translation), the
// setuid/setgid/sticky bits, and the nine permission bits.
func translateModeFromHost(hostMode uint32) uint16 {
	var typeBits uint32
	switch hostMode & unix.S_IFMT {
	case unix.S_IFREG:
		typeBits = sIFREG
	case unix.S_IFDIR:
		typeBits = sIFDIR
	case unix.S_IFBLK:
		typeBits = sIFBLK
	case unix.S_IFCHR:
		typeBits = sIFCHR
	case unix.S_IFIFO:
		typeBits = sIFIFO
	}
	permAndSpecial := hostMode & 0o7777
	return uint16(typeBits | permAndSpecial)
}

// Stat implements the guest stat() call.
func (b *Bridge) Stat(guestPath string) (GuestStat, int) {
	var st unix.Stat_t
	if err := unix.Stat(b.HostPathFor(guestPath), &st); err != nil {
		return GuestStat{}, -errno.FromHost(err)
	}
	return translateStat(&st), 0
}

// Fstat implements the guest fstat() call.
func (b *Bridge) Fstat(fd int) (GuestStat, int) {
	if !validFD(fd) || b.fds[fd].hostFD == -1 {
		return GuestStat{}, -errno.EBADF
	}
	var st unix.Stat_t
	if err := unix.Fstat(b.fds[fd].hostFD, &st); err != nil {
		return GuestStat{}, -errno.FromHost(err)
	}
	return translateStat(&st), 0
}

// Unlink implements the guest unlink() call.
func (b *Bridge) Unlink(guestPath string) int {
	if err := unix.Unlink(b.HostPathFor(guestPath)); err != nil {
		return -errno.FromHost(err)
	}
	return 0
}

// Access implements the guest access() call.
func (b *Bridge) Access(guestPath string, mode uint32) int {
	if err := unix.Access(b.HostPathFor(guestPath), uint32(translateMode(mode))); err != nil {
		return -errno.FromHost(err)
	}
	return 0
}

// precacheDir materializes a directory's entries into the guest format,
// growing the cache in 32-entry blocks as described in spec §4.4.
func precacheDir(hostPath string) ([]DirEntry, error) {
	f, err := os.Open(hostPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []DirEntry
	for {
		names, err := f.Readdirnames(32)
		for _, name := range names {
			var st unix.Stat_t
			full := filepath.Join(hostPath, name)
			if serr := unix.Lstat(full, &st); serr != nil {
				continue
			}
			e := DirEntry{Inode: truncateInode(uint64(st.Ino))}
			copy(e.Name[:], name)
			entries = append(entries, e)
		}
		if err == io.EOF || len(names) == 0 {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// unwrapErrno extracts a plain unix.Errno from a wrapped *os.PathError
// or *os.SyscallError so errno.FromHost can classify it.
func unwrapErrno(err error) error {
	type causer interface{ Unwrap() error }
	for {
		if e, ok := err.(unix.Errno); ok {
			return e
		}
		c, ok := err.(causer)
		if !ok {
			return err
		}
		err = c.Unwrap()
	}
}
