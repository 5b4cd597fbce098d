package fsbridge

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestBridge(t *testing.T) (*Bridge, string) {
	t.Helper()
	root := t.TempDir()
	b, err := New(root, "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, root
}

// Scenario 3: open + read.
func TestOpenAndRead(t *testing.T) {
	b, root := newTestBridge(t)
	if err := os.WriteFile(filepath.Join(root, "motd"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fd := mustOpen(t, b, "/motd", ORdOnly, 0)
	if fd < 0 {
		t.Fatalf("Open failed with guest errno %d", -fd)
	}
	buf := make([]byte, 6)
	n := b.Read(fd, buf)
	if n != 6 {
		t.Fatalf("Read = %d, want 6", n)
	}
	if string(buf) != "hello\n" {
		t.Errorf("buf = %q, want %q", buf, "hello\n")
	}
}

func mustOpen(t *testing.T, b *Bridge, path string, flags int, mode uint32) int {
	t.Helper()
	fd, err := b.Open(path, flags, mode)
	if err != nil {
		t.Fatalf("Open errored: %v", err)
	}
	return fd
}

func TestOpenMissingFile(t *testing.T) {
	b, _ := newTestBridge(t)
	fd := mustOpen(t, b, "/does-not-exist", ORdOnly, 0)
	if fd >= 0 {
		t.Fatalf("expected negative errno, got fd %d", fd)
	}
}

func TestCloseFreesSlot(t *testing.T) {
	b, root := newTestBridge(t)
	os.WriteFile(filepath.Join(root, "f"), []byte("x"), 0o644)
	fd := mustOpen(t, b, "/f", ORdOnly, 0)
	if rc := b.Close(fd); rc != 0 {
		t.Fatalf("Close = %d, want 0", rc)
	}
	if rc := b.Close(fd); rc != -9 { // EBADF
		t.Errorf("double close = %d, want -EBADF", rc)
	}
}

func TestWriteThenReadBack(t *testing.T) {
	b, root := newTestBridge(t)
	os.WriteFile(filepath.Join(root, "w"), nil, 0o644)
	fd := mustOpen(t, b, "/w", OWrOnly, 0)
	n := b.Write(fd, []byte("abc"))
	if n != 3 {
		t.Fatalf("Write = %d, want 3", n)
	}
	b.Close(fd)

	got, _ := os.ReadFile(filepath.Join(root, "w"))
	if string(got) != "abc" {
		t.Errorf("file content = %q, want abc", got)
	}
}

func TestHostPathForAbsoluteAndRelative(t *testing.T) {
	b, root := newTestBridge(t)
	if got := b.HostPathFor("/etc/motd"); got != root+"/etc/motd" {
		t.Errorf("HostPathFor(absolute) = %q, want %q", got, root+"/etc/motd")
	}
	b.hostPwd = root + "/usr"
	if got := b.HostPathFor("bin"); got != root+"/usr/bin" {
		t.Errorf("HostPathFor(relative) = %q, want %q", got, root+"/usr/bin")
	}
}

func TestDirectoryPrecacheAndRead(t *testing.T) {
	b, root := newTestBridge(t)
	if err := os.Mkdir(filepath.Join(root, "d"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(root, "d", "a"), []byte("1"), 0o644)
	os.WriteFile(filepath.Join(root, "d", "b"), []byte("2"), 0o644)

	fd := mustOpen(t, b, "/d", ORdOnly, 0)
	if fd < 0 {
		t.Fatalf("Open dir failed: errno %d", -fd)
	}
	buf := make([]byte, DirEntrySize)
	n := b.Read(fd, buf)
	if n != DirEntrySize {
		t.Fatalf("Read = %d, want %d", n, DirEntrySize)
	}
}
