package loader

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ksherlock/MINIXCompat/internal/core"
	"github.com/ksherlock/MINIXCompat/internal/cpu"
	"github.com/ksherlock/MINIXCompat/internal/fsbridge"
	"github.com/ksherlock/MINIXCompat/internal/procbridge"
	"github.com/ksherlock/MINIXCompat/internal/ram"
)

func newTestEnv(t *testing.T) *core.Environment {
	t.Helper()
	r := ram.New()
	c := cpu.NewFake(r)
	fs, err := fsbridge.New(t.TempDir(), "/")
	if err != nil {
		t.Fatal(err)
	}
	proc := procbridge.New(4321)
	return core.New(r, c, fs, proc)
}

func writeTestExecutable(t *testing.T, path string) {
	t.Helper()
	hdr := buildHeader(MagicSeparate, 0x20, 0, 0x20, 0, 0, 0x20, 0)
	data := make([]byte, 0x20)
	binary.BigEndian.PutUint32(data[0:4], 0x11223344)
	buf := append(append([]byte{}, hdr...), data...)
	if err := os.WriteFile(path, buf, 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAndPlaceAdvancesBreak(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "prog")
	writeTestExecutable(t, path)

	if err := LoadAndPlace(env, path); err != nil {
		t.Fatalf("LoadAndPlace: %v", err)
	}
	if env.Break != core.ExecBase+0x20 {
		t.Errorf("Break = 0x%x, want 0x%x", env.Break, core.ExecBase+0x20)
	}
	got := env.RAM.BlockToHost(core.ExecBase, 4)
	want := []byte{0x11, 0x22, 0x33, 0x44}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("placed image = % x, want % x", got, want)
		}
	}
}

func TestExecFromHostBuildsStack(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "prog")
	writeTestExecutable(t, path)

	err := ExecFromHost(env, path, []string{"prog", "-x"}, []string{"MINIX_FOO=bar", "OTHER=ignored"})
	if err != nil {
		t.Fatalf("ExecFromHost: %v", err)
	}

	raw := env.RAM.BlockToHost(core.StackBase, 4)
	if argc := binary.BigEndian.Uint32(raw); argc != 2 {
		t.Errorf("argc = %d, want 2", argc)
	}

	argv0Ptr := binary.BigEndian.Uint32(env.RAM.BlockToHost(core.StackBase+4, 4))
	s := readCString(env, argv0Ptr)
	if s != "prog" {
		t.Errorf("argv[0] = %q, want %q", s, "prog")
	}

	// argv table: 1 (argc) + 2 argv + NULL = 4 words; envp follows.
	envpOffset := core.StackBase + 4*uint32(1+2+1)
	envp0Ptr := binary.BigEndian.Uint32(env.RAM.BlockToHost(envpOffset, 4))
	s = readCString(env, envp0Ptr)
	if s != "FOO=bar" {
		t.Errorf("envp[0] = %q, want %q (MINIX_ prefix stripped)", s, "FOO=bar")
	}
}

func TestExecFromGuestRebasesPointersAndTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.State = core.Running
	path := filepath.Join(t.TempDir(), "prog")
	writeTestExecutable(t, path)

	// argc=1, argv[0] offset=16 (relative), NULL, envp NULL, then "hi\0\0".
	snapshot := make([]byte, 20)
	binary.BigEndian.PutUint32(snapshot[0:4], 1)
	binary.BigEndian.PutUint32(snapshot[4:8], 16) // points past the 4-word table into string area
	binary.BigEndian.PutUint32(snapshot[8:12], 0) // argv NULL
	binary.BigEndian.PutUint32(snapshot[12:16], 0) // envp NULL
	copy(snapshot[16:], "hi\x00\x00")

	if err := ExecFromGuest(env, path, snapshot); err != nil {
		t.Fatalf("ExecFromGuest: %v", err)
	}
	if env.State != core.Ready {
		t.Errorf("state = %v, want Ready", env.State)
	}

	rebased := env.RAM.BlockToHost(core.StackBase+4, 4)
	got := binary.BigEndian.Uint32(rebased)
	if got != core.StackBase+16 {
		t.Errorf("rebased argv[0] = 0x%x, want 0x%x", got, core.StackBase+16)
	}
}

func readCString(env *core.Environment, addr uint32) string {
	var buf []byte
	for i := uint32(0); i < 256; i++ {
		b := env.RAM.Read8(addr + i)
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}
