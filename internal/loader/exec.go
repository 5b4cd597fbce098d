package loader

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/ksherlock/MINIXCompat/internal/core"
)

// LoadAndPlace loads the executable at hostPath, copies its image into
// guest RAM at the executable base, and sets the environment's heap
// break to the end of bss, where the heap begins (spec §3's
// address-space layout, §4.5's load step).
func LoadAndPlace(env *core.Environment, hostPath string) error {
	f, err := os.Open(hostPath)
	if err != nil {
		return fmt.Errorf("loader: opening %s: %w", hostPath, err)
	}
	defer f.Close()

	img, err := Load(f, core.ExecBase)
	if err != nil {
		return err
	}
	env.RAM.BlockFromHost(core.ExecBase, img.Bytes)
	env.Break = core.ExecBase + clicks(img.Header.Text)*ClickSize + img.Header.Data + img.Header.Bss
	return nil
}

// ExecFromHost implements exec's "from host startup" entry point (spec
// §4.5): it loads the named executable at the executable base and
// assembles a fresh argc/argv/envp stack snapshot from host-supplied
// argv and environment, exporting only host environment variables
// prefixed MINIX_ (prefix stripped).
func ExecFromHost(env *core.Environment, hostPath string, argv, hostEnv []string) error {
	if err := LoadAndPlace(env, hostPath); err != nil {
		return err
	}
	var envp []string
	for _, kv := range hostEnv {
		if rest, ok := strings.CutPrefix(kv, "MINIX_"); ok {
			envp = append(envp, rest)
		}
	}
	writeStackSnapshot(env, argv, envp)
	return nil
}

// ExecFromGuest implements exec's "from guest" entry point (spec §4.5):
// the guest has already assembled a stack snapshot whose argv/envp
// pointer-table entries are offsets from zero into the trailing string
// area; snapshot is that raw byte range, copied out of guest RAM by the
// caller. ExecFromGuest loads the new image at the executable base,
// rebases every non-NULL pointer-table entry by adding the stack base,
// and writes the adjusted snapshot into guest RAM at the stack base. On
// any load error no state changes and the error is returned; otherwise
// the environment transitions to Ready for the run loop to pick up.
func ExecFromGuest(env *core.Environment, hostPath string, snapshot []byte) error {
	rebased, err := rebaseSnapshot(snapshot, core.StackBase)
	if err != nil {
		return err
	}
	if err := LoadAndPlace(env, hostPath); err != nil {
		return err
	}
	env.RAM.BlockFromHost(core.StackBase, rebased)
	env.State.Transition(core.Ready)
	return nil
}

// rebaseSnapshot walks a guest-assembled argc/argv-NULL/envp-NULL
// pointer table and adds base to every non-zero entry, per spec §4.5.
func rebaseSnapshot(snapshot []byte, base uint32) ([]byte, error) {
	if len(snapshot) < 4 {
		return nil, fmt.Errorf("%w: exec stack snapshot too short", ErrNotExecutable)
	}
	out := make([]byte, len(snapshot))
	copy(out, snapshot)

	argc := binary.BigEndian.Uint32(out[0:4])
	pos := 4
	rebaseTable := func() error {
		for {
			if pos+4 > len(out) {
				return fmt.Errorf("%w: exec stack snapshot truncated", ErrNotExecutable)
			}
			v := binary.BigEndian.Uint32(out[pos : pos+4])
			if v != 0 {
				binary.BigEndian.PutUint32(out[pos:pos+4], base+v)
			}
			pos += 4
			if v == 0 {
				return nil
			}
		}
	}
	for i := uint32(0); i < argc; i++ {
		if pos+4 > len(out) {
			return nil, fmt.Errorf("%w: exec stack snapshot truncated", ErrNotExecutable)
		}
		v := binary.BigEndian.Uint32(out[pos : pos+4])
		if v != 0 {
			binary.BigEndian.PutUint32(out[pos:pos+4], base+v)
		}
		pos += 4
	}
	if pos+4 > len(out) {
		return nil, fmt.Errorf("%w: exec stack snapshot truncated", ErrNotExecutable)
	}
	pos += 4 // argv NULL terminator, left as-is
	if err := rebaseTable(); err != nil {
		return nil, err
	}
	return out, nil
}

// writeStackSnapshot lays out argc, the argv pointer table, a NULL, the
// envp pointer table, another NULL, then the string data itself (each
// string NUL-terminated and 4-byte aligned), starting at the stack base
// (spec §4.5's stack layout rules).
func writeStackSnapshot(env *core.Environment, argv, envp []string) {
	pointerTableSize := uint32(4 + 4*(len(argv)+1) + 4*(len(envp)+1))

	var strArea []byte
	offsets := make([]uint32, 0, len(argv)+len(envp))
	appendString := func(s string) {
		offsets = append(offsets, uint32(len(strArea)))
		strArea = append(strArea, []byte(s)...)
		strArea = append(strArea, 0)
		for len(strArea)%4 != 0 {
			strArea = append(strArea, 0)
		}
	}
	for _, s := range argv {
		appendString(s)
	}
	for _, s := range envp {
		appendString(s)
	}

	buf := make([]byte, pointerTableSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(argv)))

	pos := 4
	idx := 0
	for range argv {
		binary.BigEndian.PutUint32(buf[pos:pos+4], core.StackBase+pointerTableSize+offsets[idx])
		pos += 4
		idx++
	}
	pos += 4 // argv NULL terminator
	for range envp {
		binary.BigEndian.PutUint32(buf[pos:pos+4], core.StackBase+pointerTableSize+offsets[idx])
		pos += 4
		idx++
	}
	// envp NULL terminator occupies the final word of buf, already zero.

	env.RAM.BlockFromHost(core.StackBase, buf)
	env.RAM.BlockFromHost(core.StackBase+pointerTableSize, strArea)
}
