package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingPathReturnsZeroValue(t *testing.T) {
	f, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f != (File{}) {
		t.Errorf("f = %+v, want zero value", f)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("dir: /opt/minix\npwd: /usr/bin\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Dir != "/opt/minix" || f.Pwd != "/usr/bin" {
		t.Errorf("f = %+v, want Dir=/opt/minix Pwd=/usr/bin", f)
	}
}

func TestResolveEnvOverridesFile(t *testing.T) {
	t.Setenv("MINIXCOMPAT_DIR", "/env/root")
	t.Setenv("MINIXCOMPAT_PWD", "/env/pwd")

	dir, pwd := Resolve(File{Dir: "/file/root", Pwd: "/file/pwd"})
	if dir != "/env/root" || pwd != "/env/pwd" {
		t.Errorf("dir=%s pwd=%s, want env values", dir, pwd)
	}
}

func TestResolveDefaultsDir(t *testing.T) {
	t.Setenv("MINIXCOMPAT_DIR", "")
	t.Setenv("MINIXCOMPAT_PWD", "")

	dir, _ := Resolve(File{})
	if dir != "/opt/minix" {
		t.Errorf("dir = %s, want /opt/minix", dir)
	}
}
