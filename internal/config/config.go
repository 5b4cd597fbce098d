// Package config loads the optional minixcompat configuration file.
// Every field is a default only: the corresponding MINIXCOMPAT_DIR or
// MINIXCOMPAT_PWD environment variable always wins when set (spec §4.4).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration shape.
type File struct {
	// Dir is the default MINIX root directory.
	Dir string `yaml:"dir"`
	// Pwd is the default guest working directory, used only when
	// MINIXCOMPAT_PWD is unset.
	Pwd string `yaml:"pwd"`
}

// Load reads and parses a YAML config file. A missing path is not an
// error: it returns a zero File so callers fall through to their own
// defaults.
func Load(path string) (File, error) {
	if path == "" {
		return File{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return File{}, nil
	}
	if err != nil {
		return File{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return f, nil
}

// Resolve applies environment-variable overrides on top of a loaded
// File, per spec §4.4's priority order (env wins). dir defaults to
// /opt/minix when neither the file nor the environment set it.
func Resolve(f File) (dir, pwd string) {
	dir = f.Dir
	if dir == "" {
		dir = "/opt/minix"
	}
	if v := os.Getenv("MINIXCOMPAT_DIR"); v != "" {
		dir = v
	}
	pwd = f.Pwd
	if v := os.Getenv("MINIXCOMPAT_PWD"); v != "" {
		pwd = v
	}
	return dir, pwd
}
