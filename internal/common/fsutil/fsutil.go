// Package fsutil resolves user-supplied file and binary paths.
package fsutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading "~" or "~/" to the user's home directory.
// Other paths, including "~user", are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ResolveBinary turns bin into an executable path. Bare names are looked up
// in PATH; anything with a separator is home-expanded and must exist.
func ResolveBinary(bin string) (string, error) {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		return "", fmt.Errorf("backend binary is empty")
	}
	if !strings.ContainsRune(bin, os.PathSeparator) && !strings.HasPrefix(bin, "~") {
		p, err := exec.LookPath(bin)
		if err != nil {
			return "", fmt.Errorf("backend binary %q: %w", bin, err)
		}
		return p, nil
	}
	p, err := ExpandHome(bin)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("backend binary %q: %w", bin, err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("backend binary %q is a directory", bin)
	}
	return p, nil
}
