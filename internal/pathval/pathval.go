// Package pathval confines filesystem access to a configured set of
// allowed roots. The transfer engine refuses any path that resolves
// outside them.
package pathval

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BYTEDz/PCLink-sub000/internal/apperr"
)

type Validator struct {
	roots []string
}

func New(roots []string) (*Validator, error) {
	v := &Validator{}
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, apperr.Internal(err, "cannot resolve allowed root %s", r)
		}
		v.roots = append(v.roots, filepath.Clean(abs))
	}
	return v, nil
}

// ResolveDir validates that p is an existing directory under an allowed
// root and returns its absolute form.
func (v *Validator) ResolveDir(p string) (string, error) {
	abs, err := v.resolve(p)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", apperr.NotFound("directory not found: %s", p)
	}
	if !info.IsDir() {
		return "", apperr.Validation("not a directory: %s", p)
	}
	return abs, nil
}

// ResolveFile validates that p is an existing regular file under an
// allowed root and returns its absolute form.
func (v *Validator) ResolveFile(p string) (string, error) {
	abs, err := v.resolve(p)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", apperr.NotFound("file not found: %s", p)
	}
	if info.IsDir() || !info.Mode().IsRegular() {
		return "", apperr.Validation("not a regular file: %s", p)
	}
	return abs, nil
}

func (v *Validator) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", apperr.Validation("path is required")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", apperr.Validation("invalid path: %s", p)
	}
	abs = filepath.Clean(abs)
	for _, root := range v.roots {
		if abs == root || strings.HasPrefix(abs, root+string(os.PathSeparator)) {
			return abs, nil
		}
	}
	return "", apperr.Validation("path is outside allowed roots: %s", p)
}
