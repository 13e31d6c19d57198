package fsutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrEscapesBase is returned when a relative path resolves outside its base directory.
var ErrEscapesBase = errors.New("path escapes base directory")

// SafeJoin ensures the resulting path stays strictly within base.
func SafeJoin(base, rel string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absTarget, err := filepath.Abs(filepath.Join(absBase, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", rel, ErrEscapesBase)
	}
	return absTarget, nil
}
