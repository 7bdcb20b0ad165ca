// Package atomicfile implements the write-temp-then-rename contract
// from spec.md §4.B: every persisted file either fully replaces its
// contents or is left untouched.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write replaces path's contents with data, or leaves the previous
// contents intact on any error. Directory creation is the caller's
// responsibility.
func Write(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("atomicfile: create temp in %s: %w", dir, err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, writeErr := f.Write(data); writeErr != nil {
		_ = f.Close()
		return fmt.Errorf("atomicfile: write temp %s: %w", tmp, writeErr)
	}
	if syncErr := f.Sync(); syncErr != nil {
		_ = f.Close()
		return fmt.Errorf("atomicfile: sync temp %s: %w", tmp, syncErr)
	}
	if closeErr := f.Close(); closeErr != nil {
		return fmt.Errorf("atomicfile: close temp %s: %w", tmp, closeErr)
	}

	if renameErr := os.Rename(tmp, path); renameErr != nil {
		err = fmt.Errorf("atomicfile: rename %s to %s: %w", tmp, path, renameErr)
		return err
	}

	return nil
}

// AppendLine appends a single line (with trailing newline) to path
// using the OS's atomic short-write guarantee for append-only logs
// (spec.md §5: "the underlying append primitive is atomic for short
// writes"). Used by the toxic log, outcome log, and processed log for
// their interleaved-append tolerance.
func AppendLine(path string, line string, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return fmt.Errorf("atomicfile: open %s for append: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("atomicfile: append to %s: %w", path, err)
	}
	return nil
}
