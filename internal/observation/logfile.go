package observation

import (
	"os"
	"path/filepath"

	"github.com/avlk/oppc-aux-sw/internal/errors"
)

// OpenFile opens path for appending notes, creating its directory when
// needed. The returned close function flushes the writer and closes the
// file.
func OpenFile(path, format string) (*Writer, func() error, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, errors.FileError(err, dir, 0).
				Component("observation").
				Build()
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, errors.FileError(err, path, 0).
			Component("observation").
			Build()
	}

	w, err := NewWriter(file, format)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}

	closeFn := func() error {
		flushErr := w.Flush()
		if err := file.Close(); err != nil {
			return errors.FileError(err, path, 0).
				Component("observation").
				Build()
		}
		return flushErr
	}
	return w, closeFn, nil
}
