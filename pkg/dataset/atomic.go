package dataset

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// replaceFile runs write against a temp file in the target directory and renames it
// over path, so readers only ever observe the old or the new content.
func replaceFile(path string, write func(tmpPath string) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*-"+filepath.Base(path))
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := write(tmpPath); err != nil {
		return err
	}
	if fi, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpPath, fi.Mode().Perm())
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "replace dataset file")
	}
	return nil
}
