package utils

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/spf13/afero"
)

type Fs struct {
	AppFs afero.Fs
}

func NewFs(appFs afero.Fs) Fs {
	return Fs{AppFs: appFs}
}

// WriteAtomic writes data to a temp file in the target directory and renames
// it over filePath, so a reader never observes a partially written file.
func (fs Fs) WriteAtomic(filePath string, data []byte) error {
	dir := filepath.Dir(filePath)
	if err := fs.AppFs.MkdirAll(dir, os.ModePerm); err != nil {
		return xerrors.Errorf("unable to create %s: %w", dir, err)
	}

	f, err := afero.TempFile(fs.AppFs, dir, filepath.Base(filePath)+".*")
	if err != nil {
		return xerrors.Errorf("unable to open a temp file: %w", err)
	}

	if _, err = f.Write(data); err != nil {
		f.Close()
		fs.AppFs.Remove(f.Name())
		return xerrors.Errorf("failed to write %s: %w", f.Name(), err)
	}
	if err = f.Close(); err != nil {
		fs.AppFs.Remove(f.Name())
		return xerrors.Errorf("close error: %w", err)
	}

	if err = fs.AppFs.Rename(f.Name(), filePath); err != nil {
		fs.AppFs.Remove(f.Name())
		return xerrors.Errorf("failed to replace %s: %w", filePath, err)
	}
	return nil
}
