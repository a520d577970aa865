package filesystem

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteFileAtomic writes data to a temporary file alongside path and
// renames it into place, so a reader never observes a partially-written
// file. The maintenance package uses this for the CSV file table
// --write_file_table emits.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode) error {
	dirname, basename := filepath.Split(path)
	temporary, err := ioutil.TempFile(dirname, basename)
	if err != nil {
		return errors.Wrap(err, "unable to create temporary file")
	}

	if _, err = temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to write data to temporary file")
	}

	if err = temporary.Close(); err != nil {
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to close temporary file")
	}

	if err = os.Chmod(temporary.Name(), permissions); err != nil {
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to change file permissions")
	}

	if err = os.Rename(temporary.Name(), path); err != nil {
		if isCrossDeviceError(err) {
			err = copyAndRemove(temporary.Name(), path)
		}
		if err != nil {
			os.Remove(temporary.Name())
			return errors.Wrap(err, "unable to rename file")
		}
	}

	return nil
}

// copyAndRemove is the fallback for WriteFileAtomic when the temporary
// file and the destination live on different devices, where os.Rename
// can't be used.
func copyAndRemove(temporary, path string) error {
	in, err := os.Open(temporary)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(temporary)
}
