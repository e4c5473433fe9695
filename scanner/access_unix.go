//go:build !windows
// +build !windows

package scanner

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func isExecutable(path string) (bool, error) {
	return access(path, unix.X_OK)
}

func isReadOnly(path string, _ os.FileInfo) (bool, error) {
	writable, err := access(path, unix.W_OK)
	if err != nil {
		return false, err
	}
	return !writable, nil
}

func access(path string, mode uint32) (bool, error) {
	err := unix.Access(path, mode)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EROFS), errors.Is(err, unix.ETXTBSY):
		return false, nil
	default:
		return false, err
	}
}
