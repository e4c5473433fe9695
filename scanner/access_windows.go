//go:build windows
// +build windows

package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

func isExecutable(path string) (bool, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false, nil
	}
	pathext := os.Getenv("PATHEXT")
	if pathext == "" {
		pathext = ".com;.exe;.bat;.cmd"
	}
	for _, candidate := range strings.Split(strings.ToLower(pathext), ";") {
		if candidate == ext {
			return true, nil
		}
	}
	return false, nil
}

func isReadOnly(path string, _ os.FileInfo) (bool, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false, err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false, err
	}
	return attrs&windows.FILE_ATTRIBUTE_READONLY != 0, nil
}
