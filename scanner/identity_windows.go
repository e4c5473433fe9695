//go:build windows

package scanner

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// fileIdentity returns a device/inode style identifier for the file behind
// path, or "" when the platform does not expose one.
func fileIdentity(path string, info os.FileInfo) string {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return ""
	}
	handle, err := windows.CreateFile(
		name,
		0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(handle)

	var data windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(handle, &data); err != nil {
		return ""
	}
	high := uint64(data.FileIndexHigh)
	low := uint64(data.FileIndexLow)
	return fmt.Sprintf("vol=%d,file=%d", data.VolumeSerialNumber, high<<32|low)
}
