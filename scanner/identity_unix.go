//go:build !windows

package scanner

import (
	"fmt"
	"os"
	"syscall"
)

// fileIdentity returns a device/inode style identifier for the file behind
// path, or "" when the platform does not expose one.
func fileIdentity(path string, info os.FileInfo) string {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return ""
	}
	return fmt.Sprintf("dev=%d,ino=%d", st.Dev, st.Ino)
}
