package scanner

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNotRegular is returned by Capture for directories and special files.
var ErrNotRegular = errors.New("not a regular file")

// Fingerprinter computes a content digest, returning "" when none is
// available.
type Fingerprinter interface {
	Hash(path string) string
}

// FileSnapshot is the last observed state of one path.
type FileSnapshot struct {
	Path        string
	Fingerprint string
	Identity    string
	Size        int64
	ModTime     time.Time
	Permissions PermissionProfile
	ObservedAt  time.Time
}

// Capture stats and fingerprints path. Symlinks are followed.
func Capture(path string, model PermissionModel, fp Fingerprinter, now time.Time) (FileSnapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileSnapshot{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return FileSnapshot{}, ErrNotRegular
	}
	snap := FileSnapshot{
		Path:        path,
		Identity:    fileIdentity(path, info),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Permissions: permissionProfile(path, info, model),
		ObservedAt:  now,
	}
	if fp != nil {
		snap.Fingerprint = fp.Hash(path)
	}
	return snap, nil
}
