package scanner

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// PermissionModel selects how permissions are represented for every
// snapshot in the process. It is chosen once at startup.
type PermissionModel int

const (
	PermissionPOSIX PermissionModel = iota
	PermissionReadOnly
)

func (m PermissionModel) String() string {
	switch m {
	case PermissionPOSIX:
		return "posix"
	case PermissionReadOnly:
		return "readonly"
	default:
		return fmt.Sprintf("PermissionModel(%d)", int(m))
	}
}

// ParsePermissionModel accepts "auto", "posix" or "readonly". Auto probes
// the platform.
func ParsePermissionModel(value string) (PermissionModel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return DetectPermissionModel(), nil
	case "posix":
		return PermissionPOSIX, nil
	case "readonly", "read-only":
		return PermissionReadOnly, nil
	default:
		return PermissionPOSIX, fmt.Errorf("unknown permission model %q", value)
	}
}

func DetectPermissionModel() PermissionModel {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		return PermissionReadOnly
	}
	return PermissionPOSIX
}

// PermissionProfile is the permission state of one file under a model.
// Known is false when the state could not be determined.
type PermissionProfile struct {
	Model    PermissionModel
	Mode     os.FileMode
	ReadOnly bool
	Known    bool
}

// Equal compares profiles in their model's representation only.
func (p PermissionProfile) Equal(other PermissionProfile) bool {
	if p.Model != other.Model || p.Known != other.Known {
		return false
	}
	if p.Model == PermissionPOSIX {
		return p.Mode.Perm() == other.Mode.Perm()
	}
	return p.ReadOnly == other.ReadOnly
}

func (p PermissionProfile) String() string {
	if !p.Known {
		return "unknown"
	}
	if p.Model == PermissionPOSIX {
		return p.Mode.Perm().String()
	}
	if p.ReadOnly {
		return "read-only"
	}
	return "writable"
}

// AnyExecute reports an owner, group or other execute bit.
func (p PermissionProfile) AnyExecute() bool {
	return p.Known && p.Model == PermissionPOSIX && p.Mode.Perm()&0o111 != 0
}

// OthersReadWrite reports world read or world write.
func (p PermissionProfile) OthersReadWrite() bool {
	return p.Known && p.Model == PermissionPOSIX && p.Mode.Perm()&0o006 != 0
}

func permissionProfile(path string, info os.FileInfo, model PermissionModel) PermissionProfile {
	profile := PermissionProfile{Model: model}
	switch model {
	case PermissionPOSIX:
		profile.Mode = info.Mode().Perm()
		profile.Known = true
	default:
		readOnly, err := isReadOnly(path, info)
		if err == nil {
			profile.ReadOnly = readOnly
			profile.Known = true
		}
	}
	return profile
}

// IsExecutable reports whether the current user may execute path.
func IsExecutable(path string) (bool, error) {
	return isExecutable(path)
}
