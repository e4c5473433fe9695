package engine

import (
	"path/filepath"
	"strings"
	"time"

	"edrwatch/logger"
	"edrwatch/scanner"
	"edrwatch/state"
)

const (
	ReasonExecutionPrep     = "execution preparation"
	ReasonSharingPrep       = "sharing preparation"
	ReasonRecentExecutable  = "recently downloaded executable"
	ReasonRecentSensitive   = "recently downloaded sensitive file"
	ReasonContentModified   = "content modified"
	ReasonPermissionChanged = "permissions changed"
	ReasonReadOnlyChanged   = "read-only changed"
	ReasonSizeChanged       = "size changed"
	ReasonRapidAccess       = "rapid access"

	TriggerScore = "score"
	TriggerBurst = "burst"
)

const (
	scoreExecutionPrep    = 5
	scoreSharingPrep      = 4
	scoreRecentExecutable = 6
	scoreRecentSensitive  = 5
	scoreContentModified  = 2
	scorePermissionPOSIX  = 3
	scoreReadOnlyChanged  = 2
	scoreSizeChanged      = 1
	scoreRapidAccess      = 5
)

func (h *Handler) bump(path, reason string, delta int) {
	score := h.stores.Ledger.Update(path, reason, delta)
	logger.Warnf("Potential %s: %s (+%d, score %d)", reason, path, delta, score)
}

// firstSighting scores a path's current attributes when there is no prior
// snapshot to diff against.
func (h *Handler) firstSighting(path string, snap scanner.FileSnapshot, now time.Time) {
	if h.filter.Exempt(path) {
		return
	}

	perms := snap.Permissions
	switch h.cfg.PermissionModel {
	case scanner.PermissionPOSIX:
		if perms.AnyExecute() {
			h.bump(path, ReasonExecutionPrep, scoreExecutionPrep)
		}
		if perms.OthersReadWrite() {
			h.bump(path, ReasonSharingPrep, scoreSharingPrep)
		}
	default:
		executable, err := h.isExecutable(path)
		if err != nil {
			logger.Warnf("Cannot determine executability of %s: %v", path, err)
		} else if executable {
			h.bump(path, ReasonExecutionPrep, scoreExecutionPrep)
		}
		if !perms.Known {
			logger.Warnf("Cannot determine read-only state of %s", path)
		} else if !perms.ReadOnly {
			h.bump(path, ReasonSharingPrep, scoreSharingPrep)
		}
	}

	if !h.recentlyCreated(path, now) {
		return
	}
	name := strings.ToLower(filepath.Base(path))
	if h.hasExecutableExtension(name) {
		h.bump(path, ReasonRecentExecutable, scoreRecentExecutable)
	} else if h.sensitive.ContainsAny(name) {
		h.bump(path, ReasonRecentSensitive, scoreRecentSensitive)
	}
}

// diff scores the transition between two consecutive snapshots. Every rule
// is evaluated independently.
func (h *Handler) diff(path string, prev, cur scanner.FileSnapshot) {
	if prev.Identity != "" && cur.Identity != "" && prev.Identity != cur.Identity {
		logger.Infof("File replaced: %s (%s -> %s)", path, prev.Identity, cur.Identity)
	}
	if prev.Fingerprint != cur.Fingerprint {
		logger.Infof("File content changed: %s (new fingerprint %q)", path, cur.Fingerprint)
		h.bump(path, ReasonContentModified, scoreContentModified)
	}
	if prev.Permissions.Known && cur.Permissions.Known && !prev.Permissions.Equal(cur.Permissions) {
		if h.cfg.PermissionModel == scanner.PermissionPOSIX {
			logger.Infof("Permissions changed: %s (%s -> %s)", path, prev.Permissions, cur.Permissions)
			h.bump(path, ReasonPermissionChanged, scorePermissionPOSIX)
		} else {
			logger.Infof("Read-only status changed: %s (%s -> %s)", path, prev.Permissions, cur.Permissions)
			h.bump(path, ReasonReadOnlyChanged, scoreReadOnlyChanged)
		}
	}
	if prev.Size != cur.Size {
		logger.Infof("File size changed: %s (old %d, new %d)", path, prev.Size, cur.Size)
		h.bump(path, ReasonSizeChanged, scoreSizeChanged)
	}
}

// evaluate applies the score threshold, then the burst rule. A burst adds
// the rapid access increment before reporting.
func (h *Handler) evaluate(path string, events []state.AccessEvent) (string, bool) {
	if h.stores.Ledger.Get(path) > h.cfg.Threshold {
		return TriggerScore, true
	}
	if burstCount(events, h.cfg.BurstWindow) >= h.cfg.BurstMinPrior {
		logger.Warnf("Rapid file access detected: %s", path)
		h.stores.Ledger.Update(path, ReasonRapidAccess, scoreRapidAccess)
		return TriggerBurst, true
	}
	return "", false
}

// burstCount walks backwards from the event preceding the newest one and
// counts events within window of the newest, stopping at the first gap.
func burstCount(events []state.AccessEvent, window time.Duration) int {
	if len(events) < 2 {
		return 0
	}
	last := events[len(events)-1].At
	count := 0
	for i := len(events) - 2; i >= 0; i-- {
		if last.Sub(events[i].At) > window {
			break
		}
		count++
	}
	return count
}

func (h *Handler) recentlyCreated(path string, now time.Time) bool {
	created, source, err := h.creationTime(path)
	if err != nil {
		logger.Warnf("Error checking creation time of %s: %v", path, err)
		return false
	}
	if source != scanner.TimeSourceBirth {
		logger.Debugf("No birth time for %s, using %s time", path, source)
	}
	return now.Sub(created) < h.cfg.RecentWindow
}

func (h *Handler) hasExecutableExtension(name string) bool {
	for _, ext := range h.execExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
