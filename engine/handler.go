package engine

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"edrwatch/logger"
	"edrwatch/scanner"
	"edrwatch/state"
	"edrwatch/tracing"
	"edrwatch/utils"
	"edrwatch/whitelist"
)

type EventKind = state.EventKind

const (
	Created  = state.Created
	Modified = state.Modified
)

const (
	DefaultThreshold     = 30
	DefaultBurstWindow   = 5 * time.Second
	DefaultBurstMinPrior = 2
	DefaultRecentWindow  = 24 * time.Hour
)

var (
	DefaultExecutableExtensions = []string{".exe", ".dll", ".bat", ".ps1"}
	DefaultSensitiveTerms       = []string{"password", "credit", "ssn"}
)

// Escalation describes a path judged suspicious.
type Escalation struct {
	Path        string
	Fingerprint string
	Score       int
	Trigger     string
	Reasons     []string
	DetectedAt  time.Time
}

// Escalator hands a suspicious path to an integrity check. Implementations
// must not block; the return value reports whether the request was accepted.
type Escalator interface {
	Escalate(Escalation) bool
}

type Config struct {
	Threshold            int
	BurstWindow          time.Duration
	BurstMinPrior        int
	RecentWindow         time.Duration
	ExecutableExtensions []string
	SensitiveTerms       []string
	PermissionModel      scanner.PermissionModel
}

func DefaultConfig() Config {
	return Config{
		Threshold:            DefaultThreshold,
		BurstWindow:          DefaultBurstWindow,
		BurstMinPrior:        DefaultBurstMinPrior,
		RecentWindow:         DefaultRecentWindow,
		ExecutableExtensions: DefaultExecutableExtensions,
		SensitiveTerms:       DefaultSensitiveTerms,
		PermissionModel:      scanner.DetectPermissionModel(),
	}
}

// Stores groups the per-path state the handler owns.
type Stores struct {
	Snapshots *state.SnapshotStore
	History   *state.HistoryWindow
	Ledger    *state.ScoreLedger
}

func NewStores(historySize int, ledgerOpts ...state.LedgerOption) Stores {
	return Stores{
		Snapshots: state.NewSnapshotStore(),
		History:   state.NewHistoryWindow(historySize),
		Ledger:    state.NewScoreLedger(ledgerOpts...),
	}
}

type Stats struct {
	Events     int64 `json:"events"`
	Exempt     int64 `json:"exempt"`
	Skipped    int64 `json:"skipped"`
	Suspicious int64 `json:"suspicious"`
	Escalated  int64 `json:"escalated"`
	Deleted    int64 `json:"deleted"`
}

// Handler correlates file events against stored state and scores them.
type Handler struct {
	cfg         Config
	filter      *whitelist.Filter
	stores      Stores
	fingerprint scanner.Fingerprinter
	escalator   Escalator
	sensitive   *utils.TermSet
	execExts    []string

	now          func() time.Time
	creationTime func(string) (time.Time, scanner.TimeSource, error)
	isExecutable func(string) (bool, error)

	events, exempt, skipped, suspicious, escalated, deleted atomic.Int64
}

func NewHandler(cfg Config, filter *whitelist.Filter, stores Stores, fp scanner.Fingerprinter, esc Escalator) *Handler {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = DefaultBurstWindow
	}
	if cfg.BurstMinPrior <= 0 {
		cfg.BurstMinPrior = DefaultBurstMinPrior
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultRecentWindow
	}
	if stores.Snapshots == nil || stores.History == nil || stores.Ledger == nil {
		defaults := NewStores(state.DefaultHistorySize)
		if stores.Snapshots == nil {
			stores.Snapshots = defaults.Snapshots
		}
		if stores.History == nil {
			stores.History = defaults.History
		}
		if stores.Ledger == nil {
			stores.Ledger = defaults.Ledger
		}
	}
	return &Handler{
		cfg:          cfg,
		filter:       filter,
		stores:       stores,
		fingerprint:  fp,
		escalator:    esc,
		sensitive:    utils.NewTermSet(cfg.SensitiveTerms),
		execExts:     normalizeExtensions(cfg.ExecutableExtensions),
		now:          time.Now,
		creationTime: scanner.CreationTime,
		isExecutable: scanner.IsExecutable,
	}
}

// HandleFileEvent processes a create or modify notification for path and
// reports whether the path was judged suspicious.
func (h *Handler) HandleFileEvent(ctx context.Context, path string, kind EventKind) bool {
	defer tracing.StartRegion(ctx, "handle_file_event")()
	path = utils.CanonicalPath(path)
	h.events.Add(1)

	if h.filter.Exempt(path) {
		h.exempt.Add(1)
		logger.Debugf("Whitelisted or common data file event: %s", path)
		return false
	}

	now := h.now()
	snap, err := scanner.Capture(path, h.cfg.PermissionModel, h.fingerprint, now)
	if err != nil {
		h.skipped.Add(1)
		if errors.Is(err, scanner.ErrNotRegular) || errors.Is(err, os.ErrNotExist) {
			logger.Debugf("Skipping %s: %v", path, err)
		} else {
			logger.Warnf("Error handling file event for %s: %v", path, err)
		}
		return false
	}

	logger.Infof("File %s: %s", kind, path)
	events := h.stores.History.Append(path, state.AccessEvent{Kind: kind, At: now})

	prev, existed := h.stores.Snapshots.Replace(path, snap)
	if !existed {
		h.firstSighting(path, snap, now)
	} else {
		h.diff(path, prev, snap)
	}

	trigger, ok := h.evaluate(path, events)
	if !ok {
		return false
	}
	h.suspicious.Add(1)
	score := h.stores.Ledger.Get(path)
	logger.Warnf("Suspicious behavior detected for %s (score %d, trigger %s)", path, score, trigger)
	tracing.Log(ctx, "suspicious", path)

	if h.escalator != nil {
		accepted := h.escalator.Escalate(Escalation{
			Path:        path,
			Fingerprint: snap.Fingerprint,
			Score:       score,
			Trigger:     trigger,
			Reasons:     h.stores.Ledger.Reasons(path),
			DetectedAt:  now,
		})
		if accepted {
			h.escalated.Add(1)
		}
	}
	return true
}

// HandleDeleteEvent purges every store entry for path.
func (h *Handler) HandleDeleteEvent(path string) {
	path = utils.CanonicalPath(path)
	h.deleted.Add(1)
	logger.Infof("File deleted: %s", path)
	h.stores.Snapshots.Remove(path)
	h.stores.History.Remove(path)
	h.stores.Ledger.Remove(path)
}

func (h *Handler) Score(path string) int {
	return h.stores.Ledger.Get(utils.CanonicalPath(path))
}

func (h *Handler) Stats() Stats {
	return Stats{
		Events:     h.events.Load(),
		Exempt:     h.exempt.Load(),
		Skipped:    h.skipped.Load(),
		Suspicious: h.suspicious.Load(),
		Escalated:  h.escalated.Load(),
		Deleted:    h.deleted.Load(),
	}
}

func (h *Handler) Tracked() int {
	return h.stores.Snapshots.Len()
}
