package escalation

import (
	"os"
	"time"

	"edrwatch/engine"
	"edrwatch/fuzzy"
	"edrwatch/hasher"
	"edrwatch/logger"
	"edrwatch/scanner"
)

var lookupAlgorithms = []string{"md5", "sha1", "sha256"}

type EnrichOptions struct {
	Enabled bool
	// MaxSize bounds the files that are re-read for digests. Zero means
	// no bound.
	MaxSize int64
	Fuzzy   string
}

// Alert is the record written for every escalation.
type Alert struct {
	Path        string            `json:"path"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	LookupHash  string            `json:"lookup_hash,omitempty"`
	Score       int               `json:"score"`
	Trigger     string            `json:"trigger"`
	Reasons     []string          `json:"reasons,omitempty"`
	Verdict     Verdict           `json:"verdict"`
	Checker     string            `json:"checker"`
	Cached      bool              `json:"cached"`
	Hashes      map[string]string `json:"hashes,omitempty"`
	FuzzyHash   string            `json:"fuzzy_hash,omitempty"`
	MimeType    string            `json:"mime_type,omitempty"`
	Size        int64             `json:"size,omitempty"`
	DetectedAt  time.Time         `json:"detected_at"`
	CheckedAt   time.Time         `json:"checked_at"`
	Error       string            `json:"error,omitempty"`
}

// Enrich builds the alert for e. The reputation lookup uses the SHA-256
// digest when one could be computed, else the snapshot fingerprint.
func Enrich(e engine.Escalation, opts EnrichOptions) Alert {
	alert := Alert{
		Path:        e.Path,
		Fingerprint: e.Fingerprint,
		LookupHash:  e.Fingerprint,
		Score:       e.Score,
		Trigger:     e.Trigger,
		Reasons:     e.Reasons,
		DetectedAt:  e.DetectedAt.UTC(),
	}
	if !opts.Enabled {
		return alert
	}

	info, err := os.Stat(e.Path)
	if err != nil {
		logger.Debugf("Cannot enrich %s: %v", e.Path, err)
		return alert
	}
	alert.Size = info.Size()

	if mime, err := scanner.DetectMIME(e.Path); err == nil {
		alert.MimeType = mime
	}
	if opts.MaxSize > 0 && info.Size() > opts.MaxSize {
		return alert
	}

	if hashes := hasher.ComputeHashesWithin(e.Path, lookupAlgorithms, opts.MaxSize); len(hashes) > 0 {
		alert.Hashes = hashes
	}
	if sha := alert.Hashes["sha256"]; sha != "" {
		alert.LookupHash = sha
	}
	if opts.Fuzzy != "" {
		if h, ok := fuzzy.Lookup(opts.Fuzzy); ok {
			if digest, err := h.HashFile(e.Path); err == nil {
				alert.FuzzyHash = digest
			} else {
				logger.Debugf("Fuzzy hash for %s unavailable: %v", e.Path, err)
			}
		}
	}
	return alert
}
