// Package escalation hands suspicious paths to a reputation check on a
// bounded set of background workers and records the outcome as alerts.
package escalation

import (
	"context"
	"encoding/json"
	"errors"
)

// Verdict is the outcome of a reputation lookup.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictClean
	VerdictMalicious
)

func (v Verdict) String() string {
	switch v {
	case VerdictClean:
		return "clean"
	case VerdictMalicious:
		return "malicious"
	default:
		return "unknown"
	}
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

var (
	ErrRateLimited = errors.New("reputation lookup rate limited")
	ErrQueueFull   = errors.New("escalation queue full")
)

// Checker looks up a content fingerprint. Errors are treated by callers as
// an unknown verdict.
type Checker interface {
	Name() string
	Check(ctx context.Context, fingerprint string) (Verdict, error)
}

// NopChecker answers unknown for everything. It is used when no reputation
// service is configured so alerts are still recorded.
type NopChecker struct{}

func (NopChecker) Name() string { return "none" }

func (NopChecker) Check(context.Context, string) (Verdict, error) {
	return VerdictUnknown, nil
}
