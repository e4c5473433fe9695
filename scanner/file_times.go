package scanner

import (
	"time"

	"github.com/djherbis/times"
)

// TimeSource names which timestamp stood in for the creation time.
type TimeSource string

const (
	TimeSourceBirth  TimeSource = "birth"
	TimeSourceModify TimeSource = "modify"
)

// CreationTime returns the file's birth time when the filesystem records
// one, otherwise the modification time. The inode change time is never
// used: chmod bumps it, which would make an old file look new.
func CreationTime(path string) (time.Time, TimeSource, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return time.Time{}, "", err
	}
	created, source := creationTime(ts)
	return created, source, nil
}

func creationTime(ts times.Timespec) (time.Time, TimeSource) {
	if ts.HasBirthTime() {
		return ts.BirthTime(), TimeSourceBirth
	}
	return ts.ModTime(), TimeSourceModify
}
