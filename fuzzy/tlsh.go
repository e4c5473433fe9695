package fuzzy

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/glaslos/tlsh"
)

const (
	tlshMinInput = 50
	tlshMaxInput = 32 * 1024 * 1024
)

// ErrInputTooSmall is returned for files below the TLSH minimum length.
var ErrInputTooSmall = errors.New("file too small for tlsh")

// TLSHHasher digests at most the first 32 MiB of a file.
type TLSHHasher struct{}

func (h TLSHHasher) Name() string {
	return "tlsh"
}

func (h TLSHHasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() < tlshMinInput {
		return "", ErrInputTooSmall
	}

	reader := bufio.NewReader(io.LimitReader(f, tlshMaxInput))
	hash, err := tlsh.HashReader(reader)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

func init() {
	Register(TLSHHasher{})
}
