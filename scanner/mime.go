package scanner

import (
	"io"
	"os"

	"github.com/h2non/filetype"
)

// DetectMIME sniffs the file header. Unrecognized content is "unknown".
func DetectMIME(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	buf := make([]byte, 261)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	if n == 0 {
		return "unknown", nil
	}

	kind, err := filetype.Match(buf[:n])
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown || kind.MIME.Value == "" {
		return "unknown", nil
	}
	return kind.MIME.Value, nil
}
