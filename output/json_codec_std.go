//go:build !jsonv2

package output

import "encoding/json"

// encodeLine marshals v as one NDJSON line, newline included.
func encodeLine(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
