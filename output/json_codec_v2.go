//go:build jsonv2

package output

import (
	"encoding/json/jsontext"
	jsonv2 "encoding/json/v2"
)

// encodeLine marshals v as one NDJSON line, newline included. Invalid UTF-8
// in paths is replaced rather than rejected.
func encodeLine(v any) ([]byte, error) {
	b, err := jsonv2.Marshal(v, jsontext.AllowInvalidUTF8(true))
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
