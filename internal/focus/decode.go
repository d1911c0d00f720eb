package focus

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrNoSamples is returned by DecodeSamples for empty input.
var ErrNoSamples = errors.New("focus: no samples")

// DecodeSamples accepts a single JSON sample object or an array of them.
func DecodeSamples(raw []byte) ([]Sample, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrNoSamples
	}
	if raw[0] == '[' {
		var out []Sample
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, ErrNoSamples
		}
		return out, nil
	}
	var s Sample
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return []Sample{s}, nil
}
