package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Encode writes r as zstd-compressed JSON.
func Encode(w io.Writer, r Report) error {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if err := json.NewEncoder(encoder).Encode(r); err != nil {
		encoder.Close()
		return fmt.Errorf("encode report: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}
	return nil
}

// EncodeBytes returns the compressed report.
func EncodeBytes(r Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a report written by Encode.
func Decode(src io.Reader) (Report, error) {
	decoder, err := zstd.NewReader(src)
	if err != nil {
		return Report{}, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	var r Report
	if err := json.NewDecoder(decoder).Decode(&r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
