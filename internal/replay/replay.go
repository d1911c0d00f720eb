// Package replay feeds recorded gaze logs through a focus monitor offline.
//
// A log is JSON lines, each line one sample or an array of samples. The monitor
// clock follows the sample timestamps, so total time runs from the first sample
// to the last.
package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/aura-interview/attention/internal/focus"
)

const maxLine = 1 << 20

// Options configures the replayed monitor.
type Options struct {
	Width       float64
	Height      float64
	MarginRatio float64
	Policy      focus.ResetPolicy
	HistorySize int
}

// Result is the outcome of a replay.
type Result struct {
	Bounds      focus.Bounds  `json:"bounds"`
	Samples     int           `json:"samples"`
	Transitions int           `json:"transitions"`
	Summary     focus.Summary `json:"summary"`
}

// Open opens a log file, decompressing .zst files transparently.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdFile{Decoder: dec, f: f}, nil
}

type zstdFile struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// Run replays every sample in r.
func Run(r io.Reader, opts Options) (Result, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return Result{}, fmt.Errorf("viewport must be positive, got %vx%v", opts.Width, opts.Height)
	}
	var clock int64
	mopts := []focus.Option{focus.WithClock(func() int64 { return clock })}
	if opts.Policy != "" {
		mopts = append(mopts, focus.WithResetPolicy(opts.Policy))
	}
	if opts.MarginRatio > 0 {
		mopts = append(mopts, focus.WithMarginRatio(opts.MarginRatio))
	}
	if opts.HistorySize > 0 {
		mopts = append(mopts, focus.WithHistorySize(opts.HistorySize))
	}
	m := focus.NewMonitor(mopts...)
	res := Result{Bounds: m.Configure(opts.Width, opts.Height)}
	m.MarkCalibrated()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		samples, err := focus.DecodeSamples([]byte(raw))
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		for _, s := range samples {
			if s.Timestamp > clock || res.Samples == 0 {
				clock = s.Timestamp
			}
			if res.Samples == 0 {
				m.Start()
			}
			t, err := m.Ingest(s)
			if err != nil {
				return res, fmt.Errorf("line %d: %w", line, err)
			}
			res.Samples++
			if t.Changed {
				res.Transitions++
			}
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read log: %w", err)
	}
	res.Summary = m.Stop()
	return res, nil
}
