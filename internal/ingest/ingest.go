// Package ingest replays a completed session log into validated
// telemetry records and commits them in batches.
package ingest

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gridline-data/trackside/internal/monitoring"
	"github.com/gridline-data/trackside/internal/telemetry"
)

// DefaultBatchSize is the number of accumulated records per commit.
const DefaultBatchSize = 1000

// DefaultMaxLoggedErrors caps how many malformed lines are reported
// individually; the rest are only counted.
const DefaultMaxLoggedErrors = 5

// Committer persists one batch of records for a session. Each call is
// an independent unit of work: a failed batch must not undo previously
// committed ones.
type Committer interface {
	CommitBatch(ctx context.Context, sessionID string, samples []telemetry.Sample) error
}

// Metadata carries the session-level fields supplied by the caller.
// Empty or zero fields are treated as absent and inferred from the log
// where possible.
type Metadata struct {
	DriverName string  `json:"driver_name"`
	Car        string  `json:"car"`
	Track      string  `json:"track"`
	DurationS  float64 `json:"duration_s"`
}

// Summary is the result of one ingestion call. It is returned even when
// some lines were rejected; only structural failures abort the call.
type Summary struct {
	SessionID string   `json:"session_id"`
	Accepted  int      `json:"accepted"`
	Rejected  int      `json:"rejected"`
	Metadata  Metadata `json:"metadata"`
}

// Pipeline replays session logs. The zero value is not usable; use New.
type Pipeline struct {
	committer       Committer
	batchSize       int
	maxLoggedErrors int
}

// Option adjusts pipeline behaviour.
type Option func(*Pipeline)

// WithBatchSize overrides the commit batch size.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMaxLoggedErrors overrides how many malformed lines are logged.
func WithMaxLoggedErrors(n int) Option {
	return func(p *Pipeline) { p.maxLoggedErrors = n }
}

// New creates a pipeline committing through c.
func New(c Committer, opts ...Option) *Pipeline {
	p := &Pipeline{
		committer:       c,
		batchSize:       DefaultBatchSize,
		maxLoggedErrors: DefaultMaxLoggedErrors,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestFile replays the session log at path. See Ingest.
func (p *Pipeline) IngestFile(ctx context.Context, path, sessionID string, meta Metadata) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log %s: %w", path, err)
	}
	defer f.Close()
	summary, err := p.Ingest(ctx, f, sessionID, meta)
	if err != nil {
		return summary, fmt.Errorf("ingest %s: %w", path, err)
	}
	return summary, nil
}

// Ingest decompresses r, replays every line in file order, and commits
// accepted records in batches associated with the caller-supplied
// session id. Malformed lines are counted and skipped; only an invalid
// gzip container or a failed commit aborts the call. On a mid-run
// failure, batches committed before the failure stay committed.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, sessionID string, meta Metadata) (*Summary, error) {
	// The log is scanned twice (metadata heuristic, then the main pass),
	// so buffer the compressed bytes up front.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read session log: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip stream: %w", err)
	}
	gz.Close()

	summary := &Summary{
		SessionID: sessionID,
		Metadata:  p.inferMetadata(data, meta),
	}

	gz, err = gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip stream: %w", err)
	}
	defer gz.Close()

	sc := newLineScanner(gz)
	var batch []telemetry.Sample
	for sc.Scan() {
		sample, err := telemetry.Decode(sc.Bytes())
		if err != nil {
			summary.Rejected++
			if summary.Rejected <= p.maxLoggedErrors {
				monitoring.Logf("skipping malformed line %d: %v", summary.Accepted+summary.Rejected, err)
			}
			continue
		}
		sample.ApplyDefaults()
		summary.Accepted++

		batch = append(batch, sample)
		if len(batch) >= p.batchSize {
			if err := p.committer.CommitBatch(ctx, sessionID, batch); err != nil {
				return summary, fmt.Errorf("batch commit failed: %w", err)
			}
			batch = nil
		}
	}
	if err := sc.Err(); err != nil {
		return summary, fmt.Errorf("session log truncated or corrupt: %w", err)
	}

	if len(batch) > 0 {
		if err := p.committer.CommitBatch(ctx, sessionID, batch); err != nil {
			return summary, fmt.Errorf("final batch commit failed: %w", err)
		}
	}
	return summary, nil
}

// inferMetadata fills absent metadata fields from the first and last
// well-formed lines of the log. This is a cheap heuristic: intermediate
// lines are never examined.
func (p *Pipeline) inferMetadata(data []byte, meta Metadata) Metadata {
	needCar := meta.Car == ""
	needTrack := meta.Track == ""
	needDuration := meta.DurationS == 0
	if !needCar && !needTrack && !needDuration {
		return meta
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return meta
	}
	defer gz.Close()

	var first, last *telemetry.Sample
	sc := newLineScanner(gz)
	for sc.Scan() {
		sample, err := telemetry.Decode(sc.Bytes())
		if err != nil {
			continue
		}
		if first == nil {
			s := sample
			first = &s
		}
		s := sample
		last = &s
	}

	if first == nil || last == nil {
		return meta
	}
	if needCar {
		if first.Car != "" {
			meta.Car = first.Car
		} else if last.Car != "" {
			meta.Car = last.Car
		}
	}
	if needTrack {
		if first.Track != "" {
			meta.Track = first.Track
		} else if last.Track != "" {
			meta.Track = last.Track
		}
	}
	if needDuration && first.TS != 0 && last.TS != 0 {
		meta.DurationS = last.TS - first.TS
	}
	return meta
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return sc
}
