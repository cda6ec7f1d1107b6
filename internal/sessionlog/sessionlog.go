// Package sessionlog persists telemetry records as an append-only,
// gzip-compressed, newline-delimited JSON stream.
package sessionlog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileExtension is the conventional extension for session log files.
const FileExtension = ".jsonl.gz"

// Writer appends records to a compressed line-delimited log. Every
// write is flushed to the file so a crash loses at most the record in
// flight: durability is prioritised over write throughput. The log is
// forward-only; there is no rewrite or delete.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	gz     *gzip.Writer
	lines  uint64
	closed bool
}

// Create opens a new session log at path, truncating any existing file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create session log: %w", err)
	}
	return &Writer{f: f, gz: gzip.NewWriter(f)}, nil
}

// Write serialises one record as a single JSON line and flushes it. A
// record that cannot be marshalled is written as one JSON string of its
// whole textual form, so the writer never rejects a record outright.
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("session log is closed")
	}

	data, err := json.Marshal(v)
	if err != nil {
		data, err = json.Marshal(fmt.Sprint(v))
		if err != nil {
			return fmt.Errorf("failed to serialise record: %w", err)
		}
	}

	if _, err := w.gz.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.gz.Flush(); err != nil {
		return fmt.Errorf("failed to flush record: %w", err)
	}
	w.lines++
	return nil
}

// Lines returns the number of records written so far.
func (w *Writer) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Close finalises the compressed stream and closes the file. It is
// idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to finalise session log: %w", err)
	}
	return w.f.Close()
}

// Reader scans a session log line by line.
type Reader struct {
	f  *os.File
	gz *gzip.Reader
	sc *bufio.Scanner
}

// Open opens a session log for reading. It fails if the file is not a
// valid gzip stream.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s is not a valid gzip stream: %w", path, err)
	}
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{f: f, gz: gz, sc: sc}, nil
}

// Next returns the next line of the log. ok is false at end of stream
// or on a read error (see Err).
func (r *Reader) Next() (line []byte, ok bool) {
	if !r.sc.Scan() {
		return nil, false
	}
	return r.sc.Bytes(), true
}

// Err returns the first error encountered while scanning, if any.
func (r *Reader) Err() error {
	return r.sc.Err()
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	r.gz.Close()
	return r.f.Close()
}
