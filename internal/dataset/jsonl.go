// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package dataset reads and writes the line-delimited JSON records the CLI
// consumes and produces.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	sigilerr "github.com/sigil-dev/srtk/pkg/errors"
)

// maxLine bounds a single record. Path records for hub-heavy samples can
// be large.
const maxLine = 64 << 20

// Read decodes one T per non-blank line of r and passes it to fn. Decoding
// stops at the first malformed line or the first error from fn.
func Read[T any](r io.Reader, fn func(T) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			if sigilerr.CodeOf(err) != "" {
				return sigilerr.Wrapf(err, sigilerr.CodeDatasetRecordInvalid, "line %d", line)
			}
			return sigilerr.New(sigilerr.CodeDatasetRecordInvalid, "malformed record",
				sigilerr.Field("line", line), sigilerr.Field("cause", err.Error()))
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeDatasetIOFailure, "reading records")
	}
	return nil
}

// ReadAll collects every record of r.
func ReadAll[T any](r io.Reader) ([]T, error) {
	var out []T
	err := Read(r, func(rec T) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// ReadFile collects every record of the file at path; "-" reads stdin.
func ReadFile[T any](path string) ([]T, error) {
	if path == "-" {
		return ReadAll[T](os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeDatasetIOFailure, "opening %s", path)
	}
	defer func() { _ = f.Close() }()
	return ReadAll[T](f)
}

// Writer encodes one record per line. It is safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	buf   *bufio.Writer
	enc   *json.Encoder
	close func() error
	count int
}

// NewWriter writes records to w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &Writer{buf: buf, enc: enc, close: func() error { return nil }}
}

// Create truncates or creates the file at path; "-" writes to stdout.
func Create(path string) (*Writer, error) {
	if path == "-" {
		return NewWriter(os.Stdout), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeDatasetIOFailure, "creating %s", path)
	}
	w := NewWriter(f)
	w.close = f.Close
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(rec any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeDatasetIOFailure, "writing record %d", w.count+1)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes buffered records and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	flushErr := w.buf.Flush()
	closeErr := w.close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeDatasetIOFailure, "closing output")
	}
	return nil
}
