// Package checkpoint implements the CSV ledger that records generated
// annotations. The ledger is the resume state of the generate phase and the
// input of the commit phase.
package checkpoint

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/timmy/annotate/internal/domain"
)

// DefaultFileName is the checkpoint file name used when none is configured.
const DefaultFileName = "image_annotations.csv"

// Header is the first line of every checkpoint file.
var Header = []string{"ID", "alt", "description", "caption", "title", "URL"}

// Column positions, matching Header.
const (
	colID = iota
	colAlt
	colDescription
	colCaption
	colTitle
	colURL
)

var kindColumns = map[domain.Kind]int{
	domain.KindAlt:         colAlt,
	domain.KindDescription: colDescription,
	domain.KindCaption:     colCaption,
	domain.KindTitle:       colTitle,
}

// ErrLocked is returned by Lock when another process holds the checkpoint.
var ErrLocked = errors.New("checkpoint is in use by another run")

// Store is an append-only CSV file of result rows.
type Store struct {
	dir  string
	path string
}

// New creates a Store for dir/filename. An empty filename uses DefaultFileName.
// Parameters:
//   - dir: writable directory holding the checkpoint.
//   - filename: checkpoint file name.
//
// Returns:
//   - *Store: store bound to the resolved path; nothing is touched on disk.
func New(dir, filename string) *Store {
	if filename == "" {
		filename = DefaultFileName
	}
	return &Store{
		dir:  dir,
		path: filepath.Join(dir, filename),
	}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Initialize creates the checkpoint with its header when it is missing or empty.
// It is safe to call on every start.
func (s *Store) Initialize() error {
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0755); err != nil {
			return fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}

	info, err := os.Stat(s.path)
	switch {
	case err == nil && info.Size() > 0:
		return nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to stat checkpoint: %w", err)
	}

	header, err := encodeRecord(Header)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	if _, err := f.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write checkpoint header: %w", err)
	}
	return f.Close()
}

// ScanProcessed returns the ids of items that already have at least one
// non-empty annotation. Malformed rows are ignored and a missing file yields
// an empty set.
func (s *Store) ScanProcessed() (map[int64]struct{}, error) {
	processed := make(map[int64]struct{})
	err := s.Stream(func(row domain.ResultRow) error {
		if row.HasContent() {
			processed[row.ItemID] = struct{}{}
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return processed, nil
}

// Stream calls fn for every well-formed row, top to bottom. Rows whose id is
// not an integer are skipped. An error from fn stops the stream and is
// returned unchanged. A missing file returns an error wrapping os.ErrNotExist.
func (s *Store) Stream(fn func(row domain.ResultRow) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	n, err := committedLength(f)
	if err != nil {
		return err
	}

	return readRecords(io.LimitReader(f, n), func(rec []string) error {
		row, ok := parseRecord(rec)
		if !ok {
			return nil
		}
		return fn(row)
	})
}

// Lock takes an exclusive, non-blocking lock for the duration of one phase.
// Returns:
//   - func() error: releases the lock.
//   - error: ErrLocked when another process holds it.
func (s *Store) Lock() (func() error, error) {
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}
	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkpoint lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lock.Path())
	}
	return lock.Unlock, nil
}

// Writer appends rows to an initialized checkpoint.
type Writer struct {
	f        *os.File
	repaired int64
	// unterminated is set while the file ends with a complete row that has
	// no trailing newline, as left by a hand edit.
	unterminated bool
}

// OpenWriter opens the checkpoint for appending. A trailing partial row left
// by an interrupted append is cut off first so new rows start on a clean line.
// Complete rows are never removed.
func (s *Store) OpenWriter() (*Writer, error) {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint for append: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat checkpoint: %w", err)
	}
	n, err := committedLength(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &Writer{f: f}
	if torn := info.Size() - n; torn > 0 {
		if err := f.Truncate(n); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to drop partial checkpoint row: %w", err)
		}
		w.repaired = torn
	}
	terminated, err := endsWithNewline(f, n)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.unterminated = !terminated
	return w, nil
}

// Repaired returns the number of partial-row bytes removed when the writer opened.
func (w *Writer) Repaired() int64 {
	return w.repaired
}

// Append writes one row with a single write call and syncs it to disk.
func (w *Writer) Append(row domain.ResultRow) error {
	line, err := encodeRecord(rowRecord(row))
	if err != nil {
		return err
	}
	if w.unterminated {
		line = append([]byte{'\n'}, line...)
	}
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("failed to append checkpoint row %d: %w", row.ItemID, err)
	}
	w.unterminated = false
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	return nil
}

// Close releases the file handle.
func (w *Writer) Close() error {
	return w.f.Close()
}

func rowRecord(row domain.ResultRow) []string {
	rec := make([]string, len(Header))
	rec[colID] = strconv.FormatInt(row.ItemID, 10)
	for kind, col := range kindColumns {
		rec[col] = row.Field(kind)
	}
	rec[colURL] = row.SourceURL
	return rec
}

func parseRecord(rec []string) (domain.ResultRow, bool) {
	if len(rec) == 0 {
		return domain.ResultRow{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(rec[colID]), 10, 64)
	if err != nil {
		return domain.ResultRow{}, false
	}

	field := func(i int) string {
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}

	row := domain.NewResultRow(id, field(colURL))
	for kind, col := range kindColumns {
		if v := field(col); v != "" {
			row.Fields[kind] = v
		}
	}
	return row, true
}

func encodeRecord(rec []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint row: %w", err)
	}
	return buf.Bytes(), nil
}

// readRecords decodes CSV records, skipping the ones that fail to parse.
func readRecords(r io.Reader, fn func(rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return fmt.Errorf("failed to read checkpoint: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// committedLength returns the offset just past the last complete row in f.
// Rows are found with the CSV parser, so newlines inside quoted fields do not
// end a row. The bytes past the returned offset are a row whose append never
// finished: the file ends inside an open quote, or the final line is cut
// short. A final line without a newline still counts as complete when it has
// every column.
func committedLength(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat checkpoint: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	terminated, err := endsWithNewline(f, size)
	if err != nil {
		return 0, err
	}

	cr := csv.NewReader(io.NewSectionReader(f, 0, size))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var end int64
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return end, nil
		}
		off := cr.InputOffset()
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return 0, fmt.Errorf("failed to read checkpoint: %w", err)
			}
			// A malformed line is still a finished row unless it is the
			// open quote the file ends in.
			if off < size || (terminated && !errors.Is(perr.Err, csv.ErrQuote)) {
				end = off
			}
			continue
		}
		if off == size && !terminated && len(rec) < len(Header) {
			continue
		}
		end = off
	}
}

func endsWithNewline(f *os.File, size int64) (bool, error) {
	if size == 0 {
		return true, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return last[0] == '\n', nil
}
