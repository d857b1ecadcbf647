package csvlog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ghalamif/insightcap/internal/domain"
	"github.com/ghalamif/insightcap/internal/ports"
)

const scanChunk = 4096

// Log is the append-only CSV file for one stream. Each Append opens the file,
// issues a single write for all of the record's rows, and closes it again, so
// a tailing reader never observes a partial row and nothing is buffered
// between calls.
type Log struct {
	mu        sync.Mutex
	kind      domain.StreamKind
	path      string
	header    []byte
	hasHeader bool
	rows      uint64
	sizeBytes int64
}

type Stats struct {
	Rows      uint64
	SizeBytes int64
}

// Open prepares the log at path without creating it. If the file already
// exists, a trailing partial row left by an interrupted write is cut off.
func Open(path string, kind domain.StreamKind) (*Log, error) {
	schema := domain.Schema(kind)
	if len(schema) == 0 {
		return nil, fmt.Errorf("csvlog: no schema for %s", kind)
	}
	l := &Log{
		kind:   kind,
		path:   path,
		header: encodeRow(nil, schema),
	}
	if err := l.recover(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) Path() string            { return l.path }
func (l *Log) Kind() domain.StreamKind { return l.kind }

func (l *Log) recover() error {
	f, err := os.OpenFile(l.path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	size := stat.Size()
	if size == 0 {
		return nil
	}

	end, err := completeLength(f, size)
	if err != nil {
		return fmt.Errorf("csvlog scan %s: %w", l.path, err)
	}
	if end != size {
		if err := f.Truncate(end); err != nil {
			return err
		}
	}
	lines, err := countLines(f, end)
	if err != nil {
		return fmt.Errorf("csvlog count %s: %w", l.path, err)
	}
	l.sizeBytes = end
	l.hasHeader = end > 0
	if lines > 0 {
		l.rows = lines - 1
	}
	return nil
}

// countLines counts the newlines in the first n bytes, header included.
func countLines(r io.ReaderAt, n int64) (uint64, error) {
	buf := make([]byte, scanChunk)
	var lines uint64
	for off := int64(0); off < n; {
		m := int64(len(buf))
		if n-off < m {
			m = n - off
		}
		if _, err := r.ReadAt(buf[:m], off); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		lines += uint64(bytes.Count(buf[:m], []byte{'\n'}))
		off += m
	}
	return lines, nil
}

// completeLength returns the length of the file up to and including its last
// newline.
func completeLength(r io.ReaderAt, size int64) (int64, error) {
	buf := make([]byte, scanChunk)
	for off := size; off > 0; {
		n := int64(len(buf))
		if off < n {
			n = off
		}
		off -= n
		if _, err := r.ReadAt(buf[:n], off); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return off + int64(i) + 1, nil
		}
	}
	return 0, nil
}

// EnsureHeader writes the column header if the file is missing or empty. It
// never rewrites the header of a file that already has content.
func (l *Log) EnsureHeader() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasHeader {
		return nil
	}
	_, err := l.appendLocked(nil)
	return err
}

// Append serializes rec as one or more comma-joined rows.
func (l *Log) Append(rec domain.Record) error {
	if rec.Kind() != l.kind {
		return fmt.Errorf("csvlog: %s record written to %s log", rec.Kind(), l.kind)
	}
	rows := rec.Rows()
	if len(rows) == 0 {
		return nil
	}

	var buf []byte
	for _, row := range rows {
		buf = encodeRow(buf, row)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.appendLocked(buf); err != nil {
		return err
	}
	l.rows += uint64(len(rows))
	return nil
}

// appendLocked writes data, prefixed by the header when the file is new or
// was emptied, in a single write.
func (l *Log) appendLocked(data []byte) (int, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}

	out := data
	if stat.Size() == 0 {
		out = make([]byte, 0, len(l.header)+len(data))
		out = append(out, l.header...)
		out = append(out, data...)
	}
	if len(out) == 0 {
		return 0, f.Close()
	}

	n, err := f.Write(out)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("append %s: %w", l.path, err)
	}
	l.hasHeader = true
	l.sizeBytes = stat.Size() + int64(n)
	return n, nil
}

func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Rows: l.rows, SizeBytes: l.sizeBytes}
}

func encodeRow(dst []byte, row []string) []byte {
	dst = append(dst, strings.Join(row, ",")...)
	return append(dst, '\n')
}

var _ ports.RecordWriter = (*Log)(nil)

// Write implements ports.RecordWriter.
func (l *Log) Write(rec domain.Record) error { return l.Append(rec) }
