package scraper

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProgressSink receives export progress. Fraction is in [0, 1].
type ProgressSink interface {
	Progress(fraction float64, desc string)
	Status(msg string)
}

type nopProgress struct{}

func (nopProgress) Progress(float64, string) {}
func (nopProgress) Status(string)            {}

// LogProgress reports progress through a zerolog logger.
type LogProgress struct {
	Log zerolog.Logger
}

func (p LogProgress) Progress(fraction float64, desc string) {
	p.Log.Info().Float64("fraction", fraction).Msg(desc)
}

func (p LogProgress) Status(msg string) {
	p.Log.Info().Str("status", msg).Send()
}

// FailureEntry is one skipped record or page.
type FailureEntry struct {
	Time          time.Time
	Stage         string // list, detail or reset
	Page          int
	RecordID      string
	Title         string
	Cause         string
	Unrecoverable bool
}

type FailureLog interface {
	Append(entry FailureEntry) error
}

// errWriter keeps the last write error, which zerolog itself swallows.
type errWriter struct {
	w   io.Writer
	err error
}

func (w *errWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

// FileFailureLog appends one JSON line per failure.
type FileFailureLog struct {
	mu   sync.Mutex
	file *os.File
	out  *errWriter
	log  zerolog.Logger
}

// OpenFailureLog opens path for appending, creating it and its directory as needed.
func OpenFailureLog(path string) (*FileFailureLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	out := &errWriter{w: f}
	return &FileFailureLog{
		file: f,
		out:  out,
		log:  zerolog.New(out),
	}, nil
}

func (l *FileFailureLog) Append(entry FailureEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	l.out.err = nil
	l.log.Log().
		Time("time", entry.Time).
		Str("stage", entry.Stage).
		Int("page", entry.Page).
		Str("record_id", entry.RecordID).
		Str("title", entry.Title).
		Str("cause", entry.Cause).
		Bool("unrecoverable", entry.Unrecoverable).
		Send()
	return l.out.err
}

func (l *FileFailureLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// MemoryFailureLog keeps failures in memory.
type MemoryFailureLog struct {
	mu      sync.Mutex
	entries []FailureEntry
}

func (l *MemoryFailureLog) Append(entry FailureEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryFailureLog) Entries() []FailureEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FailureEntry(nil), l.entries...)
}
