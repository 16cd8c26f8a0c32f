package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"actionforge.ai/internal/sim/world"
)

const segmentLayout = "2006-01-02-15"

func segmentName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s.jsonl.zst", prefix, t.UTC().Format(segmentLayout))
}

func segmentGlob(prefix string) string { return prefix + "-*.jsonl.zst" }

// Segments writes JSON lines into one zstd file per UTC hour. Lines are
// buffered until Flush, or until the hour rolls over.
type Segments struct {
	dir    string
	prefix string
	now    func() time.Time

	mu    sync.Mutex
	name  string
	file  *os.File
	enc   *zstd.Encoder
	buf   *bufio.Writer
	lines uint64
}

func NewSegments(dir, prefix string) *Segments {
	return &Segments{dir: dir, prefix: prefix, now: time.Now}
}

// Append encodes v as one line. A failed segment is dropped and the next
// Append reopens it; zstd frames appended to an existing file still decode.
func (s *Segments) Append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if name := segmentName(s.prefix, s.now()); name != s.name {
		if err := s.open(name); err != nil {
			return fmt.Errorf("%s: open %s: %w", s.prefix, name, err)
		}
	}
	b = append(b, '\n')
	if _, err := s.buf.Write(b); err != nil {
		_ = s.closeLocked()
		return err
	}
	s.lines++
	return nil
}

// Flush pushes buffered lines through the encoder to disk.
func (s *Segments) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.enc.Flush()
}

// Lines is the number of lines appended since construction.
func (s *Segments) Lines() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

func (s *Segments) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Segments) open(name string) error {
	if err := s.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if s.enc == nil {
		s.enc, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = f.Close()
			return err
		}
	} else {
		s.enc.Reset(f)
	}
	s.file, s.name = f, name
	s.buf = bufio.NewWriterSize(s.enc, 64*1024)
	return nil
}

// closeLocked ends the current frame and file. The encoder is kept for the
// next segment.
func (s *Segments) closeLocked() error {
	if s.file == nil {
		return nil
	}
	var first error
	if err := s.buf.Flush(); err != nil {
		first = err
	}
	if err := s.enc.Close(); err != nil && first == nil {
		first = err
	}
	if err := s.file.Close(); err != nil && first == nil {
		first = err
	}
	s.file, s.buf, s.name = nil, nil, ""
	return first
}

// TickLogger is the replay source: one line per tick with the inputs applied
// and the resulting digest. Every entry is flushed before WriteTick returns.
type TickLogger struct{ seg *Segments }

func NewTickLogger(runDir string) *TickLogger {
	return &TickLogger{seg: NewSegments(filepath.Join(runDir, "ticks"), "ticks")}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error {
	if err := l.seg.Append(e); err != nil {
		return err
	}
	return l.seg.Flush()
}

func (l *TickLogger) Close() error { return l.seg.Close() }

// Journal records queue events. A tick produces many of them, so lines are
// flushed once the first record of a later tick arrives, and on Close.
type Journal struct {
	seg *Segments

	mu       sync.Mutex
	lastTick uint64
	pending  bool
}

func NewJournal(runDir string) *Journal {
	return &Journal{seg: NewSegments(filepath.Join(runDir, "events"), "events")}
}

func (j *Journal) WriteEvent(rec world.EventRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pending && rec.Tick != j.lastTick {
		if err := j.seg.Flush(); err != nil {
			return err
		}
	}
	j.lastTick, j.pending = rec.Tick, true
	return j.seg.Append(rec)
}

func (j *Journal) Close() error { return j.seg.Close() }
