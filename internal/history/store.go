// Package history keeps the append-only JSONL log of items a downloader has
// already fetched.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Options struct {
	// Strict makes a malformed line a load error instead of a warning.
	Strict bool
	// FallbackKeys are consulted in order when a line has no "id".
	FallbackKeys []string
	Location     *time.Location
}

type Store struct {
	path string
	opts Options
	log  zerolog.Logger
	mu   sync.Mutex
	now  func() time.Time
}

// ScanResult is the full decode of a history file.
type ScanResult struct {
	Records   []Record
	Malformed []int // 1-based line numbers
}

func NewStore(path string, log zerolog.Logger, opts Options) *Store {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Store{
		path: path,
		opts: opts,
		log:  log.With().Str("op", "history/store").Str("file", path).Logger(),
		now:  time.Now,
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the set of ids present in the file. A missing file is an
// empty set.
func (s *Store) Load() (map[string]struct{}, error) {
	known := make(map[string]struct{})
	err := s.scan(func(_ int, raw map[string]json.RawMessage) {
		known[s.keyOf(raw)] = struct{}{}
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug().Int("ids", len(known)).Msg("history loaded")
	return known, nil
}

// Records decodes every well-formed line. Malformed lines are reported in the
// result rather than logged, unless the store is strict.
func (s *Store) Records() (*ScanResult, error) {
	result := &ScanResult{}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening history file: %w", err)
	}
	defer f.Close()
	err = eachLine(f, func(lineNo int, line []byte) error {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			if s.opts.Strict {
				return fmt.Errorf("malformed history line %d in %s: %w", lineNo, s.path, err)
			}
			result.Malformed = append(result.Malformed, lineNo)
			return nil
		}
		if rec.ID == "" {
			var raw map[string]json.RawMessage
			if json.Unmarshal(line, &raw) == nil {
				rec.ID = s.keyOf(raw)
			}
		}
		result.Records = append(result.Records, rec)
		return nil
	}, func(lineNo int) error {
		if s.opts.Strict {
			return s.lineTooLong(lineNo)
		}
		result.Malformed = append(result.Malformed, lineNo)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Append writes rec as one line. Failures are logged and never returned; a
// lost history line costs a re-download later, not the current run.
func (s *Store) Append(rec Record) {
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = s.now().In(s.opts.Location)
	}
	line, err := encodeLine(rec)
	if err != nil {
		s.log.Error().Err(err).Str("id", rec.ID).Msg("failed to encode history record")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.log.Error().Err(err).Str("id", rec.ID).Msg("failed to create history directory")
			return
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.log.Error().Err(err).Str("id", rec.ID).Msg("failed to open history file")
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		s.log.Error().Err(err).Str("id", rec.ID).Msg("failed to write history record")
		return
	}
	s.log.Debug().Str("id", rec.ID).Msg("history record appended")
}

func (s *Store) scan(fn func(lineNo int, raw map[string]json.RawMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug().Msg("history file does not exist yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("error opening history file: %w", err)
	}
	defer f.Close()
	return eachLine(f, func(lineNo int, line []byte) error {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			if s.opts.Strict {
				return fmt.Errorf("malformed history line %d in %s: %w", lineNo, s.path, err)
			}
			s.log.Warn().Int("line", lineNo).Err(err).Msg("skipping malformed history line")
			return nil
		}
		fn(lineNo, raw)
		return nil
	}, s.lineTooLong)
}

func (s *Store) keyOf(raw map[string]json.RawMessage) string {
	if id := rawString(raw, "id"); id != "" {
		return id
	}
	for _, key := range s.opts.FallbackKeys {
		if v := rawString(raw, key); v != "" {
			return v
		}
	}
	return ""
}

// maxLineSize bounds a single history line; longer lines are skipped.
var maxLineSize = 8 * 1024 * 1024

// eachLine calls fn for every non-blank line of r and tooLong for every line
// longer than maxLineSize.
func eachLine(r io.Reader, fn func(lineNo int, line []byte) error, tooLong func(lineNo int) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	oversized := false
	lineNo := 0
	for {
		chunk, err := br.ReadSlice('\n')
		if err != nil && err != bufio.ErrBufferFull && err != io.EOF {
			return fmt.Errorf("error reading history file: %w", err)
		}
		switch {
		case oversized:
		case len(buf)+len(chunk) > maxLineSize:
			oversized = true
			buf = buf[:0]
		default:
			buf = append(buf, chunk...)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF && len(buf) == 0 && !oversized {
			return nil
		}
		lineNo++
		if oversized {
			if err := tooLong(lineNo); err != nil {
				return err
			}
		} else if line := bytes.TrimSpace(buf); len(line) > 0 {
			if err := fn(lineNo, line); err != nil {
				return err
			}
		}
		buf = buf[:0]
		oversized = false
		if err == io.EOF {
			return nil
		}
	}
}

func (s *Store) lineTooLong(lineNo int) error {
	if s.opts.Strict {
		return fmt.Errorf("history line %d in %s exceeds %d bytes", lineNo, s.path, maxLineSize)
	}
	s.log.Warn().Int("line", lineNo).Int("limit", maxLineSize).Msg("skipping oversized history line")
	return nil
}
