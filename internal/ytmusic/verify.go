package ytmusic

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

var (
	errUnsupported = errors.New("unsupported audio file")
	// ErrNoBackupDir is returned by Verify when the library folder is missing.
	ErrNoBackupDir = errors.New("backup directory not found")
)

type MissingFile struct {
	ID   string
	Name string
}

type VerifyReport struct {
	Scanned   int
	Missing   []MissingFile // ids not in history, first file per id
	WithoutID []string
}

// MissingIDs lists the ids of Missing in report order.
func (r *VerifyReport) MissingIDs() []string {
	ids := make([]string, len(r.Missing))
	for i, m := range r.Missing {
		ids[i] = m.ID
	}
	return ids
}

// AudioFiles returns every .mp3 then every .m4a file below dir, each group
// in lexical order.
func AudioFiles(dir string) ([]string, error) {
	var mp3s, m4as []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".mp3":
			mp3s = append(mp3s, path)
		case ".m4a":
			m4as = append(m4as, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(mp3s)
	sort.Strings(m4as)
	return append(mp3s, m4as...), nil
}

// Verify scans dir for audio files whose embedded id is missing from known.
// A report with Scanned == 0 means no audio files were found.
func Verify(dir string, known map[string]struct{}, scanAll bool, log zerolog.Logger) (*VerifyReport, error) {
	log = log.With().Str("op", "ytmusic/verify").Logger()
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNoBackupDir, dir)
	}
	log.Info().Str("dir", dir).Msg("scanning for .mp3 and .m4a files")
	files, err := AudioFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("error scanning %s: %w", dir, err)
	}
	report := &VerifyReport{Scanned: len(files)}
	if len(files) == 0 {
		return report, nil
	}
	log.Info().Int("files", len(files)).Msg("found audio files to check")

	seen := make(map[string]bool)
	for i, file := range files {
		name := filepath.Base(file)
		log.Debug().Msgf("Processing file %d/%d: %s", i+1, len(files), name)
		id := IDFromFile(file, scanAll)
		if id == "" {
			report.WithoutID = append(report.WithoutID, name)
			continue
		}
		if _, ok := known[id]; ok || seen[id] {
			continue
		}
		seen[id] = true
		report.Missing = append(report.Missing, MissingFile{ID: id, Name: name})
	}
	return report, nil
}

// ParseMigrateFile reads lines of the form "youtube <id>". Other non-blank
// lines are logged and skipped.
func ParseMigrateFile(path string, log zerolog.Logger) ([]string, error) {
	log = log.With().Str("op", "ytmusic/migrate").Logger()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()
	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 || parts[0] != "youtube" {
			log.Warn().Str("line", line).Msg("skipping invalid line")
			continue
		}
		ids = append(ids, parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return ids, nil
}
