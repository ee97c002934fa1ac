package cconv

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Options struct {
	Backup       bool
	BackupSuffix string
}

type Service struct {
	conv *Converter
	opts Options
	log  zerolog.Logger
}

func NewService(conv *Converter, opts Options, log zerolog.Logger) *Service {
	if opts.BackupSuffix == "" {
		opts.BackupSuffix = ".backup"
	}
	return &Service{conv: conv, opts: opts, log: log.With().Str("op", "cconv/convert").Logger()}
}

// DefaultOutput names the converted sibling of input: book.epub becomes
// book_trad.epub and a directory d becomes d_trad.
func DefaultOutput(input string, isDir bool) string {
	clean := filepath.Clean(input)
	if isDir {
		return clean + "_trad"
	}
	ext := filepath.Ext(clean)
	return strings.TrimSuffix(clean, ext) + "_trad" + ext
}

// ConvertFile converts one EPUB or TXT file. The backup, when enabled, is
// taken before any output is written.
func (s *Service) ConvertFile(input, output string) (Stats, error) {
	handler, err := HandlerFor(input, s.conv)
	if err != nil {
		return Stats{}, err
	}
	if err := handler.Validate(input); err != nil {
		return Stats{}, fmt.Errorf("%s: %w", input, err)
	}
	if s.opts.Backup {
		backup := input + s.opts.BackupSuffix
		if err := copyFile(input, backup); err != nil {
			return Stats{}, fmt.Errorf("error creating backup: %w", err)
		}
		s.log.Info().Str("backup", backup).Msg("created backup")
	}
	s.log.Info().Str("input", input).Str("output", output).Str("type", s.conv.Kind()).Msg("converting")
	st, err := handler.Process(input, output)
	if err != nil {
		return st, err
	}
	s.log.Info().Str("output", output).Msg("conversion completed")
	return st, nil
}

type BatchResult struct {
	Files  []string
	Failed map[string]error
}

func (r *BatchResult) Succeeded() int {
	return len(r.Files) - len(r.Failed)
}

// ConvertBatch converts every .epub and .txt file directly inside inputDir
// into outputDir, keeping file names.
func (s *Service) ConvertBatch(inputDir, outputDir string) (*BatchResult, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", inputDir, err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating %s: %w", outputDir, err)
	}
	res := &BatchResult{Failed: make(map[string]error)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".epub", ".txt":
			res.Files = append(res.Files, e.Name())
		}
	}
	sort.Strings(res.Files)
	for _, name := range res.Files {
		if _, err := s.ConvertFile(filepath.Join(inputDir, name), filepath.Join(outputDir, name)); err != nil {
			s.log.Error().Err(err).Str("file", name).Msg("conversion failed")
			res.Failed[name] = err
		}
	}
	s.log.Info().Msgf("Batch completed: %d/%d successful", res.Succeeded(), len(res.Files))
	return res, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func newTempName() string {
	return uuid.NewString() + ".tmp"
}
