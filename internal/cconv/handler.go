package cconv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsupported = errors.New("unsupported format")

type Stats struct {
	FilesProcessed int
	TextsConverted int
	Errors         int
}

// Handler converts one file format.
type Handler interface {
	Validate(path string) error
	Process(input, output string) (Stats, error)
}

// HandlerFor picks the handler by file extension.
func HandlerFor(path string, conv *Converter) (Handler, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".epub":
		return &EPUBHandler{conv: conv, log: conv.log.With().Str("op", "cconv/epub").Logger()}, nil
	case ".txt":
		return &TXTHandler{conv: conv}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

type TXTHandler struct {
	conv *Converter
}

func (h *TXTHandler) Validate(path string) error {
	if strings.ToLower(filepath.Ext(path)) != ".txt" {
		return errors.New("not a TXT file")
	}
	return nil
}

func (h *TXTHandler) Process(input, output string) (Stats, error) {
	var st Stats
	data, err := os.ReadFile(input)
	if err != nil {
		st.Errors++
		return st, fmt.Errorf("error reading %s: %w", input, err)
	}
	content := string(data)
	converted := h.conv.Convert(content)
	if err := writeFileAtomic(output, []byte(converted)); err != nil {
		st.Errors++
		return st, err
	}
	if converted != content {
		st.TextsConverted++
	}
	st.FilesProcessed++
	return st, nil
}
