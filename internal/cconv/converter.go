// Package cconv converts Chinese text between simplified and traditional
// scripts inside EPUB and TXT files.
package cconv

import (
	"fmt"
	"slices"
	"unicode"

	"github.com/longbridgeapp/opencc"
	"github.com/rs/zerolog"
)

var ConversionTypes = []string{"s2t", "s2tw", "s2hk", "t2s"}

type Converter struct {
	cc   *opencc.OpenCC
	kind string
	log  zerolog.Logger
}

func NewConverter(kind string, log zerolog.Logger) (*Converter, error) {
	if !slices.Contains(ConversionTypes, kind) {
		return nil, fmt.Errorf("unsupported conversion type %q, expected one of %v", kind, ConversionTypes)
	}
	cc, err := opencc.New(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize converter: %w", err)
	}
	log = log.With().Str("op", "cconv/converter").Logger()
	log.Info().Str("type", kind).Msg("initialized converter")
	return &Converter{cc: cc, kind: kind, log: log}, nil
}

func (c *Converter) Kind() string {
	return c.kind
}

// Convert returns text converted, or unchanged when it holds no CJK
// ideographs or conversion fails.
func (c *Converter) Convert(text string) string {
	if !HasChinese(text) {
		return text
	}
	out, err := c.cc.Convert(text)
	if err != nil {
		c.log.Error().Err(err).Msg("conversion error")
		return text
	}
	return out
}

// HasChinese reports whether s contains a CJK Unified Ideograph
// (U+4E00 to U+9FFF).
func HasChinese(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}

func isBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
