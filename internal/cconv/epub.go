package cconv

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tanq16/utools/internal/utils"
	"golang.org/x/net/html"
)

const epubMimetype = "application/epub+zip"

const dcNamespace = "http://purl.org/dc/elements/1.1/"

// entries whose text content is converted; everything else is copied
var translatableExts = map[string]bool{
	".opf": true, ".ncx": true, ".xhtml": true, ".html": true,
	".htm": true, ".xml": true, ".css": true,
}

var dcConverted = map[string]bool{"title": true, "creator": true, "description": true, "subject": true}

type EPUBHandler struct {
	conv *Converter
	log  zerolog.Logger
}

func (h *EPUBHandler) Validate(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("invalid EPUB: not a zip archive: %w", err)
	}
	defer zr.Close()
	var mimetype, container *zip.File
	for _, f := range zr.File {
		switch f.Name {
		case "mimetype":
			mimetype = f
		case "META-INF/container.xml":
			container = f
		}
	}
	if mimetype == nil {
		return errors.New("invalid EPUB: missing mimetype")
	}
	data, err := readEntry(mimetype)
	if err != nil {
		return fmt.Errorf("invalid EPUB: %w", err)
	}
	if strings.TrimSpace(string(data)) != epubMimetype {
		return fmt.Errorf("invalid EPUB: unexpected mimetype %q", strings.TrimSpace(string(data)))
	}
	if container == nil {
		return errors.New("invalid EPUB: missing META-INF/container.xml")
	}
	return nil
}

// Process rewrites input into output with every translatable entry
// converted. The mimetype entry is written first and uncompressed.
func (h *EPUBHandler) Process(input, output string) (Stats, error) {
	var st Stats
	zr, err := zip.OpenReader(input)
	if err != nil {
		st.Errors++
		return st, fmt.Errorf("error opening %s: %w", input, err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	mw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		st.Errors++
		return st, err
	}
	if _, err := io.WriteString(mw, epubMimetype); err != nil {
		st.Errors++
		return st, err
	}

	for _, f := range zr.File {
		if f.Name == "mimetype" {
			continue
		}
		if f.FileInfo().IsDir() || !translatableExts[strings.ToLower(filepath.Ext(f.Name))] {
			if err := zw.Copy(f); err != nil {
				st.Errors++
				return st, fmt.Errorf("error copying %s: %w", f.Name, err)
			}
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			st.Errors++
			return st, fmt.Errorf("error reading %s: %w", f.Name, err)
		}
		converted, n, err := h.convertEntry(f.Name, data)
		if err != nil {
			h.log.Error().Err(err).Str("entry", f.Name).Msg("error processing entry, keeping original")
			st.Errors++
			converted = data
		} else {
			st.FilesProcessed++
			st.TextsConverted += n
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified})
		if err != nil {
			st.Errors++
			return st, err
		}
		if _, err := w.Write(converted); err != nil {
			st.Errors++
			return st, err
		}
	}
	if err := zw.Close(); err != nil {
		st.Errors++
		return st, fmt.Errorf("error finalizing archive: %w", err)
	}
	if err := writeFileAtomic(output, buf.Bytes()); err != nil {
		st.Errors++
		return st, err
	}
	h.log.Info().Int("files", st.FilesProcessed).Int("texts", st.TextsConverted).Int("errors", st.Errors).Msg("EPUB processed")
	return st, nil
}

func (h *EPUBHandler) convertEntry(name string, data []byte) ([]byte, int, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".opf" || strings.Contains(name, "content.opf"):
		return convertXMLText(data, func(n xml.Name) bool {
			return n.Space == dcNamespace && dcConverted[n.Local]
		}, h.conv.Convert)
	case ext == ".ncx":
		return convertXMLText(data, func(n xml.Name) bool {
			return n.Local == "text"
		}, h.conv.Convert)
	case ext == ".xhtml" || ext == ".html" || ext == ".htm":
		return convertHTML(data, h.conv.Convert)
	default:
		text := string(data)
		out := h.conv.Convert(text)
		if out == text {
			return data, 0, nil
		}
		return []byte(out), 1, nil
	}
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// convertXMLText converts the character data directly inside elements
// accepted by match. Unmatched bytes are kept as they are.
func convertXMLText(data []byte, match func(xml.Name) bool, convert func(string) string) ([]byte, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = xml.HTMLEntity
	var (
		out   bytes.Buffer
		stack []xml.Name
		last  int64
		count int
	)
	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("error parsing XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) == 0 || !match(stack[len(stack)-1]) {
				continue
			}
			text := string(t)
			if isBlank(text) {
				continue
			}
			converted := convert(text)
			if converted == text {
				continue
			}
			out.Write(data[last:start])
			if err := xml.EscapeText(&out, []byte(converted)); err != nil {
				return nil, 0, err
			}
			last = dec.InputOffset()
			count++
		}
	}
	if count == 0 {
		return data, 0, nil
	}
	out.Write(data[last:])
	return out.Bytes(), count, nil
}

// convertHTML converts text nodes plus title and alt attributes while
// copying every other token byte for byte.
func convertHTML(data []byte, convert func(string) string) ([]byte, int, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	var (
		out     bytes.Buffer
		count   int
		rawText bool
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, 0, fmt.Errorf("error parsing HTML: %w", err)
			}
			break
		}
		// Token unescapes in place, so Raw is copied first.
		raw := append([]byte(nil), z.Raw()...)
		switch tt {
		case html.TextToken:
			tok := z.Token()
			if rawText || isBlank(tok.Data) {
				out.Write(raw)
				break
			}
			converted := convert(tok.Data)
			if converted == tok.Data {
				out.Write(raw)
				break
			}
			count++
			out.WriteString(html.EscapeString(converted))
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			rawText = tt == html.StartTagToken && (tok.Data == "script" || tok.Data == "style")
			replaced := make(map[int]string)
			for i, a := range tok.Attr {
				if a.Namespace != "" || (a.Key != "title" && a.Key != "alt") {
					continue
				}
				if c := convert(a.Val); c != a.Val {
					replaced[i] = c
					count++
				}
			}
			if len(replaced) > 0 {
				raw = replaceAttrValues(raw, replaced)
			}
			out.Write(raw)
			continue
		default:
			out.Write(raw)
		}
		rawText = false
	}
	if count == 0 {
		return data, 0, nil
	}
	return out.Bytes(), count, nil
}

// attrValue locates the value of one attribute inside a raw start tag. Start
// is -1 for an attribute without a value.
type attrValue struct {
	start, end int
	quoted     bool
}

// tagAttrValues scans a raw start tag the way the tokenizer does and returns
// one entry per attribute, in order, so that entries line up with Token().Attr.
func tagAttrValues(raw []byte) []attrValue {
	isSpace := func(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' }
	n := len(raw)
	i := 1
	for i < n && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}
	var values []attrValue
	for {
		for i < n && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= n || raw[i] == '>' {
			return values
		}
		nameStart := i
		for i < n && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '=' && raw[i] != '>' {
			i++
		}
		if i == nameStart {
			i++
			continue
		}
		for i < n && isSpace(raw[i]) {
			i++
		}
		v := attrValue{start: -1, end: -1}
		if i < n && raw[i] == '=' {
			i++
			for i < n && isSpace(raw[i]) {
				i++
			}
			if i < n && (raw[i] == '"' || raw[i] == '\'') {
				q := raw[i]
				i++
				v.start, v.quoted = i, true
				for i < n && raw[i] != q {
					i++
				}
				v.end = i
				i++
			} else {
				v.start = i
				for i < n && !isSpace(raw[i]) && raw[i] != '>' {
					i++
				}
				v.end = i
			}
		}
		values = append(values, v)
	}
}

// replaceAttrValues rewrites the values of the attributes at the given
// indexes and leaves every other byte of raw untouched.
func replaceAttrValues(raw []byte, replaced map[int]string) []byte {
	values := tagAttrValues(raw)
	var out bytes.Buffer
	last := 0
	for i, v := range values {
		val, ok := replaced[i]
		if !ok || v.start < 0 || v.end > len(raw) {
			continue
		}
		out.Write(raw[last:v.start])
		if v.quoted {
			out.WriteString(html.EscapeString(val))
		} else {
			out.WriteString(`"` + html.EscapeString(val) + `"`)
		}
		last = v.end
	}
	out.Write(raw[last:])
	return out.Bytes()
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating %s: %w", dir, err)
	}
	tempDir := filepath.Join(dir, utils.TempDirName)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("error creating %s: %w", tempDir, err)
	}
	// removes tempDir only when nothing else is in flight
	defer os.Remove(tempDir)
	tmp := filepath.Join(tempDir, newTempName())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error moving output into place: %w", err)
	}
	return nil
}
