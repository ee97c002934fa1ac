package history

import (
	"bytes"
	"encoding/json"
	"time"
)

// TimeLayout matches ISO-8601 with the local offset, microseconds when present.
const TimeLayout = "2006-01-02T15:04:05.999999-07:00"

// Record is one line of a history file. Extra holds tool-specific metadata
// and is flattened into the same JSON object as the fixed fields.
type Record struct {
	ID           string
	Title        string
	Collection   string
	SourceURL    string
	OutputPath   string
	DownloadedAt time.Time
	Extra        map[string]any
}

var fixedKeys = []string{"id", "title", "collection", "source_url", "output_path", "downloaded_at"}

// legacyKeys name older per-tool keys read in place of an absent fixed key.
// They stay in Extra so records are written back unchanged.
var legacyKeys = map[string][]string{
	"collection":  {"anime_series", "artist"},
	"source_url":  {"url"},
	"output_path": {"file_path"},
}

func (r Record) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Extra)+len(fixedKeys))
	for k, v := range r.Extra {
		obj[k] = v
	}
	obj["id"] = r.ID
	setIfNotEmpty(obj, "title", r.Title)
	setIfNotEmpty(obj, "collection", r.Collection)
	setIfNotEmpty(obj, "source_url", r.SourceURL)
	setIfNotEmpty(obj, "output_path", r.OutputPath)
	if !r.DownloadedAt.IsZero() {
		obj["downloaded_at"] = r.DownloadedAt.Format(TimeLayout)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{}
	r.ID = rawString(raw, "id")
	r.Title = rawString(raw, "title")
	r.Collection = fixedString(raw, "collection")
	r.SourceURL = fixedString(raw, "source_url")
	r.OutputPath = fixedString(raw, "output_path")
	if ts := rawString(raw, "downloaded_at"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			r.DownloadedAt = parsed
		}
	}
	for _, k := range fixedKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		r.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err == nil {
				r.Extra[k] = val
			}
		}
	}
	return nil
}

// encodeLine renders rec as one newline-terminated JSON line without HTML
// escaping.
func encodeLine(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setIfNotEmpty(obj map[string]any, key, value string) {
	if value != "" {
		obj[key] = value
	}
}

// fixedString reads key, falling back to its legacy names.
func fixedString(raw map[string]json.RawMessage, key string) string {
	if v := rawString(raw, key); v != "" {
		return v
	}
	for _, legacy := range legacyKeys[key] {
		if v := rawString(raw, legacy); v != "" {
			return v
		}
	}
	return ""
}

// rawString returns the string value at key, or "" when absent or not a string.
func rawString(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}
