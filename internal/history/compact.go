package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Stats struct {
	Records      int
	UniqueIDs    int
	Malformed    int
	Duplicates   int
	ByCollection map[string]int
}

// Summarize counts records; collection counts are per unique id.
func Summarize(scan *ScanResult) Stats {
	st := Stats{
		Records:      len(scan.Records),
		Malformed:    len(scan.Malformed),
		ByCollection: make(map[string]int),
	}
	latest := Compact(scan.Records)
	st.UniqueIDs = len(latest)
	st.Duplicates = st.Records - st.UniqueIDs
	for _, rec := range latest {
		collection := rec.Collection
		if collection == "" {
			collection = "(none)"
		}
		st.ByCollection[collection]++
	}
	return st
}

// Collections returns the collection names of st sorted by descending count.
func (st Stats) Collections() []string {
	names := make([]string, 0, len(st.ByCollection))
	for name := range st.ByCollection {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := st.ByCollection[names[i]], st.ByCollection[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	return names
}

// Compact keeps the last record of every id, ordered by first appearance.
func Compact(records []Record) []Record {
	index := make(map[string]int, len(records))
	var out []Record
	for _, rec := range records {
		if i, ok := index[rec.ID]; ok {
			out[i] = rec
			continue
		}
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out
}

// WriteFile writes records to a new file at path. An existing file is an error.
func WriteFile(path string, records []Record) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, rec := range records {
		line, err := encodeLine(rec)
		if err != nil {
			f.Close()
			return fmt.Errorf("error encoding record %s: %w", rec.ID, err)
		}
		w.Write(line)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return f.Close()
}
