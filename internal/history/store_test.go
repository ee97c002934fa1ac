package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "sub", "history.jsonl"), zerolog.Nop(), opts)
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t, Options{})
	known, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(known) != 0 {
		t.Errorf("Expected empty set, got %v", known)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	s := newTestStore(t, Options{})
	os.MkdirAll(filepath.Dir(s.Path()), 0755)
	if err := os.WriteFile(s.Path(), []byte("\n  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	known, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(known) != 0 {
		t.Errorf("Expected empty set, got %v", known)
	}
}

func TestAppendThenLoad(t *testing.T) {
	s := newTestStore(t, Options{})
	ids := []string{"abc12345678", "zzz98765432", "qqq11111111"}
	for _, id := range ids {
		s.Append(Record{ID: id, Title: "t-" + id})
	}
	known, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(known) != len(ids) {
		t.Fatalf("Expected %d ids, got %d", len(ids), len(known))
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			t.Errorf("Expected id %s in loaded set", id)
		}
	}
}

func TestAppendConcurrent(t *testing.T) {
	s := newTestStore(t, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append(Record{ID: strings.Repeat("x", i+1)})
		}(i)
	}
	wg.Wait()
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 50 {
		t.Fatalf("Expected 50 lines, got %d", len(lines))
	}
	for i, line := range lines {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i+1, err)
		}
	}
}

func TestLoadSkipsMalformedLine(t *testing.T) {
	s := newTestStore(t, Options{})
	os.MkdirAll(filepath.Dir(s.Path()), 0755)
	content := `{"id":"aaa"}` + "\n" + `{not json` + "\n" + `{"id":"bbb"}` + "\n"
	if err := os.WriteFile(s.Path(), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	known, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(known) != 2 {
		t.Errorf("Expected 2 ids, got %d", len(known))
	}
	if _, ok := known["bbb"]; !ok {
		t.Error("Expected id after malformed line to be loaded")
	}
}

func TestLoadStrictRejectsMalformedLine(t *testing.T) {
	s := newTestStore(t, Options{Strict: true})
	os.MkdirAll(filepath.Dir(s.Path()), 0755)
	if err := os.WriteFile(s.Path(), []byte("{\"id\":\"aaa\"}\n[broken\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := s.Load()
	if err == nil {
		t.Fatal("Expected error in strict mode, got nil")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected error to name line 2, got %v", err)
	}
}

func TestLoadMissingIDAndFallback(t *testing.T) {
	content := `{"title":"Legacy Show [01]","anime_series":"Legacy Show"}` + "\n"

	plain := newTestStore(t, Options{})
	os.MkdirAll(filepath.Dir(plain.Path()), 0755)
	os.WriteFile(plain.Path(), []byte(content), 0644)
	known, err := plain.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := known[""]; !ok || len(known) != 1 {
		t.Errorf("Expected only the empty id, got %v", known)
	}

	legacy := newTestStore(t, Options{FallbackKeys: []string{"title"}})
	os.MkdirAll(filepath.Dir(legacy.Path()), 0755)
	os.WriteFile(legacy.Path(), []byte(content), 0644)
	known, err = legacy.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := known["Legacy Show [01]"]; !ok {
		t.Errorf("Expected title fallback id, got %v", known)
	}
}

func TestRecordFlattensExtra(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	rec := Record{
		ID:           "abc12345678",
		Title:        "Song & Dance",
		Collection:   "Artist",
		DownloadedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, loc),
		Extra:        map[string]any{"artist_source": "channel", "id": "ignored"},
	}
	data, err := encodeLine(rec)
	if err != nil {
		t.Fatal(err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatal(err)
	}
	if obj["id"] != "abc12345678" {
		t.Errorf("Expected fixed id to win over extra, got %v", obj["id"])
	}
	if obj["artist_source"] != "channel" {
		t.Errorf("Expected flattened extra key, got %v", obj["artist_source"])
	}
	if obj["downloaded_at"] != "2025-01-02T03:04:05+08:00" {
		t.Errorf("Expected local-offset timestamp, got %v", obj["downloaded_at"])
	}
	if !strings.Contains(string(data), `Song & Dance`) {
		t.Errorf("Expected unescaped ampersand, got %s", data)
	}
}

func TestAppendUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	s := newTestStore(t, Options{Location: loc})
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	s.Append(Record{ID: "a"})
	scan, err := s.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(scan.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(scan.Records))
	}
	_, offset := scan.Records[0].DownloadedAt.Zone()
	if offset != -5*3600 {
		t.Errorf("Expected -05:00 offset, got %d", offset)
	}
}

func TestCompactAndSummarize(t *testing.T) {
	records := []Record{
		{ID: "a", Collection: "X", Title: "old"},
		{ID: "b", Collection: "Y"},
		{ID: "a", Collection: "X", Title: "new"},
	}
	out := Compact(records)
	if len(out) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(out))
	}
	if out[0].ID != "a" || out[0].Title != "new" {
		t.Errorf("Expected latest record for a first, got %+v", out[0])
	}
	st := Summarize(&ScanResult{Records: records, Malformed: []int{4}})
	if st.Records != 3 || st.UniqueIDs != 2 || st.Duplicates != 1 || st.Malformed != 1 {
		t.Errorf("Unexpected stats %+v", st)
	}
	if names := st.Collections(); len(names) != 2 || names[0] != "X" {
		t.Errorf("Expected collections [X Y], got %v", names)
	}
}

func TestWriteFileRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	if err := WriteFile(path, []Record{{ID: "a"}}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := WriteFile(path, []Record{{ID: "b"}}); err == nil {
		t.Error("Expected error writing over existing file, got nil")
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://my-bucket/backups/history.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "my-bucket" || key != "backups/history.jsonl" {
		t.Errorf("Expected my-bucket and backups/history.jsonl, got %s and %s", bucket, key)
	}
	for _, bad := range []string{"https://x/y", "s3://bucket", "s3:///key", "s3://bucket/dir/"} {
		if _, _, err := ParseS3URL(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestLoadSkipsOversizedLine(t *testing.T) {
	old := maxLineSize
	maxLineSize = 32
	t.Cleanup(func() { maxLineSize = old })

	s := newTestStore(t, Options{})
	os.MkdirAll(filepath.Dir(s.Path()), 0755)
	content := `{"id":"a"}` + "\n" + `{"id":"` + strings.Repeat("x", 100) + `"}` + "\n" + `{"id":"b"}`
	if err := os.WriteFile(s.Path(), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	known, err := s.Load()
	if err != nil {
		t.Fatalf("Expected lenient load to skip the long line, got %v", err)
	}
	if len(known) != 2 {
		t.Errorf("Expected ids a and b, got %v", known)
	}
	scan, err := s.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(scan.Records) != 2 || len(scan.Malformed) != 1 || scan.Malformed[0] != 2 {
		t.Errorf("Expected line 2 reported as malformed, got %+v", scan)
	}

	strict := NewStore(s.Path(), zerolog.Nop(), Options{Strict: true})
	if _, err := strict.Load(); err == nil {
		t.Error("Expected strict load to fail on the long line")
	}
}

func TestLoadLongLineWithinLimit(t *testing.T) {
	s := newTestStore(t, Options{})
	s.Append(Record{ID: "long", Title: strings.Repeat("t", 200*1024)})
	s.Append(Record{ID: "short"})
	known, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := known["long"]; !ok || len(known) != 2 {
		t.Errorf("Expected both ids loaded, got %d ids", len(known))
	}
}

func TestRecordReadsLegacyKeys(t *testing.T) {
	s := newTestStore(t, Options{FallbackKeys: []string{"title"}})
	os.MkdirAll(filepath.Dir(s.Path()), 0755)
	lines := `{"title":"Show [01]","anime_series":"Show","url":"https://anime1.me/1"}` + "\n" +
		`{"id":"abc12345678","artist":"Band","file_path":"/music/Band - One.m4a"}` + "\n" +
		`{"id":"zzz98765432","collection":"New","artist":"Old"}` + "\n"
	if err := os.WriteFile(s.Path(), []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}
	scan, err := s.Records()
	if err != nil {
		t.Fatal(err)
	}
	anime, music, both := scan.Records[0], scan.Records[1], scan.Records[2]
	if anime.ID != "Show [01]" || anime.Collection != "Show" || anime.SourceURL != "https://anime1.me/1" {
		t.Errorf("Expected legacy anime keys mapped, got %+v", anime)
	}
	if music.Collection != "Band" || music.OutputPath != "/music/Band - One.m4a" {
		t.Errorf("Expected legacy music keys mapped, got %+v", music)
	}
	if both.Collection != "New" {
		t.Errorf("Expected collection to win over artist, got %q", both.Collection)
	}
	if anime.Extra["anime_series"] != "Show" {
		t.Errorf("Expected legacy key kept in extras, got %v", anime.Extra)
	}
	if names := Summarize(scan).Collections(); len(names) != 3 {
		t.Errorf("Expected no (none) collection, got %v", names)
	}
}
