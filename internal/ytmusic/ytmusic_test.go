package ytmusic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/rs/zerolog"
	"github.com/tanq16/utools/internal/batch"
	"github.com/tanq16/utools/internal/ytdlp"
)

// scriptedRunner answers calls by matching the last argument. Stream emits
// the scripted output as a printed line.
type scriptedRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   [][]string
}

func (r *scriptedRunner) Stream(ctx context.Context, args []string, onLine func(string)) error {
	r.calls = append(r.calls, args)
	target := args[len(args)-1]
	if err := r.errs[target]; err != nil {
		return err
	}
	onLine("[download] 100% of 3.40MiB")
	if out, ok := r.outputs[target]; ok {
		onLine(ytdlp.PrintPrefix + strings.ReplaceAll(out, "\n", ""))
	}
	return nil
}

func (r *scriptedRunner) Output(ctx context.Context, args []string, onLine func(string)) ([]byte, error) {
	r.calls = append(r.calls, args)
	target := args[len(args)-1]
	if err := r.errs[target]; err != nil {
		return nil, err
	}
	return []byte(r.outputs[target]), nil
}

func TestExtractArtist(t *testing.T) {
	tests := []struct {
		artist, channel, uploader string
		want, source              string
	}{
		{"A", "C", "U", "A", "artist"},
		{"", "C", "U", "C", "channel"},
		{"", "", "U", "U", "uploader"},
		{"", "", "", "Unknown", "uploader"},
	}
	for _, tt := range tests {
		got, source := ExtractArtist(tt.artist, tt.channel, tt.uploader)
		if got != tt.want || source != tt.source {
			t.Errorf("ExtractArtist(%q,%q,%q): expected %s/%s, got %s/%s", tt.artist, tt.channel, tt.uploader, tt.want, tt.source, got, source)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[float64]string{
		225:      "0:03:45",
		3725:     "1:02:05",
		90061:    "1 day, 1:01:01",
		225.5:    "0:03:45.500000",
		2*86400 + 1: "2 days, 0:00:01",
	}
	for in, want := range tests {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%v): expected %q, got %q", in, want, got)
		}
	}
}

func TestExtractIDPriority(t *testing.T) {
	tags := Tags{
		"TXXX:purl":       {"https://www.youtube.com/watch?v=purlpurlpur"},
		"TXXX:youtube_id": {" direct12345 "},
	}
	if got := ExtractID(tags, false); got != "direct12345" {
		t.Errorf("Expected verbatim youtube_id, got %q", got)
	}

	tags = Tags{"©cmt": {"https://youtu.be/abc12345678"}}
	if got := ExtractID(tags, false); got != "abc12345678" {
		t.Errorf("Expected id from M4A comment, got %q", got)
	}

	tags = Tags{"TXXX:comment": {"no id here"}, "TIT2": {"https://youtube.com/shorts/zzz98765432"}}
	if got := ExtractID(tags, false); got != "" {
		t.Errorf("Expected no id without scan-all, got %q", got)
	}
	if got := ExtractID(tags, true); got != "zzz98765432" {
		t.Errorf("Expected id from full scan, got %q", got)
	}
}

func TestIDFromMP3File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	tag := id3v2.NewEmptyTag()
	tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: "purl",
		Value:       "https://www.youtube.com/watch?v=abc12345678",
	})
	if _, err := tag.WriteTo(f); err != nil {
		t.Fatal(err)
	}
	f.Write(make([]byte, 128))
	f.Close()

	if got := IDFromFile(path, false); got != "abc12345678" {
		t.Errorf("Expected id from TXXX:purl, got %q", got)
	}
}

func TestIDFromUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"broken.m4a", "notes.txt"} {
		path := filepath.Join(dir, name)
		os.WriteFile(path, []byte("garbage"), 0644)
		if got := IDFromFile(path, true); got != "" {
			t.Errorf("Expected no id for %s, got %q", name, got)
		}
	}
}

func TestEnumeratePlaylistAndSingle(t *testing.T) {
	runner := &scriptedRunner{
		outputs: map[string]string{
			"https://music.youtube.com/playlist?list=PL1": `{"_type":"playlist","entries":[{"id":"abc12345678","title":"One","channel":"Band"},null,{"title":"no id"},{"id":"zzz98765432","title":"Two"}]}`,
			"qqq11111111": `{"id":"qqq11111111","title":"Single","artist":"Solo"}`,
		},
		errs: map[string]error{"https://bad": errors.New("unavailable")},
	}
	items := Enumerate(context.Background(), runner, []string{"https://music.youtube.com/playlist?list=PL1", "https://bad", "qqq11111111"}, zerolog.Nop())
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	if strings.Join(ids, ",") != "abc12345678,zzz98765432,qqq11111111" {
		t.Errorf("Unexpected items %v", ids)
	}
	if items[0].Collection != "Band" || items[2].Collection != "Solo" {
		t.Errorf("Expected artists from flat entries, got %q and %q", items[0].Collection, items[2].Collection)
	}
}

const downloadJSON = `{"id":"abc12345678","title":"One","artist":"Band","extractor":"youtube",
"tags":["j-pop"],"duration":225,"album":"First","track":null,"release_date":"20240101","upload_date":"20240102",
"filepath":"/music/Band - One.m4a"}`

func TestDownloaderRecord(t *testing.T) {
	runner := &scriptedRunner{outputs: map[string]string{WatchURL("abc12345678"): downloadJSON}}
	d := NewDownloader(runner, Options{OutputDir: t.TempDir(), AudioFormat: "mp3", Metadata: true, Thumbnail: true}, zerolog.Nop())
	var progress []string
	res, err := d.Fetch(context.Background(), batch.Item{ID: "abc12345678", Title: "One", Collection: "Band"}, func(l string) { progress = append(progress, l) })
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(progress) != 1 || !strings.HasPrefix(progress[0], "[download] 100%") {
		t.Errorf("Expected only the progress line forwarded, got %v", progress)
	}
	rec := res.Record
	if rec == nil {
		t.Fatal("Expected a history record")
	}
	if rec.OutputPath != "/music/Band - One.m4a" || rec.Collection != "Band" {
		t.Errorf("Unexpected record %+v", rec)
	}
	if rec.Extra["duration"] != "0:03:45" || rec.Extra["artist_source"] != "artist" || rec.Extra["source"] != "youtube" {
		t.Errorf("Unexpected extras %v", rec.Extra)
	}
	args := strings.Join(runner.calls[0], " ")
	for _, want := range []string{"--no-simulate --print after_move:", "--audio-format mp3", "--embed-metadata", "--embed-thumbnail", "--retries 10"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected %q in args %q", want, args)
		}
	}
}

func TestDownloaderWithoutPrintedInfo(t *testing.T) {
	runner := &scriptedRunner{}
	d := NewDownloader(runner, Options{OutputDir: t.TempDir()}, zerolog.Nop())
	if _, err := d.Fetch(context.Background(), batch.Item{ID: "abc12345678", Title: "One"}, func(string) {}); err == nil {
		t.Error("Expected an error when yt-dlp prints no file info")
	}
}

func TestDownloaderFetchesMissingTitle(t *testing.T) {
	runner := &scriptedRunner{
		outputs: map[string]string{
			"https://music.youtube.com/watch?v=abc12345678": `{"id":"abc12345678","title":"Fetched","uploader":"Up"}`,
		},
	}
	d := NewDownloader(runner, Options{OutputDir: t.TempDir(), DryRun: true}, zerolog.Nop())
	res, err := d.Fetch(context.Background(), batch.Item{ID: "abc12345678"}, func(string) {})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Planned || res.Message != "Would download: Up - Fetched" {
		t.Errorf("Expected dry-run message, got %+v", res)
	}
}

func TestDownloaderMetadataFailure(t *testing.T) {
	runner := &scriptedRunner{errs: map[string]error{"https://music.youtube.com/watch?v=abc12345678": errors.New("private video")}}
	d := NewDownloader(runner, Options{OutputDir: t.TempDir()}, zerolog.Nop())
	if _, err := d.Fetch(context.Background(), batch.Item{ID: "abc12345678"}, func(string) {}); err == nil {
		t.Error("Expected metadata failure to fail the item")
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "sub", "untagged.m4a"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("x"), 0644)

	report, err := Verify(dir, map[string]struct{}{}, false, zerolog.Nop())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if report.Scanned != 1 || len(report.WithoutID) != 1 || report.WithoutID[0] != "untagged.m4a" {
		t.Errorf("Unexpected report %+v", report)
	}

	if _, err := Verify(filepath.Join(dir, "missing"), nil, false, zerolog.Nop()); !errors.Is(err, ErrNoBackupDir) {
		t.Errorf("Expected ErrNoBackupDir, got %v", err)
	}
}

func TestParseMigrateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloaded.txt")
	content := "youtube abc12345678\n\nsoundcloud 123\nyoutube zzz98765432\nyoutube a b\n"
	os.WriteFile(path, []byte(content), 0644)
	ids, err := ParseMigrateFile(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(ids, ",") != "abc12345678,zzz98765432" {
		t.Errorf("Expected two valid ids, got %v", ids)
	}
}
