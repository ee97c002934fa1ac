package anime1

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tanq16/utools/internal/batch"
	"github.com/tanq16/utools/internal/history"
	"github.com/tanq16/utools/internal/utils"
	"github.com/tanq16/utools/internal/ytdlp"
)

// Fetcher resolves each episode and hands the stream to yt-dlp. With Extract
// set it only logs what would be downloaded.
type Fetcher struct {
	client    *Client
	runner    ytdlp.Runner
	outputDir string
	extract   bool
	log       zerolog.Logger
}

func NewFetcher(client *Client, runner ytdlp.Runner, outputDir string, extract bool, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		client:    client,
		runner:    runner,
		outputDir: outputDir,
		extract:   extract,
		log:       log.With().Str("op", "anime1/fetcher").Logger(),
	}
}

// SeriesDir is where episodes of series are written.
func (f *Fetcher) SeriesDir(series string) string {
	return filepath.Join(f.outputDir, utils.SanitizeFilename(series))
}

func (f *Fetcher) Fetch(ctx context.Context, item batch.Item, progress batch.Progress) (batch.Result, error) {
	log := f.log.With().Str("id", item.ID).Str("title", item.Title).Logger()
	log.Info().Msg("start processing")
	progress("resolving source")
	src, err := f.client.Resolve(ctx, item.Token)
	if err != nil {
		return batch.Result{}, err
	}
	cookie, err := src.CookieHeader()
	if err != nil {
		return batch.Result{}, err
	}
	dir := f.SeriesDir(item.Collection)
	name := episodeFilename(item.Title)

	if f.extract {
		log.Info().
			Str("source", src.URL).
			Str("cookie", cookie).
			Str("expected_path", filepath.Join(dir, name)+".").
			Msg("information extracted")
		return batch.Result{Planned: true, Message: "extracted " + src.URL}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return batch.Result{}, fmt.Errorf("error creating output directory: %v", err)
	}
	args := []string{
		"--newline",
		"--progress",
		"--no-warnings",
		"--concurrent-fragments", "32",
		"--add-header", "Cookie:" + cookie,
		"--paths", "home:" + dir,
		"-o", strings.ReplaceAll(name, "%", "%%") + ".%(ext)s",
	}
	args = append(args, ytdlp.PrintAfterMove("%(filepath)s")...)
	args = append(args, src.URL)
	if f.log.GetLevel() <= zerolog.DebugLevel {
		args = append([]string{"--verbose"}, args...)
	}
	progress("downloading")
	printed, err := ytdlp.StreamPrinted(ctx, f.runner, args, func(line string) { progress(line) })
	if err != nil {
		return batch.Result{}, err
	}
	var outputPath string
	if len(printed) > 0 {
		outputPath = strings.TrimSpace(printed[len(printed)-1])
	}
	if outputPath == "" {
		outputPath = filepath.Join(dir, name)
	}
	log.Info().Str("path", outputPath).Msg("download complete")
	return batch.Result{
		Record: &history.Record{
			ID:         item.ID,
			Title:      item.Title,
			Collection: item.Collection,
			SourceURL:  item.SourceURL,
			OutputPath: outputPath,
		},
		Message: "downloaded " + filepath.Base(outputPath),
	}, nil
}

// episodeFilename replaces path separators in an episode title.
func episodeFilename(title string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(title)
}
