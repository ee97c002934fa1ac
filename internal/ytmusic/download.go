package ytmusic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/tanq16/utools/internal/batch"
	"github.com/tanq16/utools/internal/history"
	"github.com/tanq16/utools/internal/ytdlp"
)

type Options struct {
	OutputDir string
	// AudioFormat "best" keeps the downloaded stream; anything else is passed
	// to --audio-format.
	AudioFormat string
	Quality     string
	Thumbnail   bool
	Metadata    bool
	DryRun      bool
}

// Downloader is the batch fetcher for music items.
type Downloader struct {
	runner ytdlp.Runner
	opts   Options
	log    zerolog.Logger
}

func NewDownloader(runner ytdlp.Runner, opts Options, log zerolog.Logger) *Downloader {
	if opts.AudioFormat == "" {
		opts.AudioFormat = "best"
	}
	if opts.Quality == "" {
		opts.Quality = "bestaudio/best"
	}
	return &Downloader{
		runner: runner,
		opts:   opts,
		log:    log.With().Str("op", "ytmusic/download").Logger(),
	}
}

// infoTemplate prints the fields the history record needs as one JSON line.
const infoTemplate = "%(.{id,title,artist,channel,uploader,extractor,tags,duration,album,track,release_date,upload_date,filepath})j"

func (d *Downloader) args(id string) []string {
	args := []string{
		"--newline",
		"--progress",
		"--no-warnings",
		"-f", d.opts.Quality,
		"-o", filepath.Join(d.opts.OutputDir, "%(artist,channel,uploader)s - %(title)s.%(ext)s"),
		"--retries", "10",
		"--fragment-retries", "10",
		"--extractor-args", "youtube:lang=ja",
		"--no-playlist",
	}
	if d.opts.AudioFormat != "best" {
		args = append(args, "-x", "--audio-format", d.opts.AudioFormat, "--audio-quality", "0")
	}
	if d.opts.Metadata {
		args = append(args, "--embed-metadata", "--embed-chapters")
	}
	if d.opts.Thumbnail {
		args = append(args, "--embed-thumbnail")
	}
	args = append(args, ytdlp.PrintAfterMove(infoTemplate)...)
	return append(args, "--", WatchURL(id))
}

func (d *Downloader) Fetch(ctx context.Context, item batch.Item, progress batch.Progress) (batch.Result, error) {
	title, artist := item.Title, item.Collection
	artistSource := ""
	if title == "" {
		progress("fetching metadata")
		info, err := fullInfo(ctx, d.runner, item.ID)
		if err != nil {
			return batch.Result{}, fmt.Errorf("failed to get info for video %s: %w", item.ID, err)
		}
		title = info.Title
		artist, artistSource = info.artist()
	}
	if title == "" {
		title = "Unknown"
	}
	if artist == "" {
		artist = "Unknown"
	}
	log := d.log.With().Str("id", item.ID).Str("title", title).Logger()

	if d.opts.DryRun {
		msg := fmt.Sprintf("Would download: %s - %s", artist, title)
		log.Info().Msg(msg)
		return batch.Result{Planned: true, Message: msg}, nil
	}

	if err := os.MkdirAll(d.opts.OutputDir, 0755); err != nil {
		return batch.Result{}, fmt.Errorf("error creating output directory: %v", err)
	}
	log.Info().Msgf("Downloading: %s - %s", artist, title)
	printed, err := ytdlp.StreamPrinted(ctx, d.runner, d.args(item.ID), func(line string) { progress(line) })
	if err != nil {
		return batch.Result{}, err
	}
	if len(printed) == 0 {
		return batch.Result{}, fmt.Errorf("yt-dlp reported no downloaded file for %s", item.ID)
	}
	var info videoInfo
	if err := json.Unmarshal([]byte(printed[len(printed)-1]), &info); err != nil {
		return batch.Result{}, fmt.Errorf("error decoding yt-dlp output: %v", err)
	}
	if info.Title != "" {
		title = info.Title
	}
	artist, artistSource = info.artist()
	if artistSource == "uploader" && info.Uploader == "" && item.Collection != "" {
		artist = item.Collection
	}
	filePath := fmt.Sprintf("%s - %s.%s", artist, title, d.opts.AudioFormat)
	if info.Filepath != "" {
		filePath = info.Filepath
	}
	source := info.Extractor
	if source == "" {
		source = "youtube"
	}
	tags := info.Tags
	if tags == nil {
		tags = []string{}
	}
	var duration any
	if info.Duration != nil {
		duration = FormatDuration(*info.Duration)
	}

	rec := &history.Record{
		ID:         item.ID,
		Title:      title,
		Collection: artist,
		SourceURL:  WatchURL(item.ID),
		OutputPath: filePath,
		Extra: map[string]any{
			"artist":        artist,
			"artist_source": artistSource,
			"source":        source,
			"file_path":     filePath,
			"tags":          tags,
			"duration":      duration,
			"album":         info.Album,
			"track":         info.Track,
			"release_date":  info.ReleaseDate,
			"upload_date":   info.UploadDate,
		},
	}
	msg := fmt.Sprintf("Downloaded: %s - %s", artist, title)
	log.Info().Str("path", filePath).Msg(msg)
	return batch.Result{Record: rec, Message: msg}, nil
}
