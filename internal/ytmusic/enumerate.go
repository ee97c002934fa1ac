package ytmusic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tanq16/utools/internal/batch"
	"github.com/tanq16/utools/internal/ytdlp"
)

// Enumerate flattens every URL (video, playlist or channel) into items in
// playlist order. A URL whose extraction fails is logged and contributes
// nothing.
func Enumerate(ctx context.Context, runner ytdlp.Runner, urls []string, log zerolog.Logger) []batch.Item {
	log = log.With().Str("op", "ytmusic/enumerate").Logger()
	var items []batch.Item
	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		log.Info().Str("url", url).Msg("extracting video information")
		info, err := flatInfo(ctx, runner, url)
		if err != nil {
			log.Error().Err(err).Str("url", url).Msg("failed to extract video info")
			continue
		}
		entries := []*videoInfo{info}
		if info.isPlaylist() {
			entries = info.Entries
		}
		for _, e := range entries {
			if e == nil {
				continue
			}
			if e.ID == "" {
				log.Warn().Str("url", url).Msg("skipping video without ID")
				continue
			}
			artist, _ := e.artist()
			items = append(items, batch.Item{
				ID:         e.ID,
				Title:      e.Title,
				Collection: artist,
				SourceURL:  url,
				Token:      e.ID,
			})
		}
	}
	log.Info().Int("videos", len(items)).Msg("enumeration finished")
	return items
}

func flatInfo(ctx context.Context, runner ytdlp.Runner, url string) (*videoInfo, error) {
	out, err := runner.Output(ctx, []string{"--flat-playlist", "-J", "--no-warnings", "--", url}, nil)
	if err != nil {
		return nil, err
	}
	var info videoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("error decoding yt-dlp output: %v", err)
	}
	return &info, nil
}

// fullInfo fetches the complete metadata of a single video without
// downloading it.
func fullInfo(ctx context.Context, runner ytdlp.Runner, id string) (*videoInfo, error) {
	out, err := runner.Output(ctx, []string{"-J", "--no-warnings", "--skip-download", "--", "https://music.youtube.com/watch?v=" + id}, nil)
	if err != nil {
		return nil, err
	}
	var info videoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("error decoding yt-dlp output: %v", err)
	}
	return &info, nil
}
