package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/utools/internal/anime1"
	"github.com/tanq16/utools/internal/batch"
	"github.com/tanq16/utools/internal/history"
	"github.com/tanq16/utools/internal/utils"
	"github.com/tanq16/utools/internal/ytdlp"
)

type anime1Flags struct {
	extract     bool
	clearance   string
	userAgent   string
	outputDir   string
	workers     int
	historyFile string
	force       bool
	noHistory   bool
	headers     []string
}

func newAnime1Cmd() *cobra.Command {
	var flags anime1Flags
	cmd := &cobra.Command{
		Use:   "anime1 URL",
		Short: "Download every episode listed on an anime1.me page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnime1(cmd.Context(), []anime1.BatchEntry{{Link: args[0]}}, &flags)
		},
	}
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&flags.extract, "extract", "x", false, "Resolve sources and log them without downloading")
	pf.StringVar(&flags.clearance, "cloudflare", "", "cf_clearance cookie value (requires --user-agent)")
	pf.StringVar(&flags.userAgent, "user-agent", "", "User agent of the browser that obtained cf_clearance")
	pf.StringVarP(&flags.outputDir, "output", "o", "", "Download directory (default ANIME1_DOWNLOAD_DIR)")
	pf.IntVarP(&flags.workers, "workers", "j", 0, "Concurrent downloads (default ANIME1_MAX_CONCURRENT_DOWNLOADS)")
	pf.StringVar(&flags.historyFile, "history", "", "History file (default ANIME1_HISTORY_FILE)")
	pf.BoolVar(&flags.force, "force", false, "Download episodes already in the history")
	pf.BoolVar(&flags.noHistory, "no-history", false, "Neither read nor write the history")
	pf.StringArrayVarP(&flags.headers, "header", "H", []string{}, "Extra page request header (like 'Referer: https://anime1.me'); can be repeated")

	cmd.AddCommand(newAnime1BatchCmd(&flags))
	return cmd
}

func newAnime1BatchCmd(flags *anime1Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "batch FILE.yaml",
		Short: "Download several anime1.me pages listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := anime1.LoadBatchFile(args[0])
			if err != nil {
				return err
			}
			return runAnime1(cmd.Context(), entries, flags)
		},
	}
}

func runAnime1(ctx context.Context, entries []anime1.BatchEntry, flags *anime1Flags) error {
	client, err := anime1.NewClient(anime1.Options{
		UserAgent: flags.userAgent,
		Clearance: flags.clearance,
		APIURL:    cfg.Anime.APIURL,
		HTTP:      baseHTTPConfig(),
		Headers:   utils.ParseHeaderArgs(flags.headers),
	}, log)
	if err != nil {
		return err
	}

	var runner ytdlp.Runner
	if !flags.extract {
		if runner, err = newRunner(ctx); err != nil {
			return err
		}
	}

	var store *history.Store
	if !flags.noHistory {
		// older history files carry only the episode title
		if store, err = newStore(orDefault(flags.historyFile, cfg.Anime.HistoryFile), "title"); err != nil {
			return err
		}
	}

	var failed int
	for _, entry := range entries {
		series, items, err := client.Enumerate(ctx, entry.Link)
		if err != nil {
			if len(entries) == 1 {
				return err
			}
			log.Error().Err(err).Str("url", entry.Link).Msg("skipping page")
			failed++
			continue
		}
		outputDir := orDefault(entry.OutputDir, orDefault(flags.outputDir, cfg.Anime.DownloadDir))
		fetcher := anime1.NewFetcher(client, runner, outputDir, flags.extract, log)
		log.Info().Str("series", series).Int("episodes", len(items)).Str("dir", fetcher.SeriesDir(series)).Msg("found episodes")

		d := batch.Dispatcher{
			Workers:  orDefault(flags.workers, cfg.Anime.MaxConcurrentDownloads),
			Fetcher:  fetcher,
			Store:    store,
			Force:    flags.force,
			Reporter: newReporter(),
			Log:      log,
		}
		if _, err := d.Run(ctx, items); err != nil {
			return err
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d pages", anime1.ErrEnumeration, failed, len(entries))
	}
	return nil
}
