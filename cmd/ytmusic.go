package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/utools/internal/batch"
	"github.com/tanq16/utools/internal/ytdlp"
	"github.com/tanq16/utools/internal/ytmusic"
)

type ytmusicFlags struct {
	outputDir   string
	format      string
	quality     string
	historyFile string
	dryRun      bool
	noThumbnail bool
	noMetadata  bool
	force       bool
	workers     int
}

func newYTMusicCmd() *cobra.Command {
	var flags ytmusicFlags
	cmd := &cobra.Command{
		Use:   "ytmusic",
		Short: "Download YouTube Music tracks and keep the library in sync with the history",
	}
	cmd.PersistentFlags().StringVar(&flags.historyFile, "history", "", "History file (default YTMUSIC_HISTORY_FILE)")
	cmd.AddCommand(newYTMusicDownloadCmd(&flags))
	cmd.AddCommand(newYTMusicVerifyCmd(&flags))
	cmd.AddCommand(newYTMusicExtractIDCmd())
	cmd.AddCommand(newYTMusicMigrateCmd(&flags))
	return cmd
}

func registerDownloadFlags(cmd *cobra.Command, flags *ytmusicFlags) {
	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", "", "Download directory (default YTMUSIC_DOWNLOAD_DIR)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "best", "Audio format passed to yt-dlp, best keeps the source stream")
	cmd.Flags().StringVarP(&flags.quality, "quality", "q", "bestaudio/best", "yt-dlp format selector")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "List what would be downloaded")
	cmd.Flags().BoolVar(&flags.noThumbnail, "no-thumbnail", false, "Do not embed the thumbnail")
	cmd.Flags().BoolVar(&flags.noMetadata, "no-metadata", false, "Do not embed metadata and chapters")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Download tracks already in the history")
	cmd.Flags().IntVarP(&flags.workers, "workers", "j", 0, "Concurrent downloads (default YTMUSIC_MAX_CONCURRENT_DOWNLOADS)")
}

func newYTMusicDownloadCmd(flags *ytmusicFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download URL...",
		Short: "Download tracks, playlists or albums",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner, err := newRunner(ctx)
			if err != nil {
				return err
			}
			items := ytmusic.Enumerate(ctx, runner, args, log)
			if len(items) == 0 {
				log.Warn().Msg("no downloadable items found")
				return nil
			}
			summary, err := downloadMusic(ctx, runner, items, flags)
			if err != nil {
				return err
			}
			if len(items) == 1 && len(summary.Failed) == 1 {
				return summary.Errors[items[0].ID]
			}
			return nil
		},
	}
	registerDownloadFlags(cmd, flags)
	return cmd
}

func downloadMusic(ctx context.Context, runner ytdlp.Runner, items []batch.Item, flags *ytmusicFlags) (*batch.Summary, error) {
	store, err := newStore(orDefault(flags.historyFile, cfg.YTMusic.HistoryFile))
	if err != nil {
		return nil, err
	}
	downloader := ytmusic.NewDownloader(runner, ytmusic.Options{
		OutputDir:   orDefault(flags.outputDir, cfg.YTMusic.DownloadDir),
		AudioFormat: flags.format,
		Quality:     flags.quality,
		Thumbnail:   !flags.noThumbnail,
		Metadata:    !flags.noMetadata,
		DryRun:      flags.dryRun,
	}, log)
	d := batch.Dispatcher{
		Workers:  orDefault(flags.workers, cfg.YTMusic.MaxConcurrentDownloads),
		Fetcher:  downloader,
		Store:    store,
		Force:    flags.force,
		Reporter: newReporter(),
		Log:      log,
	}
	return d.Run(ctx, items)
}

func idItems(ids []string) []batch.Item {
	items := make([]batch.Item, len(ids))
	for i, id := range ids {
		items[i] = batch.Item{ID: id}
	}
	return items
}

func newYTMusicVerifyCmd(flags *ytmusicFlags) *cobra.Command {
	var backupDir string
	var scanAll, downloadMissing bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Find audio files whose id is missing from the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			historyFile := orDefault(flags.historyFile, cfg.YTMusic.HistoryFile)
			store, err := newStore(historyFile)
			if err != nil {
				return err
			}
			if _, err := os.Stat(historyFile); os.IsNotExist(err) {
				log.Warn().Str("file", historyFile).Msg("history file not found, every file will be reported")
			}
			known, err := store.Load()
			if err != nil {
				return err
			}
			log.Info().Int("ids", len(known)).Msg("loaded history")

			report, err := ytmusic.Verify(orDefault(backupDir, cfg.YTMusic.DownloadDir), known, scanAll, log)
			if err != nil {
				return err
			}
			if report.Scanned == 0 {
				log.Warn().Msg("no audio files found")
				return nil
			}
			for _, name := range report.WithoutID {
				log.Debug().Str("file", name).Msg("no id in tags")
			}
			for _, m := range report.Missing {
				log.Warn().Str("id", m.ID).Str("file", m.Name).Msg("missing from history")
			}
			log.Info().
				Int("scanned", report.Scanned).
				Int("missing", len(report.Missing)).
				Int("without_id", len(report.WithoutID)).
				Msg("verification complete")
			if !downloadMissing || len(report.Missing) == 0 {
				return nil
			}
			log.Info().Int("ids", len(report.Missing)).Msg("downloading missing ids")
			runner, err := newRunner(cmd.Context())
			if err != nil {
				return err
			}
			_, err = downloadMusic(cmd.Context(), runner, idItems(report.MissingIDs()), flags)
			return err
		},
	}
	cmd.Flags().StringVarP(&backupDir, "backup-dir", "b", "", "Library folder to scan (default YTMUSIC_DOWNLOAD_DIR)")
	cmd.Flags().BoolVarP(&scanAll, "scan-all", "s", false, "Search every tag for an id when the usual tags have none")
	cmd.Flags().BoolVarP(&downloadMissing, "download-missing", "d", false, "Download the ids that are missing from the history")
	registerDownloadFlags(cmd, flags)
	return cmd
}

func newYTMusicExtractIDCmd() *cobra.Command {
	var scanAll bool
	cmd := &cobra.Command{
		Use:   "extract-id FILE",
		Short: "Print the video id embedded in an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ytmusic.IDFromFile(args[0], scanAll)
			if id == "" {
				return fmt.Errorf("no video id found in %s", args[0])
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&scanAll, "scan-all", "s", false, "Search every tag for an id")
	return cmd
}

func newYTMusicMigrateCmd(flags *ytmusicFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate FILE",
		Short: "Download every id of a \"youtube <id>\" archive file into the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := ytmusic.ParseMigrateFile(args[0], log)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				log.Warn().Str("file", args[0]).Msg("no ids to migrate")
				return nil
			}
			log.Info().Int("ids", len(ids)).Msg("migrating")
			runner, err := newRunner(cmd.Context())
			if err != nil {
				return err
			}
			_, err = downloadMusic(cmd.Context(), runner, idItems(ids), flags)
			return err
		},
	}
	registerDownloadFlags(cmd, flags)
	return cmd
}
