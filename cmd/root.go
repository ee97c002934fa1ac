package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tanq16/utools/internal/batch"
	"github.com/tanq16/utools/internal/config"
	"github.com/tanq16/utools/internal/history"
	"github.com/tanq16/utools/internal/output"
	"github.com/tanq16/utools/internal/utils"
	"github.com/tanq16/utools/internal/ytdlp"
)

var (
	debug   bool
	logFile string
	live    bool
	envFile string
	strict  bool

	cfg     *config.Config
	log     zerolog.Logger
	logSink io.Closer
)

var UtoolsVersion = "dev"

var rootCmd = &cobra.Command{
	Use:               "utools",
	Short:             "Downloaders, converters and media helpers with shared download history",
	Version:           UtoolsVersion,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			logSink.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, output.FError("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (default LOG_FILE)")
	rootCmd.PersistentFlags().BoolVar(&live, "live", false, "Show a live progress view instead of console logs")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict-history", false, "Fail on malformed history lines instead of skipping them (default HISTORY_STRICT)")

	rootCmd.AddCommand(newAnime1Cmd())
	rootCmd.AddCommand(newYTMusicCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newCConvCmd())
	rootCmd.AddCommand(newImageCmd())
	rootCmd.AddCommand(newCleanCmd())
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(envFile)
	if err != nil {
		return err
	}
	if logFile == "" {
		logFile = cfg.LogFile
	}
	var file io.Writer
	if logFile != "" {
		if err := utils.EnsureDir(filepath.Dir(logFile)); err != nil {
			return err
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("error opening log file: %v", err)
		}
		logSink = f
		file = f
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	if debug {
		level = zerolog.DebugLevel
	}
	liveFallback := live && !output.IsTerminal()
	if liveFallback {
		live = false
	}
	var console io.Writer = os.Stderr
	if live {
		console = nil
	}
	log = utils.NewLogger(utils.LoggerConfig{
		Level:   level,
		Console: console,
		File:    file,
	}).With().Str("run", uuid.NewString()).Logger()
	if liveFallback {
		log.Warn().Msg("stdout is not a terminal, using log output instead of --live")
	}
	log.Debug().Str("command", cmd.CommandPath()).Msg("starting")
	return nil
}

// baseHTTPConfig carries the connection settings every client shares.
func baseHTTPConfig() utils.HTTPClientConfig {
	return utils.HTTPClientConfig{
		Timeout:       cfg.HTTPTimeout,
		KATimeout:     cfg.KeepAliveTimeout,
		ProxyURL:      cfg.Proxy,
		ProxyUsername: cfg.ProxyUsername,
		ProxyPassword: cfg.ProxyPassword,
	}
}

func newHTTPClient() *utils.HTTPClient {
	hc := baseHTTPConfig()
	switch cfg.UserAgent {
	case "":
		hc.UserAgent = utils.ToolUserAgent
	case "randomize":
		hc.UserAgent = utils.GetRandomUserAgent()
	default:
		hc.UserAgent = cfg.UserAgent
	}
	return utils.NewHTTPClient(hc)
}

// newRunner locates yt-dlp (downloading it when missing) and ffmpeg.
func newRunner(ctx context.Context) (*ytdlp.Exec, error) {
	path, err := ytdlp.EnsureYtdlp(ctx, newHTTPClient())
	if err != nil {
		return nil, err
	}
	ffmpeg, err := ytdlp.EnsureFFmpeg()
	if err != nil {
		log.Warn().Err(err).Msg("continuing without ffmpeg, merging and conversion may fail")
	}
	return ytdlp.New(path, ffmpeg, log), nil
}

func newStore(path string, fallbackKeys ...string) (*history.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return history.NewStore(path, log, history.Options{
		Strict:       strict || cfg.HistoryStrict,
		FallbackKeys: fallbackKeys,
		Location:     loc,
	}), nil
}

// newReporter returns the live view with --live and nil otherwise, which
// makes the dispatcher log progress.
func newReporter() batch.Reporter {
	if live {
		return output.NewLiveReporter(os.Stdout)
	}
	return nil
}

func orDefault[T comparable](value, fallback T) T {
	var zero T
	if value == zero {
		return fallback
	}
	return value
}
