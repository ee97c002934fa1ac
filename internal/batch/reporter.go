package batch

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LogReporter writes dispatcher events to a zerolog logger.
type LogReporter struct {
	log     zerolog.Logger
	handles atomic.Int64
}

func NewLogReporter(log zerolog.Logger) *LogReporter {
	return &LogReporter{log: log.With().Str("op", "batch/reporter").Logger()}
}

func (r *LogReporter) Begin(item Item) int {
	r.log.Info().Str("id", item.ID).Str("title", item.Title).Msg("processing")
	return int(r.handles.Add(1))
}

func (r *LogReporter) Progress(_ int, line string) {
	r.log.Debug().Msg(line)
}

func (r *LogReporter) Succeed(_ int, item Item, result Result) {
	message := result.Message
	if message == "" {
		message = "completed"
	}
	r.log.Info().Str("id", item.ID).Str("title", item.Title).Bool("planned", result.Planned).Msg(message)
}

func (r *LogReporter) Fail(_ int, item Item, err error) {
	r.log.Error().Str("id", item.ID).Str("title", item.Title).Err(err).Msg("failed")
}

func (r *LogReporter) Skip(item Item) {
	r.log.Info().Str("id", item.ID).Str("title", item.Title).Msg("already in history, skipping")
}

func (r *LogReporter) Finish(summary *Summary) {
	r.log.Info().
		Int("downloaded", len(summary.Succeeded)).
		Int("skipped", len(summary.Skipped)).
		Int("failed", len(summary.Failed)).
		Int("planned", len(summary.Planned)).
		Msg("Summary: " + summary.String())
	for _, item := range summary.Failed {
		r.log.Error().Str("id", item.ID).Str("title", item.Title).Err(summary.Errors[item.ID]).Msg("failed item")
	}
}
