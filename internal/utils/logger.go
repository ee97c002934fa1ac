package utils

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

type LoggerConfig struct {
	Level   zerolog.Level // console threshold
	Console io.Writer     // nil disables console output
	File    io.Writer     // receives JSON lines at every level
}

// NewLogger builds the single logger of an invocation. Components receive it
// (or a child of it) through their constructors.
func NewLogger(cfg LoggerConfig) zerolog.Logger {
	level := cfg.Level
	var writers []io.Writer
	if cfg.Console != nil {
		console := zerolog.ConsoleWriter{
			Out:        cfg.Console,
			TimeFormat: time.DateTime,
		}
		writers = append(writers, &levelFilter{w: console, min: level})
	}
	if cfg.File != nil {
		writers = append(writers, cfg.File)
		level = zerolog.DebugLevel
	}
	if len(writers) == 0 {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
}

type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f *levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
