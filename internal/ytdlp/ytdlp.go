// Package ytdlp runs the yt-dlp binary.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Runner executes yt-dlp. Stream forwards every output line; Output returns
// stdout whole (for -J) and forwards stderr lines.
type Runner interface {
	Stream(ctx context.Context, args []string, onLine func(string)) error
	Output(ctx context.Context, args []string, onLine func(string)) ([]byte, error)
}

type Exec struct {
	Path       string
	FFmpegPath string
	log        zerolog.Logger
}

func New(path, ffmpegPath string, log zerolog.Logger) *Exec {
	return &Exec{
		Path:       path,
		FFmpegPath: ffmpegPath,
		log:        log.With().Str("op", "ytdlp/exec").Logger(),
	}
}

func (e *Exec) command(ctx context.Context, args []string) *exec.Cmd {
	full := make([]string, 0, len(args)+2)
	if e.FFmpegPath != "" {
		full = append(full, "--ffmpeg-location", e.FFmpegPath)
	}
	full = append(full, args...)
	cmd := exec.CommandContext(ctx, e.Path, full...)
	e.log.Debug().Msgf("Executing yt-dlp command: %s", cmd.String())
	return cmd
}

func (e *Exec) Stream(ctx context.Context, args []string, onLine func(string)) error {
	cmd := e.command(ctx, args)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("error creating stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("error creating stderr pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting yt-dlp: %v", err)
	}
	tail := &tailBuffer{max: 5}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); processStream(stdout, onLine, nil) }()
	go func() { defer wg.Done(); processStream(stderr, onLine, tail) }()
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		return commandError(ctx, err, tail)
	}
	return nil
}

func (e *Exec) Output(ctx context.Context, args []string, onLine func(string)) ([]byte, error) {
	cmd := e.command(ctx, args)
	var out bytes.Buffer
	cmd.Stdout = &out
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting yt-dlp: %v", err)
	}
	tail := &tailBuffer{max: 5}
	processStream(stderr, onLine, tail)
	if err := cmd.Wait(); err != nil {
		return nil, commandError(ctx, err, tail)
	}
	return out.Bytes(), nil
}

func commandError(ctx context.Context, err error, tail *tailBuffer) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("yt-dlp interrupted: %w", ctxErr)
	}
	if msg := tail.String(); msg != "" {
		return fmt.Errorf("yt-dlp failed: %v: %s", err, msg)
	}
	return fmt.Errorf("yt-dlp failed: %v", err)
}

func processStream(reader io.Reader, onLine func(string), tail *tailBuffer) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if tail != nil {
			tail.add(line)
		}
		if onLine != nil {
			onLine(line)
		}
	}
}

// tailBuffer keeps the last max lines of stderr for error messages.
type tailBuffer struct {
	lines []string
	max   int
}

func (t *tailBuffer) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	var errs []string
	for _, l := range t.lines {
		if strings.HasPrefix(l, "ERROR:") {
			errs = append(errs, l)
		}
	}
	if len(errs) > 0 {
		return strings.Join(errs, "; ")
	}
	return strings.Join(t.lines, "; ")
}
