// Package imagetool extracts video frames, captures camera stills and
// marks coordinates on images.
package imagetool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrTooShort is returned when the requested time is past the end of the video.
var ErrTooShort = errors.New("video is shorter than requested time")

// Exec runs an external binary and returns its stdout.
type Exec func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s failed: %v: %s", filepath.Base(name), err, msg)
		}
		return nil, fmt.Errorf("%s failed: %v", filepath.Base(name), err)
	}
	return out, nil
}

type Tool struct {
	FFmpeg  string
	FFprobe string
	exec    Exec
	log     zerolog.Logger
}

func New(ffmpeg, ffprobe string, log zerolog.Logger) *Tool {
	return &Tool{
		FFmpeg:  ffmpeg,
		FFprobe: ffprobe,
		exec:    runCommand,
		log:     log.With().Str("op", "imagetool/frame").Logger(),
	}
}

// Duration probes the container duration of video in seconds.
func (t *Tool) Duration(ctx context.Context, video string) (float64, error) {
	out, err := t.exec(ctx, t.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		video,
	)
	if err != nil {
		return 0, fmt.Errorf("could not open video %s: %w", video, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("could not read duration of %s: %w", video, err)
	}
	return d, nil
}

// Frame saves the frame at seconds into outputDir as frame_at_<seconds>s.jpg.
func (t *Tool) Frame(ctx context.Context, video string, seconds int, outputDir string) (string, error) {
	if seconds < 0 {
		return "", fmt.Errorf("invalid time %d", seconds)
	}
	duration, err := t.Duration(ctx, video)
	if err != nil {
		return "", err
	}
	if float64(seconds) >= duration {
		return "", fmt.Errorf("%w: %d seconds (duration %.2fs)", ErrTooShort, seconds, duration)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("error creating %s: %v", outputDir, err)
	}
	output := filepath.Join(outputDir, fmt.Sprintf("frame_at_%ds.jpg", seconds))
	t.log.Debug().Str("video", video).Int("seconds", seconds).Msg("extracting frame")
	_, err = t.exec(ctx, t.FFmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.Itoa(seconds),
		"-i", video,
		"-frames:v", "1",
		"-q:v", "2",
		output,
	)
	if err != nil {
		return "", fmt.Errorf("could not read frame at %d seconds: %w", seconds, err)
	}
	return output, nil
}
