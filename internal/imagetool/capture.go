package imagetool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"

	"golang.org/x/term"
)

// ErrCameraDevice is returned on Windows when no DirectShow device name is
// given; dshow cannot open a camera by index alone.
var ErrCameraDevice = errors.New("a DirectShow camera name is required (list them with: ffmpeg -list_devices true -f dshow -i dummy)")

// cameraInput returns the ffmpeg input arguments for a camera on goos. A
// non-empty device replaces the index-derived input: a device path on Linux,
// a device name on macOS and Windows. On Windows index picks among devices
// sharing that name.
func cameraInput(goos string, index int, device string) ([]string, error) {
	switch goos {
	case "darwin":
		if device == "" {
			device = strconv.Itoa(index)
		}
		return []string{"-f", "avfoundation", "-framerate", "30", "-i", device}, nil
	case "windows":
		if device == "" {
			return nil, ErrCameraDevice
		}
		return []string{"-f", "dshow", "-video_device_number", strconv.Itoa(index), "-i", "video=" + device}, nil
	default:
		if device == "" {
			device = fmt.Sprintf("/dev/video%d", index)
		}
		return []string{"-f", "v4l2", "-i", device}, nil
	}
}

// Capture reads single key presses from in: 's' saves a still from the
// camera as NN.jpg in saveDir, 'q' quits. It returns the saved paths.
func (t *Tool) Capture(ctx context.Context, camera int, device, saveDir string, in *os.File) ([]string, error) {
	log := t.log.With().Str("op", "imagetool/capture").Logger()
	input, err := cameraInput(runtime.GOOS, camera, device)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(saveDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating %s: %v", saveDir, err)
	}
	if term.IsTerminal(int(in.Fd())) {
		state, err := term.MakeRaw(int(in.Fd()))
		if err != nil {
			return nil, fmt.Errorf("error entering raw mode: %v", err)
		}
		defer term.Restore(int(in.Fd()), state)
	}
	log.Info().Msg("Press 's' to save an image, 'q' to quit.")
	save := func(path string) error {
		args := append(slices.Clone(input), "-frames:v", "1", "-y", path)
		_, err := t.exec(ctx, t.FFmpeg, append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)
		return err
	}
	saved, err := captureLoop(ctx, in, saveDir, save)
	for _, p := range saved {
		log.Info().Str("file", p).Msg("saved")
	}
	return saved, err
}

func captureLoop(ctx context.Context, r io.Reader, saveDir string, save func(string) error) ([]string, error) {
	br := bufio.NewReader(r)
	var saved []string
	counter := 1
	for {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		b, err := br.ReadByte()
		if err == io.EOF {
			return saved, nil
		}
		if err != nil {
			return saved, err
		}
		switch b {
		case 's', 'S':
			path := filepath.Join(saveDir, fmt.Sprintf("%02d.jpg", counter))
			if err := save(path); err != nil {
				return saved, fmt.Errorf("could not capture from camera: %w", err)
			}
			saved = append(saved, path)
			counter++
		case 'q', 'Q', 3: // ctrl-c arrives as a byte in raw mode
			return saved, nil
		}
	}
}
