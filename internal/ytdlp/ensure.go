package ytdlp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/tanq16/utools/internal/utils"
)

const releaseURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/%s"

// EnsureYtdlp finds yt-dlp on PATH or next to the executable, and otherwise
// downloads the release binary into the scratch dir.
func EnsureYtdlp(ctx context.Context, client utils.HTTPDoer) (string, error) {
	if path, ok := findBinary("yt-dlp"); ok {
		return path, nil
	}
	cached := filepath.Join(utils.TempDirName, exeName("yt-dlp"))
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}
	return downloadYtdlp(ctx, client, cached)
}

func EnsureFFmpeg() (string, error) {
	if path, ok := findBinary("ffmpeg"); ok {
		return path, nil
	}
	return "", fmt.Errorf("ffmpeg not found in PATH, please install manually")
}

func EnsureFFprobe() (string, error) {
	if path, ok := findBinary("ffprobe"); ok {
		return path, nil
	}
	return "", fmt.Errorf("ffprobe not found in PATH, please install manually")
}

func findBinary(name string) (string, bool) {
	if path, err := exec.LookPath(name); err == nil {
		return path, true
	}
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), exeName(name))
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func releaseAsset(goos, goarch string) (string, error) {
	switch {
	case goos == "windows" && goarch == "amd64":
		return "yt-dlp.exe", nil
	case goos == "windows" && goarch == "arm64":
		return "yt-dlp_arm64.exe", nil
	case goos == "linux" && goarch == "amd64":
		return "yt-dlp_linux", nil
	case goos == "linux" && goarch == "arm64":
		return "yt-dlp_linux_aarch64", nil
	case goos == "darwin":
		return "yt-dlp_macos", nil
	}
	return "", fmt.Errorf("unsupported OS/arch: %s/%s", goos, goarch)
}

func downloadYtdlp(ctx context.Context, client utils.HTTPDoer, dest string) (string, error) {
	asset, err := releaseAsset(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("error creating temp directory: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(releaseURL, asset), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error downloading yt-dlp: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("error downloading yt-dlp: bad status %s", resp.Status)
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("error writing yt-dlp: %v", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(dest, 0755); err != nil {
			return "", fmt.Errorf("error setting permissions: %v", err)
		}
	}
	return dest, nil
}
