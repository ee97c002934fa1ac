package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// SanitizeFilename replaces characters that are invalid in file names on
// common filesystems and trims trailing dots and spaces.
func SanitizeFilename(name string) string {
	sanitized := unsafeFilenameRegex.ReplaceAllString(name, "_")
	sanitized = strings.Trim(sanitized, " .")
	if sanitized == "" {
		return "untitled"
	}
	return sanitized
}

func EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory %s: %v", dir, err)
	}
	return nil
}

// Clean removes the scratch directory that lives next to path. When the
// directory is empty after removal of in-flight files it is deleted too.
func Clean(path string) error {
	tempDir := filepath.Join(path, TempDirName)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, file := range files {
		// the self-downloaded yt-dlp binary is kept for reuse
		if strings.HasPrefix(file.Name(), "yt-dlp") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(tempDir, file.Name())); err != nil {
			return err
		}
	}
	remainingFiles, err := os.ReadDir(tempDir)
	if err != nil {
		return err
	}
	if len(remainingFiles) == 0 {
		return os.Remove(tempDir)
	}
	return nil
}
