// Package config loads settings from the environment, optionally seeded from
// a .env file in the working directory.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

type Config struct {
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFile     string        `envconfig:"LOG_FILE"`
	HTTPTimeout time.Duration `envconfig:"UTOOLS_HTTP_TIMEOUT" default:"3m"`
	UserAgent   string        `envconfig:"UTOOLS_USER_AGENT"`

	// Proxy applies to every HTTP request utools makes itself.
	Proxy            string        `envconfig:"UTOOLS_PROXY"`
	ProxyUsername    string        `envconfig:"UTOOLS_PROXY_USERNAME"`
	ProxyPassword    string        `envconfig:"UTOOLS_PROXY_PASSWORD"`
	KeepAliveTimeout time.Duration `envconfig:"UTOOLS_KEEPALIVE_TIMEOUT" default:"60s"`

	// IANA zone for downloaded_at; empty means the local zone
	HistoryTimezone string `envconfig:"HISTORY_TIMEZONE"`
	HistoryStrict   bool   `envconfig:"HISTORY_STRICT" default:"false"`
	BackupSuffix    string `envconfig:"BACKUP_SUFFIX" default:".backup"`

	Anime   AnimeConfig
	YTMusic YTMusicConfig
	EPUB    EPUBConfig
	Image   ImageConfig
}

type AnimeConfig struct {
	DownloadDir            string `envconfig:"ANIME1_DOWNLOAD_DIR" default:"anime"`
	MaxConcurrentDownloads int    `envconfig:"ANIME1_MAX_CONCURRENT_DOWNLOADS" default:"4"`
	HistoryFile            string `envconfig:"ANIME1_HISTORY_FILE" default:"anime/history.jsonl"`
	APIURL                 string `envconfig:"ANIME1_API_URL" default:"https://v.anime1.me/api"`
}

type YTMusicConfig struct {
	DownloadDir            string `envconfig:"YTMUSIC_DOWNLOAD_DIR" default:"music"`
	HistoryFile            string `envconfig:"YTMUSIC_HISTORY_FILE" default:"music/ytmusic_downloaded.jsonl"`
	MaxConcurrentDownloads int    `envconfig:"YTMUSIC_MAX_CONCURRENT_DOWNLOADS" default:"1"`
}

type EPUBConfig struct {
	DefaultConversion string `envconfig:"EPUB_DEFAULT_CONVERSION" default:"s2t"`
	CreateBackup      bool   `envconfig:"EPUB_CREATE_BACKUP" default:"true"`
}

type ImageConfig struct {
	DefaultOutputDir   string  `envconfig:"IMAGE_TOOL_DEFAULT_OUTPUT_DIR" default:"."`
	DefaultSaveDir     string  `envconfig:"IMAGE_TOOL_DEFAULT_SAVE_DIR" default:"./images"`
	DefaultCameraIndex int     `envconfig:"IMAGE_TOOL_DEFAULT_CAMERA_INDEX" default:"0"`
	CameraDevice       string  `envconfig:"IMAGE_TOOL_CAMERA_DEVICE"`
	DefaultResizeRatio float64 `envconfig:"IMAGE_TOOL_DEFAULT_RESIZE_RATIO" default:"0.5"`
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables that are already set, then decodes the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("error loading %s: %v", envFile, err)
			}
		}
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Anime.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("ANIME1_MAX_CONCURRENT_DOWNLOADS must be at least 1, got %d", c.Anime.MaxConcurrentDownloads)
	}
	if c.YTMusic.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("YTMUSIC_MAX_CONCURRENT_DOWNLOADS must be at least 1, got %d", c.YTMusic.MaxConcurrentDownloads)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid UTOOLS_PROXY %q, expected scheme://host:port", c.Proxy)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Level maps LOG_LEVEL to a zerolog level. WARNING and CRITICAL are accepted
// as aliases of warn and fatal.
func (c *Config) Level() (zerolog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch name {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

// Location resolves HistoryTimezone.
func (c *Config) Location() (*time.Location, error) {
	if c.HistoryTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.HistoryTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_TIMEZONE %q: %v", c.HistoryTimezone, err)
	}
	return loc, nil
}
