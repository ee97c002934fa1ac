// Package ytmusic downloads YouTube Music tracks through yt-dlp and checks a
// local library against the download history.
package ytmusic

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// YouTubeIDRegex finds an 11-character video id in URLs and free text.
var YouTubeIDRegex = regexp.MustCompile(`(?:v=|/|youtu\.be/|embed/|shorts/)([a-zA-Z0-9_-]{11})`)

// videoInfo is the subset of yt-dlp's info JSON used here.
type videoInfo struct {
	Type      string       `json:"_type"`
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Artist    string       `json:"artist"`
	Channel   string       `json:"channel"`
	Uploader  string       `json:"uploader"`
	Extractor string       `json:"extractor"`
	URL       string       `json:"url"`
	Entries   []*videoInfo `json:"entries"`

	Tags        []string `json:"tags"`
	Duration    *float64 `json:"duration"`
	Album       *string  `json:"album"`
	Track       *string  `json:"track"`
	ReleaseDate *string  `json:"release_date"`
	UploadDate  *string  `json:"upload_date"`
	Filepath    string   `json:"filepath"`
}

func (v *videoInfo) isPlaylist() bool {
	return v.Type == "playlist" || v.Entries != nil
}

// ExtractArtist picks artist, then channel, then uploader. The second value
// names the field used.
func ExtractArtist(artist, channel, uploader string) (string, string) {
	switch {
	case artist != "":
		return artist, "artist"
	case channel != "":
		return channel, "channel"
	case uploader != "":
		return uploader, "uploader"
	}
	return "Unknown", "uploader"
}

func (v *videoInfo) artist() (string, string) {
	return ExtractArtist(v.Artist, v.Channel, v.Uploader)
}

// FormatDuration renders seconds as H:MM:SS, with a day prefix and
// microseconds when present ("1 day, 2:03:04.500000").
func FormatDuration(seconds float64) string {
	micros := int64(math.Round(math.Max(seconds, 0) * 1e6))
	days := micros / (86400 * 1e6)
	micros -= days * 86400 * 1e6
	h := micros / (3600 * 1e6)
	micros -= h * 3600 * 1e6
	m := micros / (60 * 1e6)
	micros -= m * 60 * 1e6
	s := micros / 1e6
	micros -= s * 1e6

	var b strings.Builder
	if days > 0 {
		unit := "days"
		if days == 1 {
			unit = "day"
		}
		fmt.Fprintf(&b, "%d %s, ", days, unit)
	}
	fmt.Fprintf(&b, "%d:%02d:%02d", h, m, s)
	if micros > 0 {
		fmt.Fprintf(&b, ".%06d", micros)
	}
	return b.String()
}

// WatchURL is the canonical page of a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
