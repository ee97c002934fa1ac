package ytmusic

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/zhaarey/go-mp4tag"
)

// Tags maps tag keys to their values. MP3 user text frames are keyed
// "TXXX:<description>", M4A freeform atoms "----:com.apple.iTunes:<name>"
// and the M4A comment "©cmt".
type Tags map[string][]string

// idKeys are checked in order; verbatim keys hold the id itself, the rest
// are searched with YouTubeIDRegex.
var idKeys = []struct {
	key      string
	verbatim bool
}{
	{"TXXX:youtube_id", true},
	{"----:com.apple.iTunes:youtube_id", true},
	{"TXXX:purl", false},
	{"TXXX:comment", false},
	{"©cmt", false},
}

// ExtractID finds a video id in tags. With scanAll, every remaining tag is
// searched once the priority keys yield nothing.
func ExtractID(tags Tags, scanAll bool) string {
	checked := make(map[string]bool, len(idKeys))
	for _, k := range idKeys {
		checked[k.key] = true
		values, ok := tags[k.key]
		if !ok || len(values) == 0 {
			continue
		}
		if k.verbatim {
			return strings.TrimSpace(values[0])
		}
		if m := YouTubeIDRegex.FindStringSubmatch(values[0]); m != nil {
			return m[1]
		}
	}
	if !scanAll {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		if !checked[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, v := range tags[key] {
			if m := YouTubeIDRegex.FindStringSubmatch(v); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

// IDFromFile reads the tags of an .mp3 or .m4a file and extracts its id.
// Unreadable or unsupported files yield "".
func IDFromFile(path string, scanAll bool) string {
	tags, err := ReadTags(path)
	if err != nil {
		return ""
	}
	return ExtractID(tags, scanAll)
}

func ReadTags(path string) (Tags, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return readID3(path)
	case ".m4a", ".mp4":
		return readMP4(path)
	}
	return nil, errUnsupported
}

func readID3(path string) (Tags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, err
	}
	defer tag.Close()
	tags := Tags{}
	for id, frames := range tag.AllFrames() {
		for _, f := range frames {
			switch fr := f.(type) {
			case id3v2.UserDefinedTextFrame:
				key := "TXXX:" + fr.Description
				tags[key] = append(tags[key], fr.Value)
			case id3v2.CommentFrame:
				key := "COMM:" + fr.Description
				tags[key] = append(tags[key], fr.Text)
			case id3v2.TextFrame:
				tags[id] = append(tags[id], fr.Text)
			}
		}
	}
	return tags, nil
}

func readMP4(path string) (Tags, error) {
	mp4, err := mp4tag.Open(path)
	if err != nil {
		return nil, err
	}
	defer mp4.Close()
	read, err := mp4.Read()
	if err != nil {
		return nil, err
	}
	tags := Tags{}
	add := func(key, value string) {
		if value != "" {
			tags[key] = append(tags[key], value)
		}
	}
	add("©nam", read.Title)
	add("©ART", read.Artist)
	add("©alb", read.Album)
	add("©cmt", read.Comment)
	for name, value := range read.Custom {
		// freeform names are matched case-insensitively
		add("----:com.apple.iTunes:"+strings.ToLower(name), value)
	}
	return tags, nil
}
