package ytdlp

import (
	"context"
	"strings"
	"sync"
)

// PrintPrefix marks lines requested with PrintAfterMove so they can be told
// apart from progress output.
const PrintPrefix = "[utools] "

// PrintAfterMove asks yt-dlp to download and then print tmpl once the file is
// in its final place.
func PrintAfterMove(tmpl string) []string {
	return []string{"--no-simulate", "--print", "after_move:" + PrintPrefix + tmpl}
}

// StreamPrinted runs args through r.Stream, forwards progress lines to onLine
// and returns the values printed by PrintAfterMove in order.
func StreamPrinted(ctx context.Context, r Runner, args []string, onLine func(string)) ([]string, error) {
	var mu sync.Mutex
	var printed []string
	err := r.Stream(ctx, args, func(line string) {
		if v, ok := strings.CutPrefix(line, PrintPrefix); ok {
			mu.Lock()
			printed = append(printed, v)
			mu.Unlock()
			return
		}
		if onLine != nil {
			onLine(line)
		}
	})
	return printed, err
}
