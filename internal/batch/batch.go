// Package batch runs the history-tracked, deduplicated fetch of a list of
// items over a fixed pool of workers.
package batch

import (
	"context"

	"github.com/tanq16/utools/internal/history"
)

// Item is one candidate produced by an enumerator. Token is opaque to the
// dispatcher: the anime1 API request payload, or the video id for music.
type Item struct {
	ID         string
	Title      string
	Collection string
	SourceURL  string
	Token      string
}

// Label is the text used to name an item in logs and the live display.
func (it Item) Label() string {
	if it.Title != "" {
		return it.Title
	}
	return it.ID
}

// Result is what a successful fetch reports back. Record is appended to the
// history when set; Planned marks a dry run that fetched nothing.
type Result struct {
	Record  *history.Record
	Planned bool
	Message string
}

// Progress receives free-form status lines from a running fetch.
type Progress func(line string)

type Fetcher interface {
	Fetch(ctx context.Context, item Item, progress Progress) (Result, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, item Item, progress Progress) (Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, item Item, progress Progress) (Result, error) {
	return f(ctx, item, progress)
}

// Filter splits candidates into those to process and those to skip. Known
// ids are skipped unless force is set or history tracking is off; a repeated
// id within candidates is always skipped after its first occurrence.
func Filter(candidates []Item, known map[string]struct{}, force, tracking bool) (toProcess, skipped []Item) {
	queued := make(map[string]struct{}, len(candidates))
	for _, item := range candidates {
		if _, dup := queued[item.ID]; dup {
			skipped = append(skipped, item)
			continue
		}
		if _, seen := known[item.ID]; seen && !force && tracking {
			skipped = append(skipped, item)
			continue
		}
		queued[item.ID] = struct{}{}
		toProcess = append(toProcess, item)
	}
	return toProcess, skipped
}
