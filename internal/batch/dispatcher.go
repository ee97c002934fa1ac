package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tanq16/utools/internal/history"
)

type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	Skipped
	Planned
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Planned:
		return "planned"
	}
	return "unknown"
}

// Summary lists items per outcome in enumeration order.
type Summary struct {
	Succeeded []Item
	Failed    []Item
	Skipped   []Item
	Planned   []Item
	Errors    map[string]error
}

func (s *Summary) Total() int {
	return len(s.Succeeded) + len(s.Failed) + len(s.Skipped) + len(s.Planned)
}

func (s *Summary) String() string {
	line := fmt.Sprintf("%d downloaded, %d skipped, %d failed", len(s.Succeeded), len(s.Skipped), len(s.Failed))
	if len(s.Planned) > 0 {
		line += fmt.Sprintf(", %d planned", len(s.Planned))
	}
	return line
}

// Reporter receives dispatcher events. Begin returns a handle passed back to
// the remaining per-item calls.
type Reporter interface {
	Begin(item Item) int
	Progress(handle int, line string)
	Succeed(handle int, item Item, result Result)
	Fail(handle int, item Item, err error)
	Skip(item Item)
	Finish(summary *Summary)
}

type Dispatcher struct {
	Workers  int
	Fetcher  Fetcher
	Store    *history.Store // nil disables tracking
	Force    bool
	Reporter Reporter
	Log      zerolog.Logger
}

type job struct {
	index int
	item  Item
}

type outcome struct {
	kind Outcome
	err  error
}

// Run loads the history, filters candidates and fetches the rest. Only a
// history load failure is returned; per-item failures land in the summary.
func (d *Dispatcher) Run(ctx context.Context, candidates []Item) (*Summary, error) {
	log := d.Log.With().Str("op", "batch/dispatcher").Logger()
	reporter := d.Reporter
	if reporter == nil {
		reporter = NewLogReporter(d.Log)
	}

	tracking := d.Store != nil
	known := map[string]struct{}{}
	if tracking {
		var err error
		known, err = d.Store.Load()
		if err != nil {
			return nil, fmt.Errorf("error loading history: %w", err)
		}
	}
	toProcess, skipped := Filter(candidates, known, d.Force, tracking)
	log.Info().Int("candidates", len(candidates)).Int("queued", len(toProcess)).Int("skipped", len(skipped)).Msg("batch prepared")

	summary := &Summary{Skipped: skipped, Errors: make(map[string]error)}
	for _, item := range skipped {
		reporter.Skip(item)
	}

	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(toProcess) {
		workers = max(len(toProcess), 1)
	}

	results := make([]outcome, len(toProcess))
	jobCh := make(chan job, len(toProcess))
	for i, item := range toProcess {
		jobCh <- job{index: i, item: item}
	}
	close(jobCh)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobCh {
				results[j.index] = d.process(ctx, j.item, reporter, log.With().Int("worker", workerID).Logger())
			}
		}(i)
	}
	wg.Wait()

	for i, item := range toProcess {
		switch results[i].kind {
		case Succeeded:
			summary.Succeeded = append(summary.Succeeded, item)
		case Planned:
			summary.Planned = append(summary.Planned, item)
		default:
			summary.Failed = append(summary.Failed, item)
			summary.Errors[item.ID] = results[i].err
		}
	}
	reporter.Finish(summary)
	return summary, nil
}

func (d *Dispatcher) process(ctx context.Context, item Item, reporter Reporter, log zerolog.Logger) (res outcome) {
	handle := reporter.Begin(item)
	if err := ctx.Err(); err != nil {
		reporter.Fail(handle, item, err)
		return outcome{kind: Failed, err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while fetching: %v", r)
			reporter.Fail(handle, item, err)
			res = outcome{kind: Failed, err: err}
		}
	}()

	log.Debug().Str("id", item.ID).Str("title", item.Title).Msg("fetch started")
	result, err := d.Fetcher.Fetch(ctx, item, func(line string) {
		reporter.Progress(handle, line)
	})
	if err != nil {
		reporter.Fail(handle, item, err)
		return outcome{kind: Failed, err: err}
	}
	if result.Planned {
		reporter.Succeed(handle, item, result)
		return outcome{kind: Planned}
	}
	if result.Record != nil && d.Store != nil {
		d.Store.Append(*result.Record)
	}
	reporter.Succeed(handle, item, result)
	return outcome{kind: Succeeded}
}
