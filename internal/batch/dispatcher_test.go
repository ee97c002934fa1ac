package batch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/utools/internal/history"
)

type recordingFetcher struct {
	mu      sync.Mutex
	fetched []string
	fail    map[string]error
}

func (f *recordingFetcher) Fetch(_ context.Context, item Item, progress Progress) (Result, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, item.ID)
	f.mu.Unlock()
	progress("working on " + item.ID)
	if err := f.fail[item.ID]; err != nil {
		return Result{}, err
	}
	return Result{Record: &history.Record{ID: item.ID, Title: item.Title}}, nil
}

func newStore(t *testing.T) *history.Store {
	t.Helper()
	return history.NewStore(filepath.Join(t.TempDir(), "history.jsonl"), zerolog.Nop(), history.Options{})
}

func ids(items []Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestDispatcherSkipsKnownAndRecordsNew(t *testing.T) {
	store := newStore(t)
	store.Append(history.Record{ID: "abc12345678"})

	fetcher := &recordingFetcher{}
	d := &Dispatcher{Workers: 4, Fetcher: fetcher, Store: store, Log: zerolog.Nop()}
	summary, err := d.Run(context.Background(), []Item{{ID: "abc12345678"}, {ID: "zzz98765432"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(fetcher.fetched) != 1 || fetcher.fetched[0] != "zzz98765432" {
		t.Errorf("Expected only zzz98765432 fetched, got %v", fetcher.fetched)
	}
	if len(summary.Skipped) != 1 || len(summary.Succeeded) != 1 || len(summary.Failed) != 0 {
		t.Errorf("Expected 1 skipped 1 succeeded, got %s", summary)
	}
	known, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"abc12345678", "zzz98765432"} {
		if _, ok := known[id]; !ok {
			t.Errorf("Expected %s in history after run", id)
		}
	}
	if n := countLines(t, store.Path()); n != 2 {
		t.Errorf("Expected 2 history lines after run, got %d", n)
	}
}

func TestDispatcherRepeatedIDFetchedOnce(t *testing.T) {
	store := newStore(t)
	fetcher := &recordingFetcher{}
	d := &Dispatcher{Workers: 2, Fetcher: fetcher, Store: store, Log: zerolog.Nop()}
	summary, err := d.Run(context.Background(), []Item{{ID: "dup"}, {ID: "dup"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(fetcher.fetched) != 1 {
		t.Errorf("Expected dup fetched once, got %v", fetcher.fetched)
	}
	if len(summary.Succeeded) != 1 || len(summary.Skipped) != 1 {
		t.Errorf("Expected 1 succeeded 1 skipped, got %s", summary)
	}
	if n := countLines(t, store.Path()); n != 1 {
		t.Errorf("Expected 1 history line, got %d", n)
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	store := newStore(t)
	fetcher := FetcherFunc(func(ctx context.Context, item Item, _ Progress) (Result, error) {
		if item.ID == "bad" {
			panic("kaboom")
		}
		return Result{Record: &history.Record{ID: item.ID}}, nil
	})
	d := &Dispatcher{Workers: 2, Fetcher: fetcher, Store: store, Log: zerolog.Nop()}
	summary, err := d.Run(context.Background(), []Item{{ID: "good"}, {ID: "bad"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Succeeded) != 1 || len(summary.Failed) != 1 {
		t.Fatalf("Expected 1 succeeded 1 failed, got %s", summary)
	}
	if perr := summary.Errors["bad"]; perr == nil || !strings.Contains(perr.Error(), "kaboom") {
		t.Errorf("Expected panic value in error, got %v", perr)
	}
	known, _ := store.Load()
	if _, ok := known["bad"]; ok {
		t.Error("Expected panicking item to stay out of history")
	}
}

func TestDispatcherHistoryWriteFailureKeepsSuccess(t *testing.T) {
	var logs bytes.Buffer
	path := filepath.Join(t.TempDir(), "history.jsonl")
	store := history.NewStore(path, zerolog.New(&logs), history.Options{})
	fetcher := FetcherFunc(func(ctx context.Context, item Item, _ Progress) (Result, error) {
		// a directory in place of the file makes the append fail
		if err := os.Mkdir(path, 0755); err != nil {
			return Result{}, err
		}
		return Result{Record: &history.Record{ID: item.ID}}, nil
	})
	d := &Dispatcher{Workers: 1, Fetcher: fetcher, Store: store, Log: zerolog.Nop()}
	summary, err := d.Run(context.Background(), []Item{{ID: "a"}})
	if err != nil {
		t.Fatalf("Expected no error from an append failure, got %v", err)
	}
	if len(summary.Succeeded) != 1 || len(summary.Failed) != 0 {
		t.Errorf("Expected the item to succeed, got %s", summary)
	}
	if !strings.Contains(logs.String(), "failed to open history file") {
		t.Errorf("Expected the append failure to be logged, got %q", logs.String())
	}
}

func TestDispatcherForceFetchesAll(t *testing.T) {
	store := newStore(t)
	store.Append(history.Record{ID: "abc12345678"})

	fetcher := &recordingFetcher{}
	d := &Dispatcher{Workers: 2, Fetcher: fetcher, Store: store, Force: true, Log: zerolog.Nop()}
	summary, err := d.Run(context.Background(), []Item{{ID: "abc12345678"}, {ID: "zzz98765432"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(fetcher.fetched) != 2 {
		t.Errorf("Expected 2 fetches with force, got %v", fetcher.fetched)
	}
	if len(summary.Succeeded) != 2 {
		t.Errorf("Expected 2 succeeded, got %s", summary)
	}
}

func TestDispatcherIsolatesFailures(t *testing.T) {
	store := newStore(t)
	boom := errors.New("boom")
	fetcher := &recordingFetcher{fail: map[string]error{"b": boom}}
	d := &Dispatcher{Workers: 3, Fetcher: fetcher, Store: store, Log: zerolog.Nop()}
	summary, err := d.Run(context.Background(), []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Succeeded) != 2 || len(summary.Failed) != 1 {
		t.Fatalf("Expected 2 succeeded 1 failed, got %s", summary)
	}
	if !errors.Is(summary.Errors["b"], boom) {
		t.Errorf("Expected boom error for b, got %v", summary.Errors["b"])
	}
	known, _ := store.Load()
	if _, ok := known["b"]; ok {
		t.Error("Expected failed item to stay out of history")
	}
	if len(known) != 2 {
		t.Errorf("Expected 2 history ids, got %d", len(known))
	}
}

func TestDispatcherWorkerBound(t *testing.T) {
	var running, peak atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, item Item, _ Progress) (Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return Result{}, nil
	})
	var items []Item
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
		items = append(items, Item{ID: id})
	}
	d := &Dispatcher{Workers: 2, Fetcher: fetcher, Log: zerolog.Nop()}
	summary, err := d.Run(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent fetches, got %d", peak.Load())
	}
	if len(summary.Succeeded) != 8 {
		t.Errorf("Expected 8 succeeded, got %s", summary)
	}
}

func TestDispatcherPlannedDoesNotAppend(t *testing.T) {
	store := newStore(t)
	fetcher := FetcherFunc(func(ctx context.Context, item Item, _ Progress) (Result, error) {
		return Result{Planned: true, Record: &history.Record{ID: item.ID}}, nil
	})
	d := &Dispatcher{Workers: 1, Fetcher: fetcher, Store: store, Log: zerolog.Nop()}
	summary, err := d.Run(context.Background(), []Item{{ID: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Planned) != 1 {
		t.Errorf("Expected 1 planned, got %s", summary)
	}
	known, _ := store.Load()
	if len(known) != 0 {
		t.Errorf("Expected no history writes on a dry run, got %v", known)
	}
}

func TestDispatcherCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &recordingFetcher{}
	d := &Dispatcher{Workers: 2, Fetcher: fetcher, Log: zerolog.Nop()}
	summary, err := d.Run(ctx, []Item{{ID: "a"}, {ID: "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(fetcher.fetched) != 0 {
		t.Errorf("Expected no fetches after cancel, got %v", fetcher.fetched)
	}
	if len(summary.Failed) != 2 || !errors.Is(summary.Errors["a"], context.Canceled) {
		t.Errorf("Expected both items failed with context.Canceled, got %s", summary)
	}
}

func TestDispatcherStrictHistoryError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	store := history.NewStore(path, zerolog.Nop(), history.Options{Strict: true})
	store.Append(history.Record{ID: "ok"})
	appendRaw(t, path, "{broken\n")
	d := &Dispatcher{Workers: 1, Fetcher: &recordingFetcher{}, Store: store, Log: zerolog.Nop()}
	if _, err := d.Run(context.Background(), []Item{{ID: "a"}}); err == nil {
		t.Error("Expected error from strict history load, got nil")
	}
}

func appendRaw(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatal(err)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	return n
}
