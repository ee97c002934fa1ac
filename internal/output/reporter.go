package output

import (
	"fmt"
	"io"

	"github.com/tanq16/utools/internal/batch"
)

// LiveReporter shows dispatcher progress on a redrawn terminal view.
type LiveReporter struct {
	m *Manager
}

// NewLiveReporter starts the display immediately; Finish stops it.
func NewLiveReporter(out io.Writer) *LiveReporter {
	m := NewManager(out)
	m.StartDisplay()
	return &LiveReporter{m: m}
}

func (r *LiveReporter) Begin(item batch.Item) int {
	id := r.m.Register(item.Label())
	r.m.SetStatus(id, "running")
	r.m.SetMessage(id, fmt.Sprintf("Fetching %s", item.Label()))
	return id
}

func (r *LiveReporter) Progress(handle int, line string) {
	r.m.AddStreamLine(handle, line)
}

func (r *LiveReporter) Succeed(handle int, item batch.Item, result batch.Result) {
	status := "success"
	if result.Planned {
		status = "planned"
	}
	message := result.Message
	if message == "" {
		message = fmt.Sprintf("Downloaded %s", item.Label())
	}
	r.m.Complete(handle, status, message)
}

func (r *LiveReporter) Fail(handle int, item batch.Item, err error) {
	r.m.ReportError(handle, err)
}

func (r *LiveReporter) Skip(item batch.Item) {
	id := r.m.Register(item.Label())
	r.m.Complete(id, "skipped", fmt.Sprintf("Skipped %s (already downloaded)", item.Label()))
}

func (r *LiveReporter) Finish(summary *batch.Summary) {
	r.m.StopDisplay()
	r.m.ShowSummary("Summary: "+summary.String(), len(summary.Failed) > 0)
}
