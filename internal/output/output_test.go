package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/tanq16/utools/internal/batch"
)

func TestManagerDisplay(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&buf)
	m.height = func() int { return 40 }

	a := m.Register("first")
	b := m.Register("second")
	m.SetMessage(a, "Fetching first")
	m.AddStreamLine(a, "[download]  42.0% of 10MiB")
	m.ReportError(b, errors.New("boom"))
	m.updateDisplay()

	out := buf.String()
	for _, want := range []string{"Fetching first", "[download]  42.0%", "Failed second"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in display %q", want, out)
		}
	}
	if m.numLines != 3 {
		t.Errorf("Expected 3 rendered lines, got %d", m.numLines)
	}
}

func TestManagerStreamLimit(t *testing.T) {
	m := NewManager(&bytes.Buffer{})
	id := m.Register("item")
	for i := 0; i < 20; i++ {
		m.AddStreamLine(id, "line")
	}
	if got := len(m.outputs[id].StreamLines); got != m.maxStreams {
		t.Errorf("Expected %d stream lines, got %d", m.maxStreams, got)
	}
}

func TestLiveReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLiveReporter(&buf)

	ok := batch.Item{ID: "abc12345678", Title: "One"}
	bad := batch.Item{ID: "zzz98765432", Title: "Two"}
	skipped := batch.Item{ID: "qqq11111111", Title: "Three"}

	r.Skip(skipped)
	h1 := r.Begin(ok)
	if st := r.m.outputs[h1].Status; st != "running" {
		t.Errorf("Expected running status after Begin, got %q", st)
	}
	r.Progress(h1, "progress")
	r.Succeed(h1, ok, batch.Result{})
	h2 := r.Begin(bad)
	r.Fail(h2, bad, errors.New("private video"))
	r.Finish(&batch.Summary{
		Succeeded: []batch.Item{ok},
		Failed:    []batch.Item{bad},
		Skipped:   []batch.Item{skipped},
	})

	out := buf.String()
	for _, want := range []string{
		"Skipped Three (already downloaded)",
		"Downloaded One",
		"Summary: 1 downloaded, 1 skipped, 1 failed",
		"Errors:",
		"private video",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output %q", want, out)
		}
	}
}

func TestWrapText(t *testing.T) {
	long := strings.Repeat("x", 500)
	lines := wrapText(long, 6)
	if len(lines) < 2 {
		t.Fatalf("Expected wrapped lines, got %d", len(lines))
	}
	if strings.Join(lines, "") != long {
		t.Error("Expected wrapping to keep every rune")
	}
}
