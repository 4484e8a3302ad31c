package runlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

func sampleRecord(id string) core.RunRecord {
	return core.RunRecord{
		ID:        id,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Input:     core.ProblemInput{Text: "leak: flag{abc123}"},
		Evidence: []core.Evidence{
			{Source: "text-analysis", Fact: "Flag-like token: flag{abc123}", Confidence: 0.9},
			{Source: "whois", Fact: "Run whois against paste.example", Confidence: 0.25},
		},
		Flags:  []string{"flag{abc123}"},
		Plan:   []string{"Extract surface entities", "Web search"},
		Loop:   1,
		Reason: core.StopFlagFound,
	}
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runs.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2"} {
		if err := sink.Report(ctx, sampleRecord(id)); err != nil {
			t.Fatalf("Report: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		if _, ok := line["ts"]; !ok {
			t.Fatalf("expected ts field in %v", line)
		}
		if line["loop"].(float64) != 1 {
			t.Fatalf("expected loop=1, got %v", line["loop"])
		}
		ids = append(ids, line["id"].(string))
	}
	if len(ids) != 2 || ids[0] != "run-1" || ids[1] != "run-2" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestNewFileSinkRejectsEmptyPath(t *testing.T) {
	if _, err := NewFileSink(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

type closingSink struct {
	err    error
	calls  int
	closed bool
}

func (c *closingSink) Report(context.Context, core.RunRecord) error {
	c.calls++
	return c.err
}

func (c *closingSink) Close() error {
	c.closed = true
	return nil
}

func TestMultiCallsEverySinkAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &closingSink{err: boom}
	b := &closingSink{}
	m := Multi{a, nil, b}

	err := m.Report(context.Background(), sampleRecord("run-1"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap boom, got %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("expected both sinks to be called, got %d and %d", a.calls, b.calls)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Fatalf("expected sinks to be closed")
	}
}
