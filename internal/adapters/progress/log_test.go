package progress

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

type logRecord struct {
	Level   string `json:"level"`
	Msg     string `json:"msg"`
	Phase   int    `json:"phase"`
	Step    int    `json:"step"`
	Visited int    `json:"visited"`
	Percent int    `json:"percent"`
}

func captureSink(every int) (*LogSink, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger, every)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return fixed }
	return sink, &buf
}

func records(t *testing.T, buf *bytes.Buffer) []logRecord {
	t.Helper()
	var out []logRecord
	dec := json.NewDecoder(buf)
	for dec.More() {
		var r logRecord
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decoding log line: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestLogSinkPhases(t *testing.T) {
	sink, buf := captureSink(2)

	sink.InitPhase(1, 3)
	for i := 1; i <= 3; i++ {
		sink.Step(i)
	}
	sink.InitPhase(2, 4)
	for i := 1; i <= 4; i++ {
		sink.Step(i)
	}
	sink.Finish()

	got := records(t, buf)
	want := []logRecord{
		{Level: "INFO", Msg: "query phase started", Phase: 1},
		{Level: "DEBUG", Msg: "query progress", Phase: 1, Step: 2, Percent: 66},
		{Level: "INFO", Msg: "query phase finished", Phase: 1, Visited: 3},
		{Level: "INFO", Msg: "query phase started", Phase: 2},
		{Level: "DEBUG", Msg: "query progress", Phase: 2, Step: 2, Percent: 50},
		{Level: "DEBUG", Msg: "query progress", Phase: 2, Step: 4, Percent: 100},
		{Level: "INFO", Msg: "query phase finished", Phase: 2, Visited: 4},
	}

	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLogSinkStepLoggingDisabled(t *testing.T) {
	sink, buf := captureSink(0)

	sink.InitPhase(1, 10)
	for i := 1; i <= 10; i++ {
		sink.Step(i)
	}
	sink.Finish()
	sink.Finish()

	got := records(t, buf)
	if len(got) != 2 {
		t.Fatalf("got %d records, want start and finish only: %+v", len(got), got)
	}
}

func TestPhaseName(t *testing.T) {
	if got := phaseName(1); got != "index reference" {
		t.Errorf("phaseName(1) = %q", got)
	}
	if got := phaseName(7); got != "unknown" {
		t.Errorf("phaseName(7) = %q", got)
	}
}
