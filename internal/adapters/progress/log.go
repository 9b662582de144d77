// Package progress provides log-backed progress reporting for relation queries.
package progress

import (
	"log/slog"
	"time"
)

// phaseNames labels the phases of a relation query in log output.
var phaseNames = map[int]string{
	1: "index reference",
	2: "match targets",
}

// LogSink implements the ProgressSink port on a structured logger. Phase
// boundaries are logged at info, intermediate steps at debug every N steps.
type LogSink struct {
	logger  *slog.Logger
	every   int
	phase   int
	total   int
	last    int
	started time.Time
	now     func() time.Time
}

// NewLogSink creates a progress sink that logs every n steps. n <= 0
// disables step logging and keeps only phase boundaries.
func NewLogSink(logger *slog.Logger, every int) *LogSink {
	return &LogSink{
		logger: logger,
		every:  every,
		now:    time.Now,
	}
}

// InitPhase implements ProgressSink.
func (s *LogSink) InitPhase(phase, total int) {
	s.finishPhase()

	s.phase = phase
	s.total = total
	s.last = 0
	s.started = s.now()

	s.logger.Info("query phase started",
		"phase", phase,
		"name", phaseName(phase),
		"total", total,
	)
}

// Step implements ProgressSink.
func (s *LogSink) Step(step int) {
	s.last = step
	if s.every <= 0 || step%s.every != 0 {
		return
	}

	attrs := []any{"phase", s.phase, "step", step, "total", s.total}
	if s.total > 0 {
		attrs = append(attrs, "percent", step*100/s.total)
	}
	s.logger.Debug("query progress", attrs...)
}

// Finish logs the end of the last phase.
func (s *LogSink) Finish() {
	s.finishPhase()
	s.phase = 0
}

func (s *LogSink) finishPhase() {
	if s.phase == 0 {
		return
	}
	s.logger.Info("query phase finished",
		"phase", s.phase,
		"name", phaseName(s.phase),
		"visited", s.last,
		"duration", s.now().Sub(s.started),
	)
}

func phaseName(phase int) string {
	if name, ok := phaseNames[phase]; ok {
		return name
	}
	return "unknown"
}
