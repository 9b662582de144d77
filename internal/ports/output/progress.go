package output

// ProgressSink receives progress of a long running query. Phases are
// numbered from 1; steps within a phase are 1-based.
type ProgressSink interface {
	InitPhase(phase, total int)
	Step(step int)
}

// NoOpProgress is a no-op implementation of ProgressSink.
type NoOpProgress struct{}

// InitPhase implements ProgressSink.
func (NoOpProgress) InitPhase(_, _ int) {}

// Step implements ProgressSink.
func (NoOpProgress) Step(_ int) {}

// MultiProgress fans progress out to several sinks.
type MultiProgress []ProgressSink

// InitPhase implements ProgressSink.
func (m MultiProgress) InitPhase(phase, total int) {
	for _, s := range m {
		s.InitPhase(phase, total)
	}
}

// Step implements ProgressSink.
func (m MultiProgress) Step(step int) {
	for _, s := range m {
		s.Step(step)
	}
}

// ProgressFinisher is implemented by sinks that report the end of a run.
type ProgressFinisher interface {
	Finish()
}

// Finish calls Finish on every sink that implements ProgressFinisher.
func (m MultiProgress) Finish() {
	for _, s := range m {
		if f, ok := s.(ProgressFinisher); ok {
			f.Finish()
		}
	}
}
