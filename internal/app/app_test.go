package app

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jobrunner/spatialquery/internal/adapters/metrics"
	"github.com/jobrunner/spatialquery/internal/config"
	"github.com/jobrunner/spatialquery/internal/domain"
	"github.com/jobrunner/spatialquery/internal/ports/output"
)

func TestProgressFactory(t *testing.T) {
	a := &App{
		Config: &config.Config{Query: config.QueryConfig{ProgressLogEvery: 100}},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	sink := a.progressFactory()(domain.Within, "sites", "zones")
	multi, ok := sink.(output.MultiProgress)
	if !ok || len(multi) != 1 {
		t.Fatalf("sink without metrics = %#v, want one log sink", sink)
	}

	a.Metrics = metrics.NewCollector("test", prometheus.NewRegistry())
	multi = a.progressFactory()(domain.Within, "sites", "zones").(output.MultiProgress)
	if len(multi) != 2 {
		t.Errorf("sink with metrics has %d members, want 2", len(multi))
	}
	if _, ok := multi[1].(*metrics.ProgressGauge); !ok {
		t.Errorf("second member = %T, want *metrics.ProgressGauge", multi[1])
	}
}
