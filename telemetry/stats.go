package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated spatial index statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Index population at window end
	Indexed  int `csv:"indexed"`
	Contacts int `csv:"contacts"`

	// Mutations during window
	Adds     int `csv:"adds"`
	Updates  int `csv:"updates"`
	Relocs   int `csv:"relocs"` // Updates that actually moved an entry
	Removes  int `csv:"removes"`

	// Queries during window
	Queries int `csv:"queries"`

	// Query latency distribution (microseconds)
	QueryMeanUs float64 `csv:"query_mean_us"`
	QueryStdUs  float64 `csv:"query_std_us"`
	QueryP50Us  float64 `csv:"query_p50_us"`
	QueryP90Us  float64 `csv:"query_p90_us"`
	QueryP99Us  float64 `csv:"query_p99_us"`
}

// LogStats logs the window using slog.
func (s WindowStats) LogStats() {
	slog.Info("index_stats",
		"window_end", s.WindowEndTick,
		"indexed", s.Indexed,
		"adds", s.Adds,
		"updates", s.Updates,
		"relocs", s.Relocs,
		"removes", s.Removes,
		"queries", s.Queries,
		"contacts", s.Contacts,
		"query_mean_us", s.QueryMeanUs,
		"query_p99_us", s.QueryP99Us,
	)
}

// summarize fills the latency fields from raw samples (microseconds).
// The sample slice is sorted in place.
func (s *WindowStats) summarize(samples []float64) {
	if len(samples) == 0 {
		return
	}
	sort.Float64s(samples)
	s.QueryMeanUs = stat.Mean(samples, nil)
	if len(samples) > 1 {
		s.QueryStdUs = stat.StdDev(samples, nil)
	}
	s.QueryP50Us = stat.Quantile(0.5, stat.Empirical, samples, nil)
	s.QueryP90Us = stat.Quantile(0.9, stat.Empirical, samples, nil)
	s.QueryP99Us = stat.Quantile(0.99, stat.Empirical, samples, nil)
}
