package telemetry

import "time"

// Collector accumulates spatial index activity over a stats window.
type Collector struct {
	windowStart int32

	adds    int
	updates int
	relocs  int
	removes int
	queries int

	latencyCap int
	latencies  []float64 // microseconds
}

// NewCollector creates a collector. latencyCap bounds the number of
// query latency samples kept per window.
func NewCollector(latencyCap int) *Collector {
	if latencyCap < 1 {
		latencyCap = 4096
	}
	return &Collector{
		latencyCap: latencyCap,
		latencies:  make([]float64, 0, latencyCap),
	}
}

// RecordAdd counts a new index entry.
func (c *Collector) RecordAdd() { c.adds++ }

// RecordUpdate counts an index update; moved reports whether the entry
// actually relocated.
func (c *Collector) RecordUpdate(moved bool) {
	c.updates++
	if moved {
		c.relocs++
	}
}

// RecordRemove counts a removed index entry.
func (c *Collector) RecordRemove() { c.removes++ }

// RecordQuery counts one query and samples its duration.
func (c *Collector) RecordQuery(d time.Duration) {
	c.queries++
	if len(c.latencies) < c.latencyCap {
		c.latencies = append(c.latencies, float64(d.Nanoseconds())/1e3)
	}
}

// Flush builds the window stats and resets the window.
func (c *Collector) Flush(endTick int32, simTime float64, indexed, contacts int) WindowStats {
	stats := WindowStats{
		WindowStartTick: c.windowStart,
		WindowEndTick:   endTick,
		SimTimeSec:      simTime,
		Indexed:         indexed,
		Contacts:        contacts,
		Adds:            c.adds,
		Updates:         c.updates,
		Relocs:          c.relocs,
		Removes:         c.removes,
		Queries:         c.queries,
	}
	stats.summarize(c.latencies)

	c.windowStart = endTick
	c.adds, c.updates, c.relocs, c.removes, c.queries = 0, 0, 0, 0, 0
	c.latencies = c.latencies[:0]
	return stats
}
