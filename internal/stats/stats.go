// Package stats provides process and turn statistics for agentcore.
package stats

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and tracks system statistics. It is safe for concurrent use.
type Collector struct {
	startTime     time.Time
	turnCount     atomic.Int64
	partialCount  atomic.Int64
	tokenCount    atomic.Int64
	faultCount    atomic.Int64
	totalDuration atomic.Int64 // nanoseconds

	mu     sync.Mutex
	faults map[string]int64
}

// NewCollector creates a new stats collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		faults:    make(map[string]int64),
	}
}

// Stats represents system statistics at a point in time.
type Stats struct {
	// System resources
	MemoryStats MemoryStats `json:"memory"`
	Goroutines  int         `json:"goroutines"`
	Uptime      string      `json:"uptime"`

	// Agent metrics
	TurnCount    int64            `json:"turn_count"`
	PartialCount int64            `json:"partial_count"`
	TokenCount   int64            `json:"token_count"`
	FaultCount   int64            `json:"fault_count"`
	Faults       map[string]int64 `json:"faults_by_category"`
	AvgLatencyMs float64          `json:"avg_latency_ms"`

	// Database info
	DBSize   int64   `json:"db_size_bytes"`
	DBSizeMB float64 `json:"db_size_mb"`
}

// MemoryStats represents memory usage statistics.
type MemoryStats struct {
	HeapAlloc    int64         `json:"heap_alloc_bytes"`
	HeapAllocMB  float64       `json:"heap_alloc_mb"`
	HeapInuse    int64         `json:"heap_inuse_bytes"`
	HeapInuseMB  float64       `json:"heap_inuse_mb"`
	HeapObjects  uint64        `json:"heap_objects"`
	NumGC        uint32        `json:"num_gc"`
	GCPauseTotal time.Duration `json:"gc_pause_total"`
}

// Collect returns current statistics. dbPaths are summed for the size figures;
// missing files count as zero.
func (c *Collector) Collect(dbPaths ...string) *Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	turns := c.turnCount.Load()
	avgLatency := float64(0)
	if turns > 0 {
		avgLatency = float64(c.totalDuration.Load()) / float64(turns) / 1e6 // nanos to millis
	}

	var dbSize int64
	for _, p := range dbPaths {
		if fi, err := os.Stat(p); err == nil {
			dbSize += fi.Size()
		}
	}

	c.mu.Lock()
	faults := make(map[string]int64, len(c.faults))
	for k, v := range c.faults {
		faults[k] = v
	}
	c.mu.Unlock()

	return &Stats{
		MemoryStats: MemoryStats{
			HeapAlloc:    int64(m.HeapAlloc),
			HeapAllocMB:  bytesToMB(int64(m.HeapAlloc)),
			HeapInuse:    int64(m.HeapInuse),
			HeapInuseMB:  bytesToMB(int64(m.HeapInuse)),
			HeapObjects:  m.HeapObjects,
			NumGC:        m.NumGC,
			GCPauseTotal: time.Duration(m.PauseTotalNs),
		},
		Goroutines:   runtime.NumGoroutine(),
		Uptime:       time.Since(c.startTime).Round(time.Second).String(),
		TurnCount:    turns,
		PartialCount: c.partialCount.Load(),
		TokenCount:   c.tokenCount.Load(),
		FaultCount:   c.faultCount.Load(),
		Faults:       faults,
		AvgLatencyMs: avgLatency,
		DBSize:       dbSize,
		DBSizeMB:     bytesToMB(dbSize),
	}
}

// RecordTurn records a finished turn.
func (c *Collector) RecordTurn(tokens int, duration time.Duration, partial bool) {
	c.turnCount.Add(1)
	c.tokenCount.Add(int64(tokens))
	c.totalDuration.Add(duration.Nanoseconds())
	if partial {
		c.partialCount.Add(1)
	}
}

// RecordFault records a classified fault.
func (c *Collector) RecordFault(category string) {
	c.faultCount.Add(1)
	c.mu.Lock()
	c.faults[category]++
	c.mu.Unlock()
}

// StartTime returns when the collector started.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// bytesToMB converts bytes to megabytes.
func bytesToMB(b int64) float64 {
	return float64(b) / 1024 / 1024
}
