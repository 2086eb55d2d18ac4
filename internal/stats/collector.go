// Package stats reports process health and presence counts for /api/stats.
package stats

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

type Snapshot struct {
	Participants  int     `json:"participants"`
	Connections   int     `json:"connections"`
	PID           int32   `json:"pid"`
	RSSBytes      uint64  `json:"rss_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
	Threads       int32   `json:"threads"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Collector samples the current process. participants and connections are
// read at collection time.
type Collector struct {
	proc         *process.Process
	started      time.Time
	participants func() int
	connections  func() int
}

func NewCollector(participants, connections func() int) (*Collector, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("inspecting own process: %w", err)
	}
	return &Collector{
		proc:         p,
		started:      time.Now(),
		participants: participants,
		connections:  connections,
	}, nil
}

func (c *Collector) Collect() (Snapshot, error) {
	mem, err := c.proc.MemoryInfo()
	if err != nil {
		return Snapshot{}, fmt.Errorf("memory info: %w", err)
	}
	cpu, err := c.proc.CPUPercent()
	if err != nil {
		return Snapshot{}, fmt.Errorf("cpu percent: %w", err)
	}
	threads, err := c.proc.NumThreads()
	if err != nil {
		return Snapshot{}, fmt.Errorf("thread count: %w", err)
	}

	return Snapshot{
		Participants:  c.participants(),
		Connections:   c.connections(),
		PID:           c.proc.Pid,
		RSSBytes:      mem.RSS,
		CPUPercent:    cpu,
		Threads:       threads,
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(c.started).Seconds(),
	}, nil
}
