package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats is one snapshot of the framework activity. RenderRequests against
// RenderPasses shows how much coalescing happened.
type Stats struct {
	MessagesApplied    uint64  `json:"messages_applied"`
	AvgMessageMicros   float64 `json:"avg_message_micros"`
	RenderRequests     uint64  `json:"render_requests"`
	RenderPasses       uint64  `json:"render_passes"`
	RenderFailures     uint64  `json:"render_failures"`
	Mounts             uint64  `json:"mounts"`
	Ejects             uint64  `json:"ejects"`
	Publications       uint64  `json:"publications"`
	Deliveries         uint64  `json:"deliveries"`
	SkippedDeliveries  uint64  `json:"skipped_deliveries"`
	DanglingDeliveries uint64  `json:"dangling_deliveries"`
	RouteSwitches      uint64  `json:"route_switches"`
	RouteMisses        uint64  `json:"route_misses"`

	// --- SYSTEM METRICS ---
	Goroutines int       `json:"goroutines"`
	AllocMemMb uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	RSSMb      uint64    `json:"rss_mb"`
	CPUPercent float64   `json:"cpu_percent"`
	SampledAt  time.Time `json:"sampled_at"`
}

// Monitor collects counters from entries, buses and routers. Every method is
// safe on a nil Monitor so collaborators can run unobserved.
type Monitor struct {
	log      *slog.Logger
	interval time.Duration

	messagesApplied    uint64
	messageMicros      uint64
	renderRequests     uint64
	renderPasses       uint64
	renderFailures     uint64
	mounts             uint64
	ejects             uint64
	publications       uint64
	deliveries         uint64
	skippedDeliveries  uint64
	danglingDeliveries uint64
	routeSwitches      uint64
	routeMisses        uint64

	mu     sync.RWMutex
	system Stats
}

func NewMonitor(log *slog.Logger, interval time.Duration) *Monitor {
	return &Monitor{log: log, interval: interval}
}

func (m *Monitor) IncrMessagesApplied(took time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.messagesApplied, 1)
	atomic.AddUint64(&m.messageMicros, uint64(took.Microseconds()))
}

func (m *Monitor) IncrRenderRequests() {
	if m != nil {
		atomic.AddUint64(&m.renderRequests, 1)
	}
}

func (m *Monitor) IncrRenderPasses() {
	if m != nil {
		atomic.AddUint64(&m.renderPasses, 1)
	}
}

func (m *Monitor) IncrRenderFailures() {
	if m != nil {
		atomic.AddUint64(&m.renderFailures, 1)
	}
}

func (m *Monitor) IncrMounts() {
	if m != nil {
		atomic.AddUint64(&m.mounts, 1)
	}
}

func (m *Monitor) IncrEjects() {
	if m != nil {
		atomic.AddUint64(&m.ejects, 1)
	}
}

func (m *Monitor) IncrPublications() {
	if m != nil {
		atomic.AddUint64(&m.publications, 1)
	}
}

func (m *Monitor) IncrDeliveries() {
	if m != nil {
		atomic.AddUint64(&m.deliveries, 1)
	}
}

func (m *Monitor) IncrSkippedDeliveries() {
	if m != nil {
		atomic.AddUint64(&m.skippedDeliveries, 1)
	}
}

func (m *Monitor) IncrDanglingDeliveries() {
	if m != nil {
		atomic.AddUint64(&m.danglingDeliveries, 1)
	}
}

func (m *Monitor) IncrRouteSwitches() {
	if m != nil {
		atomic.AddUint64(&m.routeSwitches, 1)
	}
}

func (m *Monitor) IncrRouteMisses() {
	if m != nil {
		atomic.AddUint64(&m.routeMisses, 1)
	}
}

// GetLatest merges the live counters with the last system sample.
func (m *Monitor) GetLatest() Stats {
	if m == nil {
		return Stats{}
	}
	m.mu.RLock()
	stats := m.system
	m.mu.RUnlock()

	stats.MessagesApplied = atomic.LoadUint64(&m.messagesApplied)
	if stats.MessagesApplied > 0 {
		stats.AvgMessageMicros = float64(atomic.LoadUint64(&m.messageMicros)) / float64(stats.MessagesApplied)
	}
	stats.RenderRequests = atomic.LoadUint64(&m.renderRequests)
	stats.RenderPasses = atomic.LoadUint64(&m.renderPasses)
	stats.RenderFailures = atomic.LoadUint64(&m.renderFailures)
	stats.Mounts = atomic.LoadUint64(&m.mounts)
	stats.Ejects = atomic.LoadUint64(&m.ejects)
	stats.Publications = atomic.LoadUint64(&m.publications)
	stats.Deliveries = atomic.LoadUint64(&m.deliveries)
	stats.SkippedDeliveries = atomic.LoadUint64(&m.skippedDeliveries)
	stats.DanglingDeliveries = atomic.LoadUint64(&m.danglingDeliveries)
	stats.RouteSwitches = atomic.LoadUint64(&m.routeSwitches)
	stats.RouteMisses = atomic.LoadUint64(&m.routeMisses)
	return stats
}

// Run samples process metrics every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.interval
	if interval <= 0 {
		interval = time.Second
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.log.Warn("Process metrics unavailable", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.sample(proc)
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("Monitor stopped")
			return nil
		case <-ticker.C:
			m.sample(proc)
		}
	}
}

func (m *Monitor) sample(proc *process.Process) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := Stats{
		Goroutines: runtime.NumGoroutine(),
		AllocMemMb: mem.Alloc / 1024 / 1024,
		NumGC:      mem.NumGC,
		SampledAt:  time.Now().UTC(),
	}
	if proc != nil {
		if info, err := proc.MemoryInfo(); err == nil {
			s.RSSMb = info.RSS / 1024 / 1024
		} else {
			m.log.Debug("Error while finding process ram usage", "err", err)
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			s.CPUPercent = cpu
		} else {
			m.log.Debug("Error while finding process cpu usage", "err", err)
		}
	}

	m.mu.Lock()
	m.system = s
	m.mu.Unlock()
}
