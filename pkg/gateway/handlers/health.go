package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/vango-go/midas/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyCheck is one dependency probe. A non-nil error marks the process
// not ready.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HostStats is a point-in-time view of the machine.
type HostStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
}

// ReadHostStats samples CPU and memory usage.
func ReadHostStats(ctx context.Context) (HostStats, error) {
	var stats HostStats
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return stats, err
	}
	if len(percentages) > 0 {
		stats.CPUPercent = percentages[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, err
	}
	stats.MemoryPercent = vm.UsedPercent
	stats.MemoryUsedMB = vm.Used / 1024 / 1024
	stats.MemoryTotalMB = vm.Total / 1024 / 1024
	return stats, nil
}

type ReadyHandler struct {
	Lifecycle *lifecycle.Lifecycle
	Checks    []ReadyCheck

	// Host samples machine stats. Nil skips the host section.
	Host func(ctx context.Context) (HostStats, error)

	Timeout time.Duration
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool       `json:"ok"`
		Draining bool       `json:"draining,omitempty"`
		UptimeS  int64      `json:"uptime_s"`
		Host     *HostStats `json:"host,omitempty"`
		Issues   []string   `json:"issues,omitempty"`
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	issues := make([]string, 0, len(h.Checks))
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}
	for _, c := range h.Checks {
		if err := c.Check(ctx); err != nil {
			issues = append(issues, c.Name+": "+err.Error())
		}
	}

	var host *HostStats
	if h.Host != nil {
		if stats, err := h.Host(ctx); err == nil {
			host = &stats
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{
		OK:       ok,
		Draining: draining,
		UptimeS:  int64(h.Lifecycle.Uptime().Seconds()),
		Host:     host,
		Issues:   issues,
	})
}
