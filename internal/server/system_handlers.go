package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/riskengine/internal/database"
	"github.com/aristath/riskengine/internal/modules/limits"
	"github.com/aristath/riskengine/internal/modules/stoploss"
	"github.com/aristath/riskengine/internal/scheduler"
	"github.com/aristath/riskengine/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// StatusSources are the components reported by /api/system/status. Any may be nil.
type StatusSources struct {
	DB        *database.DB
	Book      *stoploss.Book
	Limits    *limits.Manager
	Scheduler *scheduler.Scheduler
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status           string  `json:"status"` // "healthy" or "degraded"
	UptimeSeconds    int64   `json:"uptime_seconds"`
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	Goroutines       int     `json:"goroutines"`
	ActiveStops      int     `json:"active_stops"`
	RegisteredLimits int     `json:"registered_limits"`
	ScheduledJobs    int     `json:"scheduled_jobs"`
	Database         string  `json:"database"`
}

// SystemHandlers serves host and engine status
type SystemHandlers struct {
	sources   StatusSources
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(sources StatusSources, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		sources:   sources,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	resp := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Database:      "disabled",
	}

	if h.sources.Book != nil {
		resp.ActiveStops = h.sources.Book.Len()
	}
	if h.sources.Limits != nil {
		resp.RegisteredLimits = len(h.sources.Limits.Limits())
	}
	if h.sources.Scheduler != nil {
		resp.ScheduledJobs = h.sources.Scheduler.Len()
	}
	if h.sources.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.sources.DB.QuickCheck(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Database check failed")
			resp.Status = "degraded"
			resp.Database = "error"
		} else {
			resp.Database = "ok"
		}
	}

	utils.WriteData(w, http.StatusOK, resp, h.log)
}

// getSystemStats samples CPU over 100ms and reads memory usage.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
