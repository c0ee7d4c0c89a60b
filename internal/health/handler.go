package health

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/eleven-am/dictation/internal/history"
	"github.com/eleven-am/dictation/internal/mailbox"
	"github.com/eleven-am/dictation/internal/shared"
	"github.com/eleven-am/dictation/internal/worker"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type WorkerStats struct {
	State string `json:"state"`
	worker.Stats
}

type Stats struct {
	Worker  WorkerStats      `json:"worker"`
	History *history.Summary `json:"history,omitempty"`
	Runtime RuntimeStats     `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type HistoryResponse struct {
	Total   int             `json:"total"`
	Entries []history.Entry `json:"entries"`
}

type componentCheck struct {
	name  string
	check func(context.Context) ComponentStatus
}

// WorkerStatus is the read-only view of a worker the handler reports on.
type WorkerStatus interface {
	State() worker.State
	Stats() worker.Stats
}

type Handler struct {
	worker    WorkerStatus
	pair      mailbox.Pair
	db        *gorm.DB
	history   *history.Store
	version   string
	startTime time.Time
}

// NewHandler builds the status handler. db and store may be nil when the
// journal is disabled.
func NewHandler(w WorkerStatus, pair mailbox.Pair, db *gorm.DB, store *history.Store, version string) *Handler {
	return &Handler{
		worker:    w,
		pair:      pair,
		db:        db,
		history:   store,
		version:   version,
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
	e.GET("/health/history", h.History)
}

// Liveness reports that the process is up
// @Summary      Liveness check
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /health [get]
func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Readiness checks the worker, both mailboxes and the journal
// @Summary      Readiness check
// @Description  Worker state and counters, mailbox write checks, journal summary and runtime stats.
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse "Ready or degraded"
// @Failure      503 {object} HealthResponse "Worker not ready or request mailbox unreachable"
// @Router       /health/ready [get]
func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	checks := []componentCheck{
		{"worker", h.checkWorker},
		{"requests", h.mailboxCheck(h.pair.Requests)},
		{"responses", h.mailboxCheck(h.pair.Responses)},
	}
	if h.db != nil {
		checks = append(checks, componentCheck{"history", h.checkDatabase})
	}

	wg.Add(len(checks))
	for _, check := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(check.name, check.check)
	}
	wg.Wait()

	overallStatus := h.computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Worker: WorkerStats{
				State: h.worker.State().String(),
				Stats: h.worker.Stats(),
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	if h.history != nil {
		if sum, err := h.history.Summary(ctx); err == nil {
			resp.Stats.History = &sum
		}
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

// History lists recent journal entries
// @Summary      Recent transcriptions
// @Tags         health
// @Produce      json
// @Param        limit query int false "Maximum entries to return (default 20, max 500)"
// @Success      200 {object} HistoryResponse
// @Failure      400 {object} shared.APIError "Invalid limit"
// @Failure      404 {object} shared.APIError "History is not enabled"
// @Failure      500 {object} shared.APIError "Failed to read history"
// @Router       /health/history [get]
func (h *Handler) History(c echo.Context) error {
	if h.history == nil {
		return shared.NotFound("history_disabled", "History is not enabled")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return shared.BadRequest("invalid_limit", "limit must be a non-negative integer")
		}
		limit = n
	}

	entries, err := h.history.Recent(c.Request().Context(), limit)
	if err != nil {
		return shared.InternalError("history_failed", "Failed to read history")
	}

	return c.JSON(http.StatusOK, HistoryResponse{
		Total:   len(entries),
		Entries: entries,
	})
}

func (h *Handler) checkWorker(ctx context.Context) ComponentStatus {
	state := h.worker.State()
	if state != worker.StateReady {
		return ComponentStatus{
			Status: StatusUnhealthy,
			Error:  "worker is " + state.String(),
		}
	}
	return ComponentStatus{Status: StatusHealthy}
}

func (h *Handler) mailboxCheck(m mailbox.Mailbox) func(context.Context) ComponentStatus {
	return func(ctx context.Context) ComponentStatus {
		start := time.Now()
		if err := m.Probe(ctx); err != nil {
			return ComponentStatus{
				Status:    StatusUnhealthy,
				LatencyMs: time.Since(start).Milliseconds(),
				Error:     "probe failed",
			}
		}
		return ComponentStatus{
			Status:    StatusHealthy,
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	start := time.Now()
	sqlDB, err := h.db.DB()
	if err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "failed to get underlying db",
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "ping failed",
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) computeOverallStatus(components map[string]ComponentStatus) Status {
	criticalComponents := []string{"worker", "requests"}

	for _, name := range criticalComponents {
		if status, ok := components[name]; ok && status.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}

	for _, status := range components {
		if status.Status != StatusHealthy {
			return StatusDegraded
		}
	}

	return StatusHealthy
}
