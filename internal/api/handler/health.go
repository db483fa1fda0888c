// Package handler serves the health, status and readiness endpoints.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/iconidentify/mediabot/internal/repository"
)

// BotStatus reports on the Telegram side.
type BotStatus interface {
	Username() string
	Ready() bool
}

// QueueStatter reports queue statistics and the delivered-download count.
type QueueStatter interface {
	Stats(ctx context.Context) (*repository.QueueStats, int, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	bot      BotStatus
	queue    QueueStatter
	sizes    map[string]func() int
	tempPath string
	started  time.Time
}

// NewHealthHandler creates a new health handler. sizes maps a store name to
// its entry count.
func NewHealthHandler(bot BotStatus, queue QueueStatter, sizes map[string]func() int, tempPath string) *HealthHandler {
	return &HealthHandler{
		bot:      bot,
		queue:    queue,
		sizes:    sizes,
		tempPath: tempPath,
		started:  time.Now(),
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Queue     *repository.QueueStats `json:"queue,omitempty"`
}

// Index handles GET /.
func (h *HealthHandler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("mediabot is running"))
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe. Not ready until the bot is
// polling for updates.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)
	if !h.bot.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "starting", Timestamp: now})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, _, err := h.queue.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "error", Timestamp: now})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: now, Queue: stats})
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Status        string                 `json:"status"`
	Bot           string                 `json:"bot"`
	Ready         bool                   `json:"ready"`
	Uptime        int64                  `json:"uptime_seconds"`
	UptimeHuman   string                 `json:"uptime_human"`
	Queue         *repository.QueueStats `json:"queue,omitempty"`
	Delivered     int                    `json:"delivered"`
	Stores        map[string]int         `json:"stores"`
	MemAllocMB    int64                  `json:"mem_alloc_mb"`
	MemSysMB      int64                  `json:"mem_sys_mb"`
	NumGoroutines int                    `json:"num_goroutines"`
	CPUPct        float64                `json:"cpu_pct"`
	TempPath      string                 `json:"temp_path"`
	DiskFreeBytes int64                  `json:"disk_free_bytes"`
	DiskTotal     int64                  `json:"disk_total_bytes"`
	DiskUsedPct   float64                `json:"disk_used_pct"`
	Error         string                 `json:"error,omitempty"`
}

// Status handles GET /status - runtime statistics.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.started)
	resp := StatusResponse{
		Status:        "ok",
		Bot:           "@" + h.bot.Username(),
		Ready:         h.bot.Ready(),
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		Stores:        make(map[string]int, len(h.sizes)),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		CPUPct:        getCPUUsage(),
		TempPath:      h.tempPath,
	}

	names := make([]string, 0, len(h.sizes))
	for name := range h.sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		resp.Stores[name] = h.sizes[name]()
	}

	total, free, _, usedPct := getDiskStats(h.tempPath)
	resp.DiskTotal = total
	resp.DiskFreeBytes = free
	resp.DiskUsedPct = usedPct

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	stats, delivered, err := h.queue.Stats(ctx)
	if err != nil {
		resp.Status = "degraded"
		resp.Error = err.Error()
	} else {
		resp.Queue = stats
		resp.Delivered = delivered
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
