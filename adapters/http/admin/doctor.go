package admin

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

// DoctorResponse represents the system health check response.
type DoctorResponse struct {
	Status     string         `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  string         `json:"timestamp"`
	Version    string         `json:"version"`
	Checks     []HealthCheck  `json:"checks"`
	System     SystemInfo     `json:"system"`
	Statistics StatisticsInfo `json:"statistics"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo represents system information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     string `json:"mem_alloc"`
	MemSys       string `json:"mem_sys"`
	Uptime       string `json:"uptime,omitempty"`
}

// StatisticsInfo represents ingestion statistics.
type StatisticsInfo struct {
	BufferedEvents   int `json:"buffered_events"`
	BufferedProjects int `json:"buffered_projects"`
}

// memoryWarnBytes is the heap size above which the memory check warns.
const memoryWarnBytes = 500 << 20

var startTime = time.Now()

// Doctor performs a comprehensive system health check.
//
//	@Summary		System health check
//	@Description	Checks every dependency and reports buffer and runtime statistics
//	@Tags			Admin
//	@Produce		json
//	@Success		200	{object}	DoctorResponse	"Health check results"
//	@Failure		503	{object}	DoctorResponse	"A dependency failed"
//	@Security		AdminToken
//	@Router			/admin/doctor [get]
func (h *Handler) Doctor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	response := DoctorResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Checks:    []HealthCheck{},
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		response.Checks = append(response.Checks, runCheck(ctx, name, h.checks[name]))
	}
	response.Checks = append(response.Checks, checkMemory())

	// Determine overall status
	hasWarn := false
	hasFail := false
	for _, check := range response.Checks {
		switch check.Status {
		case "warn":
			hasWarn = true
		case "fail":
			hasFail = true
		}
	}
	if hasFail {
		response.Status = "unhealthy"
	} else if hasWarn {
		response.Status = "degraded"
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	response.System = SystemInfo{
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		MemAlloc:     humanize.Bytes(memStats.Alloc),
		MemSys:       humanize.Bytes(memStats.Sys),
		Uptime:       time.Since(startTime).Round(time.Second).String(),
	}

	if h.buffers != nil {
		response.Statistics = StatisticsInfo{
			BufferedEvents:   h.buffers.Len(),
			BufferedProjects: len(h.buffers.Projects()),
		}
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

func runCheck(ctx context.Context, name string, c HealthChecker) HealthCheck {
	check := HealthCheck{Name: name, Status: "pass"}

	start := time.Now()
	err := c.HealthCheck(ctx)
	check.Latency = time.Since(start).String()

	if err != nil {
		check.Status = "fail"
		check.Message = fmt.Sprintf("%s check failed: %v", name, err)
	} else {
		check.Message = name + " healthy"
	}
	return check
}

func checkMemory() HealthCheck {
	check := HealthCheck{Name: "memory", Status: "pass"}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	if memStats.Alloc > memoryWarnBytes {
		check.Status = "warn"
		check.Message = "High memory usage: " + humanize.Bytes(memStats.Alloc)
	} else {
		check.Message = "Memory usage: " + humanize.Bytes(memStats.Alloc)
	}
	return check
}
