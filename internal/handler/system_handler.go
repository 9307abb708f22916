package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

const checkTimeout = 2 * time.Second

// Check probes one backing dependency.
type Check func(ctx context.Context) error

// SystemHandler reports process health and the state of the backing stores.
type SystemHandler struct {
	sessions  *service.SessionService
	checks    map[string]Check
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(sessions *service.SessionService, checks map[string]Check, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		sessions:  sessions,
		checks:    checks,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type dependencyStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type systemStatus struct {
	Status       string             `json:"status"`
	Uptime       string             `json:"uptime"`
	GoVersion    string             `json:"go_version"`
	Goroutines   int                `json:"goroutines"`
	HeapInUse    uint64             `json:"heap_inuse_bytes"`
	LiveSessions int                `json:"live_sessions"`
	Dependencies []dependencyStatus `json:"dependencies"`
}

// Health godoc
// GET /health
// Returns 200 when every dependency answers, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	st := systemStatus{
		Status:       "ok",
		Uptime:       formatDuration(time.Since(h.startTime)),
		GoVersion:    runtime.Version(),
		Goroutines:   runtime.NumGoroutine(),
		HeapInUse:    ms.HeapInuse,
		LiveSessions: h.sessions.Live(),
		Dependencies: []dependencyStatus{},
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dep := dependencyStatus{Name: name, OK: true}
		if err := h.checks[name](ctx); err != nil {
			dep.OK = false
			dep.Error = err.Error()
			st.Status = "degraded"
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
		}
		st.Dependencies = append(st.Dependencies, dep)
	}

	status := http.StatusOK
	if st.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, st)
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
