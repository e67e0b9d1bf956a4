package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zsiec/avcore/pkg/version"
)

// healthTimeout bounds one /health request, across all checks.
const healthTimeout = 10 * time.Second

// Response is the /health body.
type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Commit    string            `json:"commit,omitempty"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]*Check `json:"checks,omitempty"`
}

// ReadyResponse is the /ready body. Failing lists checks that are down.
type ReadyResponse struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Failing   []string  `json:"failing,omitempty"`
}

// Handler serves the health endpoints of a Manager.
type Handler struct {
	manager   *Manager
	startTime time.Time
	now       func() time.Time
}

// NewHandler creates a handler; uptime counts from now.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager, startTime: time.Now(), now: time.Now}
}

// HandleHealth runs the checks and reports them. ?check=name restricts the
// body to one check; an unknown name is a 404. Degraded answers 200.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := h.manager.RunChecks(ctx)
	status := h.manager.GetOverallStatus()

	if name := r.URL.Query().Get("check"); name != "" {
		c, ok := checks[name]
		if !ok {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown check " + name})
			return
		}
		checks = map[string]*Check{name: c}
		status = c.Status
	}

	info := version.GetInfo()
	h.writeJSON(w, statusCode(status), Response{
		Status:    status,
		Timestamp: h.now(),
		Version:   info.Version,
		Commit:    info.GitCommit,
		Uptime:    formatUptime(h.now().Sub(h.startTime)),
		Checks:    checks,
	})
}

// HandleReady reports the last periodic results without running checks.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	status := h.manager.GetOverallStatus()

	var failing []string
	for name, c := range h.manager.GetResults() {
		if c.Status == StatusDown {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	h.writeJSON(w, statusCode(status), ReadyResponse{
		Status:    status,
		Timestamp: h.now(),
		Failing:   failing,
	})
}

// HandleLive answers as long as the process serves HTTP.
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": h.now(),
		"uptime":    formatUptime(h.now().Sub(h.startTime)),
	})
}

func statusCode(s Status) int {
	if s == StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// formatUptime renders non-zero units largest first, e.g. "2 hours 5
// seconds". Less than a second renders as "0 seconds".
func formatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	units := []struct {
		size int64
		name string
	}{{86400, "day"}, {3600, "hour"}, {60, "minute"}, {1, "second"}}

	var parts []string
	for _, u := range units {
		if n := total / u.size; n > 0 {
			parts = append(parts, plural(n, u.name))
			total -= n * u.size
		}
	}
	if len(parts) == 0 {
		return plural(0, "second")
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.FormatInt(n, 10) + " " + unit + "s"
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.manager.logger.WithError(err).Error("Failed to encode health response")
	}
}
