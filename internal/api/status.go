package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/browser"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/internal/metrics"
)

const (
	defaultLogLines = 200
	maxLogLines     = 10000

	// browserMemoryMB is the memory budget of one pooled Chrome process.
	browserMemoryMB  = 300
	maxSuggestedPool = 16
)

// Status is the body of /api/status.
type Status struct {
	Uptime            float64             `json:"uptime"`
	UptimeHuman       string              `json:"uptime_human"`
	ActiveSessions    int                 `json:"active_sessions"`
	MemoryUsageMB     float64             `json:"memory_usage_mb"`
	System            metrics.SystemStats `json:"system"`
	Pool              *browser.PoolStats  `json:"pool,omitempty"`
	PoolUtilization   float64             `json:"pool_utilization"`
	SuggestedPoolSize int                 `json:"suggested_pool_size"`
	CacheHitRate      float64             `json:"cache_hit_rate"`
	Metrics           *metrics.Snapshot   `json:"metrics"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.started)
	sys := s.sampler.Sample()

	snap := s.metrics.Snapshot()
	st := Status{
		Uptime:            uptime.Seconds(),
		UptimeHuman:       uptime.Round(time.Second).String(),
		MemoryUsageMB:     float64(sys.ProcessRSS) / (1 << 20),
		System:            sys,
		PoolUtilization:   snap.BrowserPoolUtilization(),
		SuggestedPoolSize: metrics.SuggestPoolSize(sys.AvailableMemory, browserMemoryMB, maxSuggestedPool),
		CacheHitRate:      snap.CacheHitRate(),
		Metrics:           snap,
	}
	if s.tasks != nil {
		st.ActiveSessions = s.tasks.Active()
	}
	if s.pool != nil {
		ps := s.pool.Stats()
		st.Pool = &ps
	}
	writeJSON(w, http.StatusOK, st)
}

// handleLogs returns the last ?lines= lines of the log file as plain text.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.LogFile == "" {
		writeError(w, http.StatusNotFound, "Logs not available", "no log file is configured")
		return
	}

	n := defaultLogLines
	if v := r.URL.Query().Get("lines"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "Invalid lines", "lines must be a positive integer")
			return
		}
		n = min(parsed, maxLogLines)
	}

	lines, err := logger.Tail(s.cfg.LogFile, n)
	if err != nil {
		s.fail(w, r, "Error reading logs", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if len(lines) > 0 {
		io.WriteString(w, strings.Join(lines, "\n")+"\n")
	}
}
