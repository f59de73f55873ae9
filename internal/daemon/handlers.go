package daemon

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kioskd/kioskd/internal/common"
	"github.com/kioskd/kioskd/internal/config"
	"github.com/kioskd/kioskd/internal/lifecycle"
	"github.com/kioskd/kioskd/internal/models"
)

const defaultLogLimit = 100

type HealthResponse struct {
	Status    string `json:"status"`
	Phase     string `json:"phase"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

type StatusResponse struct {
	lifecycle.Status

	KioskID       string           `json:"kiosk_id"`
	Uptime        string           `json:"uptime"`
	TotalRequests int64            `json:"total_requests"`
	Build         common.BuildInfo `json:"build"`
}

type LogsResponse struct {
	Count   int                `json:"count"`
	Entries []models.LogEntry `json:"entries"`
}

// healthHandler reports unhealthy once the controller has terminated so a
// supervisor probing the port notices the pending exit.
func (s *Server) healthHandler(c *gin.Context) {
	status := s.Status.Status()

	code := http.StatusOK
	state := "healthy"
	if status.Outcome != nil {
		code = http.StatusServiceUnavailable
		state = "terminating"
	}

	c.JSON(code, HealthResponse{
		Status:    state,
		Phase:     status.Phase,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.GetVersion(),
	})
}

func (s *Server) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:        s.Status.Status(),
		KioskID:       s.KioskID.String(),
		Uptime:        time.Since(s.StartTime).Round(time.Second).String(),
		TotalRequests: atomic.LoadInt64(&s.TotalRequests),
		Build:         common.GetBuildInfo(),
	})
}

// logsHandler returns recent entries. Query: level=warn,error limit=N
// since=RFC3339 phase=full_session run=<id>.
func (s *Server) logsHandler(c *gin.Context) {
	filter := config.LogFilter{
		Limit: defaultLogLimit,
		Run:   c.Query("run"),
		Phase: c.Query("phase"),
	}

	if raw := c.Query("limit"); len(raw) > 0 {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	if raw := c.Query("level"); len(raw) > 0 {
		for _, name := range strings.Split(raw, ",") {
			level, err := logrus.ParseLevel(strings.TrimSpace(name))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown level " + name})
				return
			}
			filter.Levels = append(filter.Levels, level)
		}
	}

	if raw := c.Query("since"); len(raw) > 0 {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		filter.Since = &since
	}

	entries := s.Config.GetJournal().Entries(filter)

	c.JSON(http.StatusOK, LogsResponse{
		Count:   len(entries),
		Entries: entries,
	})
}
