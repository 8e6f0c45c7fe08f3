package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	log "github.com/sirupsen/logrus"
)

// Version is the application version reported by the status endpoint.
const Version = "1.0.0"

var startTime = time.Now()

// GetStatus reports application health, resource usage and store counters.
func (h *APIHandler) GetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	cpuUsage := 0.0
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		cpuUsage = percentages[0]
	} else if err != nil {
		log.WithError(err).Debug("Failed to read CPU usage")
	}

	stats, err := h.repo.GetStatistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": Version,
		"uptime":  time.Since(startTime).Round(time.Second).String(),
		"system": gin.H{
			"num_cpu":      runtime.NumCPU(),
			"go_routines":  runtime.NumGoroutine(),
			"cpu_usage":    cpuUsage,
			"memory_alloc": memStats.Alloc,
			"memory_sys":   memStats.Sys,
		},
		"sessions": gin.H{
			"active": h.sessions.Count(),
			"max":    h.cfg.Stream.MaxConnections,
		},
		"store": stats,
	})
}
