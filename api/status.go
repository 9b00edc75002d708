package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gitlab.com/nunet/gpu-hyena/monitor"
)

type handlers struct {
	monitor *monitor.Monitor
}

type statusResponse struct {
	monitor.TickResult
	LastNotifiedAt  *time.Time `json:"last_notified_at"`
	CooldownSeconds float64    `json:"cooldown_seconds"`
}

func (h *handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStatus returns the outcome of the latest tick.
func (h *handlers) HandleStatus(c *gin.Context) {
	last, ok := h.monitor.Status().Last()
	if !ok {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, NewNoTickYetProblem())
		return
	}

	resp := statusResponse{
		TickResult:      last,
		CooldownSeconds: h.monitor.Notifier().Cooldown().Seconds(),
	}
	if at, ok := h.monitor.Notifier().LastNotifiedAt(); ok {
		resp.LastNotifiedAt = &at
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) HandlePolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Policy())
}
