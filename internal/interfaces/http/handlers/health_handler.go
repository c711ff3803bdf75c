package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/credcore/pkg/logger"
)

// Pinger is a dependency whose reachability is reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks map[string]Pinger
	log    logger.Logger
}

// NewHealthHandler creates a new HealthHandler. checks maps a dependency name
// to its Pinger; nil entries are skipped.
func NewHealthHandler(checks map[string]Pinger, log logger.Logger) *HealthHandler {
	active := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			active[name] = p
		}
	}
	return &HealthHandler{checks: active, log: log.WithComponent("health")}
}

// HealthCheck reports 200 when every dependency answers, 503 otherwise.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	results := h.performChecks(c.Request.Context())

	status, httpStatus := "healthy", http.StatusOK
	for _, r := range results {
		if r != "ok" {
			status, httpStatus = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    results,
	})
}

// LivenessCheck reports that the process is serving.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(h.checks))
	)
	for name, p := range h.checks {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			res := "ok"
			if err := p.Ping(ctx); err != nil {
				h.log.Warn(ctx, "health check failed", logger.String("dependency", name), logger.Err(err))
				res = "unavailable"
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()
	return results
}
