// Package health provides the liveness and readiness probes shared by
// every service. Liveness is unconditional; readiness flips once a
// service has its dependencies (database pool, redis, broker) wired.
package health

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Manager tracks a single readiness bit. Safe for concurrent use.
type Manager struct {
	ready atomic.Bool
}

func NewManager(initialReady bool) *Manager {
	m := &Manager{}
	m.ready.Store(initialReady)
	return m
}

func (m *Manager) SetReady(ready bool) { m.ready.Store(ready) }

func (m *Manager) IsReady() bool { return m.ready.Load() }

// LivenessHandler answers 200 as long as the process serves requests.
func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadinessHandler answers 200 once the manager reports ready and 503
// before that, so rollouts only shift traffic to wired instances.
func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.IsReady() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
