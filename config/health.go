package config

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type closedChecker interface {
	IsClosed() bool
}

type connectedChecker interface {
	IsConnected() bool
}

// HealthChecker reports broker status plus the archive and relay backends
// when they are attached.
type HealthChecker struct {
	db       pinger
	amqpConn closedChecker
	mqtt     connectedChecker
}

func NewHealthChecker(mqtt connectedChecker) *HealthChecker {
	return &HealthChecker{mqtt: mqtt}
}

func (h *HealthChecker) WithPostgres(db pinger) *HealthChecker {
	h.db = db
	return h
}

func (h *HealthChecker) WithRabbitMQ(conn closedChecker) *HealthChecker {
	h.amqpConn = conn
	return h
}

func (h *HealthChecker) Register(r *gin.Engine) {
	r.GET("/healthz", h.Handle)
}

func (h *HealthChecker) Handle(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}

	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			deps["postgres"] = gin.H{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			deps["postgres"] = gin.H{"status": "up"}
		}
	}

	if h.amqpConn != nil {
		if h.amqpConn.IsClosed() {
			deps["rabbitmq"] = gin.H{"status": "down", "error": "connection closed"}
			status = http.StatusServiceUnavailable
		} else {
			deps["rabbitmq"] = gin.H{"status": "up"}
		}
	}

	if !h.mqtt.IsConnected() {
		deps["mqtt"] = gin.H{"status": "down", "error": "not connected"}
		status = http.StatusServiceUnavailable
	} else {
		deps["mqtt"] = gin.H{"status": "up"}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
	})
}
