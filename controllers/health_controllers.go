package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthController struct {
	DB        *gorm.DB
	StartedAt time.Time
}

func NewHealthController(db *gorm.DB) *HealthController {
	return &HealthController{DB: db, StartedAt: time.Now()}
}

func (hc *HealthController) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Health reports 503 when the database cannot be reached.
func (hc *HealthController) Health(c *gin.Context) {
	status, dbStatus, code := "ok", "up", http.StatusOK
	if sqlDB, err := hc.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status, dbStatus, code = "degraded", "down", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":   status,
		"database": dbStatus,
		"uptime":   time.Since(hc.StartedAt).Round(time.Second).String(),
	})
}
