package server

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type tuneRequest struct {
	FrequencyHz uint64 `json:"frequency_hz" binding:"required"`
	Channel     uint8  `json:"channel"`
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.startedAt).String(),
			"service": "sdrctl",
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.ctl.Status())
	})

	s.router.PUT("/frequency", func(c *gin.Context) {
		var req tuneRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ack, err := s.ctl.SetFrequency(c.Request.Context(), req.FrequencyHz, req.Channel)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if ack == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active connection"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"frequency_hz": req.FrequencyHz,
			"channel":      req.Channel,
			"ack":          hex.EncodeToString(ack),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
