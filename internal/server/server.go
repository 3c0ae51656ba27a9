// Package server exposes the local status API around one protocol client:
// health, session status, tuning, and metrics.
package server

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kmorris/sdrctl/internal/client"
	"github.com/kmorris/sdrctl/internal/observability"
)

// Controller is the client surface the status API drives.
type Controller interface {
	Status() client.Status
	SetFrequency(ctx context.Context, frequencyHz uint64, channel uint8) ([]byte, error)
}

type Config struct {
	ListenAddr  string
	CorsOrigins []string
}

type Server struct {
	cfg       Config
	ctl       Controller
	router    *gin.Engine
	startedAt time.Time
}

func New(cfg Config, ctl Controller) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.RequestLogger(observability.Component("server")))
	router.Use(observability.RequestMetricsMiddleware())
	if len(cfg.CorsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET", "PUT"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		cfg:       cfg,
		ctl:       ctl,
		router:    router,
		startedAt: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Router returns the underlying handler, used directly by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run() error {
	return s.router.Run(s.cfg.ListenAddr)
}
