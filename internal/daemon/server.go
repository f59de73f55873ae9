// Package daemon serves the kiosk status endpoints on the loopback interface.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kioskd/kioskd/internal/common"
	"github.com/kioskd/kioskd/internal/config"
	"github.com/kioskd/kioskd/internal/lifecycle"
	"github.com/kioskd/kioskd/internal/metrics"
)

// StatusProvider is satisfied by the lifecycle controller.
type StatusProvider interface {
	Status() lifecycle.Status
}

// Server represents the status server the operator can poll
type Server struct {
	Config        *config.Config
	Status        StatusProvider
	Metrics       *metrics.Metrics
	KioskID       uuid.UUID
	StartTime     time.Time
	TotalRequests int64

	server   *http.Server
	listener net.Listener
}

func NewServer(cfg *config.Config, status StatusProvider, m *metrics.Metrics) *Server {
	return &Server{
		Config:    cfg,
		Status:    status,
		Metrics:   m,
		KioskID:   common.GetKioskIdentifier(),
		StartTime: time.Now().UTC(),
	}
}

func (s *Server) GetVersion() string {
	info := common.GetBuildInfo()
	if len(info.GitCommit) > 0 {
		return fmt.Sprintf("%s (git: %s)", info.Version, info.GitCommit)
	}
	return info.Version
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return net.JoinHostPort(s.Config.Server.Host, strconv.Itoa(s.Config.Server.Port))
	}
	return s.listener.Addr().String()
}

// Handler builds the router without binding a socket.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logrus.WithFields(logrus.Fields{
			"panic": recovered,
			"path":  c.Request.URL.Path,
		}).Error("Recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}))
	router.Use(CorrelationMiddleware())
	router.Use(s.requestCounterMiddleware())

	s.setupRoutes(router)

	return router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.Config.Server.Host, strconv.Itoa(s.Config.Server.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("Status server stopped")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"addr": listener.Addr().String(),
	}).Info("Status server started")

	return nil
}

func (s *Server) Stop() {
	if s.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Status server shutdown")
	}
}

// requestCounterMiddleware increments the request counter
func (s *Server) requestCounterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		atomic.AddInt64(&s.TotalRequests, 1)
		c.Next()
	}
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthHandler)
	router.GET("/status", s.statusHandler)
	router.GET("/logs", s.logsHandler)
	router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
}
