// Package status serves the liveness and readiness endpoints.
package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Readiness reports whether the bot is connected and initialized.
type Readiness interface {
	Ready() bool
}

// Server is the health HTTP server.
type Server struct {
	addr      string
	readiness Readiness
	server    *http.Server
	logger    *zap.Logger
}

// NewServer creates a status server listening on addr.
func NewServer(addr string, readiness Readiness, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		addr:      addr,
		readiness: readiness,
		logger:    logger.Named("status"),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/readyz", s.handleReadyz)
	return engine
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	if !s.readiness.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", zap.String("addr", s.addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down status server: %w", err)
	}
	return nil
}
