// Package api exposes the tracker controls over HTTP
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hotel-price-tracker/utils"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Server is the control API with lifecycle management
type Server struct {
	server *http.Server
	logger *utils.Logger
}

// NewServer builds the router for h and binds it to addr
func NewServer(addr string, h *Handler, logger *utils.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	SetupRoutes(router, h)

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests, up to a fixed timeout
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("API stopped")
	return nil
}

func requestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// SetupRoutes registers every endpoint on router
func SetupRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", h.Health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/listings", h.ListListings)
	v1.POST("/listings", h.TrackListing)
	v1.DELETE("/listings", h.UntrackListing)
	v1.POST("/refresh", h.Refresh)
	v1.GET("/changes", h.ListChanges)
	v1.GET("/dates", h.GetDates)
	v1.PUT("/dates", h.SetDates)
	v1.GET("/interval", h.GetInterval)
	v1.PUT("/interval", h.SetInterval)
}
