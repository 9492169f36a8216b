// Package api exposes the admin control plane: an authenticated HTTP
// surface that observes and mutates runtime state concurrently with the
// dispatch pipeline.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wabot/pkg/logger"
	"wabot/pkg/state"
)

// Server is the control-plane HTTP server.
type Server struct {
	apiKey  string
	state   *state.State
	log     *logger.Logger
	httpSrv *http.Server
}

// NewServer creates the control plane bound to the given runtime state.
func NewServer(apiKey string, st *state.State) *Server {
	return &Server{
		apiKey: apiKey,
		state:  st,
		log:    logger.Get().Component("api"),
	}
}

// Router builds the gin engine with all control-plane routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Liveness probe is the only unauthenticated endpoint.
	router.GET("/health", s.handleHealth)

	admin := router.Group("/api/admin")
	admin.Use(s.authMiddleware())
	{
		admin.GET("/status", s.handleStatus)
		admin.POST("/toggle", s.handleToggle)
		admin.GET("/users", s.handleUsers)
		admin.POST("/broadcast", s.handleBroadcast)
		admin.GET("/activity", s.handleActivity)
		admin.GET("/events", s.handleEvents)
	}

	return router
}

// Start serves the control plane in the background.
func (s *Server) Start(port int) {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.InfoWith("control plane listening", "port", port)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.ErrorWithErr("control plane server failed", err)
		}
	}()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
