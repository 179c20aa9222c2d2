// Package api implements the HTTP surface (§6): attach/detach destination
// endpoints, the session list, and the per-session SSE event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sessionrelay/tailwatch/pkg/events"
	"github.com/sessionrelay/tailwatch/pkg/registry"
	"github.com/sessionrelay/tailwatch/pkg/version"
)

// heartbeatInterval is how often an idle SSE stream sends a ping comment
// to keep intermediaries from closing the connection, per §6.
const heartbeatInterval = 15 * time.Second

// Server is the HTTP API server fronting a Registry.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	reg        *registry.Registry
	logger     *slog.Logger
}

// NewServer builds a Server with routes registered against reg.
func NewServer(reg *registry.Registry) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		reg:    reg,
		logger: slog.Default().With("component", "api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.POST("/attach", s.attachHandler)
	s.engine.POST("/detach", s.detachHandler)
	s.engine.GET("/sessions", s.listSessionsHandler)
	s.engine.GET("/sessions/:session_id/events", s.sessionEventsHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, for
// tests that need an OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version.Full(),
	})
}

func (s *Server) attachHandler(c *gin.Context) {
	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	dest, err := parseDestination(req.Destination)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Attach is idempotent (§4.9): a destination already attached to this
	// session is success, not a conflict.
	if err := s.reg.Attach(req.SessionID, req.Path, dest); err != nil {
		s.logger.Error("attach failed", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResponse{OK: true})
}

func (s *Server) detachHandler(c *gin.Context) {
	var req detachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	dest, err := parseDestination(req.Destination)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Detach of an unknown (session, destination) pair is success, not a
	// 404, per §6.
	if err := s.reg.Detach(req.SessionID, dest); err != nil {
		s.logger.Error("detach failed", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResponse{OK: true})
}

func (s *Server) listSessionsHandler(c *gin.Context) {
	infos := s.reg.List()
	out := make([]sessionInfo, 0, len(infos))
	for _, info := range infos {
		dests := make([]sessionDestination, 0, len(info.Destinations))
		for _, d := range info.Destinations {
			dests = append(dests, toSessionDestination(d))
		}
		out = append(out, sessionInfo{SessionID: info.SessionID, Path: info.Path, Destinations: dests})
	}
	c.JSON(http.StatusOK, out)
}

// sessionEventsHandler streams a session's event buffer backlog followed
// by live events as SSE, per §4.5/§6. Gin has no built-in SSE helper, so
// this writes directly to the underlying ResponseWriter with manual
// flushing, the same shape as the teacher's WebSocket upgrade handler
// adapted from a bidirectional upgrade to a one-way streaming response.
func (s *Server) sessionEventsHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	backlog, sub, unsubscribe, ok := s.reg.Subscribe(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "unknown session"})
		return
	}
	defer unsubscribe()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	for _, ev := range backlog {
		if err := writeSSEEvent(c.Writer, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeSSEEvent(c.Writer, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := c.Writer.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev events.Event) error {
	payload, err := events.MarshalSSE(ev)
	if err != nil {
		return errors.New("api: failed to marshal event")
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
