// Package httpapi exposes the dispatcher over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poiesic/searchgate/dispatch"
)

const maxBodyBytes = 1 << 20

// Invoker runs named operations.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) dispatch.Response
	Tools() []dispatch.ToolInfo
}

// Server serves the tool endpoints, health checks and metrics.
type Server struct {
	router  *gin.Engine
	invoker Invoker
	logger  *slog.Logger
}

// NewServer builds the routes for invoker.
func NewServer(invoker Invoker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		invoker: invoker,
		logger:  logger.With("component", "http"),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "searchgate"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	v1.GET("/tools", s.listTools)
	v1.POST("/tools/call", s.callTool)
	v1.POST("/tools/:name", s.callNamedTool)
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) listTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.invoker.Tools()})
}

func (s *Server) callTool(c *gin.Context) {
	var inv dispatch.Invocation
	if err := c.ShouldBindJSON(&inv); err != nil {
		c.JSON(http.StatusBadRequest, dispatch.ErrorResponse(dispatch.ErrorKindInvalidArguments, "invalid request body: "+err.Error()))
		return
	}
	s.respond(c, s.invoker.Invoke(c.Request.Context(), inv.Name, inv.Arguments))
}

func (s *Server) callNamedTool(c *gin.Context) {
	var args map[string]any
	if err := c.ShouldBindJSON(&args); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dispatch.ErrorResponse(dispatch.ErrorKindInvalidArguments, "invalid request body: "+err.Error()))
		return
	}
	s.respond(c, s.invoker.Invoke(c.Request.Context(), c.Param("name"), args))
}

// respond writes the envelope. Failures the caller can fix get a 4xx status;
// handler failures are reported in the envelope with 200.
func (s *Server) respond(c *gin.Context, resp dispatch.Response) {
	status := http.StatusOK
	switch resp.Kind {
	case dispatch.ErrorKindUnknownOperation:
		status = http.StatusNotFound
	case dispatch.ErrorKindInvalidArguments:
		status = http.StatusBadRequest
	}
	c.JSON(status, resp)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
