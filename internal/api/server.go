// Package api exposes the counting controller over HTTP and WebSocket
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereceipt/printcounter/internal/command"
	"github.com/thereceipt/printcounter/internal/config"
	"github.com/thereceipt/printcounter/internal/controller"
	"github.com/thereceipt/printcounter/internal/logger"
)

const (
	maxHeaderBytes    = 1 << 20
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server is the API server
type Server struct {
	router     *gin.Engine
	ctrl       *controller.Controller
	history    command.HistoryLister
	executor   *command.Executor
	log        *logger.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer creates a new API server. history may be nil.
func NewServer(ctrl *controller.Controller, history command.HistoryLister, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	server := &Server{
		router:   router,
		ctrl:     ctrl,
		history:  history,
		executor: command.NewExecutor(ctrl, history),
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local control surface
			},
		},
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.router.GET("/state", s.handleGetState)

	count := s.router.Group("/count")
	{
		count.POST("/increment", s.handleIncrement)
		count.POST("/reset", s.handleReset)
	}

	s.router.POST("/print", s.handlePrint)
	s.router.POST("/print/test", s.handleTestPrint)

	auto := s.router.Group("/auto")
	{
		auto.POST("/start", s.handleStartAuto)
		auto.POST("/stop", s.handleStopAuto)
	}

	s.router.GET("/settings", s.handleGetSettings)
	s.router.PUT("/settings", s.handleUpdateSettings)

	s.router.POST("/orders/clear", s.handleClearOrders)
	s.router.GET("/history", s.handleHistory)

	// Command endpoint
	s.router.POST("/command", s.handleCommand)

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleGetState returns the current snapshot
func (s *Server) handleGetState(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleIncrement(c *gin.Context) {
	s.respond(c, s.ctrl.Increment())
}

func (s *Server) handleReset(c *gin.Context) {
	s.respond(c, s.ctrl.Reset())
}

// handlePrint blocks until the receipt is out. A client that disconnects
// does not stop the transfer.
func (s *Server) handlePrint(c *gin.Context) {
	s.respond(c, s.ctrl.PrintNow(c.Request.Context()))
}

func (s *Server) handleTestPrint(c *gin.Context) {
	s.respond(c, s.ctrl.TestPrint(c.Request.Context()))
}

// startAutoRequest falls back to the saved auto defaults for missing fields
type startAutoRequest struct {
	MaxCount *int     `json:"max_count"`
	Interval *float64 `json:"interval"` // seconds
}

func (s *Server) handleStartAuto(c *gin.Context) {
	var req startAutoRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
			return
		}
	}

	cfg := s.ctrl.Config()
	maxCount, interval := cfg.AutoMaxCount, cfg.AutoInterval
	if req.MaxCount != nil {
		maxCount = *req.MaxCount
	}
	if req.Interval != nil {
		interval = *req.Interval
	}

	s.respond(c, s.ctrl.StartAuto(maxCount, config.SecondsToDuration(interval)))
}

func (s *Server) handleStopAuto(c *gin.Context) {
	s.respond(c, s.ctrl.StopAuto())
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Config())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	// Missing fields keep their current value
	cfg := s.ctrl.Config()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	if err := s.ctrl.UpdateSettings(cfg); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Config())
}

func (s *Server) handleClearOrders(c *gin.Context) {
	s.respond(c, s.ctrl.ClearOrderNumber(c.Request.Context()))
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "print history is not available"})
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		s.log.Errorw("history query failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	result := s.executor.Execute(c.Request.Context(), req.Command)

	if result.Success {
		response := gin.H{
			"success": true,
		}
		if result.Message != "" {
			response["message"] = result.Message
		}
		for k, v := range result.Data {
			response[k] = v
		}
		c.JSON(http.StatusOK, response)
		return
	}

	status := http.StatusBadRequest
	if result.Kind != controller.KindNone {
		status = statusForKind(result.Kind)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   result.Error,
		"kind":    result.Kind,
	})
}

// respond writes the snapshot on success or the mapped error
func (s *Server) respond(c *gin.Context, err error) {
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) respondError(c *gin.Context, err error) {
	kind := controller.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		s.log.Warnw("request failed", "path", c.FullPath(), "kind", kind, "err", err)
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"kind":  kind,
		"state": s.ctrl.Snapshot(),
	})
}

// statusForKind maps the error taxonomy onto HTTP status codes
func statusForKind(kind controller.ErrorKind) int {
	switch kind {
	case controller.KindInvalidConfig:
		return http.StatusBadRequest
	case controller.KindInvalidOperation:
		return http.StatusConflict
	case controller.KindDeviceNotFound, controller.KindPermissionDenied,
		controller.KindDeviceBusy, controller.KindTransmissionError:
		return http.StatusBadGateway
	case controller.KindMonitorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
