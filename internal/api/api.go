// Package api serves a station over HTTP with gin. It is the surface a
// scanning UI drives: scan, guest management, imports, sync session control
// and reset.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/eventguard/internal/checkin"
	"github.com/roach88/eventguard/internal/engine"
	"github.com/roach88/eventguard/internal/importer"
	"github.com/roach88/eventguard/internal/metrics"
	"github.com/roach88/eventguard/internal/model"
	"github.com/roach88/eventguard/internal/protocol"
)

// MsgGuestExists is shown when a guest is added with a taken id.
const MsgGuestExists = "Error: Guest ID already exists."

// joinWait bounds how long POST /v1/session/join waits for the host link.
const joinWait = 10 * time.Second

// maxImportBytes bounds an import request body.
const maxImportBytes = 10 << 20

// Server routes HTTP requests to an engine.
type Server struct {
	engine  *engine.Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
	router  *gin.Engine
}

// New builds the router. release selects gin's release mode.
func New(e *engine.Engine, m *metrics.Metrics, logger *slog.Logger, release bool) *Server {
	if release {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: e, metrics: m, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger("/healthz", "/metrics"))

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/status", s.status)
	v1.GET("/stats", s.stats)
	v1.GET("/alerts", s.alerts)

	v1.GET("/guests", s.listGuests)
	v1.POST("/guests", s.addGuest)
	v1.POST("/guests/import", s.importGuests)
	v1.GET("/guests/:id", s.getGuest)
	v1.DELETE("/guests/:id", s.deleteGuest)

	v1.POST("/scans", s.scan)
	v1.GET("/logs", s.listLogs)
	v1.POST("/logs/merge", s.mergeLogs)

	v1.POST("/session/host", s.host)
	v1.POST("/session/join", s.join)
	v1.DELETE("/session", s.leave)
	v1.POST("/reset", s.reset)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.FullPath()] {
			return
		}
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "node": s.engine.NodeID()})
}

func (s *Server) status(c *gin.Context) {
	st, err := s.engine.Status(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.engine.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) alerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.engine.Alerts(queryInt(c, "limit", 0))})
}

func (s *Server) listGuests(c *gin.Context) {
	gs, err := s.engine.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guests": gs})
}

func (s *Server) getGuest(c *gin.Context) {
	g, err := s.engine.Guest(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

type guestRequest struct {
	ID       string `json:"id" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Category string `json:"category"`
}

func (s *Server) addGuest(c *gin.Context) {
	var req guestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := s.engine.AddGuest(c.Request.Context(), model.Guest{
		ID:       req.ID,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Category: req.Category,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// importGuests accepts a CSV body (text/csv) or a JSON array of guests.
func (s *Server) importGuests(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	var parsed importer.Result
	if strings.Contains(c.ContentType(), "csv") {
		parsed, err = importer.FromCSV(bytes.NewReader(body))
	} else {
		parsed, err = importer.FromJSON(body)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rep, err := s.engine.BulkImport(c.Request.Context(), parsed.Guests)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"added":   rep.Added,
		"skipped": rep.Skipped,
		"failed":  parsed.Failed,
		"notice":  rep.Notice,
	})
}

func (s *Server) deleteGuest(c *gin.Context) {
	rep, err := s.engine.DeleteGuest(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

type scanRequest struct {
	GuestID string `json:"guestId" binding:"required"`
	Day     int    `json:"day" binding:"required"`
}

func (s *Server) scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := model.ParseDay(req.Day)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.engine.Scan(c.Request.Context(), req.GuestID, day)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listLogs(c *gin.Context) {
	logs, err := s.engine.Logs(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scanLogs": logs})
}

func (s *Server) mergeLogs(c *gin.Context) {
	var logs []model.ScanLog
	if err := c.ShouldBindJSON(&logs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.engine.MergeLogs(c.Request.Context(), logs)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) host(c *gin.Context) {
	code, err := s.engine.StartHosting(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": code})
}

type joinRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := s.engine.JoinSession(ctx, req.Code); err != nil {
		s.fail(c, err)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, joinWait)
	defer cancel()
	if err := s.engine.AwaitSession(waitCtx); err != nil {
		s.logger.Warn("join failed", "code", req.Code, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": engine.MsgJoinFailed})
		return
	}

	st, err := s.engine.Status(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) leave(c *gin.Context) {
	if err := s.engine.LeaveSession(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) reset(c *gin.Context) {
	if err := s.engine.Reset(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps engine errors to HTTP responses.
func (s *Server) fail(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, err.Error()
	switch {
	case errors.Is(err, checkin.ErrGuestExists):
		status, msg = http.StatusConflict, MsgGuestExists
	case errors.Is(err, checkin.ErrGuestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidGuest), errors.Is(err, protocol.ErrInvalidCode):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrSessionActive), errors.Is(err, engine.ErrNoSession):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
