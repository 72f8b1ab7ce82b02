// Package httpserver provides the health API: a read-only view over the
// repository plus a liveness signal.
package httpserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/netwatch/internal/model"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Config for the health server.
type Config struct {
	Addr         string
	Interval     time.Duration // ping interval; liveness window is 2x this
	AuthUser     string
	AuthPassword string
	AllowPublic  bool // explicit bypass for non-loopback binds without auth
}

// Server exposes /health and /ready.
type Server struct {
	cfg    Config
	source model.SnapshotSource
	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer validates the bind address policy: a non-loopback bind without
// credentials requires the explicit bypass flag, otherwise startup must be
// refused (exit code 2 at the caller).
func NewServer(cfg Config, source model.SnapshotSource) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = model.DefaultInterval
	}

	if !isLoopback(cfg.Addr) && cfg.AuthUser == "" && !cfg.AllowPublic {
		return nil, fmt.Errorf("refusing non-loopback health bind %q without credentials or explicit bypass", cfg.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		source:   source,
		ctx:      ctx,
		cancel:   cancel,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// Start begins serving.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.rateLimit())
	if s.cfg.AuthUser != "" {
		r.Use(s.basicAuth())
	}

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(s.rateLimit())
	if s.cfg.AuthUser != "" {
		r.Use(s.basicAuth())
	}
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	return r
}

// handleHealth is live when at least one sample landed within 2x the ping
// interval.
func (s *Server) handleHealth(c *gin.Context) {
	snap := s.source.Snapshot()
	window := 2 * s.cfg.Interval
	live := !snap.LastSampleAt.IsZero() && time.Since(snap.LastSampleAt) <= window

	status := http.StatusOK
	state := "ok"
	if !live {
		status = http.StatusServiceUnavailable
		state = "stale"
	}
	c.JSON(status, gin.H{
		"status":         state,
		"target":         snap.Target,
		"uptime":         time.Since(snap.StartTime).String(),
		"samples":        snap.Counters.Sent,
		"last_sample_at": snap.LastSampleAt,
	})
}

// handleReady additionally requires the ping worker's first completed tick.
func (s *Server) handleReady(c *gin.Context) {
	snap := s.source.Snapshot()
	window := 2 * s.cfg.Interval
	live := !snap.LastSampleAt.IsZero() && time.Since(snap.LastSampleAt) <= window

	if live && snap.FirstTickDone {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
}

func (s *Server) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.AuthUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.AuthPassword)) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="netwatch"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// rateLimit bounds requests per client IP.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := clientIP(c.Request)

		s.mu.Lock()
		l, ok := s.limiters[ip]
		if !ok {
			l = rate.NewLimiter(rate.Limit(1), 60) // 60/min
			s.limiters[ip] = l
		}
		if len(s.limiters) > 10_000 {
			s.limiters = map[string]*rate.Limiter{ip: l}
		}
		s.mu.Unlock()

		if !l.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "" || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
