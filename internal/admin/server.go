// Package admin serves the operator HTTP surface for a running gateway.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/pomelogate/internal/auth"
	"github.com/danmuck/pomelogate/internal/observability"
	"github.com/danmuck/pomelogate/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	version           = "0.1.0"
	defaultKickReason = "kicked by admin"
	shutdownTimeout   = 5 * time.Second
)

// Gateway is the slice of the gateway the admin routes need.
type Gateway interface {
	ServerID() string
	Ready() bool
	Sessions() []session.Snapshot
	Lookup(id string) (session.Snapshot, bool)
	Kick(id, reason string) error
	Broadcast(route string, body any) int
	Routes() []string
}

// Options configures the admin surface. An empty Token leaves the mutating
// routes open.
type Options struct {
	CORSOrigins []string
	Token       string
}

type Server struct {
	gw      Gateway
	router  *gin.Engine
	guard   gin.HandlerFunc
	started time.Time
}

type kickRequest struct {
	Reason string `json:"reason"`
}

type broadcastRequest struct {
	Route string         `json:"route"`
	Body  map[string]any `json:"body"`
}

func New(gw Gateway, opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminRequests(log.Logger, gw.ServerID()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{gw: gw, router: r, guard: func(c *gin.Context) { c.Next() }, started: time.Now()}
	if token := strings.TrimSpace(opts.Token); token != "" {
		s.guard = auth.Require(auth.StaticToken{Token: token})
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.gw.ServerID(),
			"version": version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		ready := s.gw.Ready()
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.started).String(),
			"service": s.gw.ServerID(),
			"version": version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/sessions", func(c *gin.Context) {
		list := s.gw.Sessions()
		c.JSON(http.StatusOK, gin.H{"count": len(list), "sessions": list})
	})

	r.GET("/sessions/:id", func(c *gin.Context) {
		snap, ok := s.gw.Lookup(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	r.POST("/sessions/:id/kick", s.guard, func(c *gin.Context) {
		id := c.Param("id")
		if _, ok := s.gw.Lookup(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		var req kickRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = defaultKickReason
		}
		if err := s.gw.Kick(id, reason); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrClosed) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		log.Info().Str("session", id).Str("reason", reason).Msg("admin kick")
		c.JSON(http.StatusOK, gin.H{"status": "ok", "session": id})
	})

	r.GET("/routes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"routes": s.gw.Routes()})
	})

	r.POST("/broadcast", s.guard, func(c *gin.Context) {
		var req broadcastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if strings.TrimSpace(req.Route) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "route required"})
			return
		}
		sent := s.gw.Broadcast(req.Route, req.Body)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sent": sent})
	})
}

// Serve runs the admin HTTP server on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
