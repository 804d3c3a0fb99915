package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/pomelogate/internal/admin"
	"github.com/danmuck/pomelogate/internal/route"
	"github.com/danmuck/pomelogate/internal/session"
	"github.com/danmuck/pomelogate/internal/transport"
	"github.com/rs/zerolog/log"
)

var ErrSessionNotFound = errors.New("gateway: session not found")

// ServiceConfig is the front-end listener configuration.
type ServiceConfig struct {
	ListenAddr      string
	AdminListenAddr string
	ServerID        string
	CORSOrigins     []string
	AdminToken      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	Session         session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      ":3010",
		AdminListenAddr: "127.0.0.1:3011",
		ServerID:        "connector-server-1",
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		Session:         session.DefaultConfig(),
	}
}

// Service accepts client connections and runs one session per connection.
type Service struct {
	cfg    ServiceConfig
	routes *route.Registry

	ready  atomic.Bool
	active atomic.Int64

	mu       sync.RWMutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup
}

func NewService(routes *route.Registry) *Service {
	return NewServiceWithConfig(DefaultServiceConfig(), routes)
}

func NewServiceWithConfig(cfg ServiceConfig, routes *route.Registry) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	if strings.TrimSpace(cfg.ServerID) == "" {
		cfg.ServerID = DefaultServiceConfig().ServerID
	}
	if routes == nil {
		routes = route.NewRegistry()
	}
	return &Service{
		cfg:      cfg,
		routes:   routes,
		sessions: make(map[string]*session.Session),
	}
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// Run blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext listens on the configured addresses and serves until ctx is
// done or a listener fails.
func (s *Service) RunContext(ctx context.Context) error {
	ln, err := transport.Listen(s.cfg.ListenAddr, s.transportOptions())
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", s.cfg.ListenAddr, err)
	}
	log.Info().Str("addr", ln.Addr().String()).Str("server_id", s.cfg.ServerID).Msg("gateway listening")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		adminLn, err := net.Listen("tcp", addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("gateway: admin listen %s: %w", addr, err)
		}
		srv := admin.New(s, admin.Options{CORSOrigins: s.cfg.CORSOrigins, Token: s.cfg.AdminToken})
		go func() {
			adminErr <- srv.Serve(ctx, adminLn)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			cancel()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}

func (s *Service) transportOptions() transport.Options {
	return transport.Options{
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
}

// Serve accepts on ln until ctx is done. Every live session is closed and
// drained before Serve returns.
func (s *Service) Serve(ctx context.Context, ln transport.Listener) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.ready.Store(true)
	defer s.ready.Store(false)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.closeAll()
			s.wg.Wait()
			if ctx.Err() != nil || transport.IsClosed(err) {
				return nil
			}
			return err
		}
		sess := session.New(conn, s.routes, s.cfg.Session)
		s.track(sess)
		s.wg.Add(1)
		go s.handle(ctx, sess)
	}
}

func (s *Service) handle(ctx context.Context, sess *session.Session) {
	defer s.wg.Done()
	defer s.untrack(sess)

	remote := sess.RemoteAddr().String()
	active := s.active.Add(1)
	log.Info().Str("session", sess.ID()).Str("remote", remote).Int64("active_clients", active).Msg("client connected")
	defer func() {
		remaining := s.active.Add(-1)
		log.Info().Str("session", sess.ID()).Str("remote", remote).Int64("active_clients", remaining).Msg("client disconnected")
	}()

	if err := sess.Run(ctx); err != nil {
		log.Warn().Str("session", sess.ID()).Err(err).Msg("session ended with error")
	}
}

func (s *Service) track(sess *session.Session) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
}

func (s *Service) untrack(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
}

func (s *Service) closeAll() {
	s.mu.RLock()
	live := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.RUnlock()
	for _, sess := range live {
		_ = sess.Close()
	}
}

func (s *Service) get(id string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Service) ServerID() string { return s.cfg.ServerID }

func (s *Service) Ready() bool { return s.ready.Load() }

func (s *Service) Routes() []string { return s.routes.Routes() }

// Sessions returns snapshots of live sessions ordered by connect time.
func (s *Service) Sessions() []session.Snapshot {
	s.mu.RLock()
	out := make([]session.Snapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Snapshot())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (s *Service) Lookup(id string) (session.Snapshot, bool) {
	sess, ok := s.get(id)
	if !ok {
		return session.Snapshot{}, false
	}
	return sess.Snapshot(), true
}

func (s *Service) Kick(id, reason string) error {
	sess, ok := s.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Kick(reason)
}

// Broadcast pushes body on route to every working session and returns how
// many pushes were written.
func (s *Service) Broadcast(routeName string, body any) int {
	s.mu.RLock()
	live := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.RUnlock()

	sent := 0
	for _, sess := range live {
		if sess.State() != session.StateWorking {
			continue
		}
		if err := sess.Push(routeName, body); err != nil {
			log.Debug().Str("session", sess.ID()).Err(err).Msg("broadcast push failed")
			continue
		}
		sent++
	}
	return sent
}

var _ admin.Gateway = (*Service)(nil)
