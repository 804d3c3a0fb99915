// Package client is a protocol client for pomelo front-end servers, used by
// the load robot and integration tests.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/pomelogate/internal/protocol/message"
	"github.com/danmuck/pomelogate/internal/protocol/packet"
	"github.com/danmuck/pomelogate/internal/protocol/reassembly"
	"github.com/danmuck/pomelogate/internal/session"
	"github.com/danmuck/pomelogate/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired  = errors.New("client: address required")
	ErrHandshakeRefused = errors.New("client: handshake refused")
	ErrHandshakeTimeout = errors.New("client: handshake timeout")
	ErrHeartbeatTimeout = errors.New("client: server heartbeat timeout")
	ErrKicked           = errors.New("client: kicked by server")
	ErrClosed           = errors.New("client: closed")
	ErrNotConnected     = errors.New("client: not connected")
)

type Config struct {
	Address            string
	ClientType         string
	ClientVersion      string
	User               map[string]any
	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	RequestTimeout     time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ClientType:         "go-tcp",
		ClientVersion:      "0.1.0",
		ConnectTimeout:     5 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		RequestTimeout:     30 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxConnectAttempts: 10,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.ClientType) == "" {
		c.ClientType = def.ClientType
	}
	if strings.TrimSpace(c.ClientVersion) == "" {
		c.ClientVersion = def.ClientVersion
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// PushFunc receives server pushes. body is nil when the payload is not a
// JSON object.
type PushFunc func(route string, body map[string]any)

type Client struct {
	cfg    Config
	rng    *rand.Rand
	logger zerolog.Logger

	conn        transport.Conn
	reassembler *reassembly.Reassembler

	mu                sync.Mutex
	nextID            uint64
	pending           map[uint64]chan map[string]any
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	lastSeen          time.Time
	onPush            PushFunc
	err               error

	handshakeCh chan session.HandshakeResponse
	closeOnce   sync.Once
	done        chan struct{}
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.withDefaults()
	return &Client{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      log.With().Str("client", cfg.Address).Logger(),
		pending:     make(map[uint64]chan map[string]any),
		handshakeCh: make(chan session.HandshakeResponse, 1),
		done:        make(chan struct{}),
	}, nil
}

// OnPush sets the push callback. Set it before Connect.
func (c *Client) OnPush(fn PushFunc) {
	c.mu.Lock()
	c.onPush = fn
	c.mu.Unlock()
}

// Connect dials with retry and completes the handshake. A refused
// handshake is not retried.
func (c *Client) Connect(ctx context.Context) error {
	var attempt int
	for {
		attempt++
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn().Int("attempt", attempt).Err(err).Msg("dial failed")
			if !c.shouldRetry(attempt) {
				return err
			}
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}
		c.conn = conn
		c.reassembler = reassembly.New(4096, 0)
		err = c.handshake(ctx)
		if err == nil {
			return nil
		}
		c.closeWith(err)
		return err
	}
}

func (c *Client) dial(ctx context.Context) (transport.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, err
	}
	return transport.Wrap(raw, transport.Options{WriteTimeout: c.cfg.WriteTimeout}), nil
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) handshake(ctx context.Context) error {
	var req session.HandshakeRequest
	req.Sys.Type = c.cfg.ClientType
	req.Sys.Version = c.cfg.ClientVersion
	req.User = c.cfg.User
	if req.User == nil {
		req.User = map[string]any{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := packet.Write(c.conn, packet.Handshake, body); err != nil {
		return fmt.Errorf("client: send handshake: %w", err)
	}
	go c.readLoop()

	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()
	var resp session.HandshakeResponse
	select {
	case resp = <-c.handshakeCh:
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrHandshakeTimeout
	}
	if resp.Code != session.CodeOK {
		return fmt.Errorf("%w: code=%d", ErrHandshakeRefused, resp.Code)
	}

	interval := time.Duration(resp.Sys.Heartbeat) * time.Second
	c.mu.Lock()
	c.heartbeatInterval = interval
	c.heartbeatTimeout = 2 * interval
	c.lastSeen = time.Now()
	c.mu.Unlock()

	if err := packet.Write(c.conn, packet.HandshakeAck, nil); err != nil {
		return fmt.Errorf("client: send handshake ack: %w", err)
	}
	if interval > 0 {
		go c.heartbeatLoop(interval)
	}
	c.logger.Debug().Dur("heartbeat", interval).Msg("connected")
	return nil
}

func (c *Client) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			pkts, ferr := c.reassembler.Feed(buf[:n])
			for _, p := range pkts {
				c.handlePacket(p)
			}
			if ferr != nil {
				c.closeWith(ferr)
				return
			}
		}
		if err != nil {
			c.closeWith(fmt.Errorf("client: read: %w", err))
			return
		}
	}
}

func (c *Client) handlePacket(p packet.Packet) {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()

	switch p.Kind {
	case packet.Handshake:
		var resp session.HandshakeResponse
		if err := json.Unmarshal(p.Body, &resp); err != nil {
			resp.Code = session.CodeInternal
		}
		select {
		case c.handshakeCh <- resp:
		default:
		}
	case packet.Heartbeat:
	case packet.Data:
		c.handleData(p.Body)
	case packet.Kick:
		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(p.Body, &body)
		c.logger.Warn().Str("reason", body.Reason).Msg("kicked")
		c.closeWith(fmt.Errorf("%w: %s", ErrKicked, body.Reason))
	default:
		c.logger.Debug().Str("kind", p.Kind.String()).Msg("unexpected packet")
	}
}

func (c *Client) handleData(b []byte) {
	msg, err := message.Decode(b)
	if err != nil {
		c.logger.Warn().Err(err).Msg("message decode failed")
		return
	}
	var body map[string]any
	if len(msg.Body) > 0 {
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			body = nil
		}
	}
	switch msg.Kind {
	case message.Response:
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- body
		}
	case message.Push:
		c.mu.Lock()
		fn := c.onPush
		c.mu.Unlock()
		if fn != nil {
			fn(msg.Route, body)
		}
	default:
		c.logger.Debug().Str("message", msg.String()).Msg("unexpected message")
	}
}

func (c *Client) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			silent := time.Since(c.lastSeen)
			timeout := c.heartbeatTimeout
			c.mu.Unlock()
			if silent > timeout {
				c.closeWith(ErrHeartbeatTimeout)
				return
			}
			if err := packet.Write(c.conn, packet.Heartbeat, nil); err != nil {
				c.closeWith(fmt.Errorf("client: heartbeat: %w", err))
				return
			}
		}
	}
}

// Request sends a request and waits for its response body.
func (c *Client) Request(ctx context.Context, routeName string, body any) (map[string]any, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("client: encode body: %w", err)
	}

	ch := make(chan map[string]any, 1)
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := message.Encode(id, message.Request, false, routeName, payload)
	if err != nil {
		return nil, err
	}
	if err := packet.Write(c.conn, packet.Data, data); err != nil {
		return nil, fmt.Errorf("client: send request: %w", err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("client: request %s id=%d timed out", routeName, id)
	}
}

// Notify sends a fire-and-forget message.
func (c *Client) Notify(routeName string, body any) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("client: encode body: %w", err)
	}
	data, err := message.Encode(0, message.Notify, false, routeName, payload)
	if err != nil {
		return err
	}
	return packet.Write(c.conn, packet.Data, data)
}

// HeartbeatInterval is the interval the server advertised.
func (c *Client) HeartbeatInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeatInterval
}

// Done is closed when the connection ends for any reason.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the client closed, or nil while open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	c.closeWith(ErrClosed)
	return nil
}

func (c *Client) closeWith(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		if !errors.Is(err, ErrClosed) {
			c.logger.Debug().Err(err).Msg("connection closed")
		}
	})
}
