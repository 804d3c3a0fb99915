package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/pomelogate/internal/observability"
	"github.com/danmuck/pomelogate/internal/protocol/message"
	"github.com/danmuck/pomelogate/internal/protocol/packet"
	"github.com/danmuck/pomelogate/internal/protocol/reassembly"
	"github.com/danmuck/pomelogate/internal/route"
	"github.com/danmuck/pomelogate/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrClosed     = errors.New("session: closed")
	ErrNotWorking = errors.New("session: handshake not complete")
)

// Session is one client connection driven through handshake, heartbeat
// and request dispatch.
type Session struct {
	id     string
	conn   transport.Conn
	cfg    Config
	routes *route.Registry
	logger zerolog.Logger
	now    func() time.Time

	// mu guards the fields below.
	mu                sync.Mutex
	state             State
	lastHeartbeatAt   time.Time
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	reassembler       *reassembly.Reassembler
	client            HandshakeRequest
	closeReason       string

	connectedAt time.Time
	reqCounter  atomic.Int64
	handled     atomic.Int64

	attrsMu sync.RWMutex
	attrs   map[string]any

	closeOnce sync.Once
	done      chan struct{}
	hooksMu   sync.Mutex
	onClose   []func(*Session)
}

// New wraps conn in an Inited session. A nil registry answers every
// request with 404.
func New(conn transport.Conn, routes *route.Registry, cfg Config) *Session {
	cfg = cfg.normalized()
	if routes == nil {
		routes = route.NewRegistry()
	}
	id := uuid.NewString()
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	s := &Session{
		id:          id,
		conn:        conn,
		cfg:         cfg,
		routes:      routes,
		logger:      observability.SessionLogger(id, remote),
		now:         time.Now,
		state:       StateInited,
		reassembler: reassembly.New(cfg.ReadBufferSize, cfg.MaxPacketSize),
		connectedAt: time.Now(),
		attrs:       make(map[string]any),
		done:        make(chan struct{}),
	}
	observability.RecordSessionOpened()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// NextReqID increments and returns the request counter.
func (s *Session) NextReqID() int64 { return s.reqCounter.Add(1) }

func (s *Session) Set(key string, value any) {
	s.attrsMu.Lock()
	s.attrs[key] = value
	s.attrsMu.Unlock()
}

func (s *Session) Get(key string) (any, bool) {
	s.attrsMu.RLock()
	defer s.attrsMu.RUnlock()
	v, ok := s.attrs[key]
	return v, ok
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// OnClose registers fn to run after close. On a closed session fn runs
// immediately.
func (s *Session) OnClose(fn func(*Session)) {
	if fn == nil {
		return
	}
	s.hooksMu.Lock()
	select {
	case <-s.done:
		s.hooksMu.Unlock()
		fn(s)
		return
	default:
	}
	s.onClose = append(s.onClose, fn)
	s.hooksMu.Unlock()
}

// Run reads from the connection until it fails, the peer leaves, ctx is
// cancelled or the session is closed. The session is always closed on
// return. A clean remote close returns nil.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.closeWith(ReasonShutdown) })
	defer stop()

	s.logger.Info().Msg("session_open")
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if ferr := s.feed(buf[:n]); ferr != nil {
				s.logger.Warn().Err(ferr).Msg("inbound packet rejected")
				s.closeWith(ReasonPacketTooLarge)
				return ferr
			}
		}
		if err != nil {
			if s.isClosed() {
				return nil
			}
			if errors.Is(err, io.EOF) || transport.IsClosed(err) {
				s.closeWith(ReasonRemoteClosed)
				return nil
			}
			s.logger.Debug().Err(err).Msg("read failed")
			s.closeWith(ReasonReadError)
			return err
		}
		if s.isClosed() {
			return nil
		}
	}
}

// feed pushes bytes through the reassembler and handles each completed
// packet in order. Packets that precede an oversized header are still
// handled.
func (s *Session) feed(data []byte) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	pkts, err := s.reassembler.Feed(data)
	s.mu.Unlock()

	for _, p := range pkts {
		if s.isClosed() {
			return nil
		}
		s.handlePacket(p)
	}
	return err
}

func (s *Session) handlePacket(p packet.Packet) {
	observability.RecordPacket("in", p.Kind.String())
	switch p.Kind {
	case packet.Handshake:
		s.onHandshake(p.Body)
	case packet.HandshakeAck:
		s.onHandshakeAck()
	case packet.Heartbeat:
		s.onHeartbeat()
	case packet.Data:
		s.onData(p.Body)
	case packet.Kick:
		s.logger.Info().Msg("client sent kick")
		s.closeWith(ReasonClientKick)
	default:
		s.ignore(p.Kind, s.State())
	}
}

func (s *Session) ignore(kind packet.Kind, state State) {
	s.logger.Debug().Str("kind", kind.String()).Str("state", state.String()).Msg("packet ignored")
	observability.RecordIgnoredPacket(kind.String(), state.String())
}

func (s *Session) onHandshake(body []byte) {
	s.mu.Lock()
	if s.state != StateInited {
		state := s.state
		s.mu.Unlock()
		s.ignore(packet.Handshake, state)
		return
	}
	s.client = parseHandshake(body)
	s.heartbeatInterval = s.cfg.HeartbeatInterval
	s.heartbeatTimeout = s.cfg.HeartbeatTimeout
	s.state = StateWaitAck
	interval := s.heartbeatInterval
	client := s.client
	s.mu.Unlock()

	ack, err := json.Marshal(NewHandshakeResponse(HeartbeatSeconds(interval)))
	if err != nil {
		s.logger.Error().Err(err).Msg("handshake encode failed")
		s.closeWith(ReasonWriteError)
		return
	}
	if err := s.send(packet.Handshake, ack); err != nil {
		s.logger.Debug().Err(err).Msg("handshake write failed")
		s.closeWith(ReasonWriteError)
		return
	}
	s.logger.Debug().
		Str("client_type", client.Sys.Type).
		Str("client_version", client.Sys.Version).
		Msg("handshake answered")
}

func (s *Session) onHandshakeAck() {
	s.mu.Lock()
	if s.state != StateWaitAck {
		state := s.state
		s.mu.Unlock()
		s.ignore(packet.HandshakeAck, state)
		return
	}
	s.state = StateWorking
	s.lastHeartbeatAt = s.now()
	interval := s.heartbeatInterval
	s.mu.Unlock()

	s.logger.Info().Dur("heartbeat", interval).Msg("session_working")
	go s.heartbeatLoop(interval)
}

// touch records inbound liveness when Working.
func (s *Session) touch(kind packet.Kind) bool {
	s.mu.Lock()
	if s.state != StateWorking {
		state := s.state
		s.mu.Unlock()
		s.ignore(kind, state)
		return false
	}
	s.lastHeartbeatAt = s.now()
	s.mu.Unlock()
	return true
}

func (s *Session) onHeartbeat() {
	if !s.touch(packet.Heartbeat) {
		return
	}
	if err := s.send(packet.Heartbeat, nil); err != nil {
		s.closeWith(ReasonWriteError)
	}
}

func (s *Session) onData(body []byte) {
	if !s.touch(packet.Data) {
		return
	}
	msg, err := message.Decode(body)
	if err != nil {
		s.logger.Warn().Err(err).Int("bytes", len(body)).Msg("message decode failed")
		observability.RecordDecodeFailure("message")
		return
	}
	switch msg.Kind {
	case message.Request:
		s.dispatch(msg)
	case message.Notify:
		s.logger.Debug().Str("route", msg.Route).Int("bytes", len(msg.Body)).Msg("notify received")
	default:
		s.logger.Debug().Str("message", msg.String()).Msg("unexpected message kind")
		observability.RecordIgnoredPacket("message_"+msg.Kind.String(), StateWorking.String())
	}
}

func (s *Session) dispatch(msg message.Message) {
	start := time.Now()
	var body map[string]any
	if len(msg.Body) > 0 {
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			s.logger.Warn().Err(err).Str("route", msg.Route).Uint64("id", msg.ID).Msg("request body is not a JSON object")
			observability.RecordDecodeFailure("body")
			body = nil
		}
	}

	resp := s.invoke(msg.Route, body)
	code := responseCode(resp)
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Str("route", msg.Route).Msg("response encode failed")
		code = CodeInternal
		payload, _ = json.Marshal(errorBody(CodeInternal, "response encode failed"))
	}
	out, err := message.Encode(msg.ID, message.Response, false, "", payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("response message encode failed")
		return
	}
	s.handled.Add(1)
	observability.RecordRequest(msg.Route, code, time.Since(start))
	if err := s.send(packet.Data, out); err != nil {
		s.logger.Debug().Err(err).Msg("response write failed")
		s.closeWith(ReasonWriteError)
	}
}

// invoke runs the handler for route. Handler errors and panics become
// 500 bodies.
func (s *Session) invoke(name string, body map[string]any) (resp map[string]any) {
	fn, ok := s.routes.Lookup(name)
	if !ok {
		s.logger.Warn().Str("route", name).Msg("route not found")
		return errorBody(CodeNotFound, "Route not found: "+name)
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("route", name).Str("panic", fmt.Sprint(r)).Msg("handler panic")
			resp = errorBody(CodeInternal, "internal handler error")
		}
	}()
	out, err := fn(s, body)
	if err != nil {
		s.logger.Warn().Err(err).Str("route", name).Msg("handler failed")
		return errorBody(CodeInternal, err.Error())
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func (s *Session) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.heartbeatTick() {
				return
			}
		}
	}
}

// heartbeatTick closes the session when the peer has been silent longer
// than the timeout and otherwise sends a heartbeat. It reports whether the
// loop should keep running.
func (s *Session) heartbeatTick() bool {
	s.mu.Lock()
	if s.state != StateWorking {
		s.mu.Unlock()
		return false
	}
	silent := s.now().Sub(s.lastHeartbeatAt)
	timeout := s.heartbeatTimeout
	s.mu.Unlock()

	if silent > timeout {
		s.logger.Warn().Dur("silent", silent).Dur("timeout", timeout).Msg("heartbeat timeout")
		s.closeWith(ReasonHeartbeatTimeout)
		return false
	}
	if err := s.send(packet.Heartbeat, nil); err != nil {
		s.logger.Debug().Err(err).Msg("heartbeat write failed")
		s.closeWith(ReasonWriteError)
		return false
	}
	return true
}

func (s *Session) send(kind packet.Kind, body []byte) error {
	if err := packet.Write(s.conn, kind, body); err != nil {
		return err
	}
	observability.RecordPacket("out", kind.String())
	return nil
}

// Push sends a server-initiated message on route.
func (s *Session) Push(routeName string, body any) error {
	switch s.State() {
	case StateClosed:
		return ErrClosed
	case StateWorking:
	default:
		return ErrNotWorking
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("session: push body: %w", err)
	}
	data, err := message.Encode(0, message.Push, false, routeName, payload)
	if err != nil {
		return err
	}
	if err := s.send(packet.Data, data); err != nil {
		s.closeWith(ReasonWriteError)
		return err
	}
	return nil
}

// Kick tells the client why it is being dropped and closes the session.
func (s *Session) Kick(reason string) error {
	if s.isClosed() {
		return ErrClosed
	}
	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return err
	}
	werr := s.send(packet.Kick, body)
	s.logger.Info().Str("kick_reason", reason).Msg("session kicked")
	s.closeWith(ReasonKicked)
	return werr
}

// Close is idempotent and never fails.
func (s *Session) Close() error {
	s.closeWith(ReasonClosed)
	return nil
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) closeWith(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.closeReason = reason
		s.reassembler.Reset()
		s.mu.Unlock()

		s.hooksMu.Lock()
		close(s.done)
		hooks := s.onClose
		s.onClose = nil
		s.hooksMu.Unlock()

		if err := s.conn.Close(); err != nil && !transport.IsClosed(err) {
			s.logger.Debug().Err(err).Msg("conn close")
		}
		observability.RecordSessionClosed(reason)
		s.logger.Info().Str("reason", reason).Int64("requests", s.handled.Load()).Msg("session_closed")
		for _, fn := range hooks {
			fn(s)
		}
	})
}

// Snapshot is a point-in-time view of a session for the admin surface.
type Snapshot struct {
	ID              string    `json:"id"`
	RemoteAddr      string    `json:"remote_addr"`
	State           string    `json:"state"`
	ClientType      string    `json:"client_type,omitempty"`
	ClientVersion   string    `json:"client_version,omitempty"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	Requests        int64     `json:"requests"`
	CloseReason     string    `json:"close_reason,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	remote := ""
	if addr := s.conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:              s.id,
		RemoteAddr:      remote,
		State:           s.state.String(),
		ClientType:      s.client.Sys.Type,
		ClientVersion:   s.client.Sys.Version,
		ConnectedAt:     s.connectedAt,
		LastHeartbeatAt: s.lastHeartbeatAt,
		Requests:        s.handled.Load(),
		CloseReason:     s.closeReason,
	}
}
