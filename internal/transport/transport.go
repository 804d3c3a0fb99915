package transport

import (
	"errors"
	"net"
	"sync"
	"time"
)

// Conn is the byte-stream boundary consumed by a session.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

// Listener yields accepted connections.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// Options bounds blocking socket calls. Zero disables a deadline.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Listen opens a TCP listener whose connections are wrapped with opts.
func Listen(addr string, opts Options) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewListener(ln, opts), nil
}

// NewListener wraps an existing net.Listener.
func NewListener(ln net.Listener, opts Options) Listener {
	return &tcpListener{ln: ln, opts: opts}
}

type tcpListener struct {
	ln   net.Listener
	opts Options
}

func (l *tcpListener) Accept() (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return Wrap(c, l.opts), nil
}

func (l *tcpListener) Close() error {
	return l.ln.Close()
}

func (l *tcpListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Wrap serializes writes on c, applies per-call deadlines, and makes Close
// idempotent. Concurrent writers never interleave partial packets.
func Wrap(c net.Conn, opts Options) Conn {
	return &tcpConn{conn: c, opts: opts}
}

type tcpConn struct {
	conn net.Conn
	opts Options

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *tcpConn) Read(p []byte) (int, error) {
	if c.opts.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
			return 0, err
		}
	}
	return c.conn.Read(p)
}

func (c *tcpConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(p)
}

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *tcpConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// IsClosed reports whether err is the result of using a closed connection.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
