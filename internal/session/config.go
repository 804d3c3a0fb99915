package session

import (
	"time"

	"github.com/danmuck/pomelogate/internal/protocol/packet"
	"github.com/danmuck/pomelogate/internal/protocol/reassembly"
)

// Config defines per-connection protocol defaults.
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	// ReadBufferSize is the size of one transport read and the initial
	// reassembly buffer.
	ReadBufferSize int
	// MaxPacketSize bounds the declared body length of one inbound packet.
	MaxPacketSize int
}

// DefaultConfig returns the handshake defaults advertised to clients.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  20 * time.Second,
		ReadBufferSize:    reassembly.DefaultInitialSize,
		MaxPacketSize:     packet.MaxBodyLen,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 2 * c.HeartbeatInterval
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.MaxPacketSize <= 0 || c.MaxPacketSize > packet.MaxBodyLen {
		c.MaxPacketSize = def.MaxPacketSize
	}
	return c
}

// HeartbeatSeconds is the interval advertised in the handshake ack. The
// wire carries whole seconds; sub-second intervals round up to 1.
func HeartbeatSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
