package session

type State int

const (
	StateInited State = iota
	StateWaitAck
	StateWorking
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInited:
		return "inited"
	case StateWaitAck:
		return "wait_ack"
	case StateWorking:
		return "working"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons, also used as metric labels.
const (
	ReasonClosed           = "closed"
	ReasonShutdown         = "shutdown"
	ReasonRemoteClosed     = "remote_closed"
	ReasonReadError        = "read_error"
	ReasonWriteError       = "write_error"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonPacketTooLarge   = "packet_too_large"
	ReasonClientKick       = "client_kick"
	ReasonKicked           = "kicked"
)
