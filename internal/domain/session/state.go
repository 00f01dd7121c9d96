package session

// State is a Session's position in its lifecycle.
type State int32

const (
	Handshaking State = iota
	Open
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "HANDSHAKING"
	case Open:
		return "OPEN"
	case Draining:
		return "DRAINING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// CloseReason classifies why a session was torn down.
type CloseReason string

const (
	ReasonClientClose      CloseReason = "CLIENT_CLOSE"
	ReasonWriteFailure     CloseReason = "WRITE_FAILURE"
	ReasonLivenessTimeout  CloseReason = "LIVENESS_TIMEOUT"
	ReasonSlowConsumer     CloseReason = "SLOW_CONSUMER"
	ReasonAdminShutdown    CloseReason = "ADMIN_SHUTDOWN"
	ReasonPolicyViolation  CloseReason = "POLICY_VIOLATION"
)

// CloseCode maps a CloseReason to the wire close code.
func (r CloseReason) CloseCode() int {
	switch r {
	case ReasonPolicyViolation:
		return 1008
	case ReasonSlowConsumer:
		return 4001
	case ReasonWriteFailure:
		return 1011
	default:
		return 1000
	}
}
