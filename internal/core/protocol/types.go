package protocol

// SocketState is the connection state of a session.
type SocketState int

const (
	Disconnected SocketState = iota
	Connecting
	Connected
	Disconnecting
	RetryConnect
)

func (s SocketState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case RetryConnect:
		return "retry_connect"
	default:
		return "unknown"
	}
}

// DisconnectReason tells why the session last left the Connected state.
type DisconnectReason int

const (
	ReasonNone DisconnectReason = iota
	ReasonManual
	ReasonCouldNotConnect
	ReasonServerDisconnected
	ReasonServerNotResponding
	ReasonException
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonManual:
		return "manual"
	case ReasonCouldNotConnect:
		return "could_not_connect"
	case ReasonServerDisconnected:
		return "server_disconnected"
	case ReasonServerNotResponding:
		return "server_not_responding"
	case ReasonException:
		return "exception"
	default:
		return "unknown"
	}
}

// Retryable reports whether a disconnect for this reason schedules a reconnect
// when retries are enabled.
func (r DisconnectReason) Retryable() bool {
	return r != ReasonNone && r != ReasonManual
}

// OnlineStatus is the last known liveness of a destination client.
type OnlineStatus int

const (
	StatusUnknown OnlineStatus = iota
	StatusOnline
	StatusNotOnline
)

func (s OnlineStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusNotOnline:
		return "not_online"
	default:
		return "unknown"
	}
}
