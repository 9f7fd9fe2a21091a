package transport

// ConnectionState is the state of the broker connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Message is an inbound broker message delivered to topic subscribers.
type Message struct {
	Topic       string
	Destination string
	MessageID   string
	Body        []byte
}
