// Package eventstream keeps a server-push subscription alive across dropped
// connections.
package eventstream

type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Event is a named message pushed by the server.
type Event struct {
	Type string
	Data []byte
}

type Listener func(Event)

// Conn is one underlying server-push connection. Implementations call the
// OnOpen and OnError handlers from their own goroutine. A Conn whose
// ReadyState is StateClosed will not recover by itself.
type Conn interface {
	// Open starts connecting; handlers must be registered first.
	Open()
	Close() error
	ReadyState() ReadyState
	OnOpen(fn func())
	OnError(fn func(err error))
	AddEventListener(eventType string, fn Listener)
}

// Dialer builds a new, not yet opened, connection to url.
type Dialer interface {
	Dial(url string) Conn
}

type DialerFunc func(url string) Conn

func (f DialerFunc) Dial(url string) Conn { return f(url) }
