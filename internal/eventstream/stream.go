package eventstream

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

const DefaultReconnectDelay = 5 * time.Second

var ErrClosed = errors.New("event stream closed")

var meter = otel.Meter("github.com/aicsgithub/aics-file-upload-app-sub003/internal/eventstream")

var reconnectCounter, _ = meter.Int64Counter("upload_stream_reconnects_total",
	metric.WithDescription("Event stream connections re-established after a drop"))

var eventCounter, _ = meter.Int64Counter("upload_stream_events_total",
	metric.WithDescription("Events delivered to stream listeners"))

// Stream wraps a Conn and rebuilds it whenever it dies, for as long as the
// stream is open. Listeners registered on the Stream survive reconnects.
type Stream struct {
	url            string
	dialer         Dialer
	reconnectDelay time.Duration

	mu              sync.Mutex
	conn            Conn
	listeners       map[string]Listener
	attached        map[Conn]map[string]bool
	disconnected    bool
	manualReconnect bool
	reconnecting    bool
	closed          bool
	timer           *time.Timer
	onDisconnect    func()
	onReconnect     func()
}

type Option func(*Stream)

func WithReconnectDelay(d time.Duration) Option {
	return func(s *Stream) {
		if d >= 0 {
			s.reconnectDelay = d
		}
	}
}

// New dials url and starts the first connection.
func New(url string, dialer Dialer, opts ...Option) *Stream {
	s := &Stream{
		url:            url,
		dialer:         dialer,
		reconnectDelay: DefaultReconnectDelay,
		listeners:      make(map[string]Listener),
		attached:       make(map[Conn]map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	conn := s.connectLocked()
	s.mu.Unlock()
	conn.Open()
	return s
}

// AddEventListener routes events of eventType to fn. Registering a type
// again replaces the previous listener.
func (s *Stream) AddEventListener(eventType string, fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.listeners[eventType] = fn
	// while a manual reconnect is in flight the replay on open attaches it
	if s.conn != nil && !s.manualReconnect {
		s.attachLocked(s.conn, eventType)
	}
}

// OnDisconnect sets the callback fired once when the connection is lost.
func (s *Stream) OnDisconnect(fn func()) {
	s.mu.Lock()
	s.onDisconnect = fn
	s.mu.Unlock()
}

// OnReconnect sets the callback fired once when a lost connection is back.
func (s *Stream) OnReconnect(fn func()) {
	s.mu.Lock()
	s.onReconnect = fn
	s.mu.Unlock()
}

// Connected reports whether the stream is not in the disconnected state.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.disconnected
}

// ReadyState reports the state of the current underlying connection.
func (s *Stream) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		return StateClosed
	}
	return s.conn.ReadyState()
}

// Close tears the stream down without firing callbacks. A reconnect that is
// waiting out its delay is cancelled.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	s.attached = make(map[Conn]map[string]bool)
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Run blocks until ctx is done and then closes the stream.
func (s *Stream) Run(ctx context.Context) error {
	<-ctx.Done()
	if err := s.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Stream) connectLocked() Conn {
	conn := s.dialer.Dial(s.url)
	s.conn = conn
	conn.OnOpen(func() { s.handleOpen(conn) })
	conn.OnError(func(err error) { s.handleError(conn, err) })
	if !s.manualReconnect {
		for eventType := range s.listeners {
			s.attachLocked(conn, eventType)
		}
	}
	return conn
}

// attachLocked puts a dispatcher for eventType on conn once. The dispatcher
// looks the listener up at delivery time, so replacing a listener needs no
// re-attachment.
func (s *Stream) attachLocked(conn Conn, eventType string) {
	seen := s.attached[conn]
	if seen == nil {
		seen = make(map[string]bool)
		s.attached[conn] = seen
	}
	if seen[eventType] {
		return
	}
	seen[eventType] = true
	conn.AddEventListener(eventType, func(ev Event) { s.dispatch(conn, ev) })
}

func (s *Stream) dispatch(conn Conn, ev Event) {
	s.mu.Lock()
	if s.closed || conn != s.conn {
		s.mu.Unlock()
		return
	}
	fn := s.listeners[ev.Type]
	s.mu.Unlock()
	if fn != nil {
		eventCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", ev.Type)))
		fn(ev)
	}
}

func (s *Stream) handleOpen(conn Conn) {
	s.mu.Lock()
	if s.closed || conn != s.conn {
		s.mu.Unlock()
		return
	}
	if s.manualReconnect {
		for eventType := range s.listeners {
			s.attachLocked(conn, eventType)
		}
		s.manualReconnect = false
	}
	wasDisconnected := s.disconnected
	s.disconnected = false
	onReconnect := s.onReconnect
	s.mu.Unlock()

	if wasDisconnected {
		log.Info("Event stream reconnected to %s", s.url)
		reconnectCounter.Add(context.Background(), 1)
		if onReconnect != nil {
			onReconnect()
		}
	}
}

func (s *Stream) handleError(conn Conn, err error) {
	s.mu.Lock()
	if s.closed || conn != s.conn {
		s.mu.Unlock()
		return
	}

	var onDisconnect func()
	if !s.disconnected {
		s.disconnected = true
		onDisconnect = s.onDisconnect
		log.Warn("Event stream to %s lost: %v", s.url, err)
	}

	// the connection gave up on its own; take over reconnecting
	var dead Conn
	if conn.ReadyState() == StateClosed && !s.reconnecting {
		s.manualReconnect = true
		s.reconnecting = true
		dead = conn
		delete(s.attached, conn)
	}
	s.mu.Unlock()

	// disconnect is announced before any reconnect attempt is scheduled
	if onDisconnect != nil {
		onDisconnect()
	}
	if dead == nil {
		return
	}
	_ = dead.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.reconnecting = false
		return
	}
	s.timer = time.AfterFunc(s.reconnectDelay, s.reconnect)
}

func (s *Stream) reconnect() {
	s.mu.Lock()
	s.reconnecting = false
	s.timer = nil
	if s.closed {
		s.mu.Unlock()
		return
	}
	log.Info("Reconnecting event stream to %s", s.url)
	conn := s.connectLocked()
	s.mu.Unlock()
	conn.Open()
}
