package eventstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// StatusError is reported when the server answers the subscription request
// with something other than 200.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("event stream rejected with status %d", e.StatusCode)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// SSEDialer opens Server-Sent Events subscriptions over HTTP. Its
// connections do not retry on their own: any failure leaves them closed.
type SSEDialer struct {
	client *http.Client
	header http.Header
}

func NewSSEDialer(client *http.Client, header http.Header) *SSEDialer {
	if client == nil {
		// no timeout, the response body lives as long as the subscription
		client = &http.Client{}
	}
	return &SSEDialer{client: client, header: header.Clone()}
}

func (d *SSEDialer) Dial(url string) Conn {
	return &sseConn{
		url:       url,
		client:    d.client,
		header:    d.header,
		state:     StateConnecting,
		listeners: make(map[string][]Listener),
	}
}

type sseConn struct {
	url    string
	client *http.Client
	header http.Header

	mu        sync.Mutex
	state     ReadyState
	started   bool
	cancel    context.CancelFunc
	listeners map[string][]Listener
	onOpen    func()
	onError   func(error)
}

func (c *sseConn) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	c.mu.Unlock()
}

func (c *sseConn) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *sseConn) AddEventListener(eventType string, fn Listener) {
	c.mu.Lock()
	c.listeners[eventType] = append(c.listeners[eventType], fn)
	c.mu.Unlock()
}

func (c *sseConn) ReadyState() ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *sseConn) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.state == StateClosed {
		return
	}
	c.started = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

func (c *sseConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *sseConn) run(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	for k, vals := range c.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		c.fail(ctx, &StatusError{StatusCode: resp.StatusCode})
		return
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = resp.Body.Close()
		return
	}
	c.state = StateOpen
	onOpen := c.onOpen
	c.mu.Unlock()
	if onOpen != nil {
		onOpen()
	}

	dec := ssestream.NewDecoder(resp)
	defer dec.Close()
	for dec.Next() {
		ev := dec.Event()
		eventType := ev.Type
		if eventType == "" {
			eventType = "message"
		}
		c.emit(Event{Type: eventType, Data: ev.Data})
	}

	err = dec.Err()
	if err == nil {
		err = io.EOF
	}
	c.fail(ctx, err)
}

func (c *sseConn) emit(ev Event) {
	c.mu.Lock()
	fns := append([]Listener(nil), c.listeners[ev.Type]...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// fail marks the connection dead and reports err, unless Close got there first.
func (c *sseConn) fail(ctx context.Context, err error) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.cancel()
	onError := c.onError
	c.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}
