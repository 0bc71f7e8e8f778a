package alerts

import (
	"sync"
	"time"

	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

const (
	DefaultDuration = 2 * time.Second
	maxEvents       = 100
)

// Center owns the current alert and the event history.
type Center struct {
	clock    Clock
	duration time.Duration

	mu      sync.Mutex
	current *Alert
	seq     uint64
	timer   *time.Timer
	events  []Event
}

type Option func(*Center)

func WithClock(clock Clock) Option {
	return func(c *Center) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDuration sets how long an alert stays visible before it expires.
func WithDuration(d time.Duration) Option {
	return func(c *Center) {
		if d > 0 {
			c.duration = d
		}
	}
}

func NewCenter(opts ...Option) *Center {
	c := &Center{
		clock:    SystemClock(),
		duration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAlert replaces the current alert and records it as an event.
func (c *Center) SetAlert(alert Alert) {
	if alert.PostedAt.IsZero() {
		alert.PostedAt = c.clock.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	c.seq++
	c.current = &alert
	c.addEventLocked(Event{Type: alert.Type, Message: alert.Message, Date: alert.PostedAt})

	log.Debug("alert %s: %s", alert.Type, alert.Message)

	if alert.ManualClear {
		return
	}
	seq := c.seq
	c.timer = time.AfterFunc(c.duration, func() {
		c.expire(seq)
	})
}

// ClearAlert removes the current alert, including manual-clear alerts.
func (c *Center) ClearAlert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.seq++
	c.current = nil
}

// AddEvent records a status bar entry without raising an alert.
func (c *Center) AddEvent(level Level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addEventLocked(Event{Type: level, Message: message, Date: c.clock.Now()})
}

// Current returns the visible alert, if any.
func (c *Center) Current() (Alert, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Alert{}, false
	}
	return *c.current, true
}

// Events returns the recorded events, most recent first.
func (c *Center) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]Event, len(c.events))
	copy(ret, c.events)
	return ret
}

// Latest returns the most recent event or nil.
func (c *Center) Latest() *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	ev := c.events[0]
	return &ev
}

// StatusText projects the latest event for the status bar.
func (c *Center) StatusText() string {
	return Describe(c.Latest(), c.clock.Now())
}

func (c *Center) expire(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// a newer alert replaced this one
	if seq != c.seq {
		return
	}
	c.current = nil
	c.timer = nil
}

func (c *Center) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Center) addEventLocked(ev Event) {
	c.events = append([]Event{ev}, c.events...)
	if len(c.events) > maxEvents {
		c.events = c.events[:maxEvents]
	}
}
