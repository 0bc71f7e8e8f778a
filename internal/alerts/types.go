// Package alerts holds the user-facing alert channel and the status bar
// projection derived from it.
package alerts

import "time"

type Level string

const (
	LevelWarn       Level = "WARN"
	LevelSuccess    Level = "SUCCESS"
	LevelError      Level = "ERROR"
	LevelInfo       Level = "INFO"
	LevelDraftSaved Level = "DRAFT_SAVED"
)

// Alert is a transient notification. Alerts with ManualClear set stay
// visible until ClearAlert is called.
type Alert struct {
	Type        Level     `json:"type"`
	Message     string    `json:"message"`
	ManualClear bool      `json:"manualClear,omitempty"`
	PostedAt    time.Time `json:"postedAt"`
}

// Event is a status bar entry recorded for every alert.
type Event struct {
	Type    Level     `json:"type"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// Notifier is implemented by anything that can surface an alert to the user.
type Notifier interface {
	SetAlert(alert Alert)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(alert Alert)

func (f NotifierFunc) SetAlert(alert Alert) {
	f(alert)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
func SystemClock() Clock { return systemClock{} }
