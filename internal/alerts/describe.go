package alerts

import (
	"fmt"
	"time"
)

// Describe renders an event as "<message> <when>" for the status bar.
// Events a day old or older render as "" and are hidden.
func Describe(ev *Event, now time.Time) string {
	if ev == nil {
		return ""
	}
	when := relativeTime(ev.Date, now)
	if when == "" {
		return ""
	}
	return fmt.Sprintf("%s %s", ev.Message, when)
}

func relativeTime(t, now time.Time) string {
	elapsed := now.Sub(t)
	if elapsed < 0 {
		elapsed = 0
	}

	switch {
	case elapsed < time.Minute:
		return "moments ago"
	case elapsed < time.Hour:
		minutes := int(elapsed / time.Minute)
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case elapsed < 24*time.Hour:
		return "at " + t.In(now.Location()).Format("3:04 PM")
	default:
		return ""
	}
}
