package alerting

import (
	"fmt"
	"time"
)

// QuietHours suppresses alert sound within a daily window. Visual entries
// are still recorded.
type QuietHours struct {
	enabled      bool
	startMinutes int
	endMinutes   int
}

// NewQuietHours parses "HH:MM" bounds. A window crossing midnight is valid.
func NewQuietHours(enabled bool, start, end string) (*QuietHours, error) {
	q := &QuietHours{enabled: enabled}
	if !enabled {
		return q, nil
	}
	var err error
	if q.startMinutes, err = parseHHMM(start); err != nil {
		return nil, fmt.Errorf("quiet hours start: %w", err)
	}
	if q.endMinutes, err = parseHHMM(end); err != nil {
		return nil, fmt.Errorf("quiet hours end: %w", err)
	}
	return q, nil
}

// Active reports whether t falls inside the quiet window.
func (q *QuietHours) Active(t time.Time) bool {
	if !q.enabled {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	if q.startMinutes <= q.endMinutes {
		return minutes >= q.startMinutes && minutes < q.endMinutes
	}
	// Window wraps midnight (e.g. 22:00–07:00).
	return minutes >= q.startMinutes || minutes < q.endMinutes
}

func parseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time out of range %q", s)
	}
	return h*60 + m, nil
}
