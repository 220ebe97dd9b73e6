package chatflow

import "time"

// Window is the daily business-hours window in local time. Intake outside
// the window returns an offline result instead of creating a chat.
type Window struct {
	OpenHour  int // inclusive, 0-23
	CloseHour int // exclusive, 1-24
}

// NewWindow clamps the configured hours to a sane window, defaulting to
// 09:00-24:00.
func NewWindow(openHour, closeHour int) Window {
	if openHour < 0 || openHour > 23 {
		openHour = 9
	}
	if closeHour <= openHour || closeHour > 24 {
		closeHour = 24
	}
	return Window{OpenHour: openHour, CloseHour: closeHour}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	hour := t.Hour()
	return hour >= w.OpenHour && hour < w.CloseHour
}
