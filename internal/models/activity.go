package models

import "time"

type ActivityType string

const (
	ActivityScreenshot     ActivityType = "screenshot"
	ActivityCopy           ActivityType = "copy"
	ActivityPaste          ActivityType = "paste"
	ActivityPrint          ActivityType = "print"
	ActivityTabSwitch      ActivityType = "tab_switch"
	ActivityWindowBlur     ActivityType = "window_blur"
	ActivityRightClick     ActivityType = "right_click"
	ActivityDevTools       ActivityType = "devtools"
	ActivityFullscreenExit ActivityType = "fullscreen_exit"
)

// ActivityTypes lists every accepted suspicious activity type.
var ActivityTypes = []ActivityType{
	ActivityScreenshot,
	ActivityCopy,
	ActivityPaste,
	ActivityPrint,
	ActivityTabSwitch,
	ActivityWindowBlur,
	ActivityRightClick,
	ActivityDevTools,
	ActivityFullscreenExit,
}

func (t ActivityType) IsKnown() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SuspiciousActivity is one entry in an attempt's append-only activity log.
// Count is the running number of events of the same type in the attempt.
type SuspiciousActivity struct {
	Type      ActivityType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Details   string       `json:"details,omitempty"`
	Count     int          `json:"count"`
}
