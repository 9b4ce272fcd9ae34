package models

import "strings"

// NotificationSetting is the per-channel notification preference.
type NotificationSetting string

const (
	NotifyAll     NotificationSetting = "all"
	NotifyMention NotificationSetting = "mention"
	NotifyNone    NotificationSetting = "none"
)

// NormalizeNotificationSetting maps unknown or absent values to NotifyAll,
// the default for freshly created channels.
func NormalizeNotificationSetting(raw NotificationSetting) NotificationSetting {
	switch NotificationSetting(strings.TrimSpace(string(raw))) {
	case NotifyMention:
		return NotifyMention
	case NotifyNone:
		return NotifyNone
	default:
		return NotifyAll
	}
}
