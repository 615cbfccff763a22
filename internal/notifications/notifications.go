// Package notifications defines the trigger contract for the notification
// subsystem. Formatting and delivery live outside this core.
package notifications

import "github.com/sirupsen/logrus"

// Type identifies the kind of notification being triggered
type Type string

const (
	TypeMediaApproved     Type = "media_approved"
	TypeMediaAutoApproved Type = "media_auto_approved"
	TypeMediaAvailable    Type = "media_available"
	TypeMediaDeclined     Type = "media_declined"
	TypeMediaFailed       Type = "media_failed"
)

// Payload carries everything a downstream formatter needs
type Payload struct {
	Subject     string
	Message     string
	Image       string
	MediaID     uint64
	RequestID   uint64
	RequestedBy string
	Is4K        bool
}

// Notifier dispatches notifications to the delivery subsystem
type Notifier interface {
	Send(kind Type, payload Payload)
}

// LogNotifier is the default dispatcher; it records triggers in the log
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the notification trigger
func (n *LogNotifier) Send(kind Type, payload Payload) {
	n.logger.WithFields(logrus.Fields{
		"kind":         string(kind),
		"subject":      payload.Subject,
		"media_id":     payload.MediaID,
		"request_id":   payload.RequestID,
		"requested_by": payload.RequestedBy,
		"is_4k":        payload.Is4K,
	}).Info("Notification triggered")
}
