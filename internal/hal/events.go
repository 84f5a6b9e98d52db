package hal

import "github.com/banshee-data/uwb.hal/internal/uci"

// Event is one item on the dispatch queue: a decoded response, a decoded
// notification or a HAL event. The set is closed.
type Event interface {
	// Kind names the variant for logs and metrics.
	Kind() string
	isEvent()
}

// ResponseEvent carries a decoded response.
type ResponseEvent struct {
	Msg uci.Response
}

// NotificationEvent carries a decoded notification.
type NotificationEvent struct {
	Msg uci.Notification
}

// HardwareEvent carries a HAL event. HardwareEvent{EventError, StatusFailed}
// is also raised when the chip link is lost.
type HardwareEvent struct {
	Event  EventKind
	Status Status
}

func (ResponseEvent) Kind() string     { return "response" }
func (NotificationEvent) Kind() string { return "notification" }
func (HardwareEvent) Kind() string     { return "hardware" }

func (ResponseEvent) isEvent()     {}
func (NotificationEvent) isEvent() {}
func (HardwareEvent) isEvent()     {}

// IsLinkLost reports whether ev asks the consumer to recover the chip.
func IsLinkLost(ev Event) bool {
	he, ok := ev.(HardwareEvent)
	return ok && he.Event == EventError
}
