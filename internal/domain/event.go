package domain

import (
	"fmt"
	"time"
)

// EventType classifies PS360 report events we track. PS360 emits more
// types than these; anything else is ignored by the poller.
type EventType string

const (
	EventSign              EventType = "Sign"
	EventEdit              EventType = "Edit"
	EventQueueForSignature EventType = "QueueForSignature"
	EventOverread          EventType = "Overread"
)

// ParseEventType validates a raw PS360 event type string.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventSign, EventEdit, EventQueueForSignature, EventOverread:
		return t, nil
	default:
		return "", fmt.Errorf("unknown event type %q", s)
	}
}

// LastEvent is the most recent report event seen for a PS360 account.
type LastEvent struct {
	Type           EventType
	Timestamp      time.Time
	Workstation    string
	AdditionalInfo string
}

// Newer reports whether e should replace prev as a user's last event.
func (e LastEvent) Newer(prev LastEvent) bool {
	return e.Timestamp.After(prev.Timestamp)
}
