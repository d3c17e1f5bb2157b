package domain

import (
	"context"
	"time"
)

// UserRepository is the Postgres-backed store for user state.
type UserRepository interface {
	// GetByPACS resolves a PACS username to a user.
	GetByPACS(ctx context.Context, pacs string) (*User, error)

	// ResetPresence marks every user Offline. Called once when the XMPP
	// loop starts, before any presence stanzas arrive.
	ResetPresence(ctx context.Context) error

	// UpdatePresence sets a user's presence if it differs from the stored
	// value. Returns true when a row actually changed.
	UpdatePresence(ctx context.Context, pacs string, presence Presence) (bool, error)

	// UpdateLastEvents writes the newest PS360 report event per account ID.
	UpdateLastEvents(ctx context.Context, events map[int64]LastEvent) error

	// ListPresence returns the current presence snapshot.
	ListPresence(ctx context.Context) ([]PresenceRecord, error)
}

// ShiftSource answers "what is this employee rostered on today".
type ShiftSource interface {
	TodayShifts(ctx context.Context, abbr string) ([]string, error)
}

// PresencePublisher fans presence changes out to connected watchers.
type PresencePublisher interface {
	PublishPresence(change PresenceChange)
}

// Debouncer suppresses duplicate work within a short window, keyed by
// an arbitrary string. Returns true when the caller should proceed.
type Debouncer interface {
	CheckDebounce(ctx context.Context, key string, window time.Duration) (bool, error)
}
