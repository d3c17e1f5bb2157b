package domain

import "time"

// User is a radiologist as stored in the users table. The PACS, PhySch
// and PS360 identifiers tie the same person together across systems.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	PACS      string
	PhySch    string
	PS360     int64
}

// PresenceRecord is one row of the presence snapshot served by the API.
type PresenceRecord struct {
	PACS        string    `json:"pacs"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Presence    Presence  `json:"presence"`
	LastUpdated time.Time `json:"last_updated"`
}

// PresenceChange is published to the broadcast hub when a user's PACS
// presence actually changed in the database.
type PresenceChange struct {
	PACS     string    `json:"pacs"`
	Presence Presence  `json:"presence"`
	At       time.Time `json:"at"`
}
